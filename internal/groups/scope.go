package groups

import (
	"strings"
)

// Scope partitions the relay into isolated tenants. Every group lives in
// exactly one scope; groups in different scopes never see each other.
//
// The zero value is the default scope (the relay's base domain).
type Scope struct {
	name string
}

// DefaultScope is the scope of the relay's base domain.
var DefaultScope = Scope{}

// NamedScope returns the scope for a subdomain.
func NamedScope(name string) Scope {
	return Scope{name: name}
}

// IsDefault reports whether s is the base-domain scope.
func (s Scope) IsDefault() bool { return s.name == "" }

// Name returns the subdomain label; empty for the default scope.
func (s Scope) Name() string { return s.name }

func (s Scope) String() string {
	if s.name == "" {
		return "default"
	}
	return s.name
}

// ScopeFromHost derives the scope from a request's Host header.
// A host with more labels than the configured base domain maps to the
// first label; anything else is the default scope.
//
//	baseDomainParts=2: "groups.example.com" -> Named("groups")
//	                   "example.com"        -> Default
func ScopeFromHost(host string, baseDomainParts int) Scope {
	if host == "" {
		return DefaultScope
	}
	// Strip the port if present.
	if idx := strings.LastIndex(host, ":"); idx != -1 && !strings.Contains(host[idx:], "]") {
		host = host[:idx]
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")

	parts := strings.Split(host, ".")
	if len(parts) <= baseDomainParts {
		return DefaultScope
	}
	sub := parts[0]
	if sub == "" || sub == "www" {
		return DefaultScope
	}
	return NamedScope(sub)
}

package groups

import (
	"sort"
	"strings"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/verse-pbc/groups-relay/internal/errors"
)

// Role is a member role inside a group. The two built-in roles are admin and
// member; anything else is a custom role carried verbatim (lowercased).
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParseRole parses a role string case-insensitively; the empty string is a
// plain member.
func ParseRole(s string) Role {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RoleMember
	}
	return Role(s)
}

// Description returns the human description advertised in the roles event.
func (r Role) Description() string {
	switch r {
	case RoleAdmin:
		return "Can edit metadata and manage users"
	case RoleMember:
		return "Regular group member"
	default:
		return "Custom role"
	}
}

// RoleSet is a set of roles.
type RoleSet map[Role]struct{}

func NewRoleSet(roles ...Role) RoleSet {
	rs := make(RoleSet, len(roles))
	for _, r := range roles {
		rs[r] = struct{}{}
	}
	return rs
}

func (rs RoleSet) Has(r Role) bool {
	_, ok := rs[r]
	return ok
}

func (rs RoleSet) Add(r Role) { rs[r] = struct{}{} }

func (rs RoleSet) Clone() RoleSet {
	out := make(RoleSet, len(rs))
	for r := range rs {
		out[r] = struct{}{}
	}
	return out
}

// Sorted returns the role names in deterministic order.
func (rs RoleSet) Sorted() []string {
	names := make([]string, 0, len(rs))
	for r := range rs {
		names = append(names, string(r))
	}
	sort.Strings(names)
	return names
}

// GroupMember is a group participant with its role set.
type GroupMember struct {
	PubKey string
	Roles  RoleSet
}

func NewAdmin(pubkey string) *GroupMember {
	return &GroupMember{PubKey: pubkey, Roles: NewRoleSet(RoleAdmin)}
}

func NewMember(pubkey string) *GroupMember {
	return &GroupMember{PubKey: pubkey, Roles: NewRoleSet(RoleMember)}
}

// IsAdmin reports whether the member holds the admin role.
func (m *GroupMember) IsAdmin() bool { return m.Roles.Has(RoleAdmin) }

// MemberFromTag parses a p tag of the form [p, pubkey, role...] into a
// GroupMember. An empty role list yields a plain member.
func MemberFromTag(tag nostr.Tag) (*GroupMember, error) {
	if len(tag) < 2 || tag[0] != "p" {
		return nil, errors.Invalid("invalid p tag format")
	}
	pubkey := strings.ToLower(tag[1])
	if !nostr.IsValid32ByteHex(pubkey) {
		return nil, errors.Invalid("invalid pubkey in p tag")
	}

	roles := NewRoleSet()
	for _, r := range tag[2:] {
		if strings.TrimSpace(r) == "" {
			continue
		}
		roles.Add(ParseRole(r))
	}
	if len(roles) == 0 {
		roles.Add(RoleMember)
	}

	return &GroupMember{PubKey: pubkey, Roles: roles}, nil
}

// Invite is a group-scoped invitation. Single-use invites are consumed on
// successful admission; reusable ones never are.
type Invite struct {
	EventID  string
	Roles    RoleSet
	Reusable bool
}

package groups

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopeFromHost(t *testing.T) {
	tests := []struct {
		host  string
		parts int
		want  Scope
	}{
		{"example.com", 2, DefaultScope},
		{"example.com:8080", 2, DefaultScope},
		{"groups.example.com", 2, NamedScope("groups")},
		{"groups.example.com:443", 2, NamedScope("groups")},
		{"GROUPS.Example.COM", 2, NamedScope("groups")},
		{"www.example.com", 2, DefaultScope},
		{"relay.groups.example.com", 3, NamedScope("relay")},
		{"groups.example.com", 3, DefaultScope},
		{"localhost", 1, DefaultScope},
		{"tenant.localhost", 1, NamedScope("tenant")},
		{"", 2, DefaultScope},
	}

	for _, tc := range tests {
		t.Run(tc.host, func(t *testing.T) {
			require.Equal(t, tc.want, ScopeFromHost(tc.host, tc.parts))
		})
	}
}

func TestScopeIdentity(t *testing.T) {
	require.True(t, DefaultScope.IsDefault())
	require.Equal(t, "default", DefaultScope.String())

	named := NamedScope("tenant")
	require.False(t, named.IsDefault())
	require.Equal(t, "tenant", named.Name())

	// Scopes are comparable map keys; same name means same scope.
	require.Equal(t, NamedScope("tenant"), named)
	require.NotEqual(t, DefaultScope, named)
}

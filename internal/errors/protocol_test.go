package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientMessagePrefixes(t *testing.T) {
	require.Equal(t, "blocked", Notice("blocked").ClientMessage())
	require.Equal(t, "auth-required: need auth", AuthRequired("need auth").ClientMessage())
	require.Equal(t, "restricted: not a member", Restricted("not a member").ClientMessage())
	require.Equal(t, "invalid: missing tag", Invalid("missing tag").ClientMessage())

	// Internal details never reach the client.
	internal := Internal(fmt.Errorf("pg: connection refused"))
	require.Equal(t, "error: internal", internal.ClientMessage())
	require.Contains(t, internal.Error(), "connection refused")
}

func TestAsProtocol(t *testing.T) {
	pe := Restricted("nope")
	require.Same(t, pe, AsProtocol(pe))
	require.Same(t, pe, AsProtocol(fmt.Errorf("wrapped: %w", pe)))

	// Arbitrary errors are wrapped as internal.
	other := AsProtocol(fmt.Errorf("boom"))
	require.Equal(t, KindInternal, other.Kind)
}

func TestIsAuthRequired(t *testing.T) {
	require.True(t, IsAuthRequired(AuthRequired("x")))
	require.True(t, IsAuthRequired(fmt.Errorf("w: %w", AuthRequired("x"))))
	require.False(t, IsAuthRequired(Notice("x")))
	require.False(t, IsAuthRequired(fmt.Errorf("plain")))
}

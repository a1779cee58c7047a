package identity

import (
	"path/filepath"
	"testing"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)
	require.Len(t, id.PrivateKey, 64)
	require.Len(t, id.PublicKey, 64)

	derived, err := nostr.GetPublicKey(id.PrivateKey)
	require.NoError(t, err)
	require.Equal(t, derived, id.PublicKey)
}

func TestFromPrivateKey(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	pub, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)

	id, err := FromPrivateKey(sk)
	require.NoError(t, err)
	require.Equal(t, pub, id.PublicKey)

	// Whitespace and case are tolerated.
	id, err = FromPrivateKey("  " + sk + "\n")
	require.NoError(t, err)
	require.Equal(t, pub, id.PublicKey)
}

func TestFromPrivateKeyRejectsGarbage(t *testing.T) {
	_, err := FromPrivateKey("not-hex")
	require.Error(t, err)

	_, err = FromPrivateKey("abcd")
	require.Error(t, err)
}

func TestLoadPersistsGeneratedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.key")

	first, err := Load("", path)
	require.NoError(t, err)

	// A second load returns the same identity.
	second, err := Load("", path)
	require.NoError(t, err)
	require.Equal(t, first.PublicKey, second.PublicKey)
	require.Equal(t, first.PrivateKey, second.PrivateKey)
}

func TestLoadPrefersConfiguredKey(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	pub, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)

	id, err := Load(sk, filepath.Join(t.TempDir(), "unused.key"))
	require.NoError(t, err)
	require.Equal(t, pub, id.PublicKey)
}

package identity

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	btcec "github.com/btcsuite/btcd/btcec/v2"
	nostr "github.com/nbd-wtf/go-nostr"
)

const (
	// KeyFileName is the name of the file where the relay key is stored.
	KeyFileName = "relay.key"
	// KeyDir is the directory where relay identity files are stored.
	KeyDir = ".groups-relay"
)

// RelayIdentity holds the relay keypair used to sign generated group state
// events. The relay pubkey acts as a universal administrator across all
// groups in all scopes.
type RelayIdentity struct {
	PublicKey  string
	PrivateKey string
}

// Generate creates a new relay identity with a secp256k1 keypair.
func Generate() (*RelayIdentity, error) {
	sk := nostr.GeneratePrivateKey()
	pub, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	return &RelayIdentity{PublicKey: pub, PrivateKey: sk}, nil
}

// FromPrivateKey builds an identity from a 64-char hex secp256k1 secret key.
func FromPrivateKey(privKeyHex string) (*RelayIdentity, error) {
	privKeyHex = strings.TrimSpace(strings.ToLower(privKeyHex))
	raw, err := hex.DecodeString(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("private key is not valid hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}

	// Derive via btcec so an out-of-range scalar is rejected up front.
	_, pub := btcec.PrivKeyFromBytes(raw)
	pubHex := hex.EncodeToString(pub.SerializeCompressed()[1:])

	derived, err := nostr.GetPublicKey(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	if derived != pubHex {
		return nil, fmt.Errorf("public key derivation mismatch")
	}

	return &RelayIdentity{PublicKey: pubHex, PrivateKey: privKeyHex}, nil
}

// Load returns the relay identity for this process.
//
// Resolution order: the configured private key wins; otherwise the key file
// is loaded; otherwise a new keypair is generated and persisted so restarts
// keep the same relay pubkey.
func Load(configuredPrivateKey, keyFilePath string) (*RelayIdentity, error) {
	if configuredPrivateKey != "" {
		return FromPrivateKey(configuredPrivateKey)
	}

	path := keyFilePath
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, KeyDir, KeyFileName)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		id, err := Generate()
		if err != nil {
			return nil, err
		}
		if err := save(id, path); err != nil {
			return nil, fmt.Errorf("failed to save relay identity: %w", err)
		}
		return id, nil
	}

	return loadFromFile(path)
}

func save(id *RelayIdentity, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	// Only the secret is persisted; the pubkey is derived on load.
	if err := os.WriteFile(path, []byte(id.PrivateKey+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

func loadFromFile(path string) (*RelayIdentity, error) {
	cleaned := filepath.Clean(path)
	if strings.Contains(cleaned, "..") {
		return nil, fmt.Errorf("invalid key file path")
	}

	content, err := os.ReadFile(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	return FromPrivateKey(strings.TrimSpace(string(content)))
}

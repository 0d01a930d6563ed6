// Package keyring manages the Ed25519 key material backing manifest and
// draft package provenance. Signing is reserved for a future phase. The
// keyring derives per-goal key material via HKDF and a deterministic
// manifest id via HMAC (ManifestID); policy.NewManifest does not use it
// and gives each manifest a random UUID.
package keyring

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeyProvider is the signing backend a Keyring delegates to, so an
// in-memory development key can later be swapped for an HSM or KMS-backed
// implementation without touching callers.
type KeyProvider interface {
	Sign(msg []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
}

// MemoryKeyProvider is an in-memory Ed25519 key, generated fresh or
// derived deterministically via HKDF.
type MemoryKeyProvider struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewMemoryKeyProvider generates a fresh random Ed25519 key pair.
func NewMemoryKeyProvider() (*MemoryKeyProvider, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keyring: generate key: %w", err)
	}
	return &MemoryKeyProvider{pub: pub, priv: priv}, nil
}

func (m *MemoryKeyProvider) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(m.priv, msg), nil
}

func (m *MemoryKeyProvider) PublicKey() ed25519.PublicKey {
	return m.pub
}

// Keyring manages a goal's key material through a KeyProvider.
type Keyring struct {
	provider KeyProvider
}

// NewKeyring wraps p. A nil provider is replaced with a fresh in-memory
// key so callers always get a usable Keyring.
func NewKeyring(p KeyProvider) *Keyring {
	if p == nil {
		p, _ = NewMemoryKeyProvider()
	}
	return &Keyring{provider: p}
}

// PublicKey returns the keyring's public verification key.
func (k *Keyring) PublicKey() ed25519.PublicKey {
	return k.provider.PublicKey()
}

// DeriveForGoal derives a goal-specific Keyring via HKDF-SHA256. The
// master key's Ed25519 seed is the input key material, and goalRunID is
// the HKDF info parameter, so each goal gets a unique, deterministic
// keypair without persisting any per-goal secret.
func (k *Keyring) DeriveForGoal(goalRunID string) (*Keyring, error) {
	if goalRunID == "" {
		return nil, fmt.Errorf("keyring: goalRunID must not be empty")
	}

	master, ok := k.provider.(*MemoryKeyProvider)
	if !ok {
		return nil, fmt.Errorf("keyring: goal key derivation requires a MemoryKeyProvider")
	}
	seed := master.priv.Seed()

	hkdfReader := hkdf.New(sha256.New, seed, []byte("ta-goal-kdf"), []byte(goalRunID))
	goalSeed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(hkdfReader, goalSeed); err != nil {
		return nil, fmt.Errorf("keyring: hkdf derivation failed: %w", err)
	}

	priv := ed25519.NewKeyFromSeed(goalSeed)
	pub := priv.Public().(ed25519.PublicKey)

	return NewKeyring(&MemoryKeyProvider{pub: pub, priv: priv}), nil
}

// ManifestID deterministically derives a manifest identifier from the
// goal's key material and the agent it is being issued to, via
// HMAC-SHA256. Two manifests issued to the same agent under the same
// derived goal keyring produce the same id. The policy Compiler does not
// call it.
func (k *Keyring) ManifestID(agentID string) (string, error) {
	master, ok := k.provider.(*MemoryKeyProvider)
	if !ok {
		return "", fmt.Errorf("keyring: manifest id derivation requires a MemoryKeyProvider")
	}
	mac := hmac.New(sha256.New, master.priv.Seed())
	mac.Write([]byte(agentID))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

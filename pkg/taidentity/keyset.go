// Package taidentity issues and validates signed JWTs carrying a reviewer
// or agent principal. draftpkg.NewReviewSessionFromToken uses them to open
// a ReviewSession; the gateway does not check tokens.
package taidentity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KeySet manages active signing keys and verification of prior keys, so a
// rotation does not invalidate tokens issued just before it.
type KeySet interface {
	Sign(ctx context.Context, claims jwt.Claims) (string, error)
	KeyFunc() jwt.Keyfunc
}

type signingKey struct {
	private  ed25519.PrivateKey
	issuedAt time.Time
}

// InMemoryKeySet holds Ed25519 signing keys in memory. A key is retained
// for verification until it is older than retention, at which point
// Rotate evicts it: a token signed just before a rotation stays verifiable
// only while its signing key is retained (see NewInMemoryKeySet).
type InMemoryKeySet struct {
	mu         sync.RWMutex
	currentKID string
	keys       map[string]signingKey
	retention  time.Duration
}

// NewInMemoryKeySet generates an initial signing key and retains prior
// keys for retention after they are superseded. Pass a retention at least
// as long as the longest-lived capability manifest or session token
// signed against this key set, or tokens issued just before a rotation
// will fail verification once their signing key is evicted.
func NewInMemoryKeySet(retention time.Duration) (*InMemoryKeySet, error) {
	ks := &InMemoryKeySet{keys: make(map[string]signingKey), retention: retention}
	if err := ks.Rotate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// Rotate generates a new active key and evicts any key that has been
// superseded for longer than the key set's retention.
func (ks *InMemoryKeySet) Rotate() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("taidentity: generate key: %w", err)
	}

	now := time.Now()
	kid := fmt.Sprintf("key-%d", now.UnixNano())
	ks.keys[kid] = signingKey{private: privateKey, issuedAt: now}
	ks.currentKID = kid

	for k, sk := range ks.keys {
		if k != kid && now.Sub(sk.issuedAt) > ks.retention {
			delete(ks.keys, k)
		}
	}
	return nil
}

// Sign signs claims with the current active key.
func (ks *InMemoryKeySet) Sign(_ context.Context, claims jwt.Claims) (string, error) {
	ks.mu.RLock()
	key := ks.keys[ks.currentKID].private
	kid := ks.currentKID
	ks.mu.RUnlock()

	if key == nil {
		return "", fmt.Errorf("taidentity: no active signing key")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

// KeyFunc resolves the verification key for a token by its kid header.
func (ks *InMemoryKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("taidentity: unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("taidentity: missing kid in header")
		}

		ks.mu.RLock()
		defer ks.mu.RUnlock()
		sk, exists := ks.keys[kid]
		if !exists {
			return nil, fmt.Errorf("taidentity: key not found: %s", kid)
		}
		return sk.private.Public(), nil
	}
}

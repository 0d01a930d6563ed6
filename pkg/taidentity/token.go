package taidentity

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PrincipalType distinguishes a human reviewer from an autonomous agent.
type PrincipalType string

const (
	PrincipalReviewer PrincipalType = "reviewer"
	PrincipalAgent    PrincipalType = "agent"
)

// IdentityClaims extends the standard registered claims with the fields
// the gateway and ReviewSession need to authorize an action.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Type  PrincipalType `json:"type"`
	Roles []string      `json:"roles,omitempty"`
}

// HasRole reports whether the claims carry the given role.
func (c IdentityClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// TokenManager issues and validates IdentityClaims-bearing JWTs.
type TokenManager struct {
	keySet KeySet
	issuer string
}

// NewTokenManager returns a manager signing/verifying with ks, stamping
// tokens with issuer.
func NewTokenManager(ks KeySet, issuer string) *TokenManager {
	return &TokenManager{keySet: ks, issuer: issuer}
}

// GenerateToken issues a signed token for subject, valid for duration,
// carrying the given principal type and roles.
func (tm *TokenManager) GenerateToken(subject string, principal PrincipalType, roles []string, duration time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        subject,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			Issuer:    tm.issuer,
			Audience:  jwt.ClaimStrings{"trusted-autonomy.internal"},
		},
		Type:  principal,
		Roles: roles,
	}
	return tm.keySet.Sign(context.Background(), claims)
}

// ValidateToken parses and verifies a token string, returning its claims.
func (tm *TokenManager) ValidateToken(tokenString string) (*IdentityClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, tm.keySet.KeyFunc())
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}

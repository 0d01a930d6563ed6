package draftpkg

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/trusted-autonomy/ta/pkg/taidentity"
)

// NotAReviewer is returned when a token presented to open a ReviewSession
// does not carry the reviewer principal type.
type NotAReviewer struct {
	Subject string
}

func (e *NotAReviewer) Error() string {
	return fmt.Sprintf("draftpkg: %s is not a reviewer principal", e.Subject)
}

// NewReviewSessionFromToken validates tokenString against tm and, only if
// it carries the reviewer principal type, opens an Active session stamped
// with the token's subject. This is the gateway-facing entry point for
// opening a session: callers outside the gateway should not construct a
// ReviewSession directly from an unauthenticated reviewer name.
func NewReviewSessionFromToken(tm *taidentity.TokenManager, tokenString string, draftPackageID uuid.UUID) (ReviewSession, error) {
	claims, err := tm.ValidateToken(tokenString)
	if err != nil {
		return ReviewSession{}, err
	}
	if claims.Type != taidentity.PrincipalReviewer {
		return ReviewSession{}, &NotAReviewer{Subject: claims.Subject}
	}
	return NewReviewSession(draftPackageID, claims.Subject), nil
}

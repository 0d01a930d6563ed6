package draftpkg

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReviewState is a ReviewSession's lifecycle state.
type ReviewState string

const (
	ReviewActive    ReviewState = "active"
	ReviewCompleted ReviewState = "completed"
	ReviewAborted   ReviewState = "aborted"
)

// ArtifactReview is one reviewer verdict recorded against a resource URI.
type ArtifactReview struct {
	Disposition Disposition `json:"disposition"`
	Comments    string      `json:"comments,omitempty"`
	RecordedAt  time.Time   `json:"recorded_at"`
}

// ReviewSession tracks one reviewer's pass over a draft package. A later
// review of a resource_uri replaces its ArtifactReviews entry and
// re-stamps RecordedAt; the prior verdict is not kept, and
// ReviewSessionStore.Save overwrites the session's file, so no review
// history is preserved.
type ReviewSession struct {
	SessionID       uuid.UUID                 `json:"session_id"`
	DraftPackageID  uuid.UUID                 `json:"draft_package_id"`
	Reviewer        string                    `json:"reviewer"`
	ArtifactReviews map[string]ArtifactReview `json:"artifact_reviews"`
	State           ReviewState               `json:"state"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// NewReviewSession opens an Active session for a reviewer against a draft
// package. reviewer is the JWT subject validated by the gateway before the
// session is allowed to open.
func NewReviewSession(draftPackageID uuid.UUID, reviewer string) ReviewSession {
	now := time.Now().UTC()
	return ReviewSession{
		SessionID:       uuid.New(),
		DraftPackageID:  draftPackageID,
		Reviewer:        reviewer,
		ArtifactReviews: make(map[string]ArtifactReview),
		State:           ReviewActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// SessionClosed is returned when a mutation is attempted on a session that
// is no longer Active.
type SessionClosed struct {
	SessionID uuid.UUID
	State     ReviewState
}

func (e *SessionClosed) Error() string {
	return fmt.Sprintf("draftpkg: review session %s is %s, not active", e.SessionID, e.State)
}

// RecordDisposition sets the reviewer's verdict for a single resource URI.
func (s *ReviewSession) RecordDisposition(resourceURI string, disposition Disposition, comments string) error {
	if s.State != ReviewActive {
		return &SessionClosed{SessionID: s.SessionID, State: s.State}
	}
	s.ArtifactReviews[resourceURI] = ArtifactReview{
		Disposition: disposition,
		Comments:    comments,
		RecordedAt:  time.Now().UTC(),
	}
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// ApplyTo copies the session's recorded dispositions onto the package's
// artifacts, leaving artifacts the session never touched untouched.
func (s *ReviewSession) ApplyTo(pkg *DraftPackage) {
	for i, a := range pkg.Artifacts {
		if review, ok := s.ArtifactReviews[a.ResourceURI]; ok {
			pkg.Artifacts[i].Disposition = review.Disposition
		}
	}
}

// Complete closes the session as Completed, refusing if it is not Active.
func (s *ReviewSession) Complete() error {
	if s.State != ReviewActive {
		return &SessionClosed{SessionID: s.SessionID, State: s.State}
	}
	s.State = ReviewCompleted
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Abort closes the session as Aborted, refusing if it is not Active.
func (s *ReviewSession) Abort() error {
	if s.State != ReviewActive {
		return &SessionClosed{SessionID: s.SessionID, State: s.State}
	}
	s.State = ReviewAborted
	s.UpdatedAt = time.Now().UTC()
	return nil
}

package policy

import (
	"time"

	"github.com/google/uuid"
)

// Grant is one entry in a CapabilityManifest: the agent may invoke tool
// with verb against any resource URI matching ResourcePattern (scheme-aware
// glob, see MatchesURIPattern). Condition is an optional CEL expression
// evaluated against the request context after the glob match succeeds;
// empty means unconditional.
type Grant struct {
	Tool            string `json:"tool"`
	Verb            string `json:"verb"`
	ResourcePattern string `json:"resource_pattern"`
	Condition       string `json:"condition,omitempty"`

	// ForceApproval marks a grant compiled from an AlignmentProfile
	// escalation_trigger: matching it is always RequireApproval, independent
	// of whether Verb is in the side-effect set.
	ForceApproval bool `json:"force_approval,omitempty"`
}

// Manifest is the time-bounded grant list issued to one agent for one
// goal. A goal's manifest is issued when the goal is Configured and expires
// by wall clock; a new manifest requires re-approval (re-Configure).
type Manifest struct {
	ManifestID uuid.UUID `json:"manifest_id"`
	AgentID    string    `json:"agent_id"`
	Grants     []Grant   `json:"grants"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsExpired reports whether now is past ExpiresAt.
func (m Manifest) IsExpired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

// NewManifest builds a Manifest with a fresh id, issued now, expiring after ttl.
func NewManifest(agentID string, grants []Grant, ttl time.Duration) Manifest {
	now := time.Now().UTC()
	return Manifest{
		ManifestID: uuid.New(),
		AgentID:    agentID,
		Grants:     grants,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}
}

// sideEffectVerbs always require human approval even when an explicit
// grant matches (spec invariant 5).
var sideEffectVerbs = map[string]bool{
	"apply":  true,
	"commit": true,
	"send":   true,
	"post":   true,
}

// IsSideEffectVerb reports whether verb always requires approval.
func IsSideEffectVerb(verb string) bool {
	return sideEffectVerbs[verb]
}

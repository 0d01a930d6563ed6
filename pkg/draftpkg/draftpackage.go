package draftpkg

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trusted-autonomy/ta/pkg/canonicalize"
	"github.com/trusted-autonomy/ta/pkg/policy"
)

// Status is a DraftPackage's place in its review lifecycle.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusDenied     Status = "denied"
	StatusApplied    Status = "applied"
	StatusSuperseded Status = "superseded"
)

// Signatures carries the package's integrity hash and, reserved for a
// future signing phase, an agent-produced signature over it.
type Signatures struct {
	PackageHash    string `json:"package_hash"`
	AgentSignature string `json:"agent_signature,omitempty"`
}

// DraftPackage is an immutable bundle of artifacts built from an overlay
// diff, reviewed and selectively applied back to the source tree.
type DraftPackage struct {
	PackageID      uuid.UUID      `json:"package_id"`
	PackageVersion int            `json:"package_version"`
	CreatedAt      time.Time      `json:"created_at"`
	GoalRunID      uuid.UUID      `json:"goal"`
	Iteration      int            `json:"iteration"`
	AgentIdentity  string         `json:"agent_identity"`
	Summary        string         `json:"summary"`
	Plan           string         `json:"plan,omitempty"`
	Artifacts      []Artifact     `json:"artifacts"`
	Risk           []string       `json:"risk,omitempty"`
	Provenance     map[string]any `json:"provenance,omitempty"`
	ReviewRequests []string       `json:"review_requests,omitempty"`
	Signatures     Signatures     `json:"signatures"`
	Status         Status         `json:"status"`
	SupersededBy   *uuid.UUID     `json:"superseded_by,omitempty"`
}

// Build constructs a Draft-status package from a goal and its artifacts.
// Every artifact starts Pending. package_hash is computed immediately over
// the canonicalized package, excluding signatures and status per spec
// invariant 8.
func Build(goalRunID uuid.UUID, agentIdentity, summary string, artifacts []Artifact, iteration int) (DraftPackage, error) {
	for i := range artifacts {
		artifacts[i].Disposition = DispositionPending
	}

	pkg := DraftPackage{
		PackageID:      uuid.New(),
		PackageVersion: 1,
		CreatedAt:      time.Now().UTC(),
		GoalRunID:      goalRunID,
		Iteration:      iteration,
		AgentIdentity:  agentIdentity,
		Summary:        summary,
		Artifacts:      artifacts,
		Status:         StatusDraft,
	}

	hash, err := pkg.computeHash()
	if err != nil {
		return DraftPackage{}, err
	}
	pkg.Signatures.PackageHash = hash
	return pkg, nil
}

// hashableView excludes Signatures and Status from the canonicalized form,
// per spec invariant 8.
type hashableView struct {
	PackageID      uuid.UUID      `json:"package_id"`
	PackageVersion int            `json:"package_version"`
	CreatedAt      time.Time      `json:"created_at"`
	GoalRunID      uuid.UUID      `json:"goal"`
	Iteration      int            `json:"iteration"`
	AgentIdentity  string         `json:"agent_identity"`
	Summary        string         `json:"summary"`
	Plan           string         `json:"plan,omitempty"`
	Artifacts      []Artifact     `json:"artifacts"`
	Risk           []string       `json:"risk,omitempty"`
	Provenance     map[string]any `json:"provenance,omitempty"`
	ReviewRequests []string       `json:"review_requests,omitempty"`
}

func (p DraftPackage) computeHash() (string, error) {
	view := hashableView{
		PackageID:      p.PackageID,
		PackageVersion: p.PackageVersion,
		CreatedAt:      p.CreatedAt,
		GoalRunID:      p.GoalRunID,
		Iteration:      p.Iteration,
		AgentIdentity:  p.AgentIdentity,
		Summary:        p.Summary,
		Plan:           p.Plan,
		Artifacts:      p.Artifacts,
		Risk:           p.Risk,
		Provenance:     p.Provenance,
		ReviewRequests: p.ReviewRequests,
	}
	return canonicalize.CanonicalHash(view)
}

// IntegrityViolation is returned when a recomputed package_hash does not
// match the stored value, e.g. after a serialize/deserialize round trip.
type IntegrityViolation struct {
	Expected string
	Actual   string
}

func (e *IntegrityViolation) Error() string {
	return fmt.Sprintf("draftpkg: package_hash mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// VerifyIntegrity recomputes the package hash and compares it to the
// stored Signatures.PackageHash.
func (p DraftPackage) VerifyIntegrity() error {
	hash, err := p.computeHash()
	if err != nil {
		return err
	}
	if hash != p.Signatures.PackageHash {
		return &IntegrityViolation{Expected: p.Signatures.PackageHash, Actual: hash}
	}
	return nil
}

// InvalidStatusTransition is returned when a caller attempts a status
// change the package's lifecycle does not permit.
type InvalidStatusTransition struct {
	From Status
	To   Status
}

func (e *InvalidStatusTransition) Error() string {
	return fmt.Sprintf("draftpkg: invalid status transition from %s to %s", e.From, e.To)
}

var statusEdges = map[Status][]Status{
	StatusDraft:    {StatusPending, StatusSuperseded},
	StatusPending:  {StatusApproved, StatusDenied, StatusSuperseded},
	StatusApproved: {StatusApplied, StatusSuperseded},
	// Denied, Applied, Superseded are terminal: once superseded a package
	// becomes immutable (resolved Open Question (b), see DESIGN.md).
}

// Transition moves the package to the target status if the edge is
// permitted.
func (p *DraftPackage) Transition(to Status) error {
	allowed := statusEdges[p.Status]
	for _, s := range allowed {
		if s == to {
			p.Status = to
			return nil
		}
	}
	return &InvalidStatusTransition{From: p.Status, To: to}
}

// Supersede marks p as superseded by newer, refusing if p has already been
// Applied (an applied package's artifacts already reached the source tree
// and cannot be retroactively un-applied by a supersede).
func (p *DraftPackage) Supersede(newer uuid.UUID) error {
	if p.Status == StatusApplied {
		return &InvalidStatusTransition{From: p.Status, To: StatusSuperseded}
	}
	if err := p.Transition(StatusSuperseded); err != nil {
		return err
	}
	p.SupersededBy = &newer
	return nil
}

// CanApply reports whether the package currently satisfies the apply gate:
// status must be Approved, no artifact may be Pending or Discuss, and no
// artifact may be Rejected unless skipRejected is true.
func (p DraftPackage) CanApply(skipRejected bool) error {
	if p.Status != StatusApproved {
		return fmt.Errorf("draftpkg: cannot apply package in status %s, must be approved", p.Status)
	}
	for _, a := range p.Artifacts {
		switch a.Disposition {
		case DispositionPending, DispositionDiscuss:
			return fmt.Errorf("draftpkg: cannot apply while artifact %s is %s", a.ResourceURI, a.Disposition)
		case DispositionRejected:
			if !skipRejected {
				return fmt.Errorf("draftpkg: cannot apply while artifact %s is rejected (use skip-rejected)", a.ResourceURI)
			}
		}
	}
	return nil
}

// SelectedURIs returns the resource URIs of the artifacts written during
// apply: the Approved ones only. Rejected artifacts are never included;
// whether a Rejected artifact blocks apply at all is decided by
// CanApply(skipRejected), not here.
func (p DraftPackage) SelectedURIs() []string {
	var uris []string
	for _, a := range p.Artifacts {
		if a.Disposition == DispositionApproved {
			uris = append(uris, a.ResourceURI)
		}
	}
	return uris
}

// ApplyPatterns resolves the `--approve`/`--reject`/`--discuss` flags a
// reviewer supplies at apply-time into per-artifact dispositions. Each
// pattern is matched against every artifact's ResourceURI with the same
// scheme-aware glob rules the policy engine uses for capability grants
// (policy.MatchesURIPattern), so a bare pattern like "B.rs" matches
// fs://workspace/B.rs. Patterns are applied in approve, reject, discuss
// order, so a later category wins when an artifact's URI matches more
// than one list — e.g. --approve '**' --reject B.rs approves everything
// except B.rs, which ends up Rejected. An artifact matching no pattern
// keeps its current disposition.
func (p *DraftPackage) ApplyPatterns(approve, reject, discuss []string) error {
	apply := func(patterns []string, disposition Disposition) error {
		for _, pattern := range patterns {
			matched := false
			for i := range p.Artifacts {
				if policy.MatchesURIPattern(pattern, p.Artifacts[i].ResourceURI) {
					p.Artifacts[i].Disposition = disposition
					matched = true
				}
			}
			if !matched {
				return fmt.Errorf("draftpkg: pattern %q matched no artifact", pattern)
			}
		}
		return nil
	}

	if err := apply(approve, DispositionApproved); err != nil {
		return err
	}
	if err := apply(reject, DispositionRejected); err != nil {
		return err
	}
	if err := apply(discuss, DispositionDiscuss); err != nil {
		return err
	}
	return nil
}

// MarshalForStorage renders the package as pretty JSON for file persistence.
func (p DraftPackage) MarshalForStorage() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

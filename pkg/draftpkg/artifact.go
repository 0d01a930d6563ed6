// Package draftpkg implements the draft package model: an immutable bundle
// of per-artifact changes with tiered explanations and reviewer
// dispositions, built from an overlay diff.
package draftpkg

// ChangeType names how an artifact's resource changed.
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeModify ChangeType = "modify"
	ChangeDelete ChangeType = "delete"
	ChangeRename ChangeType = "rename"
)

// Disposition is a reviewer's verdict on one artifact.
type Disposition string

const (
	DispositionPending  Disposition = "pending"
	DispositionApproved Disposition = "approved"
	DispositionRejected Disposition = "rejected"
	DispositionDiscuss  Disposition = "discuss"
)

// ExplanationTiers is the optional tiered explanation attached to an
// artifact, sourced from a `<file>.diff.explanation.yaml` sidecar.
type ExplanationTiers struct {
	Summary          string   `yaml:"summary" json:"summary"`
	Explanation      string   `yaml:"explanation,omitempty" json:"explanation,omitempty"`
	Tags             []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	RelatedArtifacts []string `yaml:"related_artifacts,omitempty" json:"related_artifacts,omitempty"`
}

// Artifact is one file-level change inside a draft package.
type Artifact struct {
	ResourceURI string            `json:"resource_uri"`
	ChangeType  ChangeType        `json:"change_type"`
	DiffRef     string            `json:"diff_ref"` // changeset id
	Explanation *ExplanationTiers `json:"explanation_tiers,omitempty"`
	Rationale   string            `json:"rationale,omitempty"`
	Disposition Disposition       `json:"disposition"`
}

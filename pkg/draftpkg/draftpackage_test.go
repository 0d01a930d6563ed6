package draftpkg

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func sampleArtifacts() []Artifact {
	return []Artifact{
		{ResourceURI: "fs://workspace/main.go", ChangeType: ChangeModify, DiffRef: "cs-1"},
		{ResourceURI: "fs://workspace/new.go", ChangeType: ChangeAdd, DiffRef: "cs-2"},
	}
}

func TestBuildComputesStableHash(t *testing.T) {
	goalID := uuid.New()
	pkg, err := Build(goalID, "agent-1", "refactor auth", sampleArtifacts(), 1)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, pkg.Status)
	require.NotEmpty(t, pkg.Signatures.PackageHash)
	for _, a := range pkg.Artifacts {
		require.Equal(t, DispositionPending, a.Disposition)
	}

	require.NoError(t, pkg.VerifyIntegrity())
}

func TestHashRoundTripsThroughJSON(t *testing.T) {
	pkg, err := Build(uuid.New(), "agent-1", "summary", sampleArtifacts(), 1)
	require.NoError(t, err)

	raw, err := pkg.MarshalForStorage()
	require.NoError(t, err)

	var decoded DraftPackage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NoError(t, decoded.VerifyIntegrity())
}

func TestHashDetectsTamperedArtifact(t *testing.T) {
	pkg, err := Build(uuid.New(), "agent-1", "summary", sampleArtifacts(), 1)
	require.NoError(t, err)

	pkg.Artifacts[0].Rationale = "tampered after hashing"

	err = pkg.VerifyIntegrity()
	require.Error(t, err)
	var violation *IntegrityViolation
	require.ErrorAs(t, err, &violation)
}

func TestStatusLifecycleHappyPath(t *testing.T) {
	pkg, err := Build(uuid.New(), "agent-1", "summary", sampleArtifacts(), 1)
	require.NoError(t, err)

	require.NoError(t, pkg.Transition(StatusPending))
	require.NoError(t, pkg.Transition(StatusApproved))
	require.NoError(t, pkg.Transition(StatusApplied))
	require.Equal(t, StatusApplied, pkg.Status)
}

func TestStatusLifecycleRejectsSkippedEdge(t *testing.T) {
	pkg, err := Build(uuid.New(), "agent-1", "summary", sampleArtifacts(), 1)
	require.NoError(t, err)

	err = pkg.Transition(StatusApproved)
	require.Error(t, err)
	var invalid *InvalidStatusTransition
	require.ErrorAs(t, err, &invalid)
}

func TestSupersedeRefusedAfterApplied(t *testing.T) {
	pkg, err := Build(uuid.New(), "agent-1", "summary", sampleArtifacts(), 1)
	require.NoError(t, err)
	require.NoError(t, pkg.Transition(StatusPending))
	require.NoError(t, pkg.Transition(StatusApproved))
	require.NoError(t, pkg.Transition(StatusApplied))

	err = pkg.Supersede(uuid.New())
	require.Error(t, err)
}

func TestSupersedeMarksImmutablePredecessor(t *testing.T) {
	pkg, err := Build(uuid.New(), "agent-1", "summary", sampleArtifacts(), 1)
	require.NoError(t, err)

	newer := uuid.New()
	require.NoError(t, pkg.Supersede(newer))
	require.Equal(t, StatusSuperseded, pkg.Status)
	require.Equal(t, newer, *pkg.SupersededBy)

	require.Error(t, pkg.Transition(StatusPending))
}

func TestCanApplyGatesOnOutstandingArtifacts(t *testing.T) {
	pkg, err := Build(uuid.New(), "agent-1", "summary", sampleArtifacts(), 1)
	require.NoError(t, err)
	require.NoError(t, pkg.Transition(StatusPending))
	require.NoError(t, pkg.Transition(StatusApproved))

	require.Error(t, pkg.CanApply(false), "artifacts are still pending")

	pkg.Artifacts[0].Disposition = DispositionApproved
	pkg.Artifacts[1].Disposition = DispositionRejected

	require.Error(t, pkg.CanApply(false), "a rejected artifact blocks apply without skip")
	require.NoError(t, pkg.CanApply(true))

	require.Equal(t, []string{"fs://workspace/main.go"}, pkg.SelectedURIs())
}

func TestCanApplyRequiresApprovedStatus(t *testing.T) {
	pkg, err := Build(uuid.New(), "agent-1", "summary", sampleArtifacts(), 1)
	require.NoError(t, err)
	require.Error(t, pkg.CanApply(true))
}

// TestApplyPatternsSelectiveReject mirrors the "approve A/B/C then reject
// B" scenario: a reviewer approves everything with "**" and then carves
// out a single rejection by exact name, leaving A and C applied and B
// rejected.
func TestApplyPatternsSelectiveReject(t *testing.T) {
	artifacts := []Artifact{
		{ResourceURI: "fs://workspace/A.rs", ChangeType: ChangeModify, DiffRef: "cs-a"},
		{ResourceURI: "fs://workspace/B.rs", ChangeType: ChangeModify, DiffRef: "cs-b"},
		{ResourceURI: "fs://workspace/C.rs", ChangeType: ChangeModify, DiffRef: "cs-c"},
	}
	pkg, err := Build(uuid.New(), "agent-1", "summary", artifacts, 1)
	require.NoError(t, err)
	require.NoError(t, pkg.Transition(StatusPending))
	require.NoError(t, pkg.Transition(StatusApproved))

	require.NoError(t, pkg.ApplyPatterns([]string{"**"}, []string{"B.rs"}, nil))

	require.Equal(t, DispositionApproved, pkg.Artifacts[0].Disposition)
	require.Equal(t, DispositionRejected, pkg.Artifacts[1].Disposition)
	require.Equal(t, DispositionApproved, pkg.Artifacts[2].Disposition)

	require.NoError(t, pkg.CanApply(true))
	require.Equal(t, []string{"fs://workspace/A.rs", "fs://workspace/C.rs"}, pkg.SelectedURIs())
}

func TestApplyPatternsDiscussOverridesApprove(t *testing.T) {
	artifacts := []Artifact{
		{ResourceURI: "fs://workspace/A.rs", ChangeType: ChangeModify, DiffRef: "cs-a"},
	}
	pkg, err := Build(uuid.New(), "agent-1", "summary", artifacts, 1)
	require.NoError(t, err)

	require.NoError(t, pkg.ApplyPatterns([]string{"A.rs"}, nil, []string{"A.rs"}))
	require.Equal(t, DispositionDiscuss, pkg.Artifacts[0].Disposition)
}

func TestApplyPatternsErrorsOnUnmatchedPattern(t *testing.T) {
	pkg, err := Build(uuid.New(), "agent-1", "summary", sampleArtifacts(), 1)
	require.NoError(t, err)

	err = pkg.ApplyPatterns(nil, []string{"nope.rs"}, nil)
	require.Error(t, err)
}

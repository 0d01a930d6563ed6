package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCompilerBuildsManifestFromDefaultProfile(t *testing.T) {
	c := NewCompiler(time.Hour)
	profile := DefaultDeveloperProfile("agent-1")

	m, err := c.Compile(profile, "agent-1")
	require.NoError(t, err)
	require.Equal(t, "agent-1", m.AgentID)
	require.NotEmpty(t, m.Grants)

	eng, err := NewEngine()
	require.NoError(t, err)
	eng.IssueManifest(m)

	dec, err := eng.Evaluate(context.Background(), Request{
		AgentID: "agent-1", Tool: "fs", Verb: "read", ResourceURI: "fs://workspace/main.go",
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeAllow, dec.Outcome)
}

func TestCompilerRejectsOverlappingActions(t *testing.T) {
	c := NewCompiler(time.Hour)
	profile := AlignmentProfile{
		Principal:    "agent-1",
		Constitution: "default-v1",
		AutonomyEnvelope: AutonomyEnvelope{
			BoundedActions:   []ActionPattern{{Tool: "fs", Verb: "write", ResourcePattern: "**"}},
			ForbiddenActions: []ActionPattern{{Tool: "fs", Verb: "write", ResourcePattern: "**"}},
		},
	}

	_, err := c.Compile(profile, "agent-1")
	require.Error(t, err)
	var overlap *OverlappingActions
	require.ErrorAs(t, err, &overlap)
}

func TestCompilerRejectsUnsupportedConstitution(t *testing.T) {
	c := NewCompiler(time.Hour)
	profile := AlignmentProfile{Principal: "agent-1", Constitution: "3.0.0"}

	_, err := c.Compile(profile, "agent-1")
	require.Error(t, err)
}

func TestEscalationTriggerForcesApprovalEvenOnReadVerb(t *testing.T) {
	c := NewCompiler(time.Hour)
	profile := AlignmentProfile{
		Principal:    "agent-1",
		Constitution: "default-v1",
		AutonomyEnvelope: AutonomyEnvelope{
			EscalationTriggers: []ActionPattern{{Tool: "fs", Verb: "read", ResourcePattern: "**/secrets/**"}},
		},
	}
	m, err := c.Compile(profile, "agent-1")
	require.NoError(t, err)

	eng, err := NewEngine()
	require.NoError(t, err)
	eng.IssueManifest(m)

	dec, err := eng.Evaluate(context.Background(), Request{
		AgentID: "agent-1", Tool: "fs", Verb: "read", ResourceURI: "fs://workspace/secrets/token.txt",
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeRequireApproval, dec.Outcome)
}

func TestCompilerRejectsProfileFailingSchema(t *testing.T) {
	c := NewCompiler(time.Hour)
	profile := AlignmentProfile{
		Principal:    "agent-1",
		Constitution: "default-v1",
		AutonomyEnvelope: AutonomyEnvelope{
			BoundedActions: []ActionPattern{{Tool: "fs", ResourcePattern: "**"}},
		},
	}

	_, err := c.Compile(profile, "agent-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "schema validation")
}

func TestCompilerAcceptsProfileWithOnlyForbiddenActions(t *testing.T) {
	c := NewCompiler(time.Hour)
	profile := AlignmentProfile{
		Principal:    "agent-1",
		Constitution: "default-v1",
		AutonomyEnvelope: AutonomyEnvelope{
			ForbiddenActions: []ActionPattern{{Tool: "net", Verb: "post", ResourcePattern: "**"}},
		},
	}

	_, err := c.Compile(profile, "agent-1")
	require.NoError(t, err)
}

package policy

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ActionPattern names one action an AlignmentProfile grants, escalates, or
// forbids: a (tool, verb, resource_pattern) tuple with an optional CEL
// condition.
type ActionPattern struct {
	Tool            string `yaml:"tool" json:"tool"`
	Verb            string `yaml:"verb" json:"verb"`
	ResourcePattern string `yaml:"resource_pattern" json:"resource_pattern"`
	Condition       string `yaml:"condition,omitempty" json:"condition,omitempty"`
}

func (a ActionPattern) key() string {
	return a.Tool + "\x00" + a.Verb + "\x00" + a.ResourcePattern
}

// AutonomyEnvelope is the operator-authored boundary on what an agent may
// do without a human in the loop.
type AutonomyEnvelope struct {
	BoundedActions     []ActionPattern `yaml:"bounded_actions" json:"bounded_actions"`
	EscalationTriggers []ActionPattern `yaml:"escalation_triggers" json:"escalation_triggers"`
	ForbiddenActions   []ActionPattern `yaml:"forbidden_actions" json:"forbidden_actions"`
}

// CoordinationConfig names other agents and resources this agent may share
// state with. The policy engine does not enforce coordination, and Compile
// does not copy it into the manifest.
type CoordinationConfig struct {
	AllowedCollaborators []string `yaml:"allowed_collaborators,omitempty" json:"allowed_collaborators,omitempty"`
	SharedResources      []string `yaml:"shared_resources,omitempty" json:"shared_resources,omitempty"`
}

// AlignmentProfile is the operator's declarative autonomy envelope for one
// principal; the Compiler turns it into a CapabilityManifest at goal
// Configure time.
type AlignmentProfile struct {
	Principal        string           `yaml:"principal" json:"principal"`
	Constitution     string           `yaml:"constitution" json:"constitution"`
	AutonomyEnvelope AutonomyEnvelope `yaml:"autonomy_envelope" json:"autonomy_envelope"`
	Coordination     CoordinationConfig `yaml:"coordination,omitempty" json:"coordination,omitempty"`
}

// DefaultDeveloperProfile mirrors the reference "default-v1" developer
// envelope: read/write/apply the workspace, escalate on writes to go.mod or
// package.json, and never post to the network or read credentials.
func DefaultDeveloperProfile(principal string) AlignmentProfile {
	return AlignmentProfile{
		Principal:    principal,
		Constitution: "default-v1",
		AutonomyEnvelope: AutonomyEnvelope{
			BoundedActions: []ActionPattern{
				{Tool: "fs", Verb: "read", ResourcePattern: "**"},
				{Tool: "fs", Verb: "write", ResourcePattern: "**"},
				{Tool: "fs", Verb: "apply", ResourcePattern: "**"},
			},
			EscalationTriggers: []ActionPattern{
				{Tool: "fs", Verb: "write", ResourcePattern: "**/go.mod"},
				{Tool: "fs", Verb: "write", ResourcePattern: "**/package.json"},
			},
			ForbiddenActions: []ActionPattern{
				{Tool: "net", Verb: "post", ResourcePattern: "**"},
				{Tool: "credentials", Verb: "read", ResourcePattern: "**"},
			},
		},
	}
}

const actionPatternSchemaSource = `{
  "type": "object",
  "required": ["tool", "verb", "resource_pattern"],
  "properties": {
    "tool": {"type": "string", "minLength": 1},
    "verb": {"type": "string", "minLength": 1},
    "resource_pattern": {"type": "string", "minLength": 1},
    "condition": {"type": "string"}
  }
}`

const actionPatternListSchema = `{"type": ["array", "null"], "items": ` + actionPatternSchemaSource + `}`

const alignmentProfileSchemaSource = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["principal", "autonomy_envelope"],
  "properties": {
    "principal": {"type": "string", "minLength": 1},
    "constitution": {"type": "string"},
    "autonomy_envelope": {
      "type": "object",
      "properties": {
        "bounded_actions": ` + actionPatternListSchema + `,
        "escalation_triggers": ` + actionPatternListSchema + `,
        "forbidden_actions": ` + actionPatternListSchema + `
      }
    },
    "coordination": {
      "type": "object",
      "properties": {
        "allowed_collaborators": {"type": ["array", "null"], "items": {"type": "string"}},
        "shared_resources": {"type": ["array", "null"], "items": {"type": "string"}}
      }
    }
  }
}`

var (
	alignmentSchemaOnce sync.Once
	alignmentSchema     *jsonschema.Schema
	alignmentSchemaErr  error
)

func compiledAlignmentSchema() (*jsonschema.Schema, error) {
	alignmentSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("alignment_profile.json", strings.NewReader(alignmentProfileSchemaSource)); err != nil {
			alignmentSchemaErr = fmt.Errorf("policy: add alignment profile schema: %w", err)
			return
		}
		alignmentSchema, alignmentSchemaErr = compiler.Compile("alignment_profile.json")
	})
	return alignmentSchema, alignmentSchemaErr
}

// validateAgainstSchema round-trips profile through JSON and validates it
// against the embedded AlignmentProfile schema, the same acceptance gate
// an externally-authored profile document goes through before a human
// operator's declared autonomy envelope is trusted to compile into a
// capability manifest.
func validateAgainstSchema(profile AlignmentProfile) error {
	schema, err := compiledAlignmentSchema()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("policy: marshal profile for schema validation: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("policy: decode profile for schema validation: %w", err)
	}

	if err := schema.Validate(generic); err != nil {
		return fmt.Errorf("policy: alignment profile failed schema validation: %w", err)
	}
	return nil
}

// constitutionVersion maps the profile's constitution name to a semver.
// "default-v1" is the one named constitution shipped with the core; any
// other value must already parse as a semver string.
func constitutionVersion(constitution string) (*semver.Version, error) {
	if constitution == "" || constitution == "default-v1" {
		return semver.NewVersion("1.0.0")
	}
	return semver.NewVersion(constitution)
}

// supportedConstitutionRange is the engine's currently supported
// constitution schema range. A profile outside this range fails to
// compile: the engine has no evaluator for a schema it has never seen.
var supportedConstitutionRange = mustConstraint(">= 1.0.0, < 2.0.0")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Compiler compiles AlignmentProfiles into CapabilityManifests.
type Compiler struct {
	ttl time.Duration
}

// NewCompiler builds a Compiler that issues manifests with the given
// lifetime.
func NewCompiler(ttl time.Duration) *Compiler {
	return &Compiler{ttl: ttl}
}

// Compile turns profile into a Manifest for agentID. bounded_actions become
// Allow grants; escalation_triggers become ForceApproval grants;
// forbidden_actions contribute no grants (default-deny excludes them).
// Escalation grants precede bounded grants, so a trigger is matched before
// a broader bounded grant for the same tool and verb. Overlap between
// bounded and forbidden actions is a hard error, as is a constitution
// outside the engine's supported range.
func (c *Compiler) Compile(profile AlignmentProfile, agentID string) (Manifest, error) {
	if err := validateAgainstSchema(profile); err != nil {
		return Manifest{}, err
	}

	version, err := constitutionVersion(profile.Constitution)
	if err != nil {
		return Manifest{}, &InvalidPattern{Pattern: profile.Constitution, Reason: "not a valid constitution version: " + err.Error()}
	}
	if !supportedConstitutionRange.Check(version) {
		return Manifest{}, &InvalidPattern{Pattern: profile.Constitution, Reason: "constitution version outside supported range"}
	}

	forbidden := map[string]bool{}
	for _, a := range profile.AutonomyEnvelope.ForbiddenActions {
		forbidden[a.key()] = true
	}
	for _, a := range profile.AutonomyEnvelope.BoundedActions {
		if forbidden[a.key()] {
			return Manifest{}, &OverlappingActions{Action: a.key()}
		}
	}

	var grants []Grant
	for _, a := range profile.AutonomyEnvelope.EscalationTriggers {
		grants = append(grants, Grant{Tool: a.Tool, Verb: a.Verb, ResourcePattern: a.ResourcePattern, Condition: a.Condition, ForceApproval: true})
	}
	for _, a := range profile.AutonomyEnvelope.BoundedActions {
		grants = append(grants, Grant{Tool: a.Tool, Verb: a.Verb, ResourcePattern: a.ResourcePattern, Condition: a.Condition})
	}

	return NewManifest(agentID, grants, c.ttl), nil
}

//go:build property
// +build property

package policy_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/trusted-autonomy/ta/pkg/policy"
)

// TestPathTraversalAlwaysDenied: any resource URI containing a ".." segment
// is denied regardless of how permissive the issued manifest is.
func TestPathTraversalAlwaysDenied(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("traversal segments are always denied", prop.ForAll(
		func(prefix, suffix string) bool {
			engine, err := policy.NewEngine()
			if err != nil {
				return false
			}
			engine.IssueManifest(policy.NewManifest("agent-1", []policy.Grant{
				{Tool: "fs.read", Verb: "read", ResourcePattern: "**"},
			}, time.Hour))

			uri := fmt.Sprintf("fs://workspace/%s/../%s", prefix, suffix)
			decision, err := engine.Evaluate(context.Background(), policy.Request{
				AgentID: "agent-1", Tool: "fs.read", Verb: "read", ResourceURI: uri,
			})
			if err != nil {
				return false
			}
			return decision.Outcome == policy.OutcomeDeny
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestSideEffectVerbsAlwaysRequireApproval: for any grant matching a
// side-effect verb, the outcome is RequireApproval, never a bare Allow.
func TestSideEffectVerbsAlwaysRequireApproval(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	sideEffectVerbs := []string{"apply", "commit", "send", "post"}

	properties.Property("side-effect verbs never resolve to bare Allow", prop.ForAll(
		func(idx int, resource string) bool {
			verb := sideEffectVerbs[idx%len(sideEffectVerbs)]

			engine, err := policy.NewEngine()
			if err != nil {
				return false
			}
			engine.IssueManifest(policy.NewManifest("agent-1", []policy.Grant{
				{Tool: "ops." + verb, Verb: verb, ResourcePattern: "fs://workspace/**"},
			}, time.Hour))

			uri := "fs://workspace/" + resource
			decision, err := engine.Evaluate(context.Background(), policy.Request{
				AgentID: "agent-1", Tool: "ops." + verb, Verb: verb, ResourceURI: uri,
			})
			if err != nil {
				return false
			}
			return decision.Outcome == policy.OutcomeRequireApproval
		},
		gen.IntRange(0, 1000),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

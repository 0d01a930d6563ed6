// Package policy implements TA's capability-based policy engine: every
// mediated tool call is evaluated against a time-bounded, per-agent
// CapabilityManifest before it is allowed to reach a connector.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/trusted-autonomy/ta/pkg/ratelimit"
)

// Outcome is the result of evaluating a Request.
type Outcome string

const (
	OutcomeAllow           Outcome = "allow"
	OutcomeDeny            Outcome = "deny"
	OutcomeRequireApproval Outcome = "require_approval"
)

// Request is the tuple every gateway tool call is evaluated against.
type Request struct {
	AgentID     string
	Tool        string
	Verb        string
	ResourceURI string
	// Context carries extra attributes (e.g. risk_score) CEL conditions may reference.
	Context map[string]any
}

// Step records the examination of a single grant during evaluation.
type Step struct {
	Grant   Grant  `json:"grant"`
	Matched bool   `json:"matched"`
	Reason  string `json:"reason"`
}

// Trace is the full evaluation record attached to a Decision, audited
// verbatim as the PolicyDecision event's metadata.
type Trace struct {
	Steps     []Step `json:"steps"`
	Rationale string `json:"rationale"`
}

// Decision is the outcome of evaluating a Request, with its trace.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Trace   Trace   `json:"trace"`
}

// Engine evaluates Requests against issued manifests. It is default-deny:
// absence of a manifest, an expired manifest, or absence of a matching
// grant all deny.
type Engine struct {
	mu        sync.RWMutex
	manifests map[string]Manifest // agentID -> current manifest
	celEnv    *cel.Env
	limiter   ratelimit.Limiter
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLimiter attaches a rate limiter consulted before the grant walk.
// Denying on rate limit is an additive restriction layered on top of the
// grant model, never a substitute for it.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(e *Engine) { e.limiter = l }
}

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the engine's notion of "now"; used by tests to
// exercise manifest expiry deterministically.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds a policy Engine with a CEL environment for grant
// conditions, mirroring the teacher's governance.PolicyEngine setup.
func NewEngine(opts ...Option) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("tool", cel.StringType),
		cel.Variable("verb", cel.StringType),
		cel.Variable("resource", cel.StringType),
		cel.Variable("agent", cel.StringType),
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: cel env: %w", err)
	}

	e := &Engine{
		manifests: map[string]Manifest{},
		celEnv:    env,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// IssueManifest installs manifest as the current manifest for its agent,
// replacing any prior one. Issuing a manifest is how a GoalRun's Configure
// transition grants capabilities to its agent.
func (e *Engine) IssueManifest(m Manifest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.manifests[m.AgentID] = m
}

// Manifest returns the currently issued manifest for agentID, if any.
func (e *Engine) Manifest(agentID string) (Manifest, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.manifests[agentID]
	return m, ok
}

// Evaluate runs the full decision procedure in §4.5 of the specification.
func (e *Engine) Evaluate(ctx context.Context, req Request) (Decision, error) {
	if ContainsPathTraversal(req.ResourceURI) {
		return Decision{
			Outcome: OutcomeDeny,
			Trace:   Trace{Rationale: "path traversal rejected"},
		}, nil
	}

	if e.limiter != nil {
		allowed, err := e.limiter.Allow(ctx, req.AgentID+":"+req.Verb)
		if err != nil {
			return Decision{}, fmt.Errorf("policy: rate limiter: %w", err)
		}
		if !allowed {
			return Decision{
				Outcome: OutcomeDeny,
				Trace:   Trace{Rationale: "rate_limited"},
			}, nil
		}
	}

	e.mu.RLock()
	manifest, ok := e.manifests[req.AgentID]
	e.mu.RUnlock()

	if !ok {
		return Decision{
			Outcome: OutcomeDeny,
			Trace:   Trace{Rationale: fmt.Sprintf("no manifest issued for agent %q", req.AgentID)},
		}, nil
	}

	if manifest.IsExpired(e.now()) {
		return Decision{
			Outcome: OutcomeDeny,
			Trace:   Trace{Rationale: "manifest expired"},
		}, nil
	}

	trace := Trace{}
	for _, grant := range manifest.Grants {
		if grant.Tool != req.Tool || grant.Verb != req.Verb {
			trace.Steps = append(trace.Steps, Step{Grant: grant, Matched: false, Reason: "tool/verb mismatch"})
			continue
		}
		if !MatchesURIPattern(grant.ResourcePattern, req.ResourceURI) {
			trace.Steps = append(trace.Steps, Step{Grant: grant, Matched: false, Reason: "resource pattern mismatch"})
			continue
		}

		if grant.Condition != "" {
			ok, err := e.evalCondition(grant.Condition, req)
			if err != nil {
				trace.Steps = append(trace.Steps, Step{Grant: grant, Matched: false, Reason: fmt.Sprintf("condition error: %v", err)})
				continue
			}
			if !ok {
				trace.Steps = append(trace.Steps, Step{Grant: grant, Matched: false, Reason: "condition not satisfied"})
				continue
			}
		}

		trace.Steps = append(trace.Steps, Step{Grant: grant, Matched: true, Reason: "grant matched"})

		if IsSideEffectVerb(req.Verb) || grant.ForceApproval {
			trace.Rationale = "granted, but verb requires approval"
			return Decision{Outcome: OutcomeRequireApproval, Trace: trace}, nil
		}
		trace.Rationale = "granted"
		return Decision{Outcome: OutcomeAllow, Trace: trace}, nil
	}

	trace.Rationale = "no grant matched"
	return Decision{Outcome: OutcomeDeny, Trace: trace}, nil
}

func (e *Engine) evalCondition(expr string, req Request) (bool, error) {
	ast, issues := e.celEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return false, issues.Err()
	}
	prg, err := e.celEnv.Program(ast)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"tool":     req.Tool,
		"verb":     req.Verb,
		"resource": req.ResourceURI,
		"agent":    req.AgentID,
		"context":  req.Context,
	})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition did not evaluate to bool, got %v", out.Type())
	}
	return b, nil
}

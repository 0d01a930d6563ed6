// Package gateway mediates every tool call an agent makes against TA:
// audit, policy evaluation, and — once allowed — a write into the goal's
// overlay staging tree recorded as a ChangeSet.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/trusted-autonomy/ta/pkg/changestore"
	"github.com/trusted-autonomy/ta/pkg/config"
	"github.com/trusted-autonomy/ta/pkg/goalrun"
	"github.com/trusted-autonomy/ta/pkg/overlay"
	"github.com/trusted-autonomy/ta/pkg/policy"
	"github.com/trusted-autonomy/ta/pkg/tahash"
	"github.com/trusted-autonomy/ta/pkg/taaudit"
)

// fsWriteVerbs names the verbs the gateway treats as landing a file write
// in the goal's overlay staging tree once policy allows them.
var fsWriteVerbs = map[string]bool{
	"write":  true,
	"create": true,
	"delete": true,
}

// ToolCallRequest is a single mediated invocation an agent makes through
// the gateway.
type ToolCallRequest struct {
	GoalRunID   uuid.UUID
	AgentID     string
	Tool        string
	Verb        string
	ResourceURI string
	Payload     []byte
	Context     map[string]any
}

// ErrorKind classifies a Dispatch failure for callers deciding on an exit
// code or HTTP status.
type ErrorKind string

const (
	ErrorPolicyDenied     ErrorKind = "policy_denied"
	ErrorApprovalRequired ErrorKind = "approval_required"
	ErrorIoError          ErrorKind = "io_error"
	ErrorNotFound         ErrorKind = "not_found"
)

// DispatchError reports why a Dispatch call did not complete a write.
type DispatchError struct {
	Kind ErrorKind
	Msg  string
}

func (e *DispatchError) Error() string { return fmt.Sprintf("gateway: %s: %s", e.Kind, e.Msg) }

// ToolCallResult is returned for a successfully mediated call (Allow path).
type ToolCallResult struct {
	Decision    policy.Outcome
	ChangesetID *uuid.UUID
}

// Gateway composes the policy engine, audit log, overlay workspaces, and
// change store into the mediation flow every tool call passes through.
type Gateway struct {
	mu sync.Mutex

	layout      *config.ProjectLayout
	engine      *policy.Engine
	audit       *taaudit.Log
	dispatcher  *goalrun.Dispatcher
	changeStore *changestore.Store
	workspaces  map[uuid.UUID]*overlay.Workspace

	tracer          trace.Tracer
	decisionCounter metric.Int64Counter
	logger          *slog.Logger
}

// Option configures a Gateway at construction.
type Option func(*Gateway)

// WithTracer attaches an OTel tracer for per-call spans.
func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) { g.tracer = t }
}

// WithMeter attaches an OTel meter; the gateway registers a policy-decision
// outcome counter against it.
func WithMeter(m metric.Meter) Option {
	return func(g *Gateway) {
		counter, err := m.Int64Counter(
			"ta_policy_decisions_total",
			metric.WithDescription("count of policy decisions by outcome"),
		)
		if err == nil {
			g.decisionCounter = counter
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New builds a Gateway. audit and changeStore are shared across every goal
// in the project; workspaces are registered per goal via RegisterWorkspace
// as each GoalRun is configured.
func New(layout *config.ProjectLayout, engine *policy.Engine, audit *taaudit.Log, dispatcher *goalrun.Dispatcher, changeStore *changestore.Store, opts ...Option) *Gateway {
	g := &Gateway{
		layout:          layout,
		engine:          engine,
		audit:           audit,
		dispatcher:      dispatcher,
		changeStore:     changeStore,
		workspaces:      map[uuid.UUID]*overlay.Workspace{},
		tracer:          nooptrace.NewTracerProvider().Tracer("ta/gateway"),
		decisionCounter: mustNoopCounter(),
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func mustNoopCounter() metric.Int64Counter {
	c, _ := noop.NewMeterProvider().Meter("ta/gateway").Int64Counter("ta_policy_decisions_total")
	return c
}

// RegisterWorkspace associates an overlay workspace with a goal so fs
// write verbs targeting that goal land in its staging tree.
func (g *Gateway) RegisterWorkspace(goalRunID uuid.UUID, ws *overlay.Workspace) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.workspaces[goalRunID] = ws
}

// Dispatch runs the full tool-call mediation flow: audit the call, evaluate
// policy, audit the decision, branch on the outcome, and — on Allow — write
// to staging and record a ChangeSet, auditing the result and emitting a
// ChangesetCreated event.
func (g *Gateway) Dispatch(ctx context.Context, req ToolCallRequest) (*ToolCallResult, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.Dispatch", trace.WithAttributes(
		attribute.String("ta.tool", req.Tool),
		attribute.String("ta.verb", req.Verb),
		attribute.String("ta.agent_id", req.AgentID),
	))
	defer span.End()

	inputHash := tahash.Bytes(req.Payload)
	callEvent := taaudit.NewEvent(req.AgentID, taaudit.ActionToolCall).
		WithTarget(req.ResourceURI).
		WithInputHash(inputHash)
	if _, err := g.audit.Append(callEvent); err != nil {
		return nil, g.auditFailure(req.AgentID, err)
	}

	decision, err := g.engine.Evaluate(ctx, policy.Request{
		AgentID:     req.AgentID,
		Tool:        req.Tool,
		Verb:        req.Verb,
		ResourceURI: req.ResourceURI,
		Context:     req.Context,
	})
	if err != nil {
		return nil, g.auditFailure(req.AgentID, err)
	}

	traceJSON, _ := json.Marshal(decision.Trace)
	decisionEvent := taaudit.NewEvent(req.AgentID, taaudit.ActionPolicyDecision).
		WithTarget(req.ResourceURI).
		WithMetadata(map[string]any{"outcome": decision.Outcome, "trace": string(traceJSON)})
	if _, err := g.audit.Append(decisionEvent); err != nil {
		return nil, g.auditFailure(req.AgentID, err)
	}

	if g.decisionCounter != nil {
		g.decisionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(decision.Outcome))))
	}

	switch decision.Outcome {
	case policy.OutcomeDeny:
		return nil, &DispatchError{Kind: ErrorPolicyDenied, Msg: decision.Trace.Rationale}
	case policy.OutcomeRequireApproval:
		return nil, &DispatchError{Kind: ErrorApprovalRequired, Msg: "awaiting reviewer approval"}
	}

	var changesetID *uuid.UUID
	if fsWriteVerbs[req.Verb] {
		id, err := g.writeToStaging(req)
		if err != nil {
			return nil, g.auditFailure(req.AgentID, err)
		}
		changesetID = &id
	}

	outputHash := tahash.Bytes(req.Payload)
	resultEvent := taaudit.NewEvent(req.AgentID, taaudit.ActionToolCall).
		WithTarget(req.ResourceURI).
		WithOutputHash(outputHash).
		WithParent(callEvent.EventID)
	if _, err := g.audit.Append(resultEvent); err != nil {
		return nil, g.auditFailure(req.AgentID, err)
	}

	if changesetID != nil && g.dispatcher != nil {
		g.dispatcher.Dispatch(goalrun.NewChangesetCreated(req.GoalRunID, *changesetID, req.ResourceURI))
	}

	return &ToolCallResult{Decision: decision.Outcome, ChangesetID: changesetID}, nil
}

// writeToStaging lands an allowed fs write in the goal's staging tree and
// records a ChangeSet for it.
func (g *Gateway) writeToStaging(req ToolCallRequest) (uuid.UUID, error) {
	g.mu.Lock()
	ws, ok := g.workspaces[req.GoalRunID]
	g.mu.Unlock()
	if !ok {
		return uuid.Nil, &DispatchError{Kind: ErrorNotFound, Msg: "no workspace registered for goal"}
	}

	relPath := resourceURIToPath(req.ResourceURI)
	target := filepath.Join(ws.StagingPath, relPath)

	var diff changestore.DiffContent
	kind := changestore.KindFsPatch
	switch req.Verb {
	case "delete":
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return uuid.Nil, fmt.Errorf("gateway: delete %s: %w", target, err)
		}
		diff = changestore.NewDeleteFile()
	default:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return uuid.Nil, fmt.Errorf("gateway: create parent dir: %w", err)
		}
		if err := os.WriteFile(target, req.Payload, 0o644); err != nil {
			return uuid.Nil, fmt.Errorf("gateway: write %s: %w", target, err)
		}
		diff = changestore.NewCreateFile(string(req.Payload))
	}

	cs, err := changestore.New(req.ResourceURI, kind, diff, changestore.CommitIntentNone, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("gateway: build changeset: %w", err)
	}
	if err := g.changeStore.Save(req.GoalRunID.String(), cs); err != nil {
		return uuid.Nil, fmt.Errorf("gateway: save changeset: %w", err)
	}
	return cs.ChangesetID, nil
}

func resourceURIToPath(uri string) string {
	const prefix = "fs://workspace/"
	if len(uri) > len(prefix) && uri[:len(prefix)] == prefix {
		return uri[len(prefix):]
	}
	return uri
}

func (g *Gateway) auditFailure(agentID string, cause error) error {
	event := taaudit.NewEvent(agentID, taaudit.ActionError).
		WithMetadata(map[string]any{"error": cause.Error()})
	if _, err := g.audit.Append(event); err != nil {
		g.logger.Warn("failed to audit error event", "cause", cause, "audit_error", err)
	}
	return &DispatchError{Kind: ErrorIoError, Msg: cause.Error()}
}

// Package goalrun implements the GoalRun lifecycle state machine: the
// per-goal record of an agent's mediated run, from Created through
// Completed (or Failed/Aborted).
package goalrun

import (
	"time"

	"github.com/google/uuid"
)

// State is one node in the GoalRun lifecycle graph.
type State string

const (
	StateCreated     State = "created"
	StateConfigured  State = "configured"
	StateRunning     State = "running"
	StateDraftReady  State = "draft_ready"
	StateUnderReview State = "under_review"
	StateApproved    State = "approved"
	StateApplied     State = "applied"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateAborted     State = "aborted"
)

// terminal lists states with no outgoing transitions.
var terminal = map[State]bool{
	StateCompleted: true,
	StateFailed:    true,
	StateAborted:   true,
}

// linearEdges is the happy-path lifecycle graph. Every non-terminal state
// may additionally transition to Failed or Aborted (handled separately in
// CanTransition), per spec §4.4.
var linearEdges = map[State]State{
	StateCreated:     StateConfigured,
	StateConfigured:  StateRunning,
	StateRunning:     StateDraftReady,
	StateDraftReady:  StateUnderReview,
	StateUnderReview: StateApproved,
	StateApproved:    StateApplied,
	StateApplied:     StateCompleted,
}

// CanTransition reports whether the edge from -> to is permitted.
func CanTransition(from, to State) bool {
	if terminal[from] {
		return false
	}
	if to == StateFailed || to == StateAborted {
		return true
	}
	return linearEdges[from] == to
}

// GoalRun is one agent's mediated run against a source project.
type GoalRun struct {
	GoalRunID    uuid.UUID `json:"goal_run_id"`
	Title        string    `json:"title"`
	Objective    string    `json:"objective"`
	AgentID      string    `json:"agent_id"`
	State        State     `json:"state"`
	SourceDir    string    `json:"source_dir"`
	WorkspacePath string   `json:"workspace_path"`
	StorePath    string    `json:"store_path"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// New creates a GoalRun in the Created state.
func New(title, objective, agentID, sourceDir string) GoalRun {
	now := time.Now().UTC()
	return GoalRun{
		GoalRunID: uuid.New(),
		Title:     title,
		Objective: objective,
		AgentID:   agentID,
		State:     StateCreated,
		SourceDir: sourceDir,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// InvalidTransition is returned when a caller requests an edge not present
// in the lifecycle graph.
type InvalidTransition struct {
	From State
	To   State
}

func (e *InvalidTransition) Error() string {
	return "goalrun: invalid transition from " + string(e.From) + " to " + string(e.To)
}

// Transition moves g from its current state to to, enforcing the lifecycle
// graph. On success it updates UpdatedAt; it does not emit events itself —
// callers (normally the Store) are responsible for dispatching
// GoalStateChanged.
func (g *GoalRun) Transition(to State) error {
	if !CanTransition(g.State, to) {
		return &InvalidTransition{From: g.State, To: to}
	}
	g.State = to
	g.UpdatedAt = time.Now().UTC()
	return nil
}

// IsTerminal reports whether g's current state has no outgoing transitions.
func (g *GoalRun) IsTerminal() bool {
	return terminal[g.State]
}

package taaudit

import (
	"time"

	"github.com/google/uuid"
)

// Action names the kind of audit record. Values serialize snake_case to
// match the rest of the TA wire format.
type Action string

const (
	ActionToolCall       Action = "tool_call"
	ActionPolicyDecision Action = "policy_decision"
	ActionApproval       Action = "approval"
	ActionApply          Action = "apply"
	ActionError          Action = "error"
)

// Event is a single append-only audit record. Fields are never mutated
// once written; PreviousHash is filled in by the Log at append time.
type Event struct {
	EventID       uuid.UUID      `json:"event_id"`
	Timestamp     time.Time      `json:"timestamp"`
	AgentID       string         `json:"agent_id"`
	Action        Action         `json:"action"`
	TargetURI     *string        `json:"target_uri,omitempty"`
	InputHash     *string        `json:"input_hash,omitempty"`
	OutputHash    *string        `json:"output_hash,omitempty"`
	ParentEventID *uuid.UUID     `json:"parent_event_id,omitempty"`
	PreviousHash  *string        `json:"previous_hash"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// NewEvent builds an Event with a fresh id and the current UTC timestamp.
// PreviousHash is left nil; Log.Append fills it in.
func NewEvent(agentID string, action Action) Event {
	return Event{
		EventID:   uuid.New(),
		Timestamp: time.Now().UTC(),
		AgentID:   agentID,
		Action:    action,
		Metadata:  map[string]any{},
	}
}

// WithTarget sets the target resource URI and returns the event for chaining.
func (e Event) WithTarget(uri string) Event {
	e.TargetURI = &uri
	return e
}

// WithInputHash records the hash of the request payload.
func (e Event) WithInputHash(hash string) Event {
	e.InputHash = &hash
	return e
}

// WithOutputHash records the hash of the response payload.
func (e Event) WithOutputHash(hash string) Event {
	e.OutputHash = &hash
	return e
}

// WithParent links this event to the tool-call event it followed from.
func (e Event) WithParent(id uuid.UUID) Event {
	e.ParentEventID = &id
	return e
}

// WithMetadata merges kv into the event's free-form metadata.
func (e Event) WithMetadata(kv map[string]any) Event {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	for k, v := range kv {
		e.Metadata[k] = v
	}
	return e
}

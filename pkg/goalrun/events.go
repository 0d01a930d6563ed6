package goalrun

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType discriminates the Event variants.
type EventType string

const (
	EventGoalCreated      EventType = "goal_created"
	EventGoalStateChanged EventType = "goal_state_changed"
	EventDraftReady       EventType = "draft_ready"
	EventDraftApproved    EventType = "draft_approved"
	EventDraftDenied      EventType = "draft_denied"
	EventChangesApplied   EventType = "changes_applied"
	EventChangesetCreated EventType = "changeset_created"
)

// Event is a notification emitted at a GoalRun lifecycle milestone. Each
// milestone is its own concrete type; Type is the discriminant a sink
// switches on to know which one it has.
type Event interface {
	Type() EventType
	GoalID() uuid.UUID
	OccurredAt() time.Time
}

type eventBase struct {
	GoalRunID uuid.UUID `json:"goal_run_id"`
	Timestamp time.Time `json:"timestamp"`
}

func newEventBase(goalID uuid.UUID) eventBase {
	return eventBase{GoalRunID: goalID, Timestamp: time.Now().UTC()}
}

func (e eventBase) GoalID() uuid.UUID    { return e.GoalRunID }
func (e eventBase) OccurredAt() time.Time { return e.Timestamp }

// eventWire is the single JSON shape every Event variant marshals to and
// unmarshals from.
type eventWire struct {
	Type        EventType  `json:"type"`
	Timestamp   time.Time  `json:"timestamp"`
	GoalRunID   uuid.UUID  `json:"goal_run_id"`
	FromState   State      `json:"from_state,omitempty"`
	ToState     State      `json:"to_state,omitempty"`
	PackageID   *uuid.UUID `json:"package_id,omitempty"`
	ChangesetID *uuid.UUID `json:"changeset_id,omitempty"`
	TargetURI   string     `json:"target_uri,omitempty"`
}

// GoalCreated marks a GoalRun's creation.
type GoalCreated struct{ eventBase }

func (GoalCreated) Type() EventType { return EventGoalCreated }

func (e GoalCreated) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventWire{Type: EventGoalCreated, Timestamp: e.Timestamp, GoalRunID: e.GoalRunID})
}

// NewGoalCreated builds a GoalCreated event.
func NewGoalCreated(goalID uuid.UUID) Event {
	return GoalCreated{newEventBase(goalID)}
}

// GoalStateChanged marks a GoalRun's lifecycle state transition.
type GoalStateChanged struct {
	eventBase
	FromState State
	ToState   State
}

func (GoalStateChanged) Type() EventType { return EventGoalStateChanged }

func (e GoalStateChanged) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventWire{
		Type:      EventGoalStateChanged,
		Timestamp: e.Timestamp,
		GoalRunID: e.GoalRunID,
		FromState: e.FromState,
		ToState:   e.ToState,
	})
}

// NewGoalStateChanged builds a GoalStateChanged event.
func NewGoalStateChanged(goalID uuid.UUID, from, to State) Event {
	return GoalStateChanged{eventBase: newEventBase(goalID), FromState: from, ToState: to}
}

// draftEvent is the shared shape of DraftReady/DraftApproved/DraftDenied,
// each of which names a draft package and nothing else.
type draftEvent struct {
	eventBase
	PackageID uuid.UUID
}

func (e draftEvent) marshalAs(t EventType) ([]byte, error) {
	pkgID := e.PackageID
	return json.Marshal(eventWire{Type: t, Timestamp: e.Timestamp, GoalRunID: e.GoalRunID, PackageID: &pkgID})
}

// DraftReady marks a DraftPackage as ready for review.
type DraftReady struct{ draftEvent }

func (DraftReady) Type() EventType         { return EventDraftReady }
func (e DraftReady) MarshalJSON() ([]byte, error) { return e.marshalAs(EventDraftReady) }

// NewDraftReady builds a DraftReady event.
func NewDraftReady(goalID, packageID uuid.UUID) Event {
	return DraftReady{draftEvent{eventBase: newEventBase(goalID), PackageID: packageID}}
}

// DraftApproved marks a DraftPackage as approved by its reviewer.
type DraftApproved struct{ draftEvent }

func (DraftApproved) Type() EventType         { return EventDraftApproved }
func (e DraftApproved) MarshalJSON() ([]byte, error) { return e.marshalAs(EventDraftApproved) }

// NewDraftApproved builds a DraftApproved event.
func NewDraftApproved(goalID, packageID uuid.UUID) Event {
	return DraftApproved{draftEvent{eventBase: newEventBase(goalID), PackageID: packageID}}
}

// DraftDenied marks a DraftPackage as denied by its reviewer.
type DraftDenied struct{ draftEvent }

func (DraftDenied) Type() EventType         { return EventDraftDenied }
func (e DraftDenied) MarshalJSON() ([]byte, error) { return e.marshalAs(EventDraftDenied) }

// NewDraftDenied builds a DraftDenied event.
func NewDraftDenied(goalID, packageID uuid.UUID) Event {
	return DraftDenied{draftEvent{eventBase: newEventBase(goalID), PackageID: packageID}}
}

// ChangesApplied marks a DraftPackage's selected artifacts as applied to
// the project.
type ChangesApplied struct{ draftEvent }

func (ChangesApplied) Type() EventType         { return EventChangesApplied }
func (e ChangesApplied) MarshalJSON() ([]byte, error) { return e.marshalAs(EventChangesApplied) }

// NewChangesApplied builds a ChangesApplied event.
func NewChangesApplied(goalID, packageID uuid.UUID) Event {
	return ChangesApplied{draftEvent{eventBase: newEventBase(goalID), PackageID: packageID}}
}

// ChangesetCreated marks a new ChangeSet recorded against a target URI.
type ChangesetCreated struct {
	eventBase
	ChangesetID uuid.UUID
	TargetURI   string
}

func (ChangesetCreated) Type() EventType { return EventChangesetCreated }

func (e ChangesetCreated) MarshalJSON() ([]byte, error) {
	changesetID := e.ChangesetID
	return json.Marshal(eventWire{
		Type:        EventChangesetCreated,
		Timestamp:   e.Timestamp,
		GoalRunID:   e.GoalRunID,
		ChangesetID: &changesetID,
		TargetURI:   e.TargetURI,
	})
}

// NewChangesetCreated builds a ChangesetCreated event.
func NewChangesetCreated(goalID, changesetID uuid.UUID, targetURI string) Event {
	return ChangesetCreated{eventBase: newEventBase(goalID), ChangesetID: changesetID, TargetURI: targetURI}
}

// UnmarshalEvent decodes the single-object wire format into the concrete
// Event variant named by its type field.
func UnmarshalEvent(data []byte) (Event, error) {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("goalrun: unmarshal event: %w", err)
	}
	base := eventBase{GoalRunID: w.GoalRunID, Timestamp: w.Timestamp}
	switch w.Type {
	case EventGoalCreated:
		return GoalCreated{base}, nil
	case EventGoalStateChanged:
		return GoalStateChanged{eventBase: base, FromState: w.FromState, ToState: w.ToState}, nil
	case EventDraftReady:
		return DraftReady{draftEvent{eventBase: base, PackageID: uuidValue(w.PackageID)}}, nil
	case EventDraftApproved:
		return DraftApproved{draftEvent{eventBase: base, PackageID: uuidValue(w.PackageID)}}, nil
	case EventDraftDenied:
		return DraftDenied{draftEvent{eventBase: base, PackageID: uuidValue(w.PackageID)}}, nil
	case EventChangesApplied:
		return ChangesApplied{draftEvent{eventBase: base, PackageID: uuidValue(w.PackageID)}}, nil
	case EventChangesetCreated:
		return ChangesetCreated{eventBase: base, ChangesetID: uuidValue(w.ChangesetID), TargetURI: w.TargetURI}, nil
	default:
		return nil, fmt.Errorf("goalrun: unknown event type %q", w.Type)
	}
}

func uuidValue(p *uuid.UUID) uuid.UUID {
	if p == nil {
		return uuid.Nil
	}
	return *p
}

// NotificationSink receives dispatched events. A sink's Notify failure is
// logged but never propagated to the caller that triggered the event —
// notification delivery is best-effort.
type NotificationSink interface {
	Notify(Event) error
}

// LogSink appends every event as one JSON line to a file, creating parent
// directories as needed.
type LogSink struct {
	mu   sync.Mutex
	path string
}

// NewLogSink builds a LogSink writing to path.
func NewLogSink(path string) (*LogSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("goalrun: log sink mkdir: %w", err)
	}
	return &LogSink{path: path}, nil
}

func (s *LogSink) Notify(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = f.Write(line)
	return err
}

// Dispatcher fans out events to every registered sink.
type Dispatcher struct {
	mu     sync.RWMutex
	sinks  []NotificationSink
	logger *slog.Logger
}

// NewDispatcher builds an empty Dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// AddSink registers a sink to receive all future Dispatch calls.
func (d *Dispatcher) AddSink(s NotificationSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Dispatch delivers e to every registered sink. A sink error is logged as a
// warning, not returned: one misbehaving notification channel must never
// block the lifecycle transition that triggered it.
func (d *Dispatcher) Dispatch(e Event) {
	d.mu.RLock()
	sinks := append([]NotificationSink(nil), d.sinks...)
	d.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Notify(e); err != nil {
			d.logger.Warn("notification sink failed", "event_type", e.Type(), "error", err)
		}
	}
}

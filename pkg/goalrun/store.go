package goalrun

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested goal run id does not exist.
type ErrNotFound struct {
	GoalRunID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("goalrun: goal run %s not found", e.GoalRunID)
}

// Store persists GoalRuns as one pretty-printed JSON file per goal under
// dir. A goal's state transitions are guarded by this store's file write;
// concurrent transitions from two processes are last-writer-wins and will
// be caught by the state machine check on next read, per spec §5.
type Store struct {
	mu         sync.Mutex
	dir        string
	dispatcher *Dispatcher
}

// NewStore opens a GoalRunStore rooted at dir, creating it if absent.
func NewStore(dir string, dispatcher *Dispatcher) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("goalrun: mkdir %s: %w", dir, err)
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(nil)
	}
	return &Store{dir: dir, dispatcher: dispatcher}, nil
}

func (s *Store) pathFor(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+".json")
}

// Save writes g to its file, overwriting any prior snapshot.
func (s *Store) Save(g GoalRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(g)
}

func (s *Store) saveLocked(g GoalRun) error {
	b, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("goalrun: marshal: %w", err)
	}
	if err := os.WriteFile(s.pathFor(g.GoalRunID), b, 0o644); err != nil {
		return fmt.Errorf("goalrun: write: %w", err)
	}
	return nil
}

// Get loads the GoalRun with id.
func (s *Store) Get(id uuid.UUID) (GoalRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *Store) getLocked(id uuid.UUID) (GoalRun, error) {
	b, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return GoalRun{}, &ErrNotFound{GoalRunID: id.String()}
		}
		return GoalRun{}, fmt.Errorf("goalrun: read: %w", err)
	}
	var g GoalRun
	if err := json.Unmarshal(b, &g); err != nil {
		return GoalRun{}, fmt.Errorf("goalrun: unmarshal: %w", err)
	}
	return g, nil
}

// List returns every GoalRun in dir, sorted by CreatedAt descending.
func (s *Store) List() ([]GoalRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("goalrun: readdir: %w", err)
	}

	var runs []GoalRun
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("goalrun: read %s: %w", entry.Name(), err)
		}
		var g GoalRun
		if err := json.Unmarshal(b, &g); err != nil {
			return nil, fmt.Errorf("goalrun: unmarshal %s: %w", entry.Name(), err)
		}
		runs = append(runs, g)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	return runs, nil
}

// ListByState filters List() to goals currently in state.
func (s *Store) ListByState(state State) ([]GoalRun, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []GoalRun
	for _, g := range all {
		if g.State == state {
			out = append(out, g)
		}
	}
	return out, nil
}

// Transition loads the goal, attempts the state change, saves the result,
// and dispatches GoalStateChanged on success.
func (s *Store) Transition(id uuid.UUID, to State) (GoalRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.getLocked(id)
	if err != nil {
		return GoalRun{}, err
	}

	from := g.State
	if err := g.Transition(to); err != nil {
		return GoalRun{}, err
	}
	if err := s.saveLocked(g); err != nil {
		return GoalRun{}, err
	}

	s.dispatcher.Dispatch(NewGoalStateChanged(g.GoalRunID, from, to))
	return g, nil
}

// Delete removes a goal's persisted file.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.pathFor(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("goalrun: delete: %w", err)
	}
	return nil
}

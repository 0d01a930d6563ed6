// Package changestore persists ChangeSet records, one JSONL file per goal.
package changestore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested changeset id does not exist in a goal's store.
type ErrNotFound struct {
	GoalID      string
	ChangesetID uuid.UUID
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("changestore: changeset %s not found for goal %s", e.ChangesetID, e.GoalID)
}

// Store is a per-goal keyed ChangeSet store. Save appends; List returns
// insertion order; Remove rewrites the whole file. The Store's mutex
// serializes its own Save, List and Remove calls within one process;
// callers are not serialized per goal (the Gateway takes no per-goal lock).
type Store struct {
	mu      sync.Mutex
	dir     string
	cache   map[string][]ChangeSet // goalID -> ordered changesets, lazily populated
	cacheOn map[string]bool
}

// NewStore opens a ChangeStore rooted at dir, creating dir if absent.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("changestore: mkdir %s: %w", dir, err)
	}
	return &Store{
		dir:     dir,
		cache:   map[string][]ChangeSet{},
		cacheOn: map[string]bool{},
	}, nil
}

func (s *Store) pathFor(goalID string) string {
	return filepath.Join(s.dir, goalID+".jsonl")
}

// Save appends cs to goalID's store.
func (s *Store) Save(goalID string, cs ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.pathFor(goalID), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("changestore: open %s: %w", goalID, err)
	}
	defer f.Close()

	line, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("changestore: marshal: %w", err)
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("changestore: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("changestore: sync: %w", err)
	}

	delete(s.cacheOn, goalID) // invalidate cache
	return nil
}

// List returns all changesets for goalID in insertion (append) order.
func (s *Store) List(goalID string) ([]ChangeSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(goalID)
}

// Get returns a single changeset by id.
func (s *Store) Get(goalID string, id uuid.UUID) (ChangeSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadLocked(goalID)
	if err != nil {
		return ChangeSet{}, err
	}
	for _, cs := range items {
		if cs.ChangesetID == id {
			return cs, nil
		}
	}
	return ChangeSet{}, &ErrNotFound{GoalID: goalID, ChangesetID: id}
}

// Remove deletes the changeset with id from goalID's store, rewriting the
// whole file.
func (s *Store) Remove(goalID string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadLocked(goalID)
	if err != nil {
		return err
	}

	kept := items[:0:0]
	found := false
	for _, cs := range items {
		if cs.ChangesetID == id {
			found = true
			continue
		}
		kept = append(kept, cs)
	}
	if !found {
		return &ErrNotFound{GoalID: goalID, ChangesetID: id}
	}

	if err := s.rewrite(goalID, kept); err != nil {
		return err
	}
	delete(s.cacheOn, goalID)
	return nil
}

func (s *Store) rewrite(goalID string, items []ChangeSet) error {
	tmp := s.pathFor(goalID) + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("changestore: rewrite open: %w", err)
	}
	for _, cs := range items {
		line, err := json.Marshal(cs)
		if err != nil {
			f.Close()
			return fmt.Errorf("changestore: rewrite marshal: %w", err)
		}
		line = append(line, '\n')
		if _, err := f.Write(line); err != nil {
			f.Close()
			return fmt.Errorf("changestore: rewrite write: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.pathFor(goalID))
}

func (s *Store) loadLocked(goalID string) ([]ChangeSet, error) {
	if s.cacheOn[goalID] {
		return s.cache[goalID], nil
	}

	path := s.pathFor(goalID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.cache[goalID] = nil
			s.cacheOn[goalID] = true
			return nil, nil
		}
		return nil, fmt.Errorf("changestore: open %s: %w", goalID, err)
	}
	defer f.Close()

	var items []ChangeSet
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var cs ChangeSet
		if err := json.Unmarshal(raw, &cs); err != nil {
			return nil, fmt.Errorf("changestore: unmarshal %s: %w", goalID, err)
		}
		items = append(items, cs)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	s.cache[goalID] = items
	s.cacheOn[goalID] = true
	return items, nil
}

package draftpkg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ReviewSessionNotFound is returned when a session id has no file on disk.
type ReviewSessionNotFound struct {
	SessionID uuid.UUID
}

func (e *ReviewSessionNotFound) Error() string {
	return fmt.Sprintf("draftpkg: review session %s not found", e.SessionID)
}

// ReviewSessionStore persists ReviewSessions as one JSON file per session
// under dir, keyed by session id.
type ReviewSessionStore struct {
	mu  sync.Mutex
	dir string
}

// NewReviewSessionStore ensures dir exists and returns a store rooted there.
func NewReviewSessionStore(dir string) (*ReviewSessionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("draftpkg: create review session dir: %w", err)
	}
	return &ReviewSessionStore{dir: dir}, nil
}

func (s *ReviewSessionStore) path(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+".json")
}

// Save writes (or overwrites) a session's current state.
func (s *ReviewSessionStore) Save(session ReviewSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("draftpkg: marshal review session: %w", err)
	}
	tmp := s.path(session.SessionID) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("draftpkg: write review session: %w", err)
	}
	return os.Rename(tmp, s.path(session.SessionID))
}

// Get loads a session by id.
func (s *ReviewSessionStore) Get(id uuid.UUID) (ReviewSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(id)
}

func (s *ReviewSessionStore) loadLocked(id uuid.UUID) (ReviewSession, error) {
	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return ReviewSession{}, &ReviewSessionNotFound{SessionID: id}
		}
		return ReviewSession{}, fmt.Errorf("draftpkg: read review session: %w", err)
	}
	var session ReviewSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return ReviewSession{}, fmt.Errorf("draftpkg: decode review session: %w", err)
	}
	return session, nil
}

// Exists reports whether a session file is present for id.
func (s *ReviewSessionStore) Exists(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := os.Stat(s.path(id))
	return err == nil
}

// Delete removes a session's file. Deleting a nonexistent session is not
// an error.
func (s *ReviewSessionStore) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("draftpkg: delete review session: %w", err)
	}
	return nil
}

// List returns every session in the store, most recently updated first.
func (s *ReviewSessionStore) List() ([]ReviewSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("draftpkg: list review sessions: %w", err)
	}

	var sessions []ReviewSession
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		session, err := s.loadLocked(id)
		if err != nil {
			continue
		}
		sessions = append(sessions, session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// FindActiveForDraft returns the Active session for a draft package, if
// any. At most one session should be Active per draft package at a time;
// the first match found is returned.
func (s *ReviewSessionStore) FindActiveForDraft(draftPackageID uuid.UUID) (*ReviewSession, error) {
	sessions, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].DraftPackageID == draftPackageID && sessions[i].State == ReviewActive {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

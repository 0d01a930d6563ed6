package draftpkg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// NotFound is returned when a draft package id has no file on disk.
type NotFound struct {
	PackageID uuid.UUID
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("draftpkg: package %s not found", e.PackageID)
}

// Store persists DraftPackages as one JSON file per package under dir,
// keyed by package id.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore ensures dir exists and returns a store rooted there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("draftpkg: create draft store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+".json")
}

// Save writes (or overwrites) a package's current state.
func (s *Store) Save(pkg DraftPackage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := pkg.MarshalForStorage()
	if err != nil {
		return fmt.Errorf("draftpkg: marshal package: %w", err)
	}
	tmp := s.path(pkg.PackageID) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("draftpkg: write package: %w", err)
	}
	return os.Rename(tmp, s.path(pkg.PackageID))
}

// Get loads a package by id.
func (s *Store) Get(id uuid.UUID) (DraftPackage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return DraftPackage{}, &NotFound{PackageID: id}
		}
		return DraftPackage{}, fmt.Errorf("draftpkg: read package: %w", err)
	}
	var pkg DraftPackage
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return DraftPackage{}, fmt.Errorf("draftpkg: decode package: %w", err)
	}
	return pkg, nil
}

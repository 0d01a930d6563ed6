package overlay

import (
	"fmt"
	"strings"
)

// ConflictDetected is raised by ApplyTo when the target tree's current
// content no longer matches the hash the diff was computed against. No
// files are written when this is returned.
type ConflictDetected struct {
	Paths []string
}

func (e *ConflictDetected) Error() string {
	return fmt.Sprintf("overlay: conflict detected on %d path(s): %s", len(e.Paths), strings.Join(e.Paths, ", "))
}

// PathTraversal is raised when a selected URI or relative path escapes the
// workspace root via `..` components.
type PathTraversal struct {
	Path string
}

func (e *PathTraversal) Error() string {
	return fmt.Sprintf("overlay: path traversal rejected: %q", e.Path)
}

// StagingNotEmpty is raised by Create when the computed staging directory
// already has content and the overlay refuses to clobber it.
type StagingNotEmpty struct {
	Path string
}

func (e *StagingNotEmpty) Error() string {
	return fmt.Sprintf("overlay: staging directory %q already exists and is not empty", e.Path)
}

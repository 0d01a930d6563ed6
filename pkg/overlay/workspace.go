// Package overlay implements the staging workspace an agent works inside:
// a full recursive copy of a source tree, diffed against the source by
// content hash, with selective writes applied back under conflict
// detection.
package overlay

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/trusted-autonomy/ta/pkg/tahash"
)

const uriPrefix = "fs://workspace/"

// Workspace is a single goal's overlay: a staging directory holding a copy
// of sourceDir, plus the exclude patterns applied at creation and diff time.
type Workspace struct {
	GoalID      string
	SourceDir   string
	StagingPath string
	Exclude     []string

	mu sync.Mutex // serializes ApplyTo calls on this workspace; DiffAll does not take it
}

// Create computes staging = stagingBase/<goalID>, requires it be absent or
// empty, and recursively copies sourceDir into it, skipping any path
// matching excludePatterns. Callers must include the project's own state
// directory (conventionally ".ta") in excludePatterns so the staging copy
// never contains TA's own bookkeeping files (invariant 4/8).
func Create(goalID, sourceDir, stagingBase string, excludePatterns []string) (*Workspace, error) {
	staging := filepath.Join(stagingBase, goalID)

	if entries, err := os.ReadDir(staging); err == nil {
		if len(entries) > 0 {
			return nil, &StagingNotEmpty{Path: staging}
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("overlay: stat staging dir: %w", err)
	}

	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("overlay: create staging dir: %w", err)
	}

	w := &Workspace{
		GoalID:      goalID,
		SourceDir:   sourceDir,
		StagingPath: staging,
		Exclude:     excludePatterns,
	}

	if err := copyTree(sourceDir, staging, excludePatterns); err != nil {
		return nil, fmt.Errorf("overlay: copy source to staging: %w", err)
	}

	return w, nil
}

// DiffAll walks both the source and staging trees and returns the set of
// differences between them, sorted lexicographically by path for
// reproducible output.
func (w *Workspace) DiffAll() ([]Change, error) {
	sourceFiles, err := listFiles(w.SourceDir, w.Exclude)
	if err != nil {
		return nil, fmt.Errorf("overlay: walk source: %w", err)
	}
	stagingFiles, err := listFiles(w.StagingPath, w.Exclude)
	if err != nil {
		return nil, fmt.Errorf("overlay: walk staging: %w", err)
	}

	union := map[string]struct{}{}
	for p := range sourceFiles {
		union[p] = struct{}{}
	}
	for p := range stagingFiles {
		union[p] = struct{}{}
	}

	paths := make([]string, 0, len(union))
	for p := range union {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	changes := make([]*Change, len(paths))
	var g errgroup.Group
	g.SetLimit(8)

	for i, rel := range paths {
		i, rel := i, rel
		_, inSource := sourceFiles[rel]
		_, inStaging := stagingFiles[rel]

		g.Go(func() error {
			switch {
			case inSource && inStaging:
				oldHash, err := hashPath(filepath.Join(w.SourceDir, rel))
				if err != nil {
					return err
				}
				newHash, err := hashPath(filepath.Join(w.StagingPath, rel))
				if err != nil {
					return err
				}
				if oldHash != newHash {
					changes[i] = &Change{Kind: ChangeModified, Path: rel, OldHash: oldHash, NewHash: newHash}
				}
			case inStaging:
				size, err := fileSize(filepath.Join(w.StagingPath, rel))
				if err != nil {
					return err
				}
				changes[i] = &Change{Kind: ChangeCreated, Path: rel, Size: size}
			case inSource:
				changes[i] = &Change{Kind: ChangeDeleted, Path: rel}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

// ApplyTo copies Created/Modified files from staging into targetDir and
// removes Deleted files from targetDir, restricted to selectedURIs if
// non-empty. Before any write it hashes every Modified path's current
// target content against the OldHash the diff recorded; any mismatch
// aborts the whole call with ConflictDetected and no files are written.
func (w *Workspace) ApplyTo(targetDir string, selectedURIs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	changes, err := w.DiffAll()
	if err != nil {
		return err
	}

	selected := changes
	if len(selectedURIs) > 0 {
		want := map[string]struct{}{}
		for _, u := range selectedURIs {
			p, err := pathForURI(u)
			if err != nil {
				return err
			}
			want[p] = struct{}{}
		}
		selected = selected[:0:0]
		for _, c := range changes {
			if _, ok := want[c.Path]; ok {
				selected = append(selected, c)
			}
		}
	}

	var conflicts []string
	for _, c := range selected {
		if c.Kind != ChangeModified {
			continue
		}
		currentHash, err := hashPath(filepath.Join(targetDir, c.Path))
		if err != nil {
			if os.IsNotExist(err) {
				conflicts = append(conflicts, c.Path)
				continue
			}
			return fmt.Errorf("overlay: hash target %s: %w", c.Path, err)
		}
		if currentHash != c.OldHash {
			conflicts = append(conflicts, c.Path)
		}
	}
	if len(conflicts) > 0 {
		return &ConflictDetected{Paths: conflicts}
	}

	for _, c := range selected {
		targetPath := filepath.Join(targetDir, c.Path)
		switch c.Kind {
		case ChangeCreated, ChangeModified:
			if err := copyEntry(filepath.Join(w.StagingPath, c.Path), targetPath); err != nil {
				return fmt.Errorf("overlay: apply %s: %w", c.Path, err)
			}
		case ChangeDeleted:
			if err := os.Remove(targetPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("overlay: delete %s: %w", c.Path, err)
			}
		}
	}

	return nil
}

func pathForURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, uriPrefix) {
		return "", fmt.Errorf("overlay: unsupported URI scheme in %q", uri)
	}
	rel := strings.TrimPrefix(uri, uriPrefix)
	if hasTraversal(rel) {
		return "", &PathTraversal{Path: uri}
	}
	return rel, nil
}

func hasTraversal(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// listFiles returns the set of non-excluded file paths under root, keyed
// by their slash-separated path relative to root. Directories themselves
// are not included; symlinks are treated as leaf entries.
func listFiles(root string, exclude []string) (map[string]struct{}, error) {
	out := map[string]struct{}{}

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("overlay: root %q is not a directory", root)
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if matchesExclude(rel, exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}
		out[rel] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// hashPath hashes a file's content for diff/apply comparison. Symlinks hash
// their link-target text rather than following the link.
func hashPath(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return "", err
		}
		return tahash.String(target), nil
	}
	return tahash.File(path)
}

func matchesExclude(relPath string, patterns []string) bool {
	for _, p := range patterns {
		p = strings.TrimSuffix(strings.TrimPrefix(p, "./"), "/")
		if p == "" {
			continue
		}
		if relPath == p || strings.HasPrefix(relPath, p+"/") {
			return true
		}
		if ok, _ := filepath.Match(p, relPath); ok {
			return true
		}
	}
	return false
}

// copyTree recursively copies src into dst, skipping paths matching exclude
// (relative to src). Directory mode bits and symlinks are preserved;
// regular files are copied byte-for-byte with best-effort mode.
func copyTree(src, dst string, exclude []string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if matchesExclude(rel, exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, filepath.FromSlash(rel))

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

// copyEntry copies a single staged entry (file or symlink) to target,
// creating parent directories as needed.
func copyEntry(src, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	info, err := os.Lstat(src)
	if err != nil {
		return err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		linkTarget, err := os.Readlink(src)
		if err != nil {
			return err
		}
		_ = os.Remove(target)
		return os.Symlink(linkTarget, target)
	}

	return copyFile(src, target, info.Mode().Perm())
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

package overlay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCreateExcludesTaDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "README.md"), "hello\n")
	writeFile(t, filepath.Join(root, ".ta", "audit.jsonl"), "{}\n")

	stagingBase := t.TempDir()
	ws, err := Create("goal-1", root, stagingBase, []string{".ta"})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(ws.StagingPath, "README.md"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(ws.StagingPath, ".ta"))
	require.True(t, os.IsNotExist(err))
}

func TestDiffAllReportsCreatedModifiedDeleted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "README.md"), "original\n")
	writeFile(t, filepath.Join(root, "src", "main.go"), "package main\n")

	stagingBase := t.TempDir()
	ws, err := Create("goal-1", root, stagingBase, []string{".ta"})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "README.md")))
	writeFile(t, filepath.Join(ws.StagingPath, "src", "main.go"), "package main\n\nfunc main() {}\n")
	writeFile(t, filepath.Join(ws.StagingPath, "tests", "x_test.go"), "package tests\n")

	changes, err := ws.DiffAll()
	require.NoError(t, err)
	require.Len(t, changes, 3)

	byPath := map[string]Change{}
	for _, c := range changes {
		byPath[c.Path] = c
	}
	require.Equal(t, ChangeDeleted, byPath["README.md"].Kind)
	require.Equal(t, ChangeModified, byPath["src/main.go"].Kind)
	require.Equal(t, ChangeCreated, byPath["tests/x_test.go"].Kind)
}

func TestApplyToRoundTripsByteEqual(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "README.md"), "original\n")

	stagingBase := t.TempDir()
	ws, err := Create("goal-1", root, stagingBase, []string{".ta"})
	require.NoError(t, err)

	writeFile(t, filepath.Join(ws.StagingPath, "README.md"), "updated\n")
	writeFile(t, filepath.Join(ws.StagingPath, "new.txt"), "brand new\n")

	require.NoError(t, ws.ApplyTo(root, nil))

	got, err := os.ReadFile(filepath.Join(root, "README.md"))
	require.NoError(t, err)
	require.Equal(t, "updated\n", string(got))

	got, err = os.ReadFile(filepath.Join(root, "new.txt"))
	require.NoError(t, err)
	require.Equal(t, "brand new\n", string(got))
}

func TestApplyToDetectsConflictAndWritesNothing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "README.md"), "original\n")

	stagingBase := t.TempDir()
	ws, err := Create("goal-1", root, stagingBase, []string{".ta"})
	require.NoError(t, err)

	writeFile(t, filepath.Join(ws.StagingPath, "README.md"), "agent's update\n")
	// Someone else mutates the source out from under the agent.
	writeFile(t, filepath.Join(root, "README.md"), "concurrent human edit\n")

	err = ws.ApplyTo(root, nil)
	require.Error(t, err)
	var conflict *ConflictDetected
	require.ErrorAs(t, err, &conflict)
	require.Contains(t, conflict.Paths, "README.md")

	got, err := os.ReadFile(filepath.Join(root, "README.md"))
	require.NoError(t, err)
	require.Equal(t, "concurrent human edit\n", string(got))
}

func TestApplyToSelectiveURIs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a\n")
	writeFile(t, filepath.Join(root, "b.txt"), "b\n")

	stagingBase := t.TempDir()
	ws, err := Create("goal-1", root, stagingBase, []string{".ta"})
	require.NoError(t, err)

	writeFile(t, filepath.Join(ws.StagingPath, "a.txt"), "a2\n")
	writeFile(t, filepath.Join(ws.StagingPath, "b.txt"), "b2\n")

	require.NoError(t, ws.ApplyTo(root, []string{"fs://workspace/a.txt"}))

	got, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	require.Equal(t, "a2\n", string(got))
	got, _ = os.ReadFile(filepath.Join(root, "b.txt"))
	require.Equal(t, "b\n", string(got))
}

func TestSymlinkHashedAsLinkTarget(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "real.txt"), "payload\n")
	require.NoError(t, os.Symlink("real.txt", filepath.Join(root, "link.txt")))

	stagingBase := t.TempDir()
	ws, err := Create("goal-1", root, stagingBase, []string{".ta"})
	require.NoError(t, err)

	info, err := os.Lstat(filepath.Join(ws.StagingPath, "link.txt"))
	require.NoError(t, err)
	require.True(t, info.Mode()&os.ModeSymlink != 0)

	changes, err := ws.DiffAll()
	require.NoError(t, err)
	require.Empty(t, changes)
}

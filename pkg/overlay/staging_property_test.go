//go:build property
// +build property

package overlay_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/trusted-autonomy/ta/pkg/overlay"
)

// TestStagingNeverContainsControlDir: whatever a source tree contains
// under its excluded control directory, the staging copy never reproduces
// it (invariant 4/8).
func TestStagingNeverContainsControlDir(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property(".ta is never copied into staging", prop.ForAll(
		func(fileNames []string) bool {
			root, err := os.MkdirTemp("", "overlay-staging-property")
			if err != nil {
				return false
			}
			defer os.RemoveAll(root)

			sourceDir := filepath.Join(root, "source")
			controlDir := filepath.Join(sourceDir, ".ta")
			if err := os.MkdirAll(controlDir, 0o755); err != nil {
				return false
			}
			for i, name := range fileNames {
				if name == "" {
					continue
				}
				path := filepath.Join(controlDir, fmt.Sprintf("%d-%s", i, name))
				if err := os.WriteFile(path, []byte("secret"), 0o644); err != nil {
					return false
				}
			}
			if err := os.WriteFile(filepath.Join(sourceDir, "real.txt"), []byte("kept"), 0o644); err != nil {
				return false
			}

			ws, err := overlay.Create("goal-control", sourceDir, filepath.Join(root, "staging"), []string{".ta"})
			if err != nil {
				return false
			}

			stagedControl := filepath.Join(ws.StagingPath, ".ta")
			if _, err := os.Stat(stagedControl); !os.IsNotExist(err) {
				return false
			}
			_, err = os.Stat(filepath.Join(ws.StagingPath, "real.txt"))
			return err == nil
		},
		gen.SliceOfN(3, gen.AlphaString()),
	))

	properties.TestingRun(t)
}

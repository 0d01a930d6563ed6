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

// TestDiffApplyRoundTripsByteEqual: for any set of file contents written
// into a staging workspace, applying every resulting Change back onto a
// copy of the source yields files byte-equal to staging.
func TestDiffApplyRoundTripsByteEqual(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("DiffAll+ApplyTo round-trips staged content byte-for-byte", prop.ForAll(
		func(contents []string) bool {
			if len(contents) == 0 {
				return true
			}

			root, err := os.MkdirTemp("", "overlay-property")
			if err != nil {
				return false
			}
			defer os.RemoveAll(root)

			sourceDir := filepath.Join(root, "source")
			stagingBase := filepath.Join(root, "staging")
			targetDir := filepath.Join(root, "target")
			if err := os.MkdirAll(sourceDir, 0o755); err != nil {
				return false
			}
			if err := os.MkdirAll(targetDir, 0o755); err != nil {
				return false
			}

			ws, err := overlay.Create("goal-1", sourceDir, stagingBase, []string{".ta"})
			if err != nil {
				return false
			}

			var uris []string
			for i, content := range contents {
				name := fmt.Sprintf("file-%d.txt", i)
				if err := os.WriteFile(filepath.Join(ws.StagingPath, name), []byte(content), 0o644); err != nil {
					return false
				}
				uris = append(uris, "fs://workspace/"+name)
			}

			changes, err := ws.DiffAll()
			if err != nil {
				return false
			}
			if len(changes) != len(contents) {
				return false
			}

			if err := ws.ApplyTo(targetDir, uris); err != nil {
				return false
			}

			for i, content := range contents {
				name := fmt.Sprintf("file-%d.txt", i)
				got, err := os.ReadFile(filepath.Join(targetDir, name))
				if err != nil {
					return false
				}
				if string(got) != content {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(4, gen.AlphaString()),
	))

	properties.TestingRun(t)
}

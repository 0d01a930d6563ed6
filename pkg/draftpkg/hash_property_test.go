//go:build property
// +build property

package draftpkg_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/trusted-autonomy/ta/pkg/draftpkg"
)

// TestPackageHashRoundTripsThroughJSON: for any set of artifact URIs, a
// built DraftPackage's integrity check passes before and after a JSON
// round trip, and fails once any artifact field is mutated post-hash.
func TestPackageHashRoundTripsThroughJSON(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("package_hash survives marshal/unmarshal and detects mutation", prop.ForAll(
		func(uris []string, summary string) bool {
			if len(uris) == 0 {
				return true
			}

			var artifacts []draftpkg.Artifact
			for i, u := range uris {
				if u == "" {
					u = "file"
				}
				artifacts = append(artifacts, draftpkg.Artifact{
					ResourceURI: "fs://workspace/" + u,
					ChangeType:  draftpkg.ChangeModify,
					DiffRef:     "cs-" + string(rune('a'+i%26)),
				})
			}

			pkg, err := draftpkg.Build(uuid.New(), "agent-1", summary, artifacts, 1)
			if err != nil {
				return false
			}
			if err := pkg.VerifyIntegrity(); err != nil {
				return false
			}

			raw, err := json.Marshal(pkg)
			if err != nil {
				return false
			}
			var decoded draftpkg.DraftPackage
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return false
			}
			if err := decoded.VerifyIntegrity(); err != nil {
				return false
			}

			decoded.Summary = decoded.Summary + "-mutated"
			return decoded.VerifyIntegrity() != nil
		},
		gen.SliceOfN(3, gen.AlphaString()),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

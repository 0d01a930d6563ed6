//go:build property
// +build property

package taaudit_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/trusted-autonomy/ta/pkg/taaudit"
)

// TestVerifyChainDetectsAnyTamper: for any sequence of appended events,
// VerifyChain succeeds on the untouched log and fails once any single
// line's bytes are altered.
func TestVerifyChainDetectsAnyTamper(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("tamper on any line breaks VerifyChain", prop.ForAll(
		func(agentIDs []string, tamperIndex int) bool {
			if len(agentIDs) < 2 {
				return true
			}

			dir, err := os.MkdirTemp("", "chain-property")
			if err != nil {
				return false
			}
			defer os.RemoveAll(dir)
			path := filepath.Join(dir, "audit.jsonl")

			log, err := taaudit.Open(path, nil)
			if err != nil {
				return false
			}
			for _, id := range agentIDs {
				if id == "" {
					id = "agent"
				}
				if _, err := log.Append(taaudit.NewEvent(id, taaudit.ActionToolCall)); err != nil {
					return false
				}
			}
			_ = log.Close()

			if err := taaudit.VerifyChain(path); err != nil {
				return false
			}

			raw, err := os.ReadFile(path)
			if err != nil {
				return false
			}
			lines := splitNonEmptyLines(raw)
			idx := tamperIndex % len(lines)
			lines[idx] = lines[idx] + "x"
			if err := os.WriteFile(path, []byte(joinLinesWithNewline(lines)), 0o644); err != nil {
				return false
			}

			return taaudit.VerifyChain(path) != nil
		},
		gen.SliceOfN(5, gen.AlphaString()),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

func splitNonEmptyLines(raw []byte) []string {
	var lines []string
	start := 0
	for i, b := range raw {
		if b == '\n' {
			if i > start {
				lines = append(lines, string(raw[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(raw) {
		lines = append(lines, string(raw[start:]))
	}
	return lines
}

func joinLinesWithNewline(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}

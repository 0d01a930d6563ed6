package taaudit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendSeedsChainFromPriorEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	log, err := Open(path, nil)
	require.NoError(t, err)

	e1, err := log.Append(NewEvent("agent-1", ActionToolCall))
	require.NoError(t, err)
	require.Nil(t, e1.PreviousHash)

	e2, err := log.Append(NewEvent("agent-1", ActionPolicyDecision))
	require.NoError(t, err)
	require.NotNil(t, e2.PreviousHash)

	require.NoError(t, log.Close())

	events, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.NoError(t, VerifyChain(path))
}

func TestVerifyChainDetectsTamper(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	log, err := Open(path, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := log.Append(NewEvent("agent-1", ActionToolCall))
		require.NoError(t, err)
	}
	require.NoError(t, log.Close())

	lines, err := os.ReadFile(path)
	require.NoError(t, err)

	raw := splitLines(lines)
	require.Len(t, raw, 5)

	var tampered Event
	require.NoError(t, json.Unmarshal(raw[2], &tampered))
	tampered.AgentID = "attacker"
	mutated, err := json.Marshal(tampered)
	require.NoError(t, err)
	raw[2] = mutated

	require.NoError(t, os.WriteFile(path, joinLines(raw), 0o644))

	err = VerifyChain(path)
	require.Error(t, err)
	var violation *IntegrityViolation
	require.ErrorAs(t, err, &violation)
	require.Equal(t, 4, violation.Line)
}

func TestReopenRecoversChainSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	log1, err := Open(path, nil)
	require.NoError(t, err)
	_, err = log1.Append(NewEvent("agent-1", ActionToolCall))
	require.NoError(t, err)
	require.NoError(t, log1.Close())

	log2, err := Open(path, nil)
	require.NoError(t, err)
	defer log2.Close()

	ev, err := log2.Append(NewEvent("agent-1", ActionApply))
	require.NoError(t, err)
	require.NotNil(t, ev.PreviousHash)

	require.NoError(t, VerifyChain(path))
}

func splitLines(data []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			out = append(out, data[start:i])
			start = i + 1
		}
	}
	return out
}

func joinLines(lines [][]byte) []byte {
	var out []byte
	for _, l := range lines {
		out = append(out, l...)
		out = append(out, '\n')
	}
	return out
}

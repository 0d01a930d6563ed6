package goalrun

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStateMachineGuardsTransitions(t *testing.T) {
	g := New("t", "o", "agent-1", "/src")

	err := g.Transition(StateRunning)
	require.Error(t, err)
	var invalid *InvalidTransition
	require.ErrorAs(t, err, &invalid)

	require.NoError(t, g.Transition(StateConfigured))
	require.NoError(t, g.Transition(StateRunning))

	err = g.Transition(StateCompleted)
	require.Error(t, err)
}

func TestAnyNonTerminalStateCanAbort(t *testing.T) {
	for _, s := range []State{StateCreated, StateConfigured, StateRunning, StateDraftReady, StateUnderReview, StateApproved, StateApplied} {
		require.True(t, CanTransition(s, StateAborted), "state %s should be abortable", s)
	}
	for _, s := range []State{StateCompleted, StateFailed, StateAborted} {
		require.False(t, CanTransition(s, StateAborted), "terminal state %s should not transition further", s)
	}
}

func TestFullHappyPath(t *testing.T) {
	g := New("t", "o", "agent-1", "/src")
	path := []State{StateConfigured, StateRunning, StateDraftReady, StateUnderReview, StateApproved, StateApplied, StateCompleted}
	for _, next := range path {
		require.NoError(t, g.Transition(next))
	}
	require.True(t, g.IsTerminal())
}

func TestTransitionUpdatesTimestamp(t *testing.T) {
	g := New("t", "o", "agent-1", "/src")
	before := g.UpdatedAt
	time.Sleep(time.Millisecond)
	require.NoError(t, g.Transition(StateConfigured))
	require.True(t, g.UpdatedAt.After(before))
}

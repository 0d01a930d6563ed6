//go:build property
// +build property

package goalrun_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/trusted-autonomy/ta/pkg/goalrun"
)

var allStates = []goalrun.State{
	goalrun.StateCreated,
	goalrun.StateConfigured,
	goalrun.StateRunning,
	goalrun.StateDraftReady,
	goalrun.StateUnderReview,
	goalrun.StateApproved,
	goalrun.StateApplied,
	goalrun.StateCompleted,
	goalrun.StateFailed,
	goalrun.StateAborted,
}

// TestAbortAndFailReachableFromEveryNonTerminalState: Failed/Aborted are
// always legal targets except from a terminal state, and no edge skips
// the linear happy path.
func TestAbortAndFailReachableFromEveryNonTerminalState(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	terminal := map[goalrun.State]bool{
		goalrun.StateCompleted: true,
		goalrun.StateFailed:    true,
		goalrun.StateAborted:   true,
	}

	properties.Property("Aborted is reachable from any non-terminal state, never from a terminal one", prop.ForAll(
		func(idx int) bool {
			from := allStates[idx%len(allStates)]
			got := goalrun.CanTransition(from, goalrun.StateAborted)
			want := !terminal[from]
			return got == want
		},
		gen.IntRange(0, 1000),
	))

	properties.Property("no transition skips ahead of the linear happy-path successor", prop.ForAll(
		func(fromIdx, toIdx int) bool {
			from := allStates[fromIdx%len(allStates)]
			to := allStates[toIdx%len(allStates)]
			if to == goalrun.StateFailed || to == goalrun.StateAborted || from == to {
				return true
			}

			allowed := goalrun.CanTransition(from, to)
			isImmediateSuccessor := immediateHappyPathSuccessor(from) == to
			return allowed == isImmediateSuccessor
		},
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

func immediateHappyPathSuccessor(from goalrun.State) goalrun.State {
	switch from {
	case goalrun.StateCreated:
		return goalrun.StateConfigured
	case goalrun.StateConfigured:
		return goalrun.StateRunning
	case goalrun.StateRunning:
		return goalrun.StateDraftReady
	case goalrun.StateDraftReady:
		return goalrun.StateUnderReview
	case goalrun.StateUnderReview:
		return goalrun.StateApproved
	case goalrun.StateApproved:
		return goalrun.StateApplied
	case goalrun.StateApplied:
		return goalrun.StateCompleted
	default:
		return ""
	}
}

package applier

import (
	"fmt"

	"audioclean/internal/planner"
)

// StaleSourceError reports that an action's source no longer matches the
// plan-time snapshot.
type StaleSourceError struct {
	Ordinal  int
	Path     string
	Expected planner.Snapshot
	Actual   planner.Snapshot
	Missing  bool
	Detail   string
}

func (e *StaleSourceError) Error() string {
	switch {
	case e.Missing:
		return fmt.Sprintf("action #%d: source %s no longer exists", e.Ordinal, e.Path)
	case e.Detail != "":
		return fmt.Sprintf("action #%d: %s changed since planning: %s", e.Ordinal, e.Path, e.Detail)
	default:
		return fmt.Sprintf("action #%d: %s changed since planning (size %d -> %d, hash %.12s -> %.12s)",
			e.Ordinal, e.Path, e.Expected.Size, e.Actual.Size, e.Expected.Hash, e.Actual.Hash)
	}
}

// ApplyFailure reports the action that stopped a run.
type ApplyFailure struct {
	// Ordinal is the plan ordinal of the failed action.
	Ordinal   int
	Action    planner.Action
	Reason    string
	Completed []int
	Err       error
}

func (e *ApplyFailure) Error() string {
	return fmt.Sprintf("apply stopped at action #%d (%s %s): %s; %d action(s) completed",
		e.Ordinal, e.Action.Kind, e.Action.Source, e.Reason, len(e.Completed))
}

func (e *ApplyFailure) Unwrap() error { return e.Err }

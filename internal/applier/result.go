package applier

import (
	"time"

	"audioclean/internal/planner"
	"audioclean/internal/services"
)

// Mode selects between describing and executing a plan.
type Mode int

const (
	ModeDryRun Mode = iota
	ModeExecute
)

func (m Mode) String() string {
	if m == ModeExecute {
		return "execute"
	}
	return "dry_run"
}

// Status is the per-action result.
type Status string

const (
	StatusPlanned Status = "planned"
	StatusApplied Status = "applied"
	StatusFailed  Status = "failed"
)

// ActionResult describes what happened to one action.
type ActionResult struct {
	Ordinal     int          `json:"ordinal"`
	Kind        planner.Kind `json:"kind"`
	Source      string       `json:"source"`
	Destination string       `json:"destination,omitempty"`
	Description string       `json:"description"`
	Status      Status       `json:"status"`
	Copied      bool         `json:"copied,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Result summarizes an apply run.
type Result struct {
	SessionID string           `json:"session_id,omitempty"`
	PlanID    string           `json:"plan_id"`
	Mode      string           `json:"mode"`
	Outcome   services.Outcome `json:"outcome"`
	Actions   []ActionResult   `json:"actions"`
	Completed []int            `json:"completed"`
	Failure   *ApplyFailure    `json:"-"`
	Cancelled bool             `json:"cancelled,omitempty"`
	Duration  time.Duration    `json:"duration"`
}

package journal

import (
	"os"
	"time"

	"audioclean/internal/planner"
)

// Outcome is the state of one journal entry.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeApplied Outcome = "applied"
	OutcomeFailed  Outcome = "failed"
)

// Status is the state of a session.
type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusUndone    Status = "undone"
)

// Before captures what an action is about to change.
type Before struct {
	// Path is the location of the affected file before the action.
	Path string `json:"path"`
	// Existed is false when the action creates a file, such as an art
	// sidecar written where none was present.
	Existed bool   `json:"existed"`
	Size    int64  `json:"size,omitempty"`
	Hash    string `json:"hash,omitempty"`
	// Blob references the prior file bytes in the blob store.
	Blob string `json:"blob,omitempty"`
	// Mode holds the permission bits restored along with Blob.
	Mode os.FileMode `json:"mode,omitempty"`
}

// After captures the result of an applied action.
type After struct {
	Path string `json:"path,omitempty"`
	Hash string `json:"hash,omitempty"`
	// Copied is true when a move fell back to copy and delete.
	Copied bool `json:"copied,omitempty"`
}

// Entry is one journaled action.
type Entry struct {
	SessionID  string         `json:"session_id"`
	Seq        int            `json:"seq"`
	Action     planner.Action `json:"action"`
	Before     Before         `json:"before"`
	After      After          `json:"after"`
	ExecutedAt time.Time      `json:"executed_at"`
	Outcome    Outcome        `json:"outcome"`
	Error      string         `json:"error,omitempty"`
	Undoable   bool           `json:"undoable"`
	Undone     bool           `json:"undone"`
}

// Session summarizes one apply run.
type Session struct {
	ID        string    `json:"id"`
	PlanID    string    `json:"plan_id"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	ClosedAt  time.Time `json:"closed_at,omitzero"`
	Entries   int       `json:"entries"`
	Applied   int       `json:"applied"`
	Failed    int       `json:"failed"`
	Undone    int       `json:"undone"`
	// Pending counts entries journaled before their mutation whose outcome
	// was never recorded, as left behind by a crash.
	Pending int `json:"pending"`
	// Outstanding counts applied or pending entries not yet undone.
	Outstanding int `json:"outstanding"`
}

// Reversible reports whether the session has applied or pending entries that
// are not yet undone.
func (s Session) Reversible() bool {
	return s.Outstanding > 0
}

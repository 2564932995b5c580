package logging

// Standardized structured logging keys shared by every component.
const (
	// FieldComponent names the emitting component (scanner, planner, applier, ...).
	FieldComponent = "component"
	// FieldSessionID identifies an apply or undo session.
	FieldSessionID = "session_id"
	// FieldStage names the workflow stage (scan, analyze, plan, apply, undo).
	FieldStage = "stage"
	// FieldCorrelationID carries a per-invocation request identifier.
	FieldCorrelationID = "correlation_id"
	// FieldEventType is a stable machine-readable event name.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldErrorKind carries services.Kind for wrapped errors.
	FieldErrorKind = "error_kind"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType names a policy decision (keep policy, collision handling, gating).
	FieldDecisionType = "decision_type"
	FieldDecisionResult = "decision_result"
	FieldDecisionReason = "decision_reason"
	// FieldPath is the file path an event concerns.
	FieldPath = "path"
	// FieldRoot is the library root an event concerns.
	FieldRoot = "root"
	// FieldActionKind is the plan action kind.
	FieldActionKind = "action_kind"
	// FieldOrdinal is the plan position of an action.
	FieldOrdinal = "ordinal"
	// FieldProgressPercent is the completion percentage of a long-running stage.
	FieldProgressPercent = "progress_percent"
)

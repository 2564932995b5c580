package services

// Outcome classifies the result of a command that can fail partially.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomePartial   Outcome = "partial"
	OutcomeFailed    Outcome = "failed"
)

// OutcomeFor derives an outcome from completed and failed counts. A run with
// no work and no failures is a success.
func OutcomeFor(completed, failed int) Outcome {
	switch {
	case failed == 0:
		return OutcomeSucceeded
	case completed == 0:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}

package poller

import (
	"context"
	"fmt"

	"ojwatch/internal/submission/classifier"
	"ojwatch/internal/submission/model"
)

// Kind identifies how an observation ended.
type Kind int

const (
	KindResolved Kind = iota + 1
	KindRejected
	KindTimedOut
	KindCancelled
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindResolved:
		return "resolved"
	case KindRejected:
		return "rejected"
	case KindTimedOut:
		return "timed_out"
	case KindCancelled:
		return "cancelled"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the single final result of an observation.
type Outcome struct {
	Kind         Kind
	SubmissionID int64
	// Submission is the last observed snapshot, nil if no check completed.
	Submission *model.Submission
	// Err is set for KindFailed only.
	Err      error
	Attempts int
}

// Message renders user-facing copy for the outcome. Cancelled yields "".
func (o Outcome) Message() string {
	switch o.Kind {
	case KindResolved:
		score := 0
		if o.Submission != nil {
			score = o.Submission.Score
		}
		return fmt.Sprintf("All test cases passed! Score: %d", score)
	case KindRejected:
		if o.Submission == nil {
			return "Submission rejected"
		}
		if diag := o.Submission.Diagnostic(); diag != "" {
			return diag
		}
		return fmt.Sprintf("Submission finished with %s", o.Submission.Status.Label())
	case KindTimedOut:
		return "Submission is still processing, check back later"
	case KindFailed:
		if o.Err == nil {
			return "Error checking submission status"
		}
		return fmt.Sprintf("Error checking submission status: %v", o.Err)
	default:
		return ""
	}
}

// Reason returns the classifier reason for the last snapshot.
func (o Outcome) Reason() string {
	if o.Submission == nil {
		return ""
	}
	return classifier.Reason(*o.Submission)
}

// OutcomeHandler receives every session's outcome exactly once.
type OutcomeHandler interface {
	HandleOutcome(ctx context.Context, outcome Outcome) error
}

// OutcomeHandlerFunc adapts a function to OutcomeHandler.
type OutcomeHandlerFunc func(ctx context.Context, outcome Outcome) error

func (f OutcomeHandlerFunc) HandleOutcome(ctx context.Context, outcome Outcome) error {
	return f(ctx, outcome)
}

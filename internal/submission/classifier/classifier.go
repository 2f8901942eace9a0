// Package classifier maps judge statuses onto the polling stop condition.
package classifier

import (
	"fmt"

	"ojwatch/internal/submission/model"
)

// Class partitions statuses by whether polling should stop.
type Class int

const (
	NonTerminal Class = iota
	TerminalSuccess
	TerminalFailure
)

func (c Class) String() string {
	switch c {
	case TerminalSuccess:
		return "terminal-success"
	case TerminalFailure:
		return "terminal-failure"
	default:
		return "non-terminal"
	}
}

// Terminal reports whether no further change is expected.
func (c Class) Terminal() bool {
	return c == TerminalSuccess || c == TerminalFailure
}

// Classify maps a status onto its class. Unrecognized statuses are NonTerminal
// so a newer judge never stops an observation early.
func Classify(status model.Status) Class {
	switch status {
	case model.StatusAccepted:
		return TerminalSuccess
	case model.StatusWrongAnswer,
		model.StatusTimeLimitExceeded,
		model.StatusMemoryLimitExceeded,
		model.StatusRuntimeError,
		model.StatusCompilationError:
		return TerminalFailure
	default:
		return NonTerminal
	}
}

// Reason returns a short presentable reason for a snapshot.
func Reason(sub model.Submission) string {
	switch Classify(sub.Status) {
	case TerminalSuccess:
		return fmt.Sprintf("score %d", sub.Score)
	case TerminalFailure:
		if diag := sub.Diagnostic(); diag != "" {
			return diag
		}
		return string(sub.Status)
	default:
		return string(sub.Status)
	}
}

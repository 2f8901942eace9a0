package classifier_test

import (
	"testing"

	"ojwatch/internal/submission/classifier"
	"ojwatch/internal/submission/model"
)

func TestClassifyPartition(t *testing.T) {
	cases := map[model.Status]classifier.Class{
		model.StatusPending:             classifier.NonTerminal,
		model.StatusRunning:             classifier.NonTerminal,
		model.StatusAccepted:            classifier.TerminalSuccess,
		model.StatusWrongAnswer:         classifier.TerminalFailure,
		model.StatusTimeLimitExceeded:   classifier.TerminalFailure,
		model.StatusMemoryLimitExceeded: classifier.TerminalFailure,
		model.StatusRuntimeError:        classifier.TerminalFailure,
		model.StatusCompilationError:    classifier.TerminalFailure,
	}
	if len(cases) != len(model.Statuses) {
		t.Fatalf("expected every known status to be covered, got %d of %d", len(cases), len(model.Statuses))
	}
	for _, status := range model.Statuses {
		got := classifier.Classify(status)
		if got != cases[status] {
			t.Fatalf("classify %s: got %s, want %s", status, got, cases[status])
		}
	}
}

func TestClassifyUnknownIsNonTerminal(t *testing.T) {
	for _, raw := range []string{"", "queued", "ACCEPTED", "partially_correct"} {
		status := model.Status(raw)
		if status.Known() {
			t.Fatalf("status %q should be unknown", raw)
		}
		if got := classifier.Classify(status); got != classifier.NonTerminal {
			t.Fatalf("classify %q: got %s, want non-terminal", raw, got)
		}
	}
}

func TestReason(t *testing.T) {
	diag := "  line 3: NameError  "
	blank := "   "
	cases := []struct {
		name string
		sub  model.Submission
		want string
	}{
		{
			name: "accepted reports score",
			sub:  model.Submission{Status: model.StatusAccepted, Score: 100},
			want: "score 100",
		},
		{
			name: "failure prefers diagnostic",
			sub:  model.Submission{Status: model.StatusRuntimeError, ErrorMessage: &diag},
			want: "line 3: NameError",
		},
		{
			name: "failure falls back to status",
			sub:  model.Submission{Status: model.StatusWrongAnswer},
			want: "wrong_answer",
		},
		{
			name: "blank diagnostic falls back to status",
			sub:  model.Submission{Status: model.StatusCompilationError, ErrorMessage: &blank},
			want: "compilation_error",
		},
		{
			name: "non-terminal reports status",
			sub:  model.Submission{Status: model.StatusRunning},
			want: "running",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifier.Reason(tc.sub); got != tc.want {
				t.Fatalf("unexpected reason: got %q, want %q", got, tc.want)
			}
		})
	}
}

// Package gateway is the request/response transport to the remote judge.
// It never retries and never caches; every failure is surfaced to the caller.
package gateway

import (
	"context"
	"strings"

	"ojwatch/internal/submission/model"
	appErr "ojwatch/pkg/errors"
)

// Gateway exposes the two judge operations the submission lifecycle needs.
type Gateway interface {
	CreateSubmission(ctx context.Context, code string, language model.Language, problemID int64) (int64, error)
	GetSubmissionStatus(ctx context.Context, id int64) (model.Submission, error)
}

// ListFilter narrows ListSubmissions.
type ListFilter struct {
	ProblemID int64
	Skip      int
	Limit     int
}

// ValidateCreate checks a create payload before it leaves the process.
func ValidateCreate(code string, language model.Language, problemID int64) error {
	if strings.TrimSpace(code) == "" {
		return appErr.ValidationError("code", "required")
	}
	if _, ok := model.ParseLanguage(string(language)); !ok {
		return appErr.New(appErr.LanguageNotSupported).
			WithMessagef("language %q is not supported", language).
			WithDetail("field", "language")
	}
	if problemID <= 0 {
		return appErr.ValidationError("problem_id", "must be positive")
	}
	return nil
}

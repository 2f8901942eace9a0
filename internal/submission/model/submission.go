// Package model defines the submission snapshot exchanged with the judge.
package model

import (
	"strings"
	"time"
)

// Status represents the lifecycle state reported by the judge.
type Status string

const (
	StatusPending             Status = "pending"
	StatusRunning             Status = "running"
	StatusAccepted            Status = "accepted"
	StatusWrongAnswer         Status = "wrong_answer"
	StatusTimeLimitExceeded   Status = "time_limit_exceeded"
	StatusMemoryLimitExceeded Status = "memory_limit_exceeded"
	StatusRuntimeError        Status = "runtime_error"
	StatusCompilationError    Status = "compilation_error"
)

// Statuses lists every status the judge is known to report, in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusRunning,
	StatusAccepted,
	StatusWrongAnswer,
	StatusTimeLimitExceeded,
	StatusMemoryLimitExceeded,
	StatusRuntimeError,
	StatusCompilationError,
}

// Known reports whether s belongs to the closed status set.
func (s Status) Known() bool {
	for _, item := range Statuses {
		if s == item {
			return true
		}
	}
	return false
}

// Label returns a human readable form, e.g. "time limit exceeded".
func (s Status) Label() string {
	if s == "" {
		return "unknown"
	}
	return strings.ReplaceAll(string(s), "_", " ")
}

// Language is a programming language accepted by the judge.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageJava       Language = "java"
	LanguageCPP        Language = "cpp"
)

// Languages lists supported languages.
var Languages = []Language{LanguagePython, LanguageJavaScript, LanguageJava, LanguageCPP}

// ParseLanguage normalizes raw input into a supported language.
func ParseLanguage(raw string) (Language, bool) {
	value := Language(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case "py", "python3":
		value = LanguagePython
	case "js", "node", "nodejs":
		value = LanguageJavaScript
	case "c++", "cxx":
		value = LanguageCPP
	}
	for _, item := range Languages {
		if value == item {
			return value, true
		}
	}
	return value, false
}

// Submission is a full snapshot of one graded attempt.
type Submission struct {
	ID              int64     `json:"id"`
	Code            string    `json:"code"`
	Language        Language  `json:"language"`
	ProblemID       int64     `json:"problem_id"`
	Status          Status    `json:"status"`
	TestCasesPassed int       `json:"test_cases_passed"`
	TotalTestCases  int       `json:"total_test_cases"`
	ExecutionTimeMs *int64    `json:"execution_time_ms,omitempty"`
	MemoryUsedKB    *int64    `json:"memory_used_kb,omitempty"`
	Score           int       `json:"score"`
	ErrorMessage    *string   `json:"error_message,omitempty"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

// Diagnostic returns the trimmed error text, or "" when none was reported.
func (s Submission) Diagnostic() string {
	if s.ErrorMessage == nil {
		return ""
	}
	return strings.TrimSpace(*s.ErrorMessage)
}

// CreateRequest is the create-submission payload.
type CreateRequest struct {
	Code      string   `json:"code"`
	Language  Language `json:"language"`
	ProblemID int64    `json:"problem_id"`
}

// CreateResponse acknowledges a created submission.
type CreateResponse struct {
	ID int64 `json:"id"`
}

package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ojwatch/internal/devjudge/repository"
	"ojwatch/internal/submission/classifier"
	"ojwatch/internal/submission/model"
	appErr "ojwatch/pkg/errors"
	"ojwatch/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultPendingFor     = 2 * time.Second
	defaultRunningFor     = 4 * time.Second
	defaultTotalTestCases = 10
	defaultFullScore      = 100
	defaultMaxCodeBytes   = 64 * 1024
	defaultListLimit      = 100
)

// directivePattern matches "judge: <status> [passed/total] [message]" anywhere
// in a source line, e.g. "# judge: runtime_error 2/5 division by zero".
var directivePattern = regexp.MustCompile(`judge:\s*([a-z_]+)(?:\s+(\d+)/(\d+))?(?:\s+(.+))?`)

// Config holds judge service settings.
type Config struct {
	Repo *repository.SubmissionRepository

	PendingFor     time.Duration
	RunningFor     time.Duration
	DefaultVerdict model.Status
	TotalTestCases int
	FullScore      int
	MaxCodeBytes   int

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// JudgeService simulates an asynchronous judge over stored submissions.
type JudgeService struct {
	repo           *repository.SubmissionRepository
	pendingFor     time.Duration
	runningFor     time.Duration
	defaultVerdict model.Status
	totalTestCases int
	fullScore      int
	maxCodeBytes   int
	now            func() time.Time
}

// ListInput filters a user's submissions.
type ListInput struct {
	ProblemID int64
	Skip      int
	Limit     int
}

// NewJudgeService creates a judge service.
func NewJudgeService(cfg Config) (*JudgeService, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.PendingFor < 0 || cfg.RunningFor < 0 {
		return nil, fmt.Errorf("phase durations must not be negative")
	}
	if cfg.PendingFor == 0 {
		cfg.PendingFor = defaultPendingFor
	}
	if cfg.RunningFor == 0 {
		cfg.RunningFor = defaultRunningFor
	}
	if cfg.DefaultVerdict == "" {
		cfg.DefaultVerdict = model.StatusAccepted
	}
	if !classifier.Classify(cfg.DefaultVerdict).Terminal() {
		return nil, fmt.Errorf("default verdict %q is not terminal", cfg.DefaultVerdict)
	}
	if cfg.TotalTestCases <= 0 {
		cfg.TotalTestCases = defaultTotalTestCases
	}
	if cfg.FullScore <= 0 {
		cfg.FullScore = defaultFullScore
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &JudgeService{
		repo:           cfg.Repo,
		pendingFor:     cfg.PendingFor,
		runningFor:     cfg.RunningFor,
		defaultVerdict: cfg.DefaultVerdict,
		totalTestCases: cfg.TotalTestCases,
		fullScore:      cfg.FullScore,
		maxCodeBytes:   cfg.MaxCodeBytes,
		now:            cfg.Now,
	}, nil
}

// Create stores a new pending submission owned by userID.
func (s *JudgeService) Create(ctx context.Context, userID int64, req model.CreateRequest) (int64, error) {
	if strings.TrimSpace(req.Code) == "" {
		return 0, appErr.ValidationError("code", "required")
	}
	if len(req.Code) > s.maxCodeBytes {
		return 0, appErr.New(appErr.CodeTooLarge).WithDetail("max_bytes", s.maxCodeBytes)
	}
	lang, ok := model.ParseLanguage(string(req.Language))
	if !ok {
		return 0, appErr.New(appErr.LanguageNotSupported).
			WithMessagef("language %q is not supported", req.Language).
			WithDetail("field", "language")
	}
	if req.ProblemID <= 0 {
		return 0, appErr.ValidationError("problem_id", "must be positive")
	}
	exists, err := s.repo.ProblemExists(ctx, req.ProblemID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, appErr.NotFoundError("problem").WithDetail("problem_id", req.ProblemID)
	}

	id, err := s.repo.NextID(ctx)
	if err != nil {
		return 0, err
	}
	rec := &repository.Record{
		Submission: model.Submission{
			ID:             id,
			Code:           req.Code,
			Language:       lang,
			ProblemID:      req.ProblemID,
			Status:         model.StatusPending,
			TotalTestCases: s.totalTestCases,
			SubmittedAt:    s.now().UTC(),
		},
		UserID:  userID,
		Verdict: s.planVerdict(req.Code, len(req.Code)),
	}
	if err := s.repo.Save(ctx, rec); err != nil {
		return 0, err
	}
	if err := s.repo.AppendToUser(ctx, userID, id); err != nil {
		return 0, err
	}
	logger.Info(ctx, "submission accepted",
		zap.Int64("submission_id", id),
		zap.Int64("problem_id", req.ProblemID),
		zap.String("language", string(lang)),
		zap.String("verdict", string(rec.Verdict.Status)),
	)
	return id, nil
}

// Get returns the current snapshot of a submission owned by userID.
func (s *JudgeService) Get(ctx context.Context, userID, id int64) (model.Submission, error) {
	if id <= 0 {
		return model.Submission{}, appErr.New(appErr.SubmissionNotFound).WithDetail("submission_id", id)
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Submission{}, err
	}
	if rec.UserID != userID {
		return model.Submission{}, appErr.ForbiddenError("submission belongs to another user")
	}
	return s.refresh(ctx, rec)
}

// List returns userID's submissions, newest first.
func (s *JudgeService) List(ctx context.Context, userID int64, input ListInput) ([]model.Submission, error) {
	if input.Skip < 0 || input.Limit < 0 {
		return nil, appErr.ValidationError("skip/limit", "must not be negative")
	}
	if input.Limit == 0 {
		input.Limit = defaultListLimit
	}
	ids, err := s.repo.ListUserIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]model.Submission, 0, input.Limit)
	skipped := 0
	for _, id := range ids {
		if len(items) >= input.Limit {
			break
		}
		rec, err := s.repo.Get(ctx, id)
		if err != nil {
			if appErr.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if input.ProblemID > 0 && rec.Submission.ProblemID != input.ProblemID {
			continue
		}
		if skipped < input.Skip {
			skipped++
			continue
		}
		sub, err := s.refresh(ctx, rec)
		if err != nil {
			return nil, err
		}
		items = append(items, sub)
	}
	return items, nil
}

// refresh advances the record to the phase its age implies and persists
// the change.
func (s *JudgeService) refresh(ctx context.Context, rec *repository.Record) (model.Submission, error) {
	next := s.advance(rec.Submission, rec.Verdict)
	if next.Status == rec.Submission.Status {
		return next, nil
	}
	logger.Debug(ctx, "submission advanced",
		zap.Int64("submission_id", next.ID),
		zap.String("from", string(rec.Submission.Status)),
		zap.String("to", string(next.Status)),
	)
	rec.Submission = next
	if err := s.repo.Save(ctx, rec); err != nil {
		return model.Submission{}, err
	}
	return next, nil
}

func (s *JudgeService) advance(sub model.Submission, verdict repository.Verdict) model.Submission {
	if classifier.Classify(sub.Status).Terminal() {
		return sub
	}
	elapsed := s.now().Sub(sub.SubmittedAt)
	switch {
	case elapsed < s.pendingFor:
		sub.Status = model.StatusPending
		return sub
	case elapsed < s.pendingFor+s.runningFor:
		sub.Status = model.StatusRunning
		return sub
	}

	sub.Status = verdict.Status
	sub.TestCasesPassed = verdict.Passed
	sub.TotalTestCases = verdict.Total
	sub.Score = s.score(verdict)
	if verdict.Status != model.StatusCompilationError {
		execTime, memory := verdict.ExecutionTimeMs, verdict.MemoryUsedKB
		sub.ExecutionTimeMs = &execTime
		sub.MemoryUsedKB = &memory
	}
	if verdict.Message != "" {
		msg := verdict.Message
		sub.ErrorMessage = &msg
	}
	return sub
}

func (s *JudgeService) score(v repository.Verdict) int {
	if v.Status == model.StatusAccepted {
		return s.fullScore
	}
	if v.Total <= 0 {
		return 0
	}
	return v.Passed * s.fullScore / v.Total
}

// planVerdict decides the final result up front, from a directive in the
// source or the configured default.
func (s *JudgeService) planVerdict(code string, size int) repository.Verdict {
	verdict := repository.Verdict{
		Status:          s.defaultVerdict,
		Total:           s.totalTestCases,
		ExecutionTimeMs: int64(10 + size%90),
		MemoryUsedKB:    int64(1024 + size%4096),
	}
	if match := findDirective(code); match != nil {
		status := model.Status(match[1])
		if classifier.Classify(status).Terminal() {
			verdict.Status = status
		}
		if match[2] != "" && match[3] != "" {
			passed, errPassed := strconv.Atoi(match[2])
			total, errTotal := strconv.Atoi(match[3])
			if errPassed == nil && errTotal == nil && total > 0 && passed <= total {
				verdict.Passed, verdict.Total = passed, total
			}
		}
		verdict.Message = strings.TrimSpace(match[4])
	}

	switch verdict.Status {
	case model.StatusAccepted:
		verdict.Passed = verdict.Total
		verdict.Message = ""
	case model.StatusCompilationError:
		verdict.Passed = 0
		if verdict.Message == "" {
			verdict.Message = "compilation failed"
		}
	case model.StatusRuntimeError:
		if verdict.Message == "" {
			verdict.Message = "process exited with non-zero status"
		}
	}
	return verdict
}

func findDirective(code string) []string {
	for _, line := range strings.Split(code, "\n") {
		if match := directivePattern.FindStringSubmatch(line); match != nil {
			return match
		}
	}
	return nil
}

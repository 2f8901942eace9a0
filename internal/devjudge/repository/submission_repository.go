package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"ojwatch/internal/common/cache"
	"ojwatch/internal/submission/model"
	appErr "ojwatch/pkg/errors"
)

const (
	submissionKeyPrefix = "devjudge:submission:"
	submissionSeqKey    = "devjudge:submission:seq"
	userListKeyPrefix   = "devjudge:user:"
	problemsKey         = "devjudge:problems"
)

// Verdict is the result a submission settles on once judging completes.
type Verdict struct {
	Status          model.Status `json:"status"`
	Passed          int          `json:"passed"`
	Total           int          `json:"total"`
	Message         string       `json:"message,omitempty"`
	ExecutionTimeMs int64        `json:"execution_time_ms"`
	MemoryUsedKB    int64        `json:"memory_used_kb"`
}

// Record is what the judge persists per submission.
type Record struct {
	Submission model.Submission `json:"submission"`
	UserID     int64            `json:"user_id"`
	Verdict    Verdict          `json:"verdict"`
}

// SubmissionRepository persists submissions in the cache.
type SubmissionRepository struct {
	cache        cache.Cache
	ttl          time.Duration
	historyLimit int64
}

// NewSubmissionRepository creates a repository. ttl 0 keeps records forever;
// historyLimit caps each user's list.
func NewSubmissionRepository(cacheClient cache.Cache, ttl time.Duration, historyLimit int) *SubmissionRepository {
	return &SubmissionRepository{cache: cacheClient, ttl: ttl, historyLimit: int64(historyLimit)}
}

// NextID allocates a submission id.
func (r *SubmissionRepository) NextID(ctx context.Context) (int64, error) {
	if r.cache == nil {
		return 0, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	id, err := r.cache.Incr(ctx, submissionSeqKey)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.CacheError, "allocate submission id failed")
	}
	return id, nil
}

// Save stores a record.
func (r *SubmissionRepository) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Submission.ID <= 0 {
		return appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal submission failed: %w", err)
	}
	if err := r.cache.Set(ctx, submissionKey(rec.Submission.ID), string(data), r.ttl); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store submission failed")
	}
	return nil
}

// Get loads a record by id.
func (r *SubmissionRepository) Get(ctx context.Context, id int64) (*Record, error) {
	if r.cache == nil {
		return nil, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := r.cache.Get(ctx, submissionKey(id))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "load submission failed")
	}
	if val == "" {
		return nil, appErr.New(appErr.SubmissionNotFound).WithDetail("submission_id", id)
	}
	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "decode submission failed")
	}
	return &rec, nil
}

// AppendToUser records id as the user's newest submission.
func (r *SubmissionRepository) AppendToUser(ctx context.Context, userID, id int64) error {
	key := userListKey(userID)
	if err := r.cache.LPush(ctx, key, id); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "append submission failed")
	}
	if r.historyLimit > 0 {
		if err := r.cache.LTrim(ctx, key, 0, r.historyLimit-1); err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "trim submission history failed")
		}
	}
	return nil
}

// ListUserIDs returns the user's submission ids, newest first.
func (r *SubmissionRepository) ListUserIDs(ctx context.Context, userID int64) ([]int64, error) {
	raw, err := r.cache.LRange(ctx, userListKey(userID), 0, -1)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "list submissions failed")
	}
	ids := make([]int64, 0, len(raw))
	for _, item := range raw {
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SaveProblems registers the problem catalog.
func (r *SubmissionRepository) SaveProblems(ctx context.Context, problems map[int64]string) error {
	for id, title := range problems {
		if err := r.cache.HSet(ctx, problemsKey, strconv.FormatInt(id, 10), title); err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "store problem failed")
		}
	}
	return nil
}

// ProblemExists reports whether the problem is in the catalog.
func (r *SubmissionRepository) ProblemExists(ctx context.Context, id int64) (bool, error) {
	ok, err := r.cache.HExists(ctx, problemsKey, strconv.FormatInt(id, 10))
	if err != nil {
		return false, appErr.Wrapf(err, appErr.CacheError, "load problem failed")
	}
	return ok, nil
}

func submissionKey(id int64) string {
	return submissionKeyPrefix + strconv.FormatInt(id, 10)
}

func userListKey(userID int64) string {
	return userListKeyPrefix + strconv.FormatInt(userID, 10) + ":submissions"
}

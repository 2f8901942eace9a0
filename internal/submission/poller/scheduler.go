// Package poller observes submissions until they settle. Each observed
// submission owns one session driven by a single goroutine that issues at
// most one status check at a time and waits Cadence after each response
// before the next one.
package poller

import (
	"context"
	"sort"
	"sync"
	"time"

	"ojwatch/internal/submission/model"
	appErr "ojwatch/pkg/errors"
	"ojwatch/pkg/utils/contextkey"
	"ojwatch/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultCadence     = 2 * time.Second
	DefaultMaxAttempts = 30
)

// StatusSource fetches one status snapshot.
type StatusSource interface {
	GetSubmissionStatus(ctx context.Context, id int64) (model.Submission, error)
}

// Options tunes a single observation. Cadence and MaxAttempts only apply
// when the observation starts a session; a caller that joins a running
// session shares that session's schedule.
type Options struct {
	Cadence     time.Duration
	MaxAttempts int
	// OnSnapshot is called with every snapshot in arrival order.
	OnSnapshot func(model.Submission)
}

func (o Options) withDefaults(def Options) Options {
	if o.Cadence <= 0 {
		o.Cadence = def.Cadence
	}
	if o.Cadence <= 0 {
		o.Cadence = DefaultCadence
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	return o
}

// Config configures a Scheduler.
type Config struct {
	Source   StatusSource
	Defaults Options
	Handlers []OutcomeHandler
}

// Scheduler owns every active session, keyed by submission id.
type Scheduler struct {
	source   StatusSource
	defaults Options
	handlers []OutcomeHandler

	mu       sync.Mutex
	sessions map[int64]*Session
	closed   bool
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Source == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("status source is required")
	}
	return &Scheduler{
		source:   cfg.Source,
		defaults: cfg.Defaults.withDefaults(Options{}),
		handlers: cfg.Handlers,
		sessions: make(map[int64]*Session),
	}, nil
}

// Observe blocks until the submission settles, attempts run out, or ctx is
// done, and returns exactly one outcome. A second Observe for an id that is
// already being polled joins the running session instead of starting another,
// keeping that session's cadence and attempt limit.
func (s *Scheduler) Observe(ctx context.Context, id int64, opts Options) Outcome {
	if ctx.Err() != nil {
		return Outcome{Kind: KindCancelled, SubmissionID: id}
	}
	session, token, err := s.acquire(ctx, id, opts)
	if err != nil {
		return Outcome{Kind: KindFailed, SubmissionID: id, Err: err}
	}
	return session.wait(ctx, token)
}

// Cancel ends the session for id on behalf of every observer.
func (s *Scheduler) Cancel(id int64) bool {
	s.mu.Lock()
	session := s.sessions[id]
	s.mu.Unlock()
	if session == nil {
		return false
	}
	return session.Cancel()
}

// Session returns the active session for id.
func (s *Scheduler) Session(id int64) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	return session, ok
}

// Active lists ids with a live session, ascending.
func (s *Scheduler) Active() []int64 {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Shutdown cancels all sessions and waits for their loops to exit.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		session.Cancel()
	}

	waitCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) acquire(ctx context.Context, id int64, opts Options) (*Session, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, 0, appErr.New(appErr.ServiceUnavailable).WithMessage("scheduler is shut down")
	}
	if existing, ok := s.sessions[id]; ok {
		if token, joined := existing.join(opts.OnSnapshot); joined {
			if (opts.Cadence > 0 && opts.Cadence != existing.cadence) ||
				(opts.MaxAttempts > 0 && opts.MaxAttempts != existing.maxAttempts) {
				logger.Debug(ctx, "join active session with its own schedule",
					zap.Int64("submission_id", id),
					zap.Duration("cadence", existing.cadence),
					zap.Int("max_attempts", existing.maxAttempts),
					zap.Duration("requested_cadence", opts.Cadence),
					zap.Int("requested_max_attempts", opts.MaxAttempts),
				)
			} else {
				logger.Debug(ctx, "join active session", zap.Int64("submission_id", id))
			}
			return existing, token, nil
		}
	}

	opts = opts.withDefaults(s.defaults)
	session := newSession(s, id, opts)
	token, _ := session.join(opts.OnSnapshot)
	s.sessions[id] = session
	s.wg.Add(1)
	go session.run(loopContext(ctx, id))
	logger.Info(ctx, "start observing submission",
		zap.Int64("submission_id", id),
		zap.Duration("cadence", opts.Cadence),
		zap.Int("max_attempts", opts.MaxAttempts),
	)
	return session, token, nil
}

// loopContext keeps the caller's values but not its cancellation; sessions
// are cancelled through their observers instead.
func loopContext(ctx context.Context, id int64) context.Context {
	loopCtx := context.WithoutCancel(ctx)
	if traceID, ok := loopCtx.Value(contextkey.TraceID).(string); !ok || traceID == "" {
		loopCtx = context.WithValue(loopCtx, contextkey.TraceID, uuid.NewString())
	}
	return context.WithValue(loopCtx, contextkey.SubmissionID, id)
}

func (s *Scheduler) release(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[session.id]; ok && current == session {
		delete(s.sessions, session.id)
	}
}

func (s *Scheduler) notify(ctx context.Context, session *Session) {
	outcome := session.Outcome()
	logger.Info(ctx, "submission observation finished",
		zap.String("outcome", outcome.Kind.String()),
		zap.Int("attempts", outcome.Attempts),
	)
	for _, handler := range s.handlers {
		if err := handler.HandleOutcome(ctx, outcome); err != nil {
			logger.Warn(ctx, "outcome handler failed", zap.String("outcome", outcome.Kind.String()), zap.Error(err))
		}
	}
}

package poller

import (
	"context"
	"sync"
	"time"

	"ojwatch/internal/submission/classifier"
	"ojwatch/internal/submission/model"
	"ojwatch/pkg/utils/logger"

	"go.uber.org/zap"
)

// State is a session's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StatePolling
	StateTerminal
	StateTimedOut
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateTerminal:
		return "terminal"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Absorbing reports whether no transition leaves s.
func (s State) Absorbing() bool {
	return s >= StateTerminal
}

func stateFor(kind Kind) State {
	switch kind {
	case KindResolved, KindRejected:
		return StateTerminal
	case KindTimedOut:
		return StateTimedOut
	case KindCancelled:
		return StateCancelled
	default:
		return StateFailed
	}
}

type listener struct {
	token uint64
	fn    func(model.Submission)
}

// Session is the bookkeeping for one polling loop over one submission.
// The attempt counter and timer belong to the loop goroutine; everything
// behind mu may be touched by observers. deliverMu is held while listeners
// run so that a leaving observer is never called after leave returns.
type Session struct {
	id          int64
	cadence     time.Duration
	maxAttempts int
	scheduler   *Scheduler

	deliverMu sync.Mutex

	mu        sync.Mutex
	state     State
	attempts  int
	observers int
	nextToken uint64
	listeners []listener
	last      *model.Submission
	outcome   Outcome

	done   chan struct{}
	exited chan struct{}
}

func newSession(scheduler *Scheduler, id int64, opts Options) *Session {
	s := &Session{
		id:          id,
		cadence:     opts.Cadence,
		maxAttempts: opts.MaxAttempts,
		scheduler:   scheduler,
		state:       StateIdle,
		done:        make(chan struct{}),
		exited:      make(chan struct{}),
	}
	return s
}

// ID returns the observed submission id.
func (s *Session) ID() int64 {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns how many status checks were issued so far.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Last returns the latest snapshot, if any.
func (s *Session) Last() (model.Submission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return model.Submission{}, false
	}
	return *s.last, true
}

// Done is closed once the session reaches an absorbing state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Outcome returns the final outcome; valid after Done is closed.
func (s *Session) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Cancel withdraws the session for every observer. It reports false when
// the session had already ended.
func (s *Session) Cancel() bool {
	return s.finish(Outcome{Kind: KindCancelled})
}

// join registers one more observer unless the session already ended. The
// returned token identifies the observer's listener for leave.
func (s *Session) join(fn func(model.Submission)) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Absorbing() {
		return 0, false
	}
	s.observers++
	s.nextToken++
	token := s.nextToken
	if fn != nil {
		s.listeners = append(s.listeners, listener{token: token, fn: fn})
	}
	return token, true
}

// leave drops one observer and its listener; the last one out cancels the
// session.
func (s *Session) leave(token uint64) {
	s.deliverMu.Lock()
	s.mu.Lock()
	for i, l := range s.listeners {
		if l.token == token {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			break
		}
	}
	s.observers--
	last := s.observers <= 0
	s.mu.Unlock()
	s.deliverMu.Unlock()
	if last {
		s.Cancel()
	}
}

func (s *Session) wait(ctx context.Context, token uint64) Outcome {
	select {
	case <-s.done:
		return s.Outcome()
	case <-ctx.Done():
		s.leave(token)
		outcome := Outcome{
			Kind:         KindCancelled,
			SubmissionID: s.id,
			Attempts:     s.Attempts(),
		}
		if last, ok := s.Last(); ok {
			outcome.Submission = &last
		}
		return outcome
	}
}

// finish moves the session into the outcome's absorbing state. Only the
// first call wins.
func (s *Session) finish(outcome Outcome) bool {
	s.mu.Lock()
	if s.state.Absorbing() {
		s.mu.Unlock()
		return false
	}
	s.state = stateFor(outcome.Kind)
	outcome.SubmissionID = s.id
	outcome.Attempts = s.attempts
	if outcome.Submission == nil && s.last != nil {
		last := *s.last
		outcome.Submission = &last
	}
	s.outcome = outcome
	close(s.done)
	s.mu.Unlock()

	s.scheduler.release(s)
	return true
}

// beginAttempt counts the next check, or reports false once the session ended.
func (s *Session) beginAttempt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Absorbing() {
		return false
	}
	s.state = StatePolling
	s.attempts++
	return true
}

// record stores a snapshot. It reports false when the session ended while
// the request was in flight.
func (s *Session) record(sub model.Submission) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Absorbing() {
		return false
	}
	snapshot := sub
	s.last = &snapshot
	return true
}

// deliver hands sub to the listeners still registered. Nothing is delivered
// once the session ended.
func (s *Session) deliver(sub model.Submission) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.mu.Lock()
	if s.state.Absorbing() {
		s.mu.Unlock()
		return
	}
	listeners := make([]listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, l := range listeners {
		l.fn(sub)
	}
}

// run is the schedule-one-check-then-reschedule loop.
func (s *Session) run(ctx context.Context) {
	defer s.scheduler.wg.Done()
	defer close(s.exited)
	defer s.scheduler.notify(ctx, s)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if !s.beginAttempt() {
			return
		}
		attempt := s.Attempts()
		sub, err := s.scheduler.source.GetSubmissionStatus(ctx, s.id)
		if err != nil {
			if s.finish(Outcome{Kind: KindFailed, Err: err}) {
				logger.Warn(ctx, "status check failed", zap.Int("attempt", attempt), zap.Error(err))
			}
			return
		}
		if !s.record(sub) {
			logger.Debug(ctx, "discard status after session ended", zap.Int("attempt", attempt), zap.String("status", string(sub.Status)))
			return
		}
		logger.Debug(ctx, "status checked", zap.Int("attempt", attempt), zap.String("status", string(sub.Status)))
		s.deliver(sub)

		switch classifier.Classify(sub.Status) {
		case classifier.TerminalSuccess:
			s.finish(Outcome{Kind: KindResolved, Submission: &sub})
			return
		case classifier.TerminalFailure:
			s.finish(Outcome{Kind: KindRejected, Submission: &sub})
			return
		}
		if attempt >= s.maxAttempts {
			s.finish(Outcome{Kind: KindTimedOut, Submission: &sub})
			return
		}

		if timer == nil {
			timer = time.NewTimer(s.cadence)
		} else {
			timer.Reset(s.cadence)
		}
		select {
		case <-s.done:
			return
		case <-timer.C:
		}
	}
}

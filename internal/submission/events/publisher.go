// Package events announces observation outcomes on a message queue.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"ojwatch/internal/common/mq"
	"ojwatch/internal/submission/model"
	"ojwatch/internal/submission/poller"
	appErr "ojwatch/pkg/errors"
	"ojwatch/pkg/utils/contextkey"
)

const (
	EventTypeOutcome = "submission.outcome"

	headerEventType = "event-type"
	headerTraceID   = "trace-id"
)

// OutcomeEvent is the JSON body published per outcome.
type OutcomeEvent struct {
	Type            string       `json:"type"`
	SubmissionID    int64        `json:"submission_id"`
	Outcome         string       `json:"outcome"`
	Status          model.Status `json:"status,omitempty"`
	Score           int          `json:"score"`
	TestCasesPassed int          `json:"test_cases_passed"`
	TotalTestCases  int          `json:"total_test_cases"`
	Attempts        int          `json:"attempts"`
	Message         string       `json:"message"`
	Error           string       `json:"error,omitempty"`
	CreatedAt       int64        `json:"created_at"`
}

// MQOutcomePublisher publishes outcomes to a topic. Cancelled outcomes are
// skipped since no result was reached.
type MQOutcomePublisher struct {
	producer mq.Producer
	topic    string
	now      func() time.Time
}

// NewMQOutcomePublisher creates a new outcome publisher.
func NewMQOutcomePublisher(producer mq.Producer, topic string) *MQOutcomePublisher {
	return &MQOutcomePublisher{producer: producer, topic: topic, now: time.Now}
}

var _ poller.OutcomeHandler = (*MQOutcomePublisher)(nil)

// HandleOutcome publishes one event for the outcome.
func (p *MQOutcomePublisher) HandleOutcome(ctx context.Context, outcome poller.Outcome) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("outcome publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("outcome topic is required")
	}
	if outcome.Kind == poller.KindCancelled {
		return nil
	}
	if outcome.SubmissionID <= 0 {
		return appErr.ValidationError("submission_id", "must be positive")
	}

	event := OutcomeEvent{
		Type:         EventTypeOutcome,
		SubmissionID: outcome.SubmissionID,
		Outcome:      outcome.Kind.String(),
		Attempts:     outcome.Attempts,
		Message:      outcome.Message(),
		CreatedAt:    p.now().Unix(),
	}
	if sub := outcome.Submission; sub != nil {
		event.Status = sub.Status
		event.Score = sub.Score
		event.TestCasesPassed = sub.TestCasesPassed
		event.TotalTestCases = sub.TotalTestCases
	}
	if outcome.Err != nil {
		event.Error = outcome.Err.Error()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outcome event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = strconv.FormatInt(outcome.SubmissionID, 10)
	message.SetHeader(headerEventType, EventTypeOutcome)
	if traceID, ok := ctx.Value(contextkey.TraceID).(string); ok && traceID != "" {
		message.SetHeader(headerTraceID, traceID)
	}
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.EventPublishFailed, "publish outcome event failed")
	}
	return nil
}

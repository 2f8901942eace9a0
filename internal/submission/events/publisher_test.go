package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ojwatch/internal/common/mq"
	"ojwatch/internal/submission/model"
	"ojwatch/internal/submission/poller"
	appErr "ojwatch/pkg/errors"
	"ojwatch/pkg/utils/contextkey"
)

type fakeProducer struct {
	topic    string
	messages []*mq.Message
	err      error
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	if f.err != nil {
		return f.err
	}
	f.topic = topic
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeProducer) PublishBatch(ctx context.Context, topic string, messages []*mq.Message) error {
	for _, msg := range messages {
		if err := f.Publish(ctx, topic, msg); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func TestHandleOutcomePublishesEvent(t *testing.T) {
	producer := &fakeProducer{}
	publisher := NewMQOutcomePublisher(producer, "submission-outcomes")
	publisher.now = func() time.Time { return time.Unix(1700000000, 0) }

	ctx := context.WithValue(context.Background(), contextkey.TraceID, "trace-1")
	outcome := poller.Outcome{
		Kind:         poller.KindResolved,
		SubmissionID: 42,
		Attempts:     3,
		Submission:   &model.Submission{ID: 42, Status: model.StatusAccepted, Score: 100, TestCasesPassed: 10, TotalTestCases: 10},
	}
	if err := publisher.HandleOutcome(ctx, outcome); err != nil {
		t.Fatalf("handle outcome failed: %v", err)
	}
	if producer.topic != "submission-outcomes" || len(producer.messages) != 1 {
		t.Fatalf("unexpected publish: topic=%q count=%d", producer.topic, len(producer.messages))
	}
	msg := producer.messages[0]
	if msg.ID != "42" {
		t.Fatalf("unexpected message id: %q", msg.ID)
	}
	if v, _ := msg.GetHeader(headerTraceID); v != "trace-1" {
		t.Fatalf("trace header missing: %q", v)
	}
	var event OutcomeEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		t.Fatalf("decode event failed: %v", err)
	}
	if event.Outcome != "resolved" || event.Score != 100 || event.Attempts != 3 || event.CreatedAt != 1700000000 {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Message != "All test cases passed! Score: 100" {
		t.Fatalf("unexpected message: %q", event.Message)
	}
}

func TestHandleOutcomeSkipsCancelled(t *testing.T) {
	producer := &fakeProducer{}
	publisher := NewMQOutcomePublisher(producer, "submission-outcomes")
	if err := publisher.HandleOutcome(context.Background(), poller.Outcome{Kind: poller.KindCancelled, SubmissionID: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(producer.messages) != 0 {
		t.Fatalf("cancelled outcome must not be published")
	}
}

func TestHandleOutcomeCarriesFailure(t *testing.T) {
	producer := &fakeProducer{}
	publisher := NewMQOutcomePublisher(producer, "submission-outcomes")
	err := publisher.HandleOutcome(context.Background(), poller.Outcome{
		Kind:         poller.KindFailed,
		SubmissionID: 5,
		Err:          errors.New("connection refused"),
	})
	if err != nil {
		t.Fatalf("handle outcome failed: %v", err)
	}
	var event OutcomeEvent
	if err := json.Unmarshal(producer.messages[0].Body, &event); err != nil {
		t.Fatalf("decode event failed: %v", err)
	}
	if event.Outcome != "failed" || event.Error != "connection refused" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestHandleOutcomeWrapsProducerError(t *testing.T) {
	publisher := NewMQOutcomePublisher(&fakeProducer{err: errors.New("broker down")}, "submission-outcomes")
	err := publisher.HandleOutcome(context.Background(), poller.Outcome{Kind: poller.KindTimedOut, SubmissionID: 9})
	if !appErr.Is(err, appErr.EventPublishFailed) {
		t.Fatalf("expected publish failure, got %v", err)
	}
}

func TestHandleOutcomeRequiresConfiguration(t *testing.T) {
	var publisher *MQOutcomePublisher
	if err := publisher.HandleOutcome(context.Background(), poller.Outcome{Kind: poller.KindResolved, SubmissionID: 1}); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected service unavailable, got %v", err)
	}
	if err := NewMQOutcomePublisher(&fakeProducer{}, "").HandleOutcome(context.Background(), poller.Outcome{Kind: poller.KindResolved, SubmissionID: 1}); !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("expected invalid params, got %v", err)
	}
}

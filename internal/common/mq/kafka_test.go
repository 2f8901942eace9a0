package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	written []kafka.Message
	err     error
	closes  int
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closes++
	return nil
}

func TestNewKafkaProducerRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaProducer(KafkaConfig{}); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestPublishWritesKeyedMessage(t *testing.T) {
	writer := &fakeWriter{}
	producer := &KafkaProducer{writer: writer}

	msg := NewMessage([]byte(`{"kind":"resolved"}`))
	msg.ID = "42"
	msg.SetHeader("event", "submission.outcome")
	msg.Timestamp = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := producer.Publish(context.Background(), "outcomes", msg); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(writer.written) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.written))
	}
	got := writer.written[0]
	if got.Topic != "outcomes" || string(got.Key) != "42" || string(got.Value) != `{"kind":"resolved"}` {
		t.Fatalf("unexpected message: %+v", got)
	}
	headers := make(map[string]string)
	for _, h := range got.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event"] != "submission.outcome" || headers[headerID] != "42" {
		t.Fatalf("unexpected headers: %v", headers)
	}
	if headers[headerTimestamp] != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected timestamp header: %q", headers[headerTimestamp])
	}
}

func TestPublishRejectsBadInput(t *testing.T) {
	producer := &KafkaProducer{writer: &fakeWriter{}}
	if err := producer.Publish(context.Background(), "outcomes", nil); err == nil {
		t.Fatalf("expected error for nil message")
	}
	if err := producer.Publish(context.Background(), "", NewMessage(nil)); err == nil {
		t.Fatalf("expected error for empty topic")
	}
	if err := producer.PublishBatch(context.Background(), "outcomes", nil); err == nil {
		t.Fatalf("expected error for empty batch")
	}
}

func TestPublishAfterClose(t *testing.T) {
	writer := &fakeWriter{}
	producer := &KafkaProducer{writer: writer}
	if err := producer.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if writer.closes != 1 {
		t.Fatalf("writer closed %d times", writer.closes)
	}
	if err := producer.Publish(context.Background(), "outcomes", NewMessage(nil)); err == nil {
		t.Fatalf("expected error after close")
	}
}

func TestPublishSurfacesWriterError(t *testing.T) {
	boom := errors.New("broker down")
	producer := &KafkaProducer{writer: &fakeWriter{err: boom}}
	if err := producer.Publish(context.Background(), "outcomes", NewMessage(nil)); !errors.Is(err, boom) {
		t.Fatalf("expected writer error, got %v", err)
	}
}

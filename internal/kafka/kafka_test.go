package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/apperrors"
	"github.com/shubhsaxena/nearby-assistant/internal/config"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/resilience"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func newTestConsumer(handler MessageHandler) (*Consumer, *fakeReader, *fakeWriter) {
	reader := &fakeReader{}
	dlq := &fakeWriter{}
	return &Consumer{
		reader:    reader,
		dlqWriter: dlq,
		handler:   handler,
		cfg:       config.KafkaConfig{TopicChanges: "cache.changes", MaxRetries: 3},
		retry:     resilience.RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2},
		logger:    zap.NewNop(),
	}, reader, dlq
}

func encode(t *testing.T, event models.ChangeEvent) kafka.Message {
	t.Helper()
	msg, err := changeMessage(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return msg
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestChangeMessage(t *testing.T) {
	msg := encode(t, models.ChangeEvent{Type: "CREATE", Group: "Taste", Identity: "Rooftop", Source: "node-a"})

	if string(msg.Key) != "Taste" {
		t.Errorf("expected group key, got %q", msg.Key)
	}
	if header(msg, "event_type") != "CREATE" || header(msg, "source") != "node-a" {
		t.Errorf("unexpected headers: %+v", msg.Headers)
	}

	var decoded models.ChangeEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Identity != "Rooftop" {
		t.Errorf("expected identity Rooftop, got %q", decoded.Identity)
	}
	if decoded.Timestamp.IsZero() {
		t.Error("expected timestamp to be filled")
	}
}

func TestProducer_PublishChange(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: zap.NewNop()}

	if err := p.PublishChange(context.Background(), models.ChangeEvent{Type: "CLEAR"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
}

func TestProcessMessage_Success(t *testing.T) {
	var got *models.ChangeEvent
	c, reader, dlq := newTestConsumer(func(_ context.Context, ev *models.ChangeEvent) error {
		got = ev
		return nil
	})

	c.processMessage(context.Background(), encode(t, models.ChangeEvent{Type: "DELETE", Group: "Place", Identity: "fsq-1"}))

	if got == nil || got.Identity != "fsq-1" {
		t.Errorf("expected handler to receive event, got %+v", got)
	}
	if len(reader.committed) != 1 {
		t.Errorf("expected commit, got %d", len(reader.committed))
	}
	if len(dlq.msgs) != 0 {
		t.Errorf("expected no DLQ messages, got %d", len(dlq.msgs))
	}
}

func TestProcessMessage_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	c, _, dlq := newTestConsumer(func(context.Context, *models.ChangeEvent) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	c.processMessage(context.Background(), encode(t, models.ChangeEvent{Type: "CREATE", Group: "Taste"}))

	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
	if len(dlq.msgs) != 0 {
		t.Errorf("expected no DLQ messages, got %d", len(dlq.msgs))
	}
}

func TestProcessMessage_ExhaustedGoesToDLQ(t *testing.T) {
	calls := 0
	c, reader, dlq := newTestConsumer(func(context.Context, *models.ChangeEvent) error {
		calls++
		return errors.New("store down")
	})

	c.processMessage(context.Background(), encode(t, models.ChangeEvent{Type: "CREATE", Group: "Taste"}))

	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if len(dlq.msgs) != 1 {
		t.Fatalf("expected 1 DLQ message, got %d", len(dlq.msgs))
	}
	if header(dlq.msgs[0], "original_topic") != "cache.changes" {
		t.Errorf("expected original topic header, got %+v", dlq.msgs[0].Headers)
	}
	if len(reader.committed) != 1 {
		t.Error("expected message to be committed after DLQ")
	}
}

func TestProcessMessage_InvalidEventSkipsRetries(t *testing.T) {
	calls := 0
	c, reader, dlq := newTestConsumer(func(context.Context, *models.ChangeEvent) error {
		calls++
		return apperrors.ValidationFailure("unknown cache group")
	})

	c.processMessage(context.Background(), encode(t, models.ChangeEvent{Type: "CREATE", Group: "Bogus"}))

	if calls != 1 {
		t.Errorf("expected 1 attempt, got %d", calls)
	}
	if len(dlq.msgs) != 1 {
		t.Fatalf("expected 1 DLQ message, got %d", len(dlq.msgs))
	}
	if got := header(dlq.msgs[0], "dlq_reason"); got == "" {
		t.Error("expected dlq reason header")
	}
	if len(reader.committed) != 1 {
		t.Error("expected message to be committed after DLQ")
	}
}

func TestProcessMessage_UndecodableGoesToDLQ(t *testing.T) {
	called := false
	c, reader, dlq := newTestConsumer(func(context.Context, *models.ChangeEvent) error {
		called = true
		return nil
	})

	c.processMessage(context.Background(), kafka.Message{Value: []byte("{broken")})

	if called {
		t.Error("handler should not run for undecodable messages")
	}
	if len(dlq.msgs) != 1 || len(reader.committed) != 1 {
		t.Errorf("expected DLQ and commit, got %d and %d", len(dlq.msgs), len(reader.committed))
	}
}

func TestConsumer_StartStop(t *testing.T) {
	c, _, _ := newTestConsumer(func(context.Context, *models.ChangeEvent) error { return nil })

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

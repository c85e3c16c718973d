//go:build !integration

package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/infra/worker"
)

type mockWriter struct {
	mu       sync.Mutex
	WriteErr error
	msgs     []kafka.Message
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error { return nil }

type recordingPublisher struct {
	mu   sync.Mutex
	seen []model.LedgerEvent
	done chan struct{}
}

func (r *recordingPublisher) Publish(ctx context.Context, ev model.LedgerEvent) error {
	r.mu.Lock()
	r.seen = append(r.seen, ev)
	r.mu.Unlock()
	if r.done != nil {
		r.done <- struct{}{}
	}
	return nil
}

func sampleEvent() model.LedgerEvent {
	return model.NewLedgerEvent(model.LedgerEventPurchaseCompleted, "pur_1", model.PurchaseCompletedPayload{
		PurchaseID: "pur_1",
		BuyerID:    "u1",
		ContentID:  "c1",
		Amount:     2000,
	}, time.Now().UTC())
}

func TestKafkaPublisher_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("writes JSON keyed by aggregate", func(t *testing.T) {
		// --- Arrange ---
		w := &mockWriter{}
		p := &KafkaPublisher{writer: w, topic: "paywall.ledger"}
		ev := sampleEvent()

		// --- Act ---
		err := p.Publish(ctx, ev)

		// --- Assert ---
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
		if len(w.msgs) != 1 {
			t.Fatalf("messages = %d", len(w.msgs))
		}
		msg := w.msgs[0]
		if string(msg.Key) != "pur_1" {
			t.Errorf("key = %s", msg.Key)
		}
		var decoded map[string]any
		if err := json.Unmarshal(msg.Value, &decoded); err != nil {
			t.Fatalf("value is not JSON: %v", err)
		}
		if decoded["type"] != string(model.LedgerEventPurchaseCompleted) {
			t.Errorf("type = %v", decoded["type"])
		}
	})

	t.Run("surfaces broker errors", func(t *testing.T) {
		p := &KafkaPublisher{writer: &mockWriter{WriteErr: errors.New("leader not available")}}
		if err := p.Publish(ctx, sampleEvent()); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("requires brokers and topic", func(t *testing.T) {
		if _, err := NewKafkaPublisher(nil, "t"); err == nil {
			t.Error("expected an error without brokers")
		}
		if _, err := NewKafkaPublisher([]string{"localhost:9092"}, ""); err == nil {
			t.Error("expected an error without topic")
		}
	})
}

func TestAsyncPublisher_Publish(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("delivers through the pool", func(t *testing.T) {
		pool := worker.NewPool(1, 4, &logger)
		pool.Start(context.Background())
		defer pool.Stop()
		inner := &recordingPublisher{done: make(chan struct{}, 1)}
		p := NewAsyncPublisher(inner, pool, time.Second, &logger)

		if err := p.Publish(context.Background(), sampleEvent()); err != nil {
			t.Fatalf("publish: %v", err)
		}
		select {
		case <-inner.done:
		case <-time.After(2 * time.Second):
			t.Fatal("event was not delivered")
		}
	})

	t.Run("drops when the queue is full", func(t *testing.T) {
		pool := worker.NewPool(1, 1, &logger) // never started
		p := NewAsyncPublisher(&recordingPublisher{}, pool, time.Second, &logger)
		_ = p.Publish(context.Background(), sampleEvent())
		if err := p.Publish(context.Background(), sampleEvent()); !errors.Is(err, worker.ErrQueueFull) {
			t.Errorf("expected ErrQueueFull, got %v", err)
		}
	})
}

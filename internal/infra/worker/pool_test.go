//go:build !integration

package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func TestPool(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("runs submitted tasks and drains on stop", func(t *testing.T) {
		// --- Arrange ---
		p := NewPool(2, 16, &logger)
		var ran atomic.Int64
		var wg sync.WaitGroup

		// --- Act ---
		p.Start(context.Background())
		for i := 0; i < 10; i++ {
			wg.Add(1)
			if err := p.Submit(func(ctx context.Context) error {
				defer wg.Done()
				ran.Add(1)
				return nil
			}); err != nil {
				t.Fatalf("submit: %v", err)
			}
		}
		wg.Wait()
		p.Stop()

		// --- Assert ---
		if ran.Load() != 10 {
			t.Errorf("ran = %d, want 10", ran.Load())
		}
		if err := p.Submit(func(ctx context.Context) error { return nil }); err == nil {
			t.Error("submit after stop must fail")
		}
	})

	t.Run("rejects when the queue is full", func(t *testing.T) {
		p := NewPool(1, 1, &logger) // not started: nothing consumes
		noop := func(ctx context.Context) error { return nil }
		if err := p.Submit(noop); err != nil {
			t.Fatalf("first submit: %v", err)
		}
		if err := p.Submit(noop); !errors.Is(err, ErrQueueFull) {
			t.Errorf("expected ErrQueueFull, got %v", err)
		}
	})

	t.Run("survives a panicking task", func(t *testing.T) {
		p := NewPool(1, 4, &logger)
		p.Start(context.Background())
		done := make(chan struct{})
		_ = p.Submit(func(ctx context.Context) error { panic("boom") })
		_ = p.Submit(func(ctx context.Context) error { close(done); return nil })
		<-done
		p.Stop()
	})
}

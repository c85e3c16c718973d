//go:build !integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"creator-paywall/internal/domain/ports/repository"
)

func TestIntentLog(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should list only intents older than the cutoff, oldest first", func(t *testing.T) {
		// --- Arrange ---
		mem := newMemRedis()
		il := NewIntentLog(mem, time.Hour, &logger)
		for i, ref := range []string{"pi_b", "pi_a", "pi_new"} {
			created := base.Add(time.Duration(i) * time.Minute)
			if ref == "pi_a" {
				created = base.Add(-time.Minute)
			}
			if ref == "pi_new" {
				created = base.Add(10 * time.Minute)
			}
			if err := il.Track(ctx, repository.PendingIntent{IntentRef: ref, BuyerID: "u1", ContentID: "c1", CreatedAt: created}); err != nil {
				t.Fatalf("track %s: %v", ref, err)
			}
		}

		// --- Act ---
		stale, err := il.ListStale(ctx, base.Add(5*time.Minute), 10)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(stale) != 2 || stale[0].IntentRef != "pi_a" || stale[1].IntentRef != "pi_b" {
			t.Fatalf("unexpected stale set: %+v", stale)
		}
		if stale[0].BuyerID != "u1" || stale[0].ContentID != "c1" {
			t.Errorf("details not round-tripped: %+v", stale[0])
		}
		if mem.ttl[intentKeyPrefix+"pi_a"] != time.Hour {
			t.Errorf("detail key must carry the retention ttl")
		}
	})

	t.Run("should forget both the index entry and the details", func(t *testing.T) {
		mem := newMemRedis()
		il := NewIntentLog(mem, time.Hour, &logger)
		_ = il.Track(ctx, repository.PendingIntent{IntentRef: "pi_1", BuyerID: "u1", ContentID: "c1", CreatedAt: base})

		if err := il.Forget(ctx, "pi_1"); err != nil {
			t.Fatalf("forget: %v", err)
		}

		if mem.zcard(pendingIntentsKey) != 0 {
			t.Error("index entry left behind")
		}
		if _, err := mem.Get(ctx, intentKeyPrefix+"pi_1"); err == nil {
			t.Error("detail key left behind")
		}
	})

	t.Run("should prune index entries whose details expired", func(t *testing.T) {
		mem := newMemRedis()
		il := NewIntentLog(mem, time.Hour, &logger)
		_ = il.Track(ctx, repository.PendingIntent{IntentRef: "pi_gone", BuyerID: "u1", ContentID: "c1", CreatedAt: base})
		_ = mem.Del(ctx, intentKeyPrefix+"pi_gone")

		stale, err := il.ListStale(ctx, base.Add(time.Hour), 10)

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(stale) != 0 {
			t.Errorf("expected nothing, got %+v", stale)
		}
		if mem.zcard(pendingIntentsKey) != 0 {
			t.Error("expired entry should be pruned from the index")
		}
	})

	t.Run("should defer an intent behind newer ones and keep its creation time", func(t *testing.T) {
		// --- Arrange ---
		mem := newMemRedis()
		il := NewIntentLog(mem, time.Hour, &logger)
		_ = il.Track(ctx, repository.PendingIntent{IntentRef: "pi_old", BuyerID: "u1", ContentID: "c1", CreatedAt: base})
		_ = il.Track(ctx, repository.PendingIntent{IntentRef: "pi_newer", BuyerID: "u1", ContentID: "c2", CreatedAt: base.Add(time.Minute)})

		// --- Act ---
		if err := il.Defer(ctx, "pi_old", base.Add(10*time.Minute)); err != nil {
			t.Fatalf("defer: %v", err)
		}
		first, _ := il.ListStale(ctx, base.Add(5*time.Minute), 1)
		all, _ := il.ListStale(ctx, base.Add(time.Hour), 10)

		// --- Assert ---
		if len(first) != 1 || first[0].IntentRef != "pi_newer" {
			t.Fatalf("deferred intent must not hold the batch, got %+v", first)
		}
		if len(all) != 2 || all[1].IntentRef != "pi_old" || !all[1].CreatedAt.Equal(base) {
			t.Errorf("deferred intent must come last with its creation time, got %+v", all)
		}
	})

	t.Run("should not bring back a forgotten intent on defer", func(t *testing.T) {
		mem := newMemRedis()
		il := NewIntentLog(mem, time.Hour, &logger)
		_ = il.Track(ctx, repository.PendingIntent{IntentRef: "pi_1", BuyerID: "u1", ContentID: "c1", CreatedAt: base})
		_ = il.Forget(ctx, "pi_1")

		if err := il.Defer(ctx, "pi_1", base.Add(time.Minute)); err != nil {
			t.Fatalf("defer: %v", err)
		}

		if mem.zcard(pendingIntentsKey) != 0 {
			t.Error("forgotten intent re-added to the index")
		}
	})

	t.Run("should reject tracking an empty reference", func(t *testing.T) {
		il := NewIntentLog(newMemRedis(), time.Hour, &logger)
		if err := il.Track(ctx, repository.PendingIntent{}); err == nil {
			t.Error("expected an error")
		}
	})
}

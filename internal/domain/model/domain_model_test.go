//go:build !integration

package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"creator-paywall/internal/domain"
	"creator-paywall/internal/domain/money"
)

// --- Account Model Tests ---

func TestNewAccount(t *testing.T) {
	t.Run("should create an empty account", func(t *testing.T) {
		acct, err := NewAccount("", "ana")

		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if acct.ID == "" {
			t.Error("expected a generated id")
		}
		if acct.Balance != 0 || acct.TotalEarnings != 0 || acct.TotalSpent != 0 {
			t.Errorf("expected zero money fields, got %+v", acct)
		}
		if !acct.Consistent() {
			t.Error("a fresh account must be consistent")
		}
	})

	t.Run("should fail with a blank username", func(t *testing.T) {
		acct, err := NewAccount("u1", "  ")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
		if acct != nil {
			t.Error("expected nil account on error")
		}
	})
}

func TestAccount_Consistent(t *testing.T) {
	tests := []struct {
		name string
		acct Account
		want bool
	}{
		{"balance within earnings", Account{Balance: 50, TotalEarnings: 100}, true},
		{"balance equals earnings", Account{Balance: 100, TotalEarnings: 100}, true},
		{"balance above earnings", Account{Balance: 101, TotalEarnings: 100}, false},
		{"negative balance", Account{Balance: -1, TotalEarnings: 100}, false},
		{"negative spent", Account{TotalSpent: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.acct.Consistent(); got != tt.want {
				t.Errorf("Consistent() = %v, want %v", got, tt.want)
			}
		})
	}
}

// --- Content Model Tests ---

func TestNewContent(t *testing.T) {
	t.Run("should create active content", func(t *testing.T) {
		c, err := NewContent("", "creator", "Title", 999)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !c.Purchasable() {
			t.Error("new content must be purchasable")
		}
	})

	t.Run("should reject non-positive prices", func(t *testing.T) {
		for _, p := range []int64{0, -5} {
			if _, err := NewContent("", "creator", "Title", p); !errors.Is(err, domain.ErrInvalidAmount) {
				t.Errorf("price %d: expected ErrInvalidAmount, got %v", p, err)
			}
		}
	})

	t.Run("should reject a missing creator", func(t *testing.T) {
		if _, err := NewContent("", "", "Title", 100); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("inactive or nil content is not purchasable", func(t *testing.T) {
		c, _ := NewContent("", "creator", "Title", 100)
		c.IsActive = false
		if c.Purchasable() {
			t.Error("inactive content must not be purchasable")
		}
		var none *Content
		if none.Purchasable() {
			t.Error("nil content must not be purchasable")
		}
	})
}

// --- Purchase Model Tests ---

func TestNewCompletedPurchase(t *testing.T) {
	c, _ := NewContent("c1", "creator", "Title", 2000)
	split, err := money.DefaultPolicy().Split(c.Price)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	p := NewCompletedPurchase("buyer", c, split, "pi_1", now)

	if !strings.HasPrefix(p.ID, PrefixPurchase+"_") {
		t.Errorf("id %q lacks the purchase prefix", p.ID)
	}
	if p.CreatorID != "creator" || p.ContentID != "c1" || p.BuyerID != "buyer" {
		t.Errorf("unexpected parties: %+v", p)
	}
	if p.Status != PurchaseStatusCompleted || !p.PurchasedAt.Equal(now) {
		t.Errorf("unexpected status/time: %s %v", p.Status, p.PurchasedAt)
	}
	if !p.Balanced() {
		t.Errorf("purchase not balanced: %d != %d + %d", p.Amount, p.PlatformFee, p.CreatorEarnings)
	}
	p.PlatformFee++
	if p.Balanced() {
		t.Error("tampered split must not be balanced")
	}
}

func TestIDs_AreUniqueAndSortable(t *testing.T) {
	a := NewWithdrawalID()
	time.Sleep(2 * time.Millisecond)
	b := NewWithdrawalID()
	if a == b {
		t.Fatal("ids must be unique")
	}
	if !(a < b) {
		t.Errorf("ids must sort by creation time: %s >= %s", a, b)
	}
}

func TestWithdrawalIDForKey(t *testing.T) {
	t.Run("should derive the same id for the same user and key", func(t *testing.T) {
		a := WithdrawalIDForKey("creator", "payout-1")
		b := WithdrawalIDForKey("creator", "payout-1")

		if a != b {
			t.Errorf("ids differ: %s != %s", a, b)
		}
		if !strings.HasPrefix(a, PrefixWithdrawal+"_") {
			t.Errorf("id %q lacks the withdrawal prefix", a)
		}
	})

	t.Run("should separate users and keys", func(t *testing.T) {
		base := WithdrawalIDForKey("creator", "payout-1")
		for _, other := range []string{
			WithdrawalIDForKey("creator", "payout-2"),
			WithdrawalIDForKey("other", "payout-1"),
			WithdrawalIDForKey("creatorp", "ayout-1"),
		} {
			if other == base {
				t.Errorf("collision with %s", base)
			}
		}
	})
}

// --- Intent Metadata Tests ---

func TestIntentMetadata(t *testing.T) {
	t.Run("should survive the map form", func(t *testing.T) {
		in := IntentMetadata{ContentID: "c1", BuyerID: "b1", CreatorID: "cr1", PlatformFee: 100, CreatorEarnings: 900}

		out, err := ParseIntentMetadata(in.ToMap())

		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if out != in {
			t.Errorf("got %+v, want %+v", out, in)
		}
	})

	t.Run("should require buyer and content", func(t *testing.T) {
		_, err := ParseIntentMetadata(map[string]string{MetaContentID: "c1"})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("should reject garbage amounts", func(t *testing.T) {
		_, err := ParseIntentMetadata(map[string]string{MetaContentID: "c1", MetaBuyerID: "b1", MetaPlatformFee: "ten"})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

// --- Ledger Event Tests ---

func TestNewLedgerEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	ev := NewLedgerEvent(LedgerEventWithdrawalRequested, "wd_1", WithdrawalPayload{WithdrawalID: "wd_1"}, at)

	if ev.ID == "" {
		t.Error("expected an event id")
	}
	if ev.OccurredAt.Location() != time.UTC || !ev.OccurredAt.Equal(at) {
		t.Errorf("occurred_at = %v", ev.OccurredAt)
	}
	if other := NewLedgerEvent(ev.Type, ev.AggregateID, ev.Payload, at); other.ID == ev.ID {
		t.Error("each event must get its own id")
	}
}

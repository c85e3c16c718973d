package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestRetryable(t *testing.T) {
	base := fmt.Errorf("%w: connection reset", ErrSettlement)

	err := Retryable(base)
	if !IsRetryable(err) {
		t.Fatalf("expected retryable, got %v", err)
	}
	if !errors.Is(err, ErrSettlement) {
		t.Errorf("expected wrapped ErrSettlement to survive, got %v", err)
	}
	if err.Error() != base.Error() {
		t.Errorf("message changed: %q vs %q", err.Error(), base.Error())
	}

	wrapped := fmt.Errorf("confirm: %w", err)
	if !IsRetryable(wrapped) {
		t.Error("expected retryable marker to survive further wrapping")
	}
	if Retryable(wrapped) != wrapped {
		t.Error("expected Retryable to be a no-op on already-marked errors")
	}
	if Retryable(nil) != nil {
		t.Error("expected nil to stay nil")
	}
	if IsRetryable(ErrSettlement) {
		t.Error("bare sentinel must not be retryable")
	}
}

func TestIsBusinessRule(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrSelfPurchase, true},
		{fmt.Errorf("intent: %w", ErrAlreadyPurchased), true},
		{ErrInsufficientBalance, true},
		{ErrPaymentNotSucceeded, true},
		{ErrInvalidSignature, false},
		{Retryable(ErrSettlement), false},
	}
	for _, tt := range tests {
		if got := IsBusinessRule(tt.err); got != tt.want {
			t.Errorf("IsBusinessRule(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

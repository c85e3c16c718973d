//go:build !integration

package api_test

import (
	"context"
	"sync"
	"time"

	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/domain/ports/repository"
	"creator-paywall/internal/usecase"
)

type mockPurchaseUC struct {
	RequestIntentFunc   func(ctx context.Context, buyerID, contentID string) (*usecase.IntentResult, error)
	ConfirmPurchaseFunc func(ctx context.Context, buyerID, contentID, intentRef string) (*model.Purchase, error)
	HasAccessFunc       func(ctx context.Context, userID, contentID string) (bool, error)
}

func (m *mockPurchaseUC) RequestIntent(ctx context.Context, buyerID, contentID string) (*usecase.IntentResult, error) {
	return m.RequestIntentFunc(ctx, buyerID, contentID)
}

func (m *mockPurchaseUC) ConfirmPurchase(ctx context.Context, buyerID, contentID, intentRef string) (*model.Purchase, error) {
	return m.ConfirmPurchaseFunc(ctx, buyerID, contentID, intentRef)
}

func (m *mockPurchaseUC) HasAccess(ctx context.Context, userID, contentID string) (bool, error) {
	return m.HasAccessFunc(ctx, userID, contentID)
}

type mockWithdrawalUC struct {
	WithdrawFunc          func(ctx context.Context, userID string, amount int64, destination, idempotencyKey string) (*usecase.WithdrawalResult, error)
	ReverseByTransferFunc func(ctx context.Context, transferRef string) (*model.Withdrawal, error)
}

func (m *mockWithdrawalUC) Withdraw(ctx context.Context, userID string, amount int64, destination, idempotencyKey string) (*usecase.WithdrawalResult, error) {
	return m.WithdrawFunc(ctx, userID, amount, destination, idempotencyKey)
}

func (m *mockWithdrawalUC) ReverseByTransfer(ctx context.Context, transferRef string) (*model.Withdrawal, error) {
	return m.ReverseByTransferFunc(ctx, transferRef)
}

type mockWebhookUC struct {
	HandleEventFunc func(ctx context.Context, payload []byte, signatureHeader string) error
}

func (m *mockWebhookUC) HandleEvent(ctx context.Context, payload []byte, signatureHeader string) error {
	return m.HandleEventFunc(ctx, payload, signatureHeader)
}

type mockHistoryUC struct {
	PurchasesFunc   func(ctx context.Context, buyerID string, page repository.Page) ([]*model.Purchase, error)
	SalesFunc       func(ctx context.Context, creatorID string, page repository.Page) ([]*model.Purchase, error)
	EarningsFunc    func(ctx context.Context, creatorID string, r repository.DateRange) (model.EarningsSummary, error)
	AccountFunc     func(ctx context.Context, userID string) (*model.Account, error)
	WithdrawalsFunc func(ctx context.Context, userID string, page repository.Page) ([]*usecase.WithdrawalView, error)
}

func (m *mockHistoryUC) Purchases(ctx context.Context, buyerID string, page repository.Page) ([]*model.Purchase, error) {
	return m.PurchasesFunc(ctx, buyerID, page)
}

func (m *mockHistoryUC) Sales(ctx context.Context, creatorID string, page repository.Page) ([]*model.Purchase, error) {
	return m.SalesFunc(ctx, creatorID, page)
}

func (m *mockHistoryUC) Earnings(ctx context.Context, creatorID string, r repository.DateRange) (model.EarningsSummary, error) {
	return m.EarningsFunc(ctx, creatorID, r)
}

func (m *mockHistoryUC) Account(ctx context.Context, userID string) (*model.Account, error) {
	return m.AccountFunc(ctx, userID)
}

func (m *mockHistoryUC) Withdrawals(ctx context.Context, userID string, page repository.Page) ([]*usecase.WithdrawalView, error) {
	return m.WithdrawalsFunc(ctx, userID, page)
}

// countingLimiter allows the first limit hits per key.
type countingLimiter struct {
	mu   sync.Mutex
	hits map[string]int
	err  error
}

func (l *countingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hits == nil {
		l.hits = map[string]int{}
	}
	l.hits[key]++
	return l.hits[key] <= limit, nil
}

type fakeSandbox struct {
	completed []string
}

func (f *fakeSandbox) CompleteIntent(ref string) ([]byte, string, error) {
	f.completed = append(f.completed, ref)
	return []byte(`{"intent":"` + ref + `"}`), "t=1,v1=abc", nil
}

func (f *fakeSandbox) FailIntent(ref string) ([]byte, string, error) {
	return []byte(`{}`), "t=1,v1=abc", nil
}

func (f *fakeSandbox) ReverseTransfer(ref string) ([]byte, string, error) {
	return []byte(`{}`), "t=1,v1=abc", nil
}

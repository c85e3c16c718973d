//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"creator-paywall/internal/domain"
	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/domain/ports/adapter"
	"creator-paywall/internal/domain/ports/repository"
)

// =============================
// Ledger
// =============================

// memLedger is an in-memory LedgerStore. A single mutex stands in for the
// database transaction so every mutating call is atomic.
type memLedger struct {
	mu          sync.Mutex
	contents    map[string]*model.Content
	accounts    map[string]*model.Account
	purchases   []*model.Purchase
	withdrawals []*model.Withdrawal

	// SettleHook runs before the default settle logic; a non-nil error is returned as is.
	SettleHook func(p *model.Purchase) error
	// FindErr fails FindCompletedPurchase when set.
	FindErr error

	calls       atomic.Int64
	settleCalls atomic.Int64
}

var _ repository.LedgerStore = (*memLedger)(nil)

func newMemLedger() *memLedger {
	return &memLedger{
		contents: map[string]*model.Content{},
		accounts: map[string]*model.Account{},
	}
}

func (m *memLedger) addAccount(id string, balance int64) *memLedger {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, _ := model.NewAccount(id, id)
	a.Balance = balance
	a.TotalEarnings = balance
	a.PayoutAccountID = "acct_" + id + "_payout"
	m.accounts[id] = a
	return m
}

func (m *memLedger) addContent(id, creatorID string, price int64) *memLedger {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contents[id] = &model.Content{ID: id, CreatorID: creatorID, Title: "title " + id, Price: price, IsActive: true}
	return m
}

func (m *memLedger) setPrice(contentID string, price int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contents[contentID].Price = price
}

func (m *memLedger) setActive(contentID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contents[contentID].IsActive = active
}

func (m *memLedger) account(id string) model.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.accounts[id]
}

func (m *memLedger) content(id string) model.Content {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.contents[id]
}

func (m *memLedger) completedCount(buyerID, contentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.purchases {
		if p.BuyerID == buyerID && p.ContentID == contentID && p.Status == model.PurchaseStatusCompleted {
			n++
		}
	}
	return n
}

func (m *memLedger) GetContent(ctx context.Context, contentID string) (*model.Content, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contents[contentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memLedger) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memLedger) FindCompletedPurchase(ctx context.Context, buyerID, contentID string) (*model.Purchase, error) {
	m.calls.Add(1)
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findPairLocked(buyerID, contentID)
}

func (m *memLedger) findPairLocked(buyerID, contentID string) (*model.Purchase, error) {
	for _, p := range m.purchases {
		if p.BuyerID == buyerID && p.ContentID == contentID && p.Status == model.PurchaseStatusCompleted {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memLedger) FindPurchaseByPaymentRef(ctx context.Context, paymentRef string) (*model.Purchase, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.purchases {
		if p.PaymentRef == paymentRef {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memLedger) SettlePurchase(ctx context.Context, p *model.Purchase) (*model.Settlement, error) {
	m.calls.Add(1)
	m.settleCalls.Add(1)
	if m.SettleHook != nil {
		if err := m.SettleHook(p); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, err := m.findPairLocked(p.BuyerID, p.ContentID); err == nil {
		return &model.Settlement{Purchase: existing, Created: false}, nil
	}
	for _, e := range m.purchases {
		if e.PaymentRef == p.PaymentRef {
			cp := *e
			return &model.Settlement{Purchase: &cp, Created: false}, nil
		}
	}
	c, ok := m.contents[p.ContentID]
	if !ok || !c.IsActive {
		return nil, domain.ErrContentNotFound
	}
	if c.Price != p.Amount {
		return nil, domain.ErrPriceChanged
	}
	buyer, ok := m.accounts[p.BuyerID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	creator, ok := m.accounts[p.CreatorID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	c.Purchases++
	c.TotalRevenue += p.Amount
	buyer.TotalSpent += p.Amount
	creator.Balance += p.CreatorEarnings
	creator.TotalEarnings += p.CreatorEarnings
	stored := *p
	m.purchases = append(m.purchases, &stored)
	cp := stored
	return &model.Settlement{Purchase: &cp, Created: true}, nil
}

func (m *memLedger) Withdraw(ctx context.Context, w *model.Withdrawal, transfer repository.TransferFunc) (*model.Withdrawal, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[w.UserID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	for _, prior := range m.withdrawals {
		if prior.ID != w.ID {
			continue
		}
		if !prior.SameRequest(w) {
			return nil, domain.ErrIdempotencyReused
		}
		cp := *prior
		return &cp, nil
	}
	if a.Balance < w.Amount {
		return nil, domain.ErrInsufficientBalance
	}
	ref, err := transfer(ctx, w)
	if err != nil {
		return nil, err
	}
	a.Balance -= w.Amount
	w.TransferRef = ref
	stored := *w
	m.withdrawals = append(m.withdrawals, &stored)
	return w, nil
}

func (m *memLedger) ReverseWithdrawal(ctx context.Context, transferRef string) (*model.Withdrawal, bool, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.withdrawals {
		if w.TransferRef != transferRef {
			continue
		}
		if w.Status == model.WithdrawalStatusReversed {
			cp := *w
			return &cp, false, nil
		}
		w.Status = model.WithdrawalStatusReversed
		m.accounts[w.UserID].Balance += w.Amount
		cp := *w
		return &cp, true, nil
	}
	return nil, false, domain.ErrNotFound
}

func (m *memLedger) ListPurchasesByBuyer(ctx context.Context, buyerID string, page repository.Page) ([]*model.Purchase, error) {
	return m.listPurchases(func(p *model.Purchase) bool { return p.BuyerID == buyerID }, page), nil
}

func (m *memLedger) ListSalesByCreator(ctx context.Context, creatorID string, page repository.Page) ([]*model.Purchase, error) {
	return m.listPurchases(func(p *model.Purchase) bool { return p.CreatorID == creatorID }, page), nil
}

func (m *memLedger) listPurchases(keep func(*model.Purchase) bool, page repository.Page) []*model.Purchase {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Purchase
	for _, p := range m.purchases {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PurchasedAt.After(out[j].PurchasedAt) })
	return paginate(out, page)
}

func (m *memLedger) CreatorEarnings(ctx context.Context, creatorID string, r repository.DateRange) (model.EarningsSummary, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	var s model.EarningsSummary
	var gross int64
	for _, p := range m.purchases {
		if p.CreatorID == creatorID && p.Status == model.PurchaseStatusCompleted && r.Contains(p.PurchasedAt) {
			s.TotalEarnings += p.CreatorEarnings
			s.TotalSales++
			gross += p.Amount
		}
	}
	if s.TotalSales > 0 {
		s.AveragePrice = gross / s.TotalSales
	}
	return s, nil
}

func (m *memLedger) ListWithdrawals(ctx context.Context, userID string, page repository.Page) ([]*model.Withdrawal, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Withdrawal
	for i := len(m.withdrawals) - 1; i >= 0; i-- {
		if m.withdrawals[i].UserID == userID {
			cp := *m.withdrawals[i]
			out = append(out, &cp)
		}
	}
	return paginate(out, page), nil
}

var defaultPage = repository.Page{}

func paginate[T any](in []T, page repository.Page) []T {
	page = page.Normalize()
	if page.Offset >= len(in) {
		return nil
	}
	end := page.Offset + page.Limit
	if end > len(in) {
		end = len(in)
	}
	return in[page.Offset:end]
}

// =============================
// Gateway
// =============================

// MockPaymentGateway keeps intents in memory. Tests flip them to succeeded
// with Succeed, mimicking the buyer paying out of band.
type MockPaymentGateway struct {
	mu        sync.Mutex
	intents   map[string]*model.Intent
	transfers map[string]*model.Transfer // by idempotency key

	CreateIntentFunc   func(ctx context.Context, amount int64, metadata map[string]string) (*model.Intent, error)
	RetrieveIntentFunc func(ctx context.Context, intentRef string) (*model.Intent, error)
	CreateTransferFunc func(ctx context.Context, amount int64, destination, idempotencyKey string) (*model.Transfer, error)
	VerifyFunc         func(payload []byte, signatureHeader string) (*model.GatewayEvent, error)

	createCalls   atomic.Int64
	retrieveCalls atomic.Int64
	transferCalls atomic.Int64
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

const validSignature = "sig-ok"

func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{
		intents:   map[string]*model.Intent{},
		transfers: map[string]*model.Transfer{},
	}
}

func (g *MockPaymentGateway) Name() string { return "mockpay" }

func (g *MockPaymentGateway) CreateIntent(ctx context.Context, amount int64, metadata map[string]string) (*model.Intent, error) {
	g.createCalls.Add(1)
	if g.CreateIntentFunc != nil {
		return g.CreateIntentFunc(ctx, amount, metadata)
	}
	ref := "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	in := &model.Intent{
		Ref:          ref,
		ClientSecret: ref + "_secret",
		Amount:       amount,
		Currency:     "usd",
		Status:       model.IntentStatusRequiresPayment,
		Metadata:     metadata,
	}
	g.mu.Lock()
	g.intents[ref] = in
	g.mu.Unlock()
	cp := *in
	return &cp, nil
}

func (g *MockPaymentGateway) RetrieveIntent(ctx context.Context, intentRef string) (*model.Intent, error) {
	g.retrieveCalls.Add(1)
	if g.RetrieveIntentFunc != nil {
		return g.RetrieveIntentFunc(ctx, intentRef)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[intentRef]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *in
	return &cp, nil
}

func (g *MockPaymentGateway) CreateTransfer(ctx context.Context, amount int64, destination, idempotencyKey string) (*model.Transfer, error) {
	g.transferCalls.Add(1)
	if g.CreateTransferFunc != nil {
		return g.CreateTransferFunc(ctx, amount, destination, idempotencyKey)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if tr, ok := g.transfers[idempotencyKey]; ok {
		cp := *tr
		return &cp, nil
	}
	tr := &model.Transfer{Ref: "tr_" + idempotencyKey, Amount: amount, Destination: destination, Status: "pending"}
	g.transfers[idempotencyKey] = tr
	cp := *tr
	return &cp, nil
}

// VerifyWebhookSignature accepts validSignature and decodes payload as a
// GatewayEvent.
func (g *MockPaymentGateway) VerifyWebhookSignature(payload []byte, signatureHeader string) (*model.GatewayEvent, error) {
	if g.VerifyFunc != nil {
		return g.VerifyFunc(payload, signatureHeader)
	}
	if signatureHeader != validSignature {
		return nil, domain.ErrInvalidSignature
	}
	var ev model.GatewayEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, domain.ErrInvalidSignature
	}
	return &ev, nil
}

// Succeed marks an intent as paid.
func (g *MockPaymentGateway) Succeed(ref string) {
	g.setStatus(ref, model.IntentStatusSucceeded)
}

func (g *MockPaymentGateway) setStatus(ref string, st model.IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[ref].Status = st
}

// putIntent registers a succeeded intent directly, bypassing RequestIntent.
func (g *MockPaymentGateway) putIntent(ref string, amount int64, meta model.IntentMetadata) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[ref] = &model.Intent{Ref: ref, Amount: amount, Currency: "usd", Status: model.IntentStatusSucceeded, Metadata: meta.ToMap()}
}

// =============================
// Intent log / events / locks / sealing
// =============================

type MockIntentLog struct {
	mu       sync.Mutex
	pending  map[string]repository.PendingIntent
	TrackErr error
}

var _ repository.IntentLog = (*MockIntentLog)(nil)

func NewMockIntentLog() *MockIntentLog {
	return &MockIntentLog{pending: map[string]repository.PendingIntent{}}
}

func (l *MockIntentLog) Track(ctx context.Context, pi repository.PendingIntent) error {
	if l.TrackErr != nil {
		return l.TrackErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[pi.IntentRef] = pi
	return nil
}

func (l *MockIntentLog) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]repository.PendingIntent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []repository.PendingIntent
	for _, pi := range l.pending {
		if pi.CreatedAt.Before(olderThan) {
			out = append(out, pi)
		}
	}
	return out, nil
}

func (l *MockIntentLog) Defer(ctx context.Context, intentRef string, next time.Time) error {
	return nil
}

func (l *MockIntentLog) Forget(ctx context.Context, intentRef string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, intentRef)
	return nil
}

func (l *MockIntentLog) has(ref string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.pending[ref]
	return ok
}

type MockEventPublisher struct {
	mu     sync.Mutex
	events []model.LedgerEvent
}

var _ adapter.EventPublisher = (*MockEventPublisher)(nil)

func (p *MockEventPublisher) Publish(ctx context.Context, ev model.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *MockEventPublisher) count(t model.LedgerEventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// MockLocker is an in-process Locker.
type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", errors.New("locked")
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

// prefixSealer is a reversible stand-in for the AES sealer.
type prefixSealer struct{}

var _ adapter.Sealer = prefixSealer{}

func (prefixSealer) Seal(plain string) (string, error) { return "sealed:" + plain, nil }

func (prefixSealer) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, "sealed:") {
		return "", errors.New("not sealed")
	}
	return strings.TrimPrefix(sealed, "sealed:"), nil
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

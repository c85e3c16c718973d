package payment

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"creator-paywall/internal/domain"
	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/domain/ports/adapter"
	"creator-paywall/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*SandboxGateway)(nil)

// SandboxGateway is an in-process provider for local runs and tests.
// Intents stay pending until CompleteIntent or FailIntent is called, and
// webhooks are signed with HMAC-SHA256 the same way the real provider does.
type SandboxGateway struct {
	mu        sync.Mutex
	seq       int64
	secret    []byte
	currency  string
	tolerance time.Duration
	intents   map[string]*model.Intent
	transfers map[string]*model.Transfer // idempotency key -> transfer
	byRef     map[string]*model.Transfer
	now       func() time.Time
}

func NewSandboxGateway(webhookSecret, currency string) *SandboxGateway {
	if currency == "" {
		currency = "usd"
	}
	return &SandboxGateway{
		secret:    []byte(webhookSecret),
		currency:  currency,
		tolerance: 5 * time.Minute,
		intents:   make(map[string]*model.Intent),
		transfers: make(map[string]*model.Transfer),
		byRef:     make(map[string]*model.Transfer),
		now:       time.Now,
	}
}

func (g *SandboxGateway) Name() string { return "sandbox" }

func (g *SandboxGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_sbx_%d", prefix, g.seq)
}

func (g *SandboxGateway) CreateIntent(ctx context.Context, amount int64, metadata map[string]string) (*model.Intent, error) {
	start := time.Now()
	if amount <= 0 {
		err := fmt.Errorf("%w: intent amount %d", domain.ErrInvalidAmount, amount)
		metrics.ObserveGatewayCall(g.Name(), "create_intent", time.Since(start), err)
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := g.next("pi")
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	in := &model.Intent{
		Ref:          ref,
		ClientSecret: ref + "_secret_" + randHex(8),
		Amount:       amount,
		Currency:     g.currency,
		Status:       model.IntentStatusRequiresPayment,
		Metadata:     md,
	}
	g.intents[ref] = in
	metrics.ObserveGatewayCall(g.Name(), "create_intent", time.Since(start), nil)
	cp := *in
	return &cp, nil
}

func (g *SandboxGateway) RetrieveIntent(ctx context.Context, intentRef string) (*model.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[intentRef]
	if !ok {
		return nil, fmt.Errorf("%w: intent %s", domain.ErrNotFound, intentRef)
	}
	cp := *in
	return &cp, nil
}

func (g *SandboxGateway) CreateTransfer(ctx context.Context, amount int64, destination, idempotencyKey string) (*model.Transfer, error) {
	if destination == "" {
		return nil, errors.New("sandbox: transfer destination required")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if idempotencyKey != "" {
		if tr, ok := g.transfers[idempotencyKey]; ok {
			cp := *tr
			return &cp, nil
		}
	}
	tr := &model.Transfer{Ref: g.next("tr"), Amount: amount, Destination: destination, Status: "created"}
	if idempotencyKey != "" {
		g.transfers[idempotencyKey] = tr
	}
	g.byRef[tr.Ref] = tr
	cp := *tr
	return &cp, nil
}

// CompleteIntent marks the intent paid and returns the signed
// payment_intent.succeeded notification the provider would send.
func (g *SandboxGateway) CompleteIntent(intentRef string) (payload []byte, signature string, err error) {
	return g.settle(intentRef, model.IntentStatusSucceeded, model.EventIntentSucceeded)
}

func (g *SandboxGateway) FailIntent(intentRef string) (payload []byte, signature string, err error) {
	return g.settle(intentRef, model.IntentStatusFailed, model.EventIntentFailed)
}

// ReverseTransfer returns the signed transfer.reversed notification.
func (g *SandboxGateway) ReverseTransfer(transferRef string) (payload []byte, signature string, err error) {
	g.mu.Lock()
	tr, ok := g.byRef[transferRef]
	if ok {
		tr.Status = "reversed"
	}
	g.mu.Unlock()
	if !ok {
		return nil, "", fmt.Errorf("%w: transfer %s", domain.ErrNotFound, transferRef)
	}
	return g.signEvent(sandboxEvent{ID: "evt_" + randHex(6), Type: string(model.EventTransferReversed), TransferRef: transferRef})
}

func (g *SandboxGateway) settle(intentRef string, status model.IntentStatus, kind model.GatewayEventKind) ([]byte, string, error) {
	g.mu.Lock()
	in, ok := g.intents[intentRef]
	var md map[string]string
	if ok {
		in.Status = status
		md = in.Metadata
	}
	g.mu.Unlock()
	if !ok {
		return nil, "", fmt.Errorf("%w: intent %s", domain.ErrNotFound, intentRef)
	}
	return g.signEvent(sandboxEvent{ID: "evt_" + randHex(6), Type: string(kind), IntentRef: intentRef, Metadata: md})
}

type sandboxEvent struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	IntentRef   string            `json:"intentRef,omitempty"`
	TransferRef string            `json:"transferRef,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// signEvent encodes ev and signs it as "t=<unix>,v1=<hex hmac>" over
// "<unix>.<payload>".
func (g *SandboxGateway) signEvent(ev sandboxEvent) ([]byte, string, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, "", err
	}
	ts := g.now().Unix()
	return payload, fmt.Sprintf("t=%d,v1=%s", ts, g.mac(ts, payload)), nil
}

func (g *SandboxGateway) mac(ts int64, payload []byte) string {
	h := hmac.New(sha256.New, g.secret)
	h.Write([]byte(strconv.FormatInt(ts, 10)))
	h.Write([]byte("."))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (g *SandboxGateway) VerifyWebhookSignature(payload []byte, signatureHeader string) (*model.GatewayEvent, error) {
	var ts int64
	var sigs []string
	for _, part := range strings.Split(signatureHeader, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, _ = strconv.ParseInt(v, 10, 64)
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return nil, fmt.Errorf("%w: malformed header", domain.ErrInvalidSignature)
	}
	if age := g.now().Sub(time.Unix(ts, 0)); age > g.tolerance || age < -g.tolerance {
		return nil, fmt.Errorf("%w: timestamp outside tolerance", domain.ErrInvalidSignature)
	}
	expected := []byte(g.mac(ts, payload))
	matched := false
	for _, s := range sigs {
		if hmac.Equal(expected, []byte(strings.ToLower(s))) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, domain.ErrInvalidSignature
	}

	var ev sandboxEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	return &model.GatewayEvent{
		ID:          ev.ID,
		Kind:        model.GatewayEventKind(ev.Type),
		IntentRef:   ev.IntentRef,
		Metadata:    ev.Metadata,
		TransferRef: ev.TransferRef,
	}, nil
}

func randHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

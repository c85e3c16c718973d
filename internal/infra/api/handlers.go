package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"creator-paywall/internal/domain"
	"creator-paywall/internal/domain/model"
	"creator-paywall/internal/domain/money"
	"creator-paywall/internal/domain/ports/repository"
	"creator-paywall/internal/infra/logging"

	"github.com/go-chi/chi/v5"
)

// ---- payloads ----

type intentRequest struct {
	ContentID string `json:"content_id"`
}

type intentResponse struct {
	IntentRef       string `json:"intent_ref"`
	ClientSecret    string `json:"client_secret"`
	Currency        string `json:"currency"`
	Amount          int64  `json:"amount"`
	AmountDisplay   string `json:"amount_display"`
	PlatformFee     int64  `json:"platform_fee"`
	CreatorEarnings int64  `json:"creator_earnings"`
}

type confirmRequest struct {
	ContentID string `json:"content_id"`
	IntentRef string `json:"intent_ref"`
}

type purchaseDTO struct {
	ID              string    `json:"id"`
	BuyerID         string    `json:"buyer_id"`
	ContentID       string    `json:"content_id"`
	CreatorID       string    `json:"creator_id"`
	Amount          int64     `json:"amount"`
	PlatformFee     int64     `json:"platform_fee"`
	CreatorEarnings int64     `json:"creator_earnings"`
	PaymentRef      string    `json:"payment_ref"`
	Status          string    `json:"status"`
	PurchasedAt     time.Time `json:"purchased_at"`
}

func toPurchaseDTO(p *model.Purchase) purchaseDTO {
	return purchaseDTO{
		ID:              p.ID,
		BuyerID:         p.BuyerID,
		ContentID:       p.ContentID,
		CreatorID:       p.CreatorID,
		Amount:          p.Amount,
		PlatformFee:     p.PlatformFee,
		CreatorEarnings: p.CreatorEarnings,
		PaymentRef:      p.PaymentRef,
		Status:          string(p.Status),
		PurchasedAt:     p.PurchasedAt,
	}
}

type accountDTO struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Balance        int64  `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
	TotalEarnings  int64  `json:"total_earnings"`
	TotalSpent     int64  `json:"total_spent"`
}

type earningsDTO struct {
	TotalEarnings int64 `json:"total_earnings"`
	TotalSales    int64 `json:"total_sales"`
	AveragePrice  int64 `json:"average_price"`
}

// withdrawRequest carries the amount either in minor units or as a decimal
// string in major units ("15.00"). The idempotency key may also come from
// the Idempotency-Key header, which wins.
type withdrawRequest struct {
	Amount         int64  `json:"amount,omitempty"`
	AmountDecimal  string `json:"amount_decimal,omitempty"`
	Destination    string `json:"destination,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (req withdrawRequest) minorUnits() (int64, error) {
	if req.AmountDecimal == "" {
		return req.Amount, nil
	}
	if req.Amount != 0 {
		return 0, fmt.Errorf("%w: send amount or amount_decimal, not both", domain.ErrInvalidArgument)
	}
	return money.Parse(req.AmountDecimal)
}

type withdrawResponse struct {
	WithdrawalID  string `json:"withdrawal_id"`
	TransferRef   string `json:"transfer_ref"`
	Amount        int64  `json:"amount"`
	AmountDisplay string `json:"amount_display"`
	Replayed      bool   `json:"replayed"`
}

type withdrawalDTO struct {
	ID          string    `json:"id"`
	Amount      int64     `json:"amount"`
	Destination string    `json:"destination"`
	TransferRef string    `json:"transfer_ref"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// ---- purchases ----

func (s *Server) requestIntent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Purchases.RequestIntent(r.Context(), userIDFrom(r.Context()), req.ContentID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, intentResponse{
		IntentRef:       res.IntentRef,
		ClientSecret:    res.ClientSecret,
		Currency:        res.Currency,
		Amount:          res.Split.Price,
		AmountDisplay:   money.Format(res.Split.Price),
		PlatformFee:     res.Split.PlatformFee,
		CreatorEarnings: res.Split.CreatorEarnings,
	})
}

func (s *Server) confirmPurchase(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !s.decode(w, r, &req) {
		return
	}
	ctx := logging.WithIntentRef(r.Context(), req.IntentRef)
	p, err := s.deps.Purchases.ConfirmPurchase(ctx, userIDFrom(ctx), req.ContentID, req.IntentRef)
	if err != nil {
		s.fail(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseDTO(p))
}

func (s *Server) access(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "contentID")
	ok, err := s.deps.Purchases.HasAccess(r.Context(), userIDFrom(r.Context()), contentID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content_id": contentID, "has_access": ok})
}

// ---- history ----

func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.History.Account(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountDTO{
		ID:             a.ID,
		Username:       a.Username,
		Balance:        a.Balance,
		BalanceDisplay: money.Format(a.Balance),
		TotalEarnings:  a.TotalEarnings,
		TotalSpent:     a.TotalSpent,
	})
}

func (s *Server) purchases(w http.ResponseWriter, r *http.Request) {
	s.listPurchases(w, r, s.deps.History.Purchases)
}

func (s *Server) sales(w http.ResponseWriter, r *http.Request) {
	s.listPurchases(w, r, s.deps.History.Sales)
}

func (s *Server) listPurchases(w http.ResponseWriter, r *http.Request,
	list func(ctx context.Context, userID string, page repository.Page) ([]*model.Purchase, error)) {
	page, err := parsePage(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items, err := list(r.Context(), userIDFrom(r.Context()), page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]purchaseDTO, 0, len(items))
	for _, p := range items {
		out = append(out, toPurchaseDTO(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "limit": page.Limit, "offset": page.Offset})
}

func (s *Server) earnings(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sum, err := s.deps.History.Earnings(r.Context(), userIDFrom(r.Context()), rng)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, earningsDTO(sum))
}

func (s *Server) withdrawals(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items, err := s.deps.History.Withdrawals(r.Context(), userIDFrom(r.Context()), page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]withdrawalDTO, 0, len(items))
	for _, v := range items {
		out = append(out, withdrawalDTO{
			ID:          v.ID,
			Amount:      v.Amount,
			Destination: v.DestinationMasked,
			TransferRef: v.TransferRef,
			Status:      string(v.Status),
			CreatedAt:   v.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "limit": page.Limit, "offset": page.Offset})
}

// ---- withdrawals ----

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !s.decode(w, r, &req) {
		return
	}
	amount, err := req.minorUnits()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	key := r.Header.Get(idempotencyHeader)
	if key == "" {
		key = req.IdempotencyKey
	}
	res, err := s.deps.Withdrawals.Withdraw(r.Context(), userIDFrom(r.Context()), amount, req.Destination, key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, withdrawResponse{
		WithdrawalID:  res.WithdrawalID,
		TransferRef:   res.TransferRef,
		Amount:        res.Amount,
		AmountDisplay: money.Format(res.Amount),
		Replayed:      res.Replayed,
	})
}

// ---- provider callbacks ----

func (s *Server) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "could not read body")
		return
	}
	if len(payload) > maxWebhookBody {
		writeError(w, r, http.StatusRequestEntityTooLarge, "invalid_body", "payload too large")
		return
	}
	if err := s.deps.Webhooks.HandleEvent(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// sandboxEvent produces a signed provider event and feeds it through the
// same path a real webhook takes.
func (s *Server) sandboxEvent(produce func(ref string) ([]byte, string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, sig, err := produce(chi.URLParam(r, "ref"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.deps.Webhooks.HandleEvent(r.Context(), payload, sig); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"delivered": true})
	}
}

// ---- helpers ----

const (
	maxJSONBody       = 1 << 14
	idempotencyHeader = "Idempotency-Key"
)

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return false
	}
	return true
}

// parsePage reads limit with either offset or a 1-based page number.
func parsePage(r *http.Request) (repository.Page, error) {
	var p repository.Page
	q := r.URL.Query()
	var pageNo int
	for name, dst := range map[string]*int{"limit": &p.Limit, "offset": &p.Offset, "page": &pageNo} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidArgument, name)
		}
		*dst = n
	}
	p = p.Normalize()
	if pageNo > 1 && p.Offset == 0 {
		p.Offset = (pageNo - 1) * p.Limit
	}
	return p, nil
}

// parseRange accepts RFC 3339 timestamps or plain dates. A plain "to" date
// covers the whole day.
func parseRange(r *http.Request) (repository.DateRange, error) {
	var rng repository.DateRange
	q := r.URL.Query()
	if raw := firstOf(q, "from", "startDate"); raw != "" {
		t, err := parseTime(raw, false)
		if err != nil {
			return rng, err
		}
		rng.From = &t
	}
	if raw := firstOf(q, "to", "endDate"); raw != "" {
		t, err := parseTime(raw, true)
		if err != nil {
			return rng, err
		}
		rng.To = &t
	}
	if rng.From != nil && rng.To != nil && rng.To.Before(*rng.From) {
		return rng, fmt.Errorf("%w: to is before from", domain.ErrInvalidArgument)
	}
	return rng, nil
}

func firstOf(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func parseTime(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad time %q", domain.ErrInvalidArgument, raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

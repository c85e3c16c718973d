// Package api exposes the settlement core over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"creator-paywall/internal/config"
	"creator-paywall/internal/domain/ports/adapter"
	"creator-paywall/internal/infra/redis"
	"creator-paywall/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// SandboxControls drives the in-process gateway. Only mounted when the
// sandbox gateway is configured.
type SandboxControls interface {
	CompleteIntent(intentRef string) (payload []byte, signature string, err error)
	FailIntent(intentRef string) (payload []byte, signature string, err error)
	ReverseTransfer(transferRef string) (payload []byte, signature string, err error)
}

type Deps struct {
	Purchases   usecase.PurchaseUseCase
	Withdrawals usecase.WithdrawalUseCase
	Webhooks    usecase.WebhookUseCase
	History     usecase.HistoryUseCase
	Tokens      *TokenIssuer
	Limiter     adapter.RateLimiter // optional
	Sandbox     SandboxControls     // optional
	// Ready reports whether backing stores answer. Nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	deps   Deps
	cfg    config.ServerConfig
	limits config.RateLimitConfig
	log    *zerolog.Logger
	srv    *http.Server
}

func NewServer(deps Deps, cfg config.ServerConfig, limits config.RateLimitConfig, logger *zerolog.Logger) *Server {
	s := &Server{deps: deps, cfg: cfg, limits: limits, log: logger}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Routes(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s
}

// maxWebhookBody bounds what we read from the provider.
const maxWebhookBody = 1 << 16

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Timeout(s.cfg.RequestTimeout))

		// provider callbacks authenticate by signature, not by token
		r.Post("/webhooks/stripe", s.stripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(s.deps.Tokens))

			r.With(RateLimit(s.deps.Limiter, redis.ActionIntent, s.limits.IntentsPerMinute, time.Minute, s.log)).
				Post("/purchases/intents", s.requestIntent)
			r.Post("/purchases/confirm", s.confirmPurchase)
			r.Get("/contents/{contentID}/access", s.access)

			r.Get("/me/account", s.account)
			r.Get("/me/purchases", s.purchases)
			r.Get("/me/sales", s.sales)
			r.Get("/me/earnings", s.earnings)
			r.Get("/me/withdrawals", s.withdrawals)
			r.With(RateLimit(s.deps.Limiter, redis.ActionWithdraw, s.limits.WithdrawalsPerMinute, time.Minute, s.log)).
				Post("/withdrawals", s.withdraw)
		})

		if s.deps.Sandbox != nil {
			r.Route("/sandbox", func(r chi.Router) {
				r.Post("/intents/{ref}/complete", s.sandboxEvent(s.deps.Sandbox.CompleteIntent))
				r.Post("/intents/{ref}/fail", s.sandboxEvent(s.deps.Sandbox.FailIntent))
				r.Post("/transfers/{ref}/reverse", s.sandboxEvent(s.deps.Sandbox.ReverseTransfer))
			})
		}
	})
	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			writeError(w, r, http.StatusServiceUnavailable, "not_ready", "dependencies unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

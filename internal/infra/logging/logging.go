package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"creator-paywall/internal/config"

	"github.com/rs/zerolog"
)

// New builds the process logger from cfg. Levels are zerolog names
// ("trace".."error"); format is "json" or "console". Sampling keeps the
// first 100 events of each second-long burst and then 1 in 100, and is
// never applied in dev.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	return newWithWriter(cfg, dev, os.Stdout)
}

func newWithWriter(cfg config.LogConfig, dev bool, w io.Writer) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if strings.EqualFold(cfg.Format, "console") || dev {
		out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		base = zerolog.New(out).Level(level).With().Timestamp().Str("service", cfg.Service).Logger()
	} else {
		base = zerolog.New(w).Level(level).With().Timestamp().Str("service", cfg.Service).Logger()
	}

	if cfg.Sampling && !dev {
		sampled := base.Sample(&zerolog.BurstSampler{
			Burst:       100,
			Period:      time.Second,
			NextSampler: &zerolog.BasicSampler{N: 100},
		})
		return &sampled
	}
	return &base
}

type ctxKey string

const (
	ctxTraceID   ctxKey = "trace_id"
	ctxUserID    ctxKey = "user_id"
	ctxIntentRef ctxKey = "intent_ref"
	ctxSource    ctxKey = "source"
)

// With returns base enriched with the request fields stored in ctx.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	l := base.With()
	if v, ok := ctx.Value(ctxTraceID).(string); ok && v != "" {
		l = l.Str("trace_id", v)
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok && v != "" {
		l = l.Str("user_id", v)
	}
	if v, ok := ctx.Value(ctxIntentRef).(string); ok && v != "" {
		l = l.Str("intent_ref", v)
	}
	if v, ok := ctx.Value(ctxSource).(string); ok && v != "" {
		l = l.Str("source", v)
	}
	logger := l.Logger()
	return &logger
}

// TraceDuration logs start and end of a call at TRACE level.
// Usage: defer logging.TraceDuration(logger, "PurchaseUC.ConfirmPurchase")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		logger.Trace().Str("method", name).Dur("duration", time.Since(start)).Msg("finish")
	}
}

// Redact shortens identifiers such as payout accounts for logs. Dev keeps them.
func Redact(s string, dev bool) string {
	if dev {
		return s
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-2:]
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTraceID, id)
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxUserID, id)
}

func WithIntentRef(ctx context.Context, ref string) context.Context {
	return context.WithValue(ctx, ctxIntentRef, ref)
}

// WithSource tags who triggered a confirmation: client, webhook or reconciler.
func WithSource(ctx context.Context, src string) context.Context {
	return context.WithValue(ctx, ctxSource, src)
}

func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(ctxTraceID).(string)
	return v
}

func Source(ctx context.Context) string {
	if v, ok := ctx.Value(ctxSource).(string); ok && v != "" {
		return v
	}
	return "client"
}

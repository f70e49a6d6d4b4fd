// Package ratelimit throttles expensive API operations per caller with a sliding
// window kept in memory or in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bayanat/internal/platform/metrics"
)

// Class groups endpoints that share one budget.
type Class string

const (
	ClassWrite  Class = "write"
	ClassImport Class = "import"
)

// Limit allows Requests per sliding Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Result is the outcome of one check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Store counts requests in a sliding window per key.
type Store interface {
	AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*Result, error)
}

// Limiter applies per-class limits to callers.
type Limiter struct {
	store    Store
	limits   map[Class]Limit
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithDisabled lets every request through.
func WithDisabled(disabled bool) Option {
	return func(l *Limiter) { l.disabled = disabled }
}

func New(store Store, limits map[Class]Limit, opts ...Option) *Limiter {
	l := &Limiter{store: store, limits: limits, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one request of class for subject. Classes without a limit always pass.
func (l *Limiter) Check(ctx context.Context, class Class, subject string) (*Result, error) {
	lim, ok := l.limits[class]
	if l.disabled || !ok || lim.Requests <= 0 {
		return &Result{Allowed: true}, nil
	}
	res, err := l.store.AllowN(ctx, key(class, subject), 1, lim.Requests, lim.Window)
	if err != nil {
		l.metrics.IncrementRateLimit(string(class), "error")
		return nil, fmt.Errorf("check rate limit: %w", err)
	}
	if res.Allowed {
		l.metrics.IncrementRateLimit(string(class), "allowed")
	} else {
		l.metrics.IncrementRateLimit(string(class), "rejected")
	}
	return res, nil
}

func key(class Class, subject string) string {
	return "ratelimit:" + string(class) + ":" + subject
}

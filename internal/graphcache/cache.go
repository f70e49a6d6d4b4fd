// Package graphcache keeps the most recent relation graph generated for each user.
//
// Each user holds one entry, {query_key, graph_data}. A request whose query hashes to the
// stored key is served from the entry; any other query rebuilds the graph and replaces it.
package graphcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"bayanat/internal/platform/metrics"
	dErrors "bayanat/pkg/domain-errors"
)

// Entry is one user's cached graph.
type Entry struct {
	QueryKey  string          `json:"query_key"`
	GraphData json.RawMessage `json:"graph_data"`
}

// Store holds one entry per user. Get returns nil, nil when the user has none.
type Store interface {
	Get(ctx context.Context, userID int) (*Entry, error)
	Put(ctx context.Context, userID int, e Entry) error
	Delete(ctx context.Context, userID int) error
}

// BuildFunc produces the graph for a cache miss.
type BuildFunc func(ctx context.Context) (json.RawMessage, error)

// Service is a read-through cache in front of graph generation.
type Service struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryKey hashes the canonical JSON form of query. Object keys are sorted, so two
// queries that differ only in field order share a key.
func QueryKey(query any) (string, error) {
	raw, err := json.Marshal(query)
	if err != nil {
		return "", fmt.Errorf("encode graph query: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("decode graph query: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("encode graph query: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// GetOrBuild returns the user's cached graph when it was built for query, otherwise
// builds it and stores it in place of the previous entry. A failing cache never fails
// the request; the graph is built and returned uncached.
func (s *Service) GetOrBuild(ctx context.Context, userID int, query any, build BuildFunc) (json.RawMessage, bool, error) {
	key, err := QueryKey(query)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid graph query")
	}

	entry, err := s.store.Get(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "graph cache read failed", "user_id", userID, "error", err)
	}
	if entry != nil && entry.QueryKey == key {
		s.observe("hit")
		return entry.GraphData, true, nil
	}
	s.observe("miss")

	data, err := build(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := s.store.Put(ctx, userID, Entry{QueryKey: key, GraphData: data}); err != nil {
		s.logger.WarnContext(ctx, "graph cache write failed", "user_id", userID, "error", err)
	}
	return data, false, nil
}

// Invalidate drops the user's entry.
func (s *Service) Invalidate(ctx context.Context, userID int) error {
	if err := s.store.Delete(ctx, userID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear graph cache")
	}
	return nil
}

func (s *Service) observe(result string) {
	if s.metrics != nil {
		s.metrics.IncrementGraphCache(result)
	}
}

package graphcache

import (
	"context"
	"log/slog"

	"bayanat/pkg/platform/circuit"
)

// FallbackStore reads and writes primary while its breaker is closed and serves
// from fallback when primary keeps failing. Deletes reach both stores so an
// invalidation survives a switch back.
type FallbackStore struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFallbackStore(primary, fallback Store, breaker *circuit.Breaker, logger *slog.Logger) *FallbackStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackStore{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

func (s *FallbackStore) Get(ctx context.Context, userID int) (*Entry, error) {
	if s.breaker.Allow() {
		e, err := s.primary.Get(ctx, userID)
		if err == nil {
			s.success(ctx)
			return e, nil
		}
		s.failure(ctx, err)
	}
	return s.fallback.Get(ctx, userID)
}

func (s *FallbackStore) Put(ctx context.Context, userID int, e Entry) error {
	if s.breaker.Allow() {
		err := s.primary.Put(ctx, userID, e)
		if err == nil {
			s.success(ctx)
			return nil
		}
		s.failure(ctx, err)
	}
	return s.fallback.Put(ctx, userID, e)
}

func (s *FallbackStore) Delete(ctx context.Context, userID int) error {
	if err := s.fallback.Delete(ctx, userID); err != nil {
		return err
	}
	if !s.breaker.Allow() {
		return nil
	}
	if err := s.primary.Delete(ctx, userID); err != nil {
		s.failure(ctx, err)
		return nil
	}
	s.success(ctx)
	return nil
}

func (s *FallbackStore) success(ctx context.Context) {
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "graph cache primary recovered", "breaker", s.breaker.Name())
	}
}

func (s *FallbackStore) failure(ctx context.Context, err error) {
	if _, change := s.breaker.RecordFailure(); change.Opened {
		s.logger.WarnContext(ctx, "graph cache primary failing, using fallback", "breaker", s.breaker.Name(), "error", err)
	}
}

// Package search compiles entity filters into SQL predicates: radius queries over
// attached locations, geo markers and event locations, trigram text matching with
// tsvector ranking, tag and event-date filters.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	"bayanat/internal/platform/postgres"
	dErrors "bayanat/pkg/domain-errors"
	txcontext "bayanat/pkg/platform/tx"
)

var (
	psql   = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	tracer = otel.Tracer("bayanat/search")
)

// Service runs filters against the entity tables.
type Service struct {
	db     *sqlx.DB
	policy access.Policy
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithPolicy restricts results to what the caller may read. The default is permissive.
func WithPolicy(p access.Policy) Option {
	return func(s *Service) { s.policy = p }
}

func New(db *sqlx.DB, opts ...Option) *Service {
	s := &Service{db: db, policy: access.NewPolicy(access.Permissive), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query builds the id query for class. Results are ranked by text relevance when the
// filter carries text, newest first otherwise.
func (s *Service) Query(ctx context.Context, class models.Class, f Filter) (sq.SelectBuilder, error) {
	if err := f.Validate(class); err != nil {
		return sq.SelectBuilder{}, err
	}
	q := psql.Select("id").From(class.Table())
	if where := f.Predicates(class); len(where) > 0 {
		q = q.Where(where)
	}
	caller, _ := access.FromContext(ctx)
	if visible := Visible(class, s.policy, caller); visible != nil {
		q = q.Where(visible)
	}
	if text := strings.TrimSpace(f.Text); text != "" {
		q = q.OrderByClause("ts_rank(tsv, plainto_tsquery('simple', ?)) DESC", text)
	}
	q = q.OrderBy("id DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	return q, nil
}

// Search returns the ids of class's entities matching f.
func (s *Service) Search(ctx context.Context, class models.Class, f Filter) ([]int, error) {
	ctx, span := tracer.Start(ctx, "search.Search")
	defer span.End()
	span.SetAttributes(attribute.String("entity.class", class.String()))

	q, err := s.Query(ctx, class, f)
	if err != nil {
		return nil, err
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build search query")
	}
	ids := []int{}
	if err := sqlx.SelectContext(ctx, txcontext.Pick(ctx, s.db), &ids, query, args...); err != nil {
		return nil, dErrors.Wrap(postgres.Classify(err), dErrors.CodeInternal, fmt.Sprintf("failed to search %s", class))
	}
	s.logger.DebugContext(ctx, "search executed", "class", class, "matches", len(ids))
	return ids, nil
}

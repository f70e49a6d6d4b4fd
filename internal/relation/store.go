package relation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bayanat/internal/entity/models"
	"bayanat/internal/platform/postgres"
	"bayanat/pkg/platform/sentinel"
	txcontext "bayanat/pkg/platform/tx"
)

// PostgresStore persists edges and relation dictionaries. Table and column names come
// from the Kind registry, never from callers.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) q(ctx context.Context) txcontext.Querier {
	return txcontext.Pick(ctx, s.db)
}

func edgeColumns(k Kind) string {
	return fmt.Sprintf(`%s AS left_id, %s AS right_id, related_as, probability,
		COALESCE(comment, '') AS comment, user_id, created_at, updated_at`, k.LeftCol, k.RightCol)
}

// Get loads one edge, optionally locking it for the rest of the transaction.
func (s *PostgresStore) Get(ctx context.Context, k Kind, left, right int, forUpdate bool) (*models.Edge, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s = $2`,
		edgeColumns(k), k.Table(), k.LeftCol, k.RightCol)
	if forUpdate {
		query += " FOR UPDATE"
	}
	var e models.Edge
	if err := sqlx.GetContext(ctx, s.q(ctx), &e, query, left, right); err != nil {
		return nil, fmt.Errorf("get %s edge: %w", k.Name, postgres.Classify(err))
	}
	e.Kind = k.Name
	return &e, nil
}

// Insert creates the edge unless the pair already exists. It reports whether a row was written.
func (s *PostgresStore) Insert(ctx context.Context, k Kind, e *models.Edge) (bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, related_as, probability, comment, user_id, created_at, updated_at)
		VALUES ($1, $2, $3::integer[], $4, NULLIF($5, ''), $6, $7, $7)
		ON CONFLICT (%s, %s) DO NOTHING`,
		k.Table(), k.LeftCol, k.RightCol, k.LeftCol, k.RightCol)
	res, err := s.q(ctx).ExecContext(ctx, query,
		e.LeftID, e.RightID, e.RelatedAs, e.Probability, e.Comment, e.UserID, e.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert %s edge: %w", k.Name, postgres.Classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert %s edge: %w", k.Name, err)
	}
	return n == 1, nil
}

// Update rewrites an edge's attributes.
func (s *PostgresStore) Update(ctx context.Context, k Kind, e *models.Edge) error {
	query := fmt.Sprintf(`
		UPDATE %s SET related_as = $3::integer[], probability = $4, comment = NULLIF($5, ''),
			user_id = $6, updated_at = $7
		WHERE %s = $1 AND %s = $2`,
		k.Table(), k.LeftCol, k.RightCol)
	res, err := s.q(ctx).ExecContext(ctx, query,
		e.LeftID, e.RightID, e.RelatedAs, e.Probability, e.Comment, e.UserID, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update %s edge: %w", k.Name, postgres.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s edge: %w", k.Name, sentinel.ErrNotFound)
	}
	return nil
}

// Delete removes an edge and reports whether it existed.
func (s *PostgresStore) Delete(ctx context.Context, k Kind, left, right int) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2`, k.Table(), k.LeftCol, k.RightCol)
	res, err := s.q(ctx).ExecContext(ctx, query, left, right)
	if err != nil {
		return false, fmt.Errorf("delete %s edge: %w", k.Name, postgres.Classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s edge: %w", k.Name, err)
	}
	return n > 0, nil
}

// ListFor returns every edge of kind k touching self, oldest first.
func (s *PostgresStore) ListFor(ctx context.Context, k Kind, self Ref) ([]models.Edge, error) {
	var where string
	switch {
	case k.Symmetric:
		where = fmt.Sprintf("%s = $1 OR %s = $1", k.LeftCol, k.RightCol)
	case self.Class == k.Left:
		where = k.LeftCol + " = $1"
	default:
		where = k.RightCol + " = $1"
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY created_at, %s, %s`,
		edgeColumns(k), k.Table(), where, k.LeftCol, k.RightCol)
	var edges []models.Edge
	if err := sqlx.SelectContext(ctx, s.q(ctx), &edges, query, self.ID); err != nil {
		return nil, fmt.Errorf("list %s edges: %w", k.Name, postgres.Classify(err))
	}
	for i := range edges {
		edges[i].Kind = k.Name
	}
	return edges, nil
}

// UnknownCodes returns the codes absent from the kind's dictionary table.
func (s *PostgresStore) UnknownCodes(ctx context.Context, k Kind, codes models.Codes) ([]int, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT c FROM unnest($1::integer[]) AS c
		WHERE NOT EXISTS (SELECT 1 FROM %s i WHERE i.id = c)`, k.InfoTable())
	var missing []int
	if err := sqlx.SelectContext(ctx, s.q(ctx), &missing, query, codes); err != nil {
		return nil, fmt.Errorf("check %s codes: %w", k.Name, postgres.Classify(err))
	}
	return missing, nil
}

// MissingEntities returns the ids of class c that do not exist.
func (s *PostgresStore) MissingEntities(ctx context.Context, c models.Class, ids []int) ([]int, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT c FROM unnest($1::integer[]) AS c
		WHERE NOT EXISTS (SELECT 1 FROM %s e WHERE e.id = c)`, c.Table())
	var missing []int
	if err := sqlx.SelectContext(ctx, s.q(ctx), &missing, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("check %s ids: %w", c, postgres.Classify(err))
	}
	return missing, nil
}

// ListInfo returns the dictionary rows of kind k.
func (s *PostgresStore) ListInfo(ctx context.Context, k Kind) ([]models.RelationInfo, error) {
	query := fmt.Sprintf(`
		SELECT id, title, COALESCE(reverse_title, '') AS reverse_title, COALESCE(title_tr, '') AS title_tr,
			COALESCE(reverse_title_tr, '') AS reverse_title_tr
		FROM %s ORDER BY id`, k.InfoTable())
	var out []models.RelationInfo
	if err := sqlx.SelectContext(ctx, s.q(ctx), &out, query); err != nil {
		return nil, fmt.Errorf("list %s: %w", k.InfoTable(), postgres.Classify(err))
	}
	return out, nil
}

// SaveInfo creates (ID == 0) or updates a dictionary row.
func (s *PostgresStore) SaveInfo(ctx context.Context, k Kind, info *models.RelationInfo) error {
	if info.ID == 0 {
		query := fmt.Sprintf(`
			INSERT INTO %s (title, reverse_title, title_tr, reverse_title_tr)
			VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''))
			RETURNING id`, k.InfoTable())
		err := sqlx.GetContext(ctx, s.q(ctx), &info.ID, query,
			info.Title, info.ReverseTitle, info.TitleTr, info.ReverseTitleTr)
		if err != nil {
			return fmt.Errorf("insert %s: %w", k.InfoTable(), postgres.Classify(err))
		}
		return nil
	}
	query := fmt.Sprintf(`
		UPDATE %s SET title = $2, reverse_title = NULLIF($3, ''), title_tr = NULLIF($4, ''),
			reverse_title_tr = NULLIF($5, ''), updated_at = NOW()
		WHERE id = $1`, k.InfoTable())
	res, err := s.q(ctx).ExecContext(ctx, query,
		info.ID, info.Title, info.ReverseTitle, info.TitleTr, info.ReverseTitleTr)
	if err != nil {
		return fmt.Errorf("update %s: %w", k.InfoTable(), postgres.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s: %w", k.InfoTable(), sentinel.ErrNotFound)
	}
	return nil
}

// IsNotFound reports a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound)
}

package revision

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"bayanat/internal/entity/models"
	"bayanat/internal/platform/postgres"
	"bayanat/pkg/platform/sentinel"
	txcontext "bayanat/pkg/platform/tx"
)

// PostgresStore reads and appends the per-class *_history tables. Table names come
// from models.Class, never from callers.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) q(ctx context.Context) txcontext.Querier {
	return txcontext.Pick(ctx, s.db)
}

// Lock takes a row lock on the subject for the rest of the transaction.
func (s *PostgresStore) Lock(ctx context.Context, class models.Class, id int) error {
	query := fmt.Sprintf(`SELECT id FROM %s WHERE id = $1 FOR UPDATE`, class.Table())
	var got int
	if err := sqlx.GetContext(ctx, s.q(ctx), &got, query, id); err != nil {
		return fmt.Errorf("lock %s %d: %w", class, id, postgres.Classify(err))
	}
	return nil
}

// LastRevisionAt returns the timestamp of the newest history row, or nil when none exists.
func (s *PostgresStore) LastRevisionAt(ctx context.Context, class models.Class, id int) (*time.Time, error) {
	query := fmt.Sprintf(`SELECT MAX(updated_at) FROM %s WHERE %s = $1`, class.HistoryTable(), class.HistoryColumn())
	var last sql.NullTime
	if err := sqlx.GetContext(ctx, s.q(ctx), &last, query, id); err != nil {
		return nil, fmt.Errorf("last %s revision: %w", class, postgres.Classify(err))
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

// Touch sets the subject's updated_at.
func (s *PostgresStore) Touch(ctx context.Context, class models.Class, id int, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET updated_at = $2 WHERE id = $1`, class.Table())
	res, err := s.q(ctx).ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("touch %s %d: %w", class, id, postgres.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("touch %s %d: %w", class, id, sentinel.ErrNotFound)
	}
	return nil
}

// Append writes one snapshot row and fills in its id.
func (s *PostgresStore) Append(ctx context.Context, class models.Class, row *models.HistoryRow) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, data, user_id, created_at, updated_at)
		VALUES ($1, $2::jsonb, $3, $4, $4)
		RETURNING id`, class.HistoryTable(), class.HistoryColumn())
	err := sqlx.GetContext(ctx, s.q(ctx), &row.ID, query, row.SubjectID, row.Data, row.UserID, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("append %s history: %w", class, postgres.Classify(err))
	}
	row.CreatedAt = row.UpdatedAt
	return nil
}

type historyRow struct {
	models.HistoryRow
	Username sql.NullString `db:"username"`
	Name     sql.NullString `db:"name"`
}

// List returns every snapshot of the subject, oldest first, with its author.
func (s *PostgresStore) List(ctx context.Context, class models.Class, id int) ([]models.HistoryRow, error) {
	query := fmt.Sprintf(`
		SELECT h.id, h.%s AS subject_id, h.data, h.user_id, h.created_at, h.updated_at,
			u.username, u.name
		FROM %s h
		LEFT JOIN users u ON u.id = h.user_id
		WHERE h.%s = $1
		ORDER BY h.updated_at, h.id`, class.HistoryColumn(), class.HistoryTable(), class.HistoryColumn())
	var rows []historyRow
	if err := sqlx.SelectContext(ctx, s.q(ctx), &rows, query, id); err != nil {
		return nil, fmt.Errorf("list %s history: %w", class, postgres.Classify(err))
	}
	out := make([]models.HistoryRow, len(rows))
	for i, r := range rows {
		out[i] = r.HistoryRow
		if r.UserID != nil {
			out[i].User = &models.UserRef{ID: *r.UserID, Username: r.Username.String, Name: r.Name.String}
		}
	}
	return out, nil
}

package importer

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bayanat/internal/entity/models"
	"bayanat/internal/platform/postgres"
	txcontext "bayanat/pkg/platform/tx"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// insertBatch bounds the rows of one multi-row INSERT.
const insertBatch = 500

// Import log statuses.
const (
	StatusPending    = "Pending"
	StatusProcessing = "Processing"
	StatusReady      = "Ready"
	StatusFailed     = "Failed"
)

// Log is one data_import row.
type Log struct {
	ID        int          `db:"id" json:"id"`
	Table     string       `db:"table_name" json:"table"`
	FileName  string       `db:"file_name" json:"file_name"`
	Status    string       `db:"status" json:"status"`
	Log       string       `db:"log" json:"log"`
	Data      models.JSONB `db:"data" json:"data"`
	UserID    *int         `db:"user_id" json:"user_id"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// Printf appends a timestamped line to the log text.
func (l *Log) Printf(at time.Time, format string, args ...any) {
	line := at.UTC().Format(time.RFC3339) + " " + fmt.Sprintf(format, args...)
	if l.Log == "" {
		l.Log = line
		return
	}
	l.Log += "\n" + line
}

// PostgresStore writes bulk taxonomy rows and the import log.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) q(ctx context.Context) txcontext.Querier {
	return txcontext.Pick(ctx, s.db)
}

// CreateLog inserts l and fills its id.
func (s *PostgresStore) CreateLog(ctx context.Context, l *Log) error {
	query := `
		INSERT INTO data_import (table_name, file_name, status, log, data, user_id, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $7)
		RETURNING id`
	if err := sqlx.GetContext(ctx, s.q(ctx), &l.ID, query,
		l.Table, l.FileName, l.Status, l.Log, l.Data, l.UserID, l.CreatedAt); err != nil {
		return fmt.Errorf("create import log: %w", postgres.Classify(err))
	}
	return nil
}

// UpdateLog saves status, log text and data of l.
func (s *PostgresStore) UpdateLog(ctx context.Context, l *Log) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`UPDATE data_import SET status = $2, log = $3, data = $4, updated_at = $5 WHERE id = $1`,
		l.ID, l.Status, l.Log, l.Data, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update import log %d: %w", l.ID, postgres.Classify(err))
	}
	return nil
}

// GetLog loads one import log.
func (s *PostgresStore) GetLog(ctx context.Context, id int) (*Log, error) {
	var l Log
	query := `SELECT id, table_name, COALESCE(file_name, '') AS file_name, status, log, data, user_id,
		created_at, updated_at FROM data_import WHERE id = $1`
	if err := sqlx.GetContext(ctx, s.q(ctx), &l, query, id); err != nil {
		return nil, fmt.Errorf("load import log %d: %w", id, postgres.Classify(err))
	}
	return &l, nil
}

// InsertRows inserts rows into table with explicit columns, in batches.
func (s *PostgresStore) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	for start := 0; start < len(rows); start += insertBatch {
		end := min(start+insertBatch, len(rows))
		ins := psql.Insert(pq.QuoteIdentifier(table)).Columns(quoted...)
		for _, r := range rows[start:end] {
			ins = ins.Values(r...)
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("build %s insert: %w", table, err)
		}
		if _, err := s.q(ctx).ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert %s rows: %w", table, postgres.Classify(err))
		}
	}
	return nil
}

// ResetSequence moves table's id sequence to max(id)+1.
func (s *PostgresStore) ResetSequence(ctx context.Context, table string) error {
	query := fmt.Sprintf(`SELECT setval(pg_get_serial_sequence($1, 'id'), COALESCE((SELECT MAX(id) FROM %s), 0) + 1, false)`,
		pq.QuoteIdentifier(table))
	if _, err := s.q(ctx).ExecContext(ctx, query, table); err != nil {
		return fmt.Errorf("reset %s sequence: %w", table, postgres.Classify(err))
	}
	return nil
}

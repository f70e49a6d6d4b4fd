package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bayanat/internal/entity/models"
	"bayanat/internal/platform/postgres"
	"bayanat/pkg/platform/sentinel"
)

// ReadDynamic returns the named dynamic columns of one row as JSON values.
// Numbers decode as json.Number.
func (s *PostgresStore) ReadDynamic(ctx context.Context, class models.Class, id int, columns []string) (map[string]any, error) {
	query := fmt.Sprintf(`
		SELECT COALESCE(
			(SELECT jsonb_object_agg(key, value) FROM jsonb_each(to_jsonb(t)) WHERE key = ANY($2)),
			'{}'::jsonb)
		FROM %s t WHERE t.id = $1`, class.Table())
	var raw models.JSONB
	if err := sqlx.GetContext(ctx, s.q(ctx), &raw, query, id, pq.Array(columns)); err != nil {
		return nil, fmt.Errorf("read %s %d dynamic fields: %w", class, id, postgres.Classify(err))
	}
	out := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s %d dynamic fields: %w", class, id, err)
	}
	return out, nil
}

// WriteDynamic sets dynamic columns on one row. Keys must be validated column names.
func (s *PostgresStore) WriteDynamic(ctx context.Context, class models.Class, id int, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	query, args, err := psql.Update(class.Table()).SetMap(values).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build %s dynamic update: %w", class, err)
	}
	res, err := s.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("write %s %d dynamic fields: %w", class, id, postgres.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("write %s %d dynamic fields: %w", class, id, sentinel.ErrNotFound)
	}
	return nil
}

package dynamicfield

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bayanat/internal/entity/models"
	"bayanat/internal/platform/postgres"
	"bayanat/pkg/platform/sentinel"
	txcontext "bayanat/pkg/platform/tx"
)

// PostgresStore persists field metadata and applies DDL.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) q(ctx context.Context) txcontext.Querier {
	return txcontext.Pick(ctx, s.db)
}

const fieldColumns = `id, name, title, entity_type, field_type, COALESCE(ui_component, '') AS ui_component,
	schema_config, ui_config, validation_config, options, required, searchable, active, sort_order,
	created_at, updated_at`

// List returns the fields of class in layout order.
func (s *PostgresStore) List(ctx context.Context, class models.Class, activeOnly bool) ([]models.DynamicField, error) {
	query := `SELECT ` + fieldColumns + ` FROM dynamic_fields WHERE entity_type = $1`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY sort_order, id`
	fields := []models.DynamicField{}
	if err := sqlx.SelectContext(ctx, s.q(ctx), &fields, query, class); err != nil {
		return nil, fmt.Errorf("list dynamic fields: %w", postgres.Classify(err))
	}
	return fields, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int, forUpdate bool) (*models.DynamicField, error) {
	query := `SELECT ` + fieldColumns + ` FROM dynamic_fields WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var f models.DynamicField
	if err := sqlx.GetContext(ctx, s.q(ctx), &f, query, id); err != nil {
		return nil, fmt.Errorf("get dynamic field %d: %w", id, postgres.Classify(err))
	}
	return &f, nil
}

func (s *PostgresStore) Insert(ctx context.Context, f *models.DynamicField) error {
	err := sqlx.GetContext(ctx, s.q(ctx), &f.ID, `
		INSERT INTO dynamic_fields (name, title, entity_type, field_type, ui_component, schema_config,
			ui_config, validation_config, options, required, searchable, active, sort_order,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, FALSE, $12, $13, $13)
		RETURNING id`,
		f.Name, f.Title, f.EntityType, f.FieldType, f.UIComponent, f.SchemaConfig, f.UIConfig,
		f.ValidationConfig, f.Options, f.Required, f.Searchable, f.SortOrder, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert dynamic field: %w", postgres.Classify(err))
	}
	f.CreatedAt = f.UpdatedAt
	return nil
}

// Update writes the mutable metadata; name, entity and type are fixed at creation.
func (s *PostgresStore) Update(ctx context.Context, f *models.DynamicField) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE dynamic_fields SET title = $2, ui_component = NULLIF($3, ''), schema_config = $4,
			ui_config = $5, validation_config = $6, options = $7, required = $8, searchable = $9,
			active = $10, sort_order = $11, updated_at = $12
		WHERE id = $1`,
		f.ID, f.Title, f.UIComponent, f.SchemaConfig, f.UIConfig, f.ValidationConfig, f.Options,
		f.Required, f.Searchable, f.Active, f.SortOrder, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update dynamic field %d: %w", f.ID, postgres.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update dynamic field %d: %w", f.ID, sentinel.ErrNotFound)
	}
	return nil
}

// SetOrder assigns sort_order by position in ids.
func (s *PostgresStore) SetOrder(ctx context.Context, class models.Class, ids []int, at time.Time) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		UPDATE dynamic_fields f SET sort_order = o.pos, updated_at = $3
		FROM unnest($2::int[]) WITH ORDINALITY AS o(id, pos)
		WHERE f.id = o.id AND f.entity_type = $1`, class, pq.Array(ids), at)
	if err != nil {
		return fmt.Errorf("reorder dynamic fields: %w", postgres.Classify(err))
	}
	return nil
}

// AppendFormHistory records the field layout of class.
func (s *PostgresStore) AppendFormHistory(ctx context.Context, snap *models.DynamicFormSnapshot) error {
	err := sqlx.GetContext(ctx, s.q(ctx), &snap.ID, `
		INSERT INTO dynamic_form_history (entity_type, fields_snapshot, user_id, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, snap.EntityType, snap.Fields, snap.UserID, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("append form history: %w", postgres.Classify(err))
	}
	return nil
}

// FormHistory lists layout snapshots of class, newest first.
func (s *PostgresStore) FormHistory(ctx context.Context, class models.Class) ([]models.DynamicFormSnapshot, error) {
	out := []models.DynamicFormSnapshot{}
	err := sqlx.SelectContext(ctx, s.q(ctx), &out, `
		SELECT id, entity_type, fields_snapshot, user_id, created_at
		FROM dynamic_form_history
		WHERE entity_type = $1
		ORDER BY created_at DESC, id DESC`, class)
	if err != nil {
		return nil, fmt.Errorf("list form history: %w", postgres.Classify(err))
	}
	return out, nil
}

func (s *PostgresStore) SchemaVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := sqlx.GetContext(ctx, s.q(ctx), &v, `SELECT version FROM dynamic_schema_version WHERE id = 1`); err != nil {
		return 0, fmt.Errorf("read schema version: %w", postgres.Classify(err))
	}
	return v, nil
}

func (s *PostgresStore) BumpSchemaVersion(ctx context.Context, at time.Time) (int64, error) {
	var v int64
	err := sqlx.GetContext(ctx, s.q(ctx), &v, `
		UPDATE dynamic_schema_version SET version = version + 1, updated_at = $1
		WHERE id = 1
		RETURNING version`, at)
	if err != nil {
		return 0, fmt.Errorf("bump schema version: %w", postgres.Classify(err))
	}
	return v, nil
}

// ColumnExists reports whether table already has a column called name.
func (s *PostgresStore) ColumnExists(ctx context.Context, table, name string) (bool, error) {
	var found bool
	err := sqlx.GetContext(ctx, s.q(ctx), &found, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2)`, table, name)
	if err != nil {
		return false, fmt.Errorf("check column %s.%s: %w", table, name, postgres.Classify(err))
	}
	return found, nil
}

// ColumnState describes the live column behind a field.
type ColumnState struct {
	Exists   bool
	UDTName  string
	Nullable bool
	Indexed  bool
}

// Column inspects a table column and the named index.
func (s *PostgresStore) Column(ctx context.Context, table, name, index string) (ColumnState, error) {
	var row struct {
		UDTName  string `db:"udt_name"`
		Nullable string `db:"is_nullable"`
	}
	var st ColumnState
	err := sqlx.GetContext(ctx, s.q(ctx), &row, `
		SELECT udt_name, is_nullable FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`, table, name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return st, fmt.Errorf("inspect column %s.%s: %w", table, name, postgres.Classify(err))
	default:
		st.Exists = true
		st.UDTName = row.UDTName
		st.Nullable = row.Nullable == "YES"
	}
	err = sqlx.GetContext(ctx, s.q(ctx), &st.Indexed, `
		SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE schemaname = current_schema() AND indexname = $1)`, index)
	if err != nil {
		return st, fmt.Errorf("inspect index %s: %w", index, postgres.Classify(err))
	}
	return st, nil
}

// Exec runs one DDL statement under a bounded lock wait.
func (s *PostgresStore) Exec(ctx context.Context, ddl string) error {
	if _, err := s.q(ctx).ExecContext(ctx, `SET LOCAL lock_timeout = '10s'`); err != nil {
		return fmt.Errorf("set lock timeout: %w", postgres.Classify(err))
	}
	if _, err := s.q(ctx).ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("apply %q: %w", ddl, postgres.Classify(err))
	}
	return nil
}

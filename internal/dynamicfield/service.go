package dynamicfield

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	"bayanat/internal/platform/metrics"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/sentinel"
	"bayanat/pkg/requestcontext"
)

var tracer = otel.Tracer("bayanat/dynamicfield")

// Store is the persistence the service needs.
type Store interface {
	List(ctx context.Context, class models.Class, activeOnly bool) ([]models.DynamicField, error)
	Get(ctx context.Context, id int, forUpdate bool) (*models.DynamicField, error)
	Insert(ctx context.Context, f *models.DynamicField) error
	Update(ctx context.Context, f *models.DynamicField) error
	SetOrder(ctx context.Context, class models.Class, ids []int, at time.Time) error
	AppendFormHistory(ctx context.Context, snap *models.DynamicFormSnapshot) error
	FormHistory(ctx context.Context, class models.Class) ([]models.DynamicFormSnapshot, error)
	SchemaVersion(ctx context.Context) (int64, error)
	BumpSchemaVersion(ctx context.Context, at time.Time) (int64, error)
	ColumnExists(ctx context.Context, table, name string) (bool, error)
	Column(ctx context.Context, table, name, index string) (ColumnState, error)
	Exec(ctx context.Context, ddl string) error
}

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type cachedFields struct {
	version int64
	fields  []models.DynamicField
}

// Service defines fields and keeps the entity tables in step with them.
type Service struct {
	store   Store
	tx      TxRunner
	cache   *lru.Cache[models.Class, cachedFields]
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

func NewService(store Store, tx TxRunner, opts ...Option) *Service {
	cache, _ := lru.New[models.Class, cachedFields](len(models.PrimaryClasses))
	s := &Service{store: store, tx: tx, cache: cache, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireSchema(ctx context.Context) error {
	if !access.Allowed(ctx, access.PermManageSchema) {
		return dErrors.New(dErrors.CodeForbidden, "caller may not change dynamic fields")
	}
	return nil
}

// Create validates and stores a new field. A field created active has its column
// added in the same transaction as the insert, so a failed DDL leaves no row.
func (s *Service) Create(ctx context.Context, f *models.DynamicField) error {
	if err := requireSchema(ctx); err != nil {
		return err
	}
	if err := Normalize(f); err != nil {
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	activate := f.Active
	f.Active = false
	f.UpdatedAt = requestcontext.Now(ctx)

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		taken, err := s.store.ColumnExists(ctx, f.EntityType.Table(), f.Name)
		if err != nil {
			return err
		}
		if taken {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("%s already has a column named %q", f.EntityType, f.Name))
		}
		if err := s.store.Insert(ctx, f); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict,
					fmt.Sprintf("%s already defines a field named %q", f.EntityType, f.Name))
			}
			return err
		}
		if err := s.recordLayout(ctx, f.EntityType); err != nil {
			return err
		}
		if !activate {
			return nil
		}
		return s.applyActive(ctx, f, true)
	})
	if err != nil {
		f.Active = false
		return translate(err, "dynamic field")
	}
	if f.Active {
		s.cache.Remove(f.EntityType)
	}
	s.logger.InfoContext(ctx, "dynamic field created",
		"entity", f.EntityType,
		"name", f.Name,
		"id", f.ID,
		"active", f.Active,
	)
	return nil
}

// Update changes a field's presentation and validation. Name, entity and type are
// fixed. Toggling searchable on an active field creates or drops its index.
func (s *Service) Update(ctx context.Context, id int, patch *models.DynamicField) (*models.DynamicField, error) {
	if err := requireSchema(ctx); err != nil {
		return nil, err
	}
	var out *models.DynamicField
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := s.store.Get(ctx, id, true)
		if err != nil {
			return err
		}
		if (patch.Name != "" && patch.Name != cur.Name) ||
			(patch.FieldType != "" && patch.FieldType != cur.FieldType) ||
			(patch.EntityType != "" && patch.EntityType != cur.EntityType) {
			return dErrors.New(dErrors.CodeValidation, "name, entity_type and field_type cannot change")
		}
		next := *cur
		next.Title = patch.Title
		next.UIComponent = patch.UIComponent
		next.UIConfig = patch.UIConfig
		next.ValidationConfig = patch.ValidationConfig
		next.Options = patch.Options
		next.Searchable = patch.Searchable
		next.SortOrder = patch.SortOrder
		if cur.Active && patch.Required != cur.Required {
			return dErrors.New(dErrors.CodeValidation, "deactivate the field before changing required")
		}
		next.Required = patch.Required
		if !cur.Active {
			next.SchemaConfig = patch.SchemaConfig
		}
		if err := Normalize(&next); err != nil {
			return dErrors.New(dErrors.CodeValidation, err.Error())
		}
		next.UpdatedAt = requestcontext.Now(ctx)

		if cur.Active && cur.Searchable != next.Searchable {
			ddl := dropIndexSQL(&next)
			if next.Searchable {
				ddl = createIndexSQL(&next)
			}
			if err := s.store.Exec(ctx, ddl); err != nil {
				return err
			}
			if err := s.bump(ctx, &next, "reindex"); err != nil {
				return err
			}
		}
		if err := s.store.Update(ctx, &next); err != nil {
			return err
		}
		out = &next
		return s.recordLayout(ctx, next.EntityType)
	})
	if err != nil {
		return nil, translate(err, "dynamic field")
	}
	s.cache.Remove(out.EntityType)
	return out, nil
}

// Activate adds the field's column, and index when searchable, in one transaction.
// Activating an active field is a no-op.
func (s *Service) Activate(ctx context.Context, id int) error {
	return s.setActive(ctx, id, true)
}

// Deactivate drops the field's index and column. The metadata row stays.
func (s *Service) Deactivate(ctx context.Context, id int) error {
	return s.setActive(ctx, id, false)
}

func (s *Service) setActive(ctx context.Context, id int, active bool) error {
	if err := requireSchema(ctx); err != nil {
		return err
	}
	action := "deactivate"
	if active {
		action = "activate"
	}
	ctx, span := tracer.Start(ctx, "dynamicfield."+action)
	defer span.End()
	span.SetAttributes(attribute.Int("dynamicfield.id", id))

	var field *models.DynamicField
	changed := false
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		f, err := s.store.Get(ctx, id, true)
		if err != nil {
			return err
		}
		field = f
		if f.Active == active {
			return nil
		}
		changed = true
		return s.applyActive(ctx, f, active)
	})
	if err != nil {
		return translate(err, "dynamic field")
	}
	if changed {
		s.cache.Remove(field.EntityType)
		s.logger.InfoContext(ctx, "dynamic field "+action+"d",
			"entity", field.EntityType,
			"name", field.Name,
			"user_id", access.ActingUserID(ctx),
		)
	}
	return nil
}

// applyActive runs the column DDL for f and persists the new state. It must be
// called inside a transaction.
func (s *Service) applyActive(ctx context.Context, f *models.DynamicField, active bool) error {
	action := "deactivate"
	if active {
		action = "activate"
		if err := s.store.Exec(ctx, addColumnSQL(f)); err != nil {
			return err
		}
		if f.Searchable {
			if err := s.store.Exec(ctx, createIndexSQL(f)); err != nil {
				return err
			}
		}
	} else {
		if err := s.store.Exec(ctx, dropIndexSQL(f)); err != nil {
			return err
		}
		if err := s.store.Exec(ctx, dropColumnSQL(f)); err != nil {
			return err
		}
	}
	f.Active = active
	f.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, f); err != nil {
		return err
	}
	if err := s.bump(ctx, f, action); err != nil {
		return err
	}
	return s.recordLayout(ctx, f.EntityType)
}

func (s *Service) bump(ctx context.Context, f *models.DynamicField, action string) error {
	if _, err := s.store.BumpSchemaVersion(ctx, requestcontext.Now(ctx)); err != nil {
		return err
	}
	s.metrics.IncrementDDL(f.EntityType.String(), action)
	return nil
}

// Reorder sets the layout order of class's fields to ids.
func (s *Service) Reorder(ctx context.Context, class models.Class, ids []int) error {
	if err := requireSchema(ctx); err != nil {
		return err
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.SetOrder(ctx, class, ids, requestcontext.Now(ctx)); err != nil {
			return err
		}
		return s.recordLayout(ctx, class)
	})
	if err != nil {
		return translate(err, "dynamic field")
	}
	s.cache.Remove(class)
	return nil
}

// recordLayout appends the ordered list of every field definition of class.
func (s *Service) recordLayout(ctx context.Context, class models.Class) error {
	fields, err := s.store.List(ctx, class, false)
	if err != nil {
		return err
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode form layout: %w", err)
	}
	return s.store.AppendFormHistory(ctx, &models.DynamicFormSnapshot{
		EntityType: class,
		Fields:     models.JSONB(body),
		UserID:     access.ActingUserID(ctx),
		CreatedAt:  requestcontext.Now(ctx),
	})
}

// List returns every field of class in layout order.
func (s *Service) List(ctx context.Context, class models.Class) ([]models.DynamicField, error) {
	fields, err := s.store.List(ctx, class, false)
	if err != nil {
		return nil, translate(err, "dynamic field")
	}
	return fields, nil
}

// FormHistory returns the layout snapshots of class.
func (s *Service) FormHistory(ctx context.Context, class models.Class) ([]models.DynamicFormSnapshot, error) {
	out, err := s.store.FormHistory(ctx, class)
	if err != nil {
		return nil, translate(err, "form history")
	}
	return out, nil
}

// Active returns the active fields of class. Results are cached until the schema
// version moves.
func (s *Service) Active(ctx context.Context, class models.Class) ([]models.DynamicField, error) {
	version, err := s.store.SchemaVersion(ctx)
	if err != nil {
		return nil, translate(err, "schema version")
	}
	if c, ok := s.cache.Get(class); ok && c.version == version {
		return c.fields, nil
	}
	fields, err := s.store.List(ctx, class, true)
	if err != nil {
		return nil, translate(err, "dynamic field")
	}
	s.cache.Add(class, cachedFields{version: version, fields: fields})
	return fields, nil
}

// Names returns the column names of class's active fields.
func (s *Service) Names(ctx context.Context, class models.Class) ([]string, error) {
	fields, err := s.Active(ctx, class)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names, nil
}

// Inspection compares a field's definition with the live table.
type Inspection struct {
	Field    models.DynamicField `json:"field"`
	Column   ColumnState         `json:"column"`
	Expected string              `json:"expected_type"`
	// Consistent holds when an active field has its column with the declared type,
	// nullability and index, or an inactive field has neither.
	Consistent bool `json:"consistent"`
}

func (s *Service) Inspect(ctx context.Context, id int) (*Inspection, error) {
	f, err := s.store.Get(ctx, id, false)
	if err != nil {
		return nil, translate(err, "dynamic field")
	}
	col, err := s.store.Column(ctx, f.EntityType.Table(), f.Name, IndexName(f))
	if err != nil {
		return nil, translate(err, "dynamic field")
	}
	out := &Inspection{Field: *f, Column: col, Expected: SQLType(f)}
	if f.Active {
		out.Consistent = col.Exists && col.UDTName == udtName(f.FieldType) &&
			col.Nullable == !f.Required && col.Indexed == f.Searchable
	} else {
		out.Consistent = !col.Exists && !col.Indexed
	}
	return out, nil
}

// ValidateValues picks the active fields of class out of payload and coerces them into
// column values. When creating, required fields must be present.
func (s *Service) ValidateValues(ctx context.Context, class models.Class, payload map[string]json.RawMessage, creating bool) (map[string]any, error) {
	fields, err := s.Active(ctx, class)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	for i := range fields {
		f := &fields[i]
		raw, ok := payload[f.Name]
		if !ok {
			if creating && f.Required {
				return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s is required", f.Name))
			}
			continue
		}
		v, err := Coerce(f, raw)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		out[f.Name] = v
	}
	return out, nil
}

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case dErrors.Coded(err):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, what+" already exists")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeValidation, what+" violates a constraint")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to change "+what)
}

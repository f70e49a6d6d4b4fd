package dynamicfield

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/sentinel"
)

type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memoryStore struct {
	fields  map[int]models.DynamicField
	columns map[string]bool
	ddl     []string
	layouts int
	version int64
	lists   int
	nextID  int
	execErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{fields: map[int]models.DynamicField{}, columns: map[string]bool{"actor.name": true}}
}

func (m *memoryStore) List(_ context.Context, class models.Class, activeOnly bool) ([]models.DynamicField, error) {
	m.lists++
	var out []models.DynamicField
	for i := 1; i <= m.nextID; i++ {
		f, ok := m.fields[i]
		if ok && f.EntityType == class && (!activeOnly || f.Active) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memoryStore) Get(_ context.Context, id int, _ bool) (*models.DynamicField, error) {
	f, ok := m.fields[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &f, nil
}

func (m *memoryStore) Insert(_ context.Context, f *models.DynamicField) error {
	for _, cur := range m.fields {
		if cur.Name == f.Name && cur.EntityType == f.EntityType {
			return sentinel.ErrConflict
		}
	}
	m.nextID++
	f.ID = m.nextID
	m.fields[f.ID] = *f
	return nil
}

func (m *memoryStore) Update(_ context.Context, f *models.DynamicField) error {
	m.fields[f.ID] = *f
	return nil
}

func (m *memoryStore) SetOrder(context.Context, models.Class, []int, time.Time) error { return nil }

func (m *memoryStore) AppendFormHistory(context.Context, *models.DynamicFormSnapshot) error {
	m.layouts++
	return nil
}

func (m *memoryStore) FormHistory(context.Context, models.Class) ([]models.DynamicFormSnapshot, error) {
	return nil, nil
}

func (m *memoryStore) SchemaVersion(context.Context) (int64, error) { return m.version, nil }

func (m *memoryStore) BumpSchemaVersion(context.Context, time.Time) (int64, error) {
	m.version++
	return m.version, nil
}

func (m *memoryStore) ColumnExists(_ context.Context, table, name string) (bool, error) {
	return m.columns[table+"."+name], nil
}

func (m *memoryStore) Column(context.Context, string, string, string) (ColumnState, error) {
	return ColumnState{}, nil
}

func (m *memoryStore) Exec(_ context.Context, ddl string) error {
	if m.execErr != nil {
		return m.execErr
	}
	m.ddl = append(m.ddl, ddl)
	return nil
}

// rollbackTx restores the store's rows when fn fails.
type rollbackTx struct {
	store *memoryStore
	runs  int
}

func (r *rollbackTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.runs++
	fields := make(map[int]models.DynamicField, len(r.store.fields))
	for id, f := range r.store.fields {
		fields[id] = f
	}
	nextID, layouts, version := r.store.nextID, r.store.layouts, r.store.version
	if err := fn(ctx); err != nil {
		r.store.fields, r.store.nextID = fields, nextID
		r.store.layouts, r.store.version = layouts, version
		return err
	}
	return nil
}

type ServiceSuite struct {
	suite.Suite
	store *memoryStore
	svc   *Service
	ctx   context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = newMemoryStore()
	s.svc = NewService(s.store, passthroughTx{})
	s.ctx = context.Background()
}

func (s *ServiceSuite) dob() *models.DynamicField {
	f := &models.DynamicField{Name: "dob", Title: "Date of birth", EntityType: models.ClassActor,
		FieldType: models.FieldDatetime, Searchable: true}
	s.Require().NoError(s.svc.Create(s.ctx, f))
	return f
}

func (s *ServiceSuite) TestActivateIsIdempotent() {
	f := s.dob()
	s.Require().NoError(s.svc.Activate(s.ctx, f.ID))
	s.Require().NoError(s.svc.Activate(s.ctx, f.ID))

	s.Equal([]string{
		`ALTER TABLE "actor" ADD COLUMN IF NOT EXISTS "dob" timestamptz`,
		`CREATE INDEX IF NOT EXISTS "ix_actor_dob" ON "actor" ("dob")`,
	}, s.store.ddl)
	s.EqualValues(1, s.store.version)
	s.Equal(2, s.store.layouts, "create and activate each record the layout")

	s.Require().NoError(s.svc.Deactivate(s.ctx, f.ID))
	s.Equal(`ALTER TABLE "actor" DROP COLUMN IF EXISTS "dob"`, s.store.ddl[len(s.store.ddl)-1])
	s.False(s.store.fields[f.ID].Active)
}

func (s *ServiceSuite) TestCreateActiveRunsInOneTransaction() {
	tx := &rollbackTx{store: s.store}
	svc := NewService(s.store, tx)

	f := &models.DynamicField{Name: "dob", Title: "Date of birth", EntityType: models.ClassActor,
		FieldType: models.FieldDatetime, Searchable: true, Active: true}
	s.Require().NoError(svc.Create(s.ctx, f))

	s.Equal(1, tx.runs)
	s.True(f.Active)
	s.True(s.store.fields[f.ID].Active)
	s.Len(s.store.ddl, 2)
	s.EqualValues(1, s.store.version)
}

func (s *ServiceSuite) TestCreateActiveLeavesNoRowWhenDDLFails() {
	tx := &rollbackTx{store: s.store}
	svc := NewService(s.store, tx)
	s.store.execErr = errors.New("permission denied for table actor")

	f := &models.DynamicField{Name: "dob", Title: "Date of birth", EntityType: models.ClassActor,
		FieldType: models.FieldDatetime, Active: true}
	err := svc.Create(s.ctx, f)

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.False(f.Active)
	s.Empty(s.store.fields)
	s.Zero(s.store.layouts)
	s.Zero(s.store.version)
}

func (s *ServiceSuite) TestCreateRejectsCollisions() {
	err := s.svc.Create(s.ctx, &models.DynamicField{Name: "name", Title: "Name",
		EntityType: models.ClassActor, FieldType: models.FieldString})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "existing column")

	s.dob()
	err = s.svc.Create(s.ctx, &models.DynamicField{Name: "dob", Title: "Again",
		EntityType: models.ClassActor, FieldType: models.FieldDatetime})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestUpdateKeepsIdentity() {
	f := s.dob()
	_, err := s.svc.Update(s.ctx, f.ID, &models.DynamicField{Title: "x", FieldType: models.FieldString})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	s.Require().NoError(s.svc.Activate(s.ctx, f.ID))
	out, err := s.svc.Update(s.ctx, f.ID, &models.DynamicField{Title: "Born", Searchable: false})
	s.Require().NoError(err)
	s.Equal("Born", out.Title)
	s.Equal(`DROP INDEX IF EXISTS "ix_actor_dob"`, s.store.ddl[len(s.store.ddl)-1])
}

func (s *ServiceSuite) TestActiveCachedUntilVersionMoves() {
	f := s.dob()
	s.Require().NoError(s.svc.Activate(s.ctx, f.ID))

	before := s.store.lists
	_, err := s.svc.Active(s.ctx, models.ClassActor)
	s.Require().NoError(err)
	_, err = s.svc.Active(s.ctx, models.ClassActor)
	s.Require().NoError(err)
	s.Equal(before+1, s.store.lists)

	s.store.version++
	names, err := s.svc.Names(s.ctx, models.ClassActor)
	s.Require().NoError(err)
	s.Equal([]string{"dob"}, names)
	s.Equal(before+2, s.store.lists)
}

func (s *ServiceSuite) TestValidateValues() {
	f := s.dob()
	s.Require().NoError(s.svc.Activate(s.ctx, f.ID))
	req := &models.DynamicField{Name: "case_no", Title: "Case", EntityType: models.ClassActor,
		FieldType: models.FieldInteger, Required: true, Active: true}
	s.Require().NoError(s.svc.Create(s.ctx, req))

	_, err := s.svc.ValidateValues(s.ctx, models.ClassActor, map[string]json.RawMessage{}, true)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "required on create")

	out, err := s.svc.ValidateValues(s.ctx, models.ClassActor, map[string]json.RawMessage{
		"dob": json.RawMessage(`"1990-01-01"`), "unknown": json.RawMessage(`1`),
	}, false)
	s.Require().NoError(err)
	s.Equal(time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), out["dob"])
	s.NotContains(out, "unknown")
}

func (s *ServiceSuite) TestRequiresManageSchema() {
	ctx := access.WithCaller(s.ctx, &access.Caller{UserID: 3})
	err := s.svc.Create(ctx, &models.DynamicField{Name: "x", Title: "X",
		EntityType: models.ClassActor, FieldType: models.FieldString})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

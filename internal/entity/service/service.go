// Package service implements the entity ingest contract: presence-aware upserts of
// bulletins, actors and incidents, the review and assignment paths, soft deletion and
// the single-edge relate helpers. Every mutation commits together with the history
// snapshots it causes.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	"bayanat/internal/entity/serializer"
	"bayanat/internal/entity/store"
	"bayanat/internal/platform/metrics"
	"bayanat/internal/relation"
	"bayanat/internal/revision"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/sentinel"
)

var tracer = otel.Tracer("bayanat/entity")

// Store is the entity persistence the service needs.
type Store interface {
	LoadBulletin(ctx context.Context, id int, opts store.LoadOptions) (*models.Bulletin, error)
	LoadActor(ctx context.Context, id int, opts store.LoadOptions) (*models.Actor, error)
	LoadIncident(ctx context.Context, id int, opts store.LoadOptions) (*models.Incident, error)
	InsertBulletin(ctx context.Context, b *models.Bulletin) error
	UpdateBulletin(ctx context.Context, b *models.Bulletin) error
	InsertActor(ctx context.Context, a *models.Actor) error
	UpdateActor(ctx context.Context, a *models.Actor) error
	InsertIncident(ctx context.Context, i *models.Incident) error
	UpdateIncident(ctx context.Context, i *models.Incident) error

	ReplaceSet(ctx context.Context, c store.Collection, owner int, ids []int) error
	SyncEvents(ctx context.Context, class models.Class, owner int, events []models.Event) error
	SyncMedias(ctx context.Context, class models.Class, owner int, medias []models.Media, by *int) error
	SyncGeoLocations(ctx context.Context, bulletinID int, geos []models.GeoLocation) error
	SyncProfiles(ctx context.Context, actorID int, profiles []store.ProfileChange) error
	WriteDynamic(ctx context.Context, class models.Class, id int, values map[string]any) error

	Scope(ctx context.Context, class models.Class, id int) (models.Scope, error)
	Summaries(ctx context.Context, class models.Class, ids []int) (map[int]*models.Summary, error)
	SoftDelete(ctx context.Context, class models.Class, id int) error
	UpdateReview(ctx context.Context, class models.Class, id int, req models.ReviewRequest) error
	UpdateAssignment(ctx context.Context, class models.Class, r *models.Record) error
}

// Fields exposes the active dynamic fields of each class.
type Fields interface {
	Active(ctx context.Context, class models.Class) ([]models.DynamicField, error)
	Names(ctx context.Context, class models.Class) ([]string, error)
	ValidateValues(ctx context.Context, class models.Class, payload map[string]json.RawMessage, creating bool) (map[string]any, error)
}

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service orchestrates entity mutations and reads.
type Service struct {
	store      Store
	tx         TxRunner
	relations  *relation.Service
	recorder   *revision.Recorder
	history    *revision.Reader
	fields     Fields
	policy     access.Policy
	serializer *serializer.Serializer
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPolicy sets the access policy. The default is permissive.
func WithPolicy(p access.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithHistory enables History reads.
func WithHistory(r *revision.Reader) Option {
	return func(s *Service) { s.history = r }
}

// New builds the service and registers the entity snapshot sources with recorder.
func New(st Store, tx TxRunner, relations *relation.Service, recorder *revision.Recorder, fields Fields, opts ...Option) *Service {
	s := &Service{
		store:     st,
		tx:        tx,
		relations: relations,
		recorder:  recorder,
		fields:    fields,
		policy:    access.NewPolicy(access.Permissive),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.serializer = serializer.New(s.policy, st, relations, fields)
	for _, class := range models.PrimaryClasses {
		recorder.Register(class, func(ctx context.Context, id int) (models.Dict, error) {
			return s.load(ctx, class, id, serializer.Full)
		})
	}
	return s
}

// Serializer returns the access-gated serializer the service renders with.
func (s *Service) Serializer() *serializer.Serializer { return s.serializer }

// Get renders one entity for the caller. A caller who may not read it receives the
// restricted stub rather than an error.
func (s *Service) Get(ctx context.Context, class models.Class, id int, opts serializer.Options) (models.Dict, error) {
	ctx, span := tracer.Start(ctx, "entity.Get")
	defer span.End()
	if !class.Primary() {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown entity class %q", class))
	}
	return s.load(ctx, class, id, opts)
}

func (s *Service) load(ctx context.Context, class models.Class, id int, opts serializer.Options) (models.Dict, error) {
	names, err := s.fields.Names(ctx, class)
	if err != nil {
		return nil, err
	}
	lo := store.LoadOptions{Scalars: !opts.NeedsChildren(), Dynamic: names}
	switch class {
	case models.ClassBulletin:
		b, err := s.store.LoadBulletin(ctx, id, lo)
		if err != nil {
			return nil, translate(err, class, id)
		}
		return s.serializer.Bulletin(ctx, b, opts)
	case models.ClassActor:
		a, err := s.store.LoadActor(ctx, id, lo)
		if err != nil {
			return nil, translate(err, class, id)
		}
		return s.serializer.Actor(ctx, a, opts)
	case models.ClassIncident:
		i, err := s.store.LoadIncident(ctx, id, lo)
		if err != nil {
			return nil, translate(err, class, id)
		}
		return s.serializer.Incident(ctx, i, opts)
	}
	return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown entity class %q", class))
}

// History lists the entity's snapshots projected for the caller. The caller must be
// able to read the entity itself.
func (s *Service) History(ctx context.Context, class models.Class, id int) ([]models.Dict, error) {
	if s.history == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "history reads are not configured")
	}
	readable, err := s.Readable(ctx, class, id)
	if err != nil {
		return nil, err
	}
	if !readable {
		return nil, dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("caller may not read %s %d", class, id))
	}
	return s.history.List(ctx, class, id)
}

// Readable reports whether the caller may read the entity in full.
func (s *Service) Readable(ctx context.Context, class models.Class, id int) (bool, error) {
	scope, err := s.store.Scope(ctx, class, id)
	if err != nil {
		return false, translate(err, class, id)
	}
	return s.policy.CanRead(ctx, scope), nil
}

// authorize loads the entity's scope and checks the caller may change it. A missing
// entity is reported before a refusal.
func (s *Service) authorize(ctx context.Context, class models.Class, id int) (models.Scope, error) {
	scope, err := s.store.Scope(ctx, class, id)
	if err != nil {
		return models.Scope{}, translate(err, class, id)
	}
	if !s.policy.CanWrite(ctx, scope) {
		return models.Scope{}, dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("caller may not access %s %d", class, id))
	}
	return scope, nil
}

// checkRoles refuses to scope an entity onto roles the caller does not hold.
func (s *Service) checkRoles(ctx context.Context, roles models.Opt[[]models.IDRef]) error {
	if !roles.Set || s.policy.CanScopeTo(ctx, models.IDs(roles.V)) {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "caller may only assign roles they hold")
}

func translate(err error, class models.Class, id int) error {
	switch {
	case err == nil:
		return nil
	case dErrors.Coded(err):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		if id == 0 {
			return dErrors.Wrap(err, dErrors.CodeNotFound, fmt.Sprintf("%s references a missing entity", class))
		}
		return dErrors.Wrap(err, dErrors.CodeNotFound, fmt.Sprintf("%s %d not found", class, id))
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, fmt.Sprintf("%s conflicts with an existing record", class))
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("%s violates a constraint", class))
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to save %s", class))
}

package relation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	"bayanat/internal/platform/metrics"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/sentinel"
	"bayanat/pkg/requestcontext"
)

var tracer = otel.Tracer("bayanat/relation")

// Store is the persistence the relation service needs.
type Store interface {
	Get(ctx context.Context, k Kind, left, right int, forUpdate bool) (*models.Edge, error)
	Insert(ctx context.Context, k Kind, e *models.Edge) (bool, error)
	Update(ctx context.Context, k Kind, e *models.Edge) error
	Delete(ctx context.Context, k Kind, left, right int) (bool, error)
	ListFor(ctx context.Context, k Kind, self Ref) ([]models.Edge, error)
	UnknownCodes(ctx context.Context, k Kind, codes models.Codes) ([]int, error)
	MissingEntities(ctx context.Context, c models.Class, ids []int) ([]int, error)
	ListInfo(ctx context.Context, k Kind) ([]models.RelationInfo, error)
	SaveInfo(ctx context.Context, k Kind, info *models.RelationInfo) error
}

// Service upserts, removes and diffs edges. It never records revisions; callers
// cascade snapshots from the returned changes.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AreRelated returns the edge between a and b, if any. An entity is never related to itself.
func (s *Service) AreRelated(ctx context.Context, a, b Ref) (*models.Edge, bool, error) {
	k, err := KindFor(a.Class, b.Class)
	if err != nil {
		return nil, false, dErrors.New(dErrors.CodeBadRequest, err.Error())
	}
	left, right, err := k.Endpoints(a, b)
	if errors.Is(err, ErrSelfRelation) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dErrors.New(dErrors.CodeBadRequest, err.Error())
	}
	e, err := s.store.Get(ctx, k, left, right, false)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up relation")
	}
	return e, true, nil
}

// Relate upserts the edge from a to b. Relating twice with the same attributes reports
// Unchanged the second time. A concurrent insert of the same pair is absorbed by
// re-reading the winning row.
func (s *Service) Relate(ctx context.Context, a, b Ref, attrs Attrs) (Change, error) {
	ctx, span := tracer.Start(ctx, "relation.Relate")
	defer span.End()

	k, err := KindFor(a.Class, b.Class)
	if err != nil {
		return Change{}, dErrors.New(dErrors.CodeBadRequest, err.Error())
	}
	span.SetAttributes(attribute.String("relation.kind", k.Name))

	left, right, err := k.Endpoints(a, b)
	if err != nil {
		return Change{}, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if err := s.validate(ctx, k, attrs); err != nil {
		return Change{}, err
	}

	want := &models.Edge{
		Kind:        k.Name,
		LeftID:      left,
		RightID:     right,
		RelatedAs:   attrs.RelatedAs.Normalize(),
		Probability: attrs.Probability,
		Comment:     attrs.Comment,
		UserID:      access.ActingUserID(ctx),
		UpdatedAt:   requestcontext.Now(ctx),
	}
	change := Change{Kind: k, Counterpart: b, Edge: want}

	current, err := s.store.Get(ctx, k, left, right, true)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return Change{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load relation")
	}
	if current == nil {
		inserted, err := s.store.Insert(ctx, k, want)
		if err != nil {
			return Change{}, translateEdgeErr(err, a, b)
		}
		if inserted {
			change.Outcome = Created
			s.observe(ctx, k, change)
			return change, nil
		}
		current, err = s.store.Get(ctx, k, left, right, true)
		if err != nil {
			return Change{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload relation")
		}
	}

	if current.SameAttrs(want) {
		change.Edge = current
		return change, nil
	}
	want.CreatedAt = current.CreatedAt
	if err := s.store.Update(ctx, k, want); err != nil {
		return Change{}, translateEdgeErr(err, a, b)
	}
	change.Outcome = Updated
	s.observe(ctx, k, change)
	return change, nil
}

// Unrelate removes the edge between a and b, reporting Deleted when one existed.
func (s *Service) Unrelate(ctx context.Context, a, b Ref) (Change, error) {
	k, err := KindFor(a.Class, b.Class)
	if err != nil {
		return Change{}, dErrors.New(dErrors.CodeBadRequest, err.Error())
	}
	left, right, err := k.Endpoints(a, b)
	if err != nil {
		return Change{}, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	removed, err := s.store.Delete(ctx, k, left, right)
	if err != nil {
		return Change{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove relation")
	}
	change := Change{Kind: k, Counterpart: b}
	if removed {
		change.Outcome = Deleted
		s.observe(ctx, k, change)
	}
	return change, nil
}

// Desired is one entry of a complete relation set.
type Desired struct {
	ID    int
	Attrs Attrs
}

// DesiredFrom converts a payload collection, resolving counterparts of class other.
func DesiredFrom(other models.Class, entries []models.RelationInput) ([]Desired, error) {
	out := make([]Desired, 0, len(entries))
	for i, e := range entries {
		id, ok := e.Counterpart(other)
		if !ok {
			return nil, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("%s relation %d names no %s", other, i, other))
		}
		out = append(out, Desired{ID: id, Attrs: AttrsFrom(e)})
	}
	return out, nil
}

// Sync makes desired the complete set of self's edges to class other. Entries are
// upserted; existing edges whose counterpart is absent are removed. Only changed
// edges are returned. A repeated counterpart keeps its last entry.
func (s *Service) Sync(ctx context.Context, self Ref, other models.Class, desired []Desired) ([]Change, error) {
	k, err := KindFor(self.Class, other)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, err.Error())
	}

	order := make([]int, 0, len(desired))
	wanted := make(map[int]Attrs, len(desired))
	for _, d := range desired {
		if _, seen := wanted[d.ID]; !seen {
			order = append(order, d.ID)
		}
		wanted[d.ID] = d.Attrs
	}
	if missing, err := s.store.MissingEntities(ctx, other, order); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check related entities")
	} else if len(missing) > 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("%s %v not found", other, missing))
	}

	existing, err := s.store.ListFor(ctx, k, self)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list relations")
	}

	var changes []Change
	for _, e := range existing {
		counterpart := k.Counterpart(&e, self)
		if _, keep := wanted[counterpart.ID]; keep {
			continue
		}
		c, err := s.Unrelate(ctx, self, counterpart)
		if err != nil {
			return nil, err
		}
		if c.Changed() {
			changes = append(changes, c)
		}
	}
	for _, id := range order {
		c, err := s.Relate(ctx, self, Ref{Class: other, ID: id}, wanted[id])
		if err != nil {
			return nil, err
		}
		if c.Changed() {
			changes = append(changes, c)
		}
	}
	return changes, nil
}

// ListFor returns self's edges of every kind touching class other.
func (s *Service) ListFor(ctx context.Context, self Ref, other models.Class) (Kind, []models.Edge, error) {
	k, err := KindFor(self.Class, other)
	if err != nil {
		return Kind{}, nil, dErrors.New(dErrors.CodeBadRequest, err.Error())
	}
	edges, err := s.store.ListFor(ctx, k, self)
	if err != nil {
		return Kind{}, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list relations")
	}
	return k, edges, nil
}

// ListInfo returns the related_as dictionary of kind name.
func (s *Service) ListInfo(ctx context.Context, name string) ([]models.RelationInfo, error) {
	k, err := KindByName(name)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, err.Error())
	}
	out, err := s.store.ListInfo(ctx, k)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list relation info")
	}
	return out, nil
}

// SaveInfo creates or updates a related_as dictionary row.
func (s *Service) SaveInfo(ctx context.Context, name string, info *models.RelationInfo) error {
	k, err := KindByName(name)
	if err != nil {
		return dErrors.New(dErrors.CodeNotFound, err.Error())
	}
	if err := models.Validate(info); err != nil {
		return err
	}
	if err := s.store.SaveInfo(ctx, k, info); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "relation info not found")
		case errors.Is(err, sentinel.ErrConflict):
			return dErrors.New(dErrors.CodeConflict, "relation info already exists")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save relation info")
	}
	return nil
}

func (s *Service) validate(ctx context.Context, k Kind, attrs Attrs) error {
	if err := k.ValidateAttrs(attrs); err != nil {
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	unknown, err := s.store.UnknownCodes(ctx, k, attrs.RelatedAs.Normalize())
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check related_as codes")
	}
	if len(unknown) > 0 {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown %s related_as codes %v", k.Name, unknown))
	}
	return nil
}

func (s *Service) observe(ctx context.Context, k Kind, c Change) {
	s.metrics.IncrementEdge(k.Name, c.Outcome.String())
	s.logger.DebugContext(ctx, "relation changed",
		"kind", k.Name,
		"counterpart", c.Counterpart.String(),
		"outcome", c.Outcome.String(),
	)
}

func translateEdgeErr(err error, a, b Ref) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("cannot relate %s to missing %s", a, b))
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeValidation, "relation violates a constraint")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "relation already exists")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save relation")
}

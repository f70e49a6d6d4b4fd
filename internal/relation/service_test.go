package relation

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/suite"

	"bayanat/internal/entity/models"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/sentinel"
)

type edgeKey struct {
	kind        string
	left, right int
}

// memoryStore is an in-process Store used to exercise the service rules.
type memoryStore struct {
	edges    map[edgeKey]models.Edge
	codes    map[string]map[int]bool
	entities map[models.Class]map[int]bool
	// raceOnInsert simulates a concurrent writer winning the insert.
	raceOnInsert bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		edges: map[edgeKey]models.Edge{},
		codes: map[string]map[int]bool{"atoa": {1: true, 2: true}, "atob": {1: true, 2: true, 3: true}},
		entities: map[models.Class]map[int]bool{
			models.ClassActor:    {1: true, 2: true, 3: true},
			models.ClassBulletin: {1: true, 2: true},
		},
	}
}

func (m *memoryStore) Get(_ context.Context, k Kind, left, right int, _ bool) (*models.Edge, error) {
	e, ok := m.edges[edgeKey{k.Name, left, right}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &e, nil
}

func (m *memoryStore) Insert(_ context.Context, k Kind, e *models.Edge) (bool, error) {
	key := edgeKey{k.Name, e.LeftID, e.RightID}
	if m.raceOnInsert {
		m.raceOnInsert = false
		m.edges[key] = models.Edge{LeftID: e.LeftID, RightID: e.RightID, Comment: "winner"}
		return false, nil
	}
	if _, ok := m.edges[key]; ok {
		return false, nil
	}
	m.edges[key] = *e
	return true, nil
}

func (m *memoryStore) Update(_ context.Context, k Kind, e *models.Edge) error {
	key := edgeKey{k.Name, e.LeftID, e.RightID}
	if _, ok := m.edges[key]; !ok {
		return sentinel.ErrNotFound
	}
	m.edges[key] = *e
	return nil
}

func (m *memoryStore) Delete(_ context.Context, k Kind, left, right int) (bool, error) {
	key := edgeKey{k.Name, left, right}
	_, ok := m.edges[key]
	delete(m.edges, key)
	return ok, nil
}

func (m *memoryStore) ListFor(_ context.Context, k Kind, self Ref) ([]models.Edge, error) {
	var out []models.Edge
	for key, e := range m.edges {
		if key.kind != k.Name {
			continue
		}
		switch {
		case k.Symmetric && (e.LeftID == self.ID || e.RightID == self.ID):
		case !k.Symmetric && self.Class == k.Left && e.LeftID == self.ID:
		case !k.Symmetric && self.Class == k.Right && e.RightID == self.ID:
		default:
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeftID*100+out[i].RightID < out[j].LeftID*100+out[j].RightID })
	return out, nil
}

func (m *memoryStore) UnknownCodes(_ context.Context, k Kind, codes models.Codes) ([]int, error) {
	var missing []int
	for _, c := range codes {
		if !m.codes[k.Name][c] {
			missing = append(missing, c)
		}
	}
	return missing, nil
}

func (m *memoryStore) MissingEntities(_ context.Context, c models.Class, ids []int) ([]int, error) {
	var missing []int
	for _, id := range ids {
		if !m.entities[c][id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (m *memoryStore) ListInfo(context.Context, Kind) ([]models.RelationInfo, error) {
	return nil, nil
}

func (m *memoryStore) SaveInfo(context.Context, Kind, *models.RelationInfo) error {
	return fmt.Errorf("not supported")
}

type ServiceSuite struct {
	suite.Suite
	store   *memoryStore
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = newMemoryStore()
	s.service = NewService(s.store)
	s.ctx = context.Background()
}

func actor(id int) Ref    { return Ref{Class: models.ClassActor, ID: id} }
func bulletin(id int) Ref { return Ref{Class: models.ClassBulletin, ID: id} }
func prob(v int) *int     { return &v }

func (s *ServiceSuite) TestRelateIsIdempotent() {
	attrs := Attrs{RelatedAs: models.Codes{1}, Probability: prob(2), Comment: "co-worker"}

	first, err := s.service.Relate(s.ctx, actor(2), actor(1), attrs)
	s.Require().NoError(err)
	s.Equal(Created, first.Outcome)

	second, err := s.service.Relate(s.ctx, actor(1), actor(2), attrs)
	s.Require().NoError(err)
	s.Equal(Unchanged, second.Outcome)

	s.Len(s.store.edges, 1)
	_, ok := s.store.edges[edgeKey{"atoa", 1, 2}]
	s.True(ok, "symmetric pair stored with the lower id first")
}

func (s *ServiceSuite) TestRelateUpdatesChangedAttrs() {
	_, err := s.service.Relate(s.ctx, actor(1), actor(2), Attrs{RelatedAs: models.Codes{1}})
	s.Require().NoError(err)

	c, err := s.service.Relate(s.ctx, actor(2), actor(1), Attrs{RelatedAs: models.Codes{2}, Comment: "sibling"})
	s.Require().NoError(err)
	s.Equal(Updated, c.Outcome)
	s.Equal("sibling", s.store.edges[edgeKey{"atoa", 1, 2}].Comment)
}

func (s *ServiceSuite) TestRelateAbsorbsConcurrentInsert() {
	s.store.raceOnInsert = true
	c, err := s.service.Relate(s.ctx, actor(1), actor(2), Attrs{Comment: "mine"})
	s.Require().NoError(err)
	s.Equal(Updated, c.Outcome)
	s.Equal("mine", s.store.edges[edgeKey{"atoa", 1, 2}].Comment)
}

func (s *ServiceSuite) TestRelateRejectsSelfAndBadAttrs() {
	_, err := s.service.Relate(s.ctx, actor(1), actor(1), Attrs{})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Relate(s.ctx, actor(1), actor(2), Attrs{Probability: prob(5)})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Relate(s.ctx, actor(1), actor(2), Attrs{RelatedAs: models.Codes{1, 2}})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "atoa takes one code")

	_, err = s.service.Relate(s.ctx, actor(1), actor(2), Attrs{RelatedAs: models.Codes{9}})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "code missing from atoa_info")
}

func (s *ServiceSuite) TestAreRelated() {
	_, ok, err := s.service.AreRelated(s.ctx, actor(1), actor(1))
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.service.Relate(s.ctx, actor(1), bulletin(2), Attrs{RelatedAs: models.Codes{1, 3}})
	s.Require().NoError(err)

	e, ok, err := s.service.AreRelated(s.ctx, bulletin(2), actor(1))
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(models.Codes{1, 3}, e.RelatedAs)
}

func (s *ServiceSuite) TestSyncDiffsCompleteSet() {
	_, err := s.service.Relate(s.ctx, actor(1), actor(2), Attrs{RelatedAs: models.Codes{1}})
	s.Require().NoError(err)

	changes, err := s.service.Sync(s.ctx, actor(1), models.ClassActor, []Desired{
		{ID: 2, Attrs: Attrs{RelatedAs: models.Codes{1}}},
		{ID: 3, Attrs: Attrs{RelatedAs: models.Codes{2}}},
	})
	s.Require().NoError(err)
	s.Require().Len(changes, 1, "unchanged edge to 2 is not reported")
	s.Equal(3, changes[0].Counterpart.ID)
	s.Equal(Created, changes[0].Outcome)

	changes, err = s.service.Sync(s.ctx, actor(1), models.ClassActor, nil)
	s.Require().NoError(err)
	s.Len(changes, 2)
	for _, c := range changes {
		s.Equal(Deleted, c.Outcome)
	}
	s.Empty(s.store.edges)
}

func (s *ServiceSuite) TestSyncRejectsMissingCounterpart() {
	_, err := s.service.Sync(s.ctx, actor(1), models.ClassBulletin, []Desired{{ID: 99}})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestDesiredFrom() {
	two := models.IDRef(2)
	five := models.IDRef(5)
	out, err := DesiredFrom(models.ClassActor, []models.RelationInput{
		{Actor: &two, RelatedAs: models.Codes{1}},
		{Other: &five},
	})
	s.Require().NoError(err)
	s.Equal(2, out[0].ID)
	s.Equal(5, out[1].ID)

	_, err = DesiredFrom(models.ClassActor, []models.RelationInput{{Comment: "nobody"}})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

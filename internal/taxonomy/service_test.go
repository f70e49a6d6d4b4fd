package taxonomy

import (
	"context"
	"testing"

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

// labelStore keeps labels in memory; other Store methods are unused here.
type labelStore struct {
	Store
	labels map[int]models.Label
	nextID int
}

func (m *labelStore) Descends(_ context.Context, _ Tree, id, candidate int) (bool, error) {
	queue := []int{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, l := range m.labels {
			if l.ParentID != nil && *l.ParentID == cur {
				if l.ID == candidate {
					return true, nil
				}
				queue = append(queue, l.ID)
			}
		}
	}
	return false, nil
}

func (m *labelStore) GetLabel(_ context.Context, id int, _ bool) (*models.Label, error) {
	l, ok := m.labels[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &l, nil
}

func (m *labelStore) LabelChildren(_ context.Context, id int) ([]models.Label, error) {
	var out []models.Label
	for i := 1; i <= m.nextID; i++ {
		if l, ok := m.labels[i]; ok && l.ParentID != nil && *l.ParentID == id {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *labelStore) InsertLabel(_ context.Context, l *models.Label) error {
	m.nextID++
	l.ID = m.nextID
	m.labels[l.ID] = *l
	return nil
}

func (m *labelStore) UpdateLabel(_ context.Context, l *models.Label) error {
	m.labels[l.ID] = *l
	return nil
}

func (m *labelStore) Children(_ context.Context, _ Tree, _ *int) ([]Node, error) {
	return []Node{{ID: 1, Title: "Area 10"}, {ID: 2, Title: "Area 2"}, {ID: 3, Title: "Area 1"}}, nil
}

type LabelSuite struct {
	suite.Suite
	store *labelStore
	svc   *Service
}

func TestLabelSuite(t *testing.T) {
	suite.Run(t, new(LabelSuite))
}

func (s *LabelSuite) SetupTest() {
	s.store = &labelStore{labels: map[int]models.Label{}}
	s.svc = NewService(s.store, passthroughTx{})
}

func intPtr(v int) *int { return &v }

func (s *LabelSuite) TestChildClampedToParent() {
	ctx := context.Background()
	parent := &models.Label{Title: "P", Verified: false, ForActor: false, ForBulletin: true}
	s.Require().NoError(s.svc.SaveLabel(ctx, parent))

	child := &models.Label{Title: "C", Verified: true, ForActor: true, ForBulletin: true, ParentID: intPtr(parent.ID)}
	s.Require().NoError(s.svc.SaveLabel(ctx, child))

	stored := s.store.labels[child.ID]
	s.False(stored.Verified)
	s.False(stored.ForActor)
	s.True(stored.ForBulletin)
}

func (s *LabelSuite) TestVerifiedParentForcesVerifiedChild() {
	ctx := context.Background()
	parent := &models.Label{Title: "P", Verified: true, ForBulletin: true}
	s.Require().NoError(s.svc.SaveLabel(ctx, parent))
	child := &models.Label{Title: "C", ForBulletin: true, ParentID: intPtr(parent.ID)}
	s.Require().NoError(s.svc.SaveLabel(ctx, child))
	s.True(s.store.labels[child.ID].Verified)
}

func (s *LabelSuite) TestParentChangeReclampsSubtree() {
	ctx := context.Background()
	root := &models.Label{Title: "R", ForActor: true, ForBulletin: true}
	s.Require().NoError(s.svc.SaveLabel(ctx, root))
	mid := &models.Label{Title: "M", ForActor: true, ParentID: intPtr(root.ID)}
	s.Require().NoError(s.svc.SaveLabel(ctx, mid))
	leaf := &models.Label{Title: "L", ForActor: true, ParentID: intPtr(mid.ID)}
	s.Require().NoError(s.svc.SaveLabel(ctx, leaf))

	root.ForActor = false
	s.Require().NoError(s.svc.SaveLabel(ctx, root))

	s.False(s.store.labels[mid.ID].ForActor)
	s.False(s.store.labels[leaf.ID].ForActor)
}

func (s *LabelSuite) TestRejectsCycles() {
	ctx := context.Background()
	a := &models.Label{Title: "A"}
	s.Require().NoError(s.svc.SaveLabel(ctx, a))
	b := &models.Label{Title: "B", ParentID: intPtr(a.ID)}
	s.Require().NoError(s.svc.SaveLabel(ctx, b))

	a.ParentID = intPtr(b.ID)
	err := s.svc.SaveLabel(ctx, a)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	b.ParentID = intPtr(b.ID)
	err = s.svc.SaveLabel(ctx, b)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *LabelSuite) TestRequiresPermission() {
	ctx := access.WithCaller(context.Background(), &access.Caller{UserID: 5})
	err := s.svc.SaveLabel(ctx, &models.Label{Title: "X"})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	ctx = access.WithCaller(context.Background(),
		&access.Caller{UserID: 5, Permissions: []string{access.PermManageTaxonomy}})
	s.NoError(s.svc.SaveLabel(ctx, &models.Label{Title: "X"}))
}

func (s *LabelSuite) TestMissingParent() {
	err := s.svc.SaveLabel(context.Background(), &models.Label{Title: "X", ParentID: intPtr(99)})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LabelSuite) TestChildrenNaturalOrder() {
	nodes, err := s.svc.Children(context.Background(), TreeLabel, nil)
	s.Require().NoError(err)
	titles := make([]string, len(nodes))
	for i, n := range nodes {
		titles[i] = n.Title
	}
	s.Equal([]string{"Area 1", "Area 2", "Area 10"}, titles)
}

func (s *LabelSuite) TestUnknownVocabulary() {
	_, err := s.svc.ListVocab(context.Background(), "users")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

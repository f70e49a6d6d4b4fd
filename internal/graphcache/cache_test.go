package graphcache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bayanat/internal/entity/models"
	"bayanat/internal/platform/metrics"
	"bayanat/internal/relation"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/circuit"
)

func TestQueryKeyIgnoresFieldOrder(t *testing.T) {
	a, err := QueryKey(map[string]any{"class": "actor", "id": 4, "depth": 2})
	require.NoError(t, err)
	b, err := QueryKey(json.RawMessage(`{"depth":2,"id":4,"class":"actor"}`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := QueryKey(Query{Class: models.ClassActor, ID: 4, Depth: 3})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestGetOrBuildReadsThroughAndReplaces(t *testing.T) {
	store, err := NewMemoryStore(8)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	m := metrics.NewWith(reg)
	svc := New(store, WithMetrics(m))
	ctx := context.Background()

	builds := 0
	build := func(graph string) BuildFunc {
		return func(context.Context) (json.RawMessage, error) {
			builds++
			return json.RawMessage(graph), nil
		}
	}

	data, hit, err := svc.GetOrBuild(ctx, 1, Query{Class: models.ClassActor, ID: 1}, build(`{"n":1}`))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.JSONEq(t, `{"n":1}`, string(data))

	data, hit, err = svc.GetOrBuild(ctx, 1, Query{Class: models.ClassActor, ID: 1}, build(`{"n":2}`))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.JSONEq(t, `{"n":1}`, string(data))
	assert.Equal(t, 1, builds)

	_, hit, err = svc.GetOrBuild(ctx, 1, Query{Class: models.ClassActor, ID: 2}, build(`{"n":3}`))
	require.NoError(t, err)
	assert.False(t, hit)

	data, hit, err = svc.GetOrBuild(ctx, 1, Query{Class: models.ClassActor, ID: 1}, build(`{"n":4}`))
	require.NoError(t, err)
	assert.False(t, hit, "a new query replaces the previous entry")
	assert.JSONEq(t, `{"n":4}`, string(data))

	_, hit, err = svc.GetOrBuild(ctx, 2, Query{Class: models.ClassActor, ID: 1}, build(`{"n":5}`))
	require.NoError(t, err)
	assert.False(t, hit, "entries are per user")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GraphCache.WithLabelValues("hit")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.GraphCache.WithLabelValues("miss")))

	require.NoError(t, svc.Invalidate(ctx, 2))
	e, err := store.Get(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, e)
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, int) (*Entry, error) { return nil, errors.New("down") }
func (brokenStore) Put(context.Context, int, Entry) error    { return errors.New("down") }
func (brokenStore) Delete(context.Context, int) error        { return errors.New("down") }

func TestCacheFailureStillBuilds(t *testing.T) {
	svc := New(brokenStore{})
	data, hit, err := svc.GetOrBuild(context.Background(), 1, Query{ID: 1},
		func(context.Context) (json.RawMessage, error) { return json.RawMessage(`[]`), nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, `[]`, string(data))

	_, _, err = svc.GetOrBuild(context.Background(), 1, Query{ID: 1},
		func(context.Context) (json.RawMessage, error) { return nil, dErrors.New(dErrors.CodeForbidden, "no") })
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

type fakeRelations struct {
	edges map[relation.Ref][]models.Edge
}

func (f *fakeRelations) ListFor(_ context.Context, self relation.Ref, other models.Class) (relation.Kind, []models.Edge, error) {
	k, err := relation.KindFor(self.Class, other)
	if err != nil {
		return relation.Kind{}, nil, err
	}
	var out []models.Edge
	for _, e := range f.edges[self] {
		if e.Kind == k.Name {
			out = append(out, e)
		}
	}
	return k, out, nil
}

// link records an edge on both endpoints, stored canonically.
func (f *fakeRelations) link(a, b relation.Ref, codes ...int) {
	k, left, right, err := relation.Canonical(a, b)
	if err != nil {
		panic(err)
	}
	e := models.Edge{Kind: k.Name, LeftID: left, RightID: right, RelatedAs: codes}
	f.edges[a] = append(f.edges[a], e)
	f.edges[b] = append(f.edges[b], e)
}

type fakeAccess map[relation.Ref]bool

func (f fakeAccess) Readable(_ context.Context, class models.Class, id int) (bool, error) {
	hidden := f[relation.Ref{Class: class, ID: id}]
	return !hidden, nil
}

func TestBuilderWalksRelations(t *testing.T) {
	a1 := relation.Ref{Class: models.ClassActor, ID: 1}
	a2 := relation.Ref{Class: models.ClassActor, ID: 2}
	b5 := relation.Ref{Class: models.ClassBulletin, ID: 5}
	i9 := relation.Ref{Class: models.ClassIncident, ID: 9}
	rels := &fakeRelations{edges: map[relation.Ref][]models.Edge{}}
	rels.link(a1, a2, 1)
	rels.link(a1, b5, 2, 3)
	rels.link(b5, i9)

	g, err := NewBuilder(rels, fakeAccess{}).Build(context.Background(), Query{Class: models.ClassActor, ID: 1})
	require.NoError(t, err)
	assert.Equal(t, []Node{{Class: models.ClassActor, ID: 1}, {Class: models.ClassBulletin, ID: 5}, {Class: models.ClassActor, ID: 2}}, g.Nodes)
	require.Len(t, g.Links, 2)
	assert.Equal(t, Link{Kind: "atob", From: "actor:1", To: "bulletin:5", RelatedAs: []int{2, 3}}, g.Links[0])
	assert.Equal(t, Link{Kind: "atoa", From: "actor:1", To: "actor:2", RelatedAs: 1}, g.Links[1])

	g, err = NewBuilder(rels, fakeAccess{}).Build(context.Background(), Query{Class: models.ClassActor, ID: 1, Depth: 2})
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 4)
	assert.Len(t, g.Links, 3, "edges reached from both sides appear once")
}

func TestBuilderStopsAtRestrictedNodes(t *testing.T) {
	a1 := relation.Ref{Class: models.ClassActor, ID: 1}
	b5 := relation.Ref{Class: models.ClassBulletin, ID: 5}
	i9 := relation.Ref{Class: models.ClassIncident, ID: 9}
	rels := &fakeRelations{edges: map[relation.Ref][]models.Edge{}}
	rels.link(a1, b5)
	rels.link(b5, i9)

	g, err := NewBuilder(rels, fakeAccess{b5: true}).Build(context.Background(), Query{Class: models.ClassActor, ID: 1, Depth: 3})
	require.NoError(t, err)
	assert.Equal(t, []Node{{Class: models.ClassActor, ID: 1}, {Class: models.ClassBulletin, ID: 5, Restricted: true}}, g.Nodes)

	_, err = NewBuilder(rels, fakeAccess{a1: true}).Build(context.Background(), Query{Class: models.ClassActor, ID: 1})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestQueryValidate(t *testing.T) {
	q := Query{Class: models.ClassIncident, ID: 3, Depth: 10}
	require.NoError(t, q.Validate())
	assert.Equal(t, MaxDepth, q.Depth)

	q = Query{Class: models.ClassLocation, ID: 3}
	assert.True(t, dErrors.HasCode(q.Validate(), dErrors.CodeBadRequest))
	q = Query{Class: models.ClassActor}
	assert.True(t, dErrors.HasCode(q.Validate(), dErrors.CodeValidation))
}

func TestServiceGraphCachesRenderedGraph(t *testing.T) {
	store, err := NewMemoryStore(4)
	require.NoError(t, err)
	a1 := relation.Ref{Class: models.ClassActor, ID: 1}
	rels := &fakeRelations{edges: map[relation.Ref][]models.Edge{}}
	rels.link(a1, relation.Ref{Class: models.ClassActor, ID: 2}, 1)
	b := NewBuilder(rels, fakeAccess{})
	svc := New(store)

	raw, hit, err := svc.Graph(context.Background(), 7, Query{Class: models.ClassActor, ID: 1}, b)
	require.NoError(t, err)
	assert.False(t, hit)
	var g Graph
	require.NoError(t, json.Unmarshal(raw, &g))
	assert.Len(t, g.Nodes, 2)

	_, hit, err = svc.Graph(context.Background(), 7, Query{Class: models.ClassActor, ID: 1, Depth: 1}, b)
	require.NoError(t, err)
	assert.True(t, hit, "depth is normalized before hashing")
}

func TestFallbackStoreSwitchesOnFailures(t *testing.T) {
	mem, err := NewMemoryStore(4)
	require.NoError(t, err)
	breaker := circuit.New("redis", circuit.WithFailureThreshold(2))
	store := NewFallbackStore(brokenStore{}, mem, breaker, nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, 1, Entry{QueryKey: "k", GraphData: json.RawMessage(`{}`)}))
	e, err := store.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "k", e.QueryKey)
	assert.True(t, breaker.IsOpen())

	require.NoError(t, store.Delete(ctx, 1))
	e, err = store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestFallbackStorePrefersHealthyPrimary(t *testing.T) {
	primary, err := NewMemoryStore(4)
	require.NoError(t, err)
	fallback, err := NewMemoryStore(4)
	require.NoError(t, err)
	store := NewFallbackStore(primary, fallback, circuit.New("redis"), quietLogger())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, 2, Entry{QueryKey: "p"}))
	e, err := fallback.Get(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, e)
	e, err = primary.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "p", e.QueryKey)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

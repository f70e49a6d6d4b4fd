package revision

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	"bayanat/internal/relation"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/sentinel"
	"bayanat/pkg/requestcontext"
)

type subjectKey struct {
	class models.Class
	id    int
}

type memoryStore struct {
	subjects map[subjectKey]time.Time
	history  map[subjectKey][]models.HistoryRow
	nextID   int64
}

func newMemoryStore(subjects ...subjectKey) *memoryStore {
	m := &memoryStore{subjects: map[subjectKey]time.Time{}, history: map[subjectKey][]models.HistoryRow{}}
	for _, s := range subjects {
		m.subjects[s] = time.Time{}
	}
	return m
}

func (m *memoryStore) Lock(_ context.Context, class models.Class, id int) error {
	if _, ok := m.subjects[subjectKey{class, id}]; !ok {
		return sentinel.ErrNotFound
	}
	return nil
}

func (m *memoryStore) LastRevisionAt(_ context.Context, class models.Class, id int) (*time.Time, error) {
	rows := m.history[subjectKey{class, id}]
	if len(rows) == 0 {
		return nil, nil
	}
	t := rows[len(rows)-1].UpdatedAt
	return &t, nil
}

func (m *memoryStore) Touch(_ context.Context, class models.Class, id int, at time.Time) error {
	m.subjects[subjectKey{class, id}] = at
	return nil
}

func (m *memoryStore) Append(_ context.Context, class models.Class, row *models.HistoryRow) error {
	m.nextID++
	row.ID = m.nextID
	row.CreatedAt = row.UpdatedAt
	key := subjectKey{class, row.SubjectID}
	m.history[key] = append(m.history[key], *row)
	return nil
}

func (m *memoryStore) List(_ context.Context, class models.Class, id int) ([]models.HistoryRow, error) {
	return m.history[subjectKey{class, id}], nil
}

type publishedEvent struct {
	aggregateType, aggregateID, eventType string
}

type memoryOutbox struct {
	events []publishedEvent
}

func (o *memoryOutbox) Append(_ context.Context, aggregateType, aggregateID, eventType string, _ any) error {
	o.events = append(o.events, publishedEvent{aggregateType, aggregateID, eventType})
	return nil
}

type RecorderSuite struct {
	suite.Suite
	store    *memoryStore
	outbox   *memoryOutbox
	recorder *Recorder
	// sawCaller records whether the source ran with a caller bound.
	sawCaller bool
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) SetupTest() {
	s.store = newMemoryStore(
		subjectKey{models.ClassActor, 1},
		subjectKey{models.ClassActor, 2},
		subjectKey{models.ClassBulletin, 7},
	)
	s.outbox = &memoryOutbox{}
	s.recorder = NewRecorder(s.store, WithPublisher(s.outbox))
	src := func(ctx context.Context, id int) (models.Dict, error) {
		_, s.sawCaller = access.FromContext(ctx)
		return models.Dict{"id": id, "status": "Updated", "comments": "c"}, nil
	}
	s.recorder.Register(models.ClassActor, src)
	s.recorder.Register(models.ClassBulletin, src)
}

func (s *RecorderSuite) ctx() context.Context {
	ctx := requestcontext.WithTime(context.Background(), time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	return access.WithCaller(ctx, &access.Caller{UserID: 9})
}

func (s *RecorderSuite) TestSnapshotAppendsRowAndEvent() {
	row, err := s.recorder.Snapshot(s.ctx(), models.ClassActor, 1, CauseDirect)
	s.Require().NoError(err)

	s.Equal(int64(1), row.ID)
	s.Require().NotNil(row.UserID)
	s.Equal(9, *row.UserID)
	s.False(s.sawCaller, "snapshots serialize in a trusted context")

	var data map[string]any
	s.Require().NoError(json.Unmarshal(row.Data, &data))
	s.Equal("Updated", data["status"])

	s.Require().Len(s.outbox.events, 1)
	s.Equal(publishedEvent{"actor", "1", EventRevisionCreated}, s.outbox.events[0])
	s.Equal(row.UpdatedAt, s.store.subjects[subjectKey{models.ClassActor, 1}])
}

func (s *RecorderSuite) TestStampsAreStrictlyIncreasing() {
	ctx := s.ctx()
	first, err := s.recorder.Snapshot(ctx, models.ClassActor, 1, CauseDirect)
	s.Require().NoError(err)
	second, err := s.recorder.Snapshot(ctx, models.ClassActor, 1, CauseCascade)
	s.Require().NoError(err)

	s.True(second.UpdatedAt.After(first.UpdatedAt))
	s.Equal(time.Microsecond, second.UpdatedAt.Sub(first.UpdatedAt))
}

func (s *RecorderSuite) TestMissingSubject() {
	_, err := s.recorder.Snapshot(s.ctx(), models.ClassActor, 404, CauseDirect)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RecorderSuite) TestUnregisteredClass() {
	_, err := s.recorder.Snapshot(s.ctx(), models.ClassIncident, 1, CauseDirect)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *RecorderSuite) TestCascadeSnapshotsEachCounterpartOnce() {
	origin := relation.Ref{Class: models.ClassActor, ID: 1}
	c := s.recorder.NewCascade(origin)
	peer := relation.Ref{Class: models.ClassActor, ID: 2}
	bulletin := relation.Ref{Class: models.ClassBulletin, ID: 7}

	c.Add(
		relation.Change{Counterpart: peer, Outcome: relation.Created},
		relation.Change{Counterpart: peer, Outcome: relation.Updated},
		relation.Change{Counterpart: bulletin, Outcome: relation.Unchanged},
	)
	c.AddRef(origin)
	c.AddRef(bulletin)
	s.Equal([]relation.Ref{peer, bulletin}, c.Pending())

	s.Require().NoError(c.Flush(s.ctx()))
	s.Len(s.store.history[subjectKey{models.ClassActor, 2}], 1)
	s.Len(s.store.history[subjectKey{models.ClassBulletin, 7}], 1)
	s.Empty(s.store.history[subjectKey{models.ClassActor, 1}])
	s.Empty(c.Pending())
}

func TestNextStamp(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 1500, time.UTC)

	assert.Equal(t, now.Truncate(time.Microsecond), nextStamp(now, nil))

	earlier := now.Add(-time.Hour)
	assert.Equal(t, now.Truncate(time.Microsecond), nextStamp(now, &earlier))

	later := now.Add(time.Second)
	assert.Equal(t, later.Add(time.Microsecond), nextStamp(now, &later))
}

func TestReaderProjectsForCaller(t *testing.T) {
	store := newMemoryStore(subjectKey{models.ClassActor, 1})
	reviewer := 4
	data, err := json.Marshal(models.Dict{
		"status":      "Assigned",
		"comments":    "x",
		"title":       "secret",
		"assigned_to": models.Dict{"id": reviewer, "username": "rev", "name": "Rev"},
	})
	require.NoError(t, err)
	author := &models.UserRef{ID: 3, Username: "alice", Name: "Alice"}
	store.history[subjectKey{models.ClassActor, 1}] = []models.HistoryRow{
		{ID: 1, SubjectID: 1, Data: data, UserID: &author.ID, User: author},
	}
	reader := NewReader(store)

	t.Run("trusted sees everything", func(t *testing.T) {
		rows, err := reader.List(context.Background(), models.ClassActor, 1)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "secret", rows[0]["data"].(models.Dict)["title"])
		assert.Equal(t, "alice", rows[0]["user"].(models.Dict)["username"])
	})

	t.Run("without full history", func(t *testing.T) {
		ctx := access.WithCaller(context.Background(), &access.Caller{UserID: 8})
		rows, err := reader.List(ctx, models.ClassActor, 1)
		require.NoError(t, err)
		assert.Equal(t, models.Dict{"comments": "x", "status": "Assigned"}, rows[0]["data"])
		assert.Equal(t, "user-3", rows[0]["user"].(models.Dict)["username"])
	})

	t.Run("full history without usernames", func(t *testing.T) {
		ctx := access.WithCaller(context.Background(),
			&access.Caller{UserID: 8, Permissions: []string{access.PermViewFullHistory}})
		rows, err := reader.List(ctx, models.ClassActor, 1)
		require.NoError(t, err)
		d := rows[0]["data"].(models.Dict)
		assert.Equal(t, "secret", d["title"])
		assert.Equal(t, "user-4", d["assigned_to"].(map[string]any)["name"])
	})
}

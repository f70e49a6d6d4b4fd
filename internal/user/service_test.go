package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	"bayanat/internal/revision"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/sentinel"
)

type countingStore struct {
	users map[int]*User
	reads int
}

func (s *countingStore) FindByID(_ context.Context, id int) (*User, error) {
	s.reads++
	u, ok := s.users[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return u, nil
}

func (s *countingStore) Insert(_ context.Context, u *User, at time.Time) error {
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return sentinel.ErrConflict
		}
	}
	u.ID = len(s.users) + 1
	u.CreatedAt, u.UpdatedAt = at, at
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *countingStore) Update(_ context.Context, u *User) error {
	existing, ok := s.users[u.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	cp := *u
	cp.Roles = existing.Roles
	s.users[u.ID] = &cp
	return nil
}

func (s *countingStore) SetRoles(_ context.Context, userID int, roleIDs []int) error {
	u := s.users[userID]
	u.Roles = nil
	for _, id := range roleIDs {
		u.Roles = append(u.Roles, Role{ID: id})
	}
	return nil
}

type recordingHistory struct {
	snapshots []int
	source    func(ctx context.Context, id int) (models.Dict, error)
	data      []models.Dict
}

func (h *recordingHistory) Snapshot(ctx context.Context, class models.Class, id int, _ revision.Cause) (*models.HistoryRow, error) {
	if class != models.ClassUser {
		return nil, dErrors.New(dErrors.CodeInternal, "unexpected class")
	}
	h.snapshots = append(h.snapshots, id)
	if h.source != nil {
		d, err := h.source(ctx, id)
		if err != nil {
			return nil, err
		}
		h.data = append(h.data, d)
	}
	return &models.HistoryRow{SubjectID: id}, nil
}

type inlineTx struct{ runs int }

func (t *inlineTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.runs++
	return fn(ctx)
}

func TestCallerFor(t *testing.T) {
	c := CallerFor(&User{
		ID: 4, Username: "rana", Active: true,
		Permissions: []string{"view_usernames"},
		Roles:       []Role{{ID: 2, Name: "Analysts"}, {ID: 1, Name: "admin"}},
	})
	assert.Equal(t, 4, c.UserID)
	assert.Equal(t, []int{2, 1}, c.RoleIDs)
	assert.True(t, c.Admin)
	assert.True(t, c.Has("import"), "admins hold every permission")

	c = CallerFor(&User{ID: 5, Active: true, Permissions: []string{"self_assign"}})
	assert.False(t, c.Admin)
	assert.True(t, c.Has("self_assign"))
	assert.False(t, c.Has("import"))
}

func TestCallerIsCached(t *testing.T) {
	store := &countingStore{users: map[int]*User{1: {ID: 1, Active: true}}}
	svc := NewService(store, WithCache(8, time.Minute))
	ctx := context.Background()

	_, err := svc.Caller(ctx, 1)
	require.NoError(t, err)
	_, err = svc.Caller(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, store.reads)

	svc.Invalidate(1)
	_, err = svc.Caller(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, store.reads)
}

func TestCallerRejectsUnknownAndInactive(t *testing.T) {
	store := &countingStore{users: map[int]*User{2: {ID: 2, Active: false}}}
	svc := NewService(store, WithCache(0, 0))

	_, err := svc.Caller(context.Background(), 1)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = svc.Caller(context.Background(), 2)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestSaveRecordsUserSnapshot(t *testing.T) {
	store := &countingStore{users: map[int]*User{}}
	history := &recordingHistory{}
	tx := &inlineTx{}
	svc := NewService(store, WithTx(tx), WithHistory(history), WithCache(0, 0))
	history.source = svc.UserSnapshot
	ctx := context.Background()

	u, err := svc.Save(ctx, SaveRequest{Username: " layla ", Email: "layla@example.org", Active: true,
		Permissions: []string{"import", "import"}, RoleIDs: []int{3, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, 1, u.ID)
	assert.Equal(t, "layla", u.Username)
	assert.Equal(t, []string{"import"}, []string(u.Permissions))
	assert.Equal(t, []int{1}, history.snapshots)
	require.Len(t, history.data, 1)
	assert.Equal(t, "layla", history.data[0]["username"])
	assert.Equal(t, []int{2, 3}, history.data[0]["roles"])

	_, err = svc.Save(ctx, SaveRequest{ID: 1, Username: "layla", Active: false})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, history.snapshots, "every update is snapshotted")
	assert.Equal(t, 2, tx.runs)
}

func TestSaveRejections(t *testing.T) {
	store := &countingStore{users: map[int]*User{1: {ID: 1, Username: "taken"}}}
	history := &recordingHistory{}
	svc := NewService(store, WithTx(&inlineTx{}), WithHistory(history))

	_, err := svc.Save(context.Background(), SaveRequest{Username: "  "})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = svc.Save(context.Background(), SaveRequest{Username: "taken"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = svc.Save(context.Background(), SaveRequest{ID: 9, Username: "ghost"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	analyst := access.WithCaller(context.Background(), &access.Caller{UserID: 4})
	_, err = svc.Save(analyst, SaveRequest{Username: "new"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	assert.Empty(t, history.snapshots)
}

func TestSaveInvalidatesCachedCaller(t *testing.T) {
	store := &countingStore{users: map[int]*User{1: {ID: 1, Username: "amal", Active: true}}}
	svc := NewService(store, WithCache(8, time.Minute))
	ctx := context.Background()

	c, err := svc.Caller(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, c.RoleIDs)

	_, err = svc.Save(ctx, SaveRequest{ID: 1, Username: "amal", Active: true, RoleIDs: []int{5}})
	require.NoError(t, err)
	c, err = svc.Caller(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, c.RoleIDs)
}

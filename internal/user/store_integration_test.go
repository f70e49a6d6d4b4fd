//go:build integration

package user_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"

	"bayanat/internal/entity/models"
	"bayanat/internal/platform/postgres"
	"bayanat/internal/revision"
	"bayanat/internal/user"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/testutil/containers"
)

type UserStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	svc      *user.Service
}

func TestUserStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(UserStoreSuite))
}

func (s *UserStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
}

func (s *UserStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "user_history", "user_roles", "roles", "users"))
	recorder := revision.NewRecorder(revision.NewPostgresStore(s.postgres.DB))
	s.svc = user.NewService(user.NewPostgresStore(s.postgres.DB), user.WithCache(0, 0),
		user.WithTx(postgres.NewTxRunner(s.postgres.DB)), user.WithHistory(recorder))
	recorder.Register(models.ClassUser, s.svc.UserSnapshot)

	_, err := s.postgres.DB.ExecContext(ctx, `
		INSERT INTO users (id, username, active, permissions) VALUES
			(1, 'amal', TRUE, '{view_full_history}'), (2, 'omar', FALSE, '{}');
		SELECT setval('users_id_seq', 2);
		INSERT INTO roles (id, name) VALUES (1, 'Admin'), (2, 'Field team');
		INSERT INTO user_roles (user_id, role_id) VALUES (1, 2), (1, 1);`)
	s.Require().NoError(err)
}

func (s *UserStoreSuite) TestCallerCarriesRolesAndPermissions() {
	c, err := s.svc.Caller(context.Background(), 1)
	s.Require().NoError(err)
	s.Equal("amal", c.Username)
	s.Equal([]int{1, 2}, c.RoleIDs)
	s.True(c.Admin)
	s.Equal([]string{"view_full_history"}, c.Permissions)
}

func (s *UserStoreSuite) TestInactiveAndMissingUsers() {
	_, err := s.svc.Caller(context.Background(), 2)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	_, err = s.svc.Caller(context.Background(), 99)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *UserStoreSuite) TestSaveAppendsUserHistory() {
	ctx := context.Background()
	u, err := s.svc.Save(ctx, user.SaveRequest{Username: "huda", Name: "Huda", Active: true, RoleIDs: []int{2}})
	s.Require().NoError(err)
	s.Equal(3, u.ID)

	_, err = s.svc.Save(ctx, user.SaveRequest{ID: u.ID, Username: "huda", Name: "Huda K.", Active: true, RoleIDs: []int{1, 2}})
	s.Require().NoError(err)

	var rows []struct {
		Data    models.JSONB `db:"data"`
		Subject int          `db:"target_user_id"`
	}
	s.Require().NoError(s.postgres.DB.SelectContext(ctx, &rows,
		`SELECT target_user_id, data FROM user_history WHERE target_user_id = $1 ORDER BY updated_at`, u.ID))
	s.Require().Len(rows, 2)
	s.JSONEq(`"Huda"`, string(mustField(s, rows[0].Data, "name")))
	s.JSONEq(`"Huda K."`, string(mustField(s, rows[1].Data, "name")))
	s.JSONEq(`[1,2]`, string(mustField(s, rows[1].Data, "roles")))

	c, err := s.svc.Caller(ctx, u.ID)
	s.Require().NoError(err)
	s.True(c.Admin)
}

func (s *UserStoreSuite) TestSaveRollsBackOnUnknownRole() {
	ctx := context.Background()
	_, err := s.svc.Save(ctx, user.SaveRequest{Username: "sami", Active: true, RoleIDs: []int{77}})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	var n int
	s.Require().NoError(s.postgres.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM users WHERE username = 'sami'`))
	s.Zero(n)
	s.Require().NoError(s.postgres.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM user_history`))
	s.Zero(n)
}

func mustField(s *UserStoreSuite, data models.JSONB, key string) json.RawMessage {
	var m map[string]json.RawMessage
	s.Require().NoError(json.Unmarshal(data, &m))
	return m[key]
}

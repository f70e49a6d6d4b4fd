package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bayanat/internal/entity/models"
)

func intPtr(v int) *int { return &v }

func TestPolicyDecide(t *testing.T) {
	scoped := models.Scope{RoleIDs: []int{1}, AssignedToID: intPtr(7)}
	unscoped := models.Scope{}

	cases := []struct {
		name   string
		mode   Mode
		caller *Caller
		scope  models.Scope
		want   Grant
	}{
		{"trusted", Restrictive, nil, scoped, GrantTrusted},
		{"admin restrictive", Restrictive, &Caller{UserID: 1, Admin: true}, scoped, GrantAdmin},
		{"shared role restrictive", Restrictive, &Caller{UserID: 2, RoleIDs: []int{1}}, scoped, GrantRole},
		{"other role restrictive", Restrictive, &Caller{UserID: 3, RoleIDs: []int{2}}, scoped, Denied},
		{"unscoped restrictive", Restrictive, &Caller{UserID: 3}, unscoped, Denied},
		{"assignee restrictive", Restrictive, &Caller{UserID: 7}, scoped, Denied},
		{"unscoped permissive", Permissive, &Caller{UserID: 3}, unscoped, GrantUnscoped},
		{"assignee permissive", Permissive, &Caller{UserID: 7}, scoped, GrantAssignment},
		{"peer reviewer permissive", Permissive, &Caller{UserID: 9}, models.Scope{RoleIDs: []int{1}, SecondPeerReviewerID: intPtr(9)}, GrantAssignment},
		{"other role permissive", Permissive, &Caller{UserID: 3, RoleIDs: []int{2}}, scoped, Denied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NewPolicy(tc.mode).Decide(tc.caller, tc.scope))
		})
	}
}

func TestPolicyCanReadUsesContextCaller(t *testing.T) {
	p := NewPolicy(Restrictive)
	scope := models.Scope{RoleIDs: []int{1}}

	assert.True(t, p.CanRead(context.Background(), scope), "no caller is trusted")
	assert.False(t, p.CanRead(WithCaller(context.Background(), &Caller{UserID: 5, RoleIDs: []int{2}}), scope))
	assert.True(t, p.CanWrite(WithCaller(context.Background(), &Caller{UserID: 5, RoleIDs: []int{1}}), scope))
}

func TestPolicyCanAssign(t *testing.T) {
	scope := models.Scope{RoleIDs: []int{1}}
	self := &Caller{UserID: 5, RoleIDs: []int{1}}
	ctx := WithCaller(context.Background(), self)

	require.Error(t, NewPolicy(Restrictive).CanAssign(ctx, scope, []int{5}))
	require.NoError(t, NewPolicy(Restrictive).CanAssign(ctx, scope, []int{6}))
	require.NoError(t, NewPolicy(Permissive).CanAssign(ctx, scope, []int{5}))

	self.Permissions = []string{PermSelfAssign}
	require.NoError(t, NewPolicy(Restrictive).CanAssign(ctx, scope, []int{5}))

	outsider := WithCaller(context.Background(), &Caller{UserID: 8, RoleIDs: []int{3}})
	require.Error(t, NewPolicy(Restrictive).CanAssign(outsider, scope, []int{6}))
}

func TestPolicyCanSelfAssign(t *testing.T) {
	c := &Caller{UserID: 5}
	ctx := WithCaller(context.Background(), c)
	assert.True(t, NewPolicy(Permissive).CanSelfAssign(ctx))
	assert.False(t, NewPolicy(Restrictive).CanSelfAssign(ctx))
	assert.True(t, NewPolicy(Restrictive).CanSelfAssign(context.Background()))

	c.Admin = true
	assert.True(t, NewPolicy(Restrictive).CanSelfAssign(ctx))
}

func TestPolicyCanScopeTo(t *testing.T) {
	p := NewPolicy(Restrictive)
	ctx := WithCaller(context.Background(), &Caller{UserID: 5, RoleIDs: []int{1, 2}})
	assert.True(t, p.CanScopeTo(ctx, []int{1}))
	assert.False(t, p.CanScopeTo(ctx, []int{1, 3}))
	assert.True(t, p.CanScopeTo(WithCaller(context.Background(), &Caller{Admin: true}), []int{3}))
}

func TestProjectHistory(t *testing.T) {
	data := models.Dict{
		"comments":    "c",
		"status":      "Finalized",
		"title":       "secret",
		"assigned_to": map[string]any{"id": 4, "name": "Dana", "username": "dana"},
	}

	t.Run("trusted sees everything", func(t *testing.T) {
		assert.Equal(t, data, ProjectHistory(context.Background(), data))
	})

	t.Run("without full history", func(t *testing.T) {
		ctx := WithCaller(context.Background(), &Caller{UserID: 1})
		assert.Equal(t, models.Dict{"comments": "c", "status": "Finalized"}, ProjectHistory(ctx, data))
	})

	t.Run("without usernames", func(t *testing.T) {
		ctx := WithCaller(context.Background(), &Caller{UserID: 1, Permissions: []string{PermViewFullHistory}})
		got := ProjectHistory(ctx, data)
		assigned := got["assigned_to"].(map[string]any)
		assert.Equal(t, "user-4", assigned["name"])
		assert.Equal(t, "user-4", assigned["username"])
		assert.Equal(t, "secret", got["title"])
		assert.Equal(t, "Dana", data["assigned_to"].(map[string]any)["name"], "input is not mutated")
	})

	t.Run("admin", func(t *testing.T) {
		ctx := WithCaller(context.Background(), &Caller{UserID: 1, Admin: true})
		assert.Equal(t, data, ProjectHistory(ctx, data))
	})
}

func TestMaskUser(t *testing.T) {
	u := &models.UserRef{ID: 3, Username: "sam", Name: "Sam"}
	ctx := WithCaller(context.Background(), &Caller{UserID: 1})
	assert.Equal(t, "user-3", MaskUser(ctx, u).Username)
	assert.Equal(t, "sam", MaskUser(context.Background(), u).Username)
}

// Package access decides what a caller may see and change.
package access

import (
	"context"
	"slices"
)

// Permissions a caller may hold beyond its roles.
const (
	PermViewFullHistory = "view_full_history"
	PermViewUsernames   = "view_usernames"
	PermSelfAssign      = "self_assign"
	PermManageSchema    = "manage_schema"
	PermImport          = "import"
	PermManageTaxonomy  = "manage_taxonomy"
	PermManageUsers     = "manage_users"
)

// Caller is the identity acting on the current request.
type Caller struct {
	UserID      int
	Username    string
	RoleIDs     []int
	Admin       bool
	Permissions []string
}

// Has reports whether the caller holds permission p. Admins hold every permission.
func (c *Caller) Has(p string) bool {
	if c == nil {
		return false
	}
	return c.Admin || slices.Contains(c.Permissions, p)
}

// HoldsAny reports whether the caller holds at least one of roles.
func (c *Caller) HoldsAny(roles []int) bool {
	if c == nil {
		return false
	}
	for _, r := range roles {
		if slices.Contains(c.RoleIDs, r) {
			return true
		}
	}
	return false
}

// UserIDPtr returns the caller's user id for attribution columns.
func (c *Caller) UserIDPtr() *int {
	if c == nil || c.UserID == 0 {
		return nil
	}
	id := c.UserID
	return &id
}

type ctxKey struct{}

type actorCtxKey struct{}

var (
	callerKey = ctxKey{}
	actorKey  = actorCtxKey{}
)

// WithCaller binds a caller to the context.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, callerKey, c)
}

// Trusted returns a context that carries no caller, so checks downstream treat it as a
// background process. The acting user id is still available through ActingUserID.
func Trusted(ctx context.Context) context.Context {
	c, ok := FromContext(ctx)
	if !ok {
		return ctx
	}
	ctx = context.WithValue(ctx, actorKey, c.UserIDPtr())
	return context.WithValue(ctx, callerKey, (*Caller)(nil))
}

// FromContext returns the caller bound to ctx. A context without a caller belongs to a
// trusted background or CLI process.
func FromContext(ctx context.Context) (*Caller, bool) {
	c, ok := ctx.Value(callerKey).(*Caller)
	return c, ok && c != nil
}

// ActingUserID returns the bound caller's user id, or nil for trusted contexts.
func ActingUserID(ctx context.Context) *int {
	if c, ok := FromContext(ctx); ok {
		return c.UserIDPtr()
	}
	if id, ok := ctx.Value(actorKey).(*int); ok {
		return id
	}
	return nil
}

// Allowed reports whether the context may exercise permission p. Trusted contexts may.
func Allowed(ctx context.Context, p string) bool {
	c, ok := FromContext(ctx)
	return !ok || c.Has(p)
}

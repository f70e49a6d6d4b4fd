package access

import (
	"context"
	"fmt"

	"bayanat/internal/entity/models"
)

// Mode is the process-wide access posture.
type Mode int

const (
	// Permissive lets anyone see entities without roles.
	Permissive Mode = iota
	// Restrictive denies non-admins any entity that shares none of their roles.
	Restrictive
)

func (m Mode) String() string {
	if m == Restrictive {
		return "restrictive"
	}
	return "permissive"
}

// ModeFromConfig maps ACCESS_CONTROL_RESTRICTIVE onto a mode.
func ModeFromConfig(restrictive bool) Mode {
	if restrictive {
		return Restrictive
	}
	return Permissive
}

// Grant is the reason an access decision allowed a caller in.
type Grant int

const (
	Denied Grant = iota
	GrantTrusted
	GrantAdmin
	GrantUnscoped
	GrantRole
	GrantAssignment
)

func (g Grant) Allowed() bool { return g != Denied }

func (g Grant) String() string {
	switch g {
	case GrantTrusted:
		return "trusted"
	case GrantAdmin:
		return "admin"
	case GrantUnscoped:
		return "unscoped"
	case GrantRole:
		return "role"
	case GrantAssignment:
		return "assignment"
	}
	return "denied"
}

// Policy evaluates the access predicate over an entity's scope.
//
// Permissive: an entity is visible when it has no roles, the caller holds one of its
// roles, the caller is its assignee or a peer reviewer, or the caller is an admin.
// Restrictive: only a shared role or admin grants access; assignment alone grants
// neither reads nor writes. Reads and writes use the same predicate in both modes.
type Policy struct {
	Mode Mode
}

func NewPolicy(mode Mode) Policy {
	return Policy{Mode: mode}
}

// Decide returns why c may access an entity with scope s, or Denied. A nil caller is trusted.
func (p Policy) Decide(c *Caller, s models.Scope) Grant {
	if c == nil {
		return GrantTrusted
	}
	if c.Admin {
		return GrantAdmin
	}
	if c.HoldsAny(s.RoleIDs) {
		return GrantRole
	}
	if p.Mode == Restrictive {
		return Denied
	}
	if len(s.RoleIDs) == 0 {
		return GrantUnscoped
	}
	if isAssigned(c.UserID, s) {
		return GrantAssignment
	}
	return Denied
}

func isAssigned(userID int, s models.Scope) bool {
	for _, id := range []*int{s.AssignedToID, s.FirstPeerReviewerID, s.SecondPeerReviewerID} {
		if id != nil && *id == userID {
			return true
		}
	}
	return false
}

// CanRead reports whether the caller bound to ctx may see an entity with scope s.
func (p Policy) CanRead(ctx context.Context, s models.Scope) bool {
	c, _ := FromContext(ctx)
	return p.Decide(c, s).Allowed()
}

// CanWrite reports whether the caller bound to ctx may mutate an entity with scope s.
func (p Policy) CanWrite(ctx context.Context, s models.Scope) bool {
	return p.CanRead(ctx, s)
}

// CanAssign checks an assignment request. In restrictive mode, assigning oneself
// additionally needs the self_assign permission.
func (p Policy) CanAssign(ctx context.Context, s models.Scope, targets []int) error {
	c, _ := FromContext(ctx)
	if !p.Decide(c, s).Allowed() {
		return fmt.Errorf("caller may not modify this entity")
	}
	if p.CanSelfAssign(ctx) {
		return nil
	}
	for _, t := range targets {
		if t == c.UserID {
			return fmt.Errorf("self-assignment requires the %s permission", PermSelfAssign)
		}
	}
	return nil
}

// CanSelfAssign reports whether the caller may name themselves as assignee or peer
// reviewer. Only restrictive mode requires the self_assign permission.
func (p Policy) CanSelfAssign(ctx context.Context) bool {
	c, _ := FromContext(ctx)
	return c == nil || p.Mode != Restrictive || c.Has(PermSelfAssign)
}

// CanScopeTo reports whether the caller may create or rescope an entity onto roles.
// Non-admins may only use roles they hold.
func (p Policy) CanScopeTo(ctx context.Context, roles []int) bool {
	c, _ := FromContext(ctx)
	if c == nil || c.Admin {
		return true
	}
	for _, r := range roles {
		if !c.HoldsAny([]int{r}) {
			return false
		}
	}
	return true
}

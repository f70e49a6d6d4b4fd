// Package user resolves authenticated users into access callers.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	"bayanat/internal/revision"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/sentinel"
	"bayanat/pkg/requestcontext"
)

// AdminRole is the role name that grants every permission.
const AdminRole = "Admin"

// Store reads and writes users.
type Store interface {
	FindByID(ctx context.Context, id int) (*User, error)
	Insert(ctx context.Context, u *User, at time.Time) error
	Update(ctx context.Context, u *User) error
	SetRoles(ctx context.Context, userID int, roleIDs []int) error
}

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Snapshotter appends history rows.
type Snapshotter interface {
	Snapshot(ctx context.Context, class models.Class, id int, cause revision.Cause) (*models.HistoryRow, error)
}

// Service loads callers, caching them briefly so each request does not hit the users
// table, and saves accounts with a user_history snapshot per change.
type Service struct {
	store   Store
	tx      TxRunner
	history Snapshotter
	cache   *expirable.LRU[int, *access.Caller]
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithTx runs saves inside transactions from tx.
func WithTx(tx TxRunner) Option {
	return func(s *Service) { s.tx = tx }
}

// WithHistory records user snapshots on every save.
func WithHistory(h Snapshotter) Option {
	return func(s *Service) { s.history = h }
}

// WithCache keeps up to size callers for ttl. A zero size disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		if size <= 0 {
			s.cache = nil
			return
		}
		s.cache = expirable.NewLRU[int, *access.Caller](size, nil, ttl)
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cache:  expirable.NewLRU[int, *access.Caller](1024, nil, 30*time.Second),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Caller returns the access caller for an active user.
func (s *Service) Caller(ctx context.Context, userID int) (*access.Caller, error) {
	if s.cache != nil {
		if c, ok := s.cache.Get(userID); ok {
			return c, nil
		}
	}
	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "user %d not found", userID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if !u.Active {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user is inactive")
	}

	c := CallerFor(u)
	if s.cache != nil {
		s.cache.Add(userID, c)
	}
	return c, nil
}

// Invalidate drops a cached caller after its roles or permissions change.
func (s *Service) Invalidate(userID int) {
	if s.cache != nil {
		s.cache.Remove(userID)
	}
}

// SaveRequest creates (ID == 0) or updates an account and replaces its roles.
type SaveRequest struct {
	ID          int      `json:"id"`
	Username    string   `json:"username" validate:"required,max=255"`
	Name        string   `json:"name" validate:"max=255"`
	Email       string   `json:"email" validate:"omitempty,email"`
	Active      bool     `json:"active"`
	Permissions []string `json:"permissions"`
	RoleIDs     []int    `json:"roles"`
}

// Save writes the account and its roles and appends a user_history snapshot, all in
// one transaction. Only callers holding manage_users may save accounts.
func (s *Service) Save(ctx context.Context, req SaveRequest) (*User, error) {
	if !access.Allowed(ctx, access.PermManageUsers) {
		return nil, dErrors.New(dErrors.CodeForbidden, "caller may not manage users")
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := models.Validate(req); err != nil {
		return nil, err
	}
	roles := slices.Clone(req.RoleIDs)
	slices.Sort(roles)
	roles = slices.Compact(roles)

	u := &User{
		ID:          req.ID,
		Username:    req.Username,
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.TrimSpace(req.Email),
		Active:      req.Active,
		Permissions: slices.Compact(slices.Sorted(slices.Values(req.Permissions))),
	}
	if u.Permissions == nil {
		u.Permissions = []string{}
	}

	err := s.inTx(ctx, func(ctx context.Context) error {
		var err error
		if u.ID == 0 {
			err = s.store.Insert(ctx, u, requestcontext.Now(ctx))
		} else {
			err = s.store.Update(ctx, u)
		}
		if err != nil {
			return translate(err, "user")
		}
		if err := s.store.SetRoles(ctx, u.ID, roles); err != nil {
			return translate(err, "role")
		}
		if s.history != nil {
			if _, err := s.history.Snapshot(ctx, models.ClassUser, u.ID, revision.CauseDirect); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Invalidate(u.ID)

	saved, err := s.store.FindByID(ctx, u.ID)
	if err != nil {
		return nil, translate(err, "user")
	}
	s.logger.InfoContext(ctx, "user saved",
		"id", saved.ID,
		"roles", len(saved.Roles),
		"user_id", access.ActingUserID(ctx),
	)
	return saved, nil
}

// UserSnapshot serializes a user for its history.
func (s *Service) UserSnapshot(ctx context.Context, id int) (models.Dict, error) {
	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err, "user")
	}
	return u.Model().Dict(), nil
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.RunInTx(ctx, fn)
}

func translate(err error, what string) error {
	var dErr *dErrors.Error
	switch {
	case errors.As(err, &dErr):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("%s not found", what))
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("%s already exists", what))
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid %s", what))
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to save %s", what))
}

// Model returns the shared record view of u.
func (u *User) Model() *models.User {
	m := &models.User{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		Email:     u.Email,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		RoleIDs:   make([]int, 0, len(u.Roles)),
	}
	for _, r := range u.Roles {
		m.RoleIDs = append(m.RoleIDs, r.ID)
	}
	return m
}

// CallerFor builds the caller view of u.
func CallerFor(u *User) *access.Caller {
	c := &access.Caller{
		UserID:      u.ID,
		Username:    u.Username,
		RoleIDs:     make([]int, 0, len(u.Roles)),
		Permissions: append([]string(nil), u.Permissions...),
	}
	for _, r := range u.Roles {
		c.RoleIDs = append(c.RoleIDs, r.ID)
		if strings.EqualFold(r.Name, AdminRole) {
			c.Admin = true
		}
	}
	return c
}

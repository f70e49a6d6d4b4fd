package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bayanat/internal/platform/postgres"
	"bayanat/pkg/platform/sentinel"
	txcontext "bayanat/pkg/platform/tx"
)

// User is an account row with its roles.
type User struct {
	ID          int            `db:"id"`
	Username    string         `db:"username"`
	Name        string         `db:"name"`
	Email       string         `db:"email"`
	Active      bool           `db:"active"`
	Permissions pq.StringArray `db:"permissions"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
	Roles       []Role         `db:"-"`
}

type Role struct {
	ID   int    `db:"id"`
	Name string `db:"name"`
}

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// FindByID returns the user with its roles, or sentinel.ErrNotFound.
func (s *PostgresStore) FindByID(ctx context.Context, id int) (*User, error) {
	q := txcontext.Pick(ctx, s.db)
	var u User
	err := sqlx.GetContext(ctx, q, &u, `SELECT id, username, COALESCE(name, '') AS name,
		COALESCE(email, '') AS email, active, permissions, created_at, updated_at
		FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", id, err)
	}
	if err := sqlx.SelectContext(ctx, q, &u.Roles, `SELECT r.id, r.name FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id WHERE ur.user_id = $1 ORDER BY r.id`, id); err != nil {
		return nil, fmt.Errorf("list roles of user %d: %w", id, err)
	}
	return &u, nil
}

// Insert adds u and fills in its id and timestamps.
func (s *PostgresStore) Insert(ctx context.Context, u *User, at time.Time) error {
	err := txcontext.Pick(ctx, s.db).QueryRowxContext(ctx, `
		INSERT INTO users (username, name, email, active, permissions, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $6)
		RETURNING id, created_at, updated_at`,
		u.Username, u.Name, u.Email, u.Active, u.Permissions, at,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", postgres.Classify(err))
	}
	return nil
}

// Update rewrites u's account fields, or returns sentinel.ErrNotFound.
func (s *PostgresStore) Update(ctx context.Context, u *User) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		UPDATE users SET username = $2, name = NULLIF($3, ''), email = NULLIF($4, ''),
			active = $5, permissions = $6
		WHERE id = $1`,
		u.ID, u.Username, u.Name, u.Email, u.Active, u.Permissions)
	if err != nil {
		return fmt.Errorf("update user %d: %w", u.ID, postgres.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update user %d: %w", u.ID, sentinel.ErrNotFound)
	}
	return nil
}

// SetRoles replaces the user's role set. Unknown role ids fail with sentinel.ErrNotFound.
func (s *PostgresStore) SetRoles(ctx context.Context, userID int, roleIDs []int) error {
	q := txcontext.Pick(ctx, s.db)
	if _, err := q.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND NOT (role_id = ANY($2))`,
		userID, pq.Array(roleIDs)); err != nil {
		return fmt.Errorf("prune roles of user %d: %w", userID, postgres.Classify(err))
	}
	if len(roleIDs) == 0 {
		return nil
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, unnest($2::integer[])
		ON CONFLICT DO NOTHING`, userID, pq.Array(roleIDs)); err != nil {
		return fmt.Errorf("set roles of user %d: %w", userID, postgres.Classify(err))
	}
	return nil
}

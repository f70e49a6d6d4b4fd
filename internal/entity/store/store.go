// Package store persists primary entities, their owned children and id collections.
package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"bayanat/internal/entity/models"
	"bayanat/internal/platform/postgres"
	"bayanat/pkg/platform/sentinel"
	txcontext "bayanat/pkg/platform/tx"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore reads and writes the entity tables. Every method joins the
// transaction carried by the context, if any.
type PostgresStore struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) q(ctx context.Context) txcontext.Querier {
	return txcontext.Pick(ctx, s.db)
}

// LoadOptions controls how much of an entity is read.
type LoadOptions struct {
	// ForUpdate locks the entity row for the rest of the transaction.
	ForUpdate bool
	// Scalars skips owned children and collections.
	Scalars bool
	// Dynamic lists the dynamic columns to read.
	Dynamic []string
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const recordColumns = `id, COALESCE(status, '') AS status, COALESCE(review, '') AS review,
	COALESCE(review_action, '') AS review_action, COALESCE(comments, '') AS comments,
	COALESCE(description, '') AS description, tags, assigned_to_id, first_peer_reviewer_id,
	second_peer_reviewer_id, deleted, created_at, updated_at`

func recordValues(r *models.Record) map[string]any {
	return map[string]any{
		"status":        nullString(r.Status),
		"review":        nullString(r.Review),
		"review_action": nullString(r.ReviewAction),
		"comments":      nullString(r.Comments),
		"description":   nullString(r.Description),
		"tags":          models.NormalizeTags(r.Tags),
		"deleted":       r.Deleted,
	}
}

// insert writes a new row from values and fills in id and timestamps.
func (s *PostgresStore) insert(ctx context.Context, class models.Class, r *models.Record, values map[string]any) error {
	values["created_at"] = r.CreatedAt
	values["updated_at"] = r.UpdatedAt
	query, args, err := psql.Insert(class.Table()).SetMap(values).Suffix("RETURNING id").ToSql()
	if err != nil {
		return fmt.Errorf("build %s insert: %w", class, err)
	}
	if err := sqlx.GetContext(ctx, s.q(ctx), &r.ID, query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", class, postgres.Classify(err))
	}
	return nil
}

// update rewrites an existing row's scalar columns.
func (s *PostgresStore) update(ctx context.Context, class models.Class, r *models.Record, values map[string]any) error {
	values["updated_at"] = r.UpdatedAt
	query, args, err := psql.Update(class.Table()).SetMap(values).Where(sq.Eq{"id": r.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("build %s update: %w", class, err)
	}
	res, err := s.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", class, r.ID, postgres.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s %d: %w", class, r.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) get(ctx context.Context, class models.Class, dst any, columns string, id int, forUpdate bool) error {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, columns, class.Table())
	if forUpdate {
		query += " FOR UPDATE"
	}
	if err := sqlx.GetContext(ctx, s.q(ctx), dst, query, id); err != nil {
		return fmt.Errorf("get %s %d: %w", class, id, postgres.Classify(err))
	}
	return nil
}

// loadRecord fills the record's roles, assignment users and dynamic values.
func (s *PostgresStore) loadRecord(ctx context.Context, class models.Class, r *models.Record, dynamic []string) error {
	roles, err := s.roles(ctx, class, r.ID)
	if err != nil {
		return err
	}
	r.Roles = roles
	r.RoleIDs = make([]int, len(roles))
	for i, role := range roles {
		r.RoleIDs[i] = role.ID
	}

	users, err := s.users(ctx, r.AssignedToID, r.FirstPeerReviewerID, r.SecondPeerReviewerID)
	if err != nil {
		return err
	}
	r.AssignedTo = pick(users, r.AssignedToID)
	r.FirstPeerReviewer = pick(users, r.FirstPeerReviewerID)
	r.SecondPeerReviewer = pick(users, r.SecondPeerReviewerID)

	if len(dynamic) > 0 {
		values, err := s.ReadDynamic(ctx, class, r.ID, dynamic)
		if err != nil {
			return err
		}
		r.Dynamic = values
	}
	return nil
}

func pick(users map[int]*models.UserRef, id *int) *models.UserRef {
	if id == nil {
		return nil
	}
	return users[*id]
}

func (s *PostgresStore) roles(ctx context.Context, class models.Class, id int) ([]models.Role, error) {
	query := fmt.Sprintf(`
		SELECT r.id, r.name, COALESCE(r.color, '') AS color, COALESCE(r.description, '') AS description
		FROM roles r JOIN %s j ON j.role_id = r.id
		WHERE j.%s = $1
		ORDER BY r.id`, class.RolesTable(), class.HistoryColumn())
	var roles []models.Role
	if err := sqlx.SelectContext(ctx, s.q(ctx), &roles, query, id); err != nil {
		return nil, fmt.Errorf("load %s roles: %w", class, postgres.Classify(err))
	}
	return roles, nil
}

func (s *PostgresStore) users(ctx context.Context, ids ...*int) (map[int]*models.UserRef, error) {
	var want []int
	for _, id := range ids {
		if id != nil {
			want = append(want, *id)
		}
	}
	out := make(map[int]*models.UserRef, len(want))
	if len(want) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT id, username, COALESCE(name, '') AS name FROM users WHERE id IN (?)`, want)
	if err != nil {
		return nil, fmt.Errorf("build user lookup: %w", err)
	}
	var refs []models.UserRef
	if err := sqlx.SelectContext(ctx, s.q(ctx), &refs, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return nil, fmt.Errorf("load users: %w", postgres.Classify(err))
	}
	for i := range refs {
		out[refs[i].ID] = &refs[i]
	}
	return out, nil
}

// Scope reads the fields the access gate needs without loading the entity.
func (s *PostgresStore) Scope(ctx context.Context, class models.Class, id int) (models.Scope, error) {
	scopes, err := s.Scopes(ctx, class, []int{id})
	if err != nil {
		return models.Scope{}, err
	}
	scope, ok := scopes[id]
	if !ok {
		return models.Scope{}, fmt.Errorf("scope %s %d: %w", class, id, sentinel.ErrNotFound)
	}
	return scope, nil
}

// Exists reports whether an entity row exists, deleted or not.
func (s *PostgresStore) Exists(ctx context.Context, class models.Class, id int) (bool, error) {
	var found bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, class.Table())
	if err := sqlx.GetContext(ctx, s.q(ctx), &found, query, id); err != nil {
		return false, fmt.Errorf("check %s %d: %w", class, id, postgres.Classify(err))
	}
	return found, nil
}

// SoftDelete marks the entity deleted.
func (s *PostgresStore) SoftDelete(ctx context.Context, class models.Class, id int) error {
	query := fmt.Sprintf(`UPDATE %s SET deleted = TRUE WHERE id = $1`, class.Table())
	res, err := s.q(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", class, id, postgres.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s %d: %w", class, id, sentinel.ErrNotFound)
	}
	return nil
}

// UpdateReview writes the review fields and status in one statement.
func (s *PostgresStore) UpdateReview(ctx context.Context, class models.Class, id int, req models.ReviewRequest) error {
	query := fmt.Sprintf(`
		UPDATE %s SET review = NULLIF($2, ''), review_action = NULLIF($3, ''), status = NULLIF($4, '')
		WHERE id = $1`, class.Table())
	res, err := s.q(ctx).ExecContext(ctx, query, id, req.Review, req.ReviewAction, req.Status)
	if err != nil {
		return fmt.Errorf("review %s %d: %w", class, id, postgres.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("review %s %d: %w", class, id, sentinel.ErrNotFound)
	}
	return nil
}

// UpdateAssignment writes the assignee and peer reviewers.
func (s *PostgresStore) UpdateAssignment(ctx context.Context, class models.Class, r *models.Record) error {
	query := fmt.Sprintf(`
		UPDATE %s SET assigned_to_id = $2, first_peer_reviewer_id = $3, second_peer_reviewer_id = $4
		WHERE id = $1`, class.Table())
	res, err := s.q(ctx).ExecContext(ctx, query, r.ID, r.AssignedToID, r.FirstPeerReviewerID, r.SecondPeerReviewerID)
	if err != nil {
		return fmt.Errorf("assign %s %d: %w", class, r.ID, postgres.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("assign %s %d: %w", class, r.ID, sentinel.ErrNotFound)
	}
	return nil
}

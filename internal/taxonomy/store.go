package taxonomy

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bayanat/internal/entity/models"
	"bayanat/internal/platform/postgres"
	"bayanat/pkg/platform/sentinel"
	txcontext "bayanat/pkg/platform/tx"
)

// Tree names a self-referential taxonomy table.
type Tree string

const (
	TreeLabel    Tree = "label"
	TreeSource   Tree = "source"
	TreeLocation Tree = "location"
)

// Vocabularies lists the flat dictionary tables.
var Vocabularies = []string{
	"id_number_type", "location_type", "country", "ethnography", "dialect",
	"media_category", "potential_violation", "claimed_violation", "eventtype",
}

// Node is the compact view of a tree row.
type Node struct {
	ID       int    `db:"id" json:"id"`
	Title    string `db:"title" json:"title"`
	TitleAr  string `db:"title_ar" json:"title_ar"`
	ParentID *int   `db:"parent_id" json:"parent_id"`
}

// PostgresStore persists labels, sources, locations and dictionaries.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) q(ctx context.Context) txcontext.Querier {
	return txcontext.Pick(ctx, s.db)
}

// Descends reports whether candidate lies in the subtree below id.
func (s *PostgresStore) Descends(ctx context.Context, tree Tree, id, candidate int) (bool, error) {
	query := fmt.Sprintf(`
		WITH RECURSIVE below AS (
			SELECT id FROM %[1]s WHERE parent_id = $1
			UNION
			SELECT c.id FROM %[1]s c JOIN below b ON c.parent_id = b.id
		)
		SELECT EXISTS (SELECT 1 FROM below WHERE id = $2)`, tree)
	var found bool
	if err := sqlx.GetContext(ctx, s.q(ctx), &found, query, id, candidate); err != nil {
		return false, fmt.Errorf("walk %s tree: %w", tree, postgres.Classify(err))
	}
	return found, nil
}

// Children lists the direct children of parent, or the roots when parent is nil.
func (s *PostgresStore) Children(ctx context.Context, tree Tree, parent *int) ([]Node, error) {
	query := fmt.Sprintf(`
		SELECT id, title, COALESCE(title_ar, '') AS title_ar, parent_id
		FROM %s
		WHERE parent_id IS NOT DISTINCT FROM $1 AND NOT deleted`, tree)
	var nodes []Node
	if err := sqlx.SelectContext(ctx, s.q(ctx), &nodes, query, parent); err != nil {
		return nil, fmt.Errorf("list %s children: %w", tree, postgres.Classify(err))
	}
	return nodes, nil
}

const labelColumns = `id, title, COALESCE(title_ar, '') AS title_ar, COALESCE(comments, '') AS comments,
	COALESCE(comments_ar, '') AS comments_ar, "order", verified, for_bulletin, for_actor, for_incident,
	for_offline, parent_id, deleted, created_at, updated_at`

func (s *PostgresStore) GetLabel(ctx context.Context, id int, forUpdate bool) (*models.Label, error) {
	query := `SELECT ` + labelColumns + ` FROM label WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var l models.Label
	if err := sqlx.GetContext(ctx, s.q(ctx), &l, query, id); err != nil {
		return nil, fmt.Errorf("get label %d: %w", id, postgres.Classify(err))
	}
	return &l, nil
}

func (s *PostgresStore) LabelChildren(ctx context.Context, id int) ([]models.Label, error) {
	query := `SELECT ` + labelColumns + ` FROM label WHERE parent_id = $1 ORDER BY id`
	var out []models.Label
	if err := sqlx.SelectContext(ctx, s.q(ctx), &out, query, id); err != nil {
		return nil, fmt.Errorf("list label children: %w", postgres.Classify(err))
	}
	return out, nil
}

func (s *PostgresStore) InsertLabel(ctx context.Context, l *models.Label) error {
	query := `
		INSERT INTO label (title, title_ar, comments, comments_ar, "order", verified, for_bulletin,
			for_actor, for_incident, for_offline, parent_id)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`
	err := s.q(ctx).QueryRowxContext(ctx, query, l.Title, l.TitleAr, l.Comments, l.CommentsAr, l.Order,
		l.Verified, l.ForBulletin, l.ForActor, l.ForIncident, l.ForOffline, l.ParentID).
		Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert label: %w", postgres.Classify(err))
	}
	return nil
}

func (s *PostgresStore) UpdateLabel(ctx context.Context, l *models.Label) error {
	query := `
		UPDATE label SET title = $2, title_ar = NULLIF($3, ''), comments = NULLIF($4, ''),
			comments_ar = NULLIF($5, ''), "order" = $6, verified = $7, for_bulletin = $8, for_actor = $9,
			for_incident = $10, for_offline = $11, parent_id = $12, deleted = $13, updated_at = NOW()
		WHERE id = $1`
	res, err := s.q(ctx).ExecContext(ctx, query, l.ID, l.Title, l.TitleAr, l.Comments, l.CommentsAr,
		l.Order, l.Verified, l.ForBulletin, l.ForActor, l.ForIncident, l.ForOffline, l.ParentID, l.Deleted)
	if err != nil {
		return fmt.Errorf("update label %d: %w", l.ID, postgres.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update label %d: %w", l.ID, sentinel.ErrNotFound)
	}
	return nil
}

const sourceColumns = `id, title, COALESCE(title_ar, '') AS title_ar, COALESCE(etl_id, '') AS etl_id,
	COALESCE(comments, '') AS comments, COALESCE(comments_ar, '') AS comments_ar, parent_id, deleted,
	created_at, updated_at`

func (s *PostgresStore) GetSource(ctx context.Context, id int) (*models.Source, error) {
	var src models.Source
	if err := sqlx.GetContext(ctx, s.q(ctx), &src, `SELECT `+sourceColumns+` FROM source WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("get source %d: %w", id, postgres.Classify(err))
	}
	return &src, nil
}

func (s *PostgresStore) InsertSource(ctx context.Context, src *models.Source) error {
	query := `
		INSERT INTO source (title, title_ar, etl_id, comments, comments_ar, parent_id)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6)
		RETURNING id, created_at, updated_at`
	err := s.q(ctx).QueryRowxContext(ctx, query, src.Title, src.TitleAr, src.EtlID, src.Comments,
		src.CommentsAr, src.ParentID).Scan(&src.ID, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert source: %w", postgres.Classify(err))
	}
	return nil
}

func (s *PostgresStore) UpdateSource(ctx context.Context, src *models.Source) error {
	query := `
		UPDATE source SET title = $2, title_ar = NULLIF($3, ''), etl_id = NULLIF($4, ''),
			comments = NULLIF($5, ''), comments_ar = NULLIF($6, ''), parent_id = $7, deleted = $8,
			updated_at = NOW()
		WHERE id = $1`
	res, err := s.q(ctx).ExecContext(ctx, query, src.ID, src.Title, src.TitleAr, src.EtlID, src.Comments,
		src.CommentsAr, src.ParentID, src.Deleted)
	if err != nil {
		return fmt.Errorf("update source %d: %w", src.ID, postgres.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update source %d: %w", src.ID, sentinel.ErrNotFound)
	}
	return nil
}

const locationColumns = `id, title, COALESCE(title_ar, '') AS title_ar, COALESCE(description, '') AS description,
	location_type_id, admin_level_id, ST_Y(latlng) AS lat, ST_X(latlng) AS lng,
	COALESCE(postal_code, '') AS postal_code, country_id, parent_id, tags, COALESCE(id_tree, '') AS id_tree,
	COALESCE(full_location, '') AS full_location, deleted, created_at, updated_at`

func (s *PostgresStore) GetLocation(ctx context.Context, id int) (*models.Location, error) {
	var l models.Location
	if err := sqlx.GetContext(ctx, s.q(ctx), &l, `SELECT `+locationColumns+` FROM location WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("get location %d: %w", id, postgres.Classify(err))
	}
	return &l, nil
}

func (s *PostgresStore) InsertLocation(ctx context.Context, l *models.Location) error {
	query := `
		INSERT INTO location (title, title_ar, description, location_type_id, admin_level_id, latlng,
			postal_code, country_id, parent_id, tags)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5,
			CASE WHEN $6::float8 IS NULL OR $7::float8 IS NULL THEN NULL
				ELSE ST_SetSRID(ST_MakePoint($7::float8, $6::float8), 4326) END,
			NULLIF($8, ''), $9, $10, $11)
		RETURNING id, created_at, updated_at`
	err := s.q(ctx).QueryRowxContext(ctx, query, l.Title, l.TitleAr, l.Description, l.LocationTypeID,
		l.AdminLevelID, l.Lat, l.Lng, l.PostalCode, l.CountryID, l.ParentID, models.NormalizeTags(l.Tags)).
		Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert location: %w", postgres.Classify(err))
	}
	return nil
}

func (s *PostgresStore) UpdateLocation(ctx context.Context, l *models.Location) error {
	query := `
		UPDATE location SET title = $2, title_ar = NULLIF($3, ''), description = NULLIF($4, ''),
			location_type_id = $5, admin_level_id = $6,
			latlng = CASE WHEN $7::float8 IS NULL OR $8::float8 IS NULL THEN NULL
				ELSE ST_SetSRID(ST_MakePoint($8::float8, $7::float8), 4326) END,
			postal_code = NULLIF($9, ''), country_id = $10, parent_id = $11, tags = $12, deleted = $13,
			updated_at = NOW()
		WHERE id = $1`
	res, err := s.q(ctx).ExecContext(ctx, query, l.ID, l.Title, l.TitleAr, l.Description, l.LocationTypeID,
		l.AdminLevelID, l.Lat, l.Lng, l.PostalCode, l.CountryID, l.ParentID, models.NormalizeTags(l.Tags), l.Deleted)
	if err != nil {
		return fmt.Errorf("update location %d: %w", l.ID, postgres.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update location %d: %w", l.ID, sentinel.ErrNotFound)
	}
	return nil
}

// RefreshIDTrees rebuilds id_tree for the subtree rooted at root and returns the
// subtree's ids. The tree lists ancestors root-first and ends with the row itself.
func (s *PostgresStore) RefreshIDTrees(ctx context.Context, root int) ([]int, error) {
	query := `
		WITH RECURSIVE up AS (
			SELECT id, parent_id, 0 AS depth FROM location WHERE id = $1
			UNION ALL
			SELECT l.id, l.parent_id, up.depth + 1 FROM location l JOIN up ON l.id = up.parent_id
		),
		head AS (
			SELECT string_agg('[' || id || ']', ' ' ORDER BY depth DESC) AS path FROM up
		),
		down AS (
			SELECT $1::integer AS id, (SELECT path FROM head) AS path
			UNION ALL
			SELECT c.id, down.path || ' [' || c.id || ']' FROM location c JOIN down ON c.parent_id = down.id
		)
		UPDATE location l SET id_tree = down.path FROM down WHERE l.id = down.id
		RETURNING l.id`
	var ids []int
	if err := sqlx.SelectContext(ctx, s.q(ctx), &ids, query, root); err != nil {
		return nil, fmt.Errorf("refresh id_tree below %d: %w", root, postgres.Classify(err))
	}
	return ids, nil
}

// RefreshAllIDTrees rebuilds id_tree for every location from the roots down.
func (s *PostgresStore) RefreshAllIDTrees(ctx context.Context) (int, error) {
	query := `
		WITH RECURSIVE down AS (
			SELECT id, '[' || id || ']' AS path FROM location WHERE parent_id IS NULL
			UNION ALL
			SELECT c.id, down.path || ' [' || c.id || ']' FROM location c JOIN down ON c.parent_id = down.id
		)
		UPDATE location l SET id_tree = down.path FROM down
		WHERE l.id = down.id AND l.id_tree IS DISTINCT FROM down.path`
	res, err := s.q(ctx).ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("refresh id_tree: %w", postgres.Classify(err))
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// RefreshFullLocations rebuilds full_location for ids, or for every location when ids
// is nil. Ancestor titles are joined in ascending admin-level display order; rows
// without an admin level sort last, nearest the root first.
func (s *PostgresStore) RefreshFullLocations(ctx context.Context, ids []int, includePostalCode bool) (int, error) {
	query := `
		WITH RECURSIVE chain AS (
			SELECT l.id AS loc_id, l.id AS anc_id, l.parent_id, 0 AS depth
			FROM location l
			WHERE $1::integer[] IS NULL OR l.id = ANY($1::integer[])
			UNION ALL
			SELECT c.loc_id, p.id, p.parent_id, c.depth + 1
			FROM chain c JOIN location p ON p.id = c.parent_id
		),
		names AS (
			SELECT c.loc_id,
				string_agg(a.title, ', ' ORDER BY COALESCE(al.display_order, 2147483647), c.depth DESC) AS full
			FROM chain c
			JOIN location a ON a.id = c.anc_id
			LEFT JOIN location_admin_level al ON al.id = a.admin_level_id
			GROUP BY c.loc_id
		),
		computed AS (
			SELECT l.id,
				CASE WHEN $2 AND COALESCE(l.postal_code, '') <> '' THEN n.full || ', ' || l.postal_code
					ELSE n.full END AS full
			FROM location l JOIN names n ON n.loc_id = l.id
		)
		UPDATE location l SET full_location = computed.full FROM computed
		WHERE l.id = computed.id AND l.full_location IS DISTINCT FROM computed.full`
	var arg any
	if ids != nil {
		arg = pq.Array(ids)
	}
	res, err := s.q(ctx).ExecContext(ctx, query, arg, includePostalCode)
	if err != nil {
		return 0, fmt.Errorf("refresh full_location: %w", postgres.Classify(err))
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Subtree returns the ids of id and all its descendants.
func (s *PostgresStore) Subtree(ctx context.Context, id int) ([]int, error) {
	var ids []int
	query := `SELECT id FROM location WHERE id_tree LIKE '%[' || $1::text || ']%' AND NOT deleted ORDER BY id`
	if err := sqlx.SelectContext(ctx, s.q(ctx), &ids, query, id); err != nil {
		return nil, fmt.Errorf("location subtree %d: %w", id, postgres.Classify(err))
	}
	return ids, nil
}

// AdminLevels lists admin levels in display order.
func (s *PostgresStore) AdminLevels(ctx context.Context) ([]models.AdminLevel, error) {
	var out []models.AdminLevel
	query := `SELECT id, code, title, display_order FROM location_admin_level ORDER BY display_order, id`
	if err := sqlx.SelectContext(ctx, s.q(ctx), &out, query); err != nil {
		return nil, fmt.Errorf("list admin levels: %w", postgres.Classify(err))
	}
	return out, nil
}

// SaveAdminLevel creates (ID == 0) or updates an admin level.
func (s *PostgresStore) SaveAdminLevel(ctx context.Context, lvl *models.AdminLevel) error {
	if lvl.ID == 0 {
		query := `INSERT INTO location_admin_level (code, title, display_order) VALUES ($1, $2, $3) RETURNING id`
		if err := sqlx.GetContext(ctx, s.q(ctx), &lvl.ID, query, lvl.Code, lvl.Title, lvl.DisplayOrder); err != nil {
			return fmt.Errorf("insert admin level: %w", postgres.Classify(err))
		}
		return nil
	}
	query := `UPDATE location_admin_level SET code = $2, title = $3, display_order = $4 WHERE id = $1`
	res, err := s.q(ctx).ExecContext(ctx, query, lvl.ID, lvl.Code, lvl.Title, lvl.DisplayOrder)
	if err != nil {
		return fmt.Errorf("update admin level %d: %w", lvl.ID, postgres.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update admin level %d: %w", lvl.ID, sentinel.ErrNotFound)
	}
	return nil
}

// ListVocab returns a dictionary table's rows ordered by id.
func (s *PostgresStore) ListVocab(ctx context.Context, table string) ([]models.VocabItem, error) {
	query := fmt.Sprintf(`SELECT id, title, COALESCE(title_tr, '') AS title_tr FROM %s ORDER BY id`, table)
	var out []models.VocabItem
	if err := sqlx.SelectContext(ctx, s.q(ctx), &out, query); err != nil {
		return nil, fmt.Errorf("list %s: %w", table, postgres.Classify(err))
	}
	return out, nil
}

// SaveVocab creates (ID == 0) or updates a dictionary row.
func (s *PostgresStore) SaveVocab(ctx context.Context, table string, item *models.VocabItem) error {
	if item.ID == 0 {
		query := fmt.Sprintf(`INSERT INTO %s (title, title_tr) VALUES ($1, NULLIF($2, '')) RETURNING id`, table)
		if err := sqlx.GetContext(ctx, s.q(ctx), &item.ID, query, item.Title, item.TitleTr); err != nil {
			return fmt.Errorf("insert %s: %w", table, postgres.Classify(err))
		}
		return nil
	}
	query := fmt.Sprintf(`UPDATE %s SET title = $2, title_tr = NULLIF($3, ''), updated_at = NOW() WHERE id = $1`, table)
	res, err := s.q(ctx).ExecContext(ctx, query, item.ID, item.Title, item.TitleTr)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", table, item.ID, postgres.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s %d: %w", table, item.ID, sentinel.ErrNotFound)
	}
	return nil
}

// DeleteVocab removes a dictionary row. Rows still referenced fail with a conflict.
func (s *PostgresStore) DeleteVocab(ctx context.Context, table string, id int) error {
	res, err := s.q(ctx).ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", table, id, postgres.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s %d: %w", table, id, sentinel.ErrNotFound)
	}
	return nil
}

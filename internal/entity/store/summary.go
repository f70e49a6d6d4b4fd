package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bayanat/internal/entity/models"
	"bayanat/internal/platform/postgres"
)

func titleColumns(class models.Class) string {
	if class == models.ClassActor {
		return `COALESCE(t.name, '') AS title, COALESCE(t.name_ar, '') AS title_ar`
	}
	return `COALESCE(t.title, '') AS title, COALESCE(t.title_ar, '') AS title_ar`
}

// Summaries loads compact views keyed by id. Missing ids are absent from the map.
func (s *PostgresStore) Summaries(ctx context.Context, class models.Class, ids []int) (map[int]*models.Summary, error) {
	out := make(map[int]*models.Summary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`
		SELECT t.id, %s, COALESCE(t.status, '') AS status, t.deleted,
			t.assigned_to_id, t.first_peer_reviewer_id, t.second_peer_reviewer_id,
			COALESCE((SELECT array_agg(r.role_id ORDER BY r.role_id) FROM %s r WHERE r.%s = t.id), '{}') AS role_ids
		FROM %s t
		WHERE t.id = ANY($1)`, titleColumns(class), class.RolesTable(), class.HistoryColumn(), class.Table())
	var rows []models.Summary
	if err := sqlx.SelectContext(ctx, s.q(ctx), &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("load %s summaries: %w", class, postgres.Classify(err))
	}
	for i := range rows {
		rows[i].Class = class
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

// Scopes loads the access scope of each id.
func (s *PostgresStore) Scopes(ctx context.Context, class models.Class, ids []int) (map[int]models.Scope, error) {
	summaries, err := s.Summaries(ctx, class, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int]models.Scope, len(summaries))
	for id, sum := range summaries {
		out[id] = sum.Scope()
	}
	return out, nil
}

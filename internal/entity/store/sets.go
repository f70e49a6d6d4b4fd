package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bayanat/internal/entity/models"
	"bayanat/internal/platform/postgres"
)

// Collection describes a join table linking an owner to vocabulary or tree items.
type Collection struct {
	Join    string
	Owner   string
	Item    string
	Target  string
	TitleAr string
}

// Id collections of the primary entities and actor profiles.
var (
	BulletinRoles          = Collection{"bulletin_roles", "bulletin_id", "role_id", "roles", ""}
	BulletinLabels         = Collection{"bulletin_labels", "bulletin_id", "label_id", "label", "title_ar"}
	BulletinVerifiedLabels = Collection{"bulletin_verified_labels", "bulletin_id", "label_id", "label", "title_ar"}
	BulletinSources        = Collection{"bulletin_sources", "bulletin_id", "source_id", "source", "title_ar"}
	BulletinLocations      = Collection{"bulletin_locations", "bulletin_id", "location_id", "location", "title_ar"}

	ActorRoles         = Collection{"actor_roles", "actor_id", "role_id", "roles", ""}
	ActorLocations     = Collection{"actor_locations", "actor_id", "location_id", "location", "title_ar"}
	ActorEthnographies = Collection{"actor_ethnographies", "actor_id", "ethnography_id", "ethnography", "title_tr"}
	ActorNationalities = Collection{"actor_nationalities", "actor_id", "country_id", "country", "title_tr"}
	ActorDialects      = Collection{"actor_dialects", "actor_id", "dialect_id", "dialect", "title_tr"}

	ProfileSources        = Collection{"actor_profile_sources", "actor_profile_id", "source_id", "source", "title_ar"}
	ProfileLabels         = Collection{"actor_profile_labels", "actor_profile_id", "label_id", "label", "title_ar"}
	ProfileVerifiedLabels = Collection{"actor_profile_verified_labels", "actor_profile_id", "label_id", "label", "title_ar"}

	IncidentRoles               = Collection{"incident_roles", "incident_id", "role_id", "roles", ""}
	IncidentLabels              = Collection{"incident_labels", "incident_id", "label_id", "label", "title_ar"}
	IncidentLocations           = Collection{"incident_locations", "incident_id", "location_id", "location", "title_ar"}
	IncidentPotentialViolations = Collection{"incident_potential_violations", "incident_id", "potential_violation_id", "potential_violation", "title_tr"}
	IncidentClaimedViolations   = Collection{"incident_claimed_violations", "incident_id", "claimed_violation_id", "claimed_violation", "title_tr"}
)

// RolesOf returns the role collection of a primary class.
func RolesOf(class models.Class) Collection {
	switch class {
	case models.ClassActor:
		return ActorRoles
	case models.ClassIncident:
		return IncidentRoles
	}
	return BulletinRoles
}

// LocationsOf returns the location collection of a primary class.
func LocationsOf(class models.Class) Collection {
	switch class {
	case models.ClassActor:
		return ActorLocations
	case models.ClassIncident:
		return IncidentLocations
	}
	return BulletinLocations
}

// ReplaceSet makes the owner's collection equal to ids. Unknown ids surface as
// sentinel.ErrNotFound through the foreign key.
func (s *PostgresStore) ReplaceSet(ctx context.Context, c Collection, owner int, ids []int) error {
	arr := pq.Array(ids)
	if ids == nil {
		arr = pq.Array([]int{})
	}
	del := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND NOT (%s = ANY($2))`, c.Join, c.Owner, c.Item)
	if _, err := s.q(ctx).ExecContext(ctx, del, owner, arr); err != nil {
		return fmt.Errorf("trim %s: %w", c.Join, postgres.Classify(err))
	}
	if len(ids) == 0 {
		return nil
	}
	ins := fmt.Sprintf(`
		INSERT INTO %s (%s, %s)
		SELECT $1, item FROM unnest($2::int[]) AS item
		ON CONFLICT DO NOTHING`, c.Join, c.Owner, c.Item)
	if _, err := s.q(ctx).ExecContext(ctx, ins, owner, arr); err != nil {
		return fmt.Errorf("fill %s: %w", c.Join, postgres.Classify(err))
	}
	return nil
}

// MissingItems returns the ids that have no row in the collection's target table.
func (s *PostgresStore) MissingItems(ctx context.Context, c Collection, ids []int) ([]int, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT item FROM unnest($1::int[]) AS item
		WHERE NOT EXISTS (SELECT 1 FROM %s t WHERE t.id = item)
		ORDER BY item`, c.Target)
	var missing []int
	if err := sqlx.SelectContext(ctx, s.q(ctx), &missing, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("check %s: %w", c.Target, postgres.Classify(err))
	}
	return missing, nil
}

// Terms loads the owner's collection as compact vocabulary items.
func (s *PostgresStore) Terms(ctx context.Context, c Collection, owner int) ([]models.Term, error) {
	titleAr := "''"
	if c.TitleAr != "" {
		titleAr = "COALESCE(t." + c.TitleAr + ", '')"
	}
	query := fmt.Sprintf(`
		SELECT t.id, COALESCE(t.title, '') AS title, %s AS title_ar
		FROM %s t JOIN %s j ON j.%s = t.id
		WHERE j.%s = $1
		ORDER BY t.id`, titleAr, c.Target, c.Join, c.Item, c.Owner)
	terms := []models.Term{}
	if err := sqlx.SelectContext(ctx, s.q(ctx), &terms, query, owner); err != nil {
		return nil, fmt.Errorf("load %s: %w", c.Join, postgres.Classify(err))
	}
	return terms, nil
}

const locationRefColumns = `l.id, COALESCE(l.title, '') AS title, COALESCE(l.title_ar, '') AS title_ar,
	COALESCE(l.full_location, '') AS full_location, ST_Y(l.latlng) AS lat, ST_X(l.latlng) AS lng`

// LocationRefs loads the owner's locations.
func (s *PostgresStore) LocationRefs(ctx context.Context, c Collection, owner int) ([]models.LocationRef, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM location l JOIN %s j ON j.location_id = l.id
		WHERE j.%s = $1
		ORDER BY l.id`, locationRefColumns, c.Join, c.Owner)
	refs := []models.LocationRef{}
	if err := sqlx.SelectContext(ctx, s.q(ctx), &refs, query, owner); err != nil {
		return nil, fmt.Errorf("load %s: %w", c.Join, postgres.Classify(err))
	}
	return refs, nil
}

func (s *PostgresStore) locationRef(ctx context.Context, id *int) (*models.LocationRef, error) {
	if id == nil {
		return nil, nil
	}
	var ref models.LocationRef
	query := `SELECT ` + locationRefColumns + ` FROM location l WHERE l.id = $1`
	if err := sqlx.GetContext(ctx, s.q(ctx), &ref, query, *id); err != nil {
		return nil, fmt.Errorf("load location %d: %w", *id, postgres.Classify(err))
	}
	return &ref, nil
}

// IDs returns the item ids in the owner's collection.
func (s *PostgresStore) IDs(ctx context.Context, c Collection, owner int) ([]int, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY %s`, c.Item, c.Join, c.Owner, c.Item)
	ids := []int{}
	if err := sqlx.SelectContext(ctx, s.q(ctx), &ids, query, owner); err != nil {
		return nil, fmt.Errorf("load %s ids: %w", c.Join, postgres.Classify(err))
	}
	return ids, nil
}

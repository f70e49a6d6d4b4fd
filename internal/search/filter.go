package search

import (
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	"bayanat/internal/entity/store"
	dErrors "bayanat/pkg/domain-errors"
)

// Near selects entities with a location within Meters of Point. The radius applies to
// every enabled source; an entity matches if any of them does.
type Near struct {
	models.Point
	Meters float64 `json:"radius" validate:"gt=0"`

	Locations      bool `json:"locations"`
	GeoLocations   bool `json:"geo_locations"`
	EventLocations bool `json:"event_locations"`
}

// sources reports which spatial sources to query; none selected means attached locations.
func (n *Near) sources() (locations, geo, events bool) {
	if !n.Locations && !n.GeoLocations && !n.EventLocations {
		return true, false, false
	}
	return n.Locations, n.GeoLocations, n.EventLocations
}

// TagMatch selects how Filter.Tags combine.
type TagMatch string

const (
	TagsAny TagMatch = "any"
	TagsAll TagMatch = "all"
)

// Filter narrows a primary entity table. Zero values do not filter.
type Filter struct {
	Text            string     `json:"text"`
	Tags            []string   `json:"tags"`
	TagMatch        TagMatch   `json:"tag_match" validate:"omitempty,oneof=any all"`
	Near            *Near      `json:"near"`
	EventFrom       *time.Time `json:"event_from"`
	EventTo         *time.Time `json:"event_to"`
	LocationSubtree *int       `json:"location_subtree"`
	Statuses        []string   `json:"statuses"`
	AssignedTo      *int       `json:"assigned_to"`
	IncludeDeleted  bool       `json:"include_deleted"`
	Limit           uint64     `json:"limit" validate:"lte=10000"`
	Offset          uint64     `json:"offset"`
}

// Validate checks the filter against class.
func (f *Filter) Validate(class models.Class) error {
	if !class.Primary() {
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown entity class %q", class))
	}
	if err := models.Validate(f); err != nil {
		return err
	}
	if f.Near != nil && !f.Near.Valid() {
		return dErrors.New(dErrors.CodeValidation, "near point is out of range")
	}
	if f.Near != nil && f.Near.GeoLocations && class != models.ClassBulletin {
		return dErrors.New(dErrors.CodeValidation, "only bulletins carry geo locations")
	}
	if f.EventFrom != nil && f.EventTo != nil && f.EventTo.Before(*f.EventFrom) {
		return dErrors.New(dErrors.CodeValidation, "event_to precedes event_from")
	}
	return nil
}

// Predicates compiles f into WHERE conditions over class's table. An empty result
// must not be passed to Where, squirrel renders it as (1=1).
func (f *Filter) Predicates(class models.Class) sq.And {
	var where sq.And
	if !f.IncludeDeleted {
		where = append(where, sq.Expr("NOT deleted"))
	}
	for _, word := range strings.Fields(f.Text) {
		where = append(where, sq.Expr("search ILIKE ?", "%"+escapeLike(word)+"%"))
	}
	if tags := models.NormalizeTags(f.Tags); len(tags) > 0 {
		if f.TagMatch == TagsAll {
			where = append(where, sq.Expr("tags @> ?::text[]", pq.Array([]string(tags))))
		} else {
			where = append(where, sq.Expr("tags && ?::text[]", pq.Array([]string(tags))))
		}
	}
	if f.Near != nil {
		locations, geo, events := f.Near.sources()
		var near sq.Or
		if locations {
			near = append(near, GeoQueryLocation(class, f.Near.Point, f.Near.Meters))
		}
		if geo {
			near = append(near, GeoQueryGeoLocation(f.Near.Point, f.Near.Meters))
		}
		if events {
			near = append(near, GeoQueryEventLocation(class, f.Near.Point, f.Near.Meters))
		}
		where = append(where, near)
	}
	if f.EventFrom != nil || f.EventTo != nil {
		where = append(where, EventOverlap(class, f.EventFrom, f.EventTo))
	}
	if f.LocationSubtree != nil {
		where = append(where, InLocationSubtree(class, *f.LocationSubtree))
	}
	if len(f.Statuses) > 0 {
		where = append(where, sq.Eq{"status": f.Statuses})
	}
	if f.AssignedTo != nil {
		where = append(where, sq.Eq{"assigned_to_id": *f.AssignedTo})
	}
	return where
}

const withinMeters = "ST_DWithin(%s::geography, ST_SetSRID(ST_MakePoint(?, ?), 4326)::geography, ?)"

// GeoQueryLocation matches entities whose attached locations lie within meters of p.
func GeoQueryLocation(class models.Class, p models.Point, meters float64) sq.Sqlizer {
	c := store.LocationsOf(class)
	query := fmt.Sprintf(`id IN (SELECT j.%s FROM %s j JOIN location l ON l.id = j.%s WHERE `+withinMeters+`)`,
		c.Owner, c.Join, c.Item, "l.latlng")
	return sq.Expr(query, p.Lng, p.Lat, meters)
}

// GeoQueryGeoLocation matches bulletins with a geo marker within meters of p.
func GeoQueryGeoLocation(p models.Point, meters float64) sq.Sqlizer {
	query := `id IN (SELECT g.bulletin_id FROM geo_location g WHERE ` + fmt.Sprintf(withinMeters, "g.latlng") + `)`
	return sq.Expr(query, p.Lng, p.Lat, meters)
}

// GeoQueryEventLocation matches entities owning an event located within meters of p.
func GeoQueryEventLocation(class models.Class, p models.Point, meters float64) sq.Sqlizer {
	c := store.EventsOf(class)
	query := fmt.Sprintf(`id IN (SELECT j.%s FROM %s j JOIN event e ON e.id = j.%s
		JOIN location l ON l.id = e.location_id WHERE `+withinMeters+`)`,
		c.Owner, c.Join, c.Item, "l.latlng")
	return sq.Expr(query, p.Lng, p.Lat, meters)
}

// EventOverlap matches entities owning an event whose [from_date, to_date] interval
// overlaps [from, to], bounds inclusive. An event without to_date is a single instant;
// a nil bound is open.
func EventOverlap(class models.Class, from, to *time.Time) sq.Sqlizer {
	c := store.EventsOf(class)
	inner := psql.Select("j." + c.Owner).
		From(c.Join + " j").
		Join("event e ON e.id = j." + c.Item).
		Where("e.from_date IS NOT NULL")
	if to != nil {
		inner = inner.Where("e.from_date <= ?", *to)
	}
	if from != nil {
		inner = inner.Where("COALESCE(e.to_date, e.from_date) >= ?", *from)
	}
	return sq.Expr("id IN (?)", inner)
}

// InLocationSubtree matches entities attached to location root or any descendant.
func InLocationSubtree(class models.Class, root int) sq.Sqlizer {
	c := store.LocationsOf(class)
	query := fmt.Sprintf(`id IN (SELECT j.%s FROM %s j JOIN location l ON l.id = j.%s WHERE l.id_tree LIKE ?)`,
		c.Owner, c.Join, c.Item)
	return sq.Expr(query, fmt.Sprintf("%%[%d]%%", root))
}

// Visible restricts results to entities the caller may read under policy. Trusted
// callers and admins see everything.
func Visible(class models.Class, policy access.Policy, c *access.Caller) sq.Sqlizer {
	if c == nil || c.Admin {
		return nil
	}
	roles := store.RolesOf(class)
	shared := sq.Expr(fmt.Sprintf("id IN (SELECT %s FROM %s WHERE %s = ANY(?::integer[]))",
		roles.Owner, roles.Join, roles.Item), pq.Array(c.RoleIDs))
	if policy.Mode == access.Restrictive {
		return shared
	}
	unscoped := sq.Expr(fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s r WHERE r.%s = %s.id)",
		roles.Join, roles.Owner, class.Table()))
	assigned := sq.Expr("? IN (assigned_to_id, first_peer_reviewer_id, second_peer_reviewer_id)", c.UserID)
	return sq.Or{unscoped, shared, assigned}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

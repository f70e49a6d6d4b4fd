package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"bayanat/internal/entity/models"
	"bayanat/internal/platform/postgres"
	"bayanat/pkg/platform/sentinel"
	"bayanat/pkg/requestcontext"
)

// EventsOf returns the event join table of a primary class.
func EventsOf(class models.Class) Collection {
	return Collection{Join: string(class) + "_events", Owner: string(class) + "_id", Item: "event_id", Target: "event"}
}

func eventsJoin(class models.Class) (table, owner string) {
	c := EventsOf(class)
	return c.Join, c.Owner
}

// Events loads the events owned by an entity, earliest first.
func (s *PostgresStore) Events(ctx context.Context, class models.Class, owner int) ([]models.Event, error) {
	join, col := eventsJoin(class)
	query := fmt.Sprintf(`
		SELECT e.id, COALESCE(e.title, '') AS title, COALESCE(e.title_ar, '') AS title_ar,
			COALESCE(e.comments, '') AS comments, COALESCE(e.comments_ar, '') AS comments_ar,
			e.location_id, e.eventtype_id, e.from_date, e.to_date, e.estimated
		FROM event e JOIN %s j ON j.event_id = e.id
		WHERE j.%s = $1
		ORDER BY e.from_date NULLS LAST, e.id`, join, col)
	events := []models.Event{}
	if err := sqlx.SelectContext(ctx, s.q(ctx), &events, query, owner); err != nil {
		return nil, fmt.Errorf("load %s events: %w", class, postgres.Classify(err))
	}
	for i := range events {
		ev := &events[i]
		loc, err := s.locationRef(ctx, ev.LocationID)
		if err != nil {
			return nil, err
		}
		ev.Location = loc
		if ev.EventtypeID != nil {
			var t models.Term
			err := sqlx.GetContext(ctx, s.q(ctx), &t,
				`SELECT id, title, COALESCE(title_tr, '') AS title_ar FROM eventtype WHERE id = $1`, *ev.EventtypeID)
			if err != nil {
				return nil, fmt.Errorf("load eventtype %d: %w", *ev.EventtypeID, postgres.Classify(err))
			}
			ev.Eventtype = &t
		}
	}
	return events, nil
}

// SyncEvents makes the owner's events equal to events. Items carrying an owned id are
// updated in place, items without an id are created and owned events missing from
// the list are deleted.
func (s *PostgresStore) SyncEvents(ctx context.Context, class models.Class, owner int, events []models.Event) error {
	join, col := eventsJoin(class)
	var ids []int
	query := fmt.Sprintf(`SELECT event_id FROM %s WHERE %s = $1`, join, col)
	if err := sqlx.SelectContext(ctx, s.q(ctx), &ids, query, owner); err != nil {
		return fmt.Errorf("load %s event ids: %w", class, postgres.Classify(err))
	}
	owned := toSet(ids)
	now := requestcontext.Now(ctx)
	keep := make(map[int]bool, len(events))

	for i := range events {
		ev := &events[i]
		if ev.ID != 0 {
			if !owned[ev.ID] {
				return fmt.Errorf("event %d of %s %d: %w", ev.ID, class, owner, sentinel.ErrNotFound)
			}
			keep[ev.ID] = true
			if err := s.updateEvent(ctx, ev, now); err != nil {
				return err
			}
			continue
		}
		if err := s.insertEvent(ctx, ev, now); err != nil {
			return err
		}
		link := fmt.Sprintf(`INSERT INTO %s (%s, event_id) VALUES ($1, $2)`, join, col)
		if _, err := s.q(ctx).ExecContext(ctx, link, owner, ev.ID); err != nil {
			return fmt.Errorf("link event %d: %w", ev.ID, postgres.Classify(err))
		}
	}

	for _, id := range ids {
		if keep[id] {
			continue
		}
		// Deleting the event cascades to the join row.
		if _, err := s.q(ctx).ExecContext(ctx, `DELETE FROM event WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete event %d: %w", id, postgres.Classify(err))
		}
	}
	return nil
}

func (s *PostgresStore) insertEvent(ctx context.Context, ev *models.Event, now time.Time) error {
	err := sqlx.GetContext(ctx, s.q(ctx), &ev.ID, `
		INSERT INTO event (title, title_ar, comments, comments_ar, location_id, eventtype_id,
			from_date, to_date, estimated, created_at, updated_at)
		VALUES (NULLIF($1, ''), NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $10)
		RETURNING id`,
		ev.Title, ev.TitleAr, ev.Comments, ev.CommentsAr, ev.LocationID, ev.EventtypeID,
		ev.FromDate, ev.ToDate, ev.Estimated, now)
	if err != nil {
		return fmt.Errorf("insert event: %w", postgres.Classify(err))
	}
	return nil
}

func (s *PostgresStore) updateEvent(ctx context.Context, ev *models.Event, now time.Time) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		UPDATE event SET title = NULLIF($2, ''), title_ar = NULLIF($3, ''), comments = NULLIF($4, ''),
			comments_ar = NULLIF($5, ''), location_id = $6, eventtype_id = $7, from_date = $8,
			to_date = $9, estimated = $10, updated_at = $11
		WHERE id = $1`,
		ev.ID, ev.Title, ev.TitleAr, ev.Comments, ev.CommentsAr, ev.LocationID, ev.EventtypeID,
		ev.FromDate, ev.ToDate, ev.Estimated, now)
	if err != nil {
		return fmt.Errorf("update event %d: %w", ev.ID, postgres.Classify(err))
	}
	return nil
}

const mediaColumns = `id, media_file, COALESCE(media_file_type, '') AS media_file_type, category_id,
	COALESCE(etag, '') AS etag, COALESCE(title, '') AS title, COALESCE(title_ar, '') AS title_ar,
	COALESCE(comments, '') AS comments, COALESCE(duration, '') AS duration, main, deleted,
	bulletin_id, actor_id, created_at, updated_at`

// Medias loads the live medias of a bulletin or actor, main first.
func (s *PostgresStore) Medias(ctx context.Context, class models.Class, owner int) ([]models.Media, error) {
	query := fmt.Sprintf(`SELECT %s FROM media WHERE %s_id = $1 AND NOT deleted ORDER BY main DESC, id`,
		mediaColumns, class)
	medias := []models.Media{}
	if err := sqlx.SelectContext(ctx, s.q(ctx), &medias, query, owner); err != nil {
		return nil, fmt.Errorf("load %s medias: %w", class, postgres.Classify(err))
	}
	return medias, nil
}

// SyncMedias diffs the owner's live medias against medias. The main media is never
// modified or removed here. Removed medias are soft-deleted and keep a note of who
// removed them.
func (s *PostgresStore) SyncMedias(ctx context.Context, class models.Class, owner int, medias []models.Media, by *int) error {
	current, err := s.Medias(ctx, class, owner)
	if err != nil {
		return err
	}
	existing := make(map[int]models.Media, len(current))
	for _, m := range current {
		existing[m.ID] = m
	}
	now := requestcontext.Now(ctx)
	keep := make(map[int]bool, len(medias))

	for i := range medias {
		m := &medias[i]
		if m.ID != 0 {
			cur, ok := existing[m.ID]
			if !ok {
				return fmt.Errorf("media %d of %s %d: %w", m.ID, class, owner, sentinel.ErrNotFound)
			}
			keep[m.ID] = true
			if cur.Main {
				continue
			}
			_, err := s.q(ctx).ExecContext(ctx, `
				UPDATE media SET title = NULLIF($2, ''), title_ar = NULLIF($3, ''), comments = NULLIF($4, ''),
					category_id = $5, duration = NULLIF($6, ''), updated_at = $7
				WHERE id = $1`,
				m.ID, m.Title, m.TitleAr, m.Comments, m.CategoryID, m.Duration, now)
			if err != nil {
				return fmt.Errorf("update media %d: %w", m.ID, postgres.Classify(err))
			}
			continue
		}
		query := fmt.Sprintf(`
			INSERT INTO media (media_file, media_file_type, category_id, etag, title, title_ar, comments,
				duration, main, %s_id, created_at, updated_at)
			VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''),
				NULLIF($8, ''), $9, $10, $11, $11)
			RETURNING id`, class)
		err := sqlx.GetContext(ctx, s.q(ctx), &m.ID, query,
			m.MediaFile, m.MediaFileType, m.CategoryID, m.Etag, m.Title, m.TitleAr, m.Comments,
			m.Duration, m.Main, owner, now)
		if err != nil {
			return fmt.Errorf("insert media: %w", postgres.Classify(err))
		}
	}

	for id, cur := range existing {
		if keep[id] || cur.Main {
			continue
		}
		note := removalNote(class, owner, by, now)
		_, err := s.q(ctx).ExecContext(ctx, `
			UPDATE media SET deleted = TRUE, comments = concat_ws(E'\n', NULLIF(comments, ''), $2::text),
				updated_at = $3
			WHERE id = $1`, id, note, now)
		if err != nil {
			return fmt.Errorf("remove media %d: %w", id, postgres.Classify(err))
		}
	}
	return nil
}

func removalNote(class models.Class, owner int, by *int, at time.Time) string {
	who := "system"
	if by != nil {
		who = fmt.Sprintf("user #%d", *by)
	}
	return fmt.Sprintf("Removed from %s #%d by %s at %s", class, owner, who, at.UTC().Format(models.TimeLayout))
}

// MediaEtagTaken reports whether a live media already carries etag.
func (s *PostgresStore) MediaEtagTaken(ctx context.Context, etag string) (bool, error) {
	var taken bool
	err := sqlx.GetContext(ctx, s.q(ctx), &taken,
		`SELECT EXISTS (SELECT 1 FROM media WHERE etag = $1 AND NOT deleted)`, etag)
	if err != nil {
		return false, fmt.Errorf("check etag: %w", postgres.Classify(err))
	}
	return taken, nil
}

// GeoLocations loads a bulletin's markers.
func (s *PostgresStore) GeoLocations(ctx context.Context, bulletinID int) ([]models.GeoLocation, error) {
	geos := []models.GeoLocation{}
	err := sqlx.SelectContext(ctx, s.q(ctx), &geos, `
		SELECT id, bulletin_id, COALESCE(title, '') AS title, COALESCE(type, '') AS type, main,
			ST_Y(latlng) AS lat, ST_X(latlng) AS lng, COALESCE(comment, '') AS comment
		FROM geo_location
		WHERE bulletin_id = $1
		ORDER BY id`, bulletinID)
	if err != nil {
		return nil, fmt.Errorf("load geo locations: %w", postgres.Classify(err))
	}
	return geos, nil
}

// SyncGeoLocations diffs a bulletin's markers the same way events are diffed.
func (s *PostgresStore) SyncGeoLocations(ctx context.Context, bulletinID int, geos []models.GeoLocation) error {
	var ids []int
	if err := sqlx.SelectContext(ctx, s.q(ctx), &ids,
		`SELECT id FROM geo_location WHERE bulletin_id = $1`, bulletinID); err != nil {
		return fmt.Errorf("load geo location ids: %w", postgres.Classify(err))
	}
	owned := toSet(ids)
	now := requestcontext.Now(ctx)
	keep := make(map[int]bool, len(geos))

	for i := range geos {
		g := &geos[i]
		g.BulletinID = bulletinID
		if g.ID != 0 {
			if !owned[g.ID] {
				return fmt.Errorf("geo location %d of bulletin %d: %w", g.ID, bulletinID, sentinel.ErrNotFound)
			}
			keep[g.ID] = true
			_, err := s.q(ctx).ExecContext(ctx, `
				UPDATE geo_location SET title = NULLIF($2, ''), type = NULLIF($3, ''), main = $4,
					latlng = ST_SetSRID(ST_MakePoint($6, $5), 4326), comment = NULLIF($7, ''), updated_at = $8
				WHERE id = $1`,
				g.ID, g.Title, g.Type, g.Main, g.Lat, g.Lng, g.Comment, now)
			if err != nil {
				return fmt.Errorf("update geo location %d: %w", g.ID, postgres.Classify(err))
			}
			continue
		}
		err := sqlx.GetContext(ctx, s.q(ctx), &g.ID, `
			INSERT INTO geo_location (bulletin_id, title, type, main, latlng, comment, created_at, updated_at)
			VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, ST_SetSRID(ST_MakePoint($6, $5), 4326),
				NULLIF($7, ''), $8, $8)
			RETURNING id`,
			bulletinID, g.Title, g.Type, g.Main, g.Lat, g.Lng, g.Comment, now)
		if err != nil {
			return fmt.Errorf("insert geo location: %w", postgres.Classify(err))
		}
	}

	for _, id := range ids {
		if keep[id] {
			continue
		}
		if _, err := s.q(ctx).ExecContext(ctx, `DELETE FROM geo_location WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete geo location %d: %w", id, postgres.Classify(err))
		}
	}
	return nil
}

// ProfileChange is a profile to write together with its id collections.
type ProfileChange struct {
	models.ActorProfile
	SourceIDs        []int
	LabelIDs         []int
	VerifiedLabelIDs []int
}

// Profiles loads an actor's profiles in creation order.
func (s *PostgresStore) Profiles(ctx context.Context, actorID int) ([]models.ActorProfile, error) {
	profiles := []models.ActorProfile{}
	err := sqlx.SelectContext(ctx, s.q(ctx), &profiles, `
		SELECT id, actor_id, mode, COALESCE(description, '') AS description,
			COALESCE(source_link, '') AS source_link, publish_date, documentation_date,
			COALESCE(originid, '') AS originid, missing_person
		FROM actor_profile
		WHERE actor_id = $1
		ORDER BY id`, actorID)
	if err != nil {
		return nil, fmt.Errorf("load actor profiles: %w", postgres.Classify(err))
	}
	for i := range profiles {
		p := &profiles[i]
		if p.Sources, err = s.Terms(ctx, ProfileSources, p.ID); err != nil {
			return nil, err
		}
		if p.Labels, err = s.Terms(ctx, ProfileLabels, p.ID); err != nil {
			return nil, err
		}
		if p.VerifiedLabels, err = s.Terms(ctx, ProfileVerifiedLabels, p.ID); err != nil {
			return nil, err
		}
	}
	return profiles, nil
}

// SyncProfiles diffs an actor's profiles and replaces each kept profile's collections.
func (s *PostgresStore) SyncProfiles(ctx context.Context, actorID int, profiles []ProfileChange) error {
	var ids []int
	if err := sqlx.SelectContext(ctx, s.q(ctx), &ids,
		`SELECT id FROM actor_profile WHERE actor_id = $1`, actorID); err != nil {
		return fmt.Errorf("load actor profile ids: %w", postgres.Classify(err))
	}
	owned := toSet(ids)
	now := requestcontext.Now(ctx)
	keep := make(map[int]bool, len(profiles))

	for i := range profiles {
		p := &profiles[i]
		p.ActorID = actorID
		if p.Mode != models.ProfileModeMissingPerson {
			p.MissingPerson = nil
		}
		if p.ID != 0 {
			if !owned[p.ID] {
				return fmt.Errorf("profile %d of actor %d: %w", p.ID, actorID, sentinel.ErrNotFound)
			}
			keep[p.ID] = true
			_, err := s.q(ctx).ExecContext(ctx, `
				UPDATE actor_profile SET mode = $2, description = NULLIF($3, ''), source_link = NULLIF($4, ''),
					publish_date = $5, documentation_date = $6, originid = NULLIF($7, ''),
					missing_person = $8, updated_at = $9
				WHERE id = $1`,
				p.ID, p.Mode, p.Description, p.SourceLink, p.PublishDate, p.DocumentationDate, p.OriginID,
				p.MissingPerson, now)
			if err != nil {
				return fmt.Errorf("update actor profile %d: %w", p.ID, postgres.Classify(err))
			}
		} else {
			err := sqlx.GetContext(ctx, s.q(ctx), &p.ID, `
				INSERT INTO actor_profile (actor_id, mode, description, source_link, publish_date,
					documentation_date, originid, missing_person, created_at, updated_at)
				VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, $9, $9)
				RETURNING id`,
				actorID, p.Mode, p.Description, p.SourceLink, p.PublishDate, p.DocumentationDate, p.OriginID,
				p.MissingPerson, now)
			if err != nil {
				return fmt.Errorf("insert actor profile: %w", postgres.Classify(err))
			}
		}
		if err := s.ReplaceSet(ctx, ProfileSources, p.ID, p.SourceIDs); err != nil {
			return err
		}
		if err := s.ReplaceSet(ctx, ProfileLabels, p.ID, p.LabelIDs); err != nil {
			return err
		}
		if err := s.ReplaceSet(ctx, ProfileVerifiedLabels, p.ID, p.VerifiedLabelIDs); err != nil {
			return err
		}
	}

	for _, id := range ids {
		if keep[id] {
			continue
		}
		if _, err := s.q(ctx).ExecContext(ctx, `DELETE FROM actor_profile WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete actor profile %d: %w", id, postgres.Classify(err))
		}
	}
	return nil
}

func toSet(ids []int) map[int]bool {
	out := make(map[int]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

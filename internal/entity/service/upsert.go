package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	"bayanat/internal/entity/store"
	"bayanat/internal/relation"
	"bayanat/internal/revision"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/requestcontext"
)

type upsertConfig struct {
	cascade bool
}

// UpsertOption adjusts a single upsert.
type UpsertOption func(*upsertConfig)

// WithoutCascade skips counterpart snapshots for relation changes. Bulk imports use it.
func WithoutCascade() UpsertOption {
	return func(c *upsertConfig) { c.cascade = false }
}

// mutation carries one upsert through its transaction.
type mutation struct {
	class    models.Class
	id       int
	creating bool
	cascade  *revision.Cascade
}

// Ingest decodes a raw payload for class and upserts it; id 0 creates. Keys naming
// active dynamic fields are validated and written to their columns.
func (s *Service) Ingest(ctx context.Context, class models.Class, id int, payload []byte, opts ...UpsertOption) (int, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeBadRequest, "payload must be a JSON object")
	}
	names, err := s.fields.Names(ctx, class)
	if err != nil {
		return 0, err
	}
	dynamic := make(map[string]json.RawMessage)
	for _, name := range names {
		if v, ok := raw[name]; ok {
			dynamic[name] = v
		}
	}
	values, err := s.fields.ValidateValues(ctx, class, dynamic, id == 0)
	if err != nil {
		return 0, err
	}

	switch class {
	case models.ClassBulletin:
		var req models.BulletinRequest
		if err := decode(payload, &req); err != nil {
			return 0, err
		}
		req.Dynamic = values
		return s.UpsertBulletin(ctx, id, &req, opts...)
	case models.ClassActor:
		var req models.ActorRequest
		if err := decode(payload, &req); err != nil {
			return 0, err
		}
		req.Dynamic = values
		return s.UpsertActor(ctx, id, &req, opts...)
	case models.ClassIncident:
		var req models.IncidentRequest
		if err := decode(payload, &req); err != nil {
			return 0, err
		}
		req.Dynamic = values
		return s.UpsertIncident(ctx, id, &req, opts...)
	}
	return 0, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown entity class %q", class))
}

func decode(payload []byte, dst any) error {
	if err := json.Unmarshal(payload, dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid payload")
	}
	return nil
}

// UpsertBulletin creates (id 0) or updates a bulletin and returns its id.
func (s *Service) UpsertBulletin(ctx context.Context, id int, req *models.BulletinRequest, opts ...UpsertOption) (int, error) {
	return s.upsert(ctx, models.ClassBulletin, id, &req.Common, req.Validate, opts,
		func(ctx context.Context, m *mutation) error {
			b := &models.Bulletin{}
			if !m.creating {
				loaded, err := s.store.LoadBulletin(ctx, m.id, store.LoadOptions{ForUpdate: true, Scalars: true})
				if err != nil {
					return translate(err, m.class, m.id)
				}
				if err := s.checkWrite(ctx, m, loaded.Scope()); err != nil {
					return err
				}
				b = loaded
			}
			req.ApplyTo(b)
			if strings.TrimSpace(b.Title) == "" {
				return dErrors.New(dErrors.CodeValidation, "bulletin title is required")
			}
			err := s.save(ctx, m, &b.Record,
				func(ctx context.Context) error { return s.store.InsertBulletin(ctx, b) },
				func(ctx context.Context) error { return s.store.UpdateBulletin(ctx, b) })
			if err != nil {
				return err
			}

			if err := s.replace(ctx, m, store.BulletinLabels, req.Labels); err != nil {
				return err
			}
			if err := s.replace(ctx, m, store.BulletinVerifiedLabels, req.VerifiedLabels); err != nil {
				return err
			}
			if err := s.replace(ctx, m, store.BulletinSources, req.Sources); err != nil {
				return err
			}
			if err := s.syncMedias(ctx, m, req.Medias); err != nil {
				return err
			}
			if req.GeoLocations.Set {
				geos := make([]models.GeoLocation, len(req.GeoLocations.V))
				for i, g := range req.GeoLocations.V {
					geos[i] = g.ToGeoLocation()
				}
				if err := s.store.SyncGeoLocations(ctx, m.id, geos); err != nil {
					return translate(err, m.class, 0)
				}
			}
			return nil
		})
}

// UpsertActor creates (id 0) or updates an actor and returns its id.
func (s *Service) UpsertActor(ctx context.Context, id int, req *models.ActorRequest, opts ...UpsertOption) (int, error) {
	return s.upsert(ctx, models.ClassActor, id, &req.Common, req.Validate, opts,
		func(ctx context.Context, m *mutation) error {
			a := &models.Actor{}
			if !m.creating {
				loaded, err := s.store.LoadActor(ctx, m.id, store.LoadOptions{ForUpdate: true, Scalars: true})
				if err != nil {
					return translate(err, m.class, m.id)
				}
				if err := s.checkWrite(ctx, m, loaded.Scope()); err != nil {
					return err
				}
				a = loaded
			}
			if err := req.ApplyTo(a); err != nil {
				return err
			}
			if strings.TrimSpace(a.Name) == "" && strings.TrimSpace(a.NameAr) == "" {
				return dErrors.New(dErrors.CodeValidation, "actor requires name or name_ar")
			}
			err := s.save(ctx, m, &a.Record,
				func(ctx context.Context) error { return s.store.InsertActor(ctx, a) },
				func(ctx context.Context) error { return s.store.UpdateActor(ctx, a) })
			if err != nil {
				return err
			}

			if err := s.replace(ctx, m, store.ActorEthnographies, req.Ethnographies); err != nil {
				return err
			}
			if err := s.replace(ctx, m, store.ActorNationalities, req.Nationalities); err != nil {
				return err
			}
			if err := s.replace(ctx, m, store.ActorDialects, req.Dialects); err != nil {
				return err
			}
			if err := s.syncMedias(ctx, m, req.Medias); err != nil {
				return err
			}
			if req.Profiles.Set {
				profiles := make([]store.ProfileChange, len(req.Profiles.V))
				for i, p := range req.Profiles.V {
					profiles[i] = store.ProfileChange{
						ActorProfile:     p.ToProfile(),
						SourceIDs:        models.IDs(p.Sources),
						LabelIDs:         models.IDs(p.Labels),
						VerifiedLabelIDs: models.IDs(p.VerifiedLabels),
					}
				}
				if err := s.store.SyncProfiles(ctx, m.id, profiles); err != nil {
					return translate(err, m.class, 0)
				}
			}
			return nil
		})
}

// UpsertIncident creates (id 0) or updates an incident and returns its id.
func (s *Service) UpsertIncident(ctx context.Context, id int, req *models.IncidentRequest, opts ...UpsertOption) (int, error) {
	return s.upsert(ctx, models.ClassIncident, id, &req.Common, req.Validate, opts,
		func(ctx context.Context, m *mutation) error {
			i := &models.Incident{}
			if !m.creating {
				loaded, err := s.store.LoadIncident(ctx, m.id, store.LoadOptions{ForUpdate: true, Scalars: true})
				if err != nil {
					return translate(err, m.class, m.id)
				}
				if err := s.checkWrite(ctx, m, loaded.Scope()); err != nil {
					return err
				}
				i = loaded
			}
			req.ApplyTo(i)
			if strings.TrimSpace(i.Title) == "" {
				return dErrors.New(dErrors.CodeValidation, "incident title is required")
			}
			err := s.save(ctx, m, &i.Record,
				func(ctx context.Context) error { return s.store.InsertIncident(ctx, i) },
				func(ctx context.Context) error { return s.store.UpdateIncident(ctx, i) })
			if err != nil {
				return err
			}

			if err := s.replace(ctx, m, store.IncidentLabels, req.Labels); err != nil {
				return err
			}
			if err := s.replace(ctx, m, store.IncidentPotentialViolations, req.PotentialViolations); err != nil {
				return err
			}
			return s.replace(ctx, m, store.IncidentClaimedViolations, req.ClaimedViolations)
		})
}

// upsert runs write and the shared collections in one transaction, then snapshots the
// entity and every counterpart whose relations changed.
func (s *Service) upsert(ctx context.Context, class models.Class, id int, common *models.Common,
	validate func() error, opts []UpsertOption, write func(ctx context.Context, m *mutation) error) (int, error) {
	ctx, span := tracer.Start(ctx, "entity.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("entity.class", class.String()), attribute.Int("entity.id", id))

	cfg := upsertConfig{cascade: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	op := "update"
	if id == 0 {
		op = "create"
	}
	start := time.Now()
	ctx = requestcontext.EnsureTime(ctx)

	m := &mutation{class: class, id: id, creating: id == 0}
	err := s.runUpsert(ctx, m, common, validate, cfg, write)

	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	s.metrics.ObserveUpsert(class.String(), op, outcome, time.Since(start))
	if err != nil {
		s.logger.InfoContext(ctx, "entity upsert rejected",
			"class", class, "id", id, "op", op, "code", outcome, "error", err)
		return 0, err
	}
	s.logger.InfoContext(ctx, "entity upserted",
		"class", class, "id", m.id, "op", op, "user_id", access.ActingUserID(ctx))
	return m.id, nil
}

func (s *Service) runUpsert(ctx context.Context, m *mutation, common *models.Common,
	validate func() error, cfg upsertConfig, write func(ctx context.Context, m *mutation) error) error {
	if err := validate(); err != nil {
		return err
	}
	if err := s.checkRoles(ctx, common.Roles); err != nil {
		return err
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := write(ctx, m); err != nil {
			return err
		}
		m.cascade = s.recorder.NewCascade(relation.Ref{Class: m.class, ID: m.id})
		if err := s.applyCommon(ctx, m, common); err != nil {
			return err
		}
		if _, err := s.recorder.Snapshot(ctx, m.class, m.id, revision.CauseDirect); err != nil {
			return err
		}
		if !cfg.cascade {
			return nil
		}
		return m.cascade.Flush(ctx)
	})
}

func (s *Service) checkWrite(ctx context.Context, m *mutation, scope models.Scope) error {
	if s.policy.CanWrite(ctx, scope) {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("caller may not modify %s %d", m.class, m.id))
}

// save inserts or updates the entity row, stamping it with the request time.
func (s *Service) save(ctx context.Context, m *mutation, r *models.Record, insert, update func(context.Context) error) error {
	now := requestcontext.Now(ctx)
	r.UpdatedAt = now
	if !m.creating {
		return translate(update(ctx), m.class, m.id)
	}
	r.CreatedAt = now
	if err := insert(ctx); err != nil {
		return translate(err, m.class, 0)
	}
	m.id = r.ID
	return nil
}

// applyCommon writes roles, locations, events, dynamic values and the relation sets.
func (s *Service) applyCommon(ctx context.Context, m *mutation, c *models.Common) error {
	if err := s.replace(ctx, m, store.RolesOf(m.class), c.Roles); err != nil {
		return err
	}
	if err := s.replace(ctx, m, store.LocationsOf(m.class), c.Locations); err != nil {
		return err
	}
	if c.Events.Set {
		events := make([]models.Event, len(c.Events.V))
		for i, in := range c.Events.V {
			ev, err := in.ToEvent()
			if err != nil {
				return err
			}
			events[i] = ev
		}
		if err := s.store.SyncEvents(ctx, m.class, m.id, events); err != nil {
			return translate(err, m.class, 0)
		}
	}
	if len(c.Dynamic) > 0 {
		if err := s.store.WriteDynamic(ctx, m.class, m.id, c.Dynamic); err != nil {
			return translate(err, m.class, m.id)
		}
	}

	self := relation.Ref{Class: m.class, ID: m.id}
	for _, other := range models.PrimaryClasses {
		rel := c.Relations(other)
		if !rel.Set {
			continue
		}
		desired, err := relation.DesiredFrom(other, rel.V)
		if err != nil {
			return err
		}
		changes, err := s.relations.Sync(ctx, self, other, desired)
		if err != nil {
			return err
		}
		m.cascade.Add(changes...)
	}
	return nil
}

// replace assigns an id collection when the payload carries it.
func (s *Service) replace(ctx context.Context, m *mutation, c store.Collection, refs models.Opt[[]models.IDRef]) error {
	if !refs.Set {
		return nil
	}
	if err := s.store.ReplaceSet(ctx, c, m.id, models.IDs(refs.V)); err != nil {
		return translate(err, m.class, 0)
	}
	return nil
}

func (s *Service) syncMedias(ctx context.Context, m *mutation, medias models.Opt[[]models.MediaInput]) error {
	if !medias.Set {
		return nil
	}
	items := make([]models.Media, len(medias.V))
	for i, in := range medias.V {
		items[i] = in.ToMedia()
	}
	if err := s.store.SyncMedias(ctx, m.class, m.id, items, access.ActingUserID(ctx)); err != nil {
		return translate(err, m.class, 0)
	}
	return nil
}

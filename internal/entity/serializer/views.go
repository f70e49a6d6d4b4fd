package serializer

import (
	"context"
	"fmt"

	"bayanat/internal/dynamicfield"
	"bayanat/internal/entity/models"
	"bayanat/internal/relation"
)

// Relations renders self's edges towards class other. Symmetric edges carry the
// neighbor under "other"; cross edges carry it under the counterpart's class name.
// When the caller may not read the counterpart, the counterpart becomes a stub and
// the edge is tagged restricted while its own attributes stay visible.
func (s *Serializer) Relations(ctx context.Context, self relation.Ref, other models.Class) ([]models.Dict, error) {
	kind, edges, err := s.relations.ListFor(ctx, self, other)
	if err != nil {
		return nil, err
	}
	out := make([]models.Dict, 0, len(edges))
	if len(edges) == 0 {
		return out, nil
	}

	ids := make([]int, len(edges))
	for i := range edges {
		ids[i] = kind.Counterpart(&edges[i], self).ID
	}
	summaries, err := s.summaries.Summaries(ctx, other, ids)
	if err != nil {
		return nil, fmt.Errorf("load %s counterparts: %w", other, err)
	}

	key := string(other)
	if kind.Symmetric {
		key = "other"
	}
	for i := range edges {
		e := &edges[i]
		cp := kind.Counterpart(e, self)
		d := models.Dict{
			"related_as":  kind.RelatedAsValue(e.RelatedAs),
			"probability": e.Probability,
			"comment":     e.Comment,
			"user_id":     e.UserID,
		}
		if sum, ok := summaries[cp.ID]; ok && s.policy.CanRead(ctx, sum.Scope()) {
			d[key] = sum.Dict()
		} else {
			d[key] = Restricted(cp.Class, cp.ID)
			d["restricted"] = true
		}
		out = append(out, d)
	}
	return out, nil
}

func terms(ts []models.Term) []models.Dict {
	out := make([]models.Dict, len(ts))
	for i, t := range ts {
		out[i] = t.Dict()
	}
	return out
}

func roles(rs []models.Role) []models.Dict {
	out := make([]models.Dict, len(rs))
	for i, r := range rs {
		out[i] = r.Dict()
	}
	return out
}

func locations(ls []models.LocationRef) []models.Dict {
	out := make([]models.Dict, len(ls))
	for i, l := range ls {
		out[i] = l.Dict()
	}
	return out
}

func locationRef(l *models.LocationRef) models.Dict {
	if l == nil {
		return nil
	}
	return l.Dict()
}

func stringList(l models.StringList) []string {
	if l == nil {
		return []string{}
	}
	return []string(l)
}

func events(evs []models.Event) []models.Dict {
	out := make([]models.Dict, len(evs))
	for i, ev := range evs {
		d := models.Dict{
			"id":          ev.ID,
			"title":       ev.Title,
			"title_ar":    ev.TitleAr,
			"comments":    ev.Comments,
			"comments_ar": ev.CommentsAr,
			"location":    locationRef(ev.Location),
			"eventtype":   nil,
			"from_date":   models.FormatTime(ev.FromDate),
			"to_date":     models.FormatTime(ev.ToDate),
			"estimated":   ev.Estimated,
		}
		if ev.Eventtype != nil {
			d["eventtype"] = ev.Eventtype.Dict()
		}
		out[i] = d
	}
	return out
}

func medias(ms []models.Media) []models.Dict {
	out := make([]models.Dict, len(ms))
	for i, m := range ms {
		out[i] = models.Dict{
			"id":              m.ID,
			"media_file":      m.MediaFile,
			"media_file_type": m.MediaFileType,
			"category":        m.CategoryID,
			"etag":            m.Etag,
			"title":           m.Title,
			"title_ar":        m.TitleAr,
			"comments":        m.Comments,
			"duration":        m.Duration,
			"main":            m.Main,
			"created_at":      models.FormatTimeValue(m.CreatedAt),
			"updated_at":      models.FormatTimeValue(m.UpdatedAt),
		}
	}
	return out
}

func geoLocations(gs []models.GeoLocation) []models.Dict {
	out := make([]models.Dict, len(gs))
	for i, g := range gs {
		out[i] = models.Dict{
			"id":      g.ID,
			"title":   g.Title,
			"type":    g.Type,
			"main":    g.Main,
			"lat":     g.Lat,
			"lng":     g.Lng,
			"comment": g.Comment,
		}
	}
	return out
}

// profiles renders actor profiles; missing-person fields sit flat beside the profile
// fields, the same shape the upsert payload accepts.
func profiles(ps []models.ActorProfile) []models.Dict {
	out := make([]models.Dict, len(ps))
	for i, p := range ps {
		d := p.MissingPerson.Dict()
		d["id"] = p.ID
		d["mode"] = p.Mode
		d["description"] = p.Description
		d["source_link"] = p.SourceLink
		d["publish_date"] = models.FormatTime(p.PublishDate)
		d["documentation_date"] = models.FormatTime(p.DocumentationDate)
		d["originid"] = p.OriginID
		d["sources"] = terms(p.Sources)
		d["labels"] = terms(p.Labels)
		d["verified_labels"] = terms(p.VerifiedLabels)
		out[i] = d
	}
	return out
}

// profileSources merges the sources of every profile, first occurrence wins.
func profileSources(ps []models.ActorProfile) []models.Dict {
	seen := make(map[int]struct{})
	out := []models.Dict{}
	for _, p := range ps {
		for _, t := range p.Sources {
			if _, ok := seen[t.ID]; ok {
				continue
			}
			seen[t.ID] = struct{}{}
			out = append(out, t.Dict())
		}
	}
	return out
}

func formatDynamic(f *models.DynamicField, v any) any {
	if v == nil {
		return nil
	}
	return dynamicfield.Format(f, v)
}

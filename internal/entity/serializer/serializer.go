// Package serializer renders entities as the dictionaries returned to clients and
// stored in history snapshots. Every primary-entity view passes the access gate first:
// a caller who may not read the entity receives a restricted stub.
package serializer

import (
	"context"
	"fmt"
	"strconv"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	"bayanat/internal/relation"
)

// Mode selects how much of an entity is rendered.
type Mode int

const (
	// ModeMin is the list-row view: id, title, status and assignment.
	ModeMin Mode = 1
	// ModeCompact is the bag view with locations, sources and dates.
	ModeCompact Mode = 2
	// ModeFull is the complete view including owned children and relations.
	ModeFull Mode = 3
)

// Options controls a single serialization.
type Options struct {
	Mode          Mode
	SkipRelations bool
}

// Full is the view used for snapshots and single-entity reads.
var Full = Options{Mode: ModeFull}

// ParseOptions reads the mode query parameter ("1", "2", "3"; empty means full).
func ParseOptions(mode string, skipRelations bool) (Options, error) {
	if mode == "" {
		return Options{Mode: ModeFull, SkipRelations: skipRelations}, nil
	}
	n, err := strconv.Atoi(mode)
	if err != nil || n < int(ModeMin) || n > int(ModeFull) {
		return Options{}, fmt.Errorf("invalid mode %q", mode)
	}
	return Options{Mode: Mode(n), SkipRelations: skipRelations}, nil
}

// NeedsChildren reports whether the view reads owned children and collections.
func (o Options) NeedsChildren() bool { return o.Mode != ModeMin }

// Summaries loads compact views of relation counterparts.
type Summaries interface {
	Summaries(ctx context.Context, class models.Class, ids []int) (map[int]*models.Summary, error)
}

// Relations lists an entity's edges towards one class.
type Relations interface {
	ListFor(ctx context.Context, self relation.Ref, other models.Class) (relation.Kind, []models.Edge, error)
}

// Fields lists the active dynamic fields of a class.
type Fields interface {
	Active(ctx context.Context, class models.Class) ([]models.DynamicField, error)
}

type Serializer struct {
	policy    access.Policy
	summaries Summaries
	relations Relations
	fields    Fields
}

func New(policy access.Policy, summaries Summaries, relations Relations, fields Fields) *Serializer {
	return &Serializer{policy: policy, summaries: summaries, relations: relations, fields: fields}
}

// Restricted is the stub shown in place of an entity the caller may not read.
func Restricted(class models.Class, id int) models.Dict {
	return models.Dict{"id": id, "class": string(class), "restricted": true}
}

// Compact renders a summary, or the stub when the caller may not read it.
func (s *Serializer) Compact(ctx context.Context, sum *models.Summary) models.Dict {
	if !s.policy.CanRead(ctx, sum.Scope()) {
		return Restricted(sum.Class, sum.ID)
	}
	return sum.Dict()
}

func (s *Serializer) Bulletin(ctx context.Context, b *models.Bulletin, opts Options) (models.Dict, error) {
	if !s.policy.CanRead(ctx, b.Scope()) {
		return Restricted(models.ClassBulletin, b.ID), nil
	}
	d := models.Dict{
		"id":     b.ID,
		"class":  string(models.ClassBulletin),
		"title":  b.Title,
		"status": b.Status,
	}
	switch opts.Mode {
	case ModeMin:
		minimal(d, &b.Record)
		return d, nil
	case ModeCompact:
		d["title_ar"] = b.TitleAr
		d["description"] = b.Description
		d["publish_date"] = models.FormatTime(b.PublishDate)
		d["documentation_date"] = models.FormatTime(b.DocumentationDate)
		d["locations"] = locations(b.Locations)
		d["sources"] = terms(b.Sources)
		d["originid"] = b.OriginID
		return d, nil
	}

	record(d, &b.Record)
	d["title_ar"] = b.TitleAr
	d["sjac_title"] = b.SjacTitle
	d["sjac_title_ar"] = b.SjacTitleAr
	d["originid"] = b.OriginID
	d["source_link"] = b.SourceLink
	d["publish_date"] = models.FormatTime(b.PublishDate)
	d["documentation_date"] = models.FormatTime(b.DocumentationDate)
	d["labels"] = terms(b.Labels)
	d["verified_labels"] = terms(b.VerifiedLabels)
	d["sources"] = terms(b.Sources)
	d["locations"] = locations(b.Locations)
	d["events"] = events(b.Events)
	d["medias"] = medias(b.Medias)
	d["geo_locations"] = geoLocations(b.GeoLocations)
	return d, s.finish(ctx, d, models.ClassBulletin, &b.Record, opts)
}

func (s *Serializer) Actor(ctx context.Context, a *models.Actor, opts Options) (models.Dict, error) {
	if !s.policy.CanRead(ctx, a.Scope()) {
		return Restricted(models.ClassActor, a.ID), nil
	}
	d := models.Dict{
		"id":     a.ID,
		"class":  string(models.ClassActor),
		"name":   a.Name,
		"status": a.Status,
	}
	switch opts.Mode {
	case ModeMin:
		minimal(d, &a.Record)
		return d, nil
	case ModeCompact:
		d["name_ar"] = a.NameAr
		d["type"] = a.Type
		d["sex"] = a.Sex
		d["age"] = a.Age
		d["description"] = a.Description
		d["origin_place"] = locationRef(a.OriginPlace)
		d["locations"] = locations(a.Locations)
		d["sources"] = profileSources(a.Profiles)
		return d, nil
	}

	record(d, &a.Record)
	d["type"] = a.Type
	d["name_ar"] = a.NameAr
	d["first_name"] = a.FirstName
	d["first_name_ar"] = a.FirstNameAr
	d["middle_name"] = a.MiddleName
	d["middle_name_ar"] = a.MiddleNameAr
	d["last_name"] = a.LastName
	d["last_name_ar"] = a.LastNameAr
	d["nickname"] = a.Nickname
	d["nickname_ar"] = a.NicknameAr
	d["father_name"] = a.FatherName
	d["father_name_ar"] = a.FatherNameAr
	d["mother_name"] = a.MotherName
	d["mother_name_ar"] = a.MotherNameAr
	d["sex"] = a.Sex
	d["age"] = a.Age
	d["civilian"] = a.Civilian
	d["family_status"] = a.FamilyStatus
	d["no_children"] = a.NoChildren
	d["occupation"] = a.Occupation
	d["occupation_ar"] = a.OccupationAr
	d["position"] = a.Position
	d["position_ar"] = a.PositionAr
	d["origin_place"] = locationRef(a.OriginPlace)
	d["id_number"] = a.IDNumber.List()
	d["ethnographies"] = terms(a.Ethnographies)
	d["nationalities"] = terms(a.Nationalities)
	d["dialects"] = terms(a.Dialects)
	d["locations"] = locations(a.Locations)
	d["events"] = events(a.Events)
	d["medias"] = medias(a.Medias)
	d["actor_profiles"] = profiles(a.Profiles)
	return d, s.finish(ctx, d, models.ClassActor, &a.Record, opts)
}

func (s *Serializer) Incident(ctx context.Context, i *models.Incident, opts Options) (models.Dict, error) {
	if !s.policy.CanRead(ctx, i.Scope()) {
		return Restricted(models.ClassIncident, i.ID), nil
	}
	d := models.Dict{
		"id":     i.ID,
		"class":  string(models.ClassIncident),
		"title":  i.Title,
		"status": i.Status,
	}
	switch opts.Mode {
	case ModeMin:
		minimal(d, &i.Record)
		return d, nil
	case ModeCompact:
		d["title_ar"] = i.TitleAr
		d["description"] = i.Description
		d["locations"] = locations(i.Locations)
		d["labels"] = terms(i.Labels)
		return d, nil
	}

	record(d, &i.Record)
	d["title_ar"] = i.TitleAr
	d["labels"] = terms(i.Labels)
	d["locations"] = locations(i.Locations)
	d["events"] = events(i.Events)
	d["potential_violations"] = terms(i.PotentialViolations)
	d["claimed_violations"] = terms(i.ClaimedViolations)
	return d, s.finish(ctx, d, models.ClassIncident, &i.Record, opts)
}

// finish adds dynamic values and, unless skipped, the three relation collections.
func (s *Serializer) finish(ctx context.Context, d models.Dict, class models.Class, r *models.Record, opts Options) error {
	if err := s.dynamic(ctx, d, class, r); err != nil {
		return err
	}
	if opts.SkipRelations {
		return nil
	}
	self := relation.Ref{Class: class, ID: r.ID}
	for _, other := range models.PrimaryClasses {
		views, err := s.Relations(ctx, self, other)
		if err != nil {
			return err
		}
		d[other.RelationsKey()] = views
	}
	return nil
}

func (s *Serializer) dynamic(ctx context.Context, d models.Dict, class models.Class, r *models.Record) error {
	if s.fields == nil {
		return nil
	}
	fields, err := s.fields.Active(ctx, class)
	if err != nil {
		return err
	}
	for i := range fields {
		f := &fields[i]
		v, ok := r.Dynamic[f.Name]
		if !ok {
			continue
		}
		d[f.Name] = formatDynamic(f, v)
	}
	return nil
}

func minimal(d models.Dict, r *models.Record) {
	d["assigned_to"] = r.AssignedTo.Dict()
	d["first_peer_reviewer"] = r.FirstPeerReviewer.Dict()
	d["_status"] = r.Status
}

func record(d models.Dict, r *models.Record) {
	d["description"] = r.Description
	d["comments"] = r.Comments
	d["review"] = r.Review
	d["review_action"] = r.ReviewAction
	d["tags"] = stringList(r.Tags)
	d["assigned_to"] = r.AssignedTo.Dict()
	d["first_peer_reviewer"] = r.FirstPeerReviewer.Dict()
	d["second_peer_reviewer"] = r.SecondPeerReviewer.Dict()
	d["roles"] = roles(r.Roles)
	d["deleted"] = r.Deleted
	d["created_at"] = models.FormatTimeValue(r.CreatedAt)
	d["updated_at"] = models.FormatTimeValue(r.UpdatedAt)
}

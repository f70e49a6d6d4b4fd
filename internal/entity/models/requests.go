package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "bayanat/pkg/domain-errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs struct tag validation and reports failures as a validation error.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid payload")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return dErrors.New(dErrors.CodeValidation, strings.Join(msgs, "; "))
}

// RelationInput is one entry of a relations collection. The counterpart is named by
// its class key ({"actor": {"id": N}}) or by "other".
type RelationInput struct {
	Bulletin    *IDRef `json:"bulletin"`
	Actor       *IDRef `json:"actor"`
	Incident    *IDRef `json:"incident"`
	Other       *IDRef `json:"other"`
	RelatedAs   Codes  `json:"related_as"`
	Probability *int   `json:"probability" validate:"omitempty,min=0,max=3"`
	Comment     string `json:"comment"`
}

// Counterpart returns the referenced id of class c.
func (r RelationInput) Counterpart(c Class) (int, bool) {
	var ref *IDRef
	switch c {
	case ClassBulletin:
		ref = r.Bulletin
	case ClassActor:
		ref = r.Actor
	case ClassIncident:
		ref = r.Incident
	}
	if ref == nil {
		ref = r.Other
	}
	if ref == nil {
		return 0, false
	}
	return int(*ref), true
}

// EventInput is an owned event in an upsert payload.
type EventInput struct {
	ID         *int      `json:"id"`
	Title      string    `json:"title"`
	TitleAr    string    `json:"title_ar"`
	Comments   string    `json:"comments"`
	CommentsAr string    `json:"comments_ar"`
	Location   *IDRef    `json:"location"`
	Eventtype  *IDRef    `json:"eventtype"`
	FromDate   *DateTime `json:"from_date"`
	ToDate     *DateTime `json:"to_date"`
	Estimated  bool      `json:"estimated"`
}

// ToEvent converts the input into a storable event.
func (in EventInput) ToEvent() (Event, error) {
	ev := Event{
		Title:      in.Title,
		TitleAr:    in.TitleAr,
		Comments:   in.Comments,
		CommentsAr: in.CommentsAr,
		Estimated:  in.Estimated,
	}
	if in.ID != nil {
		ev.ID = *in.ID
	}
	if in.Location != nil {
		id := int(*in.Location)
		ev.LocationID = &id
	}
	if in.Eventtype != nil {
		id := int(*in.Eventtype)
		ev.EventtypeID = &id
	}
	if in.FromDate != nil {
		t := in.FromDate.Time
		ev.FromDate = &t
	}
	if in.ToDate != nil {
		t := in.ToDate.Time
		ev.ToDate = &t
	}
	if ev.FromDate != nil && ev.ToDate != nil && ev.ToDate.Before(*ev.FromDate) {
		return Event{}, dErrors.New(dErrors.CodeValidation, "event to_date precedes from_date")
	}
	return ev, nil
}

// MediaInput is an owned media item in an upsert payload.
type MediaInput struct {
	ID            *int   `json:"id"`
	MediaFile     string `json:"media_file" validate:"required"`
	MediaFileType string `json:"media_file_type"`
	Category      *IDRef `json:"category"`
	Etag          string `json:"etag"`
	Title         string `json:"title"`
	TitleAr       string `json:"title_ar"`
	Comments      string `json:"comments"`
	Duration      string `json:"duration"`
	Main          bool   `json:"main"`
}

func (in MediaInput) ToMedia() Media {
	m := Media{
		MediaFile:     in.MediaFile,
		MediaFileType: in.MediaFileType,
		Etag:          strings.TrimSpace(in.Etag),
		Title:         in.Title,
		TitleAr:       in.TitleAr,
		Comments:      in.Comments,
		Duration:      in.Duration,
		Main:          in.Main,
	}
	if in.ID != nil {
		m.ID = *in.ID
	}
	if in.Category != nil {
		id := int(*in.Category)
		m.CategoryID = &id
	}
	return m
}

// GeoLocationInput is an owned bulletin marker in an upsert payload.
type GeoLocationInput struct {
	ID      *int    `json:"id"`
	Title   string  `json:"title"`
	Type    string  `json:"type"`
	Main    bool    `json:"main"`
	Lat     float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng     float64 `json:"lng" validate:"gte=-180,lte=180"`
	Comment string  `json:"comment"`
}

func (in GeoLocationInput) ToGeoLocation() GeoLocation {
	g := GeoLocation{Title: in.Title, Type: in.Type, Main: in.Main, Lat: in.Lat, Lng: in.Lng, Comment: in.Comment}
	if in.ID != nil {
		g.ID = *in.ID
	}
	return g
}

// ProfileInput is an owned actor profile. Missing-person fields sit flat beside the
// profile fields and are kept only for mode 3.
type ProfileInput struct {
	ID                *int      `json:"id"`
	Mode              int       `json:"mode" validate:"omitempty,oneof=1 2 3"`
	Description       string    `json:"description"`
	SourceLink        string    `json:"source_link"`
	PublishDate       *DateTime `json:"publish_date"`
	DocumentationDate *DateTime `json:"documentation_date"`
	OriginID          string    `json:"originid"`
	Sources           []IDRef   `json:"sources"`
	Labels            []IDRef   `json:"labels"`
	VerifiedLabels    []IDRef   `json:"verified_labels"`
	MissingPerson
}

func (in ProfileInput) ToProfile() ActorProfile {
	p := ActorProfile{
		Mode:        in.Mode,
		Description: in.Description,
		SourceLink:  in.SourceLink,
		OriginID:    in.OriginID,
	}
	if p.Mode == 0 {
		p.Mode = ProfileModeProfile
	}
	if in.ID != nil {
		p.ID = *in.ID
	}
	if in.PublishDate != nil {
		t := in.PublishDate.Time
		p.PublishDate = &t
	}
	if in.DocumentationDate != nil {
		t := in.DocumentationDate.Time
		p.DocumentationDate = &t
	}
	if p.Mode == ProfileModeMissingPerson {
		mp := in.MissingPerson
		p.MissingPerson = &mp
	}
	return p
}

// Common holds the payload keys shared by all primary entities.
type Common struct {
	Status      Opt[string]       `json:"status"`
	Description Opt[string]       `json:"description"`
	Comments    Opt[string]       `json:"comments"`
	Tags        Opt[[]string]     `json:"tags"`
	Roles       Opt[[]IDRef]      `json:"roles"`
	Locations   Opt[[]IDRef]      `json:"locations"`
	Events      Opt[[]EventInput] `json:"events"`

	BulletinRelations Opt[[]RelationInput] `json:"bulletin_relations"`
	ActorRelations    Opt[[]RelationInput] `json:"actor_relations"`
	IncidentRelations Opt[[]RelationInput] `json:"incident_relations"`

	// Dynamic carries values for active dynamic fields, keyed by column name.
	Dynamic map[string]any `json:"-"`
}

func (c *Common) applyRecord(r *Record) {
	c.Status.Apply(&r.Status, "")
	c.Description.Apply(&r.Description, "")
	c.Comments.Apply(&r.Comments, "")
	if c.Tags.Set {
		r.Tags = NormalizeTags(c.Tags.V)
	}
}

// Relations returns the relations collection targeting class other.
func (c *Common) Relations(other Class) Opt[[]RelationInput] {
	switch other {
	case ClassBulletin:
		return c.BulletinRelations
	case ClassActor:
		return c.ActorRelations
	case ClassIncident:
		return c.IncidentRelations
	}
	return Opt[[]RelationInput]{}
}

// Items lists every nested item that carries validation tags.
func (c *Common) items() []any {
	var out []any
	for _, class := range PrimaryClasses {
		for _, rel := range c.Relations(class).V {
			out = append(out, rel)
		}
	}
	return out
}

// BulletinRequest is the bulletin upsert payload.
type BulletinRequest struct {
	Common
	Title             Opt[string]   `json:"title"`
	TitleAr           Opt[string]   `json:"title_ar"`
	SjacTitle         Opt[string]   `json:"sjac_title"`
	SjacTitleAr       Opt[string]   `json:"sjac_title_ar"`
	OriginID          Opt[string]   `json:"originid"`
	SourceLink        Opt[string]   `json:"source_link"`
	PublishDate       Opt[DateTime] `json:"publish_date"`
	DocumentationDate Opt[DateTime] `json:"documentation_date"`

	Labels         Opt[[]IDRef]            `json:"labels"`
	VerifiedLabels Opt[[]IDRef]            `json:"verified_labels"`
	Sources        Opt[[]IDRef]            `json:"sources"`
	Medias         Opt[[]MediaInput]       `json:"medias"`
	GeoLocations   Opt[[]GeoLocationInput] `json:"geo_locations"`
}

// ApplyTo assigns the present scalar fields onto b.
func (r *BulletinRequest) ApplyTo(b *Bulletin) {
	r.applyRecord(&b.Record)
	r.Title.Apply(&b.Title, "")
	r.TitleAr.Apply(&b.TitleAr, "")
	r.SjacTitle.Apply(&b.SjacTitle, "")
	r.SjacTitleAr.Apply(&b.SjacTitleAr, "")
	r.OriginID.Apply(&b.OriginID, "")
	r.SourceLink.Apply(&b.SourceLink, "")
	ApplyTime(r.PublishDate, &b.PublishDate)
	ApplyTime(r.DocumentationDate, &b.DocumentationDate)
}

func (r *BulletinRequest) Validate() error {
	items := r.items()
	for _, m := range r.Medias.V {
		items = append(items, m)
	}
	for _, g := range r.GeoLocations.V {
		items = append(items, g)
	}
	return validateAll(items)
}

// ActorRequest is the actor upsert payload.
type ActorRequest struct {
	Common
	Type         Opt[string]    `json:"type"`
	Name         Opt[string]    `json:"name"`
	NameAr       Opt[string]    `json:"name_ar"`
	FirstName    Opt[string]    `json:"first_name"`
	FirstNameAr  Opt[string]    `json:"first_name_ar"`
	MiddleName   Opt[string]    `json:"middle_name"`
	MiddleNameAr Opt[string]    `json:"middle_name_ar"`
	LastName     Opt[string]    `json:"last_name"`
	LastNameAr   Opt[string]    `json:"last_name_ar"`
	Nickname     Opt[string]    `json:"nickname"`
	NicknameAr   Opt[string]    `json:"nickname_ar"`
	FatherName   Opt[string]    `json:"father_name"`
	FatherNameAr Opt[string]    `json:"father_name_ar"`
	MotherName   Opt[string]    `json:"mother_name"`
	MotherNameAr Opt[string]    `json:"mother_name_ar"`
	Sex          Opt[string]    `json:"sex"`
	Age          Opt[string]    `json:"age"`
	Civilian     Opt[string]    `json:"civilian"`
	FamilyStatus Opt[string]    `json:"family_status"`
	NoChildren   Opt[int]       `json:"no_children"`
	Occupation   Opt[string]    `json:"occupation"`
	OccupationAr Opt[string]    `json:"occupation_ar"`
	Position     Opt[string]    `json:"position"`
	PositionAr   Opt[string]    `json:"position_ar"`
	OriginPlace  Opt[IDRef]     `json:"origin_place"`
	IDNumber     Opt[IDNumbers] `json:"id_number"`

	Ethnographies Opt[[]IDRef]        `json:"ethnographies"`
	Nationalities Opt[[]IDRef]        `json:"nationalities"`
	Dialects      Opt[[]IDRef]        `json:"dialects"`
	Profiles      Opt[[]ProfileInput] `json:"actor_profiles"`
	Medias        Opt[[]MediaInput]   `json:"medias"`
}

// ApplyTo assigns the present scalar fields onto a. An Entity keeps only its names;
// a Person's name is recomputed from its parts.
func (r *ActorRequest) ApplyTo(a *Actor) error {
	r.applyRecord(&a.Record)
	if r.Type.Set {
		switch t := r.Type.V; {
		case r.Type.Null:
			a.Type = ActorPerson
		case t == ActorPerson || t == ActorEntity:
			a.Type = t
		default:
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid actor type %q", t))
		}
	}
	if a.Type == "" {
		a.Type = ActorPerson
	}
	r.Name.Apply(&a.Name, "")
	r.NameAr.Apply(&a.NameAr, "")
	r.IDNumber.Apply(&a.IDNumber, IDNumbers{})
	if a.IDNumber == nil {
		a.IDNumber = IDNumbers{}
	}
	if r.OriginPlace.Set {
		if r.OriginPlace.Null {
			a.OriginPlaceID = nil
		} else {
			id := int(r.OriginPlace.V)
			a.OriginPlaceID = &id
		}
	}

	if a.Type == ActorEntity {
		a.ClearPersonFields()
		return nil
	}

	r.FirstName.Apply(&a.FirstName, "")
	r.FirstNameAr.Apply(&a.FirstNameAr, "")
	r.MiddleName.Apply(&a.MiddleName, "")
	r.MiddleNameAr.Apply(&a.MiddleNameAr, "")
	r.LastName.Apply(&a.LastName, "")
	r.LastNameAr.Apply(&a.LastNameAr, "")
	r.Nickname.Apply(&a.Nickname, "")
	r.NicknameAr.Apply(&a.NicknameAr, "")
	r.FatherName.Apply(&a.FatherName, "")
	r.FatherNameAr.Apply(&a.FatherNameAr, "")
	r.MotherName.Apply(&a.MotherName, "")
	r.MotherNameAr.Apply(&a.MotherNameAr, "")
	r.Sex.Apply(&a.Sex, "")
	r.Age.Apply(&a.Age, "")
	r.Civilian.Apply(&a.Civilian, "")
	r.FamilyStatus.Apply(&a.FamilyStatus, "")
	r.NoChildren.ApplyPtr(&a.NoChildren)
	r.Occupation.Apply(&a.Occupation, "")
	r.OccupationAr.Apply(&a.OccupationAr, "")
	r.Position.Apply(&a.Position, "")
	r.PositionAr.Apply(&a.PositionAr, "")
	a.RecomputeNames()
	return nil
}

func (r *ActorRequest) Validate() error {
	items := r.items()
	for _, m := range r.Medias.V {
		items = append(items, m)
	}
	for _, p := range r.Profiles.V {
		items = append(items, p)
	}
	if r.NoChildren.Valid() && r.NoChildren.V < 0 {
		return dErrors.New(dErrors.CodeValidation, "no_children must not be negative")
	}
	return validateAll(items)
}

// IncidentRequest is the incident upsert payload.
type IncidentRequest struct {
	Common
	Title   Opt[string] `json:"title"`
	TitleAr Opt[string] `json:"title_ar"`

	Labels              Opt[[]IDRef] `json:"labels"`
	PotentialViolations Opt[[]IDRef] `json:"potential_violations"`
	ClaimedViolations   Opt[[]IDRef] `json:"claimed_violations"`
}

func (r *IncidentRequest) ApplyTo(i *Incident) {
	r.applyRecord(&i.Record)
	r.Title.Apply(&i.Title, "")
	r.TitleAr.Apply(&i.TitleAr, "")
}

func (r *IncidentRequest) Validate() error {
	return validateAll(r.items())
}

func validateAll(items []any) error {
	for _, item := range items {
		if err := Validate(item); err != nil {
			return err
		}
	}
	return nil
}

// ReviewRequest updates review fields and status in one write.
type ReviewRequest struct {
	Review       string `json:"review"`
	ReviewAction string `json:"review_action"`
	Status       string `json:"status" validate:"required"`
}

// AssignRequest changes assignment fields; absent keys are left untouched.
type AssignRequest struct {
	AssignedTo         Opt[IDRef] `json:"assigned_to"`
	FirstPeerReviewer  Opt[IDRef] `json:"first_peer_reviewer"`
	SecondPeerReviewer Opt[IDRef] `json:"second_peer_reviewer"`
}

// ApplyTo assigns the present fields onto r.
func (a AssignRequest) ApplyTo(r *Record) {
	applyRef(a.AssignedTo, &r.AssignedToID)
	applyRef(a.FirstPeerReviewer, &r.FirstPeerReviewerID)
	applyRef(a.SecondPeerReviewer, &r.SecondPeerReviewerID)
}

// Targets lists the user ids the request assigns.
func (a AssignRequest) Targets() []int {
	var out []int
	for _, o := range []Opt[IDRef]{a.AssignedTo, a.FirstPeerReviewer, a.SecondPeerReviewer} {
		if o.Valid() {
			out = append(out, int(o.V))
		}
	}
	return out
}

func applyRef(o Opt[IDRef], dst **int) {
	if !o.Set {
		return
	}
	if o.Null {
		*dst = nil
		return
	}
	id := int(o.V)
	*dst = &id
}

package serializer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	"bayanat/internal/relation"
)

type fakeSummaries map[models.Class]map[int]*models.Summary

func (f fakeSummaries) Summaries(_ context.Context, class models.Class, ids []int) (map[int]*models.Summary, error) {
	out := make(map[int]*models.Summary)
	for _, id := range ids {
		if s, ok := f[class][id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

type fakeRelations map[models.Class][]models.Edge

func (f fakeRelations) ListFor(_ context.Context, self relation.Ref, other models.Class) (relation.Kind, []models.Edge, error) {
	k, err := relation.KindFor(self.Class, other)
	if err != nil {
		return relation.Kind{}, nil, err
	}
	return k, f[other], nil
}

type fakeFields []models.DynamicField

func (f fakeFields) Active(_ context.Context, class models.Class) ([]models.DynamicField, error) {
	var out []models.DynamicField
	for _, field := range f {
		if field.EntityType == class {
			out = append(out, field)
		}
	}
	return out, nil
}

type SerializerSuite struct {
	suite.Suite
	summaries fakeSummaries
	relations fakeRelations
	fields    fakeFields
}

func TestSerializerSuite(t *testing.T) {
	suite.Run(t, new(SerializerSuite))
}

func (s *SerializerSuite) SetupTest() {
	s.summaries = fakeSummaries{
		models.ClassActor: {
			2: {ID: 2, Class: models.ClassActor, Title: "Bob", Status: "Peer Reviewed"},
			3: {ID: 3, Class: models.ClassActor, Title: "Carol", RoleIDs: models.Codes{7}},
		},
		models.ClassBulletin: {
			10: {ID: 10, Class: models.ClassBulletin, Title: "Report", TitleAr: "تقرير"},
		},
	}
	s.relations = fakeRelations{}
	s.fields = nil
}

func (s *SerializerSuite) serializer(mode access.Mode) *Serializer {
	return New(access.NewPolicy(mode), s.summaries, s.relations, s.fields)
}

func caller(roles ...int) context.Context {
	return access.WithCaller(context.Background(), &access.Caller{UserID: 5, RoleIDs: roles})
}

func ptr[T any](v T) *T { return &v }

func (s *SerializerSuite) TestRestrictedStub() {
	b := &models.Bulletin{Record: models.Record{ID: 4, RoleIDs: []int{1}}, Title: "secret"}
	ser := s.serializer(access.Restrictive)

	d, err := ser.Bulletin(caller(2), b, Full)
	s.Require().NoError(err)
	s.Equal(models.Dict{"id": 4, "class": "bulletin", "restricted": true}, d)

	d, err = ser.Bulletin(caller(1), b, Full)
	s.Require().NoError(err)
	s.Equal("secret", d["title"])

	admin := access.WithCaller(context.Background(), &access.Caller{UserID: 1, Admin: true})
	d, err = ser.Bulletin(admin, b, Options{Mode: ModeMin})
	s.Require().NoError(err)
	s.Equal("secret", d["title"])
}

func (s *SerializerSuite) TestMinimalView() {
	a := &models.Actor{
		Record: models.Record{ID: 2, Status: "Assigned",
			AssignedTo: &models.UserRef{ID: 9, Username: "ana", Name: "Ana"}},
		Name: "Bob",
	}
	d, err := s.serializer(access.Permissive).Actor(context.Background(), a, Options{Mode: ModeMin})
	s.Require().NoError(err)
	s.Equal(models.Dict{
		"id":                  2,
		"class":               "actor",
		"name":                "Bob",
		"status":              "Assigned",
		"_status":             "Assigned",
		"assigned_to":         models.Dict{"id": 9, "username": "ana", "name": "Ana"},
		"first_peer_reviewer": models.Dict(nil),
	}, d)
}

func (s *SerializerSuite) TestSymmetricRelationsCarryOther() {
	s.relations[models.ClassActor] = []models.Edge{
		{LeftID: 1, RightID: 2, RelatedAs: models.Codes{4}, Probability: ptr(2), Comment: "co-worker"},
	}
	a := &models.Actor{Record: models.Record{ID: 1}, Name: "Alice"}
	d, err := s.serializer(access.Permissive).Actor(context.Background(), a, Full)
	s.Require().NoError(err)

	rels := d["actor_relations"].([]models.Dict)
	s.Require().Len(rels, 1)
	s.Equal(4, rels[0]["related_as"])
	s.Equal(2, rels[0]["other"].(models.Dict)["id"])
	s.Equal("Bob", rels[0]["other"].(models.Dict)["name"])
	s.NotContains(rels[0], "restricted")

	s.Empty(d["bulletin_relations"])
	s.Empty(d["incident_relations"])
}

func (s *SerializerSuite) TestCrossRelationsUseClassKey() {
	s.relations[models.ClassBulletin] = []models.Edge{
		{LeftID: 1, RightID: 10, RelatedAs: models.Codes{1, 3}},
	}
	a := &models.Actor{Record: models.Record{ID: 1}}
	d, err := s.serializer(access.Permissive).Actor(context.Background(), a, Full)
	s.Require().NoError(err)

	rels := d["bulletin_relations"].([]models.Dict)
	s.Require().Len(rels, 1)
	s.Equal([]int{1, 3}, rels[0]["related_as"])
	s.Equal("Report", rels[0]["bulletin"].(models.Dict)["title"])
}

func (s *SerializerSuite) TestRestrictedCounterpartKeepsEdgeAttributes() {
	s.relations[models.ClassActor] = []models.Edge{
		{LeftID: 1, RightID: 3, RelatedAs: models.Codes{1}, Comment: "sibling"},
	}
	a := &models.Actor{Record: models.Record{ID: 1}}
	d, err := s.serializer(access.Restrictive).Actor(caller(), a, Full)
	s.Require().NoError(err)
	s.Equal(models.Dict{"id": 1, "class": "actor", "restricted": true}, d)

	d, err = s.serializer(access.Permissive).Actor(caller(), a, Full)
	s.Require().NoError(err)
	rels := d["actor_relations"].([]models.Dict)
	s.Require().Len(rels, 1)
	s.Equal(true, rels[0]["restricted"])
	s.Equal("sibling", rels[0]["comment"])
	s.Equal(Restricted(models.ClassActor, 3), rels[0]["other"])
}

func (s *SerializerSuite) TestSkipRelations() {
	b := &models.Bulletin{Record: models.Record{ID: 10}}
	d, err := s.serializer(access.Permissive).Bulletin(context.Background(), b,
		Options{Mode: ModeFull, SkipRelations: true})
	s.Require().NoError(err)
	for _, c := range models.PrimaryClasses {
		s.NotContains(d, c.RelationsKey())
	}
	s.Contains(d, "events")
}

func (s *SerializerSuite) TestDynamicValuesFormatted() {
	s.fields = fakeFields{
		{Name: "dob", EntityType: models.ClassActor, FieldType: models.FieldDatetime},
		{Name: "height", EntityType: models.ClassActor, FieldType: models.FieldInteger},
	}
	a := &models.Actor{Record: models.Record{ID: 1, Dynamic: map[string]any{
		"dob":    "1990-01-01T00:00:00+00:00",
		"height": json.Number("180"),
	}}}
	d, err := s.serializer(access.Permissive).Actor(context.Background(), a,
		Options{Mode: ModeFull, SkipRelations: true})
	s.Require().NoError(err)
	s.Equal("1990-01-01T00:00", d["dob"])
	s.Equal(int64(180), d["height"])
}

func (s *SerializerSuite) TestFullViewRoundTrips() {
	published := time.Date(2021, 3, 4, 5, 6, 0, 0, time.UTC)
	b := &models.Bulletin{
		Record: models.Record{
			ID: 10, Status: "Human Created", Description: "desc", Comments: "first",
			Tags: models.StringList{"a", "b"}, Roles: []models.Role{{ID: 3, Name: "R"}},
		},
		Title:       "Report",
		SourceLink:  "https://example.org/r",
		PublishDate: &published,
		Labels:      []models.Term{{ID: 7, Title: "Torture"}},
		Events: []models.Event{{ID: 5, Title: "Raid", FromDate: &published,
			Location: &models.LocationRef{ID: 2, Title: "Aleppo"}}},
		Medias:       []models.Media{{ID: 8, MediaFile: "f.jpg", Etag: "abc", Main: true}},
		GeoLocations: []models.GeoLocation{{ID: 4, Title: "pin", Lat: 33.5, Lng: 36.3}},
	}
	d, err := s.serializer(access.Permissive).Bulletin(context.Background(), b,
		Options{Mode: ModeFull, SkipRelations: true})
	s.Require().NoError(err)

	body, err := json.Marshal(d)
	s.Require().NoError(err)
	var req models.BulletinRequest
	s.Require().NoError(json.Unmarshal(body, &req))

	var back models.Bulletin
	req.ApplyTo(&back)
	s.Equal(b.Title, back.Title)
	s.Equal(b.Description, back.Description)
	s.Equal(b.SourceLink, back.SourceLink)
	s.Equal(b.Tags, back.Tags)
	s.True(b.PublishDate.Equal(*back.PublishDate))
	s.Equal([]int{3}, models.IDs(req.Roles.V))
	s.Equal([]int{7}, models.IDs(req.Labels.V))

	s.Require().Len(req.Events.V, 1)
	ev, err := req.Events.V[0].ToEvent()
	s.Require().NoError(err)
	s.Equal(5, ev.ID)
	s.Equal(2, *ev.LocationID)
	s.Require().Len(req.Medias.V, 1)
	s.Equal("abc", req.Medias.V[0].ToMedia().Etag)
	s.Require().Len(req.GeoLocations.V, 1)
	s.InDelta(36.3, req.GeoLocations.V[0].Lng, 1e-9)
}

func (s *SerializerSuite) TestActorProfilesFlattenMissingPerson() {
	a := &models.Actor{
		Record: models.Record{ID: 1},
		Type:   models.ActorPerson,
		Profiles: []models.ActorProfile{{
			ID: 3, Mode: models.ProfileModeMissingPerson,
			MissingPerson: &models.MissingPerson{CaseStatus: "open", Height: ptr(170)},
			Sources:       []models.Term{{ID: 2, Title: "Witness"}},
		}},
		IDNumber: models.IDNumbers{{Type: "1", Number: "A-1"}},
	}
	d, err := s.serializer(access.Permissive).Actor(context.Background(), a,
		Options{Mode: ModeFull, SkipRelations: true})
	s.Require().NoError(err)

	p := d["actor_profiles"].([]models.Dict)[0]
	s.Equal("open", p["case_status"])
	s.Equal(3, p["mode"])
	s.Equal([]any{models.Dict{"type": "1", "number": "A-1"}}, d["id_number"])

	compact, err := s.serializer(access.Permissive).Actor(context.Background(), a, Options{Mode: ModeCompact})
	s.Require().NoError(err)
	s.Equal([]models.Dict{{"id": 2, "title": "Witness", "title_ar": ""}}, compact["sources"])
}

func (s *SerializerSuite) TestParseOptions() {
	opts, err := ParseOptions("", false)
	s.Require().NoError(err)
	s.Equal(Full, opts)

	opts, err = ParseOptions("2", true)
	s.Require().NoError(err)
	s.Equal(Options{Mode: ModeCompact, SkipRelations: true}, opts)

	_, err = ParseOptions("4", false)
	s.Error(err)
}

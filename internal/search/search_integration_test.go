//go:build integration

package search_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	"bayanat/internal/platform/postgres"
	"bayanat/internal/search"
	"bayanat/internal/taxonomy"
	"bayanat/pkg/testutil/containers"
)

type SearchSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	taxonomy *taxonomy.Service
}

func TestSearchSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SearchSuite))
}

func (s *SearchSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
}

func (s *SearchSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(context.Background()))
	db := s.postgres.DB
	s.taxonomy = taxonomy.NewService(taxonomy.NewPostgresStore(db), postgres.NewTxRunner(db))
}

func ptr[T any](v T) *T { return &v }

func (s *SearchSuite) exec(query string, args ...any) {
	_, err := s.postgres.DB.ExecContext(context.Background(), query, args...)
	s.Require().NoError(err)
}

func (s *SearchSuite) location(title string, lat, lng float64, parent *int) int {
	l := &models.Location{Title: title, Lat: &lat, Lng: &lng, ParentID: parent}
	s.Require().NoError(s.taxonomy.SaveLocation(context.Background(), l))
	return l.ID
}

func (s *SearchSuite) bulletin(title string, tags ...string) int {
	var id int
	err := s.postgres.DB.GetContext(context.Background(), &id,
		`INSERT INTO bulletin (title, tags) VALUES ($1, $2) RETURNING id`, title, models.StringList(tags))
	s.Require().NoError(err)
	return id
}

func (s *SearchSuite) search(f search.Filter) []int {
	ids, err := search.New(s.postgres.DB).Search(context.Background(), models.ClassBulletin, f)
	s.Require().NoError(err)
	return ids
}

func near(lat, lng, meters float64) *search.Near {
	return &search.Near{Point: models.Point{Lat: lat, Lng: lng}, Meters: meters}
}

func (s *SearchSuite) TestRadiusOverAttachedLocation() {
	l := s.location("Damascus", 33.5, 36.3, nil)
	b := s.bulletin("Report")
	s.exec(`INSERT INTO bulletin_locations (bulletin_id, location_id) VALUES ($1, $2)`, b, l)

	s.Equal([]int{b}, s.search(search.Filter{Near: near(33.50001, 36.30001, 100)}))
	s.Empty(s.search(search.Filter{Near: near(33.50001, 36.30001, 1)}))
}

func (s *SearchSuite) TestRadiusOverGeoAndEventLocations() {
	l := s.location("Homs", 34.73, 36.71, nil)
	withMarker := s.bulletin("Marker")
	withEvent := s.bulletin("Event")
	s.exec(`INSERT INTO geo_location (title, latlng, bulletin_id) VALUES ('pin', ST_SetSRID(ST_MakePoint(36.3, 33.5), 4326), $1)`,
		withMarker)
	var eventID int
	s.Require().NoError(s.postgres.DB.GetContext(context.Background(), &eventID,
		`INSERT INTO event (title, location_id) VALUES ('shelling', $1) RETURNING id`, l))
	s.exec(`INSERT INTO bulletin_events (bulletin_id, event_id) VALUES ($1, $2)`, withEvent, eventID)

	f := search.Filter{Near: near(33.5, 36.3, 50)}
	f.Near.GeoLocations = true
	s.Equal([]int{withMarker}, s.search(f))

	f = search.Filter{Near: near(34.73, 36.71, 50)}
	f.Near.EventLocations = true
	s.Equal([]int{withEvent}, s.search(f))

	s.Empty(s.search(search.Filter{Near: near(34.73, 36.71, 50)}), "attached locations only by default")
}

func (s *SearchSuite) TestTextTagsAndSubtree() {
	root := s.location("Syria", 35, 38, nil)
	city := s.location("Aleppo", 36.2, 37.15, ptr(root))
	a := s.bulletin("Aleppo siege report", "siege", "verified")
	b := s.bulletin("Unrelated note", "siege")
	s.exec(`INSERT INTO bulletin_locations (bulletin_id, location_id) VALUES ($1, $2)`, a, city)

	s.Equal([]int{a}, s.search(search.Filter{Text: "siege report"}))
	s.Equal([]int{b, a}, s.search(search.Filter{Tags: []string{"siege"}}))
	s.Equal([]int{a}, s.search(search.Filter{Tags: []string{"siege", "verified"}, TagMatch: search.TagsAll}))
	s.Equal([]int{a}, s.search(search.Filter{LocationSubtree: ptr(root)}))

	s.exec(`UPDATE bulletin SET deleted = TRUE WHERE id = $1`, b)
	s.Equal([]int{a}, s.search(search.Filter{Tags: []string{"siege"}}))
	s.Equal([]int{b, a}, s.search(search.Filter{Tags: []string{"siege"}, IncludeDeleted: true}))
}

func (s *SearchSuite) TestEventDateOverlap() {
	b := s.bulletin("Dated")
	var eventID int
	s.Require().NoError(s.postgres.DB.GetContext(context.Background(), &eventID,
		`INSERT INTO event (title, from_date, to_date) VALUES ('e', '2020-03-01', '2020-03-10') RETURNING id`))
	s.exec(`INSERT INTO bulletin_events (bulletin_id, event_id) VALUES ($1, $2)`, b, eventID)

	day := func(m time.Month, d int) *time.Time {
		t := time.Date(2020, m, d, 0, 0, 0, 0, time.UTC)
		return &t
	}
	s.Equal([]int{b}, s.search(search.Filter{EventFrom: day(3, 10), EventTo: day(4, 1)}), "inclusive upper edge")
	s.Equal([]int{b}, s.search(search.Filter{EventFrom: day(2, 1), EventTo: day(3, 1)}), "inclusive lower edge")
	s.Empty(s.search(search.Filter{EventFrom: day(3, 11)}))
}

func (s *SearchSuite) TestRestrictiveCallersSeeSharedRolesOnly() {
	s.exec(`INSERT INTO roles (id, name) VALUES (1, 'A'), (2, 'B')`)
	open := s.bulletin("open")
	scoped := s.bulletin("scoped")
	s.exec(`INSERT INTO bulletin_roles (bulletin_id, role_id) VALUES ($1, 1)`, scoped)

	svc := search.New(s.postgres.DB, search.WithPolicy(access.NewPolicy(access.Restrictive)))
	for roles, want := range map[int][]int{1: {scoped}, 2: {}} {
		ctx := access.WithCaller(context.Background(), &access.Caller{UserID: 3, RoleIDs: []int{roles}})
		ids, err := svc.Search(ctx, models.ClassBulletin, search.Filter{})
		s.Require().NoError(err)
		s.Equal(want, ids, fmt.Sprintf("role %d", roles))
	}

	permissive := search.New(s.postgres.DB)
	ctx := access.WithCaller(context.Background(), &access.Caller{UserID: 3, RoleIDs: []int{2}})
	ids, err := permissive.Search(ctx, models.ClassBulletin, search.Filter{})
	s.Require().NoError(err)
	s.Equal([]int{open}, ids)
}

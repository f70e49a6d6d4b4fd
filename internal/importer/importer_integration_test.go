//go:build integration

package importer_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"bayanat/internal/dynamicfield"
	"bayanat/internal/entity/models"
	"bayanat/internal/entity/service"
	"bayanat/internal/entity/store"
	"bayanat/internal/importer"
	"bayanat/internal/platform/postgres"
	"bayanat/internal/relation"
	"bayanat/internal/revision"
	"bayanat/internal/taxonomy"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/testutil/containers"
)

type ImporterSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *importer.PostgresStore
	importer *importer.Importer
}

func TestImporterSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ImporterSuite))
}

func (s *ImporterSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
}

func (s *ImporterSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(context.Background()))
	db := s.postgres.DB
	tx := postgres.NewTxRunner(db)
	fields := dynamicfield.NewService(dynamicfield.NewPostgresStore(db), tx)
	entities := service.New(store.New(db), tx, relation.NewService(relation.NewPostgresStore(db)),
		revision.NewRecorder(revision.NewPostgresStore(db)), fields)
	tax := taxonomy.NewService(taxonomy.NewPostgresStore(db), tx)
	s.store = importer.NewPostgresStore(db)
	s.importer = importer.New(s.store, tx, entities, tax, fields)
}

func (s *ImporterSuite) TestLabelsImportMovesSequence() {
	ctx := context.Background()
	csv := "id,title,parent_id,for_actor\n40,Child,12,true\n12,Root,,true\n"
	res, err := s.importer.ImportLabels(ctx, "labels.csv", strings.NewReader(csv))
	s.Require().NoError(err)
	s.Equal([]int{12, 40}, res.Imported)

	var parent int
	s.Require().NoError(s.postgres.DB.GetContext(ctx, &parent, `SELECT parent_id FROM label WHERE id = 40`))
	s.Equal(12, parent)

	var next int
	s.Require().NoError(s.postgres.DB.GetContext(ctx, &next,
		`INSERT INTO label (title) VALUES ('after import') RETURNING id`))
	s.Equal(41, next)

	l, err := s.importer.Log(ctx, res.LogID)
	s.Require().NoError(err)
	s.Equal(importer.StatusReady, l.Status)
	s.Equal("label", l.Table)
}

func (s *ImporterSuite) TestSameTitleUnderDifferentParents() {
	csv := "id,title,parent_id\n1,A,\n2,B,\n3,Other,1\n4,Other,2\n"
	_, err := s.importer.ImportSources(context.Background(), "sources.csv", strings.NewReader(csv))
	s.Require().NoError(err)
}

func (s *ImporterSuite) TestFailedTreeImportRollsBack() {
	ctx := context.Background()
	csv := "id,title,parent_id\n1,Root,\n2,Child,999\n"
	res, err := s.importer.ImportLabels(ctx, "labels.csv", strings.NewReader(csv))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	var n int
	s.Require().NoError(s.postgres.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM label`))
	s.Zero(n)

	l, err := s.importer.Log(ctx, res.LogID)
	s.Require().NoError(err)
	s.Equal(importer.StatusFailed, l.Status)
}

func (s *ImporterSuite) TestLocationsImportBuildsFullLocation() {
	ctx := context.Background()
	csv := "id,title,parent_id,latitude,longitude\n1,Syria,,35,38\n2,Aleppo,1,36.2,37.15\n"
	_, err := s.importer.ImportLocations(ctx, "locations.csv", strings.NewReader(csv))
	s.Require().NoError(err)

	var row struct {
		IDTree       string  `db:"id_tree"`
		FullLocation string  `db:"full_location"`
		Lat          float64 `db:"lat"`
	}
	s.Require().NoError(s.postgres.DB.GetContext(ctx, &row,
		`SELECT id_tree, full_location, ST_Y(latlng) AS lat FROM location WHERE id = 2`))
	s.Equal("[1] [2]", row.IDTree)
	s.Contains(row.FullLocation, "Aleppo")
	s.Contains(row.FullLocation, "Syria")
	s.InDelta(36.2, row.Lat, 1e-9)
}

func (s *ImporterSuite) TestActorsImportLogsBadRows() {
	ctx := context.Background()
	_, err := s.postgres.DB.ExecContext(ctx, `INSERT INTO country (id, title, title_tr) VALUES (7, 'Syria', 'سوريا')`)
	s.Require().NoError(err)

	csv := "name,nationality,sex\nOmar,سوريا,Male\n,Syria,Female\nLina,Narnia,female\n"
	m := importer.Mapping{Columns: map[string]string{"name": "name", "nationality": "nationalities", "sex": "sex"}}
	res, err := s.importer.ImportActors(ctx, "actors.csv", strings.NewReader(csv), m)
	s.Require().NoError(err)
	s.Len(res.Imported, 2)
	s.Equal(1, res.Failed)

	var nationality int
	s.Require().NoError(s.postgres.DB.GetContext(ctx, &nationality,
		`SELECT country_id FROM actor_nationalities WHERE actor_id = $1`, res.Imported[0]))
	s.Equal(7, nationality)

	var desc, sex string
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx,
		`SELECT description, sex FROM actor WHERE id = $1`, res.Imported[1]).Scan(&desc, &sex))
	s.Equal("nationality: Narnia", desc)
	s.Equal("Female", sex)

	l, err := s.importer.Log(ctx, res.LogID)
	s.Require().NoError(err)
	s.Equal(importer.StatusReady, l.Status)
	s.Contains(l.Log, "line 3:")
	s.Equal(models.ClassActor.Table(), l.Table)
}

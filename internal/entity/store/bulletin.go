package store

import (
	"context"

	"bayanat/internal/entity/models"
)

const bulletinColumns = recordColumns + `, title, COALESCE(title_ar, '') AS title_ar,
	COALESCE(sjac_title, '') AS sjac_title, COALESCE(sjac_title_ar, '') AS sjac_title_ar,
	COALESCE(originid, '') AS originid, COALESCE(source_link, '') AS source_link,
	publish_date, documentation_date`

// LoadBulletin reads a bulletin and, unless opts.Scalars, its children and collections.
func (s *PostgresStore) LoadBulletin(ctx context.Context, id int, opts LoadOptions) (*models.Bulletin, error) {
	var b models.Bulletin
	if err := s.get(ctx, models.ClassBulletin, &b, bulletinColumns, id, opts.ForUpdate); err != nil {
		return nil, err
	}
	if err := s.loadRecord(ctx, models.ClassBulletin, &b.Record, opts.Dynamic); err != nil {
		return nil, err
	}
	if opts.Scalars {
		return &b, nil
	}

	var err error
	if b.Labels, err = s.Terms(ctx, BulletinLabels, id); err != nil {
		return nil, err
	}
	if b.VerifiedLabels, err = s.Terms(ctx, BulletinVerifiedLabels, id); err != nil {
		return nil, err
	}
	if b.Sources, err = s.Terms(ctx, BulletinSources, id); err != nil {
		return nil, err
	}
	if b.Locations, err = s.LocationRefs(ctx, BulletinLocations, id); err != nil {
		return nil, err
	}
	if b.Events, err = s.Events(ctx, models.ClassBulletin, id); err != nil {
		return nil, err
	}
	if b.Medias, err = s.Medias(ctx, models.ClassBulletin, id); err != nil {
		return nil, err
	}
	if b.GeoLocations, err = s.GeoLocations(ctx, id); err != nil {
		return nil, err
	}
	return &b, nil
}

func bulletinValues(b *models.Bulletin) map[string]any {
	values := recordValues(&b.Record)
	values["title"] = b.Title
	values["title_ar"] = nullString(b.TitleAr)
	values["sjac_title"] = nullString(b.SjacTitle)
	values["sjac_title_ar"] = nullString(b.SjacTitleAr)
	values["originid"] = nullString(b.OriginID)
	values["source_link"] = nullString(b.SourceLink)
	values["publish_date"] = b.PublishDate
	values["documentation_date"] = b.DocumentationDate
	return values
}

// InsertBulletin writes a new bulletin row and sets b.ID.
func (s *PostgresStore) InsertBulletin(ctx context.Context, b *models.Bulletin) error {
	return s.insert(ctx, models.ClassBulletin, &b.Record, bulletinValues(b))
}

// UpdateBulletin rewrites the bulletin's scalar columns.
func (s *PostgresStore) UpdateBulletin(ctx context.Context, b *models.Bulletin) error {
	return s.update(ctx, models.ClassBulletin, &b.Record, bulletinValues(b))
}

package store

import (
	"context"

	"bayanat/internal/entity/models"
)

const incidentColumns = recordColumns + `, title, COALESCE(title_ar, '') AS title_ar`

// LoadIncident reads an incident and, unless opts.Scalars, its children and collections.
func (s *PostgresStore) LoadIncident(ctx context.Context, id int, opts LoadOptions) (*models.Incident, error) {
	var inc models.Incident
	if err := s.get(ctx, models.ClassIncident, &inc, incidentColumns, id, opts.ForUpdate); err != nil {
		return nil, err
	}
	if err := s.loadRecord(ctx, models.ClassIncident, &inc.Record, opts.Dynamic); err != nil {
		return nil, err
	}
	if opts.Scalars {
		return &inc, nil
	}

	var err error
	if inc.Labels, err = s.Terms(ctx, IncidentLabels, id); err != nil {
		return nil, err
	}
	if inc.Locations, err = s.LocationRefs(ctx, IncidentLocations, id); err != nil {
		return nil, err
	}
	if inc.Events, err = s.Events(ctx, models.ClassIncident, id); err != nil {
		return nil, err
	}
	if inc.PotentialViolations, err = s.Terms(ctx, IncidentPotentialViolations, id); err != nil {
		return nil, err
	}
	if inc.ClaimedViolations, err = s.Terms(ctx, IncidentClaimedViolations, id); err != nil {
		return nil, err
	}
	return &inc, nil
}

func incidentValues(i *models.Incident) map[string]any {
	values := recordValues(&i.Record)
	values["title"] = i.Title
	values["title_ar"] = nullString(i.TitleAr)
	return values
}

func (s *PostgresStore) InsertIncident(ctx context.Context, i *models.Incident) error {
	return s.insert(ctx, models.ClassIncident, &i.Record, incidentValues(i))
}

func (s *PostgresStore) UpdateIncident(ctx context.Context, i *models.Incident) error {
	return s.update(ctx, models.ClassIncident, &i.Record, incidentValues(i))
}

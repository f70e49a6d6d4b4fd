package store

import (
	"context"

	"bayanat/internal/entity/models"
)

const actorColumns = recordColumns + `, type, COALESCE(name, '') AS name, COALESCE(name_ar, '') AS name_ar,
	COALESCE(first_name, '') AS first_name, COALESCE(first_name_ar, '') AS first_name_ar,
	COALESCE(middle_name, '') AS middle_name, COALESCE(middle_name_ar, '') AS middle_name_ar,
	COALESCE(last_name, '') AS last_name, COALESCE(last_name_ar, '') AS last_name_ar,
	COALESCE(nickname, '') AS nickname, COALESCE(nickname_ar, '') AS nickname_ar,
	COALESCE(father_name, '') AS father_name, COALESCE(father_name_ar, '') AS father_name_ar,
	COALESCE(mother_name, '') AS mother_name, COALESCE(mother_name_ar, '') AS mother_name_ar,
	COALESCE(sex, '') AS sex, COALESCE(age, '') AS age, COALESCE(civilian, '') AS civilian,
	COALESCE(family_status, '') AS family_status, no_children,
	COALESCE(occupation, '') AS occupation, COALESCE(occupation_ar, '') AS occupation_ar,
	COALESCE(position, '') AS position, COALESCE(position_ar, '') AS position_ar,
	origin_place_id, id_number`

// LoadActor reads an actor and, unless opts.Scalars, its children and collections.
func (s *PostgresStore) LoadActor(ctx context.Context, id int, opts LoadOptions) (*models.Actor, error) {
	var a models.Actor
	if err := s.get(ctx, models.ClassActor, &a, actorColumns, id, opts.ForUpdate); err != nil {
		return nil, err
	}
	if err := s.loadRecord(ctx, models.ClassActor, &a.Record, opts.Dynamic); err != nil {
		return nil, err
	}
	if opts.Scalars {
		return &a, nil
	}

	var err error
	if a.OriginPlace, err = s.locationRef(ctx, a.OriginPlaceID); err != nil {
		return nil, err
	}
	if a.Ethnographies, err = s.Terms(ctx, ActorEthnographies, id); err != nil {
		return nil, err
	}
	if a.Nationalities, err = s.Terms(ctx, ActorNationalities, id); err != nil {
		return nil, err
	}
	if a.Dialects, err = s.Terms(ctx, ActorDialects, id); err != nil {
		return nil, err
	}
	if a.Locations, err = s.LocationRefs(ctx, ActorLocations, id); err != nil {
		return nil, err
	}
	if a.Events, err = s.Events(ctx, models.ClassActor, id); err != nil {
		return nil, err
	}
	if a.Medias, err = s.Medias(ctx, models.ClassActor, id); err != nil {
		return nil, err
	}
	if a.Profiles, err = s.Profiles(ctx, id); err != nil {
		return nil, err
	}
	return &a, nil
}

func actorValues(a *models.Actor) map[string]any {
	values := recordValues(&a.Record)
	values["type"] = a.Type
	values["name"] = nullString(a.Name)
	values["name_ar"] = nullString(a.NameAr)
	values["first_name"] = nullString(a.FirstName)
	values["first_name_ar"] = nullString(a.FirstNameAr)
	values["middle_name"] = nullString(a.MiddleName)
	values["middle_name_ar"] = nullString(a.MiddleNameAr)
	values["last_name"] = nullString(a.LastName)
	values["last_name_ar"] = nullString(a.LastNameAr)
	values["nickname"] = nullString(a.Nickname)
	values["nickname_ar"] = nullString(a.NicknameAr)
	values["father_name"] = nullString(a.FatherName)
	values["father_name_ar"] = nullString(a.FatherNameAr)
	values["mother_name"] = nullString(a.MotherName)
	values["mother_name_ar"] = nullString(a.MotherNameAr)
	values["sex"] = nullString(a.Sex)
	values["age"] = nullString(a.Age)
	values["civilian"] = nullString(a.Civilian)
	values["family_status"] = nullString(a.FamilyStatus)
	values["no_children"] = a.NoChildren
	values["occupation"] = nullString(a.Occupation)
	values["occupation_ar"] = nullString(a.OccupationAr)
	values["position"] = nullString(a.Position)
	values["position_ar"] = nullString(a.PositionAr)
	values["origin_place_id"] = a.OriginPlaceID
	values["id_number"] = a.IDNumber
	return values
}

func (s *PostgresStore) InsertActor(ctx context.Context, a *models.Actor) error {
	return s.insert(ctx, models.ClassActor, &a.Record, actorValues(a))
}

func (s *PostgresStore) UpdateActor(ctx context.Context, a *models.Actor) error {
	return s.update(ctx, models.ClassActor, &a.Record, actorValues(a))
}

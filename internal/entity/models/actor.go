package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Actor types.
const (
	ActorPerson = "Person"
	ActorEntity = "Entity"
)

// Actor is a person or an organizational entity.
type Actor struct {
	Record
	Type          string    `db:"type"`
	Name          string    `db:"name"`
	NameAr        string    `db:"name_ar"`
	FirstName     string    `db:"first_name"`
	FirstNameAr   string    `db:"first_name_ar"`
	MiddleName    string    `db:"middle_name"`
	MiddleNameAr  string    `db:"middle_name_ar"`
	LastName      string    `db:"last_name"`
	LastNameAr    string    `db:"last_name_ar"`
	Nickname      string    `db:"nickname"`
	NicknameAr    string    `db:"nickname_ar"`
	FatherName    string    `db:"father_name"`
	FatherNameAr  string    `db:"father_name_ar"`
	MotherName    string    `db:"mother_name"`
	MotherNameAr  string    `db:"mother_name_ar"`
	Sex           string    `db:"sex"`
	Age           string    `db:"age"`
	Civilian      string    `db:"civilian"`
	FamilyStatus  string    `db:"family_status"`
	NoChildren    *int      `db:"no_children"`
	Occupation    string    `db:"occupation"`
	OccupationAr  string    `db:"occupation_ar"`
	Position      string    `db:"position"`
	PositionAr    string    `db:"position_ar"`
	OriginPlaceID *int      `db:"origin_place_id"`
	IDNumber      IDNumbers `db:"id_number"`

	OriginPlace   *LocationRef
	Ethnographies []Term
	Nationalities []Term
	Dialects      []Term
	Locations     []LocationRef
	Events        []Event
	Medias        []Media
	Profiles      []ActorProfile
}

// RecomputeNames derives the persisted full names of a Person from its name parts.
// Entities keep the names they were given.
func (a *Actor) RecomputeNames() {
	if a.Type != ActorPerson {
		return
	}
	if full := joinNames(a.FirstName, a.MiddleName, a.LastName); full != "" {
		a.Name = full
	}
	if full := joinNames(a.FirstNameAr, a.MiddleNameAr, a.LastNameAr); full != "" {
		a.NameAr = full
	}
}

// ClearPersonFields resets everything an Entity cannot carry.
func (a *Actor) ClearPersonFields() {
	keep := Actor{Record: a.Record, Type: a.Type, Name: a.Name, NameAr: a.NameAr, IDNumber: a.IDNumber,
		OriginPlace: a.OriginPlace, Ethnographies: a.Ethnographies, Nationalities: a.Nationalities,
		Dialects: a.Dialects, Locations: a.Locations, Events: a.Events, Medias: a.Medias, Profiles: a.Profiles,
		OriginPlaceID: a.OriginPlaceID}
	*a = keep
}

func joinNames(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// IDNumber is one identity document reference.
type IDNumber struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

// IDNumbers is the actor's id_number JSON array.
type IDNumbers []IDNumber

// UnmarshalJSON accepts a list of {type, number} objects, a legacy plain string, or empty.
func (n *IDNumbers) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = IDNumbers{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s = strings.TrimSpace(s); s == "" {
			*n = IDNumbers{}
			return nil
		}
		*n = IDNumbers{{Type: "1", Number: s}}
		return nil
	case '[':
		var raw []map[string]json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return fmt.Errorf("id_number must be a list of {type, number} objects")
		}
		out := make(IDNumbers, 0, len(raw))
		for i, item := range raw {
			var entry IDNumber
			if err := json.Unmarshal(item["type"], &entry.Type); err != nil {
				return fmt.Errorf("id_number[%d].type must be a string", i)
			}
			if err := json.Unmarshal(item["number"], &entry.Number); err != nil {
				return fmt.Errorf("id_number[%d].number must be a string", i)
			}
			out = append(out, entry)
		}
		*n = out
		return nil
	}
	return fmt.Errorf("id_number must be a list or a string")
}

func (n IDNumbers) Value() (driver.Value, error) {
	if n == nil {
		n = IDNumbers{}
	}
	b, err := json.Marshal([]IDNumber(n))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (n *IDNumbers) Scan(src any) error {
	var out []IDNumber
	if err := scanJSON(src, &out); err != nil {
		return err
	}
	if out == nil {
		out = []IDNumber{}
	}
	*n = out
	return nil
}

func (n IDNumbers) List() []any {
	out := make([]any, len(n))
	for i, v := range n {
		out[i] = Dict{"type": v.Type, "number": v.Number}
	}
	return out
}

// Profile modes.
const (
	ProfileModeProfile       = 1
	ProfileModeMain          = 2
	ProfileModeMissingPerson = 3
)

// ActorProfile carries the sources and labels attached to an actor.
type ActorProfile struct {
	ID                int            `db:"id"`
	ActorID           int            `db:"actor_id"`
	Mode              int            `db:"mode"`
	Description       string         `db:"description"`
	SourceLink        string         `db:"source_link"`
	PublishDate       *time.Time     `db:"publish_date"`
	DocumentationDate *time.Time     `db:"documentation_date"`
	OriginID          string         `db:"originid"`
	MissingPerson     *MissingPerson `db:"missing_person"`

	Sources        []Term
	Labels         []Term
	VerifiedLabels []Term
}

// MissingPerson holds the fields unlocked by profile mode 3.
type MissingPerson struct {
	LastAddress             string          `json:"last_address,omitempty"`
	SocialNetworks          json.RawMessage `json:"social_networks,omitempty"`
	MarriageHistory         string          `json:"marriage_history,omitempty"`
	BioChildren             *int            `json:"bio_children,omitempty"`
	PregnantAtDisappearance string          `json:"pregnant_at_disappearance,omitempty"`
	MonthsPregnant          *int            `json:"months_pregnant,omitempty"`
	MissingRelatives        *bool           `json:"missing_relatives,omitempty"`
	SawName                 string          `json:"saw_name,omitempty"`
	SawAddress              string          `json:"saw_address,omitempty"`
	SawPhone                string          `json:"saw_phone,omitempty"`
	SawEmail                string          `json:"saw_email,omitempty"`
	SeenInDetention         json.RawMessage `json:"seen_in_detention,omitempty"`
	Injured                 json.RawMessage `json:"injured,omitempty"`
	KnownDead               json.RawMessage `json:"known_dead,omitempty"`
	DeathDetails            string          `json:"death_details,omitempty"`
	PersonalItems           string          `json:"personal_items,omitempty"`
	Height                  *int            `json:"height,omitempty"`
	Weight                  *int            `json:"weight,omitempty"`
	Physique                string          `json:"physique,omitempty"`
	HairLoss                string          `json:"hair_loss,omitempty"`
	HairType                string          `json:"hair_type,omitempty"`
	HairLength              string          `json:"hair_length,omitempty"`
	HairColor               string          `json:"hair_color,omitempty"`
	FacialHair              string          `json:"facial_hair,omitempty"`
	Posture                 string          `json:"posture,omitempty"`
	SkinMarkings            json.RawMessage `json:"skin_markings,omitempty"`
	Handedness              string          `json:"handedness,omitempty"`
	Glasses                 string          `json:"glasses,omitempty"`
	EyeColor                string          `json:"eye_color,omitempty"`
	DistCharCon             string          `json:"dist_char_con,omitempty"`
	DistCharAcq             string          `json:"dist_char_acq,omitempty"`
	PhysicalHabits          string          `json:"physical_habits,omitempty"`
	Other                   string          `json:"other,omitempty"`
	PhysNameContact         string          `json:"phys_name_contact,omitempty"`
	Injuries                string          `json:"injuries,omitempty"`
	Implants                string          `json:"implants,omitempty"`
	Malforms                string          `json:"malforms,omitempty"`
	Pain                    string          `json:"pain,omitempty"`
	OtherConditions         string          `json:"other_conditions,omitempty"`
	Accidents               string          `json:"accidents,omitempty"`
	PresDrugs               string          `json:"pres_drugs,omitempty"`
	Smoker                  string          `json:"smoker,omitempty"`
	DentalRecord            *bool           `json:"dental_record,omitempty"`
	DentistInfo             string          `json:"dentist_info,omitempty"`
	TeethFeatures           string          `json:"teeth_features,omitempty"`
	DentalProblems          string          `json:"dental_problems,omitempty"`
	DentalTreatments        string          `json:"dental_treatments,omitempty"`
	DentalHabits            string          `json:"dental_habits,omitempty"`
	CaseStatus              string          `json:"case_status,omitempty"`
	Reporters               json.RawMessage `json:"reporters,omitempty"`
	IdentifiedBy            string          `json:"identified_by,omitempty"`
	FamilyNotified          *bool           `json:"family_notified,omitempty"`
	HypothesisBased         string          `json:"hypothesis_based,omitempty"`
	HypothesisStatus        string          `json:"hypothesis_status,omitempty"`
	ReburialLocation        string          `json:"reburial_location,omitempty"`
}

func (m *MissingPerson) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *MissingPerson) Scan(src any) error {
	if src == nil {
		return nil
	}
	return scanJSON(src, m)
}

// Dict renders the missing-person document as a flat map.
func (m *MissingPerson) Dict() Dict {
	out := Dict{}
	if m == nil {
		return out
	}
	b, err := json.Marshal(m)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(b, &out)
	return out
}

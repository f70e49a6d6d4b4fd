package models

import "time"

// Record is the metadata every primary entity carries.
type Record struct {
	ID                   int        `db:"id"`
	Status               string     `db:"status"`
	Review               string     `db:"review"`
	ReviewAction         string     `db:"review_action"`
	Comments             string     `db:"comments"`
	Description          string     `db:"description"`
	Tags                 StringList `db:"tags"`
	AssignedToID         *int       `db:"assigned_to_id"`
	FirstPeerReviewerID  *int       `db:"first_peer_reviewer_id"`
	SecondPeerReviewerID *int       `db:"second_peer_reviewer_id"`
	Deleted              bool       `db:"deleted"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`

	// Loaded alongside the row.
	RoleIDs            []int
	Roles              []Role
	AssignedTo         *UserRef
	FirstPeerReviewer  *UserRef
	SecondPeerReviewer *UserRef
	Dynamic            map[string]any
}

// Scope is the subset of a record the access gate evaluates.
type Scope struct {
	RoleIDs              []int
	AssignedToID         *int
	FirstPeerReviewerID  *int
	SecondPeerReviewerID *int
}

func (r *Record) Scope() Scope {
	return Scope{
		RoleIDs:              r.RoleIDs,
		AssignedToID:         r.AssignedToID,
		FirstPeerReviewerID:  r.FirstPeerReviewerID,
		SecondPeerReviewerID: r.SecondPeerReviewerID,
	}
}

// Bulletin is a report or source document.
type Bulletin struct {
	Record
	Title             string     `db:"title"`
	TitleAr           string     `db:"title_ar"`
	SjacTitle         string     `db:"sjac_title"`
	SjacTitleAr       string     `db:"sjac_title_ar"`
	OriginID          string     `db:"originid"`
	SourceLink        string     `db:"source_link"`
	PublishDate       *time.Time `db:"publish_date"`
	DocumentationDate *time.Time `db:"documentation_date"`

	Labels         []Term
	VerifiedLabels []Term
	Sources        []Term
	Locations      []LocationRef
	Events         []Event
	Medias         []Media
	GeoLocations   []GeoLocation
}

// Incident aggregates bulletins and actors under one event.
type Incident struct {
	Record
	Title   string `db:"title"`
	TitleAr string `db:"title_ar"`

	Labels              []Term
	Locations           []LocationRef
	Events              []Event
	PotentialViolations []Term
	ClaimedViolations   []Term
}

// Event is a dated occurrence owned by one primary entity.
type Event struct {
	ID          int        `db:"id"`
	Title       string     `db:"title"`
	TitleAr     string     `db:"title_ar"`
	Comments    string     `db:"comments"`
	CommentsAr  string     `db:"comments_ar"`
	LocationID  *int       `db:"location_id"`
	EventtypeID *int       `db:"eventtype_id"`
	FromDate    *time.Time `db:"from_date"`
	ToDate      *time.Time `db:"to_date"`
	Estimated   bool       `db:"estimated"`

	Location  *LocationRef
	Eventtype *Term
}

// Media is a content-addressed file bound to exactly one bulletin or actor.
type Media struct {
	ID            int       `db:"id"`
	MediaFile     string    `db:"media_file"`
	MediaFileType string    `db:"media_file_type"`
	CategoryID    *int      `db:"category_id"`
	Etag          string    `db:"etag"`
	Title         string    `db:"title"`
	TitleAr       string    `db:"title_ar"`
	Comments      string    `db:"comments"`
	Duration      string    `db:"duration"`
	Main          bool      `db:"main"`
	Deleted       bool      `db:"deleted"`
	BulletinID    *int      `db:"bulletin_id"`
	ActorID       *int      `db:"actor_id"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// GeoLocation is a free-form marker on a bulletin.
type GeoLocation struct {
	ID         int     `db:"id"`
	BulletinID int     `db:"bulletin_id"`
	Title      string  `db:"title"`
	Type       string  `db:"type"`
	Main       bool    `db:"main"`
	Lat        float64 `db:"lat"`
	Lng        float64 `db:"lng"`
	Comment    string  `db:"comment"`
}

// LocationRef is the compact view of a location attached to an entity.
type LocationRef struct {
	ID           int      `db:"id"`
	Title        string   `db:"title"`
	TitleAr      string   `db:"title_ar"`
	FullLocation string   `db:"full_location"`
	Lat          *float64 `db:"lat"`
	Lng          *float64 `db:"lng"`
}

func (l LocationRef) Dict() Dict {
	d := Dict{
		"id":            l.ID,
		"title":         l.Title,
		"title_ar":      l.TitleAr,
		"full_location": l.FullLocation,
		"lat":           nil,
		"lng":           nil,
	}
	if l.Lat != nil && l.Lng != nil {
		d["lat"], d["lng"] = *l.Lat, *l.Lng
	}
	return d
}

// Summary is the compact view of an entity shown as a relation counterpart.
type Summary struct {
	ID                   int    `db:"id"`
	Class                Class  `db:"-"`
	Title                string `db:"title"`
	TitleAr              string `db:"title_ar"`
	Status               string `db:"status"`
	Deleted              bool   `db:"deleted"`
	AssignedToID         *int   `db:"assigned_to_id"`
	FirstPeerReviewerID  *int   `db:"first_peer_reviewer_id"`
	SecondPeerReviewerID *int   `db:"second_peer_reviewer_id"`
	RoleIDs              Codes  `db:"role_ids"`
}

func (s *Summary) Scope() Scope {
	return Scope{
		RoleIDs:              []int(s.RoleIDs),
		AssignedToID:         s.AssignedToID,
		FirstPeerReviewerID:  s.FirstPeerReviewerID,
		SecondPeerReviewerID: s.SecondPeerReviewerID,
	}
}

// Dict renders the compact view. Actors are titled by name.
func (s *Summary) Dict() Dict {
	titleKey, titleArKey := "title", "title_ar"
	if s.Class == ClassActor {
		titleKey, titleArKey = "name", "name_ar"
	}
	return Dict{
		"id":       s.ID,
		"class":    string(s.Class),
		titleKey:   s.Title,
		titleArKey: s.TitleAr,
		"status":   s.Status,
		"deleted":  s.Deleted,
	}
}

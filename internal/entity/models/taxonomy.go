package models

import "time"

// Label is a node of the label tree with applicability flags.
type Label struct {
	ID          int       `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	TitleAr     string    `db:"title_ar" json:"title_ar"`
	Comments    string    `db:"comments" json:"comments"`
	CommentsAr  string    `db:"comments_ar" json:"comments_ar"`
	Order       *int      `db:"order" json:"order"`
	Verified    bool      `db:"verified" json:"verified"`
	ForBulletin bool      `db:"for_bulletin" json:"for_bulletin"`
	ForActor    bool      `db:"for_actor" json:"for_actor"`
	ForIncident bool      `db:"for_incident" json:"for_incident"`
	ForOffline  bool      `db:"for_offline" json:"for_offline"`
	ParentID    *int      `db:"parent_id" json:"parent_id"`
	Deleted     bool      `db:"deleted" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"-"`
	UpdatedAt   time.Time `db:"updated_at" json:"-"`
}

// ClampTo restricts l's flags to those its parent enables. A verified parent forces a
// verified child and an unverified parent an unverified one.
func (l *Label) ClampTo(parent *Label) {
	if parent == nil {
		return
	}
	l.ForBulletin = l.ForBulletin && parent.ForBulletin
	l.ForActor = l.ForActor && parent.ForActor
	l.ForIncident = l.ForIncident && parent.ForIncident
	l.ForOffline = l.ForOffline && parent.ForOffline
	l.Verified = parent.Verified
}

// Source is a node of the source tree.
type Source struct {
	ID         int       `db:"id" json:"id"`
	Title      string    `db:"title" json:"title"`
	TitleAr    string    `db:"title_ar" json:"title_ar"`
	EtlID      string    `db:"etl_id" json:"etl_id"`
	Comments   string    `db:"comments" json:"comments"`
	CommentsAr string    `db:"comments_ar" json:"comments_ar"`
	ParentID   *int      `db:"parent_id" json:"parent_id"`
	Deleted    bool      `db:"deleted" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"-"`
	UpdatedAt  time.Time `db:"updated_at" json:"-"`
}

// Location is a node of the administrative location tree.
type Location struct {
	ID             int        `db:"id"`
	Title          string     `db:"title"`
	TitleAr        string     `db:"title_ar"`
	Description    string     `db:"description"`
	LocationTypeID *int       `db:"location_type_id"`
	AdminLevelID   *int       `db:"admin_level_id"`
	Lat            *float64   `db:"lat"`
	Lng            *float64   `db:"lng"`
	PostalCode     string     `db:"postal_code"`
	CountryID      *int       `db:"country_id"`
	ParentID       *int       `db:"parent_id"`
	Tags           StringList `db:"tags"`
	IDTree         string     `db:"id_tree"`
	FullLocation   string     `db:"full_location"`
	Deleted        bool       `db:"deleted"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// Point returns the location's coordinate, if it has one.
func (l *Location) Point() *Point {
	if l.Lat == nil || l.Lng == nil {
		return nil
	}
	return &Point{Lat: *l.Lat, Lng: *l.Lng}
}

func (l *Location) Dict() Dict {
	d := Dict{
		"id":               l.ID,
		"class":            string(ClassLocation),
		"title":            l.Title,
		"title_ar":         l.TitleAr,
		"description":      l.Description,
		"location_type_id": l.LocationTypeID,
		"admin_level_id":   l.AdminLevelID,
		"postal_code":      l.PostalCode,
		"country_id":       l.CountryID,
		"parent_id":        l.ParentID,
		"tags":             nonNilTags(l.Tags),
		"id_tree":          l.IDTree,
		"full_location":    l.FullLocation,
		"lat":              nil,
		"lng":              nil,
		"updated_at":       FormatTimeValue(l.UpdatedAt),
	}
	if p := l.Point(); p != nil {
		d["lat"], d["lng"] = p.Lat, p.Lng
	}
	return d
}

func nonNilTags(t StringList) []string {
	if t == nil {
		return []string{}
	}
	return t
}

// AdminLevel orders the segments of a location's full_location.
type AdminLevel struct {
	ID           int    `db:"id" json:"id"`
	Code         int    `db:"code" json:"code"`
	Title        string `db:"title" json:"title"`
	DisplayOrder int    `db:"display_order" json:"display_order"`
}

// VocabItem is a row of a flat dictionary table.
type VocabItem struct {
	ID      int    `db:"id" json:"id"`
	Title   string `db:"title" json:"title" validate:"required"`
	TitleTr string `db:"title_tr" json:"title_tr"`
}

// RelationInfo names a related_as code from both endpoints' perspectives.
type RelationInfo struct {
	ID             int    `db:"id" json:"id"`
	Title          string `db:"title" json:"title" validate:"required"`
	ReverseTitle   string `db:"reverse_title" json:"reverse_title"`
	TitleTr        string `db:"title_tr" json:"title_tr"`
	ReverseTitleTr string `db:"reverse_title_tr" json:"reverse_title_tr"`
}

// User is an account that acts on and is assigned to entities.
type User struct {
	ID        int       `db:"id"`
	Username  string    `db:"username"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	RoleIDs   []int
}

func (u *User) Dict() Dict {
	roles := u.RoleIDs
	if roles == nil {
		roles = []int{}
	}
	return Dict{
		"id":         u.ID,
		"class":      string(ClassUser),
		"username":   u.Username,
		"name":       u.Name,
		"email":      u.Email,
		"active":     u.Active,
		"roles":      roles,
		"updated_at": FormatTimeValue(u.UpdatedAt),
	}
}

// Package relation maintains the typed edges between bulletins, actors and incidents.
package relation

import (
	"errors"
	"fmt"

	"bayanat/internal/entity/models"
)

// ErrSelfRelation rejects an edge whose endpoints are the same entity.
var ErrSelfRelation = errors.New("an entity cannot be related to itself")

// Kind describes one edge table. Symmetric kinds store each unordered pair once with
// the lower id on the left. Multi kinds accept more than one related_as code.
type Kind struct {
	Name      string
	Left      models.Class
	Right     models.Class
	LeftCol   string
	RightCol  string
	Symmetric bool
	Multi     bool
}

var (
	BulletinBulletin = Kind{Name: "btob", Left: models.ClassBulletin, Right: models.ClassBulletin,
		LeftCol: "bulletin_id", RightCol: "related_bulletin_id", Symmetric: true}
	ActorActor = Kind{Name: "atoa", Left: models.ClassActor, Right: models.ClassActor,
		LeftCol: "actor_id", RightCol: "related_actor_id", Symmetric: true}
	IncidentIncident = Kind{Name: "itoi", Left: models.ClassIncident, Right: models.ClassIncident,
		LeftCol: "incident_id", RightCol: "related_incident_id", Symmetric: true}
	ActorBulletin = Kind{Name: "atob", Left: models.ClassActor, Right: models.ClassBulletin,
		LeftCol: "actor_id", RightCol: "bulletin_id", Multi: true}
	IncidentBulletin = Kind{Name: "itob", Left: models.ClassIncident, Right: models.ClassBulletin,
		LeftCol: "incident_id", RightCol: "bulletin_id"}
	IncidentActor = Kind{Name: "itoa", Left: models.ClassIncident, Right: models.ClassActor,
		LeftCol: "incident_id", RightCol: "actor_id", Multi: true}
)

// Kinds lists every edge table.
var Kinds = []Kind{BulletinBulletin, ActorActor, IncidentIncident, ActorBulletin, IncidentBulletin, IncidentActor}

// KindFor returns the edge table joining classes a and b in either order.
func KindFor(a, b models.Class) (Kind, error) {
	for _, k := range Kinds {
		if (k.Left == a && k.Right == b) || (k.Left == b && k.Right == a) {
			return k, nil
		}
	}
	return Kind{}, fmt.Errorf("no relation between %s and %s", a, b)
}

// KindByName looks a kind up by its table name.
func KindByName(name string) (Kind, error) {
	for _, k := range Kinds {
		if k.Name == name {
			return k, nil
		}
	}
	return Kind{}, fmt.Errorf("unknown relation kind %q", name)
}

func (k Kind) Table() string     { return k.Name }
func (k Kind) InfoTable() string { return k.Name + "_info" }

// Touches reports whether the kind has class c on either side.
func (k Kind) Touches(c models.Class) bool { return k.Left == c || k.Right == c }

// Ref names one entity.
type Ref struct {
	Class models.Class
	ID    int
}

func (r Ref) String() string { return fmt.Sprintf("%s:%d", r.Class, r.ID) }

// Endpoints maps two entities onto the table's (left, right) columns, canonicalizing
// symmetric pairs to (min, max).
func (k Kind) Endpoints(a, b Ref) (int, int, error) {
	if !k.Touches(a.Class) || !k.Touches(b.Class) {
		return 0, 0, fmt.Errorf("%s does not relate %s and %s", k.Name, a.Class, b.Class)
	}
	if k.Symmetric {
		if a.ID == b.ID {
			return 0, 0, ErrSelfRelation
		}
		return min(a.ID, b.ID), max(a.ID, b.ID), nil
	}
	if a.Class == k.Left {
		return a.ID, b.ID, nil
	}
	return b.ID, a.ID, nil
}

// Canonical resolves the edge kind between a and b and the (left, right) ids the
// edge is stored under.
func Canonical(a, b Ref) (Kind, int, int, error) {
	k, err := KindFor(a.Class, b.Class)
	if err != nil {
		return Kind{}, 0, 0, err
	}
	left, right, err := k.Endpoints(a, b)
	if err != nil {
		return Kind{}, 0, 0, err
	}
	return k, left, right, nil
}

// Counterpart returns the endpoint of e that is not self.
func (k Kind) Counterpart(e *models.Edge, self Ref) Ref {
	if k.Symmetric {
		if e.LeftID == self.ID {
			return Ref{Class: k.Right, ID: e.RightID}
		}
		return Ref{Class: k.Left, ID: e.LeftID}
	}
	if self.Class == k.Left {
		return Ref{Class: k.Right, ID: e.RightID}
	}
	return Ref{Class: k.Left, ID: e.LeftID}
}

// ValidateAttrs checks probability range and related_as arity.
func (k Kind) ValidateAttrs(a Attrs) error {
	if a.Probability != nil && (*a.Probability < 0 || *a.Probability > 3) {
		return fmt.Errorf("probability must be between 0 and 3")
	}
	if !k.Multi && len(a.RelatedAs.Normalize()) > 1 {
		return fmt.Errorf("%s edges take a single related_as code", k.Name)
	}
	return nil
}

// RelatedAsValue renders codes as a scalar for single-kind tables and a list otherwise.
func (k Kind) RelatedAsValue(codes models.Codes) any {
	if k.Multi {
		if codes == nil {
			return []int{}
		}
		return []int(codes)
	}
	if len(codes) == 0 {
		return nil
	}
	return codes[0]
}

// Attrs are the typed attributes an edge carries.
type Attrs struct {
	RelatedAs   models.Codes
	Probability *int
	Comment     string
}

// AttrsFrom converts a payload entry.
func AttrsFrom(in models.RelationInput) Attrs {
	return Attrs{RelatedAs: in.RelatedAs.Normalize(), Probability: in.Probability, Comment: in.Comment}
}

// Outcome reports what a mutation did to an edge.
type Outcome int

const (
	Unchanged Outcome = iota
	Created
	Updated
	Deleted
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	}
	return "unchanged"
}

// Change is one edge mutation seen from the acting entity.
type Change struct {
	Kind        Kind
	Counterpart Ref
	Outcome     Outcome
	Edge        *models.Edge
}

// Changed reports whether the mutation touched the edge.
func (c Change) Changed() bool { return c.Outcome != Unchanged }

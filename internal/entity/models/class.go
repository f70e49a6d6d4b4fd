// Package models holds the entity graph's records, upsert requests and the value types
// shared by stores, serializers and services.
package models

import (
	"fmt"
	"strings"

	dErrors "bayanat/pkg/domain-errors"
)

// Class names an entity kind. The value doubles as the table name.
type Class string

const (
	ClassBulletin Class = "bulletin"
	ClassActor    Class = "actor"
	ClassIncident Class = "incident"
	ClassLocation Class = "location"
	ClassUser     Class = "user"
)

// PrimaryClasses are the three interlinked primary entities.
var PrimaryClasses = []Class{ClassBulletin, ClassActor, ClassIncident}

func (c Class) String() string { return string(c) }

// Primary reports whether c is one of bulletin, actor or incident.
func (c Class) Primary() bool {
	switch c {
	case ClassBulletin, ClassActor, ClassIncident:
		return true
	}
	return false
}

// Table returns the entity table backing c.
func (c Class) Table() string {
	if c == ClassUser {
		return "users"
	}
	return string(c)
}

// HistoryTable returns the append-only snapshot table for c.
func (c Class) HistoryTable() string { return string(c) + "_history" }

// HistoryColumn returns the history table's foreign key to c.
func (c Class) HistoryColumn() string {
	if c == ClassUser {
		return "target_user_id"
	}
	return string(c) + "_id"
}

// RolesTable returns the join table scoping c's visibility.
func (c Class) RolesTable() string { return string(c) + "_roles" }

// RelationsKey is the payload key listing c's relations, e.g. "actor_relations".
func (c Class) RelationsKey() string { return string(c) + "_relations" }

// ParsePrimaryClass accepts a primary class name in any case.
func ParsePrimaryClass(s string) (Class, error) {
	c := Class(strings.ToLower(strings.TrimSpace(s)))
	if !c.Primary() {
		return "", dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown entity class %q", s))
	}
	return c, nil
}

package models

import "time"

// Dynamic field types.
const (
	FieldString   = "string"
	FieldInteger  = "integer"
	FieldDatetime = "datetime"
	FieldArray    = "array"
	FieldText     = "text"
	FieldBoolean  = "boolean"
	FieldFloat    = "float"
	FieldJSON     = "json"
)

// DynamicField is an administrator-defined column on a primary entity table.
type DynamicField struct {
	ID               int       `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	Title            string    `db:"title" json:"title"`
	EntityType       Class     `db:"entity_type" json:"entity_type"`
	FieldType        string    `db:"field_type" json:"field_type"`
	UIComponent      string    `db:"ui_component" json:"ui_component"`
	SchemaConfig     JSONB     `db:"schema_config" json:"schema_config"`
	UIConfig         JSONB     `db:"ui_config" json:"ui_config"`
	ValidationConfig JSONB     `db:"validation_config" json:"validation_config"`
	Options          JSONB     `db:"options" json:"options"`
	Required         bool      `db:"required" json:"required"`
	Searchable       bool      `db:"searchable" json:"searchable"`
	Active           bool      `db:"active" json:"active"`
	SortOrder        int       `db:"sort_order" json:"sort_order"`
	CreatedAt        time.Time `db:"created_at" json:"-"`
	UpdatedAt        time.Time `db:"updated_at" json:"-"`
}

// DynamicFormSnapshot is one form-layout audit row.
type DynamicFormSnapshot struct {
	ID         int64     `db:"id" json:"id"`
	EntityType Class     `db:"entity_type" json:"entity_type"`
	Fields     JSONB     `db:"fields_snapshot" json:"fields_snapshot"`
	UserID     *int      `db:"user_id" json:"user_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

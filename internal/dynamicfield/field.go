// Package dynamicfield manages administrator-defined columns on the primary entity
// tables: metadata validation, runtime DDL and value coercion for ingest.
package dynamicfield

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/lib/pq"

	"bayanat/internal/entity/models"
)

const (
	defaultStringLength = 100
	maxStringLength     = 10485760
	maxNameLength       = 63
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// reservedNames are SQL keywords and names the entity dictionaries already use.
var reservedNames = []string{
	"all", "analyse", "analyze", "and", "any", "array", "as", "asc", "asymmetric", "both", "case",
	"cast", "check", "class", "collate", "column", "constraint", "create", "current_date",
	"current_role", "current_time", "current_timestamp", "current_user", "default", "deferrable",
	"desc", "distinct", "do", "else", "end", "except", "false", "fetch", "for", "foreign", "from",
	"grant", "group", "having", "in", "initially", "intersect", "into", "lateral", "leading",
	"limit", "localtime", "localtimestamp", "not", "null", "offset", "on", "only", "or", "order",
	"placing", "primary", "references", "returning", "select", "session_user", "some",
	"symmetric", "table", "then", "to", "trailing", "true", "union", "unique", "user", "using",
	"variadic", "when", "where", "window", "with",
	"id", "roles", "restricted", "relations", "bulletin_relations", "actor_relations",
	"incident_relations", "medias", "events", "locations", "labels", "sources",
}

// components lists the UI components each field type can render with. The first is
// the default.
var components = map[string][]string{
	models.FieldString:   {"input", "dropdown"},
	models.FieldText:     {"textarea", "editor"},
	models.FieldInteger:  {"number", "dropdown"},
	models.FieldFloat:    {"number"},
	models.FieldDatetime: {"date_picker", "datetime_picker"},
	models.FieldArray:    {"multi_select", "tags"},
	models.FieldBoolean:  {"checkbox", "toggle"},
	models.FieldJSON:     {"json_editor"},
}

// schemaConfig is the part of schema_config the DDL reads.
type schemaConfig struct {
	MaxLength int `json:"max_length"`
}

// validationConfig bounds values at ingest.
type validationConfig struct {
	Min       *float64 `json:"min"`
	Max       *float64 `json:"max"`
	Pattern   string   `json:"pattern"`
	MaxLength int      `json:"max_length"`
}

// CheckName applies the identifier rules to a field name.
func CheckName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("field name is required")
	case len(name) > maxNameLength:
		return fmt.Errorf("field name %q is longer than %d characters", name, maxNameLength)
	case strings.HasPrefix(name, "_"):
		return fmt.Errorf("field name %q must not start with an underscore", name)
	case !namePattern.MatchString(name):
		return fmt.Errorf("field name %q must be a lowercase identifier", name)
	case slices.Contains(reservedNames, name):
		return fmt.Errorf("field name %q is reserved", name)
	}
	return nil
}

// Normalize fills defaults and checks type, component and config documents.
func Normalize(f *models.DynamicField) error {
	f.Name = strings.TrimSpace(f.Name)
	f.Title = strings.TrimSpace(f.Title)
	if err := CheckName(f.Name); err != nil {
		return err
	}
	if f.Title == "" {
		return fmt.Errorf("field title is required")
	}
	if !f.EntityType.Primary() {
		return fmt.Errorf("dynamic fields apply to bulletin, actor or incident, not %q", f.EntityType)
	}
	allowed, ok := components[f.FieldType]
	if !ok {
		return fmt.Errorf("unknown field type %q", f.FieldType)
	}
	if f.UIComponent == "" {
		f.UIComponent = allowed[0]
	}
	if !slices.Contains(allowed, f.UIComponent) {
		return fmt.Errorf("ui component %q cannot render a %s field", f.UIComponent, f.FieldType)
	}
	if len(f.SchemaConfig) == 0 {
		f.SchemaConfig = models.JSONB(`{}`)
	}
	if len(f.UIConfig) == 0 {
		f.UIConfig = models.JSONB(`{}`)
	}
	if len(f.ValidationConfig) == 0 {
		f.ValidationConfig = models.JSONB(`{}`)
	}
	if len(f.Options) == 0 {
		f.Options = models.JSONB(`[]`)
	}

	var sc schemaConfig
	if err := f.SchemaConfig.Decode(&sc); err != nil {
		return fmt.Errorf("schema_config must be an object: %w", err)
	}
	if sc.MaxLength < 0 || sc.MaxLength > maxStringLength {
		return fmt.Errorf("schema_config.max_length must be between 1 and %d", maxStringLength)
	}
	var vc validationConfig
	if err := f.ValidationConfig.Decode(&vc); err != nil {
		return fmt.Errorf("validation_config must be an object: %w", err)
	}
	if vc.Pattern != "" {
		if _, err := regexp.Compile(vc.Pattern); err != nil {
			return fmt.Errorf("validation_config.pattern: %w", err)
		}
	}
	var opts []json.RawMessage
	if err := json.Unmarshal(f.Options, &opts); err != nil {
		return fmt.Errorf("options must be a list")
	}
	if (f.UIComponent == "dropdown" || f.UIComponent == "multi_select") && len(opts) == 0 {
		return fmt.Errorf("a %s needs options", f.UIComponent)
	}
	return nil
}

// SQLType maps a field onto its column type.
func SQLType(f *models.DynamicField) string {
	switch f.FieldType {
	case models.FieldString:
		var sc schemaConfig
		_ = f.SchemaConfig.Decode(&sc)
		n := sc.MaxLength
		if n == 0 {
			n = defaultStringLength
		}
		return fmt.Sprintf("varchar(%d)", n)
	case models.FieldInteger:
		return "integer"
	case models.FieldDatetime:
		return "timestamptz"
	case models.FieldArray:
		return "varchar[]"
	case models.FieldBoolean:
		return "boolean"
	case models.FieldFloat:
		return "double precision"
	case models.FieldJSON:
		return "jsonb"
	}
	return "text"
}

// udtName is the information_schema.columns.udt_name of each field type.
func udtName(fieldType string) string {
	switch fieldType {
	case models.FieldString:
		return "varchar"
	case models.FieldInteger:
		return "int4"
	case models.FieldDatetime:
		return "timestamptz"
	case models.FieldArray:
		return "_varchar"
	case models.FieldBoolean:
		return "bool"
	case models.FieldFloat:
		return "float8"
	case models.FieldJSON:
		return "jsonb"
	}
	return "text"
}

// backfill is the default that lets a NOT NULL column be added to a populated table.
func backfill(fieldType string) string {
	switch fieldType {
	case models.FieldInteger, models.FieldFloat:
		return "0"
	case models.FieldDatetime:
		return "now()"
	case models.FieldArray:
		return "'{}'"
	case models.FieldBoolean:
		return "false"
	case models.FieldJSON:
		return "'{}'::jsonb"
	}
	return "''"
}

// IndexName is the searchable index of a field.
func IndexName(f *models.DynamicField) string {
	return fmt.Sprintf("ix_%s_%s", f.EntityType.Table(), f.Name)
}

func addColumnSQL(f *models.DynamicField) string {
	col := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
		pq.QuoteIdentifier(f.EntityType.Table()), pq.QuoteIdentifier(f.Name), SQLType(f))
	if f.Required {
		col += " NOT NULL DEFAULT " + backfill(f.FieldType)
	}
	return col
}

func createIndexSQL(f *models.DynamicField) string {
	method := fmt.Sprintf("(%s)", pq.QuoteIdentifier(f.Name))
	if f.FieldType == models.FieldString || f.FieldType == models.FieldText {
		method = fmt.Sprintf("USING gin (%s gin_trgm_ops)", pq.QuoteIdentifier(f.Name))
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s %s",
		pq.QuoteIdentifier(IndexName(f)), pq.QuoteIdentifier(f.EntityType.Table()), method)
}

func dropIndexSQL(f *models.DynamicField) string {
	return "DROP INDEX IF EXISTS " + pq.QuoteIdentifier(IndexName(f))
}

func dropColumnSQL(f *models.DynamicField) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s",
		pq.QuoteIdentifier(f.EntityType.Table()), pq.QuoteIdentifier(f.Name))
}

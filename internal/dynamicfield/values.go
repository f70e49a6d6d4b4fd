package dynamicfield

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/lib/pq"

	"bayanat/internal/entity/models"
)

// Coerce converts a JSON value into the column value for f. A JSON null yields nil
// unless the field is required.
func Coerce(f *models.DynamicField, raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		if f.Required {
			return nil, fmt.Errorf("%s is required", f.Name)
		}
		return nil, nil
	}
	var vc validationConfig
	_ = f.ValidationConfig.Decode(&vc)

	switch f.FieldType {
	case models.FieldString, models.FieldText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%s must be a string", f.Name)
		}
		limit := vc.MaxLength
		if f.FieldType == models.FieldString {
			var sc schemaConfig
			_ = f.SchemaConfig.Decode(&sc)
			if sc.MaxLength == 0 {
				sc.MaxLength = defaultStringLength
			}
			if limit == 0 || sc.MaxLength < limit {
				limit = sc.MaxLength
			}
		}
		if limit > 0 && utf8.RuneCountInString(s) > limit {
			return nil, fmt.Errorf("%s is longer than %d characters", f.Name, limit)
		}
		if vc.Pattern != "" {
			re, err := regexp.Compile(vc.Pattern)
			if err != nil || !re.MatchString(s) {
				return nil, fmt.Errorf("%s does not match the expected pattern", f.Name)
			}
		}
		if s == "" && f.Required {
			return nil, fmt.Errorf("%s is required", f.Name)
		}
		return s, nil

	case models.FieldInteger:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("%s must be an integer", f.Name)
		}
		v, err := n.Int64()
		if err != nil || v > math.MaxInt32 || v < math.MinInt32 {
			return nil, fmt.Errorf("%s must be a 32-bit integer", f.Name)
		}
		if err := checkRange(f.Name, float64(v), vc); err != nil {
			return nil, err
		}
		return v, nil

	case models.FieldFloat:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%s must be a number", f.Name)
		}
		if err := checkRange(f.Name, v, vc); err != nil {
			return nil, err
		}
		return v, nil

	case models.FieldBoolean:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%s must be true or false", f.Name)
		}
		return v, nil

	case models.FieldDatetime:
		var d models.DateTime
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		return d.Time.UTC(), nil

	case models.FieldArray:
		var items []string
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%s must be a list of strings", f.Name)
		}
		if items == nil {
			items = []string{}
		}
		return pq.StringArray(items), nil

	case models.FieldJSON:
		if !json.Valid(raw) {
			return nil, fmt.Errorf("%s must be valid JSON", f.Name)
		}
		return string(raw), nil
	}
	return nil, fmt.Errorf("%s has unknown type %q", f.Name, f.FieldType)
}

func checkRange(name string, v float64, vc validationConfig) error {
	if vc.Min != nil && v < *vc.Min {
		return fmt.Errorf("%s must be at least %v", name, *vc.Min)
	}
	if vc.Max != nil && v > *vc.Max {
		return fmt.Errorf("%s must be at most %v", name, *vc.Max)
	}
	return nil
}

// Format renders a stored value, as read back through to_jsonb, for serialization.
// Timestamps use the wire time layout and integers stay integral.
func Format(f *models.DynamicField, v any) any {
	switch f.FieldType {
	case models.FieldDatetime:
		s, ok := v.(string)
		if !ok {
			return v
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return v
		}
		return t.UTC().Format(models.TimeLayout)
	case models.FieldInteger:
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				return i
			}
		}
	case models.FieldFloat:
		if n, ok := v.(json.Number); ok {
			if x, err := n.Float64(); err == nil {
				return x
			}
		}
	}
	return v
}

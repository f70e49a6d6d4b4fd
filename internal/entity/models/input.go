package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Opt carries presence semantics for upsert payloads. A key absent from the payload
// leaves Set false; an explicit null or empty string sets Null.
type Opt[T any] struct {
	Set  bool
	Null bool
	V    T
}

// Some returns a present, non-null value.
func Some[T any](v T) Opt[T] {
	return Opt[T]{Set: true, V: v}
}

// Clear returns a present null.
func Clear[T any]() Opt[T] {
	return Opt[T]{Set: true, Null: true}
}

func (o *Opt[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	trimmed := bytes.TrimSpace(b)
	if string(trimmed) == "null" || string(trimmed) == `""` {
		var zero T
		o.Null, o.V = true, zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(trimmed, &o.V)
}

// Valid reports a present non-null value.
func (o Opt[T]) Valid() bool { return o.Set && !o.Null }

// Apply writes the option into dst when set; a null resets dst to def.
func (o Opt[T]) Apply(dst *T, def T) {
	if !o.Set {
		return
	}
	if o.Null {
		*dst = def
		return
	}
	*dst = o.V
}

// ApplyPtr writes the option into a nullable destination.
func (o Opt[T]) ApplyPtr(dst **T) {
	if !o.Set {
		return
	}
	if o.Null {
		*dst = nil
		return
	}
	v := o.V
	*dst = &v
}

// IDRef references an entity by id. It accepts {"id": N}, N, or "N".
type IDRef int

func (r *IDRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		if len(obj.ID) == 0 {
			return fmt.Errorf("reference object without id")
		}
		b = obj.ID
	}
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return fmt.Errorf("invalid id reference %q", s)
	}
	*r = IDRef(v)
	return nil
}

func (r IDRef) Int() int { return int(r) }

// IDs flattens references, dropping duplicates while keeping order.
func IDs(refs []IDRef) []int {
	seen := make(map[int]struct{}, len(refs))
	out := make([]int, 0, len(refs))
	for _, r := range refs {
		id := int(r)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	TimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// DateTime parses the timestamp shapes clients send.
type DateTime struct {
	time.Time
}

func (d *DateTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	t, err := ParseDateTime(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.UTC().Format(TimeLayout))
}

// ParseDateTime parses s in any accepted layout and returns it in UTC.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// ApplyTime writes a DateTime option into a nullable time column.
func ApplyTime(o Opt[DateTime], dst **time.Time) {
	if !o.Set {
		return
	}
	if o.Null {
		*dst = nil
		return
	}
	t := o.V.Time
	*dst = &t
}

package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Dict is a serialized entity view.
type Dict = map[string]any

// TimeLayout is the wire format of every timestamp.
const TimeLayout = "2006-01-02T15:04"

// FormatTime renders t in TimeLayout (UTC), or nil when t is unset.
func FormatTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(TimeLayout)
}

// FormatTimeValue is FormatTime for non-pointer timestamps.
func FormatTimeValue(t time.Time) any {
	return FormatTime(&t)
}

// Point is a WGS-84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether p lies within coordinate bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// UserRef is the compact user shown on assignment fields.
type UserRef struct {
	ID       int    `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	Name     string `db:"name" json:"name"`
}

func (u *UserRef) Dict() Dict {
	if u == nil {
		return nil
	}
	return Dict{"id": u.ID, "username": u.Username, "name": u.Name}
}

// Term is a compact vocabulary item (label, source, ethnography, country...).
type Term struct {
	ID      int    `db:"id"`
	Title   string `db:"title"`
	TitleAr string `db:"title_ar"`
}

func (t Term) Dict() Dict {
	return Dict{"id": t.ID, "title": t.Title, "title_ar": t.TitleAr}
}

// Role scopes entity visibility.
type Role struct {
	ID          int    `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Color       string `db:"color" json:"color"`
	Description string `db:"description" json:"description"`
}

func (r Role) Dict() Dict {
	return Dict{"id": r.ID, "name": r.Name, "color": r.Color}
}

// Codes is a set of integer codes stored as integer[].
type Codes []int

func (c Codes) Value() (driver.Value, error) {
	arr := make(pq.Int64Array, len(c))
	for i, v := range c {
		arr[i] = int64(v)
	}
	return arr.Value()
}

func (c *Codes) Scan(src any) error {
	var arr pq.Int64Array
	if err := arr.Scan(src); err != nil {
		return err
	}
	out := make(Codes, len(arr))
	for i, v := range arr {
		out[i] = int(v)
	}
	*c = out
	return nil
}

// Equal compares two code sets ignoring order and duplicates.
func (c Codes) Equal(o Codes) bool {
	a, b := c.set(), o.set()
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func (c Codes) set() map[int]struct{} {
	m := make(map[int]struct{}, len(c))
	for _, v := range c {
		m[v] = struct{}{}
	}
	return m
}

// Normalize drops duplicates while keeping first-seen order.
func (c Codes) Normalize() Codes {
	seen := make(map[int]struct{}, len(c))
	out := make(Codes, 0, len(c))
	for _, v := range c {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// UnmarshalJSON accepts a scalar code, an array of codes, or null.
func (c *Codes) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" || string(b) == `""` {
		*c = Codes{}
		return nil
	}
	if b[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		out := make(Codes, 0, len(raw))
		for _, r := range raw {
			v, err := parseCode(r)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		*c = out
		return nil
	}
	v, err := parseCode(b)
	if err != nil {
		return err
	}
	*c = Codes{v}
	return nil
}

func parseCode(b []byte) (int, error) {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("related_as code %q is not an integer", s)
	}
	return v, nil
}

// StringList is a text[] column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return pq.StringArray{}.Value()
	}
	return pq.StringArray(l).Value()
}

func (l *StringList) Scan(src any) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	*l = StringList(arr)
	return nil
}

// NormalizeTags trims, drops empties and de-duplicates tags while keeping order.
func NormalizeTags(tags []string) StringList {
	seen := make(map[string]struct{}, len(tags))
	out := make(StringList, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// JSONB scans a jsonb column into raw bytes and writes it back verbatim.
type JSONB json.RawMessage

func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSONB) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSONB(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONB", src)
	}
	return nil
}

func (j JSONB) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSONB) UnmarshalJSON(b []byte) error {
	*j = append((*j)[:0], b...)
	return nil
}

// Decode unmarshals the document into dst; empty documents leave dst untouched.
func (j JSONB) Decode(dst any) error {
	if len(j) == 0 {
		return nil
	}
	return json.Unmarshal(j, dst)
}

func scanJSON(src any, dst any) error {
	var raw JSONB
	if err := raw.Scan(src); err != nil {
		return err
	}
	return raw.Decode(dst)
}

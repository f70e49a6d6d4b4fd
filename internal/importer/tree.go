package importer

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"

	"bayanat/internal/entity/models"
	dErrors "bayanat/pkg/domain-errors"
)

type kind int

const (
	kindText kind = iota
	kindInt
	kindBool
	kindTags
)

// treeShape describes one importable tree table. Columns other than id, parent_id and
// the listed ones are ignored.
type treeShape struct {
	table   string
	columns []string
	kinds   map[string]kind
	// point reads latitude and longitude columns into latlng.
	point bool
}

var (
	labelTree = treeShape{
		table:   "label",
		columns: []string{"title", "title_ar", "comments", "comments_ar", "order", "verified", "for_bulletin", "for_actor", "for_incident", "for_offline"},
		kinds: map[string]kind{
			"order":    kindInt,
			"verified": kindBool, "for_bulletin": kindBool, "for_actor": kindBool,
			"for_incident": kindBool, "for_offline": kindBool,
		},
	}
	sourceTree = treeShape{
		table:   "source",
		columns: []string{"title", "title_ar", "etl_id", "comments", "comments_ar"},
	}
	locationTree = treeShape{
		table:   "location",
		columns: []string{"title", "title_ar", "description", "location_type_id", "admin_level_id", "postal_code", "country_id", "tags"},
		kinds: map[string]kind{
			"location_type_id": kindInt, "admin_level_id": kindInt, "country_id": kindInt,
			"tags": kindTags,
		},
		point: true,
	}
)

// treeRows is a parsed tree file ready for insertion, parents ahead of children.
type treeRows struct {
	columns []string
	values  [][]any
}

// parseTree converts CSV rows into insert values. Headers match case-insensitively;
// id and title are required and ids must be unique. A parent_id may name a row of the
// file or an existing node.
func parseTree(shape treeShape, t *table) (*treeRows, error) {
	present := make(map[string]bool, len(t.header))
	for n, h := range t.header {
		t.header[n] = strings.ToLower(h)
		present[t.header[n]] = true
	}
	for _, req := range []string{"id", "title"} {
		if !present[req] {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s csv must have a %q column", shape.table, req))
		}
	}
	out := &treeRows{columns: []string{"id", "parent_id"}}
	var used []string
	for _, c := range shape.columns {
		if present[c] {
			used = append(used, c)
			out.columns = append(out.columns, c)
		}
	}
	point := shape.point && present["latitude"] && present["longitude"]
	if point {
		out.columns = append(out.columns, "latlng")
	}

	byID := make(map[int][]any, len(t.rows))
	parents := make(map[int]int)
	var ids []int
	for n := range t.rows {
		line := n + 2
		rec := t.record(n)
		id, err := strconv.Atoi(rec["id"])
		if err != nil || id <= 0 {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("line %d: invalid id %q", line, rec["id"]))
		}
		if byID[id] != nil {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("line %d: duplicate id %d", line, id))
		}
		if rec["title"] == "" {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("line %d: title is required", line))
		}
		row := []any{id, nil}
		if p := rec["parent_id"]; p != "" {
			parent, err := strconv.Atoi(p)
			if err != nil || parent == id {
				return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("line %d: invalid parent_id %q", line, p))
			}
			row[1] = parent
			parents[id] = parent
		}
		for _, c := range used {
			v, err := convert(shape.kinds[c], rec[c])
			if err != nil {
				return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("line %d: column %s: %s", line, c, err))
			}
			row = append(row, v)
		}
		if point {
			v, err := pointExpr(rec["latitude"], rec["longitude"])
			if err != nil {
				return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("line %d: %s", line, err))
			}
			row = append(row, v)
		}
		byID[id] = row
		ids = append(ids, id)
	}

	ordered, err := parentsFirst(ids, parents)
	if err != nil {
		return nil, err
	}
	for _, id := range ordered {
		out.values = append(out.values, byID[id])
	}
	return out, nil
}

// parentsFirst orders ids so every parent in the file precedes its children, keeping
// file order otherwise. A parent cycle is rejected.
func parentsFirst(ids []int, parents map[int]int) ([]int, error) {
	inFile := make(map[int]bool, len(ids))
	for _, id := range ids {
		inFile[id] = true
	}
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[int]int, len(ids))
	out := make([]int, 0, len(ids))
	var visit func(id int) error
	visit = func(id int) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("parent cycle through id %d", id))
		}
		state[id] = visiting
		if p, ok := parents[id]; ok && inFile[p] {
			if err := visit(p); err != nil {
				return err
			}
		}
		state[id] = done
		out = append(out, id)
		return nil
	}
	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func convert(k kind, v string) (any, error) {
	switch k {
	case kindInt:
		if v == "" {
			return nil, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", v)
		}
		return n, nil
	case kindBool:
		switch strings.ToLower(v) {
		case "", "0", "f", "false", "no", "n":
			return false, nil
		case "1", "t", "true", "yes", "y":
			return true, nil
		}
		return nil, fmt.Errorf("%q is not a boolean", v)
	case kindTags:
		return pq.Array([]string(models.NormalizeTags(strings.Split(v, ",")))), nil
	}
	if v == "" {
		return nil, nil
	}
	return v, nil
}

func pointExpr(lat, lng string) (any, error) {
	if lat == "" && lng == "" {
		return nil, nil
	}
	la, errLat := strconv.ParseFloat(lat, 64)
	ln, errLng := strconv.ParseFloat(lng, 64)
	if errLat != nil || errLng != nil {
		return nil, fmt.Errorf("invalid coordinates %q, %q", lat, lng)
	}
	if p := (models.Point{Lat: la, Lng: ln}); !p.Valid() {
		return nil, fmt.Errorf("coordinates %q, %q out of range", lat, lng)
	}
	return sq.Expr("ST_SetSRID(ST_MakePoint(?, ?), 4326)", ln, la), nil
}

// ImportLabels loads a label tree from CSV.
func (i *Importer) ImportLabels(ctx context.Context, fileName string, r io.Reader) (*Result, error) {
	return i.importTree(ctx, labelTree, fileName, r, nil)
}

// ImportSources loads a source tree from CSV.
func (i *Importer) ImportSources(ctx context.Context, fileName string, r io.Reader) (*Result, error) {
	return i.importTree(ctx, sourceTree, fileName, r, nil)
}

// ImportLocations loads a location tree from CSV and rebuilds id_tree and
// full_location for every location.
func (i *Importer) ImportLocations(ctx context.Context, fileName string, r io.Reader) (*Result, error) {
	return i.importTree(ctx, locationTree, fileName, r, func(ctx context.Context) error {
		n, err := i.taxonomy.RegenerateAllFullLocations(ctx)
		if err != nil {
			return err
		}
		i.logger.InfoContext(ctx, "locations regenerated after import", "changed", n)
		return nil
	})
}

func (i *Importer) importTree(ctx context.Context, shape treeShape, fileName string, r io.Reader, after func(context.Context) error) (*Result, error) {
	ctx, span := tracer.Start(ctx, "importer.ImportTree")
	defer span.End()
	span.SetAttributes(attribute.String("import.table", shape.table))

	l, err := i.start(ctx, shape.table, fileName)
	if err != nil {
		return nil, err
	}
	res := &Result{LogID: l.ID, Imported: []int{}}
	err = i.loadTree(ctx, shape, r, res, after)
	if err != nil {
		res.Imported = []int{}
	}
	i.finish(ctx, l, res, err)
	if err != nil {
		return res, err
	}
	i.logger.InfoContext(ctx, "tree imported", "table", shape.table, "rows", len(res.Imported), "log_id", l.ID)
	return res, nil
}

func (i *Importer) loadTree(ctx context.Context, shape treeShape, r io.Reader, res *Result, after func(context.Context) error) error {
	t, err := readCSV(r)
	if err != nil {
		return err
	}
	rows, err := parseTree(shape, t)
	if err != nil {
		return err
	}
	return i.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := i.store.InsertRows(ctx, shape.table, rows.columns, rows.values); err != nil {
			return translate(err, shape.table+" rows")
		}
		if err := i.store.ResetSequence(ctx, shape.table); err != nil {
			return translate(err, shape.table+" sequence")
		}
		if after != nil {
			if err := after(ctx); err != nil {
				return err
			}
		}
		for _, row := range rows.values {
			res.Imported = append(res.Imported, row[0].(int))
		}
		return nil
	})
}

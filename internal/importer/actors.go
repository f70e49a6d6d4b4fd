package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"bayanat/internal/entity/models"
	"bayanat/internal/entity/service"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/requestcontext"
)

// Mapping binds CSV headers to actor fields. Unmapped columns and values that do not
// match a choice or vocabulary are kept in the description as "Header: value" lines.
type Mapping struct {
	Columns map[string]string `json:"columns" validate:"required,min=1"`
	Roles   []int             `json:"roles"`
	Status  string            `json:"status"`
}

const defaultImportStatus = "Machine Created"

var actorText = []string{
	"type", "name", "name_ar", "first_name", "first_name_ar", "middle_name", "middle_name_ar",
	"last_name", "last_name_ar", "nickname", "nickname_ar", "father_name", "father_name_ar",
	"mother_name", "mother_name_ar", "occupation", "occupation_ar", "position", "position_ar",
	"description", "comments",
}

// actorVocab maps list fields to the vocabulary their values are matched against.
var actorVocab = map[string]string{
	"ethnographies": "ethnography",
	"nationalities": "country",
	"dialects":      "dialect",
}

type choice struct {
	value       string
	translation string
}

// actorChoices lists the accepted values of the actor choice fields with their Arabic
// labels; either spelling matches.
var actorChoices = map[string][]choice{
	"sex": {{"Male", "ذكر"}, {"Female", "أنثى"}},
	"age": {{"Minor", "قاصر"}, {"Adult", "بالغ"}},
	"civilian": {
		{"Unknown", "غير معروف"}, {"Civilian", "مدني"}, {"Non-Civilian", "غير مدني"},
		{"Police", "شرطة"}, {"Military", "عسكري"},
	},
	"family_status": {
		{"Unknown", "غير معروف"}, {"Single", "أعزب"}, {"Married", "متزوج"},
		{"Divorced", "مطلق"}, {"Widowed", "أرمل"},
	},
}

func matchChoice(field, v string) (string, bool) {
	for _, c := range actorChoices[field] {
		if strings.EqualFold(v, c.value) || v == c.translation {
			return c.value, true
		}
	}
	return "", false
}

// vocabIndex resolves lower-cased titles and translations to ids, per vocabulary.
type vocabIndex map[string]map[string]int

func (i *Importer) loadVocab(ctx context.Context) (vocabIndex, error) {
	idx := make(vocabIndex, len(actorVocab))
	for _, name := range actorVocab {
		items, err := i.taxonomy.ListVocab(ctx, name)
		if err != nil {
			return nil, err
		}
		titles := make(map[string]int, len(items)*2)
		for _, it := range items {
			if it.TitleTr != "" {
				titles[strings.ToLower(it.TitleTr)] = it.ID
			}
			titles[strings.ToLower(it.Title)] = it.ID
		}
		idx[name] = titles
	}
	return idx, nil
}

// actorRow assembles entity payloads from CSV records under a mapping.
type actorRow struct {
	mapping Mapping
	header  []string
	vocab   vocabIndex
	dynamic map[string]*models.DynamicField
}

// checkMapping rejects mappings that name unknown headers or fields.
func (a *actorRow) checkMapping() error {
	if err := models.Validate(&a.mapping); err != nil {
		return err
	}
	for h, field := range a.mapping.Columns {
		if !slices.Contains(a.header, h) {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("mapped column %q is not in the file", h))
		}
		if !a.known(field) {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("column %q maps to unknown actor field %q", h, field))
		}
	}
	return nil
}

func (a *actorRow) known(field string) bool {
	if slices.Contains(actorText, field) || field == "no_children" || field == "tags" {
		return true
	}
	if _, ok := actorChoices[field]; ok {
		return true
	}
	if _, ok := actorVocab[field]; ok {
		return true
	}
	_, ok := a.dynamic[field]
	return ok
}

// payload builds the ingest document for one record.
func (a *actorRow) payload(rec map[string]string) (map[string]any, error) {
	out := make(map[string]any)
	var extra []string
	keep := func(h, v string) { extra = append(extra, h+": "+v) }

	for _, h := range a.header {
		v := rec[h]
		if v == "" {
			continue
		}
		field, mapped := a.mapping.Columns[h]
		if !mapped {
			keep(h, v)
			continue
		}
		switch {
		case slices.Contains(actorText, field):
			out[field] = v
		case field == "no_children":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %q is not a number", h, v)
			}
			out[field] = n
		case field == "tags":
			out[field] = splitList(v)
		case actorChoices[field] != nil:
			if c, ok := matchChoice(field, v); ok {
				out[field] = c
			} else {
				keep(h, v)
			}
		case actorVocab[field] != "":
			titles := a.vocab[actorVocab[field]]
			var refs []models.IDRef
			for _, item := range splitList(v) {
				if id, ok := titles[strings.ToLower(item)]; ok {
					refs = append(refs, models.IDRef(id))
				} else {
					keep(h, item)
				}
			}
			if len(refs) > 0 {
				out[field] = refs
			}
		default:
			dv, err := dynamicValue(a.dynamic[field], v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", h, err)
			}
			out[field] = dv
		}
	}

	if len(extra) > 0 {
		desc, _ := out["description"].(string)
		if desc != "" {
			desc += "\n"
		}
		out["description"] = desc + strings.Join(extra, "\n")
	}
	status := a.mapping.Status
	if status == "" {
		status = defaultImportStatus
	}
	out["status"] = status
	if len(a.mapping.Roles) > 0 {
		refs := make([]models.IDRef, len(a.mapping.Roles))
		for n, r := range a.mapping.Roles {
			refs[n] = models.IDRef(r)
		}
		out["roles"] = refs
	}
	return out, nil
}

func splitList(v string) []string {
	parts := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// dynamicValue types a cell for a dynamic field column.
func dynamicValue(f *models.DynamicField, v string) (any, error) {
	switch f.FieldType {
	case models.FieldInteger, models.FieldFloat:
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("%q is not a number", v)
		}
		return json.Number(v), nil
	case models.FieldBoolean:
		return convert(kindBool, v)
	case models.FieldArray:
		return splitList(v), nil
	case models.FieldJSON:
		if !json.Valid([]byte(v)) {
			return nil, fmt.Errorf("%q is not valid JSON", v)
		}
		return json.RawMessage(v), nil
	}
	return v, nil
}

// ImportActors creates one actor per CSV row. Rows that fail are recorded in the import
// log and counted; the rest of the file still imports. Relation cascades are skipped.
func (i *Importer) ImportActors(ctx context.Context, fileName string, r io.Reader, m Mapping) (*Result, error) {
	ctx, span := tracer.Start(ctx, "importer.ImportActors")
	defer span.End()

	if err := authorize(ctx); err != nil {
		return nil, err
	}
	t, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	fields, err := i.fields.Active(ctx, models.ClassActor)
	if err != nil {
		return nil, err
	}
	row := &actorRow{mapping: m, header: t.header, dynamic: make(map[string]*models.DynamicField, len(fields))}
	for n := range fields {
		row.dynamic[fields[n].Name] = &fields[n]
	}
	if err := row.checkMapping(); err != nil {
		return nil, err
	}
	if row.vocab, err = i.loadVocab(ctx); err != nil {
		return nil, err
	}

	l, err := i.start(ctx, models.ClassActor.Table(), fileName)
	if err != nil {
		return nil, err
	}
	res := &Result{LogID: l.ID, Imported: []int{}}
	for n := range t.rows {
		line := n + 2
		id, err := i.importActor(ctx, row, t.record(n))
		if err != nil {
			res.Failed++
			l.Printf(requestcontext.Now(ctx), "line %d: %s", line, dErrors.Message(err))
			if i.metrics != nil {
				i.metrics.IncrementImportFailure(l.Table)
			}
			i.logger.WarnContext(ctx, "actor row rejected", "log_id", l.ID, "line", line, "error", err)
			continue
		}
		res.Imported = append(res.Imported, id)
	}
	span.SetAttributes(attribute.Int("import.imported", len(res.Imported)), attribute.Int("import.failed", res.Failed))
	i.finish(ctx, l, res, nil)
	i.logger.InfoContext(ctx, "actors imported", "imported", len(res.Imported), "failed", res.Failed, "log_id", l.ID)
	return res, nil
}

func (i *Importer) importActor(ctx context.Context, row *actorRow, rec map[string]string) (int, error) {
	doc, err := row.payload(rec)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode actor row")
	}
	return i.entities.Ingest(ctx, models.ClassActor, 0, payload, service.WithoutCascade())
}

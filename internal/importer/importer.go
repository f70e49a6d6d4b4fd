// Package importer loads CSV files into the taxonomy trees and the actor table.
//
// Tree imports (labels, sources, locations) run in one transaction with explicit ids:
// rows are inserted parents first and the id sequence is moved past the highest
// imported id. Actor imports run row by row through the entity service; a bad
// row is logged and skipped.
package importer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	"bayanat/internal/entity/service"
	"bayanat/internal/platform/metrics"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/sentinel"
	"bayanat/pkg/requestcontext"
)

var tracer = otel.Tracer("bayanat/importer")

// Store persists import logs and bulk tree rows.
type Store interface {
	CreateLog(ctx context.Context, l *Log) error
	UpdateLog(ctx context.Context, l *Log) error
	GetLog(ctx context.Context, id int) (*Log, error)
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error
	ResetSequence(ctx context.Context, table string) error
}

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Entities ingests raw entity payloads.
type Entities interface {
	Ingest(ctx context.Context, class models.Class, id int, payload []byte, opts ...service.UpsertOption) (int, error)
}

// Taxonomy resolves vocabulary titles and rebuilds location derivations.
type Taxonomy interface {
	ListVocab(ctx context.Context, name string) ([]models.VocabItem, error)
	RegenerateAllFullLocations(ctx context.Context) (int, error)
}

// Fields lists the active dynamic fields of a class.
type Fields interface {
	Active(ctx context.Context, class models.Class) ([]models.DynamicField, error)
}

// Result summarizes one import.
type Result struct {
	LogID    int   `json:"log_id"`
	Imported []int `json:"imported"`
	Failed   int   `json:"failed"`
}

// Importer runs CSV imports and records each in data_import.
type Importer struct {
	store    Store
	tx       TxRunner
	entities Entities
	taxonomy Taxonomy
	fields   Fields
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Importer)

func WithLogger(logger *slog.Logger) Option {
	return func(i *Importer) { i.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Importer) { i.metrics = m }
}

func New(store Store, tx TxRunner, entities Entities, taxonomy Taxonomy, fields Fields, opts ...Option) *Importer {
	i := &Importer{
		store:    store,
		tx:       tx,
		entities: entities,
		taxonomy: taxonomy,
		fields:   fields,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func authorize(ctx context.Context) error {
	if !access.Allowed(ctx, access.PermImport) {
		return dErrors.New(dErrors.CodeForbidden, "caller may not import data")
	}
	return nil
}

// Log returns a recorded import.
func (i *Importer) Log(ctx context.Context, id int) (*Log, error) {
	if err := authorize(ctx); err != nil {
		return nil, err
	}
	l, err := i.store.GetLog(ctx, id)
	if err != nil {
		return nil, translate(err, fmt.Sprintf("import log %d", id))
	}
	return l, nil
}

// start checks permission and opens a log in Processing state.
func (i *Importer) start(ctx context.Context, table, fileName string) (*Log, error) {
	if err := authorize(ctx); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	l := &Log{
		Table:     table,
		FileName:  fileName,
		Status:    StatusProcessing,
		Data:      models.JSONB(`{}`),
		UserID:    access.ActingUserID(ctx),
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.Printf(now, "import of %s started", table)
	if err := i.store.CreateLog(ctx, l); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open import log")
	}
	return l, nil
}

// finish stores the final status. A failure to save the log does not mask err.
func (i *Importer) finish(ctx context.Context, l *Log, res *Result, err error) {
	now := requestcontext.Now(ctx)
	l.UpdatedAt = now
	if err != nil {
		l.Status = StatusFailed
		l.Printf(now, "import failed: %s", err.Error())
		if i.metrics != nil {
			i.metrics.IncrementImportFailure(l.Table)
		}
	} else {
		l.Status = StatusReady
		l.Printf(now, "import finished: %d imported, %d failed", len(res.Imported), res.Failed)
	}
	if data, mErr := marshalResult(res); mErr == nil {
		l.Data = data
	}
	if uErr := i.store.UpdateLog(ctx, l); uErr != nil {
		i.logger.ErrorContext(ctx, "failed to save import log", "log_id", l.ID, "error", uErr)
	}
}

// table is a parsed CSV file: trimmed headers and the non-blank data rows.
type table struct {
	header []string
	rows   [][]string
}

func readCSV(r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, dErrors.New(dErrors.CodeValidation, "csv file is empty")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid csv header")
	}
	t := &table{header: make([]string, len(header))}
	for n, h := range header {
		t.header[n] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid csv row")
		}
		if blank(rec) {
			continue
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// record maps header to trimmed cell value; short rows leave trailing columns empty.
func (t *table) record(n int) map[string]string {
	row := t.rows[n]
	out := make(map[string]string, len(t.header))
	for c, h := range t.header {
		if c < len(row) {
			out[h] = strings.TrimSpace(row[c])
		} else {
			out[h] = ""
		}
	}
	return out
}

func marshalResult(res *Result) (models.JSONB, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	return models.JSONB(b), nil
}

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case dErrors.Coded(err):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, what+" conflicts with an existing row")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeValidation, what+" violates a constraint")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to import "+what)
}

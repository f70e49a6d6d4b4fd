// Package revision appends immutable snapshots of entities to their history tables.
package revision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	"bayanat/internal/platform/metrics"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/sentinel"
	"bayanat/pkg/requestcontext"
)

var tracer = otel.Tracer("bayanat/revision")

// EventRevisionCreated is the outbox event type of every appended snapshot.
const EventRevisionCreated = "revision.created"

// Cause tells whether a snapshot follows a direct edit or a cascaded relation change.
type Cause string

const (
	CauseDirect  Cause = "direct"
	CauseCascade Cause = "cascade"
)

// Store is the persistence the recorder needs.
type Store interface {
	Lock(ctx context.Context, class models.Class, id int) error
	LastRevisionAt(ctx context.Context, class models.Class, id int) (*time.Time, error)
	Touch(ctx context.Context, class models.Class, id int, at time.Time) error
	Append(ctx context.Context, class models.Class, row *models.HistoryRow) error
	List(ctx context.Context, class models.Class, id int) ([]models.HistoryRow, error)
}

// Publisher appends domain events to the transactional outbox.
type Publisher interface {
	Append(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) error
}

// Source serializes the current state of a subject for its snapshot.
type Source func(ctx context.Context, id int) (models.Dict, error)

// Recorder appends snapshots. It must run inside the transaction that made the change
// so the snapshot reflects exactly the committed state.
type Recorder struct {
	store   Store
	outbox  Publisher
	sources map[models.Class]Source
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithPublisher mirrors every snapshot into the outbox.
func WithPublisher(p Publisher) Option {
	return func(r *Recorder) { r.outbox = p }
}

func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:   store,
		sources: make(map[models.Class]Source),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds the serializer used for snapshots of class.
func (r *Recorder) Register(class models.Class, src Source) {
	r.sources[class] = src
}

// Snapshot stamps the subject's updated_at and appends its full serialization. The
// stamp is strictly later than the subject's previous snapshot, so history order is
// total even when several snapshots share one request time.
func (r *Recorder) Snapshot(ctx context.Context, class models.Class, id int, cause Cause) (*models.HistoryRow, error) {
	ctx, span := tracer.Start(ctx, "revision.Snapshot")
	defer span.End()
	span.SetAttributes(
		attribute.String("revision.class", class.String()),
		attribute.Int("revision.id", id),
		attribute.String("revision.cause", string(cause)),
	)

	src, ok := r.sources[class]
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("no snapshot source for %s", class))
	}

	if err := r.store.Lock(ctx, class, id); err != nil {
		return nil, translate(err, class, id)
	}
	last, err := r.store.LastRevisionAt(ctx, class, id)
	if err != nil {
		return nil, translate(err, class, id)
	}
	at := nextStamp(requestcontext.Now(ctx), last)
	if err := r.store.Touch(ctx, class, id, at); err != nil {
		return nil, translate(err, class, id)
	}

	data, err := src(access.Trusted(ctx), id)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode snapshot")
	}

	row := &models.HistoryRow{
		SubjectID: id,
		Data:      models.JSONB(body),
		UserID:    access.ActingUserID(ctx),
		UpdatedAt: at,
	}
	if err := r.store.Append(ctx, class, row); err != nil {
		return nil, translate(err, class, id)
	}

	if r.outbox != nil {
		payload := map[string]any{
			"class":       class,
			"id":          id,
			"revision_id": row.ID,
			"cause":       cause,
			"user_id":     row.UserID,
			"at":          at,
			"data":        row.Data,
		}
		if err := r.outbox.Append(ctx, class.String(), strconv.Itoa(id), EventRevisionCreated, payload); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to queue revision event")
		}
	}

	r.metrics.IncrementRevision(class.String(), string(cause))
	r.logger.DebugContext(ctx, "revision recorded",
		"class", class,
		"id", id,
		"revision_id", row.ID,
		"cause", cause,
	)
	return row, nil
}

func nextStamp(now time.Time, last *time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if last != nil && !now.After(*last) {
		return last.UTC().Add(time.Microsecond)
	}
	return now
}

func translate(err error, class models.Class, id int) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("%s %d not found", class, id))
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record revision")
}

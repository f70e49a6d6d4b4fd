package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"bayanat/internal/platform/metrics"
)

// Producer publishes records synchronously. *kgo.Client satisfies it.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// TxRunner runs fn in one database transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RelayStore claims and stamps outbox rows.
type RelayStore interface {
	ClaimPending(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Relay moves pending outbox rows to a Kafka topic.
type Relay struct {
	store     RelayStore
	tx        TxRunner
	producer  Producer
	topic     string
	batch     int
	interval  time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	scheduler gocron.Scheduler
}

type RelayOption func(*Relay)

func WithLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) RelayOption {
	return func(r *Relay) { r.metrics = m }
}

func WithBatch(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func NewRelay(store RelayStore, tx TxRunner, producer Producer, topic string, opts ...RelayOption) *Relay {
	r := &Relay{
		store:    store,
		tx:       tx,
		producer: producer,
		topic:    topic,
		batch:    100,
		interval: time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce publishes one batch. Rows are marked published only after the broker acked
// every record; a failed batch stays pending for the next run.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	var published int
	err := r.tx.RunInTx(ctx, func(txCtx context.Context) error {
		events, err := r.store.ClaimPending(txCtx, r.batch)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		records := make([]*kgo.Record, len(events))
		ids := make([]uuid.UUID, len(events))
		for i, e := range events {
			records[i] = &kgo.Record{
				Topic: r.topic,
				Key:   []byte(e.AggregateType + ":" + e.AggregateID),
				Value: e.Payload,
				Headers: []kgo.RecordHeader{
					{Key: "event_id", Value: []byte(e.ID.String())},
					{Key: "event_type", Value: []byte(e.EventType)},
				},
				Timestamp: e.CreatedAt,
			}
			ids[i] = e.ID
		}
		if err := r.producer.ProduceSync(txCtx, records...).FirstErr(); err != nil {
			return fmt.Errorf("produce outbox batch: %w", err)
		}
		if err := r.store.MarkPublished(txCtx, ids, time.Now().UTC()); err != nil {
			return err
		}
		published = len(events)
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.metrics.AddOutboxRelayed(published)
	return published, nil
}

// Start schedules RunOnce every interval until Stop.
func (r *Relay) Start(ctx context.Context) error {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(r.logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			n, err := r.RunOnce(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
				return
			}
			if n > 0 {
				r.logger.DebugContext(ctx, "outbox relayed", "count", n)
			}
		}),
		gocron.WithName("outbox-relay"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("failed to schedule outbox relay: %w", err)
	}
	s.Start()
	r.scheduler = s
	r.logger.InfoContext(ctx, "outbox relay started", "topic", r.topic, "interval", r.interval)
	return nil
}

// Stop shuts the scheduler down, waiting for a running batch.
func (r *Relay) Stop() error {
	if r.scheduler == nil {
		return nil
	}
	if err := r.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	return nil
}

// EnsureTopic creates the relay topic if the broker lacks it.
func EnsureTopic(ctx context.Context, admin *kadm.Client, topic string, partitions int32, replicationFactor int16) error {
	resp, err := admin.CreateTopic(ctx, partitions, replicationFactor, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}

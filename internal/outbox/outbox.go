// Package outbox records domain events in the writing transaction and relays them to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bayanat/internal/platform/postgres"
	txcontext "bayanat/pkg/platform/tx"
	"bayanat/pkg/requestcontext"
)

// Event is one outbox row.
type Event struct {
	ID            uuid.UUID  `db:"id"`
	AggregateType string     `db:"aggregate_type"`
	AggregateID   string     `db:"aggregate_id"`
	EventType     string     `db:"event_type"`
	Payload       []byte     `db:"payload"`
	CreatedAt     time.Time  `db:"created_at"`
	PublishedAt   *time.Time `db:"published_at"`
}

// PostgresStore implements the transactional outbox table.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append writes an event in the caller's transaction, if any.
func (s *PostgresStore) Append(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
	`
	_, err = txcontext.Pick(ctx, s.db).ExecContext(ctx, query,
		uuid.New(),
		aggregateType,
		aggregateID,
		eventType,
		string(body),
		requestcontext.Now(ctx),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", postgres.Classify(err))
	}
	return nil
}

// ClaimPending locks up to limit unpublished events, oldest first. Rows locked by a
// concurrent relay are skipped.
func (s *PostgresStore) ClaimPending(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload::text AS payload, created_at, published_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	var events []Event
	if err := sqlx.SelectContext(ctx, txcontext.Pick(ctx, s.db), &events, query, limit); err != nil {
		return nil, fmt.Errorf("claim outbox entries: %w", postgres.Classify(err))
	}
	return events, nil
}

// MarkPublished stamps the given events as relayed.
func (s *PostgresStore) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	query := `UPDATE outbox SET published_at = $2 WHERE id = ANY($1::uuid[])`
	if _, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, query, pq.Array(strs), at); err != nil {
		return fmt.Errorf("mark outbox entries published: %w", postgres.Classify(err))
	}
	return nil
}

// PendingCount returns how many events await relay.
func (s *PostgresStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, txcontext.Pick(ctx, s.db), &n, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("count outbox entries: %w", postgres.Classify(err))
	}
	return n, nil
}

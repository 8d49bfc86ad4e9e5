// Package outbox stores domain events in the same transaction as the state
// change that produced them and relays them to Kafka afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/db"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderConfirmed     = "order.confirmed"
	EventOrderCancelled     = "order.cancelled"
	EventOrderStatusChanged = "order.status_changed"
	EventPaymentSucceeded   = "payment.succeeded"
	EventPaymentFailed      = "payment.failed"
	EventRefundRequested    = "refund.requested"
)

type Record struct {
	ID        int64           `json:"id"`
	EventID   uuid.UUID       `json:"event_id"`
	Topic     string          `json:"topic"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at"`
}

type Recorder interface {
	Record(ctx context.Context, eventType, key string, payload any) error
}

type postgresRecorder struct {
	db    *pgxpool.Pool
	topic string
}

// NewRecorder returns a recorder that writes to the outbox table using the
// transaction bound to the context, if any.
func NewRecorder(pool *pgxpool.Pool, topic string) Recorder {
	return &postgresRecorder{db: pool, topic: topic}
}

func (r *postgresRecorder) Record(ctx context.Context, eventType, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: failed to marshal %s payload: %w", eventType, err)
	}
	eventID, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("outbox: failed to generate event id: %w", err)
	}

	_, err = db.Conn(ctx, r.db).Exec(ctx,
		`INSERT INTO outbox (event_id, topic, event_type, key, payload) VALUES ($1, $2, $3, $4, $5)`,
		eventID, r.topic, eventType, key, data)
	if err != nil {
		return fmt.Errorf("outbox: failed to insert %s event: %w", eventType, err)
	}
	return nil
}

type noopRecorder struct{}

// Noop drops events; used when no broker is configured.
func Noop() Recorder {
	return noopRecorder{}
}

func (noopRecorder) Record(context.Context, string, string, any) error {
	return nil
}

// Store reads and acknowledges pending outbox rows.
type Store interface {
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, ids []int64) error
}

type postgresStore struct {
	db *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) Store {
	return &postgresStore{db: pool}
}

// FetchPending locks up to limit unsent rows; rows locked by another relay
// are skipped.
func (s *postgresStore) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	rows, err := db.Conn(ctx, s.db).Query(ctx, `
		SELECT id, event_id, topic, event_type, key, payload, created_at, sent_at
		FROM outbox
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: failed to fetch pending: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Type, &rec.Key, &rec.Payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, fmt.Errorf("outbox: failed to scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *postgresStore) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Conn(ctx, s.db).Exec(ctx, `UPDATE outbox SET sent_at = now() WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("outbox: failed to mark sent: %w", err)
	}
	return nil
}

package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NewWriter returns a kafka writer keyed by hash so that events of one
// aggregate land on one partition.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

type Relay struct {
	store     Store
	publisher Publisher
	tx        Transactor
	interval  time.Duration
	batchSize int
}

func NewRelay(store Store, publisher Publisher, tx Transactor, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{store: store, publisher: publisher, tx: tx, interval: interval, batchSize: batchSize}
}

// Run polls the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.interval).Msg("outbox: relay started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("outbox: relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("outbox: flush failed")
			}
		}
	}
}

// Flush publishes one batch of pending events and marks them sent. Rows stay
// pending if publishing fails, so delivery is at-least-once.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var sent int
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		records, err := r.store.FetchPending(ctx, r.batchSize)
		if err != nil || len(records) == 0 {
			return err
		}

		msgs := make([]kafka.Message, 0, len(records))
		ids := make([]int64, 0, len(records))
		for _, rec := range records {
			msgs = append(msgs, kafka.Message{
				Topic: rec.Topic,
				Key:   []byte(rec.Key),
				Value: rec.Payload,
				Time:  rec.CreatedAt,
				Headers: []kafka.Header{
					{Key: "event_id", Value: []byte(rec.EventID.String())},
					{Key: "event_type", Value: []byte(rec.Type)},
				},
			})
			ids = append(ids, rec.ID)
		}

		if err := r.publisher.WriteMessages(ctx, msgs...); err != nil {
			return err
		}
		if err := r.store.MarkSent(ctx, ids); err != nil {
			return err
		}
		sent = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if sent > 0 {
		log.Debug().Int("count", sent).Msg("outbox: events published")
	}
	return sent, nil
}

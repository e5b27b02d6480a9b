package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher drains unpublished outbox rows to Kafka. The topic is the event type.
type Publisher struct {
	store     storage.Store
	writer    MessageWriter
	logger    *slog.Logger
	pollEvery time.Duration
	batchSize int
	detached  bool
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
	// DetachedWrite fetches, writes and marks in three short transactions so no transaction is
	// open while the broker is slow. Needed when the store has a single connection. A failed mark
	// republishes the batch; consumers dedupe on event_id.
	DetachedWrite bool
}

func NewPublisher(store storage.Store, writer MessageWriter, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		store:     store,
		writer:    writer,
		logger:    logger,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
		detached:  cfg.DetachedWrite,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if p.writer == nil {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PublishBatch(ctx)
			if err != nil {
				p.logger.Error("outbox publish failed", "err", err)
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox published", "count", n)
			}
		}
	}
}

// PublishBatch writes one batch and marks it published in the same transaction. If the write
// fails nothing is marked and the rows are retried on the next tick.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	if p.detached {
		return p.publishDetached(ctx)
	}

	var published int
	err := p.store.InTx(ctx, func(tx storage.Tx) error {
		records, err := tx.FetchUnpublished(ctx, p.batchSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		msgs, ids := toMessages(ctx, records)
		if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
			return err
		}
		if err := tx.MarkPublished(ctx, ids); err != nil {
			return err
		}
		published = len(records)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

func (p *Publisher) publishDetached(ctx context.Context) (int, error) {
	var records []storage.OutboxRecord
	err := p.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		records, err = tx.FetchUnpublished(ctx, p.batchSize)
		return err
	})
	if err != nil || len(records) == 0 {
		return 0, err
	}

	msgs, ids := toMessages(ctx, records)
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, err
	}
	err = p.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.MarkPublished(ctx, ids)
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func toMessages(ctx context.Context, records []storage.OutboxRecord) ([]kafka.Message, []int64) {
	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, toMessage(ctx, r))
		ids = append(ids, r.ID)
	}
	return msgs, ids
}

func toMessage(ctx context.Context, r storage.OutboxRecord) kafka.Message {
	msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
	msg := kafka.Message{
		Topic: r.EventType,
		Key:   []byte(r.AggregateID),
		Value: r.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(r.EventID)},
			{Key: "event_type", Value: []byte(r.EventType)},
			{Key: "aggregate_type", Value: []byte(r.AggregateType)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
	return msg
}

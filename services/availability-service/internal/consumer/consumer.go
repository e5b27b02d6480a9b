package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Handler applies one message inside the transaction that records it in the inbox.
type Handler func(ctx context.Context, tx storage.Tx, msg kafka.Message) error

type Consumer struct {
	reader  MessageReader
	store   storage.Store
	logger  *slog.Logger
	handler Handler
	backoff time.Duration
	now     func() time.Time
}

type Option func(*Consumer)

// WithClock sets the clock used to stamp inbox rows.
func WithClock(now func() time.Time) Option {
	return func(c *Consumer) { c.now = now }
}

func New(reader MessageReader, store storage.Store, logger *slog.Logger, handler Handler, opts ...Option) *Consumer {
	c := &Consumer{
		reader:  reader,
		store:   store,
		logger:  logger,
		handler: handler,
		backoff: time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}
		if err := c.Handle(ctx, msg); err != nil {
			c.logger.Error("handler error", "err", err, "topic", msg.Topic)
		}
	}
}

// Handle records the event id and runs the handler in one transaction, so a redelivered
// message is applied at most once.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	var duplicate bool
	err := c.store.InTx(ctxSpan, func(tx storage.Tx) error {
		ok, err := tx.RecordInboxEvent(ctxSpan, meta.EventID, meta.EventType, c.now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			duplicate = true
			return nil
		}
		return c.handler(ctxSpan, tx, msg)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if duplicate {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
	}
	return nil
}

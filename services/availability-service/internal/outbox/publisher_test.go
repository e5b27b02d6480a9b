package outbox

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage/sqlite"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
	// during runs while the write is in flight.
	during func() error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	if f.during != nil {
		if err := f.during(); err != nil {
			return err
		}
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "outbox.db"))
	if err != nil {
		t.Fatal(err)
	}
	s := sqlite.New(conn)
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return s
}

func enqueue(t *testing.T, s storage.Store, ids ...string) {
	t.Helper()
	ctx := context.Background()
	err := s.InTx(ctx, func(tx storage.Tx) error {
		for _, id := range ids {
			if err := tx.InsertOutboxEvent(ctx, storage.OutboxEvent{
				AggregateType: "time_slot",
				AggregateID:   id,
				EventType:     "availability.slot.booked.v1",
				Payload:       []byte(`{"slot_id":"` + id + `"}`),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPublishBatch_WritesAndMarks(t *testing.T) {
	s := newStore(t)
	enqueue(t, s, "slot-1", "slot-2", "slot-3")
	w := &fakeWriter{}
	p := NewPublisher(s, w, runtime.NewLoggerTo(io.Discard, "test", "error"), PublisherConfig{BatchSize: 2})
	ctx := context.Background()

	n, err := p.PublishBatch(ctx)
	if err != nil || n != 2 {
		t.Fatalf("first batch = %d, %v", n, err)
	}
	n, err = p.PublishBatch(ctx)
	if err != nil || n != 1 {
		t.Fatalf("second batch = %d, %v", n, err)
	}
	n, err = p.PublishBatch(ctx)
	if err != nil || n != 0 {
		t.Fatalf("drained batch = %d, %v", n, err)
	}

	if len(w.msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(w.msgs))
	}
	first := w.msgs[0]
	if first.Topic != "availability.slot.booked.v1" || string(first.Key) != "slot-1" {
		t.Fatalf("unexpected message %+v", first)
	}
	meta := kafkax.ExtractEventMeta(first)
	if meta.EventID == "" || meta.EventType != "availability.slot.booked.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if kafkax.HeaderValue(first.Headers, "aggregate_type") != "time_slot" {
		t.Fatal("aggregate_type header missing")
	}
}

func TestPublishBatch_WriteFailureKeepsRows(t *testing.T) {
	s := newStore(t)
	enqueue(t, s, "slot-1")
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewPublisher(s, w, runtime.NewLoggerTo(io.Discard, "test", "error"), PublisherConfig{})
	ctx := context.Background()

	if _, err := p.PublishBatch(ctx); err == nil {
		t.Fatal("expected write error")
	}

	w.err = nil
	n, err := p.PublishBatch(ctx)
	if err != nil || n != 1 {
		t.Fatalf("retry = %d, %v", n, err)
	}
}

func TestRun_DisabledWithoutWriter(t *testing.T) {
	p := NewPublisher(nil, nil, runtime.NewLoggerTo(io.Discard, "test", "error"), PublisherConfig{})
	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()
	<-done
}

func TestPublishBatch_DetachedWriteFreesStore(t *testing.T) {
	s := newStore(t)
	enqueue(t, s, "slot-1", "slot-2")

	// The SQLite store has one connection, so this transaction only gets through if the
	// publisher is not holding one while the broker write is in flight.
	w := &fakeWriter{during: func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.InTx(ctx, func(tx storage.Tx) error {
			_, err := tx.ProviderExists(ctx, "prov-1")
			return err
		})
	}}
	p := NewPublisher(s, w, runtime.NewLoggerTo(io.Discard, "test", "error"), PublisherConfig{DetachedWrite: true})
	ctx := context.Background()

	n, err := p.PublishBatch(ctx)
	if err != nil || n != 2 {
		t.Fatalf("detached batch = %d, %v", n, err)
	}
	n, err = p.PublishBatch(ctx)
	if err != nil || n != 0 {
		t.Fatalf("rows should be marked published, got %d, %v", n, err)
	}
}

func TestPublishBatch_DetachedWriteFailureKeepsRows(t *testing.T) {
	s := newStore(t)
	enqueue(t, s, "slot-1")
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewPublisher(s, w, runtime.NewLoggerTo(io.Discard, "test", "error"), PublisherConfig{DetachedWrite: true})
	ctx := context.Background()

	if _, err := p.PublishBatch(ctx); err == nil {
		t.Fatal("expected write error")
	}
	w.err = nil
	if n, err := p.PublishBatch(ctx); err != nil || n != 1 {
		t.Fatalf("retry = %d, %v", n, err)
	}
}

package schedule

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage"
)

// sharedSlot is the committed row every transaction competes for.
type sharedSlot struct {
	mu   sync.Mutex
	slot model.TimeSlot
}

// snapshotTx reads the slot as it was when the transaction began, the way a snapshot-isolated
// database does, and only sees other writers through the conditional update. Every transaction
// blocks on its first store call until all of them have started, so their reads and writes
// interleave. Methods the coordinator does not use are left to the nil embedded Tx.
type snapshotTx struct {
	storage.Tx
	shared   *sharedSlot
	snapshot model.TimeSlot
	started  *sync.WaitGroup
	once     sync.Once
	won      bool
}

func (t *snapshotTx) begin() {
	t.once.Do(func() {
		t.started.Done()
		t.started.Wait()
	})
}

func (t *snapshotTx) GetSlot(_ context.Context, slotID string) (model.TimeSlot, error) {
	t.begin()
	if slotID != t.snapshot.ID {
		return model.TimeSlot{}, storage.ErrNotFound
	}
	if t.won {
		t.shared.mu.Lock()
		defer t.shared.mu.Unlock()
		return t.shared.slot, nil
	}
	return t.snapshot, nil
}

func (t *snapshotTx) AcquireSlot(_ context.Context, slotID string, durationMinutes int, at time.Time) error {
	t.begin()
	t.shared.mu.Lock()
	defer t.shared.mu.Unlock()
	row := &t.shared.slot
	if row.ID != slotID || row.Status != model.SlotAvailable || !row.Fits(durationMinutes) {
		return storage.ErrConflict
	}
	row.Status = model.SlotBooked
	row.UpdatedAt = at
	t.won = true
	return nil
}

func TestAcquire_InterleavedTransactionsHaveOneWinner(t *testing.T) {
	svc := New(nil, runtime.NewLoggerTo(io.Discard, "test", "error"),
		WithClock(func() time.Time { return testNow }))
	ctx := context.Background()

	const workers = 8
	for round := 0; round < 5; round++ {
		row := model.TimeSlot{
			ID:          "slot-1",
			ScheduleID:  "sched-1",
			Date:        mustDate(t, "2025-06-02"),
			StartMinute: 540,
			EndMinute:   600,
			Status:      model.SlotAvailable,
		}
		shared := &sharedSlot{slot: row}
		var started sync.WaitGroup
		started.Add(workers)
		txs := make([]*snapshotTx, workers)
		for i := range txs {
			txs[i] = &snapshotTx{shared: shared, snapshot: row, started: &started}
		}

		var (
			wg        sync.WaitGroup
			wins      atomic.Int32
			conflicts atomic.Int32
		)
		for _, tx := range txs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				slot, err := svc.acquire(ctx, tx, row.ID, 60)
				switch {
				case err == nil:
					wins.Add(1)
					if slot.Status != model.SlotBooked {
						t.Errorf("round %d: winner sees %s", round, slot.Status)
					}
				case IsKind(err, KindConflict):
					conflicts.Add(1)
				default:
					t.Errorf("round %d: unexpected error %v", round, err)
				}
			}()
		}
		wg.Wait()

		committed := 0
		for _, tx := range txs {
			if tx.won {
				committed++
			}
		}
		if wins.Load() != 1 || conflicts.Load() != workers-1 || committed != 1 {
			t.Fatalf("round %d: %d reported winners, %d conflicts, %d committed updates",
				round, wins.Load(), conflicts.Load(), committed)
		}
	}
}

func TestAcquire_StaleReadIsNotTrusted(t *testing.T) {
	svc := New(nil, runtime.NewLoggerTo(io.Discard, "test", "error"),
		WithClock(func() time.Time { return testNow }))

	// The snapshot still says AVAILABLE but the committed row was booked by someone else.
	row := model.TimeSlot{ID: "slot-1", StartMinute: 540, EndMinute: 600, Status: model.SlotAvailable}
	committed := row
	committed.Status = model.SlotBooked
	var started sync.WaitGroup
	started.Add(1)
	tx := &snapshotTx{shared: &sharedSlot{slot: committed}, snapshot: row, started: &started}

	_, err := svc.acquire(context.Background(), tx, row.ID, 60)
	requireKind(t, err, KindConflict, ReasonSlotBooked)
	if tx.won {
		t.Fatal("booked row must not be overwritten")
	}
}

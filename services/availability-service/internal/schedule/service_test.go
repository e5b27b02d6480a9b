package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage/sqlite"
)

// Sunday 2025-06-01 08:00 UTC; 2025-06-02 is the next Monday.
var testNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

const provider = "prov-1"

func newTestService(t *testing.T) (*Service, *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "schedule.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store := sqlite.New(conn)
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var seq atomic.Int64
	svc := New(store, runtime.NewLoggerTo(io.Discard, "test", "error"),
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
	)
	if _, err := svc.RegisterProvider(ctx, provider); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	return svc, store
}

func mustDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func clock(t *testing.T, s string) int {
	t.Helper()
	m, err := model.ParseClock(s)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func requireKind(t *testing.T, err error, kind Kind, reason string) {
	t.Helper()
	e, ok := AsError(err)
	if !ok {
		t.Fatalf("expected %s/%s, got %v", kind, reason, err)
	}
	if e.Kind != kind || (reason != "" && e.Reason != reason) {
		t.Fatalf("expected %s/%s, got %s/%s (%s)", kind, reason, e.Kind, e.Reason, e.Message)
	}
}

func outboxRecords(t *testing.T, store storage.Store) []storage.OutboxRecord {
	t.Helper()
	ctx := context.Background()
	var records []storage.OutboxRecord
	err := store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		records, err = tx.FetchUnpublished(ctx, 1000)
		return err
	})
	if err != nil {
		t.Fatalf("fetch outbox: %v", err)
	}
	return records
}

func outboxTypes(t *testing.T, store storage.Store) []string {
	t.Helper()
	var types []string
	for _, r := range outboxRecords(t, store) {
		types = append(types, r.EventType)
	}
	return types
}

func TestAddWorkingDay_DuplicateWeekdayConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	view, err := svc.AddWorkingDay(ctx, provider, time.Monday, clock(t, "09:00"), clock(t, "17:00"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(view.WorkingDays) != 1 || view.WorkingDays[0].DayOfWeek != "MONDAY" || view.WorkingDays[0].StartTime != "09:00" {
		t.Fatalf("unexpected schedule %+v", view)
	}

	_, err = svc.AddWorkingDay(ctx, provider, time.Monday, clock(t, "10:00"), clock(t, "12:00"))
	requireKind(t, err, KindConflict, ReasonDuplicateWeekday)

	again, err := svc.GetSchedule(ctx, provider)
	if err != nil || len(again.WorkingDays) != 1 {
		t.Fatalf("schedule changed after rejected add: %+v, %v", again, err)
	}
}

func TestAddWorkingDay_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddWorkingDay(ctx, provider, time.Monday, clock(t, "17:00"), clock(t, "09:00"))
	requireKind(t, err, KindInvalidInput, ReasonInvalidRange)

	_, err = svc.AddWorkingDay(ctx, provider, time.Monday, clock(t, "09:00"), clock(t, "09:00"))
	requireKind(t, err, KindInvalidInput, ReasonInvalidRange)

	_, err = svc.AddWorkingDay(ctx, provider, time.Weekday(9), 0, 60)
	requireKind(t, err, KindInvalidInput, ReasonInvalidDay)

	_, err = svc.AddWorkingDay(ctx, "unknown", time.Monday, 0, 60)
	requireKind(t, err, KindNotFound, ReasonProviderNotFound)
}

func TestUpdateWorkingDay(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpdateWorkingDay(ctx, provider, time.Tuesday, 540, 600)
	requireKind(t, err, KindNotFound, ReasonWorkingDayNotFound)

	if _, err := svc.AddWorkingDay(ctx, provider, time.Tuesday, 540, 1020); err != nil {
		t.Fatal(err)
	}
	view, err := svc.UpdateWorkingDay(ctx, provider, time.Tuesday, 600, 900)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if view.WorkingDays[0].StartTime != "10:00" || view.WorkingDays[0].EndTime != "15:00" {
		t.Fatalf("unexpected update result %+v", view.WorkingDays)
	}

	_, err = svc.UpdateWorkingDay(ctx, provider, time.Tuesday, 900, 600)
	requireKind(t, err, KindInvalidInput, ReasonInvalidRange)
}

func TestCreateSlot_OverlapConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	date := mustDate(t, "2025-06-02")

	if _, err := svc.CreateSlot(ctx, provider, date, clock(t, "09:00"), clock(t, "10:00")); err != nil {
		t.Fatalf("first slot: %v", err)
	}
	_, err := svc.CreateSlot(ctx, provider, date, clock(t, "09:30"), clock(t, "10:30"))
	requireKind(t, err, KindConflict, ReasonSlotOverlap)

	if _, err := svc.CreateSlot(ctx, provider, date, clock(t, "10:00"), clock(t, "11:00")); err != nil {
		t.Fatalf("touching slot should be accepted: %v", err)
	}
	if _, err := svc.CreateSlot(ctx, provider, date.AddDays(1), clock(t, "09:30"), clock(t, "10:30")); err != nil {
		t.Fatalf("same window on another date should be accepted: %v", err)
	}

	_, err = svc.CreateSlot(ctx, provider, date, clock(t, "12:00"), clock(t, "11:00"))
	requireKind(t, err, KindInvalidInput, ReasonInvalidRange)

	all, err := svc.GetTimeSlotsByDate(ctx, provider, date)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 slots on %s, got %d", date, len(all))
	}
}

func TestBookTimeSlot_Scenarios(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	date := mustDate(t, "2025-06-02")

	slot1, err := svc.CreateSlot(ctx, provider, date, clock(t, "09:00"), clock(t, "10:00"))
	if err != nil {
		t.Fatal(err)
	}
	slot2, err := svc.CreateSlot(ctx, provider, date.AddDays(1), clock(t, "09:00"), clock(t, "10:00"))
	if err != nil {
		t.Fatal(err)
	}

	booked, err := svc.BookTimeSlot(ctx, slot1.ID, 60)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if booked.Status != string(model.SlotBooked) {
		t.Fatalf("expected BOOKED, got %s", booked.Status)
	}

	_, err = svc.BookTimeSlot(ctx, slot1.ID, 60)
	requireKind(t, err, KindConflict, ReasonSlotBooked)

	_, err = svc.BookTimeSlot(ctx, slot2.ID, 90)
	requireKind(t, err, KindInvalidInput, ReasonInvalidDuration)

	_, err = svc.BookTimeSlot(ctx, slot2.ID, 0)
	requireKind(t, err, KindInvalidInput, ReasonInvalidDuration)

	for _, huge := range []int{model.MinutesPerDay + 1, math.MaxInt - 100, math.MaxInt} {
		_, err = svc.BookTimeSlot(ctx, slot2.ID, huge)
		requireKind(t, err, KindInvalidInput, ReasonInvalidDuration)
	}

	_, err = svc.BookTimeSlot(ctx, "missing", 30)
	requireKind(t, err, KindNotFound, ReasonSlotNotFound)

	if _, err := svc.BookTimeSlot(ctx, slot2.ID, 30); err != nil {
		t.Fatalf("shorter duration should fit: %v", err)
	}

	available, err := svc.GetAvailableTimeSlots(ctx, provider, date)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range available {
		if s.ID == slot1.ID {
			t.Fatal("booked slot listed as available")
		}
	}
	all, err := svc.GetTimeSlotsByDate(ctx, provider, date)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Status != string(model.SlotBooked) {
		t.Fatalf("by-date listing should still include the booked slot: %+v", all)
	}
}

func TestBookTimeSlot_ConcurrentSingleWinner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	date := mustDate(t, "2025-06-02")

	const (
		rounds  = 5
		workers = 8
	)
	for round := 0; round < rounds; round++ {
		start := clock(t, "09:00") + round*60
		slot, err := svc.CreateSlot(ctx, provider, date, start, start+60)
		if err != nil {
			t.Fatalf("round %d: create slot: %v", round, err)
		}

		var (
			wg        sync.WaitGroup
			barrier   = make(chan struct{})
			wins      atomic.Int32
			conflicts atomic.Int32
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-barrier
				_, err := svc.BookTimeSlot(ctx, slot.ID, 60)
				switch {
				case err == nil:
					wins.Add(1)
				case IsKind(err, KindConflict):
					conflicts.Add(1)
				default:
					t.Errorf("round %d: unexpected error %v", round, err)
				}
			}()
		}
		close(barrier)
		wg.Wait()

		if wins.Load() != 1 || conflicts.Load() != workers-1 {
			t.Fatalf("round %d: expected 1 winner and %d conflicts, got %d and %d",
				round, workers-1, wins.Load(), conflicts.Load())
		}
	}
}

func TestReleaseTimeSlot(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	date := mustDate(t, "2025-06-02")

	slot, err := svc.CreateSlot(ctx, provider, date, 540, 600)
	if err != nil {
		t.Fatal(err)
	}
	_, err = svc.ReleaseTimeSlot(ctx, slot.ID)
	requireKind(t, err, KindConflict, ReasonSlotNotBooked)

	if _, err := svc.BookTimeSlot(ctx, slot.ID, 60); err != nil {
		t.Fatal(err)
	}
	released, err := svc.ReleaseTimeSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Status != string(model.SlotAvailable) {
		t.Fatalf("expected AVAILABLE, got %s", released.Status)
	}

	_, err = svc.ReleaseTimeSlot(ctx, "missing")
	requireKind(t, err, KindNotFound, ReasonSlotNotFound)

	types := outboxTypes(t, store)
	if len(types) != 2 || types[0] != EventSlotBooked || types[1] != EventSlotReleased {
		t.Fatalf("unexpected outbox events %v", types)
	}
	for _, r := range outboxRecords(t, store) {
		if !r.CreatedAt.Equal(testNow) {
			t.Fatalf("event %s stamped %s, want service clock %s", r.EventType, r.CreatedAt, testNow)
		}
	}
}

func TestRemoveWorkingDay_PurgesFutureAvailableSlots(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddWorkingDay(ctx, provider, time.Monday, 540, 1020); err != nil {
		t.Fatal(err)
	}
	monday := mustDate(t, "2025-06-02")
	past := mustDate(t, "2025-05-26")

	free, err := svc.CreateSlot(ctx, provider, monday, 540, 600)
	if err != nil {
		t.Fatal(err)
	}
	taken, err := svc.CreateSlot(ctx, provider, monday, 600, 660)
	if err != nil {
		t.Fatal(err)
	}
	tuesday, err := svc.CreateSlot(ctx, provider, monday.AddDays(1), 540, 600)
	if err != nil {
		t.Fatal(err)
	}
	old, err := svc.CreateSlot(ctx, provider, past, 540, 600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.BookTimeSlot(ctx, taken.ID, 60); err != nil {
		t.Fatal(err)
	}

	view, err := svc.RemoveWorkingDay(ctx, provider, time.Monday)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(view.WorkingDays) != 0 {
		t.Fatalf("expected no working days, got %+v", view.WorkingDays)
	}

	_, err = svc.GetTimeSlot(ctx, provider, free.ID)
	requireKind(t, err, KindNotFound, ReasonSlotNotFound)
	for _, id := range []string{taken.ID, tuesday.ID, old.ID} {
		if _, err := svc.GetTimeSlot(ctx, provider, id); err != nil {
			t.Fatalf("slot %s should survive: %v", id, err)
		}
	}

	_, err = svc.RemoveWorkingDay(ctx, provider, time.Monday)
	requireKind(t, err, KindNotFound, ReasonWorkingDayNotFound)

	types := outboxTypes(t, store)
	if types[len(types)-1] != EventWorkingDayRemoved {
		t.Fatalf("expected a working day removal event, got %v", types)
	}
}

func TestGetTimeSlot_OtherProviderIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.RegisterProvider(ctx, "prov-2"); err != nil {
		t.Fatal(err)
	}

	slot, err := svc.CreateSlot(ctx, provider, mustDate(t, "2025-06-02"), 540, 600)
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.GetTimeSlot(ctx, provider, slot.ID)
	if err != nil || got.ID != slot.ID {
		t.Fatalf("GetTimeSlot = %+v, %v", got, err)
	}
	_, err = svc.GetTimeSlot(ctx, "prov-2", slot.ID)
	requireKind(t, err, KindNotFound, ReasonSlotNotFound)
}

func TestGetUpcomingAvailableSlots(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	today := model.DateOf(testNow)

	mk := func(d model.Date, start int) model.TimeSlotView {
		t.Helper()
		v, err := svc.CreateSlot(ctx, provider, d, start, start+30)
		if err != nil {
			t.Fatal(err)
		}
		return v
	}
	late := mk(today.AddDays(2), 600)
	early := mk(today.AddDays(2), 540)
	first := mk(today, 900)
	mk(today.AddDays(-1), 540)
	mk(today.AddDays(7), 540)
	booked := mk(today.AddDays(1), 540)
	if _, err := svc.BookTimeSlot(ctx, booked.ID, 30); err != nil {
		t.Fatal(err)
	}

	got, err := svc.GetUpcomingAvailableSlots(ctx, provider, 7)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{first.ID, early.ID, late.ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d slots, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("position %d: got %s want %s", i, got[i].ID, want[i])
		}
	}

	for _, days := range []int{0, -1, MaxUpcomingDays + 1} {
		_, err := svc.GetUpcomingAvailableSlots(ctx, provider, days)
		requireKind(t, err, KindInvalidInput, ReasonInvalidDays)
	}
}

func TestGenerateSlots(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	monday := mustDate(t, "2025-06-02")

	if _, err := svc.AddWorkingDay(ctx, provider, time.Monday, 540, 720); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateSlot(ctx, provider, monday, 600, 660); err != nil {
		t.Fatal(err)
	}

	created, err := svc.GenerateSlots(ctx, provider, monday, 7, 60)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(created) != 2 || created[0].StartTime != "09:00" || created[1].StartTime != "11:00" {
		t.Fatalf("unexpected generated slots %+v", created)
	}

	again, err := svc.GenerateSlots(ctx, provider, monday, 7, 60)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatalf("second run should create nothing, got %d", len(again))
	}

	_, err = svc.GenerateSlots(ctx, provider, mustDate(t, "2025-05-01"), 7, 60)
	requireKind(t, err, KindInvalidInput, ReasonInvalidDate)
	_, err = svc.GenerateSlots(ctx, provider, monday, 7, 0)
	requireKind(t, err, KindInvalidInput, ReasonInvalidDuration)
}

func TestErrorHelpers(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Conflict(ReasonSlotBooked, "slot %s", "x"))
	if !IsKind(err, KindConflict) || IsKind(err, KindNotFound) || !HasReason(err, ReasonSlotBooked) {
		t.Fatal("kind helpers should see through wrapping")
	}
	if IsKind(errors.New("plain"), KindConflict) {
		t.Fatal("plain errors have no kind")
	}
}

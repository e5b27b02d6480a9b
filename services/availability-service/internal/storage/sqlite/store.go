package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage"
)

const timeLayout = time.RFC3339Nano

// Store keeps the same tables as the postgres store in a single-connection SQLite database.
type Store struct {
	db *db.SQLite
}

var _ storage.Store = (*Store)(nil)

func New(conn *db.SQLite) *Store {
	return &Store{db: conn}
}

func (s *Store) InTx(ctx context.Context, fn func(storage.Tx) error) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(&txStore{tx: tx})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return db.SQLiteReadyCheck(s.db)(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", storage.ErrConflict, err.Error())
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func affected(res sql.Result, err error, none error) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return none
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) ProviderExists(ctx context.Context, providerID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM providers WHERE id = ?)`, providerID).Scan(&exists)
	return exists, err
}

func (t *txStore) RegisterProvider(ctx context.Context, providerID string, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO providers (id, registered_at) VALUES (?, ?)
		ON CONFLICT (id) DO NOTHING
	`, providerID, formatTime(at))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (t *txStore) RecordInboxEvent(ctx context.Context, eventID, eventType string, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO inbox_events (event_id, event_type, received_at) VALUES (?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType, formatTime(at))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (t *txStore) GetScheduleByProvider(ctx context.Context, providerID string) (model.Schedule, error) {
	var (
		s       model.Schedule
		created string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, provider_id, created_at FROM schedules WHERE provider_id = ?
	`, providerID).Scan(&s.ID, &s.ProviderID, &created)
	if err != nil {
		return model.Schedule{}, mapErr(err)
	}
	if s.CreatedAt, err = parseTime(created); err != nil {
		return model.Schedule{}, err
	}
	return s, nil
}

func (t *txStore) CreateSchedule(ctx context.Context, s model.Schedule) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO schedules (id, provider_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (provider_id) DO NOTHING
	`, s.ID, s.ProviderID, formatTime(s.CreatedAt))
	return affected(res, err, storage.ErrConflict)
}

// LockSchedule only checks existence: the handle has one connection, so write transactions
// never interleave.
func (t *txStore) LockSchedule(ctx context.Context, scheduleID string) error {
	var id string
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM schedules WHERE id = ?`, scheduleID).Scan(&id)
	return mapErr(err)
}

func (t *txStore) ListWorkingDays(ctx context.Context, scheduleID string) ([]model.WorkingDay, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, schedule_id, day_of_week, start_minute, end_minute
		FROM working_days
		WHERE schedule_id = ?
		ORDER BY day_of_week
	`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []model.WorkingDay
	for rows.Next() {
		wd, err := scanWorkingDay(rows)
		if err != nil {
			return nil, err
		}
		days = append(days, wd)
	}
	return days, rows.Err()
}

func (t *txStore) GetWorkingDay(ctx context.Context, scheduleID string, day time.Weekday) (model.WorkingDay, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, schedule_id, day_of_week, start_minute, end_minute
		FROM working_days
		WHERE schedule_id = ? AND day_of_week = ?
	`, scheduleID, int(day))
	wd, err := scanWorkingDay(row)
	return wd, mapErr(err)
}

func (t *txStore) InsertWorkingDay(ctx context.Context, wd model.WorkingDay) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO working_days (id, schedule_id, day_of_week, start_minute, end_minute)
		VALUES (?, ?, ?, ?, ?)
	`, wd.ID, wd.ScheduleID, int(wd.DayOfWeek), wd.StartMinute, wd.EndMinute)
	return mapErr(err)
}

func (t *txStore) UpdateWorkingDay(ctx context.Context, wd model.WorkingDay) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE working_days
		SET start_minute = ?, end_minute = ?
		WHERE schedule_id = ? AND day_of_week = ?
	`, wd.StartMinute, wd.EndMinute, wd.ScheduleID, int(wd.DayOfWeek))
	return affected(res, err, storage.ErrNotFound)
}

func (t *txStore) DeleteWorkingDay(ctx context.Context, scheduleID string, day time.Weekday) error {
	res, err := t.tx.ExecContext(ctx, `
		DELETE FROM working_days WHERE schedule_id = ? AND day_of_week = ?
	`, scheduleID, int(day))
	return affected(res, err, storage.ErrNotFound)
}

func (t *txStore) InsertSlot(ctx context.Context, slot model.TimeSlot) error {
	created := formatTime(slot.CreatedAt)
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO time_slots
			(id, schedule_id, slot_date, day_of_week, start_minute, end_minute, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, slot.ID, slot.ScheduleID, slot.Date.String(), int(slot.Date.Weekday()), slot.StartMinute, slot.EndMinute,
		string(slot.Status), created, created)
	return mapErr(err)
}

const slotColumns = `id, schedule_id, slot_date, start_minute, end_minute, status, COALESCE(booking_id, ''), created_at, updated_at`

func (t *txStore) GetSlot(ctx context.Context, slotID string) (model.TimeSlot, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM time_slots WHERE id = ?`, slotID)
	slot, err := scanSlot(row)
	return slot, mapErr(err)
}

func (t *txStore) ListSlots(ctx context.Context, f storage.SlotFilter) ([]model.TimeSlot, error) {
	status := string(f.Status)
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE schedule_id = ?
			AND slot_date >= ?
			AND slot_date < ?
			AND (? = '' OR status = ?)
		ORDER BY slot_date ASC, start_minute ASC
	`, f.ScheduleID, f.From.String(), f.EffectiveTo().String(), status, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []model.TimeSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func (t *txStore) AcquireSlot(ctx context.Context, slotID string, durationMinutes int, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE time_slots
		SET status = 'BOOKED', updated_at = ?
		WHERE id = ?
			AND status = 'AVAILABLE'
			AND start_minute + ? <= end_minute
	`, formatTime(at), slotID, durationMinutes)
	return affected(res, err, storage.ErrConflict)
}

func (t *txStore) ReleaseSlot(ctx context.Context, slotID, bookingID string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE time_slots
		SET status = 'AVAILABLE', booking_id = NULL, updated_at = ?
		WHERE id = ?
			AND status = 'BOOKED'
			AND COALESCE(booking_id, '') = ?
	`, formatTime(at), slotID, bookingID)
	return affected(res, err, storage.ErrConflict)
}

func (t *txStore) AttachBooking(ctx context.Context, slotID, bookingID string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE time_slots
		SET booking_id = ?, updated_at = ?
		WHERE id = ? AND status = 'BOOKED' AND booking_id IS NULL
	`, bookingID, formatTime(at), slotID)
	return affected(res, err, storage.ErrConflict)
}

func (t *txStore) DeleteAvailableSlots(ctx context.Context, scheduleID string, day time.Weekday, from model.Date) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		DELETE FROM time_slots
		WHERE schedule_id = ?
			AND day_of_week = ?
			AND slot_date >= ?
			AND status = 'AVAILABLE'
	`, scheduleID, int(day), from.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *txStore) InsertBooking(ctx context.Context, b model.Booking) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bookings
			(id, consumer_id, provider_id, service_type_id, booking_date, start_minute, end_minute,
			 time_slot_id, price_cents, currency, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.ConsumerID, b.ProviderID, b.ServiceTypeID, b.Date.String(), b.StartMinute, b.EndMinute,
		b.TimeSlotID, b.PriceCents, b.Currency, string(b.Status), formatTime(b.CreatedAt))
	return mapErr(err)
}

func (t *txStore) GetBooking(ctx context.Context, bookingID string, _ bool) (model.Booking, error) {
	var (
		b                                       model.Booking
		date, status, created                   string
		accepted, started, completed, cancelled sql.NullString
		rating                                  sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, consumer_id, provider_id, service_type_id, booking_date, start_minute, end_minute,
			COALESCE(time_slot_id, ''), price_cents, currency, status, created_at,
			accepted_at, started_at, completed_at, cancelled_at, cancel_reason, rating, review
		FROM bookings
		WHERE id = ?
	`, bookingID).Scan(
		&b.ID,
		&b.ConsumerID,
		&b.ProviderID,
		&b.ServiceTypeID,
		&date,
		&b.StartMinute,
		&b.EndMinute,
		&b.TimeSlotID,
		&b.PriceCents,
		&b.Currency,
		&status,
		&created,
		&accepted,
		&started,
		&completed,
		&cancelled,
		&b.CancelReason,
		&rating,
		&b.Review,
	)
	if err != nil {
		return model.Booking{}, mapErr(err)
	}
	if b.Date, err = model.ParseDate(date); err != nil {
		return model.Booking{}, err
	}
	if b.CreatedAt, err = parseTime(created); err != nil {
		return model.Booking{}, err
	}
	for _, f := range []struct {
		dst **time.Time
		src sql.NullString
	}{
		{&b.AcceptedAt, accepted},
		{&b.StartedAt, started},
		{&b.CompletedAt, completed},
		{&b.CancelledAt, cancelled},
	} {
		if *f.dst, err = parseNullTime(f.src); err != nil {
			return model.Booking{}, err
		}
	}
	b.Status = model.BookingStatus(status)
	if rating.Valid {
		r := int(rating.Int64)
		b.Rating = &r
	}
	return b, nil
}

func (t *txStore) UpdateBooking(ctx context.Context, b model.Booking) error {
	var rating any
	if b.Rating != nil {
		rating = *b.Rating
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?,
			accepted_at = ?,
			started_at = ?,
			completed_at = ?,
			cancelled_at = ?,
			cancel_reason = ?,
			rating = ?,
			review = ?
		WHERE id = ?
	`, string(b.Status), nullTime(b.AcceptedAt), nullTime(b.StartedAt), nullTime(b.CompletedAt), nullTime(b.CancelledAt),
		b.CancelReason, rating, b.Review, b.ID)
	return affected(res, err, storage.ErrNotFound)
}

func (t *txStore) InsertOutboxEvent(ctx context.Context, evt storage.OutboxEvent) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox_events
			(event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate,
		formatTime(outboxTime(evt)))
	return err
}

func (t *txStore) FetchUnpublished(ctx context.Context, limit int) ([]storage.OutboxRecord, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.OutboxRecord
	for rows.Next() {
		var (
			rcd     storage.OutboxRecord
			created string
		)
		if err := rows.Scan(&rcd.ID, &rcd.EventID, &rcd.AggregateType, &rcd.AggregateID, &rcd.EventType, &rcd.Payload, &rcd.Traceparent, &rcd.Tracestate, &created); err != nil {
			return nil, err
		}
		if rcd.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		records = append(records, rcd)
	}
	return records, rows.Err()
}

func (t *txStore) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, formatTime(time.Now()))
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	_, err := t.tx.ExecContext(ctx, `UPDATE outbox_events SET published_at = ? WHERE id IN (`+placeholders+`)`, args...)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkingDay(row scanner) (model.WorkingDay, error) {
	var (
		wd  model.WorkingDay
		dow int
	)
	if err := row.Scan(&wd.ID, &wd.ScheduleID, &dow, &wd.StartMinute, &wd.EndMinute); err != nil {
		return model.WorkingDay{}, err
	}
	wd.DayOfWeek = time.Weekday(dow)
	return wd, nil
}

func scanSlot(row scanner) (model.TimeSlot, error) {
	var (
		slot                 model.TimeSlot
		date, status         string
		createdAt, updatedAt string
	)
	if err := row.Scan(&slot.ID, &slot.ScheduleID, &date, &slot.StartMinute, &slot.EndMinute, &status, &slot.BookingID, &createdAt, &updatedAt); err != nil {
		return model.TimeSlot{}, err
	}
	var err error
	if slot.Date, err = model.ParseDate(date); err != nil {
		return model.TimeSlot{}, err
	}
	if slot.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.TimeSlot{}, err
	}
	if slot.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.TimeSlot{}, err
	}
	slot.Status = model.SlotStatus(status)
	return slot, nil
}

func outboxTime(evt storage.OutboxEvent) time.Time {
	if evt.CreatedAt.IsZero() {
		return time.Now()
	}
	return evt.CreatedAt
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage"
)

const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
)

type Store struct {
	pool *db.Pool
}

var _ storage.Store = (*Store)(nil)

func New(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) InTx(ctx context.Context, fn func(storage.Tx) error) error {
	return s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&txStore{tx: tx})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return db.ReadyCheck(s.pool)(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// mapErr translates driver errors into storage sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeExclusionViolation:
			return fmt.Errorf("%w: %s", storage.ErrConflict, pgErr.ConstraintName)
		}
	}
	return err
}

type txStore struct {
	tx pgx.Tx
}

func (t *txStore) ProviderExists(ctx context.Context, providerID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM providers WHERE id = $1)`, providerID).Scan(&exists)
	return exists, err
}

func (t *txStore) RegisterProvider(ctx context.Context, providerID string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO providers (id, registered_at)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, providerID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txStore) RecordInboxEvent(ctx context.Context, eventID, eventType string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type, received_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType, at.UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txStore) GetScheduleByProvider(ctx context.Context, providerID string) (model.Schedule, error) {
	var s model.Schedule
	err := t.tx.QueryRow(ctx, `
		SELECT id, provider_id, created_at
		FROM schedules
		WHERE provider_id = $1
	`, providerID).Scan(&s.ID, &s.ProviderID, &s.CreatedAt)
	if err != nil {
		return model.Schedule{}, mapErr(err)
	}
	return s, nil
}

// CreateSchedule does not raise on a duplicate provider so the surrounding transaction stays
// usable; a lost race is reported as ErrConflict and the caller re-reads.
func (t *txStore) CreateSchedule(ctx context.Context, s model.Schedule) error {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO schedules (id, provider_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider_id) DO NOTHING
	`, s.ID, s.ProviderID, s.CreatedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrConflict
	}
	return nil
}

func (t *txStore) LockSchedule(ctx context.Context, scheduleID string) error {
	var id string
	err := t.tx.QueryRow(ctx, `SELECT id FROM schedules WHERE id = $1 FOR UPDATE`, scheduleID).Scan(&id)
	return mapErr(err)
}

func (t *txStore) ListWorkingDays(ctx context.Context, scheduleID string) ([]model.WorkingDay, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, schedule_id, day_of_week, start_minute, end_minute
		FROM working_days
		WHERE schedule_id = $1
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
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return days, nil
}

func (t *txStore) GetWorkingDay(ctx context.Context, scheduleID string, day time.Weekday) (model.WorkingDay, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, schedule_id, day_of_week, start_minute, end_minute
		FROM working_days
		WHERE schedule_id = $1 AND day_of_week = $2
	`, scheduleID, int(day))
	wd, err := scanWorkingDay(row)
	return wd, mapErr(err)
}

func (t *txStore) InsertWorkingDay(ctx context.Context, wd model.WorkingDay) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO working_days (id, schedule_id, day_of_week, start_minute, end_minute)
		VALUES ($1, $2, $3, $4, $5)
	`, wd.ID, wd.ScheduleID, int(wd.DayOfWeek), wd.StartMinute, wd.EndMinute)
	return mapErr(err)
}

func (t *txStore) UpdateWorkingDay(ctx context.Context, wd model.WorkingDay) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE working_days
		SET start_minute = $3,
			end_minute = $4
		WHERE schedule_id = $1 AND day_of_week = $2
	`, wd.ScheduleID, int(wd.DayOfWeek), wd.StartMinute, wd.EndMinute)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *txStore) DeleteWorkingDay(ctx context.Context, scheduleID string, day time.Weekday) error {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM working_days
		WHERE schedule_id = $1 AND day_of_week = $2
	`, scheduleID, int(day))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *txStore) InsertSlot(ctx context.Context, slot model.TimeSlot) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO time_slots
			(id, schedule_id, slot_date, day_of_week, start_minute, end_minute, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, slot.ID, slot.ScheduleID, slot.Date.Time(), int(slot.Date.Weekday()), slot.StartMinute, slot.EndMinute,
		string(slot.Status), slot.CreatedAt)
	return mapErr(err)
}

const slotColumns = `id, schedule_id, slot_date, start_minute, end_minute, status, COALESCE(booking_id, ''), created_at, updated_at`

func (t *txStore) GetSlot(ctx context.Context, slotID string) (model.TimeSlot, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM time_slots WHERE id = $1`, slotID)
	slot, err := scanSlot(row)
	return slot, mapErr(err)
}

func (t *txStore) ListSlots(ctx context.Context, f storage.SlotFilter) ([]model.TimeSlot, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE schedule_id = $1
			AND slot_date >= $2
			AND slot_date < $3
			AND ($4 = '' OR status = $4)
		ORDER BY slot_date ASC, start_minute ASC
	`, f.ScheduleID, f.From.Time(), f.EffectiveTo().Time(), string(f.Status))
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
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return slots, nil
}

func (t *txStore) AcquireSlot(ctx context.Context, slotID string, durationMinutes int, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE time_slots
		SET status = 'BOOKED',
			updated_at = $3
		WHERE id = $1
			AND status = 'AVAILABLE'
			AND start_minute + $2 <= end_minute
	`, slotID, durationMinutes, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return storage.ErrConflict
	}
	return nil
}

func (t *txStore) ReleaseSlot(ctx context.Context, slotID, bookingID string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE time_slots
		SET status = 'AVAILABLE',
			booking_id = NULL,
			updated_at = $3
		WHERE id = $1
			AND status = 'BOOKED'
			AND COALESCE(booking_id, '') = $2
	`, slotID, bookingID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return storage.ErrConflict
	}
	return nil
}

func (t *txStore) AttachBooking(ctx context.Context, slotID, bookingID string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE time_slots
		SET booking_id = $2,
			updated_at = $3
		WHERE id = $1 AND status = 'BOOKED' AND booking_id IS NULL
	`, slotID, bookingID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return storage.ErrConflict
	}
	return nil
}

func (t *txStore) DeleteAvailableSlots(ctx context.Context, scheduleID string, day time.Weekday, from model.Date) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM time_slots
		WHERE schedule_id = $1
			AND day_of_week = $2
			AND slot_date >= $3
			AND status = 'AVAILABLE'
	`, scheduleID, int(day), from.Time())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txStore) InsertBooking(ctx context.Context, b model.Booking) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings
			(id, consumer_id, provider_id, service_type_id, booking_date, start_minute, end_minute,
			 time_slot_id, price_cents, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, b.ID, b.ConsumerID, b.ProviderID, b.ServiceTypeID, b.Date.Time(), b.StartMinute, b.EndMinute,
		b.TimeSlotID, b.PriceCents, b.Currency, string(b.Status), b.CreatedAt)
	return mapErr(err)
}

func (t *txStore) GetBooking(ctx context.Context, bookingID string, forUpdate bool) (model.Booking, error) {
	query := `
		SELECT id, consumer_id, provider_id, service_type_id, booking_date, start_minute, end_minute,
			COALESCE(time_slot_id, ''), price_cents, currency, status, created_at,
			accepted_at, started_at, completed_at, cancelled_at, cancel_reason, rating, review
		FROM bookings
		WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		b      model.Booking
		date   time.Time
		status string
		rating *int32
	)
	err := t.tx.QueryRow(ctx, query, bookingID).Scan(
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
		&b.CreatedAt,
		&b.AcceptedAt,
		&b.StartedAt,
		&b.CompletedAt,
		&b.CancelledAt,
		&b.CancelReason,
		&rating,
		&b.Review,
	)
	if err != nil {
		return model.Booking{}, mapErr(err)
	}
	b.Date = model.DateOf(date)
	b.Status = model.BookingStatus(status)
	if rating != nil {
		r := int(*rating)
		b.Rating = &r
	}
	return b, nil
}

func (t *txStore) UpdateBooking(ctx context.Context, b model.Booking) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2,
			accepted_at = $3,
			started_at = $4,
			completed_at = $5,
			cancelled_at = $6,
			cancel_reason = $7,
			rating = $8,
			review = $9
		WHERE id = $1
	`, b.ID, string(b.Status), b.AcceptedAt, b.StartedAt, b.CompletedAt, b.CancelledAt, b.CancelReason, b.Rating, b.Review)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *txStore) InsertOutboxEvent(ctx context.Context, evt storage.OutboxEvent) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox_events
			(event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.NewString(), evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate,
		outboxTime(evt))
	return err
}

func (t *txStore) FetchUnpublished(ctx context.Context, limit int) ([]storage.OutboxRecord, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.OutboxRecord
	for rows.Next() {
		var rcd storage.OutboxRecord
		if err := rows.Scan(&rcd.ID, &rcd.EventID, &rcd.AggregateType, &rcd.AggregateID, &rcd.EventType, &rcd.Payload, &rcd.Traceparent, &rcd.Tracestate, &rcd.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rcd)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func (t *txStore) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func scanWorkingDay(row pgx.Row) (model.WorkingDay, error) {
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

func scanSlot(row pgx.Row) (model.TimeSlot, error) {
	var (
		slot   model.TimeSlot
		date   time.Time
		status string
	)
	if err := row.Scan(&slot.ID, &slot.ScheduleID, &date, &slot.StartMinute, &slot.EndMinute, &status, &slot.BookingID, &slot.CreatedAt, &slot.UpdatedAt); err != nil {
		return model.TimeSlot{}, err
	}
	slot.Date = model.DateOf(date)
	slot.Status = model.SlotStatus(status)
	return slot, nil
}

func outboxTime(evt storage.OutboxEvent) time.Time {
	if evt.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return evt.CreatedAt.UTC()
}

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict covers unique/exclusion violations and conditional updates that matched no row.
	ErrConflict = errors.New("conflict")
)

// Store is implemented by the postgres and sqlite packages.
type Store interface {
	// InTx runs fn in one transaction. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(Tx) error) error
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

type SlotFilter struct {
	ScheduleID string
	From       model.Date
	// To is exclusive. Zero means From+1 day.
	To     model.Date
	Status model.SlotStatus
}

type OutboxEvent struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

type OutboxRecord struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}

type Tx interface {
	ProviderExists(ctx context.Context, providerID string) (bool, error)
	// RegisterProvider returns false when the provider was already known.
	RegisterProvider(ctx context.Context, providerID string, at time.Time) (bool, error)
	// RecordInboxEvent returns false for an event id that was already recorded.
	RecordInboxEvent(ctx context.Context, eventID, eventType string, at time.Time) (bool, error)

	GetScheduleByProvider(ctx context.Context, providerID string) (model.Schedule, error)
	CreateSchedule(ctx context.Context, s model.Schedule) error
	// LockSchedule serializes writers of one schedule until the transaction ends.
	LockSchedule(ctx context.Context, scheduleID string) error

	ListWorkingDays(ctx context.Context, scheduleID string) ([]model.WorkingDay, error)
	GetWorkingDay(ctx context.Context, scheduleID string, day time.Weekday) (model.WorkingDay, error)
	InsertWorkingDay(ctx context.Context, wd model.WorkingDay) error
	UpdateWorkingDay(ctx context.Context, wd model.WorkingDay) error
	DeleteWorkingDay(ctx context.Context, scheduleID string, day time.Weekday) error

	InsertSlot(ctx context.Context, slot model.TimeSlot) error
	GetSlot(ctx context.Context, slotID string) (model.TimeSlot, error)
	ListSlots(ctx context.Context, f SlotFilter) ([]model.TimeSlot, error)
	// AcquireSlot flips AVAILABLE to BOOKED in a single conditional statement. It returns
	// ErrConflict when the slot is missing, not AVAILABLE, or shorter than durationMinutes.
	AcquireSlot(ctx context.Context, slotID string, durationMinutes int, at time.Time) error
	// ReleaseSlot flips BOOKED to AVAILABLE only when the slot's booking reference equals
	// bookingID ("" for none). It returns ErrConflict when no row matched.
	ReleaseSlot(ctx context.Context, slotID, bookingID string, at time.Time) error
	AttachBooking(ctx context.Context, slotID, bookingID string, at time.Time) error
	// DeleteAvailableSlots removes AVAILABLE slots on the weekday dated on or after from.
	DeleteAvailableSlots(ctx context.Context, scheduleID string, day time.Weekday, from model.Date) (int64, error)

	InsertBooking(ctx context.Context, b model.Booking) error
	GetBooking(ctx context.Context, bookingID string, forUpdate bool) (model.Booking, error)
	UpdateBooking(ctx context.Context, b model.Booking) error

	InsertOutboxEvent(ctx context.Context, evt OutboxEvent) error
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, ids []int64) error
}

// EffectiveTo resolves the exclusive upper date bound of f.
func (f SlotFilter) EffectiveTo() model.Date {
	if f.To.IsZero() {
		return f.From.AddDays(1)
	}
	return f.To
}

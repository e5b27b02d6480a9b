package schedule

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage"
)

// Event types double as Kafka topic names.
const (
	EventWorkingDayRemoved    = "availability.working_day.removed.v1"
	EventSlotBooked           = "availability.slot.booked.v1"
	EventSlotReleased         = "availability.slot.released.v1"
	EventBookingPlaced        = "availability.booking.placed.v1"
	EventBookingStatusChanged = "availability.booking.status_changed.v1"
	EventBookingRated         = "availability.booking.rated.v1"
)

type workingDayRemovedPayload struct {
	ProviderID    string `json:"provider_id"`
	ScheduleID    string `json:"schedule_id"`
	DayOfWeek     string `json:"day_of_week"`
	PurgedSlots   int64  `json:"purged_slots"`
	EffectiveFrom string `json:"effective_from"`
	OccurredAt    string `json:"occurred_at"`
}

type slotPayload struct {
	SlotID     string `json:"slot_id"`
	ScheduleID string `json:"schedule_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	BookingID  string `json:"booking_id,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

type bookingPayload struct {
	BookingID  string `json:"booking_id"`
	ProviderID string `json:"provider_id"`
	ConsumerID string `json:"consumer_id"`
	SlotID     string `json:"slot_id,omitempty"`
	Status     string `json:"status"`
	Previous   string `json:"previous_status,omitempty"`
	Rating     *int   `json:"rating,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

func (s *Service) emit(ctx context.Context, tx storage.Tx, eventType, aggregateType, aggregateID string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	if err := tx.InsertOutboxEvent(ctx, storage.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       b,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		return fmt.Errorf("write outbox event: %w", err)
	}
	return nil
}

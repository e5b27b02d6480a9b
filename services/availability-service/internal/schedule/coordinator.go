package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage"
)

// BookTimeSlot reserves the slot for durationMinutes counted from the slot start. The status
// flip is a single conditional update, so of any number of concurrent callers exactly one wins
// and the rest get a Conflict.
func (s *Service) BookTimeSlot(ctx context.Context, slotID string, durationMinutes int) (model.TimeSlotView, error) {
	if durationMinutes <= 0 || durationMinutes > model.MinutesPerDay {
		return model.TimeSlotView{}, InvalidInput(ReasonInvalidDuration, "duration must be between 1 and %d minutes, got %d",
			model.MinutesPerDay, durationMinutes)
	}

	var slot model.TimeSlot
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		slot, err = s.acquire(ctx, tx, slotID, durationMinutes)
		if err != nil {
			return err
		}
		return s.emit(ctx, tx, EventSlotBooked, "time_slot", slot.ID, s.slotEvent(slot))
	})
	if err != nil {
		return model.TimeSlotView{}, err
	}

	s.logger.Info("slot booked", "slot_id", slot.ID, "duration_minutes", durationMinutes)
	return model.NewTimeSlotView(slot), nil
}

// ReleaseTimeSlot returns a BOOKED slot with no booking attached to AVAILABLE. Slots held by a
// booking are released by cancelling the booking.
func (s *Service) ReleaseTimeSlot(ctx context.Context, slotID string) (model.TimeSlotView, error) {
	var slot model.TimeSlot
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		slot, err = s.release(ctx, tx, slotID, "")
		if err != nil {
			return err
		}
		return s.emit(ctx, tx, EventSlotReleased, "time_slot", slot.ID, s.slotEvent(slot))
	})
	if err != nil {
		return model.TimeSlotView{}, err
	}

	s.logger.Info("slot released", "slot_id", slot.ID)
	return model.NewTimeSlotView(slot), nil
}

// acquire is the only path that moves a slot to BOOKED. A miss on the conditional update is
// classified by re-reading the slot inside the same transaction.
func (s *Service) acquire(ctx context.Context, tx storage.Tx, slotID string, durationMinutes int) (model.TimeSlot, error) {
	err := tx.AcquireSlot(ctx, slotID, durationMinutes, s.now().UTC())
	if err == nil {
		slot, err := tx.GetSlot(ctx, slotID)
		if err != nil {
			return model.TimeSlot{}, fmt.Errorf("reload slot: %w", err)
		}
		return slot, nil
	}
	if !errors.Is(err, storage.ErrConflict) {
		return model.TimeSlot{}, fmt.Errorf("acquire slot: %w", err)
	}

	slot, err := tx.GetSlot(ctx, slotID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return model.TimeSlot{}, NotFound(ReasonSlotNotFound, "slot %s not found", slotID)
	case err != nil:
		return model.TimeSlot{}, fmt.Errorf("get slot: %w", err)
	case slot.Status != model.SlotAvailable:
		return model.TimeSlot{}, Conflict(ReasonSlotBooked, "slot %s is already booked", slotID)
	case !slot.Fits(durationMinutes):
		return model.TimeSlot{}, InvalidInput(ReasonInvalidDuration, "%d minutes does not fit the %d minute slot %s",
			durationMinutes, slot.DurationMinutes(), slotID)
	default:
		return model.TimeSlot{}, Conflict(ReasonSlotBooked, "slot %s was taken concurrently", slotID)
	}
}

func (s *Service) release(ctx context.Context, tx storage.Tx, slotID, bookingID string) (model.TimeSlot, error) {
	err := tx.ReleaseSlot(ctx, slotID, bookingID, s.now().UTC())
	if err == nil {
		slot, err := tx.GetSlot(ctx, slotID)
		if err != nil {
			return model.TimeSlot{}, fmt.Errorf("reload slot: %w", err)
		}
		return slot, nil
	}
	if !errors.Is(err, storage.ErrConflict) {
		return model.TimeSlot{}, fmt.Errorf("release slot: %w", err)
	}

	slot, err := tx.GetSlot(ctx, slotID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return model.TimeSlot{}, NotFound(ReasonSlotNotFound, "slot %s not found", slotID)
	case err != nil:
		return model.TimeSlot{}, fmt.Errorf("get slot: %w", err)
	case slot.Status != model.SlotBooked:
		return model.TimeSlot{}, Conflict(ReasonSlotNotBooked, "slot %s is not booked", slotID)
	default:
		return model.TimeSlot{}, Conflict(ReasonSlotHasBooking, "slot %s is held by booking %s", slotID, slot.BookingID)
	}
}

func (s *Service) slotEvent(slot model.TimeSlot) slotPayload {
	return slotPayload{
		SlotID:     slot.ID,
		ScheduleID: slot.ScheduleID,
		Date:       slot.Date.String(),
		StartTime:  model.FormatClock(slot.StartMinute),
		EndTime:    model.FormatClock(slot.EndMinute),
		BookingID:  slot.BookingID,
		OccurredAt: s.now().UTC().Format(time.RFC3339),
	}
}

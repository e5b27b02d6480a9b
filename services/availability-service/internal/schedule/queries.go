package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage"
)

// GetSchedule returns the provider's schedule, creating an empty one on first access.
func (s *Service) GetSchedule(ctx context.Context, providerID string) (model.ScheduleView, error) {
	var view model.ScheduleView
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		sched, err := s.scheduleFor(ctx, tx, providerID)
		if err != nil {
			return err
		}
		view, err = s.scheduleView(ctx, tx, sched)
		return err
	})
	return view, err
}

func (s *Service) GetTimeSlotsByDate(ctx context.Context, providerID string, date model.Date) ([]model.TimeSlotView, error) {
	return s.slotsOn(ctx, providerID, date, "")
}

func (s *Service) GetAvailableTimeSlots(ctx context.Context, providerID string, date model.Date) ([]model.TimeSlotView, error) {
	return s.slotsOn(ctx, providerID, date, model.SlotAvailable)
}

func (s *Service) slotsOn(ctx context.Context, providerID string, date model.Date, status model.SlotStatus) ([]model.TimeSlotView, error) {
	if date.IsZero() {
		return nil, InvalidInput(ReasonInvalidDate, "date is required")
	}
	var slots []model.TimeSlot
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		sched, err := s.scheduleFor(ctx, tx, providerID)
		if err != nil {
			return err
		}
		slots, err = tx.ListSlots(ctx, storage.SlotFilter{ScheduleID: sched.ID, From: date, Status: status})
		if err != nil {
			return fmt.Errorf("list slots: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return model.NewTimeSlotViews(slots), nil
}

// GetTimeSlot reports NotFound for slots that exist but belong to another provider.
func (s *Service) GetTimeSlot(ctx context.Context, providerID, slotID string) (model.TimeSlotView, error) {
	var slot model.TimeSlot
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		sched, err := s.scheduleFor(ctx, tx, providerID)
		if err != nil {
			return err
		}
		slot, err = tx.GetSlot(ctx, slotID)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && slot.ScheduleID != sched.ID) {
			return NotFound(ReasonSlotNotFound, "slot %s not found for provider %s", slotID, providerID)
		}
		if err != nil {
			return fmt.Errorf("get slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.TimeSlotView{}, err
	}
	return model.NewTimeSlotView(slot), nil
}

// GetUpcomingAvailableSlots lists AVAILABLE slots dated in [today, today+days), ordered by
// date then start time.
func (s *Service) GetUpcomingAvailableSlots(ctx context.Context, providerID string, days int) ([]model.TimeSlotView, error) {
	if days < 1 || days > MaxUpcomingDays {
		return nil, InvalidInput(ReasonInvalidDays, "days must be between 1 and %d", MaxUpcomingDays)
	}
	today := s.today()

	var slots []model.TimeSlot
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		sched, err := s.scheduleFor(ctx, tx, providerID)
		if err != nil {
			return err
		}
		slots, err = tx.ListSlots(ctx, storage.SlotFilter{
			ScheduleID: sched.ID,
			From:       today,
			To:         today.AddDays(days),
			Status:     model.SlotAvailable,
		})
		if err != nil {
			return fmt.Errorf("list slots: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	availability.SortSlots(slots)
	return model.NewTimeSlotViews(slots), nil
}

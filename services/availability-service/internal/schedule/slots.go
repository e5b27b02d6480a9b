package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage"
)

// CreateSlot adds a single bookable window. Windows on the same date may touch but not overlap.
func (s *Service) CreateSlot(ctx context.Context, providerID string, date model.Date, start, end int) (model.TimeSlotView, error) {
	if date.IsZero() {
		return model.TimeSlotView{}, InvalidInput(ReasonInvalidDate, "date is required")
	}
	if err := validateRange(start, end); err != nil {
		return model.TimeSlotView{}, err
	}

	var slot model.TimeSlot
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		sched, err := s.scheduleFor(ctx, tx, providerID)
		if err != nil {
			return err
		}
		if err := tx.LockSchedule(ctx, sched.ID); err != nil {
			return fmt.Errorf("lock schedule: %w", err)
		}

		existing, err := tx.ListSlots(ctx, storage.SlotFilter{ScheduleID: sched.ID, From: date})
		if err != nil {
			return fmt.Errorf("list slots: %w", err)
		}
		candidate := availability.Interval{Start: start, End: end}
		for _, other := range existing {
			if availability.Overlaps(candidate, availability.Interval{Start: other.StartMinute, End: other.EndMinute}) {
				return Conflict(ReasonSlotOverlap, "%s %s-%s overlaps slot %s-%s", date,
					model.FormatClock(start), model.FormatClock(end),
					model.FormatClock(other.StartMinute), model.FormatClock(other.EndMinute))
			}
		}

		now := s.now().UTC()
		slot = model.TimeSlot{
			ID:          s.newID(),
			ScheduleID:  sched.ID,
			Date:        date,
			StartMinute: start,
			EndMinute:   end,
			Status:      model.SlotAvailable,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertSlot(ctx, slot); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return Conflict(ReasonSlotOverlap, "%s %s-%s overlaps an existing slot", date, model.FormatClock(start), model.FormatClock(end))
			}
			return fmt.Errorf("insert slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.TimeSlotView{}, err
	}

	s.logger.Info("slot created", "provider_id", providerID, "slot_id", slot.ID, "date", date.String())
	return model.NewTimeSlotView(slot), nil
}

// GenerateSlots cuts the working-day templates over [from, from+days) into back-to-back windows
// of slotMinutes, skipping any window that would overlap a slot already on the schedule.
func (s *Service) GenerateSlots(ctx context.Context, providerID string, from model.Date, days, slotMinutes int) ([]model.TimeSlotView, error) {
	if slotMinutes <= 0 || slotMinutes > model.MinutesPerDay {
		return nil, InvalidInput(ReasonInvalidDuration, "slot length must be between 1 and %d minutes", model.MinutesPerDay)
	}
	if days < 1 || days > MaxUpcomingDays {
		return nil, InvalidInput(ReasonInvalidDays, "days must be between 1 and %d", MaxUpcomingDays)
	}
	today := s.today()
	if from.IsZero() {
		from = today
	}
	if from.Before(today) {
		return nil, InvalidInput(ReasonInvalidDate, "cannot generate slots before %s", today)
	}

	var created []model.TimeSlot
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		sched, err := s.scheduleFor(ctx, tx, providerID)
		if err != nil {
			return err
		}
		if err := tx.LockSchedule(ctx, sched.ID); err != nil {
			return fmt.Errorf("lock schedule: %w", err)
		}

		templates, err := tx.ListWorkingDays(ctx, sched.ID)
		if err != nil {
			return fmt.Errorf("list working days: %w", err)
		}
		existing, err := tx.ListSlots(ctx, storage.SlotFilter{ScheduleID: sched.ID, From: from, To: from.AddDays(days)})
		if err != nil {
			return fmt.Errorf("list slots: %w", err)
		}
		busy := make(map[string][]availability.Interval)
		for _, slot := range existing {
			key := slot.Date.String()
			busy[key] = append(busy[key], availability.Interval{Start: slot.StartMinute, End: slot.EndMinute})
		}

		now := s.now().UTC()
		for _, plan := range availability.PlanRange(from, days, templates, slotMinutes, busy) {
			slot := model.TimeSlot{
				ID:          s.newID(),
				ScheduleID:  sched.ID,
				Date:        plan.Date,
				StartMinute: plan.Start,
				EndMinute:   plan.End,
				Status:      model.SlotAvailable,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.InsertSlot(ctx, slot); err != nil {
				return fmt.Errorf("insert slot: %w", err)
			}
			created = append(created, slot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("slots generated", "provider_id", providerID, "from", from.String(), "days", days, "created", len(created))
	return model.NewTimeSlotViews(created), nil
}

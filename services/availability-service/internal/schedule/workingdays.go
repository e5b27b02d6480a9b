package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage"
)

func (s *Service) AddWorkingDay(ctx context.Context, providerID string, day time.Weekday, start, end int) (model.ScheduleView, error) {
	if err := validateWeekday(day); err != nil {
		return model.ScheduleView{}, err
	}
	if err := validateRange(start, end); err != nil {
		return model.ScheduleView{}, err
	}

	var view model.ScheduleView
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		sched, err := s.scheduleFor(ctx, tx, providerID)
		if err != nil {
			return err
		}
		if err := tx.LockSchedule(ctx, sched.ID); err != nil {
			return fmt.Errorf("lock schedule: %w", err)
		}

		_, err = tx.GetWorkingDay(ctx, sched.ID, day)
		switch {
		case err == nil:
			return Conflict(ReasonDuplicateWeekday, "%s already has working hours", model.FormatWeekday(day))
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("get working day: %w", err)
		}

		wd := model.WorkingDay{
			ID:          s.newID(),
			ScheduleID:  sched.ID,
			DayOfWeek:   day,
			StartMinute: start,
			EndMinute:   end,
		}
		if err := tx.InsertWorkingDay(ctx, wd); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return Conflict(ReasonDuplicateWeekday, "%s already has working hours", model.FormatWeekday(day))
			}
			return fmt.Errorf("insert working day: %w", err)
		}

		view, err = s.scheduleView(ctx, tx, sched)
		return err
	})
	if err != nil {
		return model.ScheduleView{}, err
	}

	s.logger.Info("working day added",
		"provider_id", providerID,
		"day_of_week", model.FormatWeekday(day),
		"start", model.FormatClock(start),
		"end", model.FormatClock(end),
	)
	return view, nil
}

// UpdateWorkingDay replaces the hours of an existing template. Slots already created are kept.
func (s *Service) UpdateWorkingDay(ctx context.Context, providerID string, day time.Weekday, start, end int) (model.ScheduleView, error) {
	if err := validateWeekday(day); err != nil {
		return model.ScheduleView{}, err
	}
	if err := validateRange(start, end); err != nil {
		return model.ScheduleView{}, err
	}

	var view model.ScheduleView
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		sched, err := s.scheduleFor(ctx, tx, providerID)
		if err != nil {
			return err
		}
		if err := tx.LockSchedule(ctx, sched.ID); err != nil {
			return fmt.Errorf("lock schedule: %w", err)
		}

		err = tx.UpdateWorkingDay(ctx, model.WorkingDay{ScheduleID: sched.ID, DayOfWeek: day, StartMinute: start, EndMinute: end})
		if errors.Is(err, storage.ErrNotFound) {
			return NotFound(ReasonWorkingDayNotFound, "no working hours on %s", model.FormatWeekday(day))
		}
		if err != nil {
			return fmt.Errorf("update working day: %w", err)
		}

		view, err = s.scheduleView(ctx, tx, sched)
		return err
	})
	if err != nil {
		return model.ScheduleView{}, err
	}

	s.logger.Info("working day updated", "provider_id", providerID, "day_of_week", model.FormatWeekday(day))
	return view, nil
}

// RemoveWorkingDay deletes the template and every AVAILABLE slot on that weekday dated today
// or later. BOOKED slots are left alone.
func (s *Service) RemoveWorkingDay(ctx context.Context, providerID string, day time.Weekday) (model.ScheduleView, error) {
	if err := validateWeekday(day); err != nil {
		return model.ScheduleView{}, err
	}

	var (
		view   model.ScheduleView
		purged int64
	)
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		sched, err := s.scheduleFor(ctx, tx, providerID)
		if err != nil {
			return err
		}
		if err := tx.LockSchedule(ctx, sched.ID); err != nil {
			return fmt.Errorf("lock schedule: %w", err)
		}

		err = tx.DeleteWorkingDay(ctx, sched.ID, day)
		if errors.Is(err, storage.ErrNotFound) {
			return NotFound(ReasonWorkingDayNotFound, "no working hours on %s", model.FormatWeekday(day))
		}
		if err != nil {
			return fmt.Errorf("delete working day: %w", err)
		}

		today := s.today()
		purged, err = tx.DeleteAvailableSlots(ctx, sched.ID, day, today)
		if err != nil {
			return fmt.Errorf("purge slots: %w", err)
		}

		if err := s.emit(ctx, tx, EventWorkingDayRemoved, "schedule", sched.ID, workingDayRemovedPayload{
			ProviderID:    providerID,
			ScheduleID:    sched.ID,
			DayOfWeek:     model.FormatWeekday(day),
			PurgedSlots:   purged,
			EffectiveFrom: today.String(),
			OccurredAt:    s.now().UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}

		view, err = s.scheduleView(ctx, tx, sched)
		return err
	})
	if err != nil {
		return model.ScheduleView{}, err
	}

	s.logger.Info("working day removed", "provider_id", providerID, "day_of_week", model.FormatWeekday(day), "purged_slots", purged)
	return view, nil
}

package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage"
)

// BookingIntent is what the order flow hands over once consumer and service type are resolved.
// Price fields are stored as given.
type BookingIntent struct {
	ConsumerID    string
	ProviderID    string
	ServiceTypeID string
	TimeSlotID    string
	Date          model.Date
	StartMinute   int
	EndMinute     int
	PriceCents    int64
	Currency      string
}

func (in BookingIntent) validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"consumer_id", in.ConsumerID},
		{"provider_id", in.ProviderID},
		{"service_type_id", in.ServiceTypeID},
		{"time_slot_id", in.TimeSlotID},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return InvalidInput(ReasonInvalidRequest, "missing %s", strings.Join(missing, ", "))
	}
	if in.Date.IsZero() {
		return InvalidInput(ReasonInvalidDate, "date is required")
	}
	if in.PriceCents < 0 {
		return InvalidInput(ReasonInvalidRequest, "price must not be negative")
	}
	return validateRange(in.StartMinute, in.EndMinute)
}

// PlaceBooking checks the requested window against the provider's working hours and the slot,
// acquires the slot and records a PENDING booking, all in one transaction.
func (s *Service) PlaceBooking(ctx context.Context, in BookingIntent) (model.BookingView, error) {
	if err := in.validate(); err != nil {
		return model.BookingView{}, err
	}

	var booking model.Booking
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		sched, err := s.scheduleFor(ctx, tx, in.ProviderID)
		if err != nil {
			return err
		}

		day := in.Date.Weekday()
		wd, err := tx.GetWorkingDay(ctx, sched.ID, day)
		if errors.Is(err, storage.ErrNotFound) {
			return OutsideWorkingHours("provider does not work on %s", model.FormatWeekday(day))
		}
		if err != nil {
			return fmt.Errorf("get working day: %w", err)
		}
		if !wd.Covers(in.StartMinute, in.EndMinute) {
			return OutsideWorkingHours("%s-%s is outside %s working hours %s-%s",
				model.FormatClock(in.StartMinute), model.FormatClock(in.EndMinute), model.FormatWeekday(day),
				model.FormatClock(wd.StartMinute), model.FormatClock(wd.EndMinute))
		}

		slot, err := tx.GetSlot(ctx, in.TimeSlotID)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && slot.ScheduleID != sched.ID) {
			return NotFound(ReasonSlotNotFound, "slot %s not found for provider %s", in.TimeSlotID, in.ProviderID)
		}
		if err != nil {
			return fmt.Errorf("get slot: %w", err)
		}
		if !slot.Date.Equal(in.Date) || in.StartMinute != slot.StartMinute || in.EndMinute > slot.EndMinute {
			return InvalidInput(ReasonSlotMismatch, "requested %s %s-%s does not fit slot %s %s-%s",
				in.Date, model.FormatClock(in.StartMinute), model.FormatClock(in.EndMinute),
				slot.Date, model.FormatClock(slot.StartMinute), model.FormatClock(slot.EndMinute))
		}

		slot, err = s.acquire(ctx, tx, slot.ID, in.EndMinute-in.StartMinute)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		booking = model.Booking{
			ID:            s.newID(),
			ConsumerID:    in.ConsumerID,
			ProviderID:    in.ProviderID,
			ServiceTypeID: in.ServiceTypeID,
			Date:          in.Date,
			StartMinute:   in.StartMinute,
			EndMinute:     in.EndMinute,
			TimeSlotID:    slot.ID,
			PriceCents:    in.PriceCents,
			Currency:      in.Currency,
			Status:        model.BookingPending,
			CreatedAt:     now,
		}
		if err := tx.InsertBooking(ctx, booking); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return Conflict(ReasonSlotBooked, "slot %s already has an active booking", slot.ID)
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		if err := tx.AttachBooking(ctx, slot.ID, booking.ID, now); err != nil {
			return fmt.Errorf("attach booking: %w", err)
		}
		slot.BookingID = booking.ID

		if err := s.emit(ctx, tx, EventSlotBooked, "time_slot", slot.ID, s.slotEvent(slot)); err != nil {
			return err
		}
		return s.emit(ctx, tx, EventBookingPlaced, "booking", booking.ID, s.bookingEvent(booking, ""))
	})
	if err != nil {
		return model.BookingView{}, err
	}

	s.logger.Info("booking placed",
		"booking_id", booking.ID,
		"provider_id", booking.ProviderID,
		"slot_id", booking.TimeSlotID,
	)
	return model.NewBookingView(booking), nil
}

// TransitionBooking moves a booking along its lifecycle. Cancelling frees the slot.
func (s *Service) TransitionBooking(ctx context.Context, bookingID string, to model.BookingStatus, reason string) (model.BookingView, error) {
	if _, ok := model.ParseBookingStatus(string(to)); !ok {
		return model.BookingView{}, InvalidInput(ReasonInvalidRequest, "unknown booking status %q", to)
	}

	var (
		booking model.Booking
		from    model.BookingStatus
	)
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		booking, err = s.lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		from = booking.Status
		if from.Terminal() {
			return Conflict(ReasonInvalidTransition, "booking %s is already %s", bookingID, from)
		}
		if !from.CanTransitionTo(to) {
			return Conflict(ReasonInvalidTransition, "booking %s cannot move from %s to %s", bookingID, from, to)
		}

		now := s.now().UTC()
		booking.Status = to
		booking.Stamp(now)
		if to == model.BookingCancelled {
			booking.CancelReason = reason
			if booking.TimeSlotID != "" {
				slot, err := s.release(ctx, tx, booking.TimeSlotID, booking.ID)
				if err != nil {
					return err
				}
				if err := s.emit(ctx, tx, EventSlotReleased, "time_slot", slot.ID, s.slotEvent(slot)); err != nil {
					return err
				}
			}
		}
		if err := tx.UpdateBooking(ctx, booking); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		return s.emit(ctx, tx, EventBookingStatusChanged, "booking", booking.ID, s.bookingEvent(booking, from))
	})
	if err != nil {
		return model.BookingView{}, err
	}

	s.logger.Info("booking status changed", "booking_id", bookingID, "from", from, "to", to)
	return model.NewBookingView(booking), nil
}

// RateBooking attaches a 1..5 rating and optional review to a COMPLETED booking, once.
func (s *Service) RateBooking(ctx context.Context, bookingID string, rating int, review string) (model.BookingView, error) {
	if rating < 1 || rating > 5 {
		return model.BookingView{}, InvalidInput(ReasonInvalidRating, "rating must be between 1 and 5, got %d", rating)
	}

	var booking model.Booking
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		booking, err = s.lockBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != model.BookingCompleted {
			return Conflict(ReasonNotCompleted, "booking %s is %s, only completed bookings can be rated", bookingID, booking.Status)
		}
		if booking.Rating != nil {
			return Conflict(ReasonAlreadyRated, "booking %s is already rated", bookingID)
		}

		booking.Rating = &rating
		booking.Review = strings.TrimSpace(review)
		if err := tx.UpdateBooking(ctx, booking); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		return s.emit(ctx, tx, EventBookingRated, "booking", booking.ID, s.bookingEvent(booking, ""))
	})
	if err != nil {
		return model.BookingView{}, err
	}

	s.logger.Info("booking rated", "booking_id", bookingID, "rating", rating)
	return model.NewBookingView(booking), nil
}

func (s *Service) GetBooking(ctx context.Context, bookingID string) (model.BookingView, error) {
	var booking model.Booking
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		booking, err = tx.GetBooking(ctx, bookingID, false)
		if errors.Is(err, storage.ErrNotFound) {
			return NotFound(ReasonBookingNotFound, "booking %s not found", bookingID)
		}
		return err
	})
	if err != nil {
		return model.BookingView{}, err
	}
	return model.NewBookingView(booking), nil
}

func (s *Service) lockBooking(ctx context.Context, tx storage.Tx, bookingID string) (model.Booking, error) {
	b, err := tx.GetBooking(ctx, bookingID, true)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Booking{}, NotFound(ReasonBookingNotFound, "booking %s not found", bookingID)
	}
	if err != nil {
		return model.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (s *Service) bookingEvent(b model.Booking, previous model.BookingStatus) bookingPayload {
	return bookingPayload{
		BookingID:  b.ID,
		ProviderID: b.ProviderID,
		ConsumerID: b.ConsumerID,
		SlotID:     b.TimeSlotID,
		Status:     string(b.Status),
		Previous:   string(previous),
		Rating:     b.Rating,
		OccurredAt: s.now().UTC().Format(time.RFC3339),
	}
}

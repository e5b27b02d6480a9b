package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage"
)

const MaxUpcomingDays = 90

// Service owns working-day templates, slot allocation, slot acquisition and booking records.
// Every write runs in exactly one store transaction.
type Service struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
	loc    *time.Location
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithLocation sets the zone used to decide what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func New(store storage.Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
		loc:    time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *Service) today() model.Date {
	return model.DateOf(s.now().In(s.loc))
}

// RegisterProvider makes a provider known to the engine. It returns false if it already was.
func (s *Service) RegisterProvider(ctx context.Context, providerID string) (bool, error) {
	if providerID == "" {
		return false, InvalidInput(ReasonInvalidRequest, "provider id is required")
	}
	var created bool
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		created, err = tx.RegisterProvider(ctx, providerID, s.now().UTC())
		return err
	})
	if err != nil {
		return false, fmt.Errorf("register provider: %w", err)
	}
	if created {
		s.logger.Info("provider registered", "provider_id", providerID)
	}
	return created, nil
}

// scheduleFor resolves the provider's schedule, creating it on first use for known providers.
func (s *Service) scheduleFor(ctx context.Context, tx storage.Tx, providerID string) (model.Schedule, error) {
	if providerID == "" {
		return model.Schedule{}, InvalidInput(ReasonInvalidRequest, "provider id is required")
	}
	sched, err := tx.GetScheduleByProvider(ctx, providerID)
	if err == nil {
		return sched, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return model.Schedule{}, fmt.Errorf("get schedule: %w", err)
	}

	exists, err := tx.ProviderExists(ctx, providerID)
	if err != nil {
		return model.Schedule{}, fmt.Errorf("check provider: %w", err)
	}
	if !exists {
		return model.Schedule{}, NotFound(ReasonProviderNotFound, "provider %s not found", providerID)
	}

	sched = model.Schedule{ID: s.newID(), ProviderID: providerID, CreatedAt: s.now().UTC()}
	if err := tx.CreateSchedule(ctx, sched); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return tx.GetScheduleByProvider(ctx, providerID)
		}
		return model.Schedule{}, fmt.Errorf("create schedule: %w", err)
	}
	s.logger.Info("schedule created", "provider_id", providerID, "schedule_id", sched.ID)
	return sched, nil
}

func (s *Service) scheduleView(ctx context.Context, tx storage.Tx, sched model.Schedule) (model.ScheduleView, error) {
	days, err := tx.ListWorkingDays(ctx, sched.ID)
	if err != nil {
		return model.ScheduleView{}, fmt.Errorf("list working days: %w", err)
	}
	return model.NewScheduleView(sched, days), nil
}

func validateRange(start, end int) error {
	if !model.ValidRange(start, end) {
		return InvalidInput(ReasonInvalidRange, "start %s must be before end %s within one day",
			model.FormatClock(max(start, 0)), model.FormatClock(max(end, 0)))
	}
	return nil
}

func validateWeekday(day time.Weekday) error {
	if day < time.Sunday || day > time.Saturday {
		return InvalidInput(ReasonInvalidDay, "day of week %d out of range", int(day))
	}
	return nil
}

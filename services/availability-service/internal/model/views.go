package model

import "time"

type WorkingDayView struct {
	ID        string `json:"id"`
	DayOfWeek string `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type ScheduleView struct {
	ID          string           `json:"id"`
	ProviderID  string           `json:"provider_id"`
	WorkingDays []WorkingDayView `json:"working_days"`
}

type TimeSlotView struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	DayOfWeek string `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
	BookingID string `json:"booking_id,omitempty"`
}

type BookingView struct {
	ID            string `json:"id"`
	ConsumerID    string `json:"consumer_id"`
	ProviderID    string `json:"provider_id"`
	ServiceTypeID string `json:"service_type_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	TimeSlotID    string `json:"time_slot_id,omitempty"`
	PriceCents    int64  `json:"price_cents"`
	Currency      string `json:"currency,omitempty"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
	AcceptedAt    string `json:"accepted_at,omitempty"`
	StartedAt     string `json:"started_at,omitempty"`
	CompletedAt   string `json:"completed_at,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	Rating        *int   `json:"rating,omitempty"`
	Review        string `json:"review,omitempty"`
}

func NewScheduleView(s Schedule, days []WorkingDay) ScheduleView {
	view := ScheduleView{ID: s.ID, ProviderID: s.ProviderID, WorkingDays: make([]WorkingDayView, 0, len(days))}
	for _, wd := range days {
		view.WorkingDays = append(view.WorkingDays, WorkingDayView{
			ID:        wd.ID,
			DayOfWeek: FormatWeekday(wd.DayOfWeek),
			StartTime: FormatClock(wd.StartMinute),
			EndTime:   FormatClock(wd.EndMinute),
		})
	}
	return view
}

func NewTimeSlotView(s TimeSlot) TimeSlotView {
	return TimeSlotView{
		ID:        s.ID,
		Date:      s.Date.String(),
		DayOfWeek: FormatWeekday(s.Date.Weekday()),
		StartTime: FormatClock(s.StartMinute),
		EndTime:   FormatClock(s.EndMinute),
		Status:    string(s.Status),
		BookingID: s.BookingID,
	}
}

// NewTimeSlotViews never returns nil so empty lists encode as [].
func NewTimeSlotViews(slots []TimeSlot) []TimeSlotView {
	out := make([]TimeSlotView, 0, len(slots))
	for _, s := range slots {
		out = append(out, NewTimeSlotView(s))
	}
	return out
}

func NewBookingView(b Booking) BookingView {
	return BookingView{
		ID:            b.ID,
		ConsumerID:    b.ConsumerID,
		ProviderID:    b.ProviderID,
		ServiceTypeID: b.ServiceTypeID,
		Date:          b.Date.String(),
		StartTime:     FormatClock(b.StartMinute),
		EndTime:       FormatClock(b.EndMinute),
		TimeSlotID:    b.TimeSlotID,
		PriceCents:    b.PriceCents,
		Currency:      b.Currency,
		Status:        string(b.Status),
		CreatedAt:     b.CreatedAt.UTC().Format(time.RFC3339),
		AcceptedAt:    formatOptional(b.AcceptedAt),
		StartedAt:     formatOptional(b.StartedAt),
		CompletedAt:   formatOptional(b.CompletedAt),
		CancelledAt:   formatOptional(b.CancelledAt),
		CancelReason:  b.CancelReason,
		Rating:        b.Rating,
		Review:        b.Review,
	}
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

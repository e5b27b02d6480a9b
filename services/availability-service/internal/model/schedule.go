package model

import "time"

type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotBooked    SlotStatus = "BOOKED"
)

// Schedule is the per-provider aggregate. WorkingDays and TimeSlots reference it by ScheduleID.
type Schedule struct {
	ID         string
	ProviderID string
	CreatedAt  time.Time
}

// WorkingDay is a recurring weekly template: the provider works [StartMinute, EndMinute)
// on every DayOfWeek.
type WorkingDay struct {
	ID          string
	ScheduleID  string
	DayOfWeek   time.Weekday
	StartMinute int
	EndMinute   int
}

// Covers reports whether [start, end] lies inside the template window.
func (wd WorkingDay) Covers(start, end int) bool {
	return start >= wd.StartMinute && end <= wd.EndMinute
}

type TimeSlot struct {
	ID          string
	ScheduleID  string
	Date        Date
	StartMinute int
	EndMinute   int
	Status      SlotStatus
	BookingID   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s TimeSlot) DurationMinutes() int {
	return s.EndMinute - s.StartMinute
}

// Fits reports whether a reservation of durationMinutes starting at the slot start ends
// inside the slot.
func (s TimeSlot) Fits(durationMinutes int) bool {
	return durationMinutes <= s.EndMinute-s.StartMinute
}

// ValidRange reports whether [start, end) is a non-empty range inside one day.
func ValidRange(start, end int) bool {
	return start >= 0 && end <= MinutesPerDay && start < end
}

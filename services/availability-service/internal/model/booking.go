package model

import "time"

type BookingStatus string

const (
	BookingPending    BookingStatus = "PENDING"
	BookingAccepted   BookingStatus = "ACCEPTED"
	BookingInProgress BookingStatus = "IN_PROGRESS"
	BookingCompleted  BookingStatus = "COMPLETED"
	BookingCancelled  BookingStatus = "CANCELLED"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:    {BookingAccepted, BookingCancelled},
	BookingAccepted:   {BookingInProgress, BookingCancelled},
	BookingInProgress: {BookingCompleted},
}

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch st := BookingStatus(s); st {
	case BookingPending, BookingAccepted, BookingInProgress, BookingCompleted, BookingCancelled:
		return st, true
	}
	return "", false
}

func (s BookingStatus) CanTransitionTo(to BookingStatus) bool {
	for _, next := range bookingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal statuses release nothing further and accept no transitions.
func (s BookingStatus) Terminal() bool {
	return len(bookingTransitions[s]) == 0
}

type Booking struct {
	ID            string
	ConsumerID    string
	ProviderID    string
	ServiceTypeID string
	Date          Date
	StartMinute   int
	EndMinute     int
	TimeSlotID    string
	PriceCents    int64
	Currency      string
	Status        BookingStatus
	CreatedAt     time.Time
	AcceptedAt    *time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
	CancelReason  string
	Rating        *int
	Review        string
}

// Stamp records the transition time for the status the booking just entered.
func (b *Booking) Stamp(at time.Time) {
	t := at.UTC()
	switch b.Status {
	case BookingAccepted:
		b.AcceptedAt = &t
	case BookingInProgress:
		b.StartedAt = &t
	case BookingCompleted:
		b.CompletedAt = &t
	case BookingCancelled:
		b.CancelledAt = &t
	}
}

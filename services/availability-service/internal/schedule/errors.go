package schedule

import (
	"errors"
	"fmt"
)

// Kind is the closed set of business failures the service reports.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindInvalidInput        Kind = "invalid_input"
	KindConflict            Kind = "conflict"
	KindOutsideWorkingHours Kind = "outside_working_hours"
)

// Stable reason codes carried next to the kind.
const (
	ReasonProviderNotFound   = "provider_not_found"
	ReasonWorkingDayNotFound = "working_day_not_found"
	ReasonSlotNotFound       = "slot_not_found"
	ReasonBookingNotFound    = "booking_not_found"

	ReasonInvalidRange    = "invalid_range"
	ReasonInvalidDuration = "invalid_duration"
	ReasonInvalidDay      = "invalid_day"
	ReasonInvalidDate     = "invalid_date"
	ReasonInvalidDays     = "invalid_days"
	ReasonInvalidRating   = "invalid_rating"
	ReasonInvalidRequest  = "invalid_request"
	ReasonSlotMismatch    = "slot_mismatch"

	ReasonDuplicateWeekday  = "duplicate_weekday"
	ReasonSlotOverlap       = "slot_overlap"
	ReasonSlotBooked        = "slot_booked"
	ReasonSlotNotBooked     = "slot_not_booked"
	ReasonSlotHasBooking    = "slot_has_booking"
	ReasonInvalidTransition = "invalid_transition"
	ReasonNotCompleted      = "not_completed"
	ReasonAlreadyRated      = "already_rated"

	ReasonOutsideWorkingHours = "outside_working_hours"
)

type Error struct {
	Kind    Kind
	Reason  string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Reason, e.Message)
}

func newError(kind Kind, reason, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func NotFound(reason, format string, args ...any) *Error {
	return newError(KindNotFound, reason, format, args...)
}

func InvalidInput(reason, format string, args ...any) *Error {
	return newError(KindInvalidInput, reason, format, args...)
}

func Conflict(reason, format string, args ...any) *Error {
	return newError(KindConflict, reason, format, args...)
}

func OutsideWorkingHours(format string, args ...any) *Error {
	return newError(KindOutsideWorkingHours, ReasonOutsideWorkingHours, format, args...)
}

// AsError unwraps err to a service error, if it is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

func HasReason(err error, reason string) bool {
	e, ok := AsError(err)
	return ok && e.Reason == reason
}

package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout     = "2006-01-02"
	MinutesPerDay  = 24 * 60
	clockSeparator = ":"
)

// Date is a calendar day without a time of day. The zero value is not a valid date.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return Date{t: t}, nil
}

func (d Date) IsZero() bool { return d.t.IsZero() }
func (d Date) Time() time.Time { return d.t }
func (d Date) String() string { return d.t.Format(DateLayout) }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) After(other Date) bool { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }
func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

var errClock = errors.New("invalid time of day (want HH:MM)")

// ParseClock parses "HH:MM" into minutes since midnight. "24:00" is accepted as the end of day.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), clockSeparator)
	if len(parts) != 2 {
		return 0, errClock
	}
	h, ok := twoDigits(parts[0])
	if !ok {
		return 0, errClock
	}
	m, ok := twoDigits(parts[1])
	if !ok {
		return 0, errClock
	}
	if h > 24 || m > 59 || (h == 24 && m != 0) {
		return 0, errClock
	}
	return h*60 + m, nil
}

// twoDigits parses exactly two ASCII digits. Signs and single digits are rejected.
func twoDigits(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

var weekdayNames = map[string]time.Weekday{
	"SUNDAY":    time.Sunday,
	"MONDAY":    time.Monday,
	"TUESDAY":   time.Tuesday,
	"WEDNESDAY": time.Wednesday,
	"THURSDAY":  time.Thursday,
	"FRIDAY":    time.Friday,
	"SATURDAY":  time.Saturday,
}

// ParseWeekday accepts full English day names in any case ("MONDAY", "monday").
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("invalid day of week %q", s)
	}
	return d, nil
}

func FormatWeekday(d time.Weekday) string {
	return strings.ToUpper(d.String())
}

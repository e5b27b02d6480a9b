package availability

import (
	"sort"

	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/model"
)

// Interval is a half-open range of minutes since midnight.
type Interval struct {
	Start int
	End   int
}

// Overlaps reports whether [a.Start,a.End) and [b.Start,b.End) intersect.
// Touching intervals (a.End == b.Start) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && a.End > b.Start
}

func OverlapsAny(iv Interval, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(iv, b) {
			return true
		}
	}
	return false
}

// Windows returns back-to-back windows of length slotMinutes inside the working day that do
// not overlap any busy interval. A window that does not fit before the end of the day is dropped.
func Windows(wd model.WorkingDay, slotMinutes int, busy []Interval) []Interval {
	if slotMinutes <= 0 || wd.StartMinute >= wd.EndMinute {
		return nil
	}
	var out []Interval
	for start := wd.StartMinute; start+slotMinutes <= wd.EndMinute; start += slotMinutes {
		iv := Interval{Start: start, End: start + slotMinutes}
		if OverlapsAny(iv, busy) {
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Plan is a window on a specific date, ready to be persisted as a slot.
type Plan struct {
	Date model.Date
	Interval
}

// PlanRange expands weekly templates over [from, from+days) into concrete windows.
// existing is keyed by date string and holds the slot intervals already stored for that date.
func PlanRange(from model.Date, days int, templates []model.WorkingDay, slotMinutes int, existing map[string][]Interval) []Plan {
	byDay := make(map[int]model.WorkingDay, len(templates))
	for _, wd := range templates {
		byDay[int(wd.DayOfWeek)] = wd
	}

	var plans []Plan
	for i := 0; i < days; i++ {
		d := from.AddDays(i)
		wd, ok := byDay[int(d.Weekday())]
		if !ok {
			continue
		}
		for _, iv := range Windows(wd, slotMinutes, existing[d.String()]) {
			plans = append(plans, Plan{Date: d, Interval: iv})
		}
	}
	return plans
}

// SortSlots orders slots ascending by (date, start).
func SortSlots(slots []model.TimeSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if !slots[i].Date.Equal(slots[j].Date) {
			return slots[i].Date.Before(slots[j].Date)
		}
		return slots[i].StartMinute < slots[j].StartMinute
	})
}

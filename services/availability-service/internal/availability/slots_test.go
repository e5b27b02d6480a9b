package availability

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/model"
)

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Interval
		want bool
	}{
		{name: "partial", a: Interval{540, 600}, b: Interval{570, 630}, want: true},
		{name: "contained", a: Interval{540, 600}, b: Interval{550, 560}, want: true},
		{name: "same", a: Interval{540, 600}, b: Interval{540, 600}, want: true},
		{name: "touching after", a: Interval{540, 600}, b: Interval{600, 660}, want: false},
		{name: "touching before", a: Interval{600, 660}, b: Interval{540, 600}, want: false},
		{name: "disjoint", a: Interval{540, 600}, b: Interval{700, 760}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Overlaps(tc.a, tc.b); got != tc.want {
				t.Fatalf("Overlaps(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
			if got := Overlaps(tc.b, tc.a); got != tc.want {
				t.Fatalf("Overlaps is not symmetric for %v, %v", tc.a, tc.b)
			}
		})
	}
}

func TestWindows_SkipsBusy(t *testing.T) {
	wd := model.WorkingDay{DayOfWeek: time.Monday, StartMinute: 540, EndMinute: 720}
	busy := []Interval{{Start: 600, End: 660}}

	got := Windows(wd, 60, busy)
	if len(got) != 2 {
		t.Fatalf("expected 2 windows, got %d: %v", len(got), got)
	}
	if got[0] != (Interval{540, 600}) || got[1] != (Interval{660, 720}) {
		t.Fatalf("unexpected windows %v", got)
	}
}

func TestWindows_DropsTrailingPartial(t *testing.T) {
	wd := model.WorkingDay{StartMinute: 540, EndMinute: 630}
	got := Windows(wd, 60, nil)
	if len(got) != 1 || got[0] != (Interval{540, 600}) {
		t.Fatalf("unexpected windows %v", got)
	}
	if Windows(wd, 0, nil) != nil {
		t.Fatal("expected nil for zero length")
	}
}

func TestPlanRange_UsesWeekdayTemplates(t *testing.T) {
	monday := model.NewDate(2025, time.June, 2)
	templates := []model.WorkingDay{
		{DayOfWeek: time.Monday, StartMinute: 540, EndMinute: 660},
		{DayOfWeek: time.Wednesday, StartMinute: 600, EndMinute: 660},
	}
	existing := map[string][]Interval{
		"2025-06-02": {{Start: 540, End: 600}},
	}

	plans := PlanRange(monday, 7, templates, 60, existing)
	if len(plans) != 2 {
		t.Fatalf("expected 2 plans, got %d: %v", len(plans), plans)
	}
	if plans[0].Date.String() != "2025-06-02" || plans[0].Start != 600 {
		t.Fatalf("unexpected first plan %+v", plans[0])
	}
	if plans[1].Date.String() != "2025-06-04" || plans[1].Start != 600 || plans[1].End != 660 {
		t.Fatalf("unexpected second plan %+v", plans[1])
	}
}

func TestSortSlots(t *testing.T) {
	d1 := model.NewDate(2025, time.June, 2)
	d2 := d1.AddDays(1)
	slots := []model.TimeSlot{
		{ID: "c", Date: d2, StartMinute: 540},
		{ID: "b", Date: d1, StartMinute: 600},
		{ID: "a", Date: d1, StartMinute: 540},
	}
	SortSlots(slots)
	for i, want := range []string{"a", "b", "c"} {
		if slots[i].ID != want {
			t.Fatalf("position %d: got %s want %s", i, slots[i].ID, want)
		}
	}
}

package roster_test

import (
	"testing"
	"time"

	"github.com/nooarche/NCHD-Roster-V1/roster"
)

func TestParseDate_RoundTrip(t *testing.T) {
	d, err := roster.ParseDate("2024-03-05")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "2024-03-05" {
		t.Errorf("expected 2024-03-05, got %s", d)
	}
	if d.Weekday() != time.Tuesday {
		t.Errorf("expected Tuesday, got %s", d.Weekday())
	}
}

func TestParseDate_Malformed(t *testing.T) {
	for _, s := range []string{"", "2024-3-5", "05/03/2024", "2024-13-01"} {
		if _, err := roster.ParseDate(s); err == nil {
			t.Errorf("expected error for %q", s)
		}
	}
}

func TestValidatePeriod(t *testing.T) {
	if err := roster.ValidatePeriod(2024, 3); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, tc := range []struct{ year, month int }{
		{2024, 0}, {2024, 13}, {1999, 6}, {2101, 6},
	} {
		if err := roster.ValidatePeriod(tc.year, tc.month); err == nil {
			t.Errorf("expected error for %d-%d", tc.year, tc.month)
		}
	}
}

func TestDaysInMonth(t *testing.T) {
	cases := []struct {
		year, month, want int
	}{
		{2024, 2, 29}, // leap
		{2023, 2, 28},
		{2024, 3, 31},
		{2024, 4, 30},
	}
	for _, tc := range cases {
		got, err := roster.DaysInMonth(tc.year, tc.month)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tc.want {
			t.Errorf("%d-%02d: expected %d days, got %d", tc.year, tc.month, tc.want, got)
		}
	}
}

func TestOverlaps_HalfOpen(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	h := func(n int) time.Time { return base.Add(time.Duration(n) * time.Hour) }

	// Touching intervals do not overlap.
	if roster.Overlaps(h(0), h(8), h(8), h(16)) {
		t.Error("adjacent intervals should not overlap")
	}
	if !roster.Overlaps(h(0), h(8), h(7), h(16)) {
		t.Error("intersecting intervals should overlap")
	}
	if !roster.Overlaps(h(0), h(24), h(8), h(9)) {
		t.Error("contained interval should overlap")
	}
}

func TestNightWindow_SpansMidnight(t *testing.T) {
	d := roster.NewDate(2024, time.March, 5)
	w := roster.NightWindow(d)

	if w.Start.Hour() != 17 || w.Start.Day() != 5 {
		t.Errorf("expected start 17:00 on day 5, got %v", w.Start)
	}
	if w.End.Hour() != 9 || w.End.Day() != 6 {
		t.Errorf("expected end 09:00 on day 6, got %v", w.End)
	}
	if w.Hours() != 16 {
		t.Errorf("expected 16h night window, got %v", w.Hours())
	}
}

func TestDayAndNightWindows_TileAroundHandover(t *testing.T) {
	// GIVEN: one calendar day with day call, night call, and handover blocks
	// THEN: day call ends where the PM handover begins, the PM handover
	//       ends where night call begins, and night call ends where the
	//       next morning's handover begins.
	d := roster.NewDate(2024, time.March, 5)
	day := roster.DayWindow(d)
	night := roster.NightWindow(d)
	blocks := roster.HandoverWindows(d)

	if len(blocks) != 2 {
		t.Fatalf("expected 2 handover blocks, got %d", len(blocks))
	}
	am, pm := blocks[0], blocks[1]

	if !am.End.Equal(day.Start) {
		t.Errorf("AM handover should end at day-call start: %v vs %v", am.End, day.Start)
	}
	if !day.End.Equal(pm.Start) {
		t.Errorf("day call should end at PM handover start: %v vs %v", day.End, pm.Start)
	}
	if !pm.End.Equal(night.Start) {
		t.Errorf("PM handover should end at night-call start: %v vs %v", pm.End, night.Start)
	}
	nextAM := roster.HandoverWindows(d.AddDays(1))[0]
	if !night.End.Equal(nextAM.Start) {
		t.Errorf("night call should end at next AM handover start: %v vs %v", night.End, nextAM.Start)
	}

	if day.Overlaps(night) {
		t.Error("day and night call must not overlap")
	}
	for _, b := range blocks {
		if day.Overlaps(b) || night.Overlaps(b) {
			t.Error("call windows must not overlap handover blocks")
		}
	}
}

func TestCallWindow_ByType(t *testing.T) {
	d := roster.NewDate(2024, time.March, 5)
	if got := roster.CallWindow(roster.SlotNightCall, d); !got.Start.Equal(roster.NightWindow(d).Start) {
		t.Error("night_call should map to the night window")
	}
	if got := roster.CallWindow(roster.SlotDayCall, d); !got.Start.Equal(roster.DayWindow(d).Start) {
		t.Error("day_call should map to the day window")
	}
}

func TestRollingWindow(t *testing.T) {
	end := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)
	w := roster.RollingWindow(end, 7*24)
	if w.Hours() != 168 {
		t.Errorf("expected 168h window, got %v", w.Hours())
	}
	if !w.End.Equal(end) {
		t.Errorf("window should end at the anchor point")
	}
}

func TestExpandWeekly_AnchorsEveryMatchingWeekday(t *testing.T) {
	// March 2024 has four Wednesdays: 6, 13, 20, 27.
	cr := roster.ClockRange{
		Start: roster.TimeOfDay{Hour: 14},
		End:   roster.TimeOfDay{Hour: 16},
	}
	windows, err := roster.ExpandWeekly(2024, 3, time.Wednesday, cr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 4 {
		t.Fatalf("expected 4 Wednesdays, got %d", len(windows))
	}
	for i, wantDay := range []int{6, 13, 20, 27} {
		w := windows[i]
		if w.Start.Day() != wantDay || w.Start.Hour() != 14 || w.End.Hour() != 16 {
			t.Errorf("window %d: expected day %d 14:00-16:00, got %v-%v", i, wantDay, w.Start, w.End)
		}
	}
}

func TestExpandWeekly_InvalidPeriod(t *testing.T) {
	_, err := roster.ExpandWeekly(2024, 13, time.Monday, roster.ClockRange{})
	if err == nil {
		t.Fatal("expected error for month 13")
	}
}

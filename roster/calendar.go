/*
calendar.go - Pure date, window, and rolling-window arithmetic

PURPOSE:
  All interval reasoning for the engine lives here: the day/night call
  windows, handover blocks, rolling rest windows, and weekly-pattern
  expansion. Everything is pure and deterministic.

WALL-CLOCK SEMANTICS:
  The roster is timezone-naive: posts declare core_hours as local wall
  clock and slots are stored the same way. We anchor everything in UTC and
  never convert, so arithmetic is purely calendrical.

CALL WINDOWS:
  Night call runs 17:00 to 09:00 the next day. Day call runs 09:30 to
  16:30. The gaps (09:00-09:30 and 16:30-17:00) are the fixed handover
  blocks, which must never be assigned as call time.
*/
package roster

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// Supported year range for roster periods.
const (
	minYear = 2000
	maxYear = 2100
)

// Fixed duty boundaries.
var (
	nightStart = TimeOfDay{Hour: 17}
	nightEnd   = TimeOfDay{Hour: 9} // next day
	dayStart   = TimeOfDay{Hour: 9, Minute: 30}
	dayEnd     = TimeOfDay{Hour: 16, Minute: 30}
	handoverAM = ClockRange{Start: TimeOfDay{Hour: 9}, End: TimeOfDay{Hour: 9, Minute: 30}}
	handoverPM = ClockRange{Start: TimeOfDay{Hour: 16, Minute: 30}, End: TimeOfDay{Hour: 17}}
)

// =============================================================================
// DATE - Day-granularity wall-clock point
// =============================================================================

// Date is a timezone-naive calendar day.
type Date struct {
	t time.Time
}

// NewDate builds a date from calendar components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// DateOf truncates a time to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func (d Date) Time() time.Time       { return d.t }
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }

func (d Date) AddDays(n int) Date    { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date  { return Date{t: d.t.AddDate(0, n, 0)} }
func (d Date) Before(o Date) bool    { return d.t.Before(o.t) }
func (d Date) After(o Date) bool     { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool     { return d.t.Equal(o.t) }

func (d Date) String() string { return d.t.Format("2006-01-02") }

// =============================================================================
// WINDOWS
// =============================================================================

// Window is a half-open [Start, End) time interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the window overlaps another.
func (w Window) Overlaps(o Window) bool {
	return Overlaps(w.Start, w.End, o.Start, o.End)
}

// Hours returns the window's length in hours.
func (w Window) Hours() float64 { return HoursBetween(w.Start, w.End) }

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// HoursBetween returns the signed hour distance from a to b.
func HoursBetween(a, b time.Time) float64 {
	return b.Sub(a).Hours()
}

// RollingWindow returns the window of the given length ending at point.
func RollingWindow(point time.Time, hours int) Window {
	return Window{Start: point.Add(-time.Duration(hours) * time.Hour), End: point}
}

// =============================================================================
// PERIODS
// =============================================================================

// ValidatePeriod rejects months outside 1-12 and years outside the
// supported range.
func ValidatePeriod(year, month int) error {
	if year < minYear || year > maxYear || month < 1 || month > 12 {
		return &InvalidPeriodError{Year: year, Month: month}
	}
	return nil
}

// DaysInMonth returns the number of days in the month.
func DaysInMonth(year, month int) (int, error) {
	if err := ValidatePeriod(year, month); err != nil {
		return 0, err
	}
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day(), nil
}

// MonthWindow returns [first day 00:00, first day of next month 00:00).
func MonthWindow(year, month int) (Window, error) {
	if err := ValidatePeriod(year, month); err != nil {
		return Window{}, err
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}, nil
}

// =============================================================================
// CALL AND HANDOVER WINDOWS
// =============================================================================

// NightWindow returns the night-call window anchored on date:
// [17:00 date, 09:00 date+1).
func NightWindow(d Date) Window {
	return Window{Start: nightStart.At(d), End: nightEnd.At(d.AddDays(1))}
}

// DayWindow returns the day-call window anchored on date:
// [09:30, 16:30). It deliberately excludes the handover blocks.
func DayWindow(d Date) Window {
	return Window{Start: dayStart.At(d), End: dayEnd.At(d)}
}

// CallWindow returns the window for the given slot type on date.
func CallWindow(t SlotType, d Date) Window {
	if t == SlotNightCall {
		return NightWindow(d)
	}
	return DayWindow(d)
}

// HandoverWindows returns the fixed handover blocks on date:
// 09:00-09:30 and 16:30-17:00.
func HandoverWindows(d Date) []Window {
	return []Window{handoverAM.On(d), handoverPM.On(d)}
}

// =============================================================================
// WEEKLY PATTERN EXPANSION
// =============================================================================

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// ExpandWeekly anchors a weekly wall-clock range on every matching weekday
// of the month. Used to turn teaching-block and clinic patterns into dated
// windows.
func ExpandWeekly(year, month int, weekday time.Weekday, cr ClockRange) ([]Window, error) {
	mw, err := MonthWindow(year, month)
	if err != nil {
		return nil, err
	}
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{rruleWeekdays[weekday]},
		Dtstart:   mw.Start,
	})
	if err != nil {
		return nil, fmt.Errorf("expand weekly pattern: %w", err)
	}

	var windows []Window
	for _, occ := range r.Between(mw.Start, mw.End, true) {
		if !occ.Before(mw.End) {
			continue
		}
		windows = append(windows, cr.On(DateOf(occ)))
	}
	return windows, nil
}

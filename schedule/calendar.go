/*
calendar.go - Weekday-aligned calendar grid construction

PURPOSE:
  Builds the day-by-day rendering model: one cell per calendar day, each
  cell listing the schedules firing that day. The grid is front-padded with
  blank cells so the first real day lands in its weekday column. Weeks start
  Monday (ISO order Mon..Sun).

MODES:
  Rolling: 31 consecutive cells starting at the anchor (today .. today+30).
  Month:   one cell per day of the anchor's calendar month.

  In both modes, cells before "today" are rendered but carry no occurrences;
  the past is shown, never projected.
*/
package schedule

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalendarEntry is one schedule firing inside a cell.
type CalendarEntry struct {
	Schedule    *RecurringSchedule
	Amount      decimal.Decimal
	Description string
}

// CalendarDay is a single real cell of the grid.
type CalendarDay struct {
	Date    Date
	IsPast  bool
	Entries []CalendarEntry
}

// CalendarCell is either a real day or a leading blank used for alignment.
type CalendarCell struct {
	Blank bool
	Day   *CalendarDay
}

// Calendar is the full rendering model for one horizon.
type Calendar struct {
	Label string
	Cells []CalendarCell
}

// BuildRollingCalendar renders the 31-day window starting at today.
func BuildRollingCalendar(schedules []*RecurringSchedule, today Date) *Calendar {
	period := RollingWindow(today)
	label := today.Time.Format("Jan 2") + " to " + period.End.Time.Format("Jan 2, 2006")
	return buildCalendar(schedules, period, today, label)
}

// BuildMonthCalendar renders the full calendar month containing anchor.
// Days of the month before today show as past cells with no occurrences.
func BuildMonthCalendar(schedules []*RecurringSchedule, anchor, today Date) *Calendar {
	period := MonthOf(anchor)
	return buildCalendar(schedules, period, today, anchor.Time.Format("January 2006"))
}

func buildCalendar(schedules []*RecurringSchedule, period Period, today Date, label string) *Calendar {
	cal := &Calendar{Label: label}

	// Front padding: Monday-start week, so Monday needs 0 blanks, Sunday 6.
	for i := 0; i < mondayIndex(period.Start.Weekday()); i++ {
		cal.Cells = append(cal.Cells, CalendarCell{Blank: true})
	}

	anchor := ProjectionAnchor(period, today)
	for d := period.Start; d.BeforeOrEqual(period.End); d = d.AddDays(1) {
		day := &CalendarDay{Date: d, IsPast: d.Before(anchor)}
		if !day.IsPast {
			for _, s := range schedules {
				if !OccursOnDay(s, d) {
					continue
				}
				day.Entries = append(day.Entries, CalendarEntry{
					Schedule:    s,
					Amount:      s.Amount,
					Description: descriptionOf(s),
				})
			}
		}
		cal.Cells = append(cal.Cells, CalendarCell{Day: day})
	}

	return cal
}

// mondayIndex maps time.Weekday (Sunday=0) to a Monday-start column index.
func mondayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

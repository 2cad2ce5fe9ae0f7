package schedule

// =============================================================================
// OCCURRENCE PREDICATE - Does a schedule fire on a given date?
// =============================================================================

// OccursOn reports whether the schedule's frequency rule fires on date.
//
// This is a pure function of (schedule, date): it knows nothing about
// activation, creation floors, processed markers or termination constraints.
// Those belong to the projector. The backend processor applies the exact
// same rule, which is what keeps predicted and actual firings in agreement.
//
// Clamping: a monthly or yearly schedule targeting a day beyond the end of
// the month fires on the month's last day instead (day 31 fires on
// Feb 28/29, Apr 30, ...).
func OccursOn(s *RecurringSchedule, date Date) bool {
	switch s.Frequency {
	case FreqDaily:
		return true

	case FreqWeekly:
		if s.DayOfWeek == nil {
			return false
		}
		return int(date.Weekday()) == *s.DayOfWeek

	case FreqMonthly:
		if s.DayOfMonth == nil {
			return false
		}
		return dayMatchesClamped(date, *s.DayOfMonth)

	case FreqYearly:
		if s.DayOfMonth == nil {
			return false
		}
		if date.Month() != s.EffectiveMonth() {
			return false
		}
		return dayMatchesClamped(date, *s.DayOfMonth)

	default:
		return false
	}
}

// dayMatchesClamped applies the clamp-to-end-of-month policy.
func dayMatchesClamped(date Date, target int) bool {
	last := DaysInMonth(date)
	if target > last {
		return date.Day() == last
	}
	return date.Day() == target
}

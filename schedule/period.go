package schedule

// =============================================================================
// PERIOD - Projection horizon boundaries
// =============================================================================

// Period is an inclusive date range [Start, End].
type Period struct {
	Start Date
	End   Date
}

// Days returns every day of the period in order.
func (p Period) Days() []Date {
	var days []Date
	for d := p.Start; d.BeforeOrEqual(p.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// STANDARD HORIZONS
// =============================================================================

// RollingWindow is the 30-day lookahead: today through today+30 inclusive.
func RollingWindow(today Date) Period {
	return Period{Start: today, End: today.AddDays(30)}
}

// ThroughMonthEnd runs from today through the last day of today's month.
func ThroughMonthEnd(today Date) Period {
	return Period{Start: today, End: EndOfMonth(today.Year(), today.Month())}
}

// MonthOf is the full calendar month containing anchor.
func MonthOf(anchor Date) Period {
	return Period{
		Start: StartOfMonth(anchor.Year(), anchor.Month()),
		End:   EndOfMonth(anchor.Year(), anchor.Month()),
	}
}

// ProjectionAnchor clamps a display period's start so past days are never
// projected: projecting a displayed month that contains today starts at
// today, a future month at its first day.
func ProjectionAnchor(p Period, today Date) Date {
	if today.After(p.Start) {
		return today
	}
	return p.Start
}

package schedule

// =============================================================================
// OCCURRENCE COUNTER - How many firings fall in a date range?
// =============================================================================

// CountOccurrences walks every calendar day in [start, end] and counts the
// days the schedule fires on. Horizons are short (days to a few months), so
// the linear walk is deliberate: it shares the exact day-position semantics
// of OccursOn, including month-length clamping, which closed-form date
// arithmetic gets wrong at month boundaries.
func CountOccurrences(s *RecurringSchedule, start, end Date) int {
	if end.Before(start) {
		return 0
	}
	count := 0
	for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
		if OccursOn(s, d) {
			count++
		}
	}
	return count
}

// occurrenceIndex is the 1-based index of candidate among the schedule's
// firings inside the budget window (last processed date inclusive, or
// creation date inclusive when never processed). Used to enforce the
// remaining-occurrence budget.
func occurrenceIndex(s *RecurringSchedule, candidate Date) int {
	return CountOccurrences(s, s.CountStart().AddDays(1), candidate)
}

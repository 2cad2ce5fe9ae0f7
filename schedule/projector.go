/*
projector.go - Horizon walk with termination constraints

PURPOSE:
  Produces the ordered list of dates a schedule fires on within a horizon,
  honoring the schedule's floors and termination constraints.

ALGORITHM:
  Iterate one calendar day at a time from anchor to horizon end. Weekly and
  monthly schedules still require the full daily scan because day-of-month
  clamping depends on each day's position within its month.

  Per candidate day d:
    1. skip if d precedes CreatedAt (schedules never fire retroactively)
    2. skip if the frequency rule does not match
    3. skip if d is on or before LastProcessedDate (already materialized)
    4. stop if d exceeds EndDate (no later day can be valid)
    5. stop if the occurrence index of d exceeds RemainingOccurrences
       (monotonic: once over budget, always over budget)

  Both termination constraints apply when both are present.

PURITY:
  Project is deterministic for fixed inputs and never mutates the schedule.
  Re-running it yields the identical sequence.
*/
package schedule

// Project returns the schedule's occurrences in [anchor, horizonEnd], dates
// strictly increasing, at most one per day. Inactive schedules are the
// caller's concern; Project assumes it is handed schedules worth projecting.
func Project(s *RecurringSchedule, anchor, horizonEnd Date) []Occurrence {
	var out []Occurrence
	if horizonEnd.Before(anchor) {
		return out
	}

	for d := anchor; d.BeforeOrEqual(horizonEnd); d = d.AddDays(1) {
		if d.Before(s.CreatedAt) {
			continue
		}
		if !OccursOn(s, d) {
			continue
		}
		if s.LastProcessedDate != nil && d.BeforeOrEqual(*s.LastProcessedDate) {
			continue
		}
		if s.EndDate != nil && d.After(*s.EndDate) {
			break
		}
		if s.RemainingOccurrences != nil && occurrenceIndex(s, d) > *s.RemainingOccurrences {
			break
		}
		out = append(out, Occurrence{Schedule: s, Date: d, Amount: s.Amount})
	}
	return out
}

// ProjectAll projects every active schedule over the same horizon and
// returns the occurrences grouped per schedule, in input order. Inactive
// schedules contribute nothing.
func ProjectAll(schedules []*RecurringSchedule, anchor, horizonEnd Date) []Occurrence {
	var all []Occurrence
	for _, s := range schedules {
		if !s.IsActive {
			continue
		}
		all = append(all, Project(s, anchor, horizonEnd)...)
	}
	return all
}

// OccursOnDay reports whether a single date would be emitted by Project for
// this schedule: the frequency rule plus every floor and termination
// constraint. The calendar builder uses it per cell; the backend processor
// uses it to decide whether to materialize a transaction on a given day.
func OccursOnDay(s *RecurringSchedule, d Date) bool {
	if !s.IsActive {
		return false
	}
	if d.Before(s.CreatedAt) {
		return false
	}
	if !OccursOn(s, d) {
		return false
	}
	if s.LastProcessedDate != nil && d.BeforeOrEqual(*s.LastProcessedDate) {
		return false
	}
	if s.EndDate != nil && d.After(*s.EndDate) {
		return false
	}
	if s.RemainingOccurrences != nil && occurrenceIndex(s, d) > *s.RemainingOccurrences {
		return false
	}
	return true
}

package schedule

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrScheduleNotFound is returned when a referenced schedule doesn't exist.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidSchedule is returned when a schedule's frequency fields are
	// inconsistent (e.g. weekly without a day of week). The predicate never
	// "fixes" such records beyond the documented clamping rule; validation
	// rejects them at the boundary instead.
	ErrInvalidSchedule = errors.New("invalid schedule definition")

	// ErrMissingRate is returned when a valuation needs a currency pair the
	// rate table doesn't carry. Valuation fails closed rather than summing a
	// partial portfolio.
	ErrMissingRate = errors.New("missing exchange rate")
)

// =============================================================================
// VALIDATION
// =============================================================================

// FieldError reports which field of a schedule failed validation.
type FieldError struct {
	ScheduleID ScheduleID
	Field      string
	Reason     string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("schedule %s: %s %s", e.ScheduleID, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidSchedule }

// Validate checks the structural invariants of a schedule definition:
// exactly the frequency-appropriate day fields are set and in range, and
// transfer/transaction references are consistent.
func Validate(s *RecurringSchedule) error {
	fail := func(field, reason string) error {
		return &FieldError{ScheduleID: s.ID, Field: field, Reason: reason}
	}

	switch s.Frequency {
	case FreqDaily:
		if s.DayOfWeek != nil || s.DayOfMonth != nil {
			return fail("frequency", "daily schedules take no day fields")
		}
	case FreqWeekly:
		if s.DayOfWeek == nil {
			return fail("day_of_week", "required for weekly schedules")
		}
		if *s.DayOfWeek < 0 || *s.DayOfWeek > 6 {
			return fail("day_of_week", "must be 0-6")
		}
		if s.DayOfMonth != nil {
			return fail("day_of_month", "not allowed for weekly schedules")
		}
	case FreqMonthly, FreqYearly:
		if s.DayOfMonth == nil {
			return fail("day_of_month", "required for monthly and yearly schedules")
		}
		if *s.DayOfMonth < 1 || *s.DayOfMonth > 31 {
			return fail("day_of_month", "must be 1-31")
		}
		if s.DayOfWeek != nil {
			return fail("day_of_week", "not allowed for monthly and yearly schedules")
		}
		if s.Frequency == FreqYearly && s.Month != nil && (*s.Month < 0 || *s.Month > 11) {
			return fail("month", "must be 0-11")
		}
	default:
		return fail("frequency", "unknown value")
	}

	switch s.Type {
	case TypeTransfer:
		if s.ToAccountID == nil {
			return fail("to_account_id", "required for transfers")
		}
		if *s.ToAccountID == s.AccountID {
			return fail("to_account_id", "must differ from account_id")
		}
	case TypeTransaction:
		if s.ToAccountID != nil {
			return fail("to_account_id", "not allowed for transactions")
		}
	default:
		return fail("type", "unknown value")
	}

	if s.RemainingOccurrences != nil && *s.RemainingOccurrences < 0 {
		return fail("remaining_occurrences", "must be non-negative")
	}
	if s.EndDate != nil && s.EndDate.Before(s.CreatedAt) {
		return fail("end_date", "precedes created_at")
	}

	return nil
}

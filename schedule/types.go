/*
Package schedule implements the recurring-schedule projection engine.

PURPOSE:
  Given an immutable snapshot of recurring schedule definitions and accounts,
  this package computes which future dates each schedule fires on, the
  cumulative financial impact of those firings over a horizon, and a
  day-by-day calendar model for rendering.

KEY CONCEPTS IN THIS FILE (types.go):
  - RecurringSchedule: the central entity (frequency, termination constraints)
  - Account: referenced collaborator entity (balance, exclusion flags)
  - Occurrence: a derived (schedule, date, amount) firing
  - Money: decimal amounts, never float64

DESIGN PRINCIPLES:
  1. Purity: every function is a deterministic transform of its inputs.
     "Today" is always an explicit parameter, never the ambient clock.
  2. Precision: uses decimal.Decimal to avoid floating-point errors.
  3. Immutability: the engine never mutates a schedule. Advancing
     LastProcessedDate and decrementing RemainingOccurrences is the
     backend processor's job, not the projector's.

SEE ALSO:
  - predicate.go: the occurs-on-date rule (clamping lives here)
  - projector.go: the horizon walk with termination constraints
  - aggregate.go: per-account and portfolio impact reduction
  - calendar.go: weekday-aligned grid construction
*/
package schedule

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ScheduleID string
type AccountID string
type CategoryID string

// =============================================================================
// ENUMS
// =============================================================================

// Type distinguishes a single-account schedule from a paired transfer.
type Type string

const (
	TypeTransaction Type = "transaction"
	TypeTransfer    Type = "transfer"
)

// Frequency is how often a schedule fires.
type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

// AccountType distinguishes cash accounts from investment positions.
type AccountType string

const (
	AccountCash       AccountType = "cash"
	AccountInvestment AccountType = "investment"
)

// =============================================================================
// RECURRING SCHEDULE - The central entity
// =============================================================================

// RecurringSchedule is a pure value object describing a recurring money
// movement. The engine never mutates one.
type RecurringSchedule struct {
	ID   ScheduleID
	Type Type

	Frequency Frequency

	// DayOfWeek is set iff Frequency == FreqWeekly. Sunday == 0.
	DayOfWeek *int

	// DayOfMonth is set iff Frequency is monthly or yearly. Target day 1-31,
	// clamped to the last day of a shorter month.
	DayOfMonth *int

	// Month is set for yearly schedules (0 = January, matching the wire
	// format). Absent means the month of CreatedAt.
	Month *int

	AccountID   AccountID
	ToAccountID *AccountID  // set iff Type == TypeTransfer
	CategoryID  *CategoryID // set iff Type == TypeTransaction

	// Amount is signed: negative = expense/debit from AccountID,
	// positive = income/credit.
	Amount decimal.Decimal

	// AmountTo is the credit amount on the destination account when the
	// destination currency differs. Absent defaults to |Amount|.
	AmountTo *decimal.Decimal

	Description string
	IsActive    bool

	// CreatedAt floors every projection: a schedule never fires on a date
	// strictly before it existed.
	CreatedAt Date

	// LastProcessedDate is the last date the backend actually materialized a
	// transaction for this schedule. Only dates strictly after it project.
	LastProcessedDate *Date

	// Termination constraints. When both are present, both apply: a firing
	// date must satisfy every constraint that is set.
	RemainingOccurrences *int
	EndDate              *Date
}

// EffectiveMonth resolves the yearly target month, falling back to the
// creation month when Month is absent.
func (s *RecurringSchedule) EffectiveMonth() time.Month {
	if s.Month != nil {
		return time.Month(*s.Month + 1)
	}
	return s.CreatedAt.Month()
}

// TransferCredit is the amount credited to the destination account of a
// transfer: |AmountTo| when set, else |Amount|. Transfers are never
// "negative" from the aggregator's point of view.
func (s *RecurringSchedule) TransferCredit() decimal.Decimal {
	if s.AmountTo != nil {
		return s.AmountTo.Abs()
	}
	return s.Amount.Abs()
}

// CountStart is the exclusive lower bound for the remaining-occurrence
// budget window. The last processed date itself is INSIDE the window: an
// occurrence the backend already materialized still counts against the
// budget, so a schedule with one remaining occurrence and a processed
// firing projects nothing further. Never-processed schedules count from
// their creation date inclusive.
func (s *RecurringSchedule) CountStart() Date {
	if s.LastProcessedDate != nil {
		return s.LastProcessedDate.AddDays(-1)
	}
	return s.CreatedAt.AddDays(-1)
}

// =============================================================================
// ACCOUNT - Referenced collaborator entity
// =============================================================================

type Account struct {
	ID       AccountID
	Name     string
	Type     AccountType
	Balance  decimal.Decimal
	Currency string

	// Exclusion flags remove the balance from aggregate totals without
	// deleting the account. An account excluded from only one total still
	// counts toward the other.
	ExcludeFromNetWorth    bool
	ExcludeFromCashBalance bool
}

// =============================================================================
// OCCURRENCE - A single projected firing (derived, never persisted)
// =============================================================================

type Occurrence struct {
	Schedule *RecurringSchedule
	Date     Date
	Amount   decimal.Decimal
}

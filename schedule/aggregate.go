/*
aggregate.go - Cross-schedule impact reduction

PURPOSE:
  Rolls the occurrences of all active schedules over a window into
  per-account debit/credit totals and portfolio-level summaries: headline
  expense/income totals, insufficient-balance warnings, the upcoming
  transaction list, and (for month-end horizons) projected cash and
  projected net worth.

TRANSFER SEMANTICS:
  A transfer always debits |Amount| from the source account and credits
  |AmountTo or Amount| to the destination, independent of sign. Transfers
  are excluded from the headline expense/income totals because they do not
  change net worth.

MULTI-CURRENCY:
  Account balances live in their own currency; valuation totals are
  expressed in one base currency via a CurrencyConverter. A missing rate is
  an error, never a silent skip: partial valuations would be worse than none.
*/
package schedule

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// CurrencyConverter values an amount of one currency in another. The rate
// table behind it is an external collaborator; the engine only consumes it.
type CurrencyConverter interface {
	Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator reduces occurrences into an ImpactSummary.
type Aggregator struct {
	// Converter and BaseCurrency are only consulted when valuation is
	// requested. A nil Converter restricts valuation to accounts already in
	// the base currency.
	Converter    CurrencyConverter
	BaseCurrency string
}

// ImpactInput carries everything a summary needs.
type ImpactInput struct {
	Occurrences []Occurrence
	Accounts    []Account

	// IncludeValuation adds ProjectedCash and ProjectedNetWorth. Meant for
	// month-end horizons where "where will I stand" is the question.
	IncludeValuation bool
}

// AccountImpact is the gross movement against one account. Debits and
// Credits are both non-negative magnitudes in the account's own currency.
type AccountImpact struct {
	Debits  decimal.Decimal
	Credits decimal.Decimal
}

// Net is credits minus debits.
func (ai AccountImpact) Net() decimal.Decimal { return ai.Credits.Sub(ai.Debits) }

// UpcomingEntry is one human-readable line of the "what's coming up" list.
type UpcomingEntry struct {
	Date        Date
	Description string
	Amount      decimal.Decimal // signed: negative leaves the account
	AccountName string
}

// ImpactSummary is the aggregator's output, pure data ready for rendering.
type ImpactSummary struct {
	PerAccount map[AccountID]AccountImpact

	// Transaction-type occurrences only; transfers never move these.
	TotalExpenses decimal.Decimal
	TotalIncome   decimal.Decimal

	// Cash accounts whose balance would go negative if every projected
	// occurrence landed. A warning, not an error.
	InsufficientAccounts []AccountID

	// Date-sorted upcoming occurrence list. Transfers contribute the debit
	// leg only.
	NextTransactions []UpcomingEntry

	// Valuation in BaseCurrency, present iff IncludeValuation was set.
	ProjectedCash     *decimal.Decimal
	ProjectedNetWorth *decimal.Decimal
}

// Summarize reduces the occurrences of a window into an ImpactSummary.
// Empty input yields an all-zero summary, never an error.
func (a *Aggregator) Summarize(in ImpactInput) (*ImpactSummary, error) {
	byID := make(map[AccountID]*Account, len(in.Accounts))
	for i := range in.Accounts {
		byID[in.Accounts[i].ID] = &in.Accounts[i]
	}

	sum := &ImpactSummary{
		PerAccount:    make(map[AccountID]AccountImpact),
		TotalExpenses: decimal.Zero,
		TotalIncome:   decimal.Zero,
	}

	for _, occ := range in.Occurrences {
		s := occ.Schedule
		switch s.Type {
		case TypeTransfer:
			debit := s.Amount.Abs()
			addImpact(sum.PerAccount, s.AccountID, debit, decimal.Zero)
			if s.ToAccountID != nil {
				addImpact(sum.PerAccount, *s.ToAccountID, decimal.Zero, s.TransferCredit())
			}
			sum.NextTransactions = append(sum.NextTransactions, UpcomingEntry{
				Date:        occ.Date,
				Description: transferLabel(s, byID),
				Amount:      debit.Neg(),
				AccountName: accountName(byID, s.AccountID),
			})

		default: // TypeTransaction
			if occ.Amount.IsNegative() {
				addImpact(sum.PerAccount, s.AccountID, occ.Amount.Abs(), decimal.Zero)
				sum.TotalExpenses = sum.TotalExpenses.Add(occ.Amount.Abs())
			} else {
				addImpact(sum.PerAccount, s.AccountID, decimal.Zero, occ.Amount)
				sum.TotalIncome = sum.TotalIncome.Add(occ.Amount)
			}
			sum.NextTransactions = append(sum.NextTransactions, UpcomingEntry{
				Date:        occ.Date,
				Description: descriptionOf(s),
				Amount:      occ.Amount,
				AccountName: accountName(byID, s.AccountID),
			})
		}
	}

	sort.SliceStable(sum.NextTransactions, func(i, j int) bool {
		return sum.NextTransactions[i].Date.Before(sum.NextTransactions[j].Date)
	})

	// Insufficient-balance warnings: cash accounts only.
	for _, acc := range in.Accounts {
		if acc.Type != AccountCash {
			continue
		}
		impact := sum.PerAccount[acc.ID]
		if acc.Balance.Sub(impact.Debits).Add(impact.Credits).IsNegative() {
			sum.InsufficientAccounts = append(sum.InsufficientAccounts, acc.ID)
		}
	}

	if in.IncludeValuation {
		if err := a.value(sum, in.Accounts); err != nil {
			return nil, err
		}
	}

	return sum, nil
}

// value computes ProjectedCash and ProjectedNetWorth in the base currency.
// Exclusion flags are independent: an account excluded from net worth still
// counts toward cash unless it is excluded from both.
func (a *Aggregator) value(sum *ImpactSummary, accounts []Account) error {
	cash := decimal.Zero
	netWorth := decimal.Zero

	for _, acc := range accounts {
		projected := acc.Balance.Add(sum.PerAccount[acc.ID].Net())
		converted, err := a.toBase(projected, acc.Currency)
		if err != nil {
			return fmt.Errorf("valuing account %s: %w", acc.ID, err)
		}

		if acc.Type == AccountCash && !(acc.ExcludeFromCashBalance && acc.ExcludeFromNetWorth) {
			cash = cash.Add(converted)
		}
		if !acc.ExcludeFromNetWorth {
			netWorth = netWorth.Add(converted)
		}
	}

	sum.ProjectedCash = &cash
	sum.ProjectedNetWorth = &netWorth
	return nil
}

func (a *Aggregator) toBase(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	if currency == a.BaseCurrency || currency == "" {
		return amount, nil
	}
	if a.Converter == nil {
		return decimal.Zero, fmt.Errorf("no converter for %s -> %s: %w", currency, a.BaseCurrency, ErrMissingRate)
	}
	return a.Converter.Convert(amount, currency, a.BaseCurrency)
}

// =============================================================================
// HELPERS
// =============================================================================

func addImpact(m map[AccountID]AccountImpact, id AccountID, debit, credit decimal.Decimal) {
	impact := m[id]
	impact.Debits = impact.Debits.Add(debit)
	impact.Credits = impact.Credits.Add(credit)
	m[id] = impact
}

func descriptionOf(s *RecurringSchedule) string {
	if s.Description != "" {
		return s.Description
	}
	if s.Type == TypeTransfer {
		return "Transfer"
	}
	return "Transaction"
}

// transferLabel suffixes the source account name so a transfer's debit leg
// is attributable at a glance.
func transferLabel(s *RecurringSchedule, byID map[AccountID]*Account) string {
	name := accountName(byID, s.AccountID)
	if name == "" {
		return descriptionOf(s)
	}
	return fmt.Sprintf("%s (%s)", descriptionOf(s), name)
}

func accountName(byID map[AccountID]*Account, id AccountID) string {
	if acc, ok := byID[id]; ok {
		return acc.Name
	}
	return ""
}

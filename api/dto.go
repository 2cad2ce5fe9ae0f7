/*
dto.go - JSON types for the REST API

PURPOSE:
  Decouples the engine's decimal/date domain model from the wire format.
  Amounts cross the boundary as float64, dates as YYYY-MM-DD strings;
  everything inside the engine stays decimal.Decimal and schedule.Date.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients
*/
package api

import (
	"github.com/fintrack/schedule-engine/schedule"
	"github.com/fintrack/schedule-engine/store/sqlite"
)

// =============================================================================
// SCHEDULES
// =============================================================================

// ScheduleDTO represents a recurring schedule in API responses.
type ScheduleDTO struct {
	ID                   string   `json:"id"`
	Type                 string   `json:"type"`
	Frequency            string   `json:"frequency"`
	DayOfWeek            *int     `json:"day_of_week,omitempty"`
	DayOfMonth           *int     `json:"day_of_month,omitempty"`
	Month                *int     `json:"month,omitempty"`
	AccountID            string   `json:"account_id"`
	ToAccountID          *string  `json:"to_account_id,omitempty"`
	CategoryID           *string  `json:"category_id,omitempty"`
	Amount               float64  `json:"amount"`
	AmountTo             *float64 `json:"amount_to,omitempty"`
	Description          string   `json:"description,omitempty"`
	IsActive             bool     `json:"is_active"`
	CreatedAt            string   `json:"created_at"`
	LastProcessedDate    *string  `json:"last_processed_date,omitempty"`
	RemainingOccurrences *int     `json:"remaining_occurrences,omitempty"`
	EndDate              *string  `json:"end_date,omitempty"`
}

// SaveScheduleRequest creates or updates a schedule.
type SaveScheduleRequest struct {
	Type                 string   `json:"type"`
	Frequency            string   `json:"frequency"`
	DayOfWeek            *int     `json:"day_of_week,omitempty"`
	DayOfMonth           *int     `json:"day_of_month,omitempty"`
	Month                *int     `json:"month,omitempty"`
	AccountID            string   `json:"account_id"`
	ToAccountID          *string  `json:"to_account_id,omitempty"`
	CategoryID           *string  `json:"category_id,omitempty"`
	Amount               float64  `json:"amount"`
	AmountTo             *float64 `json:"amount_to,omitempty"`
	Description          string   `json:"description,omitempty"`
	IsActive             *bool    `json:"is_active,omitempty"`
	CreatedAt            string   `json:"created_at,omitempty"`
	RemainingOccurrences *int     `json:"remaining_occurrences,omitempty"`
	EndDate              *string  `json:"end_date,omitempty"`
}

// =============================================================================
// ACCOUNTS & CATEGORIES
// =============================================================================

type AccountDTO struct {
	ID                     string  `json:"id"`
	Name                   string  `json:"name"`
	Type                   string  `json:"type"`
	Balance                float64 `json:"balance"`
	Currency               string  `json:"currency"`
	ExcludeFromNetWorth    bool    `json:"exclude_from_net_worth,omitempty"`
	ExcludeFromCashBalance bool    `json:"exclude_from_cash_balance,omitempty"`
}

type CreateAccountRequest struct {
	Name                   string  `json:"name"`
	Type                   string  `json:"type"`
	Balance                float64 `json:"balance"`
	Currency               string  `json:"currency"`
	ExcludeFromNetWorth    bool    `json:"exclude_from_net_worth,omitempty"`
	ExcludeFromCashBalance bool    `json:"exclude_from_cash_balance,omitempty"`
}

type CategoryDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CreateCategoryRequest struct {
	Name string `json:"name"`
}

// =============================================================================
// PROJECTION
// =============================================================================

// ImpactSummaryDTO is the aggregator's output for one horizon.
type ImpactSummaryDTO struct {
	Mode                 string                      `json:"mode"`
	From                 string                      `json:"from"`
	To                   string                      `json:"to"`
	PerAccount           map[string]AccountImpactDTO `json:"per_account"`
	TotalExpenses        float64                     `json:"total_expenses"`
	TotalIncome          float64                     `json:"total_income"`
	InsufficientAccounts []string                    `json:"insufficient_accounts,omitempty"`
	NextTransactions     []UpcomingEntryDTO          `json:"next_transactions"`
	ProjectedCash        *float64                    `json:"projected_cash,omitempty"`
	ProjectedNetWorth    *float64                    `json:"projected_net_worth,omitempty"`
}

type AccountImpactDTO struct {
	Debits  float64 `json:"debits"`
	Credits float64 `json:"credits"`
}

type UpcomingEntryDTO struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	AccountName string  `json:"account_name"`
}

// CalendarDTO is the rendering model for one calendar grid.
type CalendarDTO struct {
	Label string            `json:"label"`
	Cells []CalendarCellDTO `json:"cells"`
}

type CalendarCellDTO struct {
	Blank   bool               `json:"blank,omitempty"`
	Date    string             `json:"date,omitempty"`
	IsPast  bool               `json:"is_past,omitempty"`
	Entries []CalendarEntryDTO `json:"entries,omitempty"`
}

type CalendarEntryDTO struct {
	ScheduleID  string  `json:"schedule_id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// =============================================================================
// TRANSACTIONS & ADMIN
// =============================================================================

type TransactionDTO struct {
	ID          string  `json:"id"`
	ScheduleID  string  `json:"schedule_id,omitempty"`
	AccountID   string  `json:"account_id"`
	CategoryID  *string `json:"category_id,omitempty"`
	Date        string  `json:"date"`
	Leg         string  `json:"leg"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`
}

// ProcessRequest triggers a processing pass for an explicit date, so batch
// runs can materialize a simulated "today". Empty date means the current day.
type ProcessRequest struct {
	Date string `json:"date,omitempty"`
}

type ProcessResultDTO struct {
	Date      string `json:"date"`
	Processed int    `json:"processed"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toScheduleDTO(s *schedule.RecurringSchedule) ScheduleDTO {
	amount, _ := s.Amount.Float64()
	dto := ScheduleDTO{
		ID:                   string(s.ID),
		Type:                 string(s.Type),
		Frequency:            string(s.Frequency),
		DayOfWeek:            s.DayOfWeek,
		DayOfMonth:           s.DayOfMonth,
		Month:                s.Month,
		AccountID:            string(s.AccountID),
		Amount:               amount,
		Description:          s.Description,
		IsActive:             s.IsActive,
		CreatedAt:            s.CreatedAt.String(),
		RemainingOccurrences: s.RemainingOccurrences,
	}
	if s.ToAccountID != nil {
		v := string(*s.ToAccountID)
		dto.ToAccountID = &v
	}
	if s.CategoryID != nil {
		v := string(*s.CategoryID)
		dto.CategoryID = &v
	}
	if s.AmountTo != nil {
		v, _ := s.AmountTo.Float64()
		dto.AmountTo = &v
	}
	if s.LastProcessedDate != nil {
		v := s.LastProcessedDate.String()
		dto.LastProcessedDate = &v
	}
	if s.EndDate != nil {
		v := s.EndDate.String()
		dto.EndDate = &v
	}
	return dto
}

func toAccountDTO(a schedule.Account) AccountDTO {
	balance, _ := a.Balance.Float64()
	return AccountDTO{
		ID:                     string(a.ID),
		Name:                   a.Name,
		Type:                   string(a.Type),
		Balance:                balance,
		Currency:               a.Currency,
		ExcludeFromNetWorth:    a.ExcludeFromNetWorth,
		ExcludeFromCashBalance: a.ExcludeFromCashBalance,
	}
}

func toSummaryDTO(sum *schedule.ImpactSummary, mode string, period schedule.Period) ImpactSummaryDTO {
	expenses, _ := sum.TotalExpenses.Float64()
	income, _ := sum.TotalIncome.Float64()

	dto := ImpactSummaryDTO{
		Mode:          mode,
		From:          period.Start.String(),
		To:            period.End.String(),
		PerAccount:    make(map[string]AccountImpactDTO, len(sum.PerAccount)),
		TotalExpenses: expenses,
		TotalIncome:   income,
	}
	for id, impact := range sum.PerAccount {
		debits, _ := impact.Debits.Float64()
		credits, _ := impact.Credits.Float64()
		dto.PerAccount[string(id)] = AccountImpactDTO{Debits: debits, Credits: credits}
	}
	for _, id := range sum.InsufficientAccounts {
		dto.InsufficientAccounts = append(dto.InsufficientAccounts, string(id))
	}
	for _, e := range sum.NextTransactions {
		amount, _ := e.Amount.Float64()
		dto.NextTransactions = append(dto.NextTransactions, UpcomingEntryDTO{
			Date:        e.Date.String(),
			Description: e.Description,
			Amount:      amount,
			AccountName: e.AccountName,
		})
	}
	if sum.ProjectedCash != nil {
		v, _ := sum.ProjectedCash.Float64()
		dto.ProjectedCash = &v
	}
	if sum.ProjectedNetWorth != nil {
		v, _ := sum.ProjectedNetWorth.Float64()
		dto.ProjectedNetWorth = &v
	}
	return dto
}

func toCalendarDTO(cal *schedule.Calendar) CalendarDTO {
	dto := CalendarDTO{Label: cal.Label, Cells: make([]CalendarCellDTO, 0, len(cal.Cells))}
	for _, cell := range cal.Cells {
		if cell.Blank {
			dto.Cells = append(dto.Cells, CalendarCellDTO{Blank: true})
			continue
		}
		day := CalendarCellDTO{Date: cell.Day.Date.String(), IsPast: cell.Day.IsPast}
		for _, e := range cell.Day.Entries {
			amount, _ := e.Amount.Float64()
			day.Entries = append(day.Entries, CalendarEntryDTO{
				ScheduleID:  string(e.Schedule.ID),
				Description: e.Description,
				Amount:      amount,
			})
		}
		dto.Cells = append(dto.Cells, day)
	}
	return dto
}

func toTransactionDTO(tx sqlite.Transaction) TransactionDTO {
	amount, _ := tx.Amount.Float64()
	dto := TransactionDTO{
		ID:          tx.ID,
		ScheduleID:  string(tx.ScheduleID),
		AccountID:   string(tx.AccountID),
		Date:        tx.Date.String(),
		Leg:         string(tx.Leg),
		Amount:      amount,
		Description: tx.Description,
	}
	if tx.CategoryID != nil {
		v := string(*tx.CategoryID)
		dto.CategoryID = &v
	}
	return dto
}

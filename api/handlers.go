/*
handlers.go - HTTP handlers for the projection API

PURPOSE:
  Exposes the projection engine over REST. Handlers parse and validate
  input, load the schedule/account snapshot from the store, run the pure
  engine, and serialize the result. No projection ever runs against partial
  data: a failed snapshot load aborts the request with 500.

ENDPOINTS:
  Schedules:
    GET    /api/schedules            List all schedules
    POST   /api/schedules            Create schedule
    GET    /api/schedules/{id}       Get one schedule
    PUT    /api/schedules/{id}       Update schedule
    DELETE /api/schedules/{id}       Delete schedule

  Accounts / Categories / Transactions:
    GET, POST /api/accounts
    GET, POST /api/categories
    GET       /api/transactions

  Projection:
    GET /api/projection/summary?mode=rolling|month_end
    GET /api/projection/calendar?mode=rolling|month&month=YYYY-MM

  Admin:
    POST /api/admin/process          Materialize a given (or current) day

ERROR HANDLING:
  400 validation errors, 404 missing resources, 500 store failures.
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fintrack/schedule-engine/rates"
	"github.com/fintrack/schedule-engine/schedule"
	"github.com/fintrack/schedule-engine/store/sqlite"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        *sqlite.Store
	Rates        *rates.Table
	Log          *logrus.Logger
	Processor    *Processor
	BaseCurrency string

	// Clock supplies "today". Injectable so tests pin the calendar.
	Clock func() time.Time
}

// NewHandler creates a handler with the real clock.
func NewHandler(store *sqlite.Store, rateTable *rates.Table, log *logrus.Logger, baseCurrency string) *Handler {
	return &Handler{
		Store:        store,
		Rates:        rateTable,
		Log:          log,
		BaseCurrency: baseCurrency,
		Clock:        time.Now,
	}
}

func (h *Handler) today() schedule.Date {
	return schedule.DateOf(h.Clock().UTC())
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// ListSchedules returns all schedules.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.Store.ListSchedules(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to list schedules", err)
		return
	}

	dtos := make([]ScheduleDTO, len(schedules))
	for i, s := range schedules {
		dtos[i] = toScheduleDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSchedule returns one schedule.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id := schedule.ScheduleID(chi.URLParam(r, "id"))

	s, err := h.Store.GetSchedule(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to get schedule", err)
		return
	}
	if s == nil {
		h.writeError(w, http.StatusNotFound, "Schedule not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(s))
}

// CreateSchedule creates a schedule from a request body.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req SaveScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.scheduleFromRequest(schedule.ScheduleID(uuid.NewString()), req)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), err)
		return
	}

	if err := h.Store.SaveSchedule(r.Context(), rec); err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to save schedule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toScheduleDTO(rec))
}

// UpdateSchedule replaces an existing schedule definition. The processed
// marker is preserved: editing a schedule never re-fires materialized dates.
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id := schedule.ScheduleID(chi.URLParam(r, "id"))

	existing, err := h.Store.GetSchedule(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to get schedule", err)
		return
	}
	if existing == nil {
		h.writeError(w, http.StatusNotFound, "Schedule not found", nil)
		return
	}

	var req SaveScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.CreatedAt == "" {
		req.CreatedAt = existing.CreatedAt.String()
	}

	rec, err := h.scheduleFromRequest(id, req)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), err)
		return
	}
	rec.LastProcessedDate = existing.LastProcessedDate

	if err := h.Store.UpdateSchedule(r.Context(), rec); err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to update schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(rec))
}

// DeleteSchedule removes a schedule.
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := schedule.ScheduleID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteSchedule(r.Context(), id); err != nil {
		if errors.Is(err, schedule.ErrScheduleNotFound) {
			h.writeError(w, http.StatusNotFound, "Schedule not found", err)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Failed to delete schedule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// scheduleFromRequest builds and validates a domain schedule.
func (h *Handler) scheduleFromRequest(id schedule.ScheduleID, req SaveScheduleRequest) (*schedule.RecurringSchedule, error) {
	rec := &schedule.RecurringSchedule{
		ID:                   id,
		Type:                 schedule.Type(req.Type),
		Frequency:            schedule.Frequency(req.Frequency),
		DayOfWeek:            req.DayOfWeek,
		DayOfMonth:           req.DayOfMonth,
		Month:                req.Month,
		AccountID:            schedule.AccountID(req.AccountID),
		Amount:               decimal.NewFromFloat(req.Amount),
		Description:          req.Description,
		IsActive:             true,
		CreatedAt:            h.today(),
		RemainingOccurrences: req.RemainingOccurrences,
	}

	if req.IsActive != nil {
		rec.IsActive = *req.IsActive
	}
	if req.ToAccountID != nil {
		v := schedule.AccountID(*req.ToAccountID)
		rec.ToAccountID = &v
	}
	if req.CategoryID != nil {
		v := schedule.CategoryID(*req.CategoryID)
		rec.CategoryID = &v
	}
	if req.AmountTo != nil {
		v := decimal.NewFromFloat(*req.AmountTo)
		rec.AmountTo = &v
	}
	if req.CreatedAt != "" {
		d, err := schedule.ParseDate(req.CreatedAt)
		if err != nil {
			return nil, errors.New("invalid created_at (use YYYY-MM-DD)")
		}
		rec.CreatedAt = d
	}
	if req.EndDate != nil {
		d, err := schedule.ParseDate(*req.EndDate)
		if err != nil {
			return nil, errors.New("invalid end_date (use YYYY-MM-DD)")
		}
		rec.EndDate = &d
	}

	if err := schedule.Validate(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// =============================================================================
// ACCOUNT / CATEGORY / TRANSACTION HANDLERS
// =============================================================================

// ListAccounts returns all accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Store.ListAccounts(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount creates an account.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "Account name is required", nil)
		return
	}
	acctType := schedule.AccountType(req.Type)
	if acctType != schedule.AccountCash && acctType != schedule.AccountInvestment {
		h.writeError(w, http.StatusBadRequest, "Account type must be cash or investment", nil)
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = h.BaseCurrency
	}

	acc := schedule.Account{
		ID:                     schedule.AccountID(uuid.NewString()),
		Name:                   req.Name,
		Type:                   acctType,
		Balance:                decimal.NewFromFloat(req.Balance),
		Currency:               currency,
		ExcludeFromNetWorth:    req.ExcludeFromNetWorth,
		ExcludeFromCashBalance: req.ExcludeFromCashBalance,
	}
	if err := h.Store.SaveAccount(r.Context(), acc); err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to save account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(acc))
}

// ListCategories returns all categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Store.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to list categories", err)
		return
	}

	dtos := make([]CategoryDTO, len(categories))
	for i, c := range categories {
		dtos[i] = CategoryDTO{ID: string(c.ID), Name: c.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCategory creates a category.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "Category name is required", nil)
		return
	}

	c := sqlite.Category{ID: schedule.CategoryID(uuid.NewString()), Name: req.Name}
	if err := h.Store.SaveCategory(r.Context(), c); err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to save category", err)
		return
	}
	writeJSON(w, http.StatusCreated, CategoryDTO{ID: string(c.ID), Name: c.Name})
}

// ListTransactions returns recent materialized transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	txs, err := h.Store.ListTransactions(r.Context(), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PROJECTION HANDLERS
// =============================================================================

// GetProjectionSummary runs the impact aggregator for a horizon.
// mode=rolling (default): today through today+30, no valuation.
// mode=month_end: today through month end, with projected cash/net worth.
func (h *Handler) GetProjectionSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	today := h.today()

	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "rolling"
	}

	var (
		period    schedule.Period
		valuation bool
	)
	switch mode {
	case "rolling":
		period = schedule.RollingWindow(today)
	case "month_end":
		period = schedule.ThroughMonthEnd(today)
		valuation = true
	default:
		h.writeError(w, http.StatusBadRequest, "mode must be rolling or month_end", nil)
		return
	}

	schedules, err := h.Store.ListActiveSchedules(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to load schedules", err)
		return
	}
	accounts, err := h.Store.ListAccounts(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to load accounts", err)
		return
	}

	occurrences := schedule.ProjectAll(schedules, period.Start, period.End)

	agg := &schedule.Aggregator{Converter: h.Rates, BaseCurrency: h.BaseCurrency}
	sum, err := agg.Summarize(schedule.ImpactInput{
		Occurrences:      occurrences,
		Accounts:         accounts,
		IncludeValuation: valuation,
	})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to aggregate impact", err)
		return
	}

	writeJSON(w, http.StatusOK, toSummaryDTO(sum, mode, period))
}

// GetProjectionCalendar builds the calendar grid.
// mode=rolling (default): 31 day cells starting today.
// mode=month&month=YYYY-MM: the given calendar month (default: current).
func (h *Handler) GetProjectionCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	today := h.today()

	schedules, err := h.Store.ListActiveSchedules(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Failed to load schedules", err)
		return
	}

	var cal *schedule.Calendar
	switch mode := r.URL.Query().Get("mode"); mode {
	case "", "rolling":
		cal = schedule.BuildRollingCalendar(schedules, today)
	case "month":
		anchor := today
		if m := r.URL.Query().Get("month"); m != "" {
			t, err := time.Parse("2006-01", m)
			if err != nil {
				h.writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
				return
			}
			anchor = schedule.DateOf(t)
		}
		cal = schedule.BuildMonthCalendar(schedules, anchor, today)
	default:
		h.writeError(w, http.StatusBadRequest, "mode must be rolling or month", nil)
		return
	}

	writeJSON(w, http.StatusOK, toCalendarDTO(cal))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerProcess materializes due occurrences for one day, defaulting to
// the current day.
func (h *Handler) TriggerProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	day := h.today()
	if req.Date != "" {
		d, err := schedule.ParseDate(req.Date)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
			return
		}
		day = d
	}

	if h.Processor == nil {
		h.writeError(w, http.StatusInternalServerError, "Processor not configured", nil)
		return
	}

	processed, err := h.Processor.ProcessDay(r.Context(), day)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Processing failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ProcessResultDTO{Date: day.String(), Processed: processed})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil && status >= 500 {
		h.Log.WithError(err).Error(msg)
	}
	writeJSON(w, status, ErrorResponse{Error: msg})
}

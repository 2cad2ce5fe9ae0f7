/*
Package sqlite provides the SQLite-backed snapshot store.

PURPOSE:
  Persists the entities the projection engine treats as an immutable
  snapshot: recurring schedules, accounts, categories, and the transactions
  the daily processor materializes from due schedules.

MATERIALIZATION ATOMICITY:
  Apply() performs one due occurrence end to end inside a single database
  transaction: insert the transaction row(s), adjust account balances, and
  advance the schedule's processed marker / remaining budget / active flag.
  Either everything lands or nothing does.

IDEMPOTENCY:
  A unique index on (schedule_id, tx_date, leg) makes re-processing a day a
  no-op: the second attempt fails with ErrAlreadyMaterialized, which the
  processor treats as "already done".

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WAL mode keeps readers unblocked
  while the processor writes.

SEE ALSO:
  - schedule: the domain types persisted here
  - api/processor.go: the daily materialization loop driving Apply()
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/fintrack/schedule-engine/schedule"
)

// ErrAlreadyMaterialized is returned when an occurrence for the same
// schedule, date and leg already exists. Expected during catch-up replays.
var ErrAlreadyMaterialized = errors.New("occurrence already materialized")

// Store implements persistence over SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a store at dbPath. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		sched_type TEXT NOT NULL,
		frequency TEXT NOT NULL,
		day_of_week INTEGER,
		day_of_month INTEGER,
		month INTEGER,
		account_id TEXT NOT NULL,
		to_account_id TEXT,
		category_id TEXT,
		amount TEXT NOT NULL,
		amount_to TEXT,
		description TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		last_processed_date TEXT,
		remaining_occurrences INTEGER,
		end_date TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_account
		ON schedules(account_id);
	CREATE INDEX IF NOT EXISTS idx_schedules_active
		ON schedules(is_active);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		acct_type TEXT NOT NULL,
		balance TEXT NOT NULL,
		currency TEXT NOT NULL,
		exclude_from_net_worth BOOLEAN NOT NULL DEFAULT FALSE,
		exclude_from_cash_balance BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Materialized transactions (the processor's output)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		schedule_id TEXT,
		account_id TEXT NOT NULL,
		category_id TEXT,
		tx_date TEXT NOT NULL,
		leg TEXT NOT NULL DEFAULT 'single',
		amount TEXT NOT NULL,
		description TEXT,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one materialization per schedule per day per leg.
	-- Re-running the processor over an already-processed day is a no-op.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_materialization
		ON transactions(schedule_id, tx_date, leg)
		WHERE schedule_id IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_transactions_account_date
		ON transactions(account_id, tx_date DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_date
		ON transactions(tx_date DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SCHEDULES
// =============================================================================

const scheduleColumns = `id, sched_type, frequency, day_of_week, day_of_month, month,
	account_id, to_account_id, category_id, amount, amount_to, description,
	is_active, created_at, last_processed_date, remaining_occurrences, end_date`

// ListSchedules returns every schedule, active or not, ordered by creation.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.RecurringSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + scheduleColumns + ` FROM schedules ORDER BY created_at ASC, id ASC`
	return s.querySchedules(ctx, query)
}

// ListActiveSchedules returns only schedules eligible for projection.
func (s *Store) ListActiveSchedules(ctx context.Context) ([]*schedule.RecurringSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE is_active = TRUE ORDER BY created_at ASC, id ASC`
	return s.querySchedules(ctx, query)
}

// GetSchedule returns one schedule, or nil when it doesn't exist.
func (s *Store) GetSchedule(ctx context.Context, id schedule.ScheduleID) (*schedule.RecurringSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ?`
	found, err := s.querySchedules(ctx, query, string(id))
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

// SaveSchedule inserts a schedule.
func (s *Store) SaveSchedule(ctx context.Context, rec *schedule.RecurringSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO schedules (` + scheduleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, scheduleArgs(rec)...); err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

// UpdateSchedule replaces all mutable fields of an existing schedule.
func (s *Store) UpdateSchedule(ctx context.Context, rec *schedule.RecurringSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE schedules SET
			sched_type = ?, frequency = ?, day_of_week = ?, day_of_month = ?, month = ?,
			account_id = ?, to_account_id = ?, category_id = ?, amount = ?, amount_to = ?,
			description = ?, is_active = ?, created_at = ?, last_processed_date = ?,
			remaining_occurrences = ?, end_date = ?
		WHERE id = ?
	`
	args := append(scheduleArgs(rec)[1:], string(rec.ID))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return schedule.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule. Materialized transactions keep their
// schedule_id for history; the reference is intentionally soft.
func (s *Store) DeleteSchedule(ctx context.Context, id schedule.ScheduleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return schedule.ErrScheduleNotFound
	}
	return nil
}

func scheduleArgs(rec *schedule.RecurringSchedule) []any {
	return []any{
		string(rec.ID),
		string(rec.Type),
		string(rec.Frequency),
		nullInt(rec.DayOfWeek),
		nullInt(rec.DayOfMonth),
		nullInt(rec.Month),
		string(rec.AccountID),
		nullAccountID(rec.ToAccountID),
		nullCategoryID(rec.CategoryID),
		rec.Amount.String(),
		nullDecimal(rec.AmountTo),
		rec.Description,
		rec.IsActive,
		rec.CreatedAt.String(),
		nullDate(rec.LastProcessedDate),
		nullInt(rec.RemainingOccurrences),
		nullDate(rec.EndDate),
	}
}

func (s *Store) querySchedules(ctx context.Context, query string, args ...any) ([]*schedule.RecurringSchedule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*schedule.RecurringSchedule
	for rows.Next() {
		rec, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, rec)
	}
	return schedules, rows.Err()
}

func scanSchedule(rows *sql.Rows) (*schedule.RecurringSchedule, error) {
	var (
		rec           schedule.RecurringSchedule
		dayOfWeek     sql.NullInt64
		dayOfMonth    sql.NullInt64
		month         sql.NullInt64
		toAccount     sql.NullString
		category      sql.NullString
		amount        string
		amountTo      sql.NullString
		description   sql.NullString
		createdAt     string
		lastProcessed sql.NullString
		remaining     sql.NullInt64
		endDate       sql.NullString
	)

	err := rows.Scan(
		&rec.ID, &rec.Type, &rec.Frequency, &dayOfWeek, &dayOfMonth, &month,
		&rec.AccountID, &toAccount, &category, &amount, &amountTo, &description,
		&rec.IsActive, &createdAt, &lastProcessed, &remaining, &endDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	rec.DayOfWeek = intPtr(dayOfWeek)
	rec.DayOfMonth = intPtr(dayOfMonth)
	rec.Month = intPtr(month)
	if toAccount.Valid {
		id := schedule.AccountID(toAccount.String)
		rec.ToAccountID = &id
	}
	if category.Valid {
		id := schedule.CategoryID(category.String)
		rec.CategoryID = &id
	}
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse amount %q: %w", amount, err)
	}
	if amountTo.Valid {
		d, err := decimal.NewFromString(amountTo.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount_to %q: %w", amountTo.String, err)
		}
		rec.AmountTo = &d
	}
	rec.Description = description.String
	if rec.CreatedAt, err = schedule.ParseDate(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at %q: %w", createdAt, err)
	}
	rec.LastProcessedDate = datePtr(lastProcessed)
	rec.RemainingOccurrences = intPtr(remaining)
	rec.EndDate = datePtr(endDate)

	return &rec, nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// ListAccounts returns all accounts ordered by name.
func (s *Store) ListAccounts(ctx context.Context) ([]schedule.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, acct_type, balance, currency,
		       exclude_from_net_worth, exclude_from_cash_balance
		FROM accounts ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []schedule.Account
	for rows.Next() {
		var (
			acc     schedule.Account
			balance string
		)
		if err := rows.Scan(&acc.ID, &acc.Name, &acc.Type, &balance, &acc.Currency,
			&acc.ExcludeFromNetWorth, &acc.ExcludeFromCashBalance); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if acc.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("failed to parse balance %q: %w", balance, err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// GetAccount returns one account, or nil when it doesn't exist.
func (s *Store) GetAccount(ctx context.Context, id schedule.AccountID) (*schedule.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, acct_type, balance, currency,
		       exclude_from_net_worth, exclude_from_cash_balance
		FROM accounts WHERE id = ?
	`, string(id))

	var (
		acc     schedule.Account
		balance string
	)
	err := row.Scan(&acc.ID, &acc.Name, &acc.Type, &balance, &acc.Currency,
		&acc.ExcludeFromNetWorth, &acc.ExcludeFromCashBalance)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if acc.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("failed to parse balance %q: %w", balance, err)
	}
	return &acc, nil
}

// SaveAccount inserts an account.
func (s *Store) SaveAccount(ctx context.Context, acc schedule.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts
		(id, name, acct_type, balance, currency, exclude_from_net_worth, exclude_from_cash_balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(acc.ID), acc.Name, string(acc.Type), acc.Balance.String(), acc.Currency,
		acc.ExcludeFromNetWorth, acc.ExcludeFromCashBalance,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

// Category is a transaction classification label.
type Category struct {
	ID   schedule.CategoryID
	Name string
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// SaveCategory inserts a category.
func (s *Store) SaveCategory(ctx context.Context, c Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO categories (id, name, created_at) VALUES (?, ?, ?)`,
		string(c.ID), c.Name, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONS & MATERIALIZATION
// =============================================================================

// TransactionLeg distinguishes the rows a single occurrence produces.
type TransactionLeg string

const (
	LegSingle TransactionLeg = "single" // transaction-type schedule
	LegDebit  TransactionLeg = "debit"  // transfer source
	LegCredit TransactionLeg = "credit" // transfer destination
)

// Transaction is one materialized ledger row.
type Transaction struct {
	ID          string
	ScheduleID  schedule.ScheduleID
	AccountID   schedule.AccountID
	CategoryID  *schedule.CategoryID
	Date        schedule.Date
	Leg         TransactionLeg
	Amount      decimal.Decimal // signed delta applied to the account balance
	Description string
	CreatedAt   time.Time
}

// Materialization is one due occurrence applied end to end: the rows to
// insert, the balance deltas they imply, and the schedule state advance.
type Materialization struct {
	ScheduleID schedule.ScheduleID
	Date       schedule.Date

	Transactions  []Transaction
	BalanceDeltas map[schedule.AccountID]decimal.Decimal

	// New schedule state after this occurrence.
	RemainingOccurrences *int
	Deactivate           bool
}

// Apply executes a materialization atomically. Returns
// ErrAlreadyMaterialized if the (schedule, date) was processed before.
func (s *Store) Apply(ctx context.Context, m Materialization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range m.Transactions {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO transactions
			(id, schedule_id, account_id, category_id, tx_date, leg, amount, description, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			tx.ID, string(tx.ScheduleID), string(tx.AccountID), nullCategoryID(tx.CategoryID),
			tx.Date.String(), string(tx.Leg), tx.Amount.String(), tx.Description,
			time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return ErrAlreadyMaterialized
			}
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
	}

	for accountID, delta := range m.BalanceDeltas {
		var balance string
		err := sqlTx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = ?`, string(accountID)).Scan(&balance)
		if err == sql.ErrNoRows {
			return schedule.ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}
		current, err := decimal.NewFromString(balance)
		if err != nil {
			return fmt.Errorf("failed to parse balance %q: %w", balance, err)
		}
		_, err = sqlTx.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`,
			current.Add(delta).String(), string(accountID))
		if err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}
	}

	isActive := !m.Deactivate
	_, err = sqlTx.ExecContext(ctx, `
		UPDATE schedules
		SET last_processed_date = ?, remaining_occurrences = ?, is_active = ?
		WHERE id = ?
	`, m.Date.String(), nullInt(m.RemainingOccurrences), isActive, string(m.ScheduleID))
	if err != nil {
		return fmt.Errorf("failed to advance schedule: %w", err)
	}

	return sqlTx.Commit()
}

// ListTransactions returns the most recent materialized rows, newest first.
func (s *Store) ListTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schedule_id, account_id, category_id, tx_date, leg, amount, description, created_at
		FROM transactions
		ORDER BY tx_date DESC, created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var (
			tx          Transaction
			scheduleID  sql.NullString
			categoryID  sql.NullString
			txDate      string
			amount      string
			description sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&tx.ID, &scheduleID, &tx.AccountID, &categoryID,
			&txDate, &tx.Leg, &amount, &description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.ScheduleID = schedule.ScheduleID(scheduleID.String)
		if categoryID.Valid {
			id := schedule.CategoryID(categoryID.String)
			tx.CategoryID = &id
		}
		if tx.Date, err = schedule.ParseDate(txDate); err != nil {
			return nil, fmt.Errorf("failed to parse tx_date %q: %w", txDate, err)
		}
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", amount, err)
		}
		tx.Description = description.String
		tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// =============================================================================
// NULL HELPERS
// =============================================================================

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullDecimal(v *decimal.Decimal) any {
	if v == nil {
		return nil
	}
	return v.String()
}

func nullDate(v *schedule.Date) any {
	if v == nil {
		return nil
	}
	return v.String()
}

func nullAccountID(v *schedule.AccountID) any {
	if v == nil {
		return nil
	}
	return string(*v)
}

func nullCategoryID(v *schedule.CategoryID) any {
	if v == nil {
		return nil
	}
	return string(*v)
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func datePtr(v sql.NullString) *schedule.Date {
	if !v.Valid || v.String == "" {
		return nil
	}
	d, err := schedule.ParseDate(v.String)
	if err != nil {
		return nil
	}
	return &d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package api

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/schedule-engine/schedule"
	"github.com/fintrack/schedule-engine/store/sqlite"
)

func newTestProcessor(t *testing.T) (*Processor, *sqlite.Store) {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	return NewProcessor(store, log), store
}

func seedAccount(t *testing.T, store *sqlite.Store, id string, balance int64) {
	t.Helper()
	require.NoError(t, store.SaveAccount(context.Background(), schedule.Account{
		ID:       schedule.AccountID(id),
		Name:     id,
		Type:     schedule.AccountCash,
		Balance:  decimal.NewFromInt(balance),
		Currency: "USD",
	}))
}

func seedMonthly(t *testing.T, store *sqlite.Store, id string, dayOfMonth int, amount int64) *schedule.RecurringSchedule {
	t.Helper()
	rec := &schedule.RecurringSchedule{
		ID:         schedule.ScheduleID(id),
		Type:       schedule.TypeTransaction,
		Frequency:  schedule.FreqMonthly,
		DayOfMonth: &dayOfMonth,
		AccountID:  "acc-1",
		Amount:     decimal.NewFromInt(amount),
		IsActive:   true,
		CreatedAt:  schedule.NewDate(2024, time.January, 1),
	}
	require.NoError(t, store.SaveSchedule(context.Background(), rec))
	return rec
}

// =============================================================================
// MATERIALIZATION
// =============================================================================

func TestProcessDay_MaterializesDueSchedule(t *testing.T) {
	p, store := newTestProcessor(t)
	ctx := context.Background()

	seedAccount(t, store, "acc-1", 1000)
	seedMonthly(t, store, "sched-1", 15, -100)

	n, err := p.ProcessDay(ctx, schedule.NewDate(2024, time.March, 15))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	acc, err := store.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(900)))

	rec, err := store.GetSchedule(ctx, "sched-1")
	require.NoError(t, err)
	require.NotNil(t, rec.LastProcessedDate)
	assert.True(t, rec.LastProcessedDate.Equal(schedule.NewDate(2024, time.March, 15)))
}

func TestProcessDay_SkipsNonDueSchedule(t *testing.T) {
	p, store := newTestProcessor(t)
	ctx := context.Background()

	seedAccount(t, store, "acc-1", 1000)
	seedMonthly(t, store, "sched-1", 15, -100)

	n, err := p.ProcessDay(ctx, schedule.NewDate(2024, time.March, 14))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	acc, err := store.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(1000)))
}

func TestProcessDay_Idempotent(t *testing.T) {
	// GIVEN: a day already processed
	// WHEN: the same day is replayed (catch-up after a restart)
	// THEN: no second debit lands
	p, store := newTestProcessor(t)
	ctx := context.Background()

	seedAccount(t, store, "acc-1", 1000)
	seedMonthly(t, store, "sched-1", 15, -100)

	day := schedule.NewDate(2024, time.March, 15)
	_, err := p.ProcessDay(ctx, day)
	require.NoError(t, err)

	n, err := p.ProcessDay(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "replay should materialize nothing")

	acc, err := store.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(900)), "balance must be debited once, got %s", acc.Balance)
}

func TestProcessDay_TransferMovesBothAccounts(t *testing.T) {
	p, store := newTestProcessor(t)
	ctx := context.Background()

	seedAccount(t, store, "acc-1", 1000)
	seedAccount(t, store, "acc-2", 0)

	toAcc := schedule.AccountID("acc-2")
	day := 1
	rec := &schedule.RecurringSchedule{
		ID:          "xfer-1",
		Type:        schedule.TypeTransfer,
		Frequency:   schedule.FreqMonthly,
		DayOfMonth:  &day,
		AccountID:   "acc-1",
		ToAccountID: &toAcc,
		Amount:      decimal.NewFromInt(-200), // debit magnitude; sign ignored
		IsActive:    true,
		CreatedAt:   schedule.NewDate(2024, time.January, 1),
	}
	require.NoError(t, store.SaveSchedule(ctx, rec))

	n, err := p.ProcessDay(ctx, schedule.NewDate(2024, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	src, err := store.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, src.Balance.Equal(decimal.NewFromInt(800)))

	dst, err := store.GetAccount(ctx, "acc-2")
	require.NoError(t, err)
	assert.True(t, dst.Balance.Equal(decimal.NewFromInt(200)))

	txs, err := store.ListTransactions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestProcessDay_SingleOccurrenceBudget(t *testing.T) {
	// GIVEN: a monthly schedule with a budget of one firing
	// WHEN: its first due date is materialized
	// THEN: the schedule is deactivated; the processed marker carries the
	//       consumed budget unit
	p, store := newTestProcessor(t)
	ctx := context.Background()

	seedAccount(t, store, "acc-1", 1000)
	rec := seedMonthly(t, store, "sched-1", 15, -100)
	one := 1
	rec.RemainingOccurrences = &one
	require.NoError(t, store.UpdateSchedule(ctx, rec))

	n, err := p.ProcessDay(ctx, schedule.NewDate(2024, time.January, 15))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetSchedule(ctx, "sched-1")
	require.NoError(t, err)
	assert.False(t, got.IsActive, "exhausted schedule should be deactivated")
	require.NotNil(t, got.LastProcessedDate)
	assert.True(t, got.LastProcessedDate.Equal(schedule.NewDate(2024, time.January, 15)))

	// Next month: nothing left to materialize.
	n, err = p.ProcessDay(ctx, schedule.NewDate(2024, time.February, 15))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestProcessDay_BudgetLifecycle(t *testing.T) {
	// A budget of N yields exactly N materializations over a long replay,
	// then the schedule deactivates instead of idling forever.
	p, store := newTestProcessor(t)
	ctx := context.Background()

	seedAccount(t, store, "acc-1", 10000)
	rec := seedMonthly(t, store, "sched-1", 15, -100)
	three := 3
	rec.RemainingOccurrences = &three
	require.NoError(t, store.UpdateSchedule(ctx, rec))

	total := 0
	for d := schedule.NewDate(2024, time.January, 1); d.BeforeOrEqual(schedule.NewDate(2024, time.December, 31)); d = d.AddDays(1) {
		n, err := p.ProcessDay(ctx, d)
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, 3, total, "budget of 3 should materialize exactly three times")

	got, err := store.GetSchedule(ctx, "sched-1")
	require.NoError(t, err)
	assert.False(t, got.IsActive, "spent schedule must not stay active")

	acc, err := store.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(9700)), "got %s", acc.Balance)
}

func TestProcessDay_ElapsedOccurrencesConsumeBudget(t *testing.T) {
	// A never-processed schedule counts its budget from creation. Jumping
	// straight to a later due date finds the budget already spent by the
	// elapsed firings, exactly as the projector predicts.
	p, store := newTestProcessor(t)
	ctx := context.Background()

	seedAccount(t, store, "acc-1", 1000)
	rec := seedMonthly(t, store, "sched-1", 15, -100)
	one := 1
	rec.RemainingOccurrences = &one
	require.NoError(t, store.UpdateSchedule(ctx, rec))

	// Jan 15 and Feb 15 elapsed unmaterialized; Mar 15 is over budget.
	n, err := p.ProcessDay(ctx, schedule.NewDate(2024, time.March, 15))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	occs := schedule.Project(rec, schedule.NewDate(2024, time.March, 1), schedule.NewDate(2024, time.December, 31))
	assert.Empty(t, occs, "projector and processor must agree that nothing fires")
}

func TestProcessDay_RetiresSchedulePastEndDate(t *testing.T) {
	p, store := newTestProcessor(t)
	ctx := context.Background()

	seedAccount(t, store, "acc-1", 1000)
	rec := seedMonthly(t, store, "sched-1", 15, -100)
	end := schedule.NewDate(2024, time.February, 28)
	rec.EndDate = &end
	require.NoError(t, store.UpdateSchedule(ctx, rec))

	n, err := p.ProcessDay(ctx, schedule.NewDate(2024, time.March, 15))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := store.GetSchedule(ctx, "sched-1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	acc, err := store.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(1000)))
}

// =============================================================================
// PROJECTION AGREEMENT
// =============================================================================

func TestProcessor_AgreesWithProjection(t *testing.T) {
	// The dates the processor materializes over a window must be exactly the
	// dates the projector predicted before processing started.
	p, store := newTestProcessor(t)
	ctx := context.Background()

	seedAccount(t, store, "acc-1", 10000)
	rec := seedMonthly(t, store, "sched-1", 31, -100) // exercises clamping
	end := schedule.NewDate(2024, time.April, 15)
	rec.EndDate = &end
	require.NoError(t, store.UpdateSchedule(ctx, rec))

	start := schedule.NewDate(2024, time.January, 1)
	horizon := schedule.NewDate(2024, time.June, 30)

	predicted := map[string]bool{}
	for _, o := range schedule.Project(rec, start, horizon) {
		predicted[o.Date.String()] = true
	}
	require.Len(t, predicted, 3) // Jan 31, Feb 29, Mar 31

	materialized := map[string]bool{}
	for d := start; d.BeforeOrEqual(horizon); d = d.AddDays(1) {
		n, err := p.ProcessDay(ctx, d)
		require.NoError(t, err)
		if n > 0 {
			materialized[d.String()] = true
		}
	}

	assert.Equal(t, predicted, materialized)
}

func TestProcessor_ProjectionFromPersistedStateAgrees(t *testing.T) {
	// For budgeted schedules the contract is stepwise: after any processing
	// pass, projecting from the persisted state predicts exactly what the
	// processor will do next.
	p, store := newTestProcessor(t)
	ctx := context.Background()

	seedAccount(t, store, "acc-1", 10000)
	rec := seedMonthly(t, store, "sched-1", 15, -100)
	three := 3
	rec.RemainingOccurrences = &three
	require.NoError(t, store.UpdateSchedule(ctx, rec))

	_, err := p.ProcessDay(ctx, schedule.NewDate(2024, time.January, 15))
	require.NoError(t, err)

	current, err := store.GetSchedule(ctx, "sched-1")
	require.NoError(t, err)

	start := schedule.NewDate(2024, time.January, 16)
	horizon := schedule.NewDate(2024, time.December, 31)

	predicted := map[string]bool{}
	for _, o := range schedule.Project(current, start, horizon) {
		predicted[o.Date.String()] = true
	}

	materialized := map[string]bool{}
	for d := start; d.BeforeOrEqual(horizon); d = d.AddDays(1) {
		n, err := p.ProcessDay(ctx, d)
		require.NoError(t, err)
		if n > 0 {
			materialized[d.String()] = true
		}
	}

	assert.Equal(t, predicted, materialized)
}

func TestProcessDay_CatchUpReplaysInOrder(t *testing.T) {
	// Simulates a server that was down: replaying a span of missed days
	// materializes each due date exactly once.
	p, store := newTestProcessor(t)
	ctx := context.Background()

	seedAccount(t, store, "acc-1", 1000)

	monday := 1
	rec := &schedule.RecurringSchedule{
		ID:        "weekly-1",
		Type:      schedule.TypeTransaction,
		Frequency: schedule.FreqWeekly,
		DayOfWeek: &monday,
		AccountID: "acc-1",
		Amount:    decimal.NewFromInt(-50),
		IsActive:  true,
		CreatedAt: schedule.NewDate(2024, time.February, 1),
	}
	require.NoError(t, store.SaveSchedule(ctx, rec))

	// March 2024 has Mondays on the 4th, 11th, 18th and 25th.
	total := 0
	for d := schedule.NewDate(2024, time.March, 1); d.BeforeOrEqual(schedule.NewDate(2024, time.March, 31)); d = d.AddDays(1) {
		n, err := p.ProcessDay(ctx, d)
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, 4, total)

	acc, err := store.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(800)), "got %s", acc.Balance)
}

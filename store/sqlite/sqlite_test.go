package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/schedule-engine/schedule"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testSchedule(id string) *schedule.RecurringSchedule {
	day := 15
	return &schedule.RecurringSchedule{
		ID:         schedule.ScheduleID(id),
		Type:       schedule.TypeTransaction,
		Frequency:  schedule.FreqMonthly,
		DayOfMonth: &day,
		AccountID:  "acc-1",
		Amount:     decimal.NewFromInt(-100),
		IsActive:   true,
		CreatedAt:  schedule.NewDate(2024, time.January, 1),
	}
}

func testAccount(id, name string, balance int64) schedule.Account {
	return schedule.Account{
		ID:       schedule.AccountID(id),
		Name:     name,
		Type:     schedule.AccountCash,
		Balance:  decimal.NewFromInt(balance),
		Currency: "USD",
	}
}

// =============================================================================
// SCHEDULE ROUND TRIPS
// =============================================================================

func TestScheduleRoundTrip_AllOptionalFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	toAcc := schedule.AccountID("acc-2")
	catID := schedule.CategoryID("cat-1")
	amountTo := decimal.NewFromFloat(95.5)
	lastProc := schedule.NewDate(2024, time.February, 15)
	endDate := schedule.NewDate(2024, time.December, 31)
	remaining := 5

	rec := testSchedule("sched-1")
	rec.Type = schedule.TypeTransfer
	rec.ToAccountID = &toAcc
	rec.CategoryID = &catID
	rec.AmountTo = &amountTo
	rec.Description = "Monthly savings sweep"
	rec.LastProcessedDate = &lastProc
	rec.RemainingOccurrences = &remaining
	rec.EndDate = &endDate

	require.NoError(t, store.SaveSchedule(ctx, rec))

	got, err := store.GetSchedule(ctx, "sched-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, rec.Type, got.Type)
	assert.Equal(t, rec.Frequency, got.Frequency)
	require.NotNil(t, got.DayOfMonth)
	assert.Equal(t, 15, *got.DayOfMonth)
	require.NotNil(t, got.ToAccountID)
	assert.Equal(t, toAcc, *got.ToAccountID)
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, catID, *got.CategoryID)
	require.NotNil(t, got.AmountTo)
	assert.True(t, got.AmountTo.Equal(amountTo))
	assert.Equal(t, "Monthly savings sweep", got.Description)
	require.NotNil(t, got.LastProcessedDate)
	assert.True(t, got.LastProcessedDate.Equal(lastProc))
	require.NotNil(t, got.RemainingOccurrences)
	assert.Equal(t, 5, *got.RemainingOccurrences)
	require.NotNil(t, got.EndDate)
	assert.True(t, got.EndDate.Equal(endDate))
	assert.True(t, got.Amount.Equal(rec.Amount))
	assert.True(t, got.CreatedAt.Equal(rec.CreatedAt))
}

func TestScheduleRoundTrip_NullOptionals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSchedule(ctx, testSchedule("sched-1")))

	got, err := store.GetSchedule(ctx, "sched-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Nil(t, got.DayOfWeek)
	assert.Nil(t, got.Month)
	assert.Nil(t, got.ToAccountID)
	assert.Nil(t, got.CategoryID)
	assert.Nil(t, got.AmountTo)
	assert.Nil(t, got.LastProcessedDate)
	assert.Nil(t, got.RemainingOccurrences)
	assert.Nil(t, got.EndDate)
}

func TestGetSchedule_Missing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetSchedule(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListActiveSchedules_FiltersInactive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	active := testSchedule("sched-a")
	inactive := testSchedule("sched-b")
	inactive.IsActive = false
	require.NoError(t, store.SaveSchedule(ctx, active))
	require.NoError(t, store.SaveSchedule(ctx, inactive))

	all, err := store.ListSchedules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	activeOnly, err := store.ListActiveSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, activeOnly, 1)
	assert.Equal(t, schedule.ScheduleID("sched-a"), activeOnly[0].ID)
}

func TestUpdateSchedule(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testSchedule("sched-1")
	require.NoError(t, store.SaveSchedule(ctx, rec))

	rec.Description = "Rent"
	rec.Amount = decimal.NewFromInt(-1500)
	rec.IsActive = false
	require.NoError(t, store.UpdateSchedule(ctx, rec))

	got, err := store.GetSchedule(ctx, "sched-1")
	require.NoError(t, err)
	assert.Equal(t, "Rent", got.Description)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(-1500)))
	assert.False(t, got.IsActive)
}

func TestUpdateSchedule_Missing(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateSchedule(context.Background(), testSchedule("ghost"))
	assert.ErrorIs(t, err, schedule.ErrScheduleNotFound)
}

func TestDeleteSchedule(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSchedule(ctx, testSchedule("sched-1")))
	require.NoError(t, store.DeleteSchedule(ctx, "sched-1"))

	got, err := store.GetSchedule(ctx, "sched-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, store.DeleteSchedule(ctx, "sched-1"), schedule.ErrScheduleNotFound)
}

// =============================================================================
// ACCOUNTS AND CATEGORIES
// =============================================================================

func TestAccountRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	acc := testAccount("acc-1", "Checking", 2500)
	acc.ExcludeFromNetWorth = true
	require.NoError(t, store.SaveAccount(ctx, acc))

	got, err := store.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Checking", got.Name)
	assert.Equal(t, schedule.AccountCash, got.Type)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(2500)))
	assert.True(t, got.ExcludeFromNetWorth)
	assert.False(t, got.ExcludeFromCashBalance)

	missing, err := store.GetAccount(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListAccounts_OrderedByName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, testAccount("acc-2", "Savings", 100)))
	require.NoError(t, store.SaveAccount(ctx, testAccount("acc-1", "Checking", 50)))

	accounts, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "Checking", accounts[0].Name)
	assert.Equal(t, "Savings", accounts[1].Name)
}

func TestCategories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCategory(ctx, Category{ID: "cat-1", Name: "Housing"}))
	require.NoError(t, store.SaveCategory(ctx, Category{ID: "cat-2", Name: "Food"}))

	cats, err := store.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Food", cats[0].Name)
}

// =============================================================================
// MATERIALIZATION
// =============================================================================

func TestApply_SingleLeg(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, testAccount("acc-1", "Checking", 1000)))
	require.NoError(t, store.SaveSchedule(ctx, testSchedule("sched-1")))

	day := schedule.NewDate(2024, time.March, 15)
	remaining := 4
	m := Materialization{
		ScheduleID: "sched-1",
		Date:       day,
		Transactions: []Transaction{{
			ID:         "tx-1",
			ScheduleID: "sched-1",
			AccountID:  "acc-1",
			Date:       day,
			Leg:        LegSingle,
			Amount:     decimal.NewFromInt(-100),
		}},
		BalanceDeltas: map[schedule.AccountID]decimal.Decimal{
			"acc-1": decimal.NewFromInt(-100),
		},
		RemainingOccurrences: &remaining,
	}
	require.NoError(t, store.Apply(ctx, m))

	acc, err := store.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(900)), "balance should drop to 900, got %s", acc.Balance)

	rec, err := store.GetSchedule(ctx, "sched-1")
	require.NoError(t, err)
	require.NotNil(t, rec.LastProcessedDate)
	assert.True(t, rec.LastProcessedDate.Equal(day))
	require.NotNil(t, rec.RemainingOccurrences)
	assert.Equal(t, 4, *rec.RemainingOccurrences)
	assert.True(t, rec.IsActive)

	txs, err := store.ListTransactions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, LegSingle, txs[0].Leg)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(-100)))
}

func TestApply_TransferLegs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, testAccount("acc-1", "Checking", 1000)))
	require.NoError(t, store.SaveAccount(ctx, testAccount("acc-2", "Savings", 0)))
	require.NoError(t, store.SaveSchedule(ctx, testSchedule("sched-1")))

	day := schedule.NewDate(2024, time.March, 15)
	m := Materialization{
		ScheduleID: "sched-1",
		Date:       day,
		Transactions: []Transaction{
			{ID: "tx-d", ScheduleID: "sched-1", AccountID: "acc-1", Date: day, Leg: LegDebit, Amount: decimal.NewFromInt(-200)},
			{ID: "tx-c", ScheduleID: "sched-1", AccountID: "acc-2", Date: day, Leg: LegCredit, Amount: decimal.NewFromInt(200)},
		},
		BalanceDeltas: map[schedule.AccountID]decimal.Decimal{
			"acc-1": decimal.NewFromInt(-200),
			"acc-2": decimal.NewFromInt(200),
		},
	}
	require.NoError(t, store.Apply(ctx, m))

	src, err := store.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, src.Balance.Equal(decimal.NewFromInt(800)))

	dst, err := store.GetAccount(ctx, "acc-2")
	require.NoError(t, err)
	assert.True(t, dst.Balance.Equal(decimal.NewFromInt(200)))
}

func TestApply_SecondAttemptIsRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, testAccount("acc-1", "Checking", 1000)))
	require.NoError(t, store.SaveSchedule(ctx, testSchedule("sched-1")))

	day := schedule.NewDate(2024, time.March, 15)
	m := Materialization{
		ScheduleID: "sched-1",
		Date:       day,
		Transactions: []Transaction{{
			ID: "tx-1", ScheduleID: "sched-1", AccountID: "acc-1", Date: day, Leg: LegSingle,
			Amount: decimal.NewFromInt(-100),
		}},
		BalanceDeltas: map[schedule.AccountID]decimal.Decimal{"acc-1": decimal.NewFromInt(-100)},
	}
	require.NoError(t, store.Apply(ctx, m))

	// Second application of the same (schedule, date, leg) must be refused
	// and must not touch the balance.
	m.Transactions[0].ID = "tx-2"
	err := store.Apply(ctx, m)
	assert.ErrorIs(t, err, ErrAlreadyMaterialized)

	acc, err := store.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(900)), "balance must be debited exactly once, got %s", acc.Balance)
}

func TestApply_Deactivate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, testAccount("acc-1", "Checking", 1000)))
	require.NoError(t, store.SaveSchedule(ctx, testSchedule("sched-1")))

	day := schedule.NewDate(2024, time.March, 15)
	zero := 0
	m := Materialization{
		ScheduleID: "sched-1",
		Date:       day,
		Transactions: []Transaction{{
			ID: "tx-1", ScheduleID: "sched-1", AccountID: "acc-1", Date: day, Leg: LegSingle,
			Amount: decimal.NewFromInt(-100),
		}},
		BalanceDeltas:        map[schedule.AccountID]decimal.Decimal{"acc-1": decimal.NewFromInt(-100)},
		RemainingOccurrences: &zero,
		Deactivate:           true,
	}
	require.NoError(t, store.Apply(ctx, m))

	rec, err := store.GetSchedule(ctx, "sched-1")
	require.NoError(t, err)
	assert.False(t, rec.IsActive)
	require.NotNil(t, rec.RemainingOccurrences)
	assert.Equal(t, 0, *rec.RemainingOccurrences)
}

func TestApply_UnknownAccountRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSchedule(ctx, testSchedule("sched-1")))

	day := schedule.NewDate(2024, time.March, 15)
	m := Materialization{
		ScheduleID: "sched-1",
		Date:       day,
		Transactions: []Transaction{{
			ID: "tx-1", ScheduleID: "sched-1", AccountID: "ghost", Date: day, Leg: LegSingle,
			Amount: decimal.NewFromInt(-100),
		}},
		BalanceDeltas: map[schedule.AccountID]decimal.Decimal{"ghost": decimal.NewFromInt(-100)},
	}
	err := store.Apply(ctx, m)
	assert.ErrorIs(t, err, schedule.ErrAccountNotFound)

	// The transaction insert must have been rolled back with the balance step.
	txs, err := store.ListTransactions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestListTransactions_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, testAccount("acc-1", "Checking", 1000)))
	require.NoError(t, store.SaveSchedule(ctx, testSchedule("sched-1")))

	for i, d := range []schedule.Date{
		schedule.NewDate(2024, time.March, 15),
		schedule.NewDate(2024, time.April, 15),
	} {
		m := Materialization{
			ScheduleID: "sched-1",
			Date:       d,
			Transactions: []Transaction{{
				ID: "tx-" + string(rune('a'+i)), ScheduleID: "sched-1", AccountID: "acc-1",
				Date: d, Leg: LegSingle, Amount: decimal.NewFromInt(-100),
			}},
			BalanceDeltas: map[schedule.AccountID]decimal.Decimal{"acc-1": decimal.NewFromInt(-100)},
		}
		require.NoError(t, store.Apply(ctx, m))
	}

	txs, err := store.ListTransactions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].Date.Equal(schedule.NewDate(2024, time.April, 15)))
}

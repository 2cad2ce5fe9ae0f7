/*
processor.go - Daily schedule materialization

PURPOSE:
  The server-side counterpart of the projection engine: once per calendar
  day it turns every due schedule occurrence into real transaction rows,
  adjusts account balances, advances last_processed_date, charges the
  remaining-occurrence budget, and deactivates exhausted schedules.

BUDGET ACCOUNTING:
  The occurrence index counts from the processed marker inclusive, so
  setting last_processed_date consumes one budget unit on its own. The
  first materialization therefore leaves remaining_occurrences untouched;
  subsequent ones decrement it. A budget of N yields exactly N firings,
  after which the schedule is deactivated.

AGREEMENT WITH PROJECTION:
  The processor decides "due today" with schedule.OccursOnDay, the exact
  function the projector and calendar builder use. Predicted and actual
  firings cannot drift apart because there is only one rule.

CATCH-UP:
  A server that was down replays the missed days in ascending order on the
  next tick. The store's unique materialization index makes replays of
  already-processed days a no-op.

DESIGN:
  - Background goroutine with a configurable check interval
  - ProcessDay is also callable directly with an explicit date, so batch
    runs and tests can materialize a simulated "today"
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fintrack/schedule-engine/schedule"
	"github.com/fintrack/schedule-engine/store/sqlite"
)

// catchUpDays bounds how far back a tick will replay missed days.
const catchUpDays = 31

// Processor materializes due schedule occurrences into transactions.
type Processor struct {
	Store         *sqlite.Store
	Log           *logrus.Logger
	CheckInterval time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewProcessor creates a processor checking once per hour.
func NewProcessor(store *sqlite.Store, log *logrus.Logger) *Processor {
	return &Processor{
		Store:         store,
		Log:           log,
		CheckInterval: time.Hour,
		stop:          make(chan struct{}),
	}
}

// Start begins the background loop. The first check runs immediately.
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ticker = time.NewTicker(p.CheckInterval)
	p.wg.Add(1)
	go p.run()

	p.Log.WithField("interval", p.CheckInterval.String()).Info("processor started")
}

// Stop halts the background loop and waits for the current pass to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ticker != nil {
		p.ticker.Stop()
		close(p.stop)
		p.wg.Wait()
		p.Log.Info("processor stopped")
	}
}

func (p *Processor) run() {
	defer p.wg.Done()

	p.checkAndProcess()
	for {
		select {
		case <-p.ticker.C:
			p.checkAndProcess()
		case <-p.stop:
			return
		}
	}
}

// checkAndProcess replays the catch-up window through today, in order.
// "Today" is read from the clock exactly once and passed down as a value.
func (p *Processor) checkAndProcess() {
	ctx := context.Background()
	today := schedule.DateOf(time.Now().UTC())

	start := today.AddDays(-catchUpDays)
	for d := start; d.BeforeOrEqual(today); d = d.AddDays(1) {
		if _, err := p.ProcessDay(ctx, d); err != nil {
			p.Log.WithError(err).WithField("date", d.String()).Error("processing day failed")
			return
		}
	}
}

// ProcessDay materializes every schedule due on the given day. It returns
// the number of schedules materialized. Safe to call repeatedly for the
// same day.
func (p *Processor) ProcessDay(ctx context.Context, day schedule.Date) (int, error) {
	schedules, err := p.Store.ListActiveSchedules(ctx)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, s := range schedules {
		// Retire schedules whose hard ceiling has passed.
		if s.EndDate != nil && day.After(*s.EndDate) {
			s.IsActive = false
			if err := p.Store.UpdateSchedule(ctx, s); err != nil {
				return processed, err
			}
			p.Log.WithField("schedule", string(s.ID)).Info("schedule retired past end date")
			continue
		}

		if !schedule.OccursOnDay(s, day) {
			continue
		}

		m := buildMaterialization(s, day)
		if err := p.Store.Apply(ctx, m); err != nil {
			if err == sqlite.ErrAlreadyMaterialized {
				continue
			}
			return processed, err
		}
		processed++

		p.Log.WithFields(logrus.Fields{
			"schedule": string(s.ID),
			"date":     day.String(),
			"amount":   s.Amount.String(),
			"type":     string(s.Type),
		}).Info("materialized occurrence")
	}

	if processed > 0 {
		p.Log.WithFields(logrus.Fields{
			"date":      day.String(),
			"processed": processed,
		}).Info("processing pass complete")
	}
	return processed, nil
}

// buildMaterialization translates one due occurrence into store rows and
// balance deltas, mirroring the aggregator's transfer semantics.
func buildMaterialization(s *schedule.RecurringSchedule, day schedule.Date) sqlite.Materialization {
	m := sqlite.Materialization{
		ScheduleID:    s.ID,
		Date:          day,
		BalanceDeltas: make(map[schedule.AccountID]decimal.Decimal),
	}

	switch s.Type {
	case schedule.TypeTransfer:
		debit := s.Amount.Abs().Neg()
		credit := s.TransferCredit()
		m.Transactions = []sqlite.Transaction{
			{
				ID:          uuid.NewString(),
				ScheduleID:  s.ID,
				AccountID:   s.AccountID,
				Date:        day,
				Leg:         sqlite.LegDebit,
				Amount:      debit,
				Description: s.Description,
			},
			{
				ID:          uuid.NewString(),
				ScheduleID:  s.ID,
				AccountID:   *s.ToAccountID,
				Date:        day,
				Leg:         sqlite.LegCredit,
				Amount:      credit,
				Description: s.Description,
			},
		}
		m.BalanceDeltas[s.AccountID] = m.BalanceDeltas[s.AccountID].Add(debit)
		m.BalanceDeltas[*s.ToAccountID] = m.BalanceDeltas[*s.ToAccountID].Add(credit)

	default: // schedule.TypeTransaction
		m.Transactions = []sqlite.Transaction{
			{
				ID:          uuid.NewString(),
				ScheduleID:  s.ID,
				AccountID:   s.AccountID,
				CategoryID:  s.CategoryID,
				Date:        day,
				Leg:         sqlite.LegSingle,
				Amount:      s.Amount,
				Description: s.Description,
			},
		}
		m.BalanceDeltas[s.AccountID] = m.BalanceDeltas[s.AccountID].Add(s.Amount)
	}

	// The budget window includes the processed marker, so advancing the
	// marker charges one unit by itself. The first materialization is paid
	// for by setting last_processed_date; every later one decrements. After
	// this occurrence the schedule admits remaining-1 further firings;
	// deactivate when that hits zero.
	if s.RemainingOccurrences != nil {
		next := *s.RemainingOccurrences
		if s.LastProcessedDate != nil && next > 0 {
			next--
		}
		m.RemainingOccurrences = &next
		if next <= 1 {
			m.Deactivate = true
		}
	}

	return m
}

// RunNow triggers an immediate catch-up pass (for admin and tests).
func (p *Processor) RunNow() {
	p.checkAndProcess()
}

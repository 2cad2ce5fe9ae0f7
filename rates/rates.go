// Package rates holds the exchange-rate table the engine values
// multi-currency portfolios with. Fetching rates from a provider is an
// external concern; this package is only the table that fetch returns.
package rates

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fintrack/schedule-engine/schedule"
)

// Table maps currency pairs to rates. Safe for concurrent readers and a
// refreshing writer. Implements schedule.CurrencyConverter.
type Table struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

// New creates an empty table.
func New() *Table {
	return &Table{rates: make(map[string]decimal.Decimal)}
}

// Set records the rate for one unit of `from` expressed in `to`, and the
// implied inverse.
func (t *Table) Set(from, to string, rate decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rates[pairKey(from, to)] = rate
	if !rate.IsZero() {
		t.rates[pairKey(to, from)] = decimal.NewFromInt(1).Div(rate)
	}
}

// Replace swaps the whole table in one step, for refresh cycles.
func (t *Table) Replace(pairs map[string]map[string]decimal.Decimal) {
	next := make(map[string]decimal.Decimal)
	for from, tos := range pairs {
		for to, rate := range tos {
			next[pairKey(from, to)] = rate
		}
	}
	t.mu.Lock()
	t.rates = next
	t.mu.Unlock()
}

// Convert values amount of `from` currency in `to` currency. Identity when
// the currencies match; a missing pair fails closed with
// schedule.ErrMissingRate.
func (t *Table) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if strings.EqualFold(from, to) {
		return amount, nil
	}

	t.mu.RLock()
	rate, ok := t.rates[pairKey(from, to)]
	t.mu.RUnlock()

	if !ok {
		return decimal.Zero, fmt.Errorf("%s -> %s: %w", from, to, schedule.ErrMissingRate)
	}
	return amount.Mul(rate), nil
}

func pairKey(from, to string) string {
	return strings.ToUpper(from) + "/" + strings.ToUpper(to)
}

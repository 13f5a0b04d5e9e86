package exchange

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintrack/backend/internal/model"
	"github.com/fintrack/backend/internal/recurrence"
)

// Converter converts amounts between currencies using time-indexed historical
// rate snapshots. It is a pure function of the snapshots and directory it was
// built from; callers hand it a consistent point-in-time view and may share it
// across goroutines.
type Converter struct {
	base  string
	known map[string]bool

	// Snapshot history sorted ascending by date, one entry per calendar date.
	dates []time.Time
	rates []map[string]decimal.Decimal
}

// NewConverter builds a converter over the given directory entries and
// snapshot history. Invisible currencies are excluded from the directory so
// conversions against them fail with ErrUnknownCurrency.
func NewConverter(base string, currencies []*model.Currency, history []*model.RateSnapshot) *Converter {
	c := &Converter{
		base:  base,
		known: make(map[string]bool, len(currencies)),
	}
	for _, cur := range currencies {
		if cur.Visible {
			c.known[cur.Code] = true
		}
	}

	sorted := make([]*model.RateSnapshot, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	for _, snap := range sorted {
		c.dates = append(c.dates, recurrence.DateOf(snap.Date))
		c.rates = append(c.rates, snap.Rates)
	}
	return c
}

// Convert converts amount from one currency to another at the given valuation
// date. Identical source and target return the amount unchanged with no rate
// lookup. Otherwise the nearest snapshot on or before asOf supplies the rates,
// and the cross rate is derived through the shared base at full decimal
// precision; rounding is the caller's concern.
func (c *Converter) Convert(amount decimal.Decimal, from, to string, asOf time.Time) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	if !c.known[from] {
		return decimal.Zero, fmt.Errorf("%w: %s", model.ErrUnknownCurrency, from)
	}
	if !c.known[to] {
		return decimal.Zero, fmt.Errorf("%w: %s", model.ErrUnknownCurrency, to)
	}

	table, date, err := c.tableOnOrBefore(asOf)
	if err != nil {
		return decimal.Zero, err
	}
	src, err := c.rateFor(table, date, from)
	if err != nil {
		return decimal.Zero, err
	}
	dst, err := c.rateFor(table, date, to)
	if err != nil {
		return decimal.Zero, err
	}
	if src.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: zero rate for %s on %s",
			model.ErrRateUnavailable, from, date.Format("2006-01-02"))
	}
	return amount.Mul(dst).Div(src), nil
}

// tableOnOrBefore finds the nearest snapshot on or before asOf. Rate history
// can be long, so this is a binary search over the sorted date axis rather
// than a scan.
func (c *Converter) tableOnOrBefore(asOf time.Time) (map[string]decimal.Decimal, time.Time, error) {
	target := recurrence.DateOf(asOf)
	// First index strictly after target; the snapshot we want is just before it.
	i := sort.Search(len(c.dates), func(i int) bool { return c.dates[i].After(target) })
	if i == 0 {
		return nil, time.Time{}, fmt.Errorf("%w: no snapshot on or before %s",
			model.ErrRateUnavailable, target.Format("2006-01-02"))
	}
	return c.rates[i-1], c.dates[i-1], nil
}

// rateFor reads one currency's base-relative rate from a snapshot table. The
// base itself is implicitly 1 and need not appear in the table.
func (c *Converter) rateFor(table map[string]decimal.Decimal, date time.Time, code string) (decimal.Decimal, error) {
	if code == c.base {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := table[code]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no %s rate in snapshot %s",
			model.ErrRateUnavailable, code, date.Format("2006-01-02"))
	}
	return rate, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintrack/backend/internal/billing"
	"github.com/fintrack/backend/internal/exchange"
	"github.com/fintrack/backend/internal/model"
	"github.com/fintrack/backend/internal/recurrence"
	"github.com/fintrack/backend/internal/store"
)

// listPageSize is the page size used when draining store listings for one
// aggregation call.
const listPageSize = 1000

// StatsService computes the statistics views: monthly summaries, per-key
// breakdowns, and upcoming credit dues. Every view is normalized to a single
// display currency, each occurrence converted at its own date. A failed
// conversion or malformed rule aborts the whole call; no partial views are
// returned.
type StatsService struct {
	store store.Store
}

// NewStatsService creates the statistics service over a record store.
func NewStatsService(s store.Store) *StatsService {
	return &StatsService{store: s}
}

// MonthTotal is one calendar month's signed total in the display currency.
type MonthTotal struct {
	Month time.Time       `json:"month"` // first day of the month, UTC
	Total decimal.Decimal `json:"total"`
}

// MonthlySummary buckets income (positive) and expenses (negative) by
// calendar month. Months with no activity appear with a zero total.
type MonthlySummary struct {
	Currency string       `json:"currency"`
	Months   []MonthTotal `json:"months"`
}

// BreakdownEntry is one group's total in a per-key breakdown.
type BreakdownEntry struct {
	Key   string          `json:"key"`
	Total decimal.Decimal `json:"total"`
}

// UpcomingDue is one credit payment method's next statement.
type UpcomingDue struct {
	PaymentMethodID string          `json:"paymentMethodId"`
	Name            string          `json:"name"`
	ClosingDate     time.Time       `json:"closingDate"`
	DueDate         time.Time       `json:"dueDate"`
	CycleStart      time.Time       `json:"cycleStart"`
	AmountDue       decimal.Decimal `json:"amountDue"`
	Currency        string          `json:"currency"`
}

// occurrence is one concrete dated amount, either a stored transaction or a
// recurring-rule expansion. Owned by the aggregation call that produced it.
type occurrence struct {
	date            time.Time
	amount          decimal.Decimal
	currency        string
	accountID       string
	paymentMethodID string
	isExpense       bool
}

// MonthlySummary returns per-month signed totals for [from, to] in the display
// currency.
func (s *StatsService) MonthlySummary(ctx context.Context, userID string, from, to time.Time, displayCurrency string) (*MonthlySummary, error) {
	conv, err := s.converterAsOf(ctx, to)
	if err != nil {
		return nil, err
	}
	occs, err := s.expand(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	totals := make(map[time.Time]decimal.Decimal)
	for _, o := range occs {
		converted, err := conv.Convert(o.amount, o.currency, displayCurrency, o.date)
		if err != nil {
			return nil, fmt.Errorf("convert %s occurrence on %s: %w", o.currency, o.date.Format("2006-01-02"), err)
		}
		month := monthOf(o.date)
		if o.isExpense {
			totals[month] = totals[month].Sub(converted)
		} else {
			totals[month] = totals[month].Add(converted)
		}
	}

	// Zero-fill every month in range so consumers never see gaps. An
	// inverted range yields an empty list, not null.
	months := []MonthTotal{}
	for m := monthOf(from); !m.After(monthOf(to)); m = m.AddDate(0, 1, 0) {
		months = append(months, MonthTotal{
			Month: m,
			Total: totals[m].Round(model.AmountScale),
		})
	}

	return &MonthlySummary{Currency: displayCurrency, Months: months}, nil
}

// BreakdownByPaymentMethod groups signed totals by payment method.
func (s *StatsService) BreakdownByPaymentMethod(ctx context.Context, userID string, from, to time.Time, displayCurrency string) ([]BreakdownEntry, error) {
	return s.breakdown(ctx, userID, from, to, displayCurrency, func(o occurrence) string {
		return o.paymentMethodID
	})
}

// BreakdownByAccount groups signed totals by account.
func (s *StatsService) BreakdownByAccount(ctx context.Context, userID string, from, to time.Time, displayCurrency string) ([]BreakdownEntry, error) {
	return s.breakdown(ctx, userID, from, to, displayCurrency, func(o occurrence) string {
		return o.accountID
	})
}

func (s *StatsService) breakdown(ctx context.Context, userID string, from, to time.Time, displayCurrency string, keyOf func(occurrence) string) ([]BreakdownEntry, error) {
	conv, err := s.converterAsOf(ctx, to)
	if err != nil {
		return nil, err
	}
	occs, err := s.expand(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]decimal.Decimal)
	for _, o := range occs {
		// Each occurrence converts at its own date, not one blended rate.
		converted, err := conv.Convert(o.amount, o.currency, displayCurrency, o.date)
		if err != nil {
			return nil, fmt.Errorf("convert %s occurrence on %s: %w", o.currency, o.date.Format("2006-01-02"), err)
		}
		key := keyOf(o)
		if o.isExpense {
			totals[key] = totals[key].Sub(converted)
		} else {
			totals[key] = totals[key].Add(converted)
		}
	}

	entries := make([]BreakdownEntry, 0, len(totals))
	for key, total := range totals {
		entries = append(entries, BreakdownEntry{Key: key, Total: total.Round(model.AmountScale)})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Total.Abs(), entries[j].Total.Abs()
		if !a.Equal(b) {
			return a.GreaterThan(b)
		}
		return entries[i].Key < entries[j].Key
	})
	return entries, nil
}

// UpcomingDues resolves the current billing cycle of every credit payment
// method and returns the owed amounts, converted to the display currency as of
// asOf, ordered by due date.
func (s *StatsService) UpcomingDues(ctx context.Context, userID string, asOf time.Time, displayCurrency string) ([]UpcomingDue, error) {
	conv, err := s.converterAsOf(ctx, asOf)
	if err != nil {
		return nil, err
	}

	var methods []*model.PaymentMethod
	pageToken := ""
	for {
		page, nextToken, err := s.store.ListPaymentMethods(ctx, userID, listPageSize, pageToken)
		if err != nil {
			return nil, fmt.Errorf("list payment methods: %w", err)
		}
		methods = append(methods, page...)
		if nextToken == "" {
			break
		}
		pageToken = nextToken
	}

	var dues []UpcomingDue
	for _, pm := range methods {
		if !pm.IsCredit {
			continue
		}
		cycle, err := billing.ResolveCycle(pm, asOf)
		if err != nil {
			return nil, fmt.Errorf("resolve cycle for %s: %w", pm.Name, err)
		}

		occs, err := s.expand(ctx, userID, cycle.CycleStart, cycle.CycleEnd)
		if err != nil {
			return nil, err
		}

		owed := decimal.Zero
		for _, o := range occs {
			if o.paymentMethodID != pm.ID {
				continue
			}
			// Cycle windows are half-open: a charge on the closing date
			// belongs to the next statement.
			if !o.date.Before(cycle.CycleEnd) {
				continue
			}
			converted, err := conv.Convert(o.amount, o.currency, displayCurrency, asOf)
			if err != nil {
				return nil, fmt.Errorf("convert %s charge for %s: %w", o.currency, pm.Name, err)
			}
			if o.isExpense {
				owed = owed.Add(converted)
			} else {
				owed = owed.Sub(converted)
			}
		}

		dues = append(dues, UpcomingDue{
			PaymentMethodID: pm.ID,
			Name:            pm.Name,
			ClosingDate:     cycle.ClosingDate,
			DueDate:         cycle.DueDate,
			CycleStart:      cycle.CycleStart,
			AmountDue:       owed.Round(model.AmountScale),
			Currency:        displayCurrency,
		})
	}

	sort.Slice(dues, func(i, j int) bool {
		if !dues[i].DueDate.Equal(dues[j].DueDate) {
			return dues[i].DueDate.Before(dues[j].DueDate)
		}
		return dues[i].Name < dues[j].Name
	})
	return dues, nil
}

// expand collects one-off transactions in [from, to] and expands every active
// recurring transaction's rule over the same window.
func (s *StatsService) expand(ctx context.Context, userID string, from, to time.Time) ([]occurrence, error) {
	start, end := recurrence.DateOf(from), recurrence.DateOf(to)

	var occs []occurrence

	pageToken := ""
	for {
		txs, nextToken, err := s.store.ListTransactions(ctx, userID, &start, &end, listPageSize, pageToken)
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		for _, tx := range txs {
			occs = append(occs, occurrence{
				date:            recurrence.DateOf(tx.Date),
				amount:          tx.Amount,
				currency:        tx.CurrencyCode,
				accountID:       tx.AccountID,
				paymentMethodID: tx.PaymentMethodID,
				isExpense:       tx.IsExpense,
			})
		}
		if nextToken == "" {
			break
		}
		pageToken = nextToken
	}

	pageToken = ""
	for {
		rts, nextToken, err := s.store.ListRecurringTransactions(ctx, userID, true, listPageSize, pageToken)
		if err != nil {
			return nil, fmt.Errorf("list recurring transactions: %w", err)
		}
		for _, rt := range rts {
			dates, err := recurrence.Expand(rt.Rule, start, end)
			if err != nil {
				if errors.Is(err, recurrence.ErrInvalidRule) {
					return nil, fmt.Errorf("%w: recurring transaction %s: %v", model.ErrInvalidRecurrenceRule, rt.ID, err)
				}
				return nil, fmt.Errorf("expand recurring transaction %s: %w", rt.ID, err)
			}
			for _, d := range dates {
				occs = append(occs, occurrence{
					date:            d,
					amount:          rt.Amount,
					currency:        rt.CurrencyCode,
					accountID:       rt.AccountID,
					paymentMethodID: rt.PaymentMethodID,
					isExpense:       rt.IsExpense,
				})
			}
		}
		if nextToken == "" {
			break
		}
		pageToken = nextToken
	}

	return occs, nil
}

// converterAsOf builds a converter from the currency directory and every rate
// snapshot up to the valuation horizon. Carry-forward lookups may need
// snapshots well before the queried window, so history is not clipped at the
// window start.
func (s *StatsService) converterAsOf(ctx context.Context, upTo time.Time) (*exchange.Converter, error) {
	currencies, err := s.store.ListCurrencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}
	end := recurrence.DateOf(upTo)
	snaps, err := s.store.ListRateSnapshots(ctx, nil, &end)
	if err != nil {
		return nil, fmt.Errorf("list rate snapshots: %w", err)
	}
	base := ""
	if len(snaps) > 0 {
		base = snaps[len(snaps)-1].Base
	}
	return exchange.NewConverter(base, currencies, snaps), nil
}

// monthOf truncates a date to the first of its month.
func monthOf(t time.Time) time.Time {
	d := recurrence.DateOf(t)
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}

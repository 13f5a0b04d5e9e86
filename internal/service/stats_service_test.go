package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/backend/internal/model"
	"github.com/fintrack/backend/internal/recurrence"
	"github.com/fintrack/backend/internal/store"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seedStore builds a memory store with a currency directory, a long-lived rate
// history, two payment methods (one credit), and a mix of one-off and
// recurring records for one user.
func seedStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()

	for _, c := range []*model.Currency{
		{Code: "USD", Name: "US Dollar", Visible: true},
		{Code: "EUR", Name: "Euro", Visible: true},
		{Code: "JPY", Name: "Japanese Yen", Visible: true},
	} {
		require.NoError(t, s.UpsertCurrency(ctx, c))
	}

	for _, snap := range []*model.RateSnapshot{
		{
			Date: date(2023, time.December, 15),
			Base: "USD",
			Rates: map[string]decimal.Decimal{
				"EUR": dec("0.90"),
				"JPY": dec("145"),
			},
		},
		{
			Date: date(2024, time.March, 1),
			Base: "USD",
			Rates: map[string]decimal.Decimal{
				"EUR": dec("0.92"),
				"JPY": dec("150"),
			},
		},
	} {
		require.NoError(t, s.PutRateSnapshot(ctx, snap))
	}

	closing := recurrence.Rule{Freq: recurrence.FrequencyMonthly, ByMonthDay: 5, Start: date(2024, time.January, 5)}
	due := recurrence.Rule{Freq: recurrence.FrequencyMonthly, ByMonthDay: 20, Start: date(2024, time.January, 20)}
	require.NoError(t, s.CreatePaymentMethod(ctx, &model.PaymentMethod{
		ID:          "pm-visa",
		UserID:      "user-1",
		Name:        "Visa",
		IsCredit:    true,
		ClosingRule: &closing,
		DueRule:     &due,
	}))
	require.NoError(t, s.CreatePaymentMethod(ctx, &model.PaymentMethod{
		ID:       "pm-cash",
		UserID:   "user-1",
		Name:     "Cash",
		IsCredit: false,
	}))

	return s
}

func TestMonthlySummaryZeroFillsEmptyMonths(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)
	require.NoError(t, s.CreateTransaction(ctx, &model.Transaction{
		UserID:          "user-1",
		AccountID:       "acct-checking",
		PaymentMethodID: "pm-cash",
		Description:     "groceries",
		Amount:          dec("50"),
		CurrencyCode:    "USD",
		IsExpense:       true,
		Date:            date(2024, time.February, 14),
	}))

	stats := NewStatsService(s)
	summary, err := stats.MonthlySummary(ctx, "user-1", date(2024, time.January, 1), date(2024, time.April, 30), "USD")
	require.NoError(t, err)

	require.Len(t, summary.Months, 4, "one entry per month in range, no gaps")
	assert.Equal(t, date(2024, time.January, 1), summary.Months[0].Month)
	assert.True(t, summary.Months[0].Total.IsZero())
	assert.True(t, summary.Months[1].Total.Equal(dec("-50")), "expenses are negative-weighted, got %s", summary.Months[1].Total)
	assert.True(t, summary.Months[2].Total.IsZero())
	assert.True(t, summary.Months[3].Total.IsZero())
}

func TestMonthlySummaryRangeWithNoRecords(t *testing.T) {
	ctx := context.Background()
	stats := NewStatsService(seedStore(t))

	summary, err := stats.MonthlySummary(ctx, "user-1", date(2024, time.January, 1), date(2024, time.March, 31), "USD")
	require.NoError(t, err)

	require.Len(t, summary.Months, 3)
	for _, m := range summary.Months {
		assert.True(t, m.Total.IsZero())
	}
}

func TestMonthlySummaryIncludesLastDayTimestamps(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)

	// Timestamped after midnight on the range's last day; the summary is
	// day-granular, so the expense still lands in March.
	require.NoError(t, s.CreateTransaction(ctx, &model.Transaction{
		UserID:       "user-1",
		AccountID:    "acct-checking",
		Amount:       dec("50"),
		CurrencyCode: "USD",
		IsExpense:    true,
		Date:         time.Date(2024, time.March, 31, 15, 4, 5, 0, time.UTC),
	}))

	stats := NewStatsService(s)
	summary, err := stats.MonthlySummary(ctx, "user-1", date(2024, time.March, 1), date(2024, time.March, 31), "USD")
	require.NoError(t, err)

	require.Len(t, summary.Months, 1)
	assert.True(t, summary.Months[0].Total.Equal(dec("-50")), "got %s", summary.Months[0].Total)
}

func TestMonthlySummaryInvertedRange(t *testing.T) {
	ctx := context.Background()
	stats := NewStatsService(seedStore(t))

	summary, err := stats.MonthlySummary(ctx, "user-1", date(2024, time.April, 1), date(2024, time.January, 1), "USD")
	require.NoError(t, err)
	require.NotNil(t, summary.Months, "inverted ranges yield an empty list, not null")
	assert.Empty(t, summary.Months)
}

func TestMonthlySummaryConvertsAtOccurrenceDate(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)

	// Same 92 EUR in January and March; the December snapshot (0.90) covers
	// January, the March snapshot (0.92) covers March.
	for _, d := range []time.Time{date(2024, time.January, 10), date(2024, time.March, 10)} {
		require.NoError(t, s.CreateTransaction(ctx, &model.Transaction{
			UserID:       "user-1",
			AccountID:    "acct-checking",
			Description:  "salary",
			Amount:       dec("92"),
			CurrencyCode: "EUR",
			IsExpense:    false,
			Date:         d,
		}))
	}

	stats := NewStatsService(s)
	summary, err := stats.MonthlySummary(ctx, "user-1", date(2024, time.January, 1), date(2024, time.March, 31), "USD")
	require.NoError(t, err)

	require.Len(t, summary.Months, 3)
	// 92 / 0.90 ≈ 102.222222 vs 92 / 0.92 = 100 exactly.
	assert.True(t, summary.Months[0].Total.Equal(dec("102.222222")), "got %s", summary.Months[0].Total)
	assert.True(t, summary.Months[2].Total.Equal(dec("100")), "got %s", summary.Months[2].Total)
}

func TestMonthlySummaryExpandsRecurring(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)

	require.NoError(t, s.CreateRecurringTransaction(ctx, &model.RecurringTransaction{
		UserID:       "user-1",
		AccountID:    "acct-checking",
		Description:  "rent",
		Amount:       dec("1200"),
		CurrencyCode: "USD",
		IsExpense:    true,
		Rule:         recurrence.Rule{Freq: recurrence.FrequencyMonthly, ByMonthDay: 1, Start: date(2024, time.January, 1)},
		Active:       true,
	}))
	// Deactivated rules must not expand.
	require.NoError(t, s.CreateRecurringTransaction(ctx, &model.RecurringTransaction{
		UserID:       "user-1",
		AccountID:    "acct-checking",
		Description:  "old gym",
		Amount:       dec("40"),
		CurrencyCode: "USD",
		IsExpense:    true,
		Rule:         recurrence.Rule{Freq: recurrence.FrequencyMonthly, ByMonthDay: 15, Start: date(2023, time.January, 15)},
		Active:       false,
	}))

	stats := NewStatsService(s)
	summary, err := stats.MonthlySummary(ctx, "user-1", date(2024, time.January, 1), date(2024, time.March, 31), "USD")
	require.NoError(t, err)

	require.Len(t, summary.Months, 3)
	for i, m := range summary.Months {
		assert.True(t, m.Total.Equal(dec("-1200")), "month %d: got %s", i, m.Total)
	}
}

func TestMonthlySummaryDeterministic(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)
	require.NoError(t, s.CreateRecurringTransaction(ctx, &model.RecurringTransaction{
		UserID:       "user-1",
		Amount:       dec("10"),
		CurrencyCode: "EUR",
		IsExpense:    true,
		Rule:         recurrence.Rule{Freq: recurrence.FrequencyWeekly, Start: date(2024, time.January, 1)},
		Active:       true,
	}))

	stats := NewStatsService(s)
	first, err := stats.MonthlySummary(ctx, "user-1", date(2024, time.January, 1), date(2024, time.June, 30), "USD")
	require.NoError(t, err)
	second, err := stats.MonthlySummary(ctx, "user-1", date(2024, time.January, 1), date(2024, time.June, 30), "USD")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMonthlySummaryRateUnavailableAborts(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)

	// A foreign-currency occurrence before the first snapshot: no partial
	// result, the whole call fails.
	require.NoError(t, s.CreateTransaction(ctx, &model.Transaction{
		UserID:       "user-1",
		Amount:       dec("10"),
		CurrencyCode: "EUR",
		IsExpense:    true,
		Date:         date(2023, time.November, 1),
	}))

	stats := NewStatsService(s)
	_, err := stats.MonthlySummary(ctx, "user-1", date(2023, time.November, 1), date(2023, time.November, 30), "USD")
	assert.ErrorIs(t, err, model.ErrRateUnavailable)
}

func TestMonthlySummaryUnknownCurrencyAborts(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)
	require.NoError(t, s.CreateTransaction(ctx, &model.Transaction{
		UserID:       "user-1",
		Amount:       dec("10"),
		CurrencyCode: "CHF", // not in the directory
		IsExpense:    true,
		Date:         date(2024, time.March, 5),
	}))

	stats := NewStatsService(s)
	_, err := stats.MonthlySummary(ctx, "user-1", date(2024, time.March, 1), date(2024, time.March, 31), "USD")
	assert.ErrorIs(t, err, model.ErrUnknownCurrency)
}

func TestBreakdownByAccount(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)

	require.NoError(t, s.CreateTransaction(ctx, &model.Transaction{
		UserID:       "user-1",
		AccountID:    "acct-checking",
		Amount:       dec("300"),
		CurrencyCode: "USD",
		IsExpense:    true,
		Date:         date(2024, time.March, 5),
	}))
	require.NoError(t, s.CreateTransaction(ctx, &model.Transaction{
		UserID:       "user-1",
		AccountID:    "acct-savings",
		Amount:       dec("92"),
		CurrencyCode: "EUR",
		IsExpense:    false,
		Date:         date(2024, time.March, 6),
	}))

	stats := NewStatsService(s)
	entries, err := stats.BreakdownByAccount(ctx, "user-1", date(2024, time.March, 1), date(2024, time.March, 31), "USD")
	require.NoError(t, err)

	require.Len(t, entries, 2)
	// Sorted by absolute total descending.
	assert.Equal(t, "acct-checking", entries[0].Key)
	assert.True(t, entries[0].Total.Equal(dec("-300")), "got %s", entries[0].Total)
	assert.Equal(t, "acct-savings", entries[1].Key)
	assert.True(t, entries[1].Total.Equal(dec("100")), "got %s", entries[1].Total)
}

func TestBreakdownByPaymentMethod(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)

	for _, amount := range []string{"20", "30"} {
		require.NoError(t, s.CreateTransaction(ctx, &model.Transaction{
			UserID:          "user-1",
			PaymentMethodID: "pm-visa",
			Amount:          dec(amount),
			CurrencyCode:    "USD",
			IsExpense:       true,
			Date:            date(2024, time.March, 7),
		}))
	}
	require.NoError(t, s.CreateTransaction(ctx, &model.Transaction{
		UserID:          "user-1",
		PaymentMethodID: "pm-cash",
		Amount:          dec("5"),
		CurrencyCode:    "USD",
		IsExpense:       true,
		Date:            date(2024, time.March, 8),
	}))

	stats := NewStatsService(s)
	entries, err := stats.BreakdownByPaymentMethod(ctx, "user-1", date(2024, time.March, 1), date(2024, time.March, 31), "USD")
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "pm-visa", entries[0].Key)
	assert.True(t, entries[0].Total.Equal(dec("-50")), "got %s", entries[0].Total)
	assert.Equal(t, "pm-cash", entries[1].Key)
	assert.True(t, entries[1].Total.Equal(dec("-5")), "got %s", entries[1].Total)
}

func TestUpcomingDues(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)

	// Two charges inside the cycle [2024-06-05, 2024-07-05), one on the
	// closing date itself (belongs to the next statement), and one refund.
	charges := []struct {
		amount  string
		code    string
		day     time.Time
		expense bool
	}{
		{"100", "USD", date(2024, time.June, 10), true},
		{"92", "EUR", date(2024, time.June, 20), true},
		{"20", "USD", date(2024, time.June, 25), false},
		{"999", "USD", date(2024, time.July, 5), true},
	}
	for _, c := range charges {
		require.NoError(t, s.CreateTransaction(ctx, &model.Transaction{
			UserID:          "user-1",
			PaymentMethodID: "pm-visa",
			Amount:          dec(c.amount),
			CurrencyCode:    c.code,
			IsExpense:       c.expense,
			Date:            c.day,
		}))
	}

	stats := NewStatsService(s)
	dues, err := stats.UpcomingDues(ctx, "user-1", date(2024, time.June, 10), "USD")
	require.NoError(t, err)

	// Only the credit method appears.
	require.Len(t, dues, 1)
	due := dues[0]
	assert.Equal(t, "pm-visa", due.PaymentMethodID)
	assert.Equal(t, date(2024, time.July, 5), due.ClosingDate)
	assert.Equal(t, date(2024, time.July, 20), due.DueDate)
	assert.Equal(t, date(2024, time.June, 5), due.CycleStart)

	// 100 + 92/0.92 - 20 = 180, all converted as of 2024-06-10.
	assert.True(t, due.AmountDue.Equal(dec("180")), "got %s", due.AmountDue)
	assert.Equal(t, "USD", due.Currency)
}

func TestUpcomingDuesIncludesRecurringCharges(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)

	require.NoError(t, s.CreateRecurringTransaction(ctx, &model.RecurringTransaction{
		UserID:          "user-1",
		PaymentMethodID: "pm-visa",
		Description:     "streaming",
		Amount:          dec("15"),
		CurrencyCode:    "USD",
		IsExpense:       true,
		Rule:            recurrence.Rule{Freq: recurrence.FrequencyMonthly, ByMonthDay: 12, Start: date(2024, time.January, 12)},
		Active:          true,
	}))

	stats := NewStatsService(s)
	dues, err := stats.UpcomingDues(ctx, "user-1", date(2024, time.June, 10), "USD")
	require.NoError(t, err)

	require.Len(t, dues, 1)
	// One occurrence (June 12) falls inside [June 5, July 5).
	assert.True(t, dues[0].AmountDue.Equal(dec("15")), "got %s", dues[0].AmountDue)
}

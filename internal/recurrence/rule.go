package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRule is returned when a rule fails validation. Malformed rules are
// rejected here at the boundary; the evaluator assumes every rule it sees is valid.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// Frequency selects the evaluation strategy for a rule.
type Frequency int

const (
	FrequencyUnspecified Frequency = iota
	FrequencyDaily
	FrequencyWeekly
	FrequencyMonthly
	FrequencyYearly
)

func (f Frequency) String() string {
	switch f {
	case FrequencyDaily:
		return "daily"
	case FrequencyWeekly:
		return "weekly"
	case FrequencyMonthly:
		return "monthly"
	case FrequencyYearly:
		return "yearly"
	default:
		return "unspecified"
	}
}

// Rule is a recurrence specification anchored at Start. Each frequency has one
// evaluation strategy; the optional By* fields constrain it.
//
// Day-of-month policy: a ByMonthDay (or anchor day) that a month does not have
// resolves to that month's last day, e.g. day 31 in April yields April 30.
type Rule struct {
	Freq     Frequency
	Interval int // every N periods; 0 is treated as 1

	// Bounds. Count limits the total number of occurrences from Start;
	// Until is the last date an occurrence may fall on. Zero values mean unbounded.
	Count int
	Until time.Time

	// ByMonthDay constrains monthly and yearly rules (1..31); 0 means the
	// anchor's day of month.
	ByMonthDay int
	// ByWeekday constrains weekly rules, ISO numbering 1=Monday..7=Sunday;
	// 0 means the anchor's weekday.
	ByWeekday int
	// ByMonth constrains yearly rules (1..12); 0 means the anchor's month.
	ByMonth int

	Start time.Time
}

// Validate rejects malformed rules with ErrInvalidRule.
func (r Rule) Validate() error {
	switch r.Freq {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
	default:
		return fmt.Errorf("%w: unknown frequency %d", ErrInvalidRule, r.Freq)
	}
	if r.Start.IsZero() {
		return fmt.Errorf("%w: missing start date", ErrInvalidRule)
	}
	if r.Interval < 0 {
		return fmt.Errorf("%w: negative interval %d", ErrInvalidRule, r.Interval)
	}
	if r.Count < 0 {
		return fmt.Errorf("%w: negative count %d", ErrInvalidRule, r.Count)
	}
	if !r.Until.IsZero() && DateOf(r.Until).Before(DateOf(r.Start)) {
		return fmt.Errorf("%w: until %s precedes start %s", ErrInvalidRule,
			r.Until.Format("2006-01-02"), r.Start.Format("2006-01-02"))
	}
	if r.ByMonthDay < 0 || r.ByMonthDay > 31 {
		return fmt.Errorf("%w: by-month-day %d out of range", ErrInvalidRule, r.ByMonthDay)
	}
	if r.ByWeekday < 0 || r.ByWeekday > 7 {
		return fmt.Errorf("%w: by-weekday %d out of range", ErrInvalidRule, r.ByWeekday)
	}
	if r.ByMonth < 0 || r.ByMonth > 12 {
		return fmt.Errorf("%w: by-month %d out of range", ErrInvalidRule, r.ByMonth)
	}
	if r.ByMonthDay != 0 && r.Freq != FrequencyMonthly && r.Freq != FrequencyYearly {
		return fmt.Errorf("%w: by-month-day only applies to monthly and yearly rules", ErrInvalidRule)
	}
	if r.ByWeekday != 0 && r.Freq != FrequencyWeekly {
		return fmt.Errorf("%w: by-weekday only applies to weekly rules", ErrInvalidRule)
	}
	if r.ByMonth != 0 && r.Freq != FrequencyYearly {
		return fmt.Errorf("%w: by-month only applies to yearly rules", ErrInvalidRule)
	}
	return nil
}

// interval returns the effective interval, defaulting to 1.
func (r Rule) interval() int {
	if r.Interval <= 0 {
		return 1
	}
	return r.Interval
}

// DateOf truncates t to a calendar date at UTC midnight. All evaluator inputs
// and outputs are normalized through this.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// clampDay resolves a day-of-month against a month that may be shorter.
func clampDay(year int, month time.Month, day int) int {
	if n := daysIn(year, month); day > n {
		return n
	}
	return day
}

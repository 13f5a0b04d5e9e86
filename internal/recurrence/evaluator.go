package recurrence

import (
	"time"
)

// The evaluator is pure: identical inputs always yield identical outputs, and
// no I/O happens here. Dates are generated strictly ascending from the rule's
// anchor, then clipped to the queried window.

// Expand returns every occurrence of r within [windowStart, windowEnd]
// inclusive, in strictly ascending order. A window entirely before the rule's
// start yields an empty slice, not an error. Rules bounded by Count or Until
// simply stop producing dates once exhausted.
func Expand(r Rule, windowStart, windowEnd time.Time) ([]time.Time, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	a, b := DateOf(windowStart), DateOf(windowEnd)
	if b.Before(a) {
		return []time.Time{}, nil
	}

	var out []time.Time
	err := r.each(func(d time.Time) bool {
		if d.After(b) {
			return false
		}
		if !d.Before(a) {
			if len(out) == 0 || !out[len(out)-1].Equal(d) {
				out = append(out, d)
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []time.Time{}
	}
	return out, nil
}

// NextOnOrAfter returns the first occurrence of r on or after t. The second
// return is false when the rule is exhausted before reaching t.
func NextOnOrAfter(r Rule, t time.Time) (time.Time, bool, error) {
	if err := r.Validate(); err != nil {
		return time.Time{}, false, err
	}
	target := DateOf(t)
	var found time.Time
	var ok bool
	err := r.each(func(d time.Time) bool {
		if !d.Before(target) {
			found, ok = d, true
			return false
		}
		return true
	})
	if err != nil {
		return time.Time{}, false, err
	}
	return found, ok, nil
}

// PrevBefore returns the last occurrence of r strictly before t, if any.
func PrevBefore(r Rule, t time.Time) (time.Time, bool, error) {
	if err := r.Validate(); err != nil {
		return time.Time{}, false, err
	}
	target := DateOf(t)
	var found time.Time
	var ok bool
	err := r.each(func(d time.Time) bool {
		if !d.Before(target) {
			return false
		}
		found, ok = d, true
		return true
	})
	if err != nil {
		return time.Time{}, false, err
	}
	return found, ok, nil
}

// each walks the rule's occurrences in ascending order, honoring Count and
// Until, until fn returns false or the rule is exhausted. The rule must
// already be validated.
func (r Rule) each(fn func(time.Time) bool) error {
	start := DateOf(r.Start)
	until := time.Time{}
	if !r.Until.IsZero() {
		until = DateOf(r.Until)
	}

	// The anchored sequence may begin one step before the start date (e.g. a
	// monthly day-10 rule anchored on the 15th); skip such leading raw dates.
	first := 0
	for r.at(first).Before(start) {
		first++
	}

	for k := 0; ; k++ {
		if r.Count > 0 && k >= r.Count {
			return nil
		}
		d := r.at(first + k)
		if !until.IsZero() && d.After(until) {
			return nil
		}
		if !fn(d) {
			return nil
		}
	}
}

// at computes the i-th raw date of the anchored sequence, before the
// start-date skip and Count/Until bounds are applied.
func (r Rule) at(i int) time.Time {
	start := DateOf(r.Start)
	step := r.interval()

	switch r.Freq {
	case FrequencyDaily:
		return start.AddDate(0, 0, i*step)

	case FrequencyWeekly:
		anchor := start
		if r.ByWeekday != 0 {
			// ISO 1=Monday..7=Sunday to time.Weekday's Sunday-based numbering.
			want := time.Weekday(r.ByWeekday % 7)
			offset := (int(want) - int(anchor.Weekday()) + 7) % 7
			anchor = anchor.AddDate(0, 0, offset)
		}
		return anchor.AddDate(0, 0, i*step*7)

	case FrequencyMonthly:
		day := r.ByMonthDay
		if day == 0 {
			day = start.Day()
		}
		months := (start.Year()*12 + int(start.Month()) - 1) + i*step
		year, month := months/12, time.Month(months%12+1)
		return time.Date(year, month, clampDay(year, month, day), 0, 0, 0, 0, time.UTC)

	case FrequencyYearly:
		month := time.Month(r.ByMonth)
		if month == 0 {
			month = start.Month()
		}
		day := r.ByMonthDay
		if day == 0 {
			day = start.Day()
		}
		year := start.Year() + i*step
		return time.Date(year, month, clampDay(year, month, day), 0, 0, 0, 0, time.UTC)

	default:
		// Unreachable for validated rules.
		return start
	}
}

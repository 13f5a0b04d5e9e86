package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/fintrack/backend/internal/model"
	"github.com/fintrack/backend/internal/recurrence"
)

// Cycle describes one statement period of a credit payment method. Charges
// inside [CycleStart, CycleEnd) belong to the statement that closes on
// ClosingDate and falls due on DueDate.
type Cycle struct {
	ClosingDate time.Time
	DueDate     time.Time
	CycleStart  time.Time
	CycleEnd    time.Time
}

// ResolveCycle computes the current cycle of a credit payment method as of the
// given date. The closing date is the closing rule's first occurrence on or
// after asOf; the due date is the due rule's first occurrence on or after that
// closing date, so a due date can never precede its closing date.
func ResolveCycle(pm *model.PaymentMethod, asOf time.Time) (Cycle, error) {
	if !pm.IsCredit {
		return Cycle{}, fmt.Errorf("%w: %s", model.ErrNotCreditMethod, pm.Name)
	}
	if pm.ClosingRule == nil || pm.DueRule == nil {
		return Cycle{}, fmt.Errorf("%w: credit method %s is missing billing rules",
			model.ErrInvalidRecurrenceRule, pm.Name)
	}

	closing, ok, err := recurrence.NextOnOrAfter(*pm.ClosingRule, asOf)
	if err != nil {
		return Cycle{}, wrapRuleErr("closing rule", err)
	}
	if !ok {
		return Cycle{}, fmt.Errorf("%w: closing rule of %s is exhausted before %s",
			model.ErrInvalidRecurrenceRule, pm.Name, asOf.Format("2006-01-02"))
	}

	due, ok, err := recurrence.NextOnOrAfter(*pm.DueRule, closing)
	if err != nil {
		return Cycle{}, wrapRuleErr("due rule", err)
	}
	if !ok {
		return Cycle{}, fmt.Errorf("%w: due rule of %s is exhausted before %s",
			model.ErrInvalidRecurrenceRule, pm.Name, closing.Format("2006-01-02"))
	}

	// The cycle opens at the previous closing occurrence, or at the rule's
	// anchor when none precedes the resolved closing date.
	start, ok, err := recurrence.PrevBefore(*pm.ClosingRule, closing)
	if err != nil {
		return Cycle{}, wrapRuleErr("closing rule", err)
	}
	if !ok {
		start = recurrence.DateOf(pm.ClosingRule.Start)
	}

	return Cycle{
		ClosingDate: closing,
		DueDate:     due,
		CycleStart:  start,
		CycleEnd:    closing,
	}, nil
}

func wrapRuleErr(which string, err error) error {
	if errors.Is(err, recurrence.ErrInvalidRule) {
		return fmt.Errorf("%w: %s: %v", model.ErrInvalidRecurrenceRule, which, err)
	}
	return fmt.Errorf("%s: %w", which, err)
}

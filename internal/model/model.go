package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/fintrack/backend/internal/recurrence"
)

// AmountScale is the fixed-point scale applied to monetary amounts at
// aggregation boundaries. Conversions are carried at full decimal precision
// and rounded only when a total leaves the engine, which keeps A→B→A
// round-trips within tolerance.
const AmountScale = 6

// Currency is a directory entry. Code is immutable once referenced by a
// transaction; only Visible may change afterwards.
type Currency struct {
	Code      string
	Name      string
	Visible   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the code against ISO 4217.
func (c Currency) Validate() error {
	if c.Code != strings.ToUpper(c.Code) || len(c.Code) != 3 {
		return fmt.Errorf("currency code %q must be 3 uppercase letters", c.Code)
	}
	if _, err := currency.ParseISO(c.Code); err != nil {
		return fmt.Errorf("currency code %q is not ISO 4217: %w", c.Code, err)
	}
	return nil
}

// Transaction is a single concrete income or expense.
type Transaction struct {
	ID              string
	UserID          string
	AccountID       string
	PaymentMethodID string
	Description     string
	Amount          decimal.Decimal // non-negative; sign comes from IsExpense
	CurrencyCode    string
	IsExpense       bool
	Date            time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RecurringTransaction is a rule-driven income or expense. It is deactivated,
// never deleted, so past expansions remain reproducible.
type RecurringTransaction struct {
	ID              string
	UserID          string
	AccountID       string
	PaymentMethodID string
	Description     string
	Amount          decimal.Decimal
	CurrencyCode    string
	IsExpense       bool
	Rule            recurrence.Rule
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PaymentMethod is how a transaction was paid. Credit methods carry a closing
// rule and a due rule; the two are present together or absent together.
type PaymentMethod struct {
	ID          string
	UserID      string
	Name        string
	IsCredit    bool
	ClosingRule *recurrence.Rule
	DueRule     *recurrence.Rule
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate enforces the credit-rule pairing invariant.
func (pm PaymentMethod) Validate() error {
	if pm.IsCredit {
		if pm.ClosingRule == nil || pm.DueRule == nil {
			return fmt.Errorf("credit payment method %q requires both closing and due rules", pm.Name)
		}
		if err := pm.ClosingRule.Validate(); err != nil {
			return fmt.Errorf("closing rule: %w", err)
		}
		if err := pm.DueRule.Validate(); err != nil {
			return fmt.Errorf("due rule: %w", err)
		}
		return nil
	}
	if pm.ClosingRule != nil || pm.DueRule != nil {
		return fmt.Errorf("non-credit payment method %q must not carry billing rules", pm.Name)
	}
	return nil
}

// RateSnapshot is the full rate table for one calendar date, every rate
// expressed against the one fixed base currency. Conversion between two
// non-base currencies always derives through that base.
type RateSnapshot struct {
	Date  time.Time
	Base  string
	Rates map[string]decimal.Decimal
}

// Package limits enforces per-account spending limits over UTC calendar
// windows. Usage accumulates per day and per month and is zeroed lazily the
// first time the account is evaluated after a window boundary.
package limits

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
)

type Kind string

const (
	KindPerTransactionMin Kind = "per_transaction_min"
	KindPerTransactionMax Kind = "per_transaction_max"
	KindDaily             Kind = "daily"
	KindMonthly           Kind = "monthly"
)

// LimitError names the limit a reservation violated. It unwraps to
// domain.ErrLimitExceeded.
type LimitError struct {
	Kind      Kind
	Limit     decimal.Decimal
	Requested decimal.Decimal
	Used      decimal.Decimal
}

func (e *LimitError) Error() string {
	switch e.Kind {
	case KindPerTransactionMin:
		return fmt.Sprintf("amount %s below per-transaction minimum %s", e.Requested, e.Limit)
	case KindPerTransactionMax:
		return fmt.Sprintf("amount %s above per-transaction maximum %s", e.Requested, e.Limit)
	default:
		return fmt.Sprintf("%s limit %s exceeded: used %s, requested %s", e.Kind, e.Limit, e.Used, e.Requested)
	}
}

func (e *LimitError) Unwrap() error {
	return domain.ErrLimitExceeded
}

// CheckAndReserve evaluates amount against l at time now. On success it
// returns a copy of l with usage incremented; on rejection it returns l as
// given (after window resets) together with a *LimitError. The input is never
// modified, so callers persist the returned value only when they commit.
func CheckAndReserve(l domain.AccountLimits, amount decimal.Decimal, now time.Time) (domain.AccountLimits, error) {
	l = ApplyResets(l, now)
	if err := check(l, amount); err != nil {
		return l, fmt.Errorf("CheckAndReserve: %w", err)
	}

	l.DailyUsed = l.DailyUsed.Add(amount)
	l.MonthlyUsed = l.MonthlyUsed.Add(amount)
	l.UpdatedAt = now.UTC()
	return l, nil
}

// Check is CheckAndReserve without the reservation.
func Check(l domain.AccountLimits, amount decimal.Decimal, now time.Time) error {
	if err := check(ApplyResets(l, now), amount); err != nil {
		return fmt.Errorf("Check: %w", err)
	}
	return nil
}

// ApplyResets zeroes usage for every window that has rolled over since the
// last reset. Applying it twice within the same window is a no-op.
func ApplyResets(l domain.AccountLimits, now time.Time) domain.AccountLimits {
	day := StartOfDay(now)
	if l.LastDailyReset.IsZero() || l.LastDailyReset.UTC().Before(day) {
		l.DailyUsed = decimal.Zero
		l.LastDailyReset = day
	}

	month := StartOfMonth(now)
	if l.LastMonthlyReset.IsZero() || l.LastMonthlyReset.UTC().Before(month) {
		l.MonthlyUsed = decimal.Zero
		l.LastMonthlyReset = month
	}
	return l
}

type Budget struct {
	Daily   decimal.Decimal
	Monthly decimal.Decimal
}

// Remaining reports how much can still be spent in the current windows.
func Remaining(l domain.AccountLimits, now time.Time) Budget {
	l = ApplyResets(l, now)
	return Budget{
		Daily:   nonNegative(l.DailyLimit.Sub(l.DailyUsed)),
		Monthly: nonNegative(l.MonthlyLimit.Sub(l.MonthlyUsed)),
	}
}

func check(l domain.AccountLimits, amount decimal.Decimal) error {
	if amount.LessThan(l.PerTransactionMin) {
		return &LimitError{Kind: KindPerTransactionMin, Limit: l.PerTransactionMin, Requested: amount}
	}
	if amount.GreaterThan(l.PerTransactionMax) {
		return &LimitError{Kind: KindPerTransactionMax, Limit: l.PerTransactionMax, Requested: amount}
	}
	if l.DailyUsed.Add(amount).GreaterThan(l.DailyLimit) {
		return &LimitError{Kind: KindDaily, Limit: l.DailyLimit, Requested: amount, Used: l.DailyUsed}
	}
	if l.MonthlyUsed.Add(amount).GreaterThan(l.MonthlyLimit) {
		return &LimitError{Kind: KindMonthly, Limit: l.MonthlyLimit, Requested: amount, Used: l.MonthlyUsed}
	}
	return nil
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

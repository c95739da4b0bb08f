package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP:
		return true
	default:
		return false
	}
}

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusFrozen AccountStatus = "frozen"
	AccountStatusClosed AccountStatus = "closed"
)

type Account struct {
	ID            uuid.UUID
	AccountNumber string
	Currency      Currency
	Balance       decimal.Decimal
	Status        AccountStatus
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// AccountLimits is the spending envelope of one account. Usage counters are
// reset lazily on the first reservation after a UTC day or month boundary.
type AccountLimits struct {
	AccountID         uuid.UUID
	DailyLimit        decimal.Decimal
	MonthlyLimit      decimal.Decimal
	PerTransactionMax decimal.Decimal
	PerTransactionMin decimal.Decimal
	DailyUsed         decimal.Decimal
	MonthlyUsed       decimal.Decimal
	LastDailyReset    time.Time
	LastMonthlyReset  time.Time
	UpdatedAt         time.Time
}

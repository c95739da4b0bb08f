package limits

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
)

// Defaults is the envelope given to accounts that have no limits row yet.
type Defaults struct {
	DailyLimit        decimal.Decimal
	MonthlyLimit      decimal.Decimal
	PerTransactionMax decimal.Decimal
	PerTransactionMin decimal.Decimal
}

func (d Defaults) For(accountID uuid.UUID, now time.Time) domain.AccountLimits {
	return domain.AccountLimits{
		AccountID:         accountID,
		DailyLimit:        d.DailyLimit,
		MonthlyLimit:      d.MonthlyLimit,
		PerTransactionMax: d.PerTransactionMax,
		PerTransactionMin: d.PerTransactionMin,
		DailyUsed:         decimal.Zero,
		MonthlyUsed:       decimal.Zero,
		LastDailyReset:    StartOfDay(now),
		LastMonthlyReset:  StartOfMonth(now),
		UpdatedAt:         now.UTC(),
	}
}

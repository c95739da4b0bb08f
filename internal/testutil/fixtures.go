package testutil

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
)

func SeedAccount(t *testing.T, db *sql.DB, currency domain.Currency, balance string) *domain.Account {
	t.Helper()

	now := time.Now().UTC()
	a := &domain.Account{
		ID:        uuid.New(),
		Currency:  currency,
		Balance:   decimal.RequireFromString(balance),
		Status:    domain.AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.AccountNumber = fmt.Sprintf("ACC%s", a.ID.String()[:12])

	_, err := db.Exec(
		`INSERT INTO accounts (id, account_number, currency, balance, status, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.AccountNumber, a.Currency, a.Balance, a.Status, a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %s: %v", currency, err)
	}
	return a
}

func SetAccountStatus(t *testing.T, db *sql.DB, accountID uuid.UUID, status domain.AccountStatus) {
	t.Helper()

	if _, err := db.Exec(`UPDATE accounts SET status = $1 WHERE id = $2`, status, accountID); err != nil {
		t.Fatalf("set account status %s: %v", accountID, err)
	}
}

func SeedLimits(t *testing.T, db *sql.DB, l domain.AccountLimits) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO account_limits (
			account_id, daily_limit, monthly_limit, per_transaction_max, per_transaction_min,
			daily_used, monthly_used, last_daily_reset, last_monthly_reset, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
		l.AccountID, l.DailyLimit, l.MonthlyLimit, l.PerTransactionMax, l.PerTransactionMin,
		l.DailyUsed, l.MonthlyUsed, l.LastDailyReset, l.LastMonthlyReset,
	)
	if err != nil {
		t.Fatalf("seed limits %s: %v", l.AccountID, err)
	}
}

func GetAccountBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %s: %v", accountID, err)
	}
	return balance
}

func GetDailyUsed(t *testing.T, db *sql.DB, accountID uuid.UUID) decimal.Decimal {
	t.Helper()

	var used decimal.Decimal
	err := db.QueryRow(`SELECT daily_used FROM account_limits WHERE account_id = $1`, accountID).Scan(&used)
	if err != nil {
		t.Fatalf("get daily used %s: %v", accountID, err)
	}
	return used
}

func CountTransactions(t *testing.T, db *sql.DB, transferID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE transfer_id = $1`, transferID).Scan(&count)
	if err != nil {
		t.Fatalf("count transactions for transfer %s: %v", transferID, err)
	}
	return count
}

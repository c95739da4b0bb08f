package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
)

const limitsColumns = `account_id, daily_limit, monthly_limit, per_transaction_max, per_transaction_min,
	daily_used, monthly_used, last_daily_reset, last_monthly_reset, updated_at`

type LimitsRepository struct {
	db *sql.DB
}

func NewLimitsRepository(db *sql.DB) *LimitsRepository {
	return &LimitsRepository{db: db}
}

// GetByAccountID returns domain.ErrNotFound when the account has no row yet.
func (r *LimitsRepository) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*domain.AccountLimits, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+limitsColumns+` FROM account_limits WHERE account_id = $1`, accountID,
	)
	l, err := scanLimits(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByAccountID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByAccountID: %w", err)
	}
	return l, nil
}

// GetForUpdate locks the account's row for the rest of tx.
func (r *LimitsRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, accountID uuid.UUID) (*domain.AccountLimits, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+limitsColumns+` FROM account_limits WHERE account_id = $1 FOR UPDATE`, accountID,
	)
	l, err := scanLimits(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return l, nil
}

// InsertIfAbsent stores l unless the account already has a row.
func (r *LimitsRepository) InsertIfAbsent(ctx context.Context, tx *sql.Tx, l *domain.AccountLimits) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO account_limits (`+limitsColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (account_id) DO NOTHING`,
		l.AccountID, l.DailyLimit, l.MonthlyLimit, l.PerTransactionMax, l.PerTransactionMin,
		l.DailyUsed, l.MonthlyUsed, l.LastDailyReset, l.LastMonthlyReset, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("InsertIfAbsent: %w", err)
	}
	return nil
}

func (r *LimitsRepository) Upsert(ctx context.Context, tx *sql.Tx, l *domain.AccountLimits) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO account_limits (`+limitsColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (account_id) DO UPDATE SET
			daily_limit = EXCLUDED.daily_limit,
			monthly_limit = EXCLUDED.monthly_limit,
			per_transaction_max = EXCLUDED.per_transaction_max,
			per_transaction_min = EXCLUDED.per_transaction_min,
			daily_used = EXCLUDED.daily_used,
			monthly_used = EXCLUDED.monthly_used,
			last_daily_reset = EXCLUDED.last_daily_reset,
			last_monthly_reset = EXCLUDED.last_monthly_reset,
			updated_at = EXCLUDED.updated_at`,
		l.AccountID, l.DailyLimit, l.MonthlyLimit, l.PerTransactionMax, l.PerTransactionMin,
		l.DailyUsed, l.MonthlyUsed, l.LastDailyReset, l.LastMonthlyReset, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func scanLimits(s scanner) (*domain.AccountLimits, error) {
	var l domain.AccountLimits
	err := s.Scan(
		&l.AccountID, &l.DailyLimit, &l.MonthlyLimit, &l.PerTransactionMax, &l.PerTransactionMin,
		&l.DailyUsed, &l.MonthlyUsed, &l.LastDailyReset, &l.LastMonthlyReset, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.LastDailyReset = l.LastDailyReset.UTC()
	l.LastMonthlyReset = l.LastMonthlyReset.UTC()
	return &l, nil
}

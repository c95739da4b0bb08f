package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
)

const transferColumns = `id, source_account_id, dest_account_id, dest_account_number, type,
	amount, currency, status, description, failure_reason, settlement_ref,
	source_transaction_id, dest_transaction_id, scheduled_transfer_id, scheduled_for,
	created_at, updated_at, completed_at`

type TransferRepository struct {
	db *sql.DB
}

func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) Create(ctx context.Context, tx *sql.Tx, t *domain.Transfer) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transfers (`+transferColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18
		)`,
		t.ID, t.SourceAccountID, t.DestAccountID, t.DestAccountNumber, t.Type,
		t.Amount, t.Currency, t.Status, t.Description, t.FailureReason, t.SettlementRef,
		t.SourceTransactionID, t.DestTransactionID, t.ScheduledTransferID, t.ScheduledFor,
		t.CreatedAt, t.UpdatedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransferRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = $1`, id,
	)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return t, nil
}

// UpdateStatus moves the transfer from u.From to u.To. A transfer that is no
// longer in u.From yields domain.ErrVersionConflict.
func (r *TransferRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, u domain.TransferStatusUpdate) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE transfers SET
			status = $1,
			failure_reason = COALESCE($2, failure_reason),
			settlement_ref = COALESCE($3, settlement_ref),
			source_transaction_id = COALESCE($4, source_transaction_id),
			dest_transaction_id = COALESCE($5, dest_transaction_id),
			completed_at = COALESCE($6, completed_at),
			updated_at = $7
		WHERE id = $8 AND status = $9`,
		u.To, u.FailureReason, u.SettlementRef, u.SourceTransactionID, u.DestTransactionID,
		u.CompletedAt, u.UpdatedAt, u.TransferID, u.From,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: transfer %s not %s: %w", u.TransferID, u.From, domain.ErrVersionConflict)
	}
	return nil
}

func (r *TransferRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Transfer, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transfers WHERE source_account_id = $1 OR dest_account_id = $1`, accountID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAccount: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers
		WHERE source_account_id = $1 OR dest_account_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAccount: %w", err)
	}
	defer rows.Close()

	transfers, err := collectTransfers(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAccount: %w", err)
	}
	return transfers, total, nil
}

// ListPending returns transfers still pending and last touched before
// olderThan, oldest first.
func (r *TransferRepository) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transfer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers
		WHERE status = 'pending' AND updated_at < $1
		ORDER BY updated_at LIMIT $2`,
		olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListPending: %w", err)
	}
	defer rows.Close()

	transfers, err := collectTransfers(rows)
	if err != nil {
		return nil, fmt.Errorf("ListPending: %w", err)
	}
	return transfers, nil
}

func collectTransfers(rows *sql.Rows) ([]domain.Transfer, error) {
	var transfers []domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		transfers = append(transfers, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return transfers, nil
}

func scanTransfer(s scanner) (*domain.Transfer, error) {
	var t domain.Transfer
	var destAccountID, sourceTxID, destTxID, scheduleID uuid.NullUUID

	err := s.Scan(
		&t.ID, &t.SourceAccountID, &destAccountID, &t.DestAccountNumber, &t.Type,
		&t.Amount, &t.Currency, &t.Status, &t.Description, &t.FailureReason, &t.SettlementRef,
		&sourceTxID, &destTxID, &scheduleID, &t.ScheduledFor,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	t.DestAccountID = nullUUID(destAccountID)
	t.SourceTransactionID = nullUUID(sourceTxID)
	t.DestTransactionID = nullUUID(destTxID)
	t.ScheduledTransferID = nullUUID(scheduleID)
	return &t, nil
}

func nullUUID(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}

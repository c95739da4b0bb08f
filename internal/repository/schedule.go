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

const scheduleColumns = `id, source_account_id, dest_account_id, dest_account_number, type,
	amount, currency, description, recurrence_type, recurrence_day, status,
	next_execution_date, last_execution_date, execution_count, end_date, max_executions,
	version, created_at, updated_at`

type ScheduleRepository struct {
	db *sql.DB
}

func NewScheduleRepository(db *sql.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) Create(ctx context.Context, s *domain.ScheduledTransfer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scheduled_transfers (`+scheduleColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19
		)`,
		s.ID, s.SourceAccountID, s.DestAccountID, s.DestAccountNumber, s.Type,
		s.Amount, s.Currency, s.Description, s.RecurrenceType, s.RecurrenceDay, s.Status,
		s.NextExecutionDate, s.LastExecutionDate, s.ExecutionCount, s.EndDate, s.MaxExecutions,
		s.Version, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledTransfer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_transfers WHERE id = $1`, id,
	)
	s, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return s, nil
}

func (r *ScheduleRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.ScheduledTransfer, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scheduled_transfers WHERE source_account_id = $1`, accountID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAccount: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_transfers
		WHERE source_account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAccount: %w", err)
	}
	defer rows.Close()

	schedules, err := collectSchedules(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByAccount: %w", err)
	}
	return schedules, total, nil
}

// ListDue returns active schedules whose next execution is at or before now,
// earliest first.
func (r *ScheduleRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledTransfer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_transfers
		WHERE status = 'active' AND next_execution_date <= $1
		ORDER BY next_execution_date LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListDue: %w", err)
	}
	defer rows.Close()

	schedules, err := collectSchedules(rows)
	if err != nil {
		return nil, fmt.Errorf("ListDue: %w", err)
	}
	return schedules, nil
}

// Update writes the mutable fields when the stored version still matches
// s.Version, then bumps s.Version.
func (r *ScheduleRepository) Update(ctx context.Context, s *domain.ScheduledTransfer) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_transfers SET
			status = $1,
			next_execution_date = $2,
			last_execution_date = $3,
			execution_count = $4,
			updated_at = $5,
			version = version + 1
		WHERE id = $6 AND version = $7`,
		s.Status, s.NextExecutionDate, s.LastExecutionDate, s.ExecutionCount,
		s.UpdatedAt, s.ID, s.Version,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Update: %w", domain.ErrVersionConflict)
	}
	s.Version++
	return nil
}

func collectSchedules(rows *sql.Rows) ([]domain.ScheduledTransfer, error) {
	var schedules []domain.ScheduledTransfer
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		schedules = append(schedules, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return schedules, nil
}

func scanSchedule(sc scanner) (*domain.ScheduledTransfer, error) {
	var s domain.ScheduledTransfer
	var destAccountID uuid.NullUUID
	var recurrenceDay, maxExecutions sql.NullInt32

	err := sc.Scan(
		&s.ID, &s.SourceAccountID, &destAccountID, &s.DestAccountNumber, &s.Type,
		&s.Amount, &s.Currency, &s.Description, &s.RecurrenceType, &recurrenceDay, &s.Status,
		&s.NextExecutionDate, &s.LastExecutionDate, &s.ExecutionCount, &s.EndDate, &maxExecutions,
		&s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.DestAccountID = nullUUID(destAccountID)
	s.RecurrenceDay = nullInt(recurrenceDay)
	s.MaxExecutions = nullInt(maxExecutions)
	s.NextExecutionDate = s.NextExecutionDate.UTC()
	return &s, nil
}

func nullInt(n sql.NullInt32) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int32)
	return &v
}

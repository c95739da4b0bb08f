// Package schedule owns scheduled transfers: the commands that create and
// change them, and the driver that executes them when they fall due.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/transfer-engine/internal/clock"
	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/logging"
	"github.com/josh-kwaku/transfer-engine/internal/recurrence"
	"github.com/josh-kwaku/transfer-engine/internal/service/transfer"
)

type Store interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	CreateScheduledTransfer(ctx context.Context, s *domain.ScheduledTransfer) error
	GetScheduledTransfer(ctx context.Context, id uuid.UUID) (*domain.ScheduledTransfer, error)
	ListScheduledTransfersForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.ScheduledTransfer, int, error)
	ListDueScheduledTransfers(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledTransfer, error)
	UpdateScheduledTransfer(ctx context.Context, s *domain.ScheduledTransfer) error
}

type Service struct {
	store Store
	clock clock.Clock
}

func NewService(store Store, clk clock.Clock) *Service {
	return &Service{store: store, clock: clk}
}

// CreateRequest is a transfer template plus its recurrence. A zero StartDate
// means now.
type CreateRequest struct {
	SourceAccountID   uuid.UUID
	DestAccountID     *uuid.UUID
	DestAccountNumber *string
	Type              domain.TransferType
	Amount            decimal.Decimal
	Currency          domain.Currency
	Description       string
	RecurrenceType    domain.RecurrenceType
	RecurrenceDay     *int
	StartDate         time.Time
	EndDate           *time.Time
	MaxExecutions     *int
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.ScheduledTransfer, error) {
	log := logging.FromContext(ctx)

	if err := transfer.ValidateRequest(transfer.Request{
		SourceAccountID:   req.SourceAccountID,
		DestAccountID:     req.DestAccountID,
		DestAccountNumber: req.DestAccountNumber,
		Type:              req.Type,
		Amount:            req.Amount,
		Currency:          req.Currency,
	}); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	if err := recurrence.Validate(req.RecurrenceType, req.RecurrenceDay); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	if req.MaxExecutions != nil && *req.MaxExecutions < 1 {
		return nil, fmt.Errorf("Create: max executions must be positive: %w", domain.ErrInvalidRequest)
	}

	source, err := s.store.GetAccount(ctx, req.SourceAccountID)
	if err != nil {
		return nil, fmt.Errorf("Create: source: %w", err)
	}
	if !source.IsActive() {
		return nil, fmt.Errorf("Create: source %s is %s: %w", source.ID, source.Status, domain.ErrAccountInactive)
	}
	if req.Currency != "" && req.Currency != source.Currency {
		return nil, fmt.Errorf("Create: source holds %s, request is %s: %w", source.Currency, req.Currency, domain.ErrCurrencyMismatch)
	}
	if req.Type == domain.TransferTypeInternal {
		dest, err := s.store.GetAccount(ctx, *req.DestAccountID)
		if err != nil {
			return nil, fmt.Errorf("Create: destination: %w", err)
		}
		if dest.Currency != source.Currency {
			return nil, fmt.Errorf("Create: %s to %s: %w", source.Currency, dest.Currency, domain.ErrCurrencyMismatch)
		}
	}

	now := s.clock.Now()
	start := req.StartDate
	if start.IsZero() {
		start = now
	}
	start = start.UTC()

	next, err := recurrence.Seed(start, req.RecurrenceType, req.RecurrenceDay)
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	if req.EndDate != nil && req.EndDate.Before(next) {
		return nil, fmt.Errorf("Create: end date before first execution: %w", domain.ErrInvalidRequest)
	}

	st := &domain.ScheduledTransfer{
		ID:                uuid.New(),
		SourceAccountID:   req.SourceAccountID,
		DestAccountID:     req.DestAccountID,
		DestAccountNumber: req.DestAccountNumber,
		Type:              req.Type,
		Amount:            req.Amount,
		Currency:          source.Currency,
		Description:       req.Description,
		RecurrenceType:    req.RecurrenceType,
		RecurrenceDay:     req.RecurrenceDay,
		Status:            domain.ScheduleStatusActive,
		NextExecutionDate: next,
		EndDate:           req.EndDate,
		MaxExecutions:     req.MaxExecutions,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateScheduledTransfer(ctx, st); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	log.Info("scheduled transfer created",
		"schedule_id", st.ID,
		"recurrence", st.RecurrenceType,
		"next_execution_date", st.NextExecutionDate,
		"source_account_id", st.SourceAccountID,
	)
	return st, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.ScheduledTransfer, error) {
	st, err := s.store.GetScheduledTransfer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return st, nil
}

func (s *Service) ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.ScheduledTransfer, int, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: %w", err)
	}
	list, total, err := s.store.ListScheduledTransfersForAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: %w", err)
	}
	return list, total, nil
}

// Pause stops an active schedule from being selected. Pausing a paused
// schedule is a no-op.
func (s *Service) Pause(ctx context.Context, id uuid.UUID) (*domain.ScheduledTransfer, error) {
	st, err := s.transition(ctx, id, domain.ScheduleStatusPaused)
	if err != nil {
		return nil, fmt.Errorf("Pause: %w", err)
	}
	return st, nil
}

// Resume reactivates a paused schedule. The next execution date is kept even
// when it has already passed, so the schedule runs on the next sweep.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) (*domain.ScheduledTransfer, error) {
	st, err := s.transition(ctx, id, domain.ScheduleStatusActive)
	if err != nil {
		return nil, fmt.Errorf("Resume: %w", err)
	}
	return st, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*domain.ScheduledTransfer, error) {
	st, err := s.transition(ctx, id, domain.ScheduleStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}
	return st, nil
}

const maxTransitionAttempts = 3

// transition moves a schedule to status. The update is version-checked; a
// concurrent sweep advancing the same schedule forces a re-read.
func (s *Service) transition(ctx context.Context, id uuid.UUID, status domain.ScheduleStatus) (*domain.ScheduledTransfer, error) {
	var lastErr error
	for range maxTransitionAttempts {
		st, err := s.store.GetScheduledTransfer(ctx, id)
		if err != nil {
			return nil, err
		}
		if st.Status.IsTerminal() {
			return st, fmt.Errorf("schedule is %s: %w", st.Status, domain.ErrScheduleTerminal)
		}
		if st.Status == status {
			return st, nil
		}

		from := st.Status
		st.Status = status
		st.UpdatedAt = s.clock.Now()
		err = s.store.UpdateScheduledTransfer(ctx, st)
		if err == nil {
			logging.FromContext(ctx).Info("scheduled transfer status changed",
				"schedule_id", st.ID,
				"from", from,
				"to", status,
			)
			return st, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

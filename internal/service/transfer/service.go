// Package transfer drives a transfer from creation through execution to a
// terminal state. Every step that touches an account runs inside that
// account's critical section and persists through one TransferUnit.
package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/transfer-engine/internal/clock"
	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/events"
	"github.com/josh-kwaku/transfer-engine/internal/limits"
	"github.com/josh-kwaku/transfer-engine/internal/lock"
	"github.com/josh-kwaku/transfer-engine/internal/logging"
	"github.com/josh-kwaku/transfer-engine/internal/settlement"
)

const (
	ActorAPI       = "api"
	ActorScheduler = "scheduler"
	ActorRetry     = "retry"
	ActorSystem    = "system"
)

type Store interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetAccountLimits(ctx context.Context, accountID uuid.UUID) (*domain.AccountLimits, error)
	CreateTransfer(ctx context.Context, t *domain.Transfer, event domain.TransferEvent) error
	GetTransfer(ctx context.Context, id uuid.UUID) (*domain.Transfer, error)
	CommitTransferUnit(ctx context.Context, unit domain.TransferUnit) error
	ListTransfersForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Transfer, int, error)
	ListPendingTransfers(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transfer, error)
	ListTransactionsForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Transaction, int, error)
	ListTransferEvents(ctx context.Context, transferID uuid.UUID) ([]domain.TransferEvent, error)
}

type Settler interface {
	SubmitExternal(ctx context.Context, t *domain.Transfer) (settlement.Result, error)
}

type Service struct {
	store     Store
	settler   Settler
	locker    lock.Locker
	clock     clock.Clock
	publisher events.Publisher
	defaults  limits.Defaults
}

func NewService(
	store Store,
	settler Settler,
	locker lock.Locker,
	clk clock.Clock,
	publisher events.Publisher,
	defaults limits.Defaults,
) *Service {
	return &Service{
		store:     store,
		settler:   settler,
		locker:    locker,
		clock:     clk,
		publisher: publisher,
		defaults:  defaults,
	}
}

// Request describes a transfer to submit. Currency may be left empty, in
// which case the source account's currency is used.
type Request struct {
	SourceAccountID     uuid.UUID
	DestAccountID       *uuid.UUID
	DestAccountNumber   *string
	Type                domain.TransferType
	Amount              decimal.Decimal
	Currency            domain.Currency
	Description         string
	ScheduledTransferID *uuid.UUID
	ScheduledFor        *time.Time
	Actor               string
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	t, err := s.store.GetTransfer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return t, nil
}

func (s *Service) History(ctx context.Context, id uuid.UUID) ([]domain.TransferEvent, error) {
	if _, err := s.store.GetTransfer(ctx, id); err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	evts, err := s.store.ListTransferEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	return evts, nil
}

func (s *Service) ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Transfer, int, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: %w", err)
	}
	transfers, total, err := s.store.ListTransfersForAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ListForAccount: %w", err)
	}
	return transfers, total, nil
}

func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Transaction, int, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, 0, fmt.Errorf("ListTransactions: %w", err)
	}
	txns, total, err := s.store.ListTransactionsForAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ListTransactions: %w", err)
	}
	return txns, total, nil
}

// ListPending returns transfers left pending since before olderThan, which
// is where unavailable settlements and lost lock races end up.
func (s *Service) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transfer, error) {
	transfers, err := s.store.ListPendingTransfers(ctx, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("ListPending: %w", err)
	}
	return transfers, nil
}

// AccountLimits returns the account's limits as of now, with window resets
// applied, and the budget left in each window.
func (s *Service) AccountLimits(ctx context.Context, accountID uuid.UUID) (domain.AccountLimits, limits.Budget, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return domain.AccountLimits{}, limits.Budget{}, fmt.Errorf("AccountLimits: %w", err)
	}
	now := s.clock.Now()
	l, err := s.loadLimits(ctx, accountID, now)
	if err != nil {
		return domain.AccountLimits{}, limits.Budget{}, fmt.Errorf("AccountLimits: %w", err)
	}
	return limits.ApplyResets(l, now), limits.Remaining(l, now), nil
}

func (s *Service) publish(ctx context.Context, t *domain.Transfer) {
	msg := events.NewTransferMessage(t, s.clock.Now())
	if err := s.publisher.PublishTransfer(ctx, msg); err != nil {
		logging.FromContext(ctx).Warn("failed to publish transfer event",
			"transfer_id", t.ID,
			"status", t.Status,
			"error", err,
		)
	}
}

func newEvent(transferID uuid.UUID, eventType domain.TransferEventType, actor string, payload map[string]string, now time.Time) domain.TransferEvent {
	var raw json.RawMessage
	if len(payload) > 0 {
		raw, _ = json.Marshal(payload)
	}
	if actor == "" {
		actor = ActorSystem
	}
	return domain.TransferEvent{
		ID:         uuid.New(),
		TransferID: transferID,
		EventType:  eventType,
		Actor:      actor,
		Payload:    raw,
		CreatedAt:  now,
	}
}

// applyStatus mirrors on t what the store does for u.
func applyStatus(t *domain.Transfer, u domain.TransferStatusUpdate) {
	t.Status = u.To
	if u.FailureReason != nil {
		t.FailureReason = u.FailureReason
	}
	if u.SettlementRef != nil {
		t.SettlementRef = u.SettlementRef
	}
	if u.SourceTransactionID != nil {
		t.SourceTransactionID = u.SourceTransactionID
	}
	if u.DestTransactionID != nil {
		t.DestTransactionID = u.DestTransactionID
	}
	if u.CompletedAt != nil {
		t.CompletedAt = u.CompletedAt
	}
	t.UpdatedAt = u.UpdatedAt
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/limits"
)

// Store is the Postgres-backed persistence used by the transfer and schedule
// services. Multi-table writes go through CommitTransferUnit.
type Store struct {
	db           *DB
	accounts     *AccountRepository
	limits       *LimitsRepository
	transfers    *TransferRepository
	transactions *TransactionRepository
	events       *TransferEventRepository
	schedules    *ScheduleRepository
}

func NewStore(pool *sql.DB) *Store {
	return &Store{
		db:           NewDB(pool),
		accounts:     NewAccountRepository(pool),
		limits:       NewLimitsRepository(pool),
		transfers:    NewTransferRepository(pool),
		transactions: NewTransactionRepository(pool),
		events:       NewTransferEventRepository(pool),
		schedules:    NewScheduleRepository(pool),
	}
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

func (s *Store) CreateAccount(ctx context.Context, a *domain.Account) error {
	return s.accounts.Create(ctx, a)
}

func (s *Store) GetAccountLimits(ctx context.Context, accountID uuid.UUID) (*domain.AccountLimits, error) {
	return s.limits.GetByAccountID(ctx, accountID)
}

// CreateTransfer inserts a new transfer together with its creation event.
func (s *Store) CreateTransfer(ctx context.Context, t *domain.Transfer, event domain.TransferEvent) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.transfers.Create(ctx, tx, t); err != nil {
			return err
		}
		if err := s.events.Create(ctx, tx, &event); err != nil {
			return fmt.Errorf("event: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("CreateTransfer: %w", err)
	}
	return nil
}

func (s *Store) GetTransfer(ctx context.Context, id uuid.UUID) (*domain.Transfer, error) {
	return s.transfers.GetByID(ctx, id)
}

func (s *Store) ListTransfersForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Transfer, int, error) {
	return s.transfers.ListByAccount(ctx, accountID, limit, offset)
}

func (s *Store) ListPendingTransfers(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transfer, error) {
	return s.transfers.ListPending(ctx, olderThan, limit)
}

func (s *Store) ListTransactionsForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Transaction, int, error) {
	return s.transactions.GetByAccountID(ctx, accountID, limit, offset)
}

func (s *Store) ListTransactionsForTransfer(ctx context.Context, transferID uuid.UUID) ([]domain.Transaction, error) {
	return s.transactions.GetByTransferID(ctx, transferID)
}

func (s *Store) ListTransferEvents(ctx context.Context, transferID uuid.UUID) ([]domain.TransferEvent, error) {
	return s.events.GetByTransferID(ctx, transferID)
}

// CommitTransferUnit applies unit in one database transaction. Account rows
// are locked in id order, balances are re-checked against the locked rows and
// ledger rows are stamped with the balances actually observed.
func (s *Store) CommitTransferUnit(ctx context.Context, unit domain.TransferUnit) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.applyUnit(ctx, tx, unit)
	})
	if err != nil {
		return fmt.Errorf("CommitTransferUnit: %w", err)
	}
	return nil
}

func (s *Store) applyUnit(ctx context.Context, tx *sql.Tx, unit domain.TransferUnit) error {
	ids := make([]uuid.UUID, 0, len(unit.Deltas))
	for _, d := range unit.Deltas {
		ids = append(ids, d.AccountID)
	}
	locked, err := lockAccountsInOrder(ctx, tx, s.accounts, ids...)
	if err != nil {
		return err
	}

	if err := s.transfers.UpdateStatus(ctx, tx, unit.Status); err != nil {
		return err
	}

	running := make(map[uuid.UUID]decimal.Decimal, len(locked))
	for id, acct := range locked {
		running[id] = acct.Balance
	}

	for _, d := range unit.Deltas {
		acct := locked[d.AccountID]
		if !acct.IsActive() {
			return fmt.Errorf("account %s: %w", acct.ID, domain.ErrAccountInactive)
		}
		newBalance := acct.Balance.Add(d.Amount)
		if newBalance.IsNegative() {
			return fmt.Errorf("account %s: %w", acct.ID, domain.ErrInsufficientFunds)
		}
		if err := s.accounts.UpdateBalance(ctx, tx, acct.ID, newBalance, acct.Version+1, unit.Status.UpdatedAt); err != nil {
			return err
		}
		acct.Balance = newBalance
		acct.Version++
	}

	for i := range unit.Transactions {
		txn := unit.Transactions[i]
		before := running[txn.AccountID]
		after := before.Add(txn.Amount)
		if txn.Type == domain.TransactionTypeDebit {
			after = before.Sub(txn.Amount)
		}
		txn.BalanceBefore, txn.BalanceAfter = before, after
		running[txn.AccountID] = after

		if err := s.transactions.Create(ctx, tx, &txn); err != nil {
			return fmt.Errorf("transaction: %w", err)
		}
	}

	if unit.Reservation != nil {
		if err := s.reserveLimits(ctx, tx, unit.Reservation); err != nil {
			return fmt.Errorf("limits: %w", err)
		}
	}

	for i := range unit.Events {
		if err := s.events.Create(ctx, tx, &unit.Events[i]); err != nil {
			return fmt.Errorf("event: %w", err)
		}
	}
	return nil
}

// reserveLimits charges the reservation against the locked limits row, so
// usage only ever grows from the committed value.
func (s *Store) reserveLimits(ctx context.Context, tx *sql.Tx, r *domain.LimitReservation) error {
	if err := s.limits.InsertIfAbsent(ctx, tx, &r.Seed); err != nil {
		return err
	}
	current, err := s.limits.GetForUpdate(ctx, tx, r.Seed.AccountID)
	if err != nil {
		return err
	}
	reserved, err := limits.CheckAndReserve(*current, r.Amount, r.At)
	if err != nil {
		return err
	}
	return s.limits.Upsert(ctx, tx, &reserved)
}

func (s *Store) CreateScheduledTransfer(ctx context.Context, st *domain.ScheduledTransfer) error {
	return s.schedules.Create(ctx, st)
}

func (s *Store) GetScheduledTransfer(ctx context.Context, id uuid.UUID) (*domain.ScheduledTransfer, error) {
	return s.schedules.GetByID(ctx, id)
}

func (s *Store) ListScheduledTransfersForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.ScheduledTransfer, int, error) {
	return s.schedules.ListByAccount(ctx, accountID, limit, offset)
}

func (s *Store) ListDueScheduledTransfers(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledTransfer, error) {
	return s.schedules.ListDue(ctx, now, limit)
}

func (s *Store) UpdateScheduledTransfer(ctx context.Context, st *domain.ScheduledTransfer) error {
	return s.schedules.Update(ctx, st)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func lockAccountsInOrder(ctx context.Context, tx *sql.Tx, accounts *AccountRepository, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	result := make(map[uuid.UUID]*domain.Account, len(ids))
	for _, id := range sorted {
		if _, ok := result[id]; ok {
			continue
		}
		acct, err := accounts.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lockAccountsInOrder: %w", err)
		}
		result[id] = acct
	}
	return result, nil
}

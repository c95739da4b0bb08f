package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/limits"
)

// MemStore is an in-memory stand-in for repository.Store with the same
// error contract. CommitTransferUnit is all-or-nothing.
type MemStore struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]domain.Account
	limits       map[uuid.UUID]domain.AccountLimits
	transfers    map[uuid.UUID]domain.Transfer
	transactions []domain.Transaction
	events       []domain.TransferEvent
	schedules    map[uuid.UUID]domain.ScheduledTransfer

	// CommitErr, when set, is returned by the next CommitTransferUnit call
	// whose unit moves money, and then cleared.
	CommitErr error
	commits   int
}

func NewMemStore() *MemStore {
	return &MemStore{
		accounts:  make(map[uuid.UUID]domain.Account),
		limits:    make(map[uuid.UUID]domain.AccountLimits),
		transfers: make(map[uuid.UUID]domain.Transfer),
		schedules: make(map[uuid.UUID]domain.ScheduledTransfer),
	}
}

func (m *MemStore) AddAccount(currency domain.Currency, balance string) *domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	a := domain.Account{
		ID:            uuid.New(),
		AccountNumber: fmt.Sprintf("ACC%012d", len(m.accounts)+1),
		Currency:      currency,
		Balance:       decimal.RequireFromString(balance),
		Status:        domain.AccountStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.accounts[a.ID] = a
	return &a
}

func (m *MemStore) SetAccountStatus(id uuid.UUID, status domain.AccountStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	a.Status = status
	m.accounts[id] = a
}

func (m *MemStore) PutLimits(l domain.AccountLimits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits[l.AccountID] = l
}

func (m *MemStore) Balance(id uuid.UUID) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id].Balance
}

func (m *MemStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

func (m *MemStore) GetAccount(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("GetAccount: %w", domain.ErrAccountNotFound)
	}
	return &a, nil
}

func (m *MemStore) CreateAccount(_ context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = *a
	return nil
}

func (m *MemStore) GetAccountLimits(_ context.Context, accountID uuid.UUID) (*domain.AccountLimits, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limits[accountID]
	if !ok {
		return nil, fmt.Errorf("GetAccountLimits: %w", domain.ErrNotFound)
	}
	return &l, nil
}

func (m *MemStore) CreateTransfer(_ context.Context, t *domain.Transfer, event domain.TransferEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transfers[t.ID]; ok {
		return fmt.Errorf("CreateTransfer: duplicate id %s", t.ID)
	}
	m.transfers[t.ID] = *t
	m.events = append(m.events, event)
	return nil
}

func (m *MemStore) GetTransfer(_ context.Context, id uuid.UUID) (*domain.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok {
		return nil, fmt.Errorf("GetTransfer: %w", domain.ErrNotFound)
	}
	return &t, nil
}

func (m *MemStore) CommitTransferUnit(_ context.Context, unit domain.TransferUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CommitErr != nil && len(unit.Deltas) > 0 {
		err := m.CommitErr
		m.CommitErr = nil
		return fmt.Errorf("CommitTransferUnit: %w", err)
	}

	t, ok := m.transfers[unit.Status.TransferID]
	if !ok {
		return fmt.Errorf("CommitTransferUnit: %w", domain.ErrNotFound)
	}
	if t.Status != unit.Status.From {
		return fmt.Errorf("CommitTransferUnit: transfer %s not %s: %w", t.ID, unit.Status.From, domain.ErrVersionConflict)
	}

	staged := make(map[uuid.UUID]domain.Account, len(unit.Deltas))
	running := make(map[uuid.UUID]decimal.Decimal, len(unit.Deltas))
	for _, d := range unit.Deltas {
		acct, ok := staged[d.AccountID]
		if !ok {
			acct, ok = m.accounts[d.AccountID]
			if !ok {
				return fmt.Errorf("CommitTransferUnit: %w", domain.ErrAccountNotFound)
			}
			running[acct.ID] = acct.Balance
		}
		if !acct.IsActive() {
			return fmt.Errorf("CommitTransferUnit: account %s: %w", acct.ID, domain.ErrAccountInactive)
		}
		acct.Balance = acct.Balance.Add(d.Amount)
		if acct.Balance.IsNegative() {
			return fmt.Errorf("CommitTransferUnit: account %s: %w", acct.ID, domain.ErrInsufficientFunds)
		}
		acct.Version++
		acct.UpdatedAt = unit.Status.UpdatedAt
		staged[acct.ID] = acct
	}

	var reserved *domain.AccountLimits
	if r := unit.Reservation; r != nil {
		current, ok := m.limits[r.Seed.AccountID]
		if !ok {
			current = r.Seed
		}
		l, err := limits.CheckAndReserve(current, r.Amount, r.At)
		if err != nil {
			return fmt.Errorf("CommitTransferUnit: %w", err)
		}
		reserved = &l
	}

	txns := make([]domain.Transaction, 0, len(unit.Transactions))
	for _, txn := range unit.Transactions {
		before := running[txn.AccountID]
		after := before.Add(txn.Amount)
		if txn.Type == domain.TransactionTypeDebit {
			after = before.Sub(txn.Amount)
		}
		txn.BalanceBefore, txn.BalanceAfter = before, after
		running[txn.AccountID] = after
		txns = append(txns, txn)
	}

	for id, acct := range staged {
		m.accounts[id] = acct
	}
	m.transactions = append(m.transactions, txns...)
	if reserved != nil {
		m.limits[reserved.AccountID] = *reserved
	}

	u := unit.Status
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
	m.transfers[t.ID] = t

	m.events = append(m.events, unit.Events...)
	m.commits++
	return nil
}

func (m *MemStore) ListTransfersForAccount(_ context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Transfer, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transfer
	for _, t := range m.transfers {
		if t.SourceAccountID == accountID || (t.DestAccountID != nil && *t.DestAccountID == accountID) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), len(out), nil
}

func (m *MemStore) ListPendingTransfers(_ context.Context, olderThan time.Time, limit int) ([]domain.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transfer
	for _, t := range m.transfers {
		if t.Status == domain.TransferStatusPending && t.UpdatedAt.Before(olderThan) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return page(out, limit, 0), nil
}

func (m *MemStore) ListTransactionsForAccount(_ context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Transaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if m.transactions[i].AccountID == accountID {
			out = append(out, m.transactions[i])
		}
	}
	return page(out, limit, offset), len(out), nil
}

func (m *MemStore) ListTransactionsForTransfer(_ context.Context, transferID uuid.UUID) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, t := range m.transactions {
		if t.TransferID == transferID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemStore) ListTransferEvents(_ context.Context, transferID uuid.UUID) ([]domain.TransferEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TransferEvent
	for _, e := range m.events {
		if e.TransferID == transferID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemStore) CreateScheduledTransfer(_ context.Context, s *domain.ScheduledTransfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = *s
	return nil
}

func (m *MemStore) GetScheduledTransfer(_ context.Context, id uuid.UUID) (*domain.ScheduledTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, fmt.Errorf("GetScheduledTransfer: %w", domain.ErrNotFound)
	}
	return &s, nil
}

func (m *MemStore) ListScheduledTransfersForAccount(_ context.Context, accountID uuid.UUID, limit, offset int) ([]domain.ScheduledTransfer, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ScheduledTransfer
	for _, s := range m.schedules {
		if s.SourceAccountID == accountID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), len(out), nil
}

func (m *MemStore) ListDueScheduledTransfers(_ context.Context, now time.Time, limit int) ([]domain.ScheduledTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ScheduledTransfer
	for _, s := range m.schedules {
		if s.Status == domain.ScheduleStatusActive && !s.NextExecutionDate.After(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextExecutionDate.Before(out[j].NextExecutionDate) })
	return page(out, limit, 0), nil
}

func (m *MemStore) UpdateScheduledTransfer(_ context.Context, s *domain.ScheduledTransfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.schedules[s.ID]
	if !ok {
		return fmt.Errorf("UpdateScheduledTransfer: %w", domain.ErrNotFound)
	}
	if cur.Version != s.Version {
		return fmt.Errorf("UpdateScheduledTransfer: %w", domain.ErrVersionConflict)
	}
	s.Version++
	m.schedules[s.ID] = *s
	return nil
}

// Schedule returns the stored copy of a schedule, bypassing errors.
func (m *MemStore) Schedule(id uuid.UUID) domain.ScheduledTransfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedules[id]
}

// Transfers returns every stored transfer, oldest first.
func (m *MemStore) Transfers() []domain.Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Transfer, 0, len(m.transfers))
	for _, t := range m.transfers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemStore) Ping(context.Context) error { return nil }

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

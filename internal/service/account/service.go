// Package account opens accounts and reads them back. Balances only ever
// change through the transfer service.
package account

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/transfer-engine/internal/clock"
	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/logging"
)

type Store interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	CreateAccount(ctx context.Context, a *domain.Account) error
}

type Service struct {
	store Store
	clock clock.Clock
}

func NewService(store Store, clk clock.Clock) *Service {
	return &Service{store: store, clock: clk}
}

// Open creates an active, empty account in currency.
func (s *Service) Open(ctx context.Context, currency domain.Currency) (*domain.Account, error) {
	if !currency.IsValid() {
		return nil, fmt.Errorf("Open: %w", domain.ErrInvalidCurrency)
	}

	number, err := generateAccountNumber()
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}

	now := s.clock.Now()
	a := &domain.Account{
		ID:            uuid.New(),
		AccountNumber: number,
		Currency:      currency,
		Balance:       decimal.Zero,
		Status:        domain.AccountStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}

	logging.FromContext(ctx).Info("account opened",
		"account_id", a.ID,
		"currency", currency,
	)
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return a, nil
}

func generateAccountNumber() (string, error) {
	digits := make([]byte, 10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generateAccountNumber: %w", err)
		}
		digits[i] = '0' + byte(n.Int64())
	}
	return string(digits), nil
}

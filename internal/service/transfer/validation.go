package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/limits"
)

const maxAmountScale = 4

// ValidateRequest checks the request shape only. It never touches the store.
func ValidateRequest(req Request) error {
	if !req.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if !req.Amount.Equal(req.Amount.Round(maxAmountScale)) {
		return fmt.Errorf("%w: at most %d decimal places", domain.ErrInvalidAmount, maxAmountScale)
	}
	if req.SourceAccountID == uuid.Nil {
		return fmt.Errorf("%w: source account is required", domain.ErrInvalidRequest)
	}
	if req.Currency != "" && !req.Currency.IsValid() {
		return domain.ErrInvalidCurrency
	}

	switch req.Type {
	case domain.TransferTypeInternal:
		if req.DestAccountID == nil || *req.DestAccountID == uuid.Nil {
			return fmt.Errorf("%w: destination account is required", domain.ErrInvalidRequest)
		}
		if *req.DestAccountID == req.SourceAccountID {
			return domain.ErrSelfTransfer
		}
	case domain.TransferTypeExternal:
		if req.DestAccountNumber == nil || strings.TrimSpace(*req.DestAccountNumber) == "" {
			return fmt.Errorf("%w: destination account number is required", domain.ErrInvalidRequest)
		}
		if req.DestAccountID != nil {
			return fmt.Errorf("%w: external transfers cannot name an internal destination", domain.ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown transfer type %q", domain.ErrInvalidRequest, req.Type)
	}
	return nil
}

func verifyAccountActive(acct *domain.Account, role string) error {
	if !acct.IsActive() {
		return fmt.Errorf("%s %s is %s: %w", role, acct.ID, acct.Status, domain.ErrAccountInactive)
	}
	return nil
}

type parties struct {
	source      *domain.Account
	dest        *domain.Account
	reservation domain.LimitReservation
}

// prepare re-reads everything the transfer depends on and checks it. It runs
// inside the critical section, so what it sees is what the unit will commit
// against.
func (s *Service) prepare(ctx context.Context, t *domain.Transfer, now time.Time) (*parties, error) {
	source, err := s.store.GetAccount(ctx, t.SourceAccountID)
	if err != nil {
		return nil, fmt.Errorf("prepare: source: %w", err)
	}
	if err := verifyAccountActive(source, "source"); err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}

	p := &parties{source: source}
	if t.Type == domain.TransferTypeInternal {
		dest, err := s.store.GetAccount(ctx, *t.DestAccountID)
		if err != nil {
			return nil, fmt.Errorf("prepare: destination: %w", err)
		}
		if err := verifyAccountActive(dest, "destination"); err != nil {
			return nil, fmt.Errorf("prepare: %w", err)
		}
		p.dest = dest
	}

	l, err := s.loadLimits(ctx, source.ID, now)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	if _, err := limits.CheckAndReserve(l, t.Amount, now); err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	p.reservation = domain.LimitReservation{Seed: l, Amount: t.Amount, At: now}

	if source.Balance.LessThan(t.Amount) {
		return nil, fmt.Errorf("prepare: balance %s below %s: %w", source.Balance, t.Amount, domain.ErrInsufficientFunds)
	}
	return p, nil
}

// precheckLimits rejects a transfer the committed usage already rules out,
// before the account section is entered. Usage only grows within a window, so
// the section would reject it as well.
func (s *Service) precheckLimits(ctx context.Context, t *domain.Transfer, now time.Time) error {
	l, err := s.loadLimits(ctx, t.SourceAccountID, now)
	if err != nil {
		return fmt.Errorf("precheckLimits: %w", err)
	}
	if err := limits.Check(l, t.Amount, now); err != nil {
		return fmt.Errorf("precheckLimits: %w", err)
	}
	return nil
}

func (s *Service) loadLimits(ctx context.Context, accountID uuid.UUID, now time.Time) (domain.AccountLimits, error) {
	l, err := s.store.GetAccountLimits(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.defaults.For(accountID, now), nil
		}
		return domain.AccountLimits{}, fmt.Errorf("loadLimits: %w", err)
	}
	return *l, nil
}

var businessRejections = []error{
	domain.ErrAccountInactive,
	domain.ErrAccountNotFound,
	domain.ErrInsufficientFunds,
	domain.ErrLimitExceeded,
	domain.ErrCurrencyMismatch,
}

// isBusinessRejection separates outcomes that end a transfer from
// infrastructure errors that leave it pending for another attempt.
func isBusinessRejection(err error) bool {
	for _, target := range businessRejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// failureReason is the text stored on a failed transfer.
func failureReason(err error) string {
	var limitErr *limits.LimitError
	if errors.As(err, &limitErr) {
		return limitErr.Error()
	}
	for _, target := range businessRejections {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "transfer could not be committed"
}

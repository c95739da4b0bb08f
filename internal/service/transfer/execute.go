package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/lock"
	"github.com/josh-kwaku/transfer-engine/internal/logging"
	"github.com/josh-kwaku/transfer-engine/internal/settlement"
)

// Submit validates req, records a pending transfer and executes it.
//
// Malformed requests and unknown accounts are rejected before anything is
// stored. Once the transfer exists, business rejections (inactive account,
// insufficient funds, limit exceeded) return the failed transfer together
// with the error, and infrastructure errors return it still pending.
func (s *Service) Submit(ctx context.Context, req Request) (*domain.Transfer, error) {
	log := logging.FromContext(ctx)

	if err := ValidateRequest(req); err != nil {
		return nil, fmt.Errorf("Submit: %w", err)
	}

	source, err := s.store.GetAccount(ctx, req.SourceAccountID)
	if err != nil {
		return nil, fmt.Errorf("Submit: source: %w", err)
	}
	if req.Currency != "" && req.Currency != source.Currency {
		return nil, fmt.Errorf("Submit: source holds %s, request is %s: %w", source.Currency, req.Currency, domain.ErrCurrencyMismatch)
	}
	if req.Type == domain.TransferTypeInternal {
		dest, err := s.store.GetAccount(ctx, *req.DestAccountID)
		if err != nil {
			return nil, fmt.Errorf("Submit: destination: %w", err)
		}
		if dest.Currency != source.Currency {
			return nil, fmt.Errorf("Submit: %s to %s: %w", source.Currency, dest.Currency, domain.ErrCurrencyMismatch)
		}
	}

	now := s.clock.Now()
	t := &domain.Transfer{
		ID:                  uuid.New(),
		SourceAccountID:     req.SourceAccountID,
		DestAccountID:       req.DestAccountID,
		DestAccountNumber:   req.DestAccountNumber,
		Type:                req.Type,
		Amount:              req.Amount,
		Currency:            source.Currency,
		Status:              domain.TransferStatusPending,
		Description:         req.Description,
		ScheduledTransferID: req.ScheduledTransferID,
		ScheduledFor:        req.ScheduledFor,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	created := newEvent(t.ID, domain.TransferEventTypeCreated, req.Actor, nil, now)
	if err := s.store.CreateTransfer(ctx, t, created); err != nil {
		return nil, fmt.Errorf("Submit: %w", err)
	}

	log.Info("transfer created",
		"transfer_id", t.ID,
		"type", t.Type,
		"amount", t.Amount,
		"currency", t.Currency,
		"source_account_id", t.SourceAccountID,
	)

	return s.execute(ctx, t.ID, req.Actor)
}

// Execute drives a pending transfer to completion. It is also the retry
// entry point for transfers left pending by an unavailable settlement
// network or a lost lock race.
func (s *Service) Execute(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error) {
	return s.execute(ctx, transferID, ActorSystem)
}

// Retry is Execute on behalf of actor, for the retry job and the API.
func (s *Service) Retry(ctx context.Context, transferID uuid.UUID, actor string) (*domain.Transfer, error) {
	return s.execute(ctx, transferID, actor)
}

func (s *Service) execute(ctx context.Context, transferID uuid.UUID, actor string) (*domain.Transfer, error) {
	ctx, log := logging.With(ctx, "transfer_id", transferID)

	t, err := s.store.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}
	if t.Status != domain.TransferStatusPending {
		return t, fmt.Errorf("Execute: status %s: %w", t.Status, domain.ErrTransferNotPending)
	}

	if err := s.precheckLimits(ctx, t, s.clock.Now()); err != nil {
		if isBusinessRejection(err) {
			return s.fail(ctx, t, domain.TransferStatusPending, err, failureReason(err), actor)
		}
		return t, fmt.Errorf("Execute: %w", err)
	}

	release, err := s.locker.Acquire(ctx, lock.AccountKeys(t.AccountIDs()...)...)
	if err != nil {
		log.Warn("could not enter account section, transfer left pending", "error", err)
		return t, fmt.Errorf("Execute: %w", err)
	}
	defer release()

	// Re-read under the section: a cancel or another executor may have won.
	t, err = s.store.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, fmt.Errorf("Execute: %w", err)
	}
	if t.Status != domain.TransferStatusPending {
		return t, fmt.Errorf("Execute: status %s: %w", t.Status, domain.ErrTransferNotPending)
	}

	now := s.clock.Now()
	p, err := s.prepare(ctx, t, now)
	if err != nil {
		if isBusinessRejection(err) {
			return s.fail(ctx, t, domain.TransferStatusPending, err, failureReason(err), actor)
		}
		return t, fmt.Errorf("Execute: %w", err)
	}

	if t.Type == domain.TransferTypeExternal {
		return s.executeExternal(ctx, t, p, actor)
	}
	return s.executeInternal(ctx, t, p, actor)
}

func (s *Service) executeInternal(ctx context.Context, t *domain.Transfer, p *parties, actor string) (*domain.Transfer, error) {
	log := logging.FromContext(ctx)
	now := s.clock.Now()
	debitID, creditID := uuid.New(), uuid.New()

	unit := domain.TransferUnit{
		Deltas: []domain.BalanceDelta{
			{AccountID: p.source.ID, Amount: t.Amount.Neg()},
			{AccountID: p.dest.ID, Amount: t.Amount},
		},
		Transactions: []domain.Transaction{
			ledgerRow(debitID, t, p.source, domain.TransactionTypeDebit, now),
			ledgerRow(creditID, t, p.dest, domain.TransactionTypeCredit, now),
		},
		Reservation: &p.reservation,
		Status: domain.TransferStatusUpdate{
			TransferID:          t.ID,
			From:                domain.TransferStatusPending,
			To:                  domain.TransferStatusCompleted,
			SourceTransactionID: &debitID,
			DestTransactionID:   &creditID,
			CompletedAt:         &now,
			UpdatedAt:           now,
		},
		Events: []domain.TransferEvent{
			newEvent(t.ID, domain.TransferEventTypeProcessing, actor, nil, now),
			newEvent(t.ID, domain.TransferEventTypeCompleted, actor, nil, now),
		},
	}

	if err := s.store.CommitTransferUnit(ctx, unit); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return t, fmt.Errorf("Execute: %w", err)
		}
		log.Error("transfer unit rejected by store", "error", err)
		return s.fail(ctx, t, domain.TransferStatusPending, err, failureReason(err), actor)
	}

	applyStatus(t, unit.Status)
	log.Info("transfer completed",
		"source_account_id", p.source.ID,
		"dest_account_id", p.dest.ID,
		"amount", t.Amount,
	)
	s.publish(ctx, t)
	return t, nil
}

// executeExternal persists processing, asks the settlement network and only
// moves money once it has accepted. The account section is held throughout,
// so the reservation computed in prepare is still valid on acceptance.
func (s *Service) executeExternal(ctx context.Context, t *domain.Transfer, p *parties, actor string) (*domain.Transfer, error) {
	log := logging.FromContext(ctx)
	now := s.clock.Now()

	processing := domain.TransferUnit{
		Status: domain.TransferStatusUpdate{
			TransferID: t.ID,
			From:       domain.TransferStatusPending,
			To:         domain.TransferStatusProcessing,
			UpdatedAt:  now,
		},
		Events: []domain.TransferEvent{
			newEvent(t.ID, domain.TransferEventTypeProcessing, actor, nil, now),
		},
	}
	if err := s.store.CommitTransferUnit(ctx, processing); err != nil {
		return t, fmt.Errorf("Execute: mark processing: %w", err)
	}
	applyStatus(t, processing.Status)

	result, err := s.settler.SubmitExternal(ctx, t)
	switch {
	case result.Outcome == settlement.OutcomeAccepted:
		return s.settle(ctx, t, p, result.Reference, actor)
	case result.Outcome == settlement.OutcomeDeclined:
		cause := fmt.Errorf("%w: %s", domain.ErrExternalDeclined, result.Reason)
		return s.fail(ctx, t, domain.TransferStatusProcessing, cause, cause.Error(), actor)
	case result.Outcome == settlement.OutcomeUnavailable || err == nil:
		if err == nil {
			err = fmt.Errorf("%w: unknown settlement outcome %q", domain.ErrExternalUnavailable, result.Outcome)
		}
		return s.requeue(ctx, t, err, actor)
	default:
		log.Error("settlement request rejected", "error", err)
		return s.fail(ctx, t, domain.TransferStatusProcessing, err, "settlement request rejected", actor)
	}
}

func (s *Service) settle(ctx context.Context, t *domain.Transfer, p *parties, reference, actor string) (*domain.Transfer, error) {
	log := logging.FromContext(ctx)
	now := s.clock.Now()
	debitID := uuid.New()

	unit := domain.TransferUnit{
		Deltas: []domain.BalanceDelta{
			{AccountID: p.source.ID, Amount: t.Amount.Neg()},
		},
		Transactions: []domain.Transaction{
			ledgerRow(debitID, t, p.source, domain.TransactionTypeDebit, now),
		},
		Reservation: &p.reservation,
		Status: domain.TransferStatusUpdate{
			TransferID:          t.ID,
			From:                domain.TransferStatusProcessing,
			To:                  domain.TransferStatusCompleted,
			SettlementRef:       &reference,
			SourceTransactionID: &debitID,
			CompletedAt:         &now,
			UpdatedAt:           now,
		},
		Events: []domain.TransferEvent{
			newEvent(t.ID, domain.TransferEventTypeCompleted, actor, map[string]string{"settlement_ref": reference}, now),
		},
	}

	if err := s.store.CommitTransferUnit(ctx, unit); err != nil {
		// The network has the money; never fail or requeue this transfer.
		log.Error("settlement accepted but debit could not be committed, left processing for reconciliation",
			"settlement_ref", reference,
			"error", err,
		)
		return t, fmt.Errorf("Execute: commit settled transfer: %w", err)
	}

	applyStatus(t, unit.Status)
	log.Info("external transfer settled", "settlement_ref", reference, "amount", t.Amount)
	s.publish(ctx, t)
	return t, nil
}

// requeue puts a processing transfer back to pending after the settlement
// network could not be reached. No money has moved.
func (s *Service) requeue(ctx context.Context, t *domain.Transfer, cause error, actor string) (*domain.Transfer, error) {
	log := logging.FromContext(ctx)
	now := s.clock.Now()

	unit := domain.TransferUnit{
		Status: domain.TransferStatusUpdate{
			TransferID: t.ID,
			From:       domain.TransferStatusProcessing,
			To:         domain.TransferStatusPending,
			UpdatedAt:  now,
		},
		Events: []domain.TransferEvent{
			newEvent(t.ID, domain.TransferEventTypeRequeued, actor, map[string]string{"reason": cause.Error()}, now),
		},
	}
	if err := s.store.CommitTransferUnit(ctx, unit); err != nil {
		log.Error("could not requeue transfer, left processing", "error", err)
		return t, fmt.Errorf("Execute: requeue: %w", errors.Join(cause, err))
	}

	applyStatus(t, unit.Status)
	log.Warn("settlement unavailable, transfer requeued", "error", cause)
	s.publish(ctx, t)
	return t, fmt.Errorf("Execute: %w", cause)
}

// fail stamps the transfer failed. Balances, limits and the ledger are not
// touched.
func (s *Service) fail(ctx context.Context, t *domain.Transfer, from domain.TransferStatus, cause error, reason, actor string) (*domain.Transfer, error) {
	log := logging.FromContext(ctx)
	now := s.clock.Now()

	unit := domain.TransferUnit{
		Status: domain.TransferStatusUpdate{
			TransferID:    t.ID,
			From:          from,
			To:            domain.TransferStatusFailed,
			FailureReason: &reason,
			UpdatedAt:     now,
		},
		Events: []domain.TransferEvent{
			newEvent(t.ID, domain.TransferEventTypeFailed, actor, map[string]string{"reason": reason}, now),
		},
	}
	if err := s.store.CommitTransferUnit(ctx, unit); err != nil {
		log.Error("could not record transfer failure", "reason", reason, "error", err)
		return t, fmt.Errorf("Execute: record failure: %w", errors.Join(cause, err))
	}

	applyStatus(t, unit.Status)
	log.Warn("transfer failed", "reason", reason)
	s.publish(ctx, t)
	return t, fmt.Errorf("Execute: %w", cause)
}

func ledgerRow(id uuid.UUID, t *domain.Transfer, acct *domain.Account, typ domain.TransactionType, now time.Time) domain.Transaction {
	after := acct.Balance.Add(t.Amount)
	if typ == domain.TransactionTypeDebit {
		after = acct.Balance.Sub(t.Amount)
	}
	return domain.Transaction{
		ID:            id,
		TransferID:    t.ID,
		AccountID:     acct.ID,
		Type:          typ,
		Amount:        t.Amount,
		Currency:      t.Currency,
		BalanceBefore: acct.Balance,
		BalanceAfter:  after,
		Status:        domain.TransactionStatusPosted,
		CreatedAt:     now,
	}
}

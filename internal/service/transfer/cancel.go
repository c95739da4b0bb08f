package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/lock"
	"github.com/josh-kwaku/transfer-engine/internal/logging"
)

// Cancel moves a pending transfer to cancelled. It takes the same account
// section as Execute, so whichever of the two gets there first decides the
// outcome.
func (s *Service) Cancel(ctx context.Context, transferID uuid.UUID, actor string) (*domain.Transfer, error) {
	log := logging.FromContext(ctx)

	t, err := s.store.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}
	if t.Status != domain.TransferStatusPending {
		return t, fmt.Errorf("Cancel: status %s: %w", t.Status, domain.ErrTransferNotCancellable)
	}

	release, err := s.locker.Acquire(ctx, lock.AccountKeys(t.AccountIDs()...)...)
	if err != nil {
		return t, fmt.Errorf("Cancel: %w", err)
	}
	defer release()

	t, err = s.store.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}
	if t.Status != domain.TransferStatusPending {
		return t, fmt.Errorf("Cancel: status %s: %w", t.Status, domain.ErrTransferNotCancellable)
	}

	now := s.clock.Now()
	unit := domain.TransferUnit{
		Status: domain.TransferStatusUpdate{
			TransferID: t.ID,
			From:       domain.TransferStatusPending,
			To:         domain.TransferStatusCancelled,
			UpdatedAt:  now,
		},
		Events: []domain.TransferEvent{
			newEvent(t.ID, domain.TransferEventTypeCancelled, actor, nil, now),
		},
	}
	if err := s.store.CommitTransferUnit(ctx, unit); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return t, fmt.Errorf("Cancel: %w", domain.ErrTransferNotCancellable)
		}
		return t, fmt.Errorf("Cancel: %w", err)
	}

	applyStatus(t, unit.Status)
	log.Info("transfer cancelled", "transfer_id", t.ID, "actor", actor)
	s.publish(ctx, t)
	return t, nil
}

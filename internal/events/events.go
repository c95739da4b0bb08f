// Package events publishes transfer lifecycle notifications to downstream
// consumers once the state change has been committed.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
)

// TransferMessage is the JSON body published for every terminal transfer
// state and for requeues.
type TransferMessage struct {
	EventID             uuid.UUID             `json:"event_id"`
	TransferID          uuid.UUID             `json:"transfer_id"`
	Type                domain.TransferType   `json:"type"`
	Status              domain.TransferStatus `json:"status"`
	SourceAccountID     uuid.UUID             `json:"source_account_id"`
	DestAccountID       *uuid.UUID            `json:"dest_account_id,omitempty"`
	DestAccountNumber   *string               `json:"dest_account_number,omitempty"`
	Amount              decimal.Decimal       `json:"amount"`
	Currency            domain.Currency       `json:"currency"`
	FailureReason       *string               `json:"failure_reason,omitempty"`
	SettlementRef       *string               `json:"settlement_ref,omitempty"`
	ScheduledTransferID *uuid.UUID            `json:"scheduled_transfer_id,omitempty"`
	OccurredAt          time.Time             `json:"occurred_at"`
}

type Publisher interface {
	PublishTransfer(ctx context.Context, msg TransferMessage) error
	Close()
}

func NewTransferMessage(t *domain.Transfer, at time.Time) TransferMessage {
	return TransferMessage{
		EventID:             uuid.New(),
		TransferID:          t.ID,
		Type:                t.Type,
		Status:              t.Status,
		SourceAccountID:     t.SourceAccountID,
		DestAccountID:       t.DestAccountID,
		DestAccountNumber:   t.DestAccountNumber,
		Amount:              t.Amount,
		Currency:            t.Currency,
		FailureReason:       t.FailureReason,
		SettlementRef:       t.SettlementRef,
		ScheduledTransferID: t.ScheduledTransferID,
		OccurredAt:          at,
	}
}

// RoutingKey maps a transfer status onto the topic key, e.g. transfer.completed.
// A pending status is published as transfer.requeued.
func RoutingKey(status domain.TransferStatus) string {
	if status == domain.TransferStatusPending {
		return "transfer." + string(domain.TransferEventTypeRequeued)
	}
	return "transfer." + string(status)
}

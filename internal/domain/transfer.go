package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransferType string

const (
	TransferTypeInternal TransferType = "internal"
	TransferTypeExternal TransferType = "external"
)

func (t TransferType) IsValid() bool {
	return t == TransferTypeInternal || t == TransferTypeExternal
}

type TransferStatus string

const (
	TransferStatusPending    TransferStatus = "pending"
	TransferStatusProcessing TransferStatus = "processing"
	TransferStatusCompleted  TransferStatus = "completed"
	TransferStatusFailed     TransferStatus = "failed"
	TransferStatusCancelled  TransferStatus = "cancelled"
)

func (s TransferStatus) IsTerminal() bool {
	switch s {
	case TransferStatusCompleted, TransferStatusFailed, TransferStatusCancelled:
		return true
	default:
		return false
	}
}

type Transfer struct {
	ID                  uuid.UUID
	SourceAccountID     uuid.UUID
	DestAccountID       *uuid.UUID
	DestAccountNumber   *string
	Type                TransferType
	Amount              decimal.Decimal
	Currency            Currency
	Status              TransferStatus
	Description         string
	FailureReason       *string
	SettlementRef       *string
	SourceTransactionID *uuid.UUID
	DestTransactionID   *uuid.UUID
	ScheduledTransferID *uuid.UUID
	ScheduledFor        *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
}

// AccountIDs returns every account whose balance the transfer may touch.
func (t *Transfer) AccountIDs() []uuid.UUID {
	if t.DestAccountID != nil {
		return []uuid.UUID{t.SourceAccountID, *t.DestAccountID}
	}
	return []uuid.UUID{t.SourceAccountID}
}

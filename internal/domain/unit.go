package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BalanceDelta struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
}

type TransferStatusUpdate struct {
	TransferID          uuid.UUID
	From                TransferStatus
	To                  TransferStatus
	FailureReason       *string
	SettlementRef       *string
	SourceTransactionID *uuid.UUID
	DestTransactionID   *uuid.UUID
	CompletedAt         *time.Time
	UpdatedAt           time.Time
}

// LimitReservation charges Amount against an account's limits as of At. The
// store re-checks it against the row it locks, so usage computed by the caller
// is never written back. Seed is stored first when the account has no row.
type LimitReservation struct {
	Seed   AccountLimits
	Amount decimal.Decimal
	At     time.Time
}

// TransferUnit is everything one transfer step writes. The store applies it
// in full or not at all.
type TransferUnit struct {
	Deltas       []BalanceDelta
	Transactions []Transaction
	Reservation  *LimitReservation
	Status       TransferStatusUpdate
	Events       []TransferEvent
}

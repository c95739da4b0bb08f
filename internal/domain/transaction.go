package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDebit  TransactionType = "debit"
	TransactionTypeCredit TransactionType = "credit"
)

type TransactionStatus string

const (
	TransactionStatusPosted  TransactionStatus = "posted"
	TransactionStatusPending TransactionStatus = "pending"
)

// Transaction is an immutable ledger row. Rows are only ever appended.
type Transaction struct {
	ID            uuid.UUID
	TransferID    uuid.UUID
	AccountID     uuid.UUID
	Type          TransactionType
	Amount        decimal.Decimal
	Currency      Currency
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Status        TransactionStatus
	CreatedAt     time.Time
}

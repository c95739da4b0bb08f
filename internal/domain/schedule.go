package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RecurrenceType string

const (
	RecurrenceOneTime   RecurrenceType = "one_time"
	RecurrenceDaily     RecurrenceType = "daily"
	RecurrenceWeekly    RecurrenceType = "weekly"
	RecurrenceMonthly   RecurrenceType = "monthly"
	RecurrenceQuarterly RecurrenceType = "quarterly"
	RecurrenceAnnually  RecurrenceType = "annually"
)

func (r RecurrenceType) IsValid() bool {
	switch r {
	case RecurrenceOneTime, RecurrenceDaily, RecurrenceWeekly,
		RecurrenceMonthly, RecurrenceQuarterly, RecurrenceAnnually:
		return true
	default:
		return false
	}
}

type ScheduleStatus string

const (
	ScheduleStatusActive    ScheduleStatus = "active"
	ScheduleStatusPaused    ScheduleStatus = "paused"
	ScheduleStatusCompleted ScheduleStatus = "completed"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

func (s ScheduleStatus) IsTerminal() bool {
	return s == ScheduleStatusCompleted || s == ScheduleStatusCancelled
}

// ScheduledTransfer is a transfer template plus its recurrence state.
// NextExecutionDate, LastExecutionDate and ExecutionCount are owned by the
// sweep driver; commands only touch Status.
type ScheduledTransfer struct {
	ID                uuid.UUID
	SourceAccountID   uuid.UUID
	DestAccountID     *uuid.UUID
	DestAccountNumber *string
	Type              TransferType
	Amount            decimal.Decimal
	Currency          Currency
	Description       string
	RecurrenceType    RecurrenceType
	RecurrenceDay     *int
	Status            ScheduleStatus
	NextExecutionDate time.Time
	LastExecutionDate *time.Time
	ExecutionCount    int
	EndDate           *time.Time
	MaxExecutions     *int
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TransferEventType string

const (
	TransferEventTypeCreated    TransferEventType = "created"
	TransferEventTypeProcessing TransferEventType = "processing"
	TransferEventTypeCompleted  TransferEventType = "completed"
	TransferEventTypeFailed     TransferEventType = "failed"
	TransferEventTypeCancelled  TransferEventType = "cancelled"
	TransferEventTypeRequeued   TransferEventType = "requeued"
)

type TransferEvent struct {
	ID         uuid.UUID
	TransferID uuid.UUID
	EventType  TransferEventType
	Actor      string
	Payload    json.RawMessage
	CreatedAt  time.Time
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/logging"
	"github.com/josh-kwaku/transfer-engine/internal/service/transfer"
)

type transferService interface {
	Submit(ctx context.Context, req transfer.Request) (*domain.Transfer, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Transfer, error)
	History(ctx context.Context, id uuid.UUID) ([]domain.TransferEvent, error)
	Cancel(ctx context.Context, id uuid.UUID, actor string) (*domain.Transfer, error)
	Retry(ctx context.Context, id uuid.UUID, actor string) (*domain.Transfer, error)
}

type TransferHandler struct {
	transfers transferService
}

func NewTransferHandler(transfers transferService) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

type createTransferRequest struct {
	SourceAccountID   uuid.UUID       `json:"source_account_id"`
	DestAccountID     *uuid.UUID      `json:"dest_account_id"`
	DestAccountNumber *string         `json:"dest_account_number"`
	Type              string          `json:"type"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Description       string          `json:"description"`
}

func (r createTransferRequest) Validate() []FieldError {
	var errs []FieldError

	if r.SourceAccountID == uuid.Nil {
		errs = append(errs, FieldError{Field: "source_account_id", Message: "required"})
	}

	switch domain.TransferType(r.Type) {
	case domain.TransferTypeInternal:
		if r.DestAccountID == nil || *r.DestAccountID == uuid.Nil {
			errs = append(errs, FieldError{Field: "dest_account_id", Message: "required for internal transfers"})
		}
	case domain.TransferTypeExternal:
		if r.DestAccountNumber == nil || strings.TrimSpace(*r.DestAccountNumber) == "" {
			errs = append(errs, FieldError{Field: "dest_account_number", Message: "required for external transfers"})
		}
	case "":
		errs = append(errs, FieldError{Field: "type", Message: "required"})
	default:
		errs = append(errs, FieldError{Field: "type", Message: "must be internal or external"})
	}

	if !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	if r.Currency != "" && !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be USD, EUR, or GBP"})
	}

	return errs
}

type transferDTO struct {
	ID                  uuid.UUID       `json:"id"`
	Type                string          `json:"type"`
	Status              string          `json:"status"`
	SourceAccountID     uuid.UUID       `json:"source_account_id"`
	DestAccountID       *uuid.UUID      `json:"dest_account_id,omitempty"`
	DestAccountNumber   *string         `json:"dest_account_number,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Description         string          `json:"description,omitempty"`
	FailureReason       *string         `json:"failure_reason,omitempty"`
	SettlementRef       *string         `json:"settlement_ref,omitempty"`
	ScheduledTransferID *uuid.UUID      `json:"scheduled_transfer_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
}

func toTransferDTO(t *domain.Transfer) transferDTO {
	return transferDTO{
		ID:                  t.ID,
		Type:                string(t.Type),
		Status:              string(t.Status),
		SourceAccountID:     t.SourceAccountID,
		DestAccountID:       t.DestAccountID,
		DestAccountNumber:   t.DestAccountNumber,
		Amount:              t.Amount,
		Currency:            string(t.Currency),
		Description:         t.Description,
		FailureReason:       t.FailureReason,
		SettlementRef:       t.SettlementRef,
		ScheduledTransferID: t.ScheduledTransferID,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
		CompletedAt:         t.CompletedAt,
	}
}

type transferEventDTO struct {
	EventType string          `json:"event_type"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	t, err := h.transfers.Submit(r.Context(), transfer.Request{
		SourceAccountID:   req.SourceAccountID,
		DestAccountID:     req.DestAccountID,
		DestAccountNumber: req.DestAccountNumber,
		Type:              domain.TransferType(req.Type),
		Amount:            req.Amount,
		Currency:          domain.Currency(req.Currency),
		Description:       req.Description,
		Actor:             transfer.ActorAPI,
	})
	if t != nil {
		w.Header().Set("Location", fmt.Sprintf("/api/v1/transfers/%s", t.ID))
	}
	if err != nil {
		log.Warn("transfer submission failed", "error", err)
		respondTransferError(w, t, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toTransferDTO(t))
}

func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	t, err := h.transfers.Get(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("transfer lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransferDTO(t))
}

func (h *TransferHandler) Events(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	evts, err := h.transfers.History(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("transfer history lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]transferEventDTO, len(evts))
	for i, e := range evts {
		dtos[i] = transferEventDTO{
			EventType: string(e.EventType),
			Actor:     e.Actor,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt,
		}
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *TransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	t, err := h.transfers.Cancel(r.Context(), id, transfer.ActorAPI)
	if err != nil {
		logging.FromContext(r.Context()).Warn("transfer cancel failed", "transfer_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransferDTO(t))
}

func (h *TransferHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	t, err := h.transfers.Retry(r.Context(), id, transfer.ActorAPI)
	if err != nil {
		logging.FromContext(r.Context()).Warn("transfer retry failed", "transfer_id", id, "error", err)
		respondTransferError(w, t, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransferDTO(t))
}

// respondTransferError reports a transfer that exists but did not complete.
// A transfer left pending for retry is accepted, not an error.
func respondTransferError(w http.ResponseWriter, t *domain.Transfer, err error) {
	if t == nil || errors.Is(err, domain.ErrTransferNotPending) {
		RespondDomainError(w, err)
		return
	}
	if t.Status == domain.TransferStatusPending && domain.IsRetryable(err) {
		RespondSuccess(w, http.StatusAccepted, toTransferDTO(t))
		return
	}
	RespondDomainErrorWithData(w, err, toTransferDTO(t))
}

package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/logging"
	"github.com/josh-kwaku/transfer-engine/internal/service/schedule"
)

type scheduleService interface {
	Create(ctx context.Context, req schedule.CreateRequest) (*domain.ScheduledTransfer, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.ScheduledTransfer, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.ScheduledTransfer, int, error)
	Pause(ctx context.Context, id uuid.UUID) (*domain.ScheduledTransfer, error)
	Resume(ctx context.Context, id uuid.UUID) (*domain.ScheduledTransfer, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.ScheduledTransfer, error)
}

type ScheduleHandler struct {
	schedules scheduleService
}

func NewScheduleHandler(schedules scheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules}
}

type createScheduleRequest struct {
	createTransferRequest
	RecurrenceType string     `json:"recurrence_type"`
	RecurrenceDay  *int       `json:"recurrence_day"`
	StartDate      *time.Time `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
	MaxExecutions  *int       `json:"max_executions"`
}

func (r createScheduleRequest) Validate() []FieldError {
	errs := r.createTransferRequest.Validate()

	if r.RecurrenceType == "" {
		errs = append(errs, FieldError{Field: "recurrence_type", Message: "required"})
	} else if !domain.RecurrenceType(r.RecurrenceType).IsValid() {
		errs = append(errs, FieldError{Field: "recurrence_type", Message: "must be one_time, daily, weekly, monthly, quarterly, or annually"})
	}

	if r.MaxExecutions != nil && *r.MaxExecutions < 1 {
		errs = append(errs, FieldError{Field: "max_executions", Message: "must be at least 1"})
	}

	if r.StartDate != nil && r.EndDate != nil && r.EndDate.Before(*r.StartDate) {
		errs = append(errs, FieldError{Field: "end_date", Message: "must not be before start_date"})
	}

	return errs
}

type scheduleDTO struct {
	ID                uuid.UUID       `json:"id"`
	Status            string          `json:"status"`
	Type              string          `json:"type"`
	SourceAccountID   uuid.UUID       `json:"source_account_id"`
	DestAccountID     *uuid.UUID      `json:"dest_account_id,omitempty"`
	DestAccountNumber *string         `json:"dest_account_number,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Description       string          `json:"description,omitempty"`
	RecurrenceType    string          `json:"recurrence_type"`
	RecurrenceDay     *int            `json:"recurrence_day,omitempty"`
	NextExecutionDate time.Time       `json:"next_execution_date"`
	LastExecutionDate *time.Time      `json:"last_execution_date,omitempty"`
	ExecutionCount    int             `json:"execution_count"`
	EndDate           *time.Time      `json:"end_date,omitempty"`
	MaxExecutions     *int            `json:"max_executions,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

func toScheduleDTO(s *domain.ScheduledTransfer) scheduleDTO {
	return scheduleDTO{
		ID:                s.ID,
		Status:            string(s.Status),
		Type:              string(s.Type),
		SourceAccountID:   s.SourceAccountID,
		DestAccountID:     s.DestAccountID,
		DestAccountNumber: s.DestAccountNumber,
		Amount:            s.Amount,
		Currency:          string(s.Currency),
		Description:       s.Description,
		RecurrenceType:    string(s.RecurrenceType),
		RecurrenceDay:     s.RecurrenceDay,
		NextExecutionDate: s.NextExecutionDate,
		LastExecutionDate: s.LastExecutionDate,
		ExecutionCount:    s.ExecutionCount,
		EndDate:           s.EndDate,
		MaxExecutions:     s.MaxExecutions,
		CreatedAt:         s.CreatedAt,
	}
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	var start time.Time
	if req.StartDate != nil {
		start = *req.StartDate
	}
	st, err := h.schedules.Create(r.Context(), schedule.CreateRequest{
		SourceAccountID:   req.SourceAccountID,
		DestAccountID:     req.DestAccountID,
		DestAccountNumber: req.DestAccountNumber,
		Type:              domain.TransferType(req.Type),
		Amount:            req.Amount,
		Currency:          domain.Currency(req.Currency),
		Description:       strings.TrimSpace(req.Description),
		RecurrenceType:    domain.RecurrenceType(req.RecurrenceType),
		RecurrenceDay:     req.RecurrenceDay,
		StartDate:         start,
		EndDate:           req.EndDate,
		MaxExecutions:     req.MaxExecutions,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("schedule creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/schedules/%s", st.ID))
	RespondSuccess(w, http.StatusCreated, toScheduleDTO(st))
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	st, err := h.schedules.Get(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("schedule lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toScheduleDTO(st))
}

func (h *ScheduleHandler) ListForAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, offset, fields := pageParams(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	list, total, err := h.schedules.ListForAccount(r.Context(), id, limit, offset)
	if err != nil {
		respondAccountError(w, r, "schedule listing failed", err)
		return
	}

	items := make([]scheduleDTO, len(list))
	for i := range list {
		items[i] = toScheduleDTO(&list[i])
	}
	RespondSuccess(w, http.StatusOK, page[scheduleDTO]{Items: items, Total: total, Limit: limit, Offset: offset})
}

func (h *ScheduleHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "pause", h.schedules.Pause)
}

func (h *ScheduleHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "resume", h.schedules.Resume)
}

func (h *ScheduleHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "cancel", h.schedules.Cancel)
}

func (h *ScheduleHandler) command(w http.ResponseWriter, r *http.Request, name string, fn func(context.Context, uuid.UUID) (*domain.ScheduledTransfer, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	st, err := fn(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("schedule command failed", "command", name, "schedule_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toScheduleDTO(st))
}

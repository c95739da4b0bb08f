package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/limits"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

func RespondDomainError(w http.ResponseWriter, err error) {
	RespondDomainErrorWithData(w, err, nil)
}

// RespondDomainErrorWithData maps err like RespondDomainError and carries data
// alongside, so a rejected transfer is returned with its recorded state.
func RespondDomainErrorWithData(w http.ResponseWriter, err error, data any) {
	appErr := domainAppError(err)

	var details any
	var limitErr *limits.LimitError
	if errors.As(err, &limitErr) {
		details = map[string]string{
			"kind":      string(limitErr.Kind),
			"limit":     limitErr.Limit.String(),
			"requested": limitErr.Requested.String(),
			"used":      limitErr.Used.String(),
		}
	}

	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    data,
		Error: &APIError{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Retryable: domain.IsRetryable(err),
			Details:   details,
		},
	})
}

func domainAppError(err error) *AppError {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ErrResourceNotFound
	case errors.Is(err, domain.ErrInvalidAmount):
		return ErrInvalidAmount
	case errors.Is(err, domain.ErrInvalidCurrency):
		return ErrInvalidCurrency
	case errors.Is(err, domain.ErrInvalidRecurrence):
		return ErrInvalidRecurrence
	case errors.Is(err, domain.ErrSelfTransfer):
		return ErrSelfTransfer
	case errors.Is(err, domain.ErrAccountNotFound):
		return ErrAccountNotFound
	case errors.Is(err, domain.ErrAccountInactive):
		return ErrAccountInactive
	case errors.Is(err, domain.ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, domain.ErrLimitExceeded):
		return ErrLimitExceeded
	case errors.Is(err, domain.ErrCurrencyMismatch):
		return ErrCurrencyMismatch
	case errors.Is(err, domain.ErrExternalDeclined):
		return ErrExternalDeclined
	case errors.Is(err, domain.ErrExternalUnavailable):
		return ErrExternalUnavailable
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return ErrAccountBusy
	case errors.Is(err, domain.ErrVersionConflict):
		return ErrVersionConflict
	case errors.Is(err, domain.ErrTransferNotPending):
		return ErrTransferNotPending
	case errors.Is(err, domain.ErrTransferNotCancellable):
		return ErrNotCancellable
	case errors.Is(err, domain.ErrScheduleTerminal):
		return ErrScheduleTerminal
	case errors.Is(err, domain.ErrInvalidRequest):
		return ErrInvalidRequest
	default:
		slog.Error("unhandled domain error", "error", err)
		return ErrInternalError
	}
}

package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount     = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be positive with at most 4 decimal places"}
	ErrInvalidCurrency   = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Invalid currency"}
	ErrInvalidRecurrence = &AppError{http.StatusBadRequest, "INVALID_RECURRENCE", "Invalid recurrence"}
	ErrSelfTransfer      = &AppError{http.StatusUnprocessableEntity, "SELF_TRANSFER_NOT_ALLOWED", "Cannot transfer to the same account"}
	ErrAccountNotFound   = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_NOT_FOUND", "Account not found"}
	ErrAccountInactive   = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_INACTIVE", "Account is frozen or closed"}
	ErrInsufficientFunds = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrLimitExceeded     = &AppError{http.StatusUnprocessableEntity, "TRANSFER_LIMIT_EXCEEDED", "Transfer limit exceeded"}
	ErrCurrencyMismatch  = &AppError{http.StatusUnprocessableEntity, "CURRENCY_MISMATCH", "Currency mismatch"}
	ErrExternalDeclined  = &AppError{http.StatusUnprocessableEntity, "SETTLEMENT_DECLINED", "External settlement declined"}

	ErrExternalUnavailable = &AppError{http.StatusServiceUnavailable, "SETTLEMENT_UNAVAILABLE", "External settlement unavailable, transfer will be retried"}
	ErrAccountBusy         = &AppError{http.StatusConflict, "ACCOUNT_BUSY", "Account is busy, please retry"}
	ErrVersionConflict     = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrTransferNotPending  = &AppError{http.StatusConflict, "TRANSFER_NOT_PENDING", "Transfer is not pending"}
	ErrNotCancellable      = &AppError{http.StatusConflict, "TRANSFER_NOT_CANCELLABLE", "Transfer can no longer be cancelled"}
	ErrScheduleTerminal    = &AppError{http.StatusConflict, "SCHEDULE_TERMINAL", "Schedule is completed or cancelled"}

	ErrInvalidIdempotencyKey = &AppError{http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY", "Idempotency-Key must be 1 to 255 characters"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrIdempotencyInFlight   = &AppError{http.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", "A request with this idempotency key is still being processed"}
)

package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrInvalidAmount          = errors.New("amount must be greater than zero")
	ErrInvalidCurrency        = errors.New("invalid currency")
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountInactive        = errors.New("account inactive")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrLimitExceeded          = errors.New("transfer limit exceeded")
	ErrSelfTransfer           = errors.New("cannot transfer to same account")
	ErrCurrencyMismatch       = errors.New("currency mismatch")
	ErrVersionConflict        = errors.New("optimistic lock conflict")
	ErrConcurrencyConflict    = errors.New("account busy, retry later")
	ErrExternalUnavailable    = errors.New("external settlement unavailable")
	ErrExternalDeclined       = errors.New("external settlement declined")
	ErrTransferNotPending     = errors.New("transfer is not pending")
	ErrTransferNotCancellable = errors.New("transfer cannot be cancelled")
	ErrInvalidRecurrence      = errors.New("invalid recurrence")
	ErrScheduleTerminal       = errors.New("schedule already in terminal state")
)

// IsRetryable reports whether the failure is an infrastructure condition the
// caller may retry, as opposed to a business rejection.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrExternalUnavailable) || errors.Is(err, ErrConcurrencyConflict)
}

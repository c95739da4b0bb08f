package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/limits"
	"github.com/josh-kwaku/transfer-engine/internal/logging"
)

type accountService interface {
	Open(ctx context.Context, currency domain.Currency) (*domain.Account, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)
}

type accountActivity interface {
	ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Transfer, int, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Transaction, int, error)
	AccountLimits(ctx context.Context, accountID uuid.UUID) (domain.AccountLimits, limits.Budget, error)
}

type AccountHandler struct {
	accounts accountService
	activity accountActivity
}

func NewAccountHandler(accounts accountService, activity accountActivity) *AccountHandler {
	return &AccountHandler{accounts: accounts, activity: activity}
}

type openAccountRequest struct {
	Currency string `json:"currency"`
}

func (r openAccountRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "must be USD, EUR, or GBP"})
	}
	return errs
}

type accountDTO struct {
	ID            uuid.UUID       `json:"id"`
	AccountNumber string          `json:"account_number"`
	Currency      string          `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		ID:            a.ID,
		AccountNumber: a.AccountNumber,
		Currency:      string(a.Currency),
		Balance:       a.Balance,
		Status:        string(a.Status),
		CreatedAt:     a.CreatedAt,
	}
}

type transactionDTO struct {
	ID            uuid.UUID       `json:"id"`
	TransferID    uuid.UUID       `json:"transfer_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

type limitsDTO struct {
	DailyLimit        decimal.Decimal `json:"daily_limit"`
	MonthlyLimit      decimal.Decimal `json:"monthly_limit"`
	PerTransactionMax decimal.Decimal `json:"per_transaction_max"`
	PerTransactionMin decimal.Decimal `json:"per_transaction_min"`
	DailyUsed         decimal.Decimal `json:"daily_used"`
	MonthlyUsed       decimal.Decimal `json:"monthly_used"`
	DailyRemaining    decimal.Decimal `json:"daily_remaining"`
	MonthlyRemaining  decimal.Decimal `json:"monthly_remaining"`
}

func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	a, err := h.accounts.Open(r.Context(), domain.Currency(req.Currency))
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to open account", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toAccountDTO(a))
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	a, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		respondAccountError(w, r, "account lookup failed", err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(a))
}

func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, offset, fields := pageParams(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	txns, total, err := h.activity.ListTransactions(r.Context(), id, limit, offset)
	if err != nil {
		respondAccountError(w, r, "transaction listing failed", err)
		return
	}

	items := make([]transactionDTO, len(txns))
	for i, t := range txns {
		items[i] = transactionDTO{
			ID:            t.ID,
			TransferID:    t.TransferID,
			Type:          string(t.Type),
			Amount:        t.Amount,
			Currency:      string(t.Currency),
			BalanceBefore: t.BalanceBefore,
			BalanceAfter:  t.BalanceAfter,
			Status:        string(t.Status),
			CreatedAt:     t.CreatedAt,
		}
	}
	RespondSuccess(w, http.StatusOK, page[transactionDTO]{Items: items, Total: total, Limit: limit, Offset: offset})
}

func (h *AccountHandler) Transfers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, offset, fields := pageParams(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	transfers, total, err := h.activity.ListForAccount(r.Context(), id, limit, offset)
	if err != nil {
		respondAccountError(w, r, "transfer listing failed", err)
		return
	}

	items := make([]transferDTO, len(transfers))
	for i := range transfers {
		items[i] = toTransferDTO(&transfers[i])
	}
	RespondSuccess(w, http.StatusOK, page[transferDTO]{Items: items, Total: total, Limit: limit, Offset: offset})
}

func (h *AccountHandler) Limits(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	l, budget, err := h.activity.AccountLimits(r.Context(), id)
	if err != nil {
		respondAccountError(w, r, "limits lookup failed", err)
		return
	}

	RespondSuccess(w, http.StatusOK, limitsDTO{
		DailyLimit:        l.DailyLimit,
		MonthlyLimit:      l.MonthlyLimit,
		PerTransactionMax: l.PerTransactionMax,
		PerTransactionMin: l.PerTransactionMin,
		DailyUsed:         l.DailyUsed,
		MonthlyUsed:       l.MonthlyUsed,
		DailyRemaining:    budget.Daily,
		MonthlyRemaining:  budget.Monthly,
	})
}

// respondAccountError treats an unknown account in the path as a missing
// resource rather than an unprocessable reference.
func respondAccountError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logging.FromContext(r.Context()).Warn(msg, "error", err)
	if errors.Is(err, domain.ErrAccountNotFound) {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}
	RespondDomainError(w, err)
}

package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/limits"
)

type mockAccountService struct {
	account *domain.Account
	err     error
}

func (m *mockAccountService) Open(_ context.Context, currency domain.Currency) (*domain.Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Account{ID: uuid.New(), AccountNumber: "0123456789", Currency: currency, Status: domain.AccountStatusActive}, nil
}

func (m *mockAccountService) Get(_ context.Context, _ uuid.UUID) (*domain.Account, error) {
	return m.account, m.err
}

type mockActivity struct {
	transfers    []domain.Transfer
	transactions []domain.Transaction
	limits       domain.AccountLimits
	budget       limits.Budget
	err          error

	gotLimit, gotOffset int
}

func (m *mockActivity) ListForAccount(_ context.Context, _ uuid.UUID, limit, offset int) ([]domain.Transfer, int, error) {
	m.gotLimit, m.gotOffset = limit, offset
	return m.transfers, len(m.transfers), m.err
}

func (m *mockActivity) ListTransactions(_ context.Context, _ uuid.UUID, limit, offset int) ([]domain.Transaction, int, error) {
	m.gotLimit, m.gotOffset = limit, offset
	return m.transactions, len(m.transactions), m.err
}

func (m *mockActivity) AccountLimits(_ context.Context, _ uuid.UUID) (domain.AccountLimits, limits.Budget, error) {
	return m.limits, m.budget, m.err
}

func TestAccountHandler_Open(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "opens account", body: `{"currency":"EUR"}`, wantStatus: http.StatusCreated},
		{name: "missing currency", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_FAILED"},
		{name: "unsupported currency", body: `{"currency":"JPY"}`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_FAILED"},
		{name: "invalid JSON", body: `{`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "store failure", body: `{"currency":"USD"}`, err: fmt.Errorf("db down"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewAccountHandler(&mockAccountService{err: tc.err}, &mockActivity{})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			h.Open(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			resp := decodeResponse(t, rr)
			if tc.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
			} else {
				assert.True(t, resp.Success)
			}
		})
	}
}

func TestAccountHandler_GetUnknownIsNotFound(t *testing.T) {
	h := NewAccountHandler(&mockAccountService{err: fmt.Errorf("GetAccount: %w", domain.ErrAccountNotFound)}, &mockActivity{})

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/"+id, nil)
	req.SetPathValue("id", id)
	rr := httptest.NewRecorder()
	h.Get(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAccountHandler_Pagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
		wantOffset int
	}{
		{name: "defaults", query: "", wantStatus: http.StatusOK, wantLimit: 20, wantOffset: 0},
		{name: "explicit page", query: "?limit=5&offset=10", wantStatus: http.StatusOK, wantLimit: 5, wantOffset: 10},
		{name: "limit too large", query: "?limit=500", wantStatus: http.StatusBadRequest},
		{name: "negative offset", query: "?offset=-1", wantStatus: http.StatusBadRequest},
		{name: "non-numeric limit", query: "?limit=abc", wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			activity := &mockActivity{transactions: []domain.Transaction{{ID: uuid.New(), Amount: decimal.NewFromInt(5)}}}
			h := NewAccountHandler(&mockAccountService{}, activity)

			id := uuid.NewString()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/"+id+"/transactions"+tc.query, nil)
			req.SetPathValue("id", id)
			rr := httptest.NewRecorder()
			h.Transactions(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantStatus != http.StatusOK {
				return
			}
			assert.Equal(t, tc.wantLimit, activity.gotLimit)
			assert.Equal(t, tc.wantOffset, activity.gotOffset)

			var body struct {
				Data page[transactionDTO] `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, 1, body.Data.Total)
			assert.Len(t, body.Data.Items, 1)
		})
	}
}

func TestAccountHandler_Limits(t *testing.T) {
	activity := &mockActivity{
		limits: domain.AccountLimits{
			DailyLimit:   decimal.NewFromInt(5000),
			MonthlyLimit: decimal.NewFromInt(50000),
			DailyUsed:    decimal.NewFromInt(1200),
		},
		budget: limits.Budget{Daily: decimal.NewFromInt(3800), Monthly: decimal.NewFromInt(48800)},
	}
	h := NewAccountHandler(&mockAccountService{}, activity)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/"+id+"/limits", nil)
	req.SetPathValue("id", id)
	rr := httptest.NewRecorder()
	h.Limits(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data limitsDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, decimal.NewFromInt(3800).Equal(body.Data.DailyRemaining))
	assert.True(t, decimal.NewFromInt(1200).Equal(body.Data.DailyUsed))
}

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
	"github.com/josh-kwaku/transfer-engine/internal/service/transfer"
)

type mockTransferService struct {
	submitted *transfer.Request
	transfer  *domain.Transfer
	events    []domain.TransferEvent
	err       error
}

func (m *mockTransferService) Submit(_ context.Context, req transfer.Request) (*domain.Transfer, error) {
	m.submitted = &req
	return m.transfer, m.err
}

func (m *mockTransferService) Get(_ context.Context, _ uuid.UUID) (*domain.Transfer, error) {
	return m.transfer, m.err
}

func (m *mockTransferService) History(_ context.Context, _ uuid.UUID) ([]domain.TransferEvent, error) {
	return m.events, m.err
}

func (m *mockTransferService) Cancel(_ context.Context, _ uuid.UUID, _ string) (*domain.Transfer, error) {
	return m.transfer, m.err
}

func (m *mockTransferService) Retry(_ context.Context, _ uuid.UUID, _ string) (*domain.Transfer, error) {
	return m.transfer, m.err
}

func sampleTransfer(status domain.TransferStatus) *domain.Transfer {
	dest := uuid.New()
	return &domain.Transfer{
		ID:              uuid.New(),
		SourceAccountID: uuid.New(),
		DestAccountID:   &dest,
		Type:            domain.TransferTypeInternal,
		Amount:          decimal.NewFromInt(100),
		Currency:        domain.CurrencyUSD,
		Status:          status,
	}
}

func internalTransferBody() string {
	b, _ := json.Marshal(map[string]any{
		"source_account_id": uuid.NewString(),
		"dest_account_id":   uuid.NewString(),
		"type":              "internal",
		"amount":            "100.00",
		"currency":          "USD",
	})
	return string(b)
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestTransferHandler_Create(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		transfer   *domain.Transfer
		err        error
		wantStatus int
		wantCode   string
		wantData   bool
	}{
		{
			name:       "completed transfer",
			body:       internalTransferBody(),
			transfer:   sampleTransfer(domain.TransferStatusCompleted),
			wantStatus: http.StatusCreated,
			wantData:   true,
		},
		{
			name:       "invalid JSON body",
			body:       "not-json",
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "missing required fields",
			body:       `{"amount":"10"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "business rejection returns the failed transfer",
			body:       internalTransferBody(),
			transfer:   sampleTransfer(domain.TransferStatusFailed),
			err:        fmt.Errorf("Submit: %w", domain.ErrInsufficientFunds),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INSUFFICIENT_FUNDS",
			wantData:   true,
		},
		{
			name:       "shape error carries no transfer",
			body:       internalTransferBody(),
			err:        fmt.Errorf("Submit: %w", domain.ErrSelfTransfer),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "SELF_TRANSFER_NOT_ALLOWED",
		},
		{
			name:       "pending after unavailable settlement is accepted",
			body:       internalTransferBody(),
			transfer:   sampleTransfer(domain.TransferStatusPending),
			err:        fmt.Errorf("execute: %w", domain.ErrExternalUnavailable),
			wantStatus: http.StatusAccepted,
			wantData:   true,
		},
		{
			name:       "unexpected error",
			body:       internalTransferBody(),
			err:        fmt.Errorf("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockTransferService{transfer: tc.transfer, err: tc.err}
			h := NewTransferHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			h.Create(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			resp := decodeResponse(t, rr)
			if tc.wantCode == "" {
				assert.True(t, resp.Success)
			} else {
				assert.False(t, resp.Success)
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
			}
			assert.Equal(t, tc.wantData, resp.Data != nil)
		})
	}
}

func TestTransferHandler_CreatePassesRequest(t *testing.T) {
	svc := &mockTransferService{transfer: sampleTransfer(domain.TransferStatusCompleted)}
	h := NewTransferHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(internalTransferBody()))
	rr := httptest.NewRecorder()
	h.Create(rr, req)

	require.NotNil(t, svc.submitted)
	assert.Equal(t, transfer.ActorAPI, svc.submitted.Actor)
	assert.True(t, decimal.NewFromInt(100).Equal(svc.submitted.Amount))
	assert.Equal(t, "/api/v1/transfers/"+svc.transfer.ID.String(), rr.Header().Get("Location"))
}

func TestTransferHandler_LimitDetails(t *testing.T) {
	limitErr := &limits.LimitError{
		Kind:      limits.KindDaily,
		Limit:     decimal.NewFromInt(5000),
		Requested: decimal.NewFromInt(200),
		Used:      decimal.NewFromInt(4900),
	}
	svc := &mockTransferService{
		transfer: sampleTransfer(domain.TransferStatusFailed),
		err:      fmt.Errorf("execute: %w", limitErr),
	}
	h := NewTransferHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(internalTransferBody()))
	rr := httptest.NewRecorder()
	h.Create(rr, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	resp := decodeResponse(t, rr)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TRANSFER_LIMIT_EXCEEDED", resp.Error.Code)
	assert.False(t, resp.Error.Retryable)

	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "daily", details["kind"])
	assert.Equal(t, "4900", details["used"])
}

func TestTransferHandler_Get(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		err        error
		wantStatus int
	}{
		{name: "found", id: uuid.NewString(), wantStatus: http.StatusOK},
		{name: "malformed id", id: "not-a-uuid", wantStatus: http.StatusNotFound},
		{name: "unknown transfer", id: uuid.NewString(), err: fmt.Errorf("Get: %w", domain.ErrNotFound), wantStatus: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockTransferService{transfer: sampleTransfer(domain.TransferStatusCompleted), err: tc.err}
			h := NewTransferHandler(svc)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers/"+tc.id, nil)
			req.SetPathValue("id", tc.id)
			rr := httptest.NewRecorder()
			h.Get(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
		})
	}
}

func TestTransferHandler_Cancel(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "cancelled", wantStatus: http.StatusOK},
		{name: "not cancellable", err: domain.ErrTransferNotCancellable, wantStatus: http.StatusConflict, wantCode: "TRANSFER_NOT_CANCELLABLE"},
		{name: "lock contention", err: domain.ErrConcurrencyConflict, wantStatus: http.StatusConflict, wantCode: "ACCOUNT_BUSY"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockTransferService{transfer: sampleTransfer(domain.TransferStatusCancelled), err: tc.err}
			h := NewTransferHandler(svc)

			id := uuid.NewString()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/"+id+"/cancel", nil)
			req.SetPathValue("id", id)
			rr := httptest.NewRecorder()
			h.Cancel(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			resp := decodeResponse(t, rr)
			if tc.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestTransferHandler_Retry(t *testing.T) {
	t.Run("not pending", func(t *testing.T) {
		svc := &mockTransferService{transfer: sampleTransfer(domain.TransferStatusCompleted), err: domain.ErrTransferNotPending}
		h := NewTransferHandler(svc)

		id := uuid.NewString()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/"+id+"/retry", nil)
		req.SetPathValue("id", id)
		rr := httptest.NewRecorder()
		h.Retry(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
		resp := decodeResponse(t, rr)
		assert.Nil(t, resp.Data)
	})

	t.Run("still unavailable", func(t *testing.T) {
		svc := &mockTransferService{transfer: sampleTransfer(domain.TransferStatusPending), err: domain.ErrExternalUnavailable}
		h := NewTransferHandler(svc)

		id := uuid.NewString()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/"+id+"/retry", nil)
		req.SetPathValue("id", id)
		rr := httptest.NewRecorder()
		h.Retry(rr, req)

		assert.Equal(t, http.StatusAccepted, rr.Code)
	})
}

func TestTransferHandler_Events(t *testing.T) {
	svc := &mockTransferService{events: []domain.TransferEvent{
		{EventType: domain.TransferEventTypeCreated, Actor: transfer.ActorAPI},
		{EventType: domain.TransferEventTypeCompleted, Actor: transfer.ActorAPI},
	}}
	h := NewTransferHandler(svc)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers/"+id+"/events", nil)
	req.SetPathValue("id", id)
	rr := httptest.NewRecorder()
	h.Events(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data []transferEventDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "created", body.Data[0].EventType)
}

package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
)

func externalTransfer() *domain.Transfer {
	acct := "GB29NWBK60161331926819"
	return &domain.Transfer{
		ID:                uuid.New(),
		SourceAccountID:   uuid.New(),
		DestAccountNumber: &acct,
		Type:              domain.TransferTypeExternal,
		Amount:            decimal.RequireFromString("125.50"),
		Currency:          domain.CurrencyGBP,
		Status:            domain.TransferStatusProcessing,
	}
}

func TestSubmitExternal(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantOutcome Outcome
		wantRef     string
		wantReason  string
		wantErr     error
	}{
		{
			name:        "accepted",
			status:      http.StatusOK,
			body:        `{"status":"accepted","reference":"STL-123"}`,
			wantOutcome: OutcomeAccepted,
			wantRef:     "STL-123",
		},
		{
			name:        "declined",
			status:      http.StatusUnprocessableEntity,
			body:        `{"status":"declined","reason":"beneficiary account closed"}`,
			wantOutcome: OutcomeDeclined,
			wantReason:  "beneficiary account closed",
		},
		{
			name:        "client error without json",
			status:      http.StatusBadRequest,
			body:        `bad request`,
			wantOutcome: OutcomeDeclined,
			wantReason:  "settlement network rejected the request (http 400)",
		},
		{
			name:        "client error with unknown status",
			status:      http.StatusNotFound,
			body:        `{"error":"no such route"}`,
			wantOutcome: OutcomeDeclined,
			wantReason:  "settlement network rejected the request (http 404)",
		},
		{
			name:        "rate limited",
			status:      http.StatusTooManyRequests,
			body:        `slow down`,
			wantOutcome: OutcomeUnavailable,
			wantErr:     domain.ErrExternalUnavailable,
		},
		{
			name:        "server error",
			status:      http.StatusBadGateway,
			body:        `upstream down`,
			wantOutcome: OutcomeUnavailable,
			wantErr:     domain.ErrExternalUnavailable,
		},
		{
			name:        "garbage body",
			status:      http.StatusOK,
			body:        `not json`,
			wantOutcome: OutcomeUnavailable,
			wantErr:     domain.ErrExternalUnavailable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			transfer := externalTransfer()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/settle", r.URL.Path)
				var req Request
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, transfer.ID, req.TransferID)
				assert.True(t, req.Amount.Equal(transfer.Amount))
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, time.Second, 0, 1)
			res, err := c.SubmitExternal(context.Background(), transfer)

			assert.Equal(t, tc.wantOutcome, res.Outcome)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantRef, res.Reference)
			if tc.wantReason != "" {
				assert.Equal(t, tc.wantReason, res.Reason)
			}
		})
	}
}

func TestSubmitExternal_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50*time.Millisecond, 0, 1)
	res, err := c.SubmitExternal(context.Background(), externalTransfer())

	require.ErrorIs(t, err, domain.ErrExternalUnavailable)
	assert.Equal(t, OutcomeUnavailable, res.Outcome)
}

func TestSubmitExternal_MissingAccountNumber(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", time.Second, 0, 1)
	transfer := externalTransfer()
	transfer.DestAccountNumber = nil

	_, err := c.SubmitExternal(context.Background(), transfer)

	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

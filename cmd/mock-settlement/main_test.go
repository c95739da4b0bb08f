package main

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/settlement"
)

func TestMockSettlement_WithClient(t *testing.T) {
	srv := httptest.NewServer(newMux(0))
	t.Cleanup(srv.Close)

	client := settlement.NewClient(srv.URL, 2*time.Second, 0, 1)

	tests := []struct {
		name        string
		account     string
		wantOutcome settlement.Outcome
		wantErr     error
	}{
		{name: "accepted", account: "GB29NWBK60161331926819", wantOutcome: settlement.OutcomeAccepted},
		{name: "declined", account: "GB29NWBK60161331920000", wantOutcome: settlement.OutcomeDeclined},
		{name: "unavailable", account: "GB29NWBK60161331929999", wantOutcome: settlement.OutcomeUnavailable, wantErr: domain.ErrExternalUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			account := tc.account
			res, err := client.SubmitExternal(context.Background(), &domain.Transfer{
				ID:                uuid.New(),
				Type:              domain.TransferTypeExternal,
				DestAccountNumber: &account,
				Amount:            decimal.NewFromInt(25),
				Currency:          domain.CurrencyUSD,
			})
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.wantOutcome, res.Outcome)
			if tc.wantOutcome == settlement.OutcomeAccepted {
				assert.NotEmpty(t, res.Reference)
			}
		})
	}
}

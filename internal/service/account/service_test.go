package account

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/transfer-engine/internal/clock"
	"github.com/josh-kwaku/transfer-engine/internal/domain"
	"github.com/josh-kwaku/transfer-engine/internal/testutil"
)

func TestOpen(t *testing.T) {
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	store := testutil.NewMemStore()
	svc := NewService(store, clock.NewManual(now))

	tests := []struct {
		name     string
		currency domain.Currency
		wantErr  error
	}{
		{name: "usd", currency: domain.CurrencyUSD},
		{name: "gbp", currency: domain.CurrencyGBP},
		{name: "unsupported", currency: "JPY", wantErr: domain.ErrInvalidCurrency},
		{name: "empty", currency: "", wantErr: domain.ErrInvalidCurrency},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, err := svc.Open(context.Background(), tc.currency)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.currency, a.Currency)
			assert.True(t, a.Balance.IsZero())
			assert.Equal(t, domain.AccountStatusActive, a.Status)
			assert.Len(t, a.AccountNumber, 10)
			assert.Equal(t, now, a.CreatedAt)

			got, err := svc.Get(context.Background(), a.ID)
			require.NoError(t, err)
			assert.Equal(t, a.AccountNumber, got.AccountNumber)
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	svc := NewService(testutil.NewMemStore(), clock.System{})

	_, err := svc.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestGenerateAccountNumber(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		n, err := generateAccountNumber()
		require.NoError(t, err)
		require.Len(t, n, 10)
		for _, c := range n {
			assert.True(t, c >= '0' && c <= '9')
		}
		seen[n] = true
	}
	assert.Greater(t, len(seen), 45)
}

package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/transfer-engine/internal/domain"
)

func TestCreate(t *testing.T) {
	// Saturday.
	now := time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)

	t.Run("monthly without a day starts now", func(t *testing.T) {
		h := newHarness(t, now)
		a := h.store.AddAccount(domain.CurrencyEUR, "100")
		b := h.store.AddAccount(domain.CurrencyEUR, "0")

		st := h.schedule(t, a.ID, b.ID, "25", domain.RecurrenceMonthly, nil)

		assert.Nil(t, st.RecurrenceDay)
		assert.Equal(t, now, st.NextExecutionDate)
		assert.Equal(t, domain.CurrencyEUR, st.Currency)
		assert.Equal(t, domain.ScheduleStatusActive, st.Status)
		assert.Equal(t, *st, h.store.Schedule(st.ID))
	})

	t.Run("weekly aligns to the weekday", func(t *testing.T) {
		h := newHarness(t, now)
		a := h.store.AddAccount(domain.CurrencyUSD, "100")
		b := h.store.AddAccount(domain.CurrencyUSD, "0")

		st := h.schedule(t, a.ID, b.ID, "25", domain.RecurrenceWeekly, intPtr(int(time.Monday)))

		assert.Equal(t, time.Date(2025, 3, 17, 9, 30, 0, 0, time.UTC), st.NextExecutionDate)
	})

	t.Run("monthly day already passed this month", func(t *testing.T) {
		h := newHarness(t, now)
		a := h.store.AddAccount(domain.CurrencyUSD, "100")
		b := h.store.AddAccount(domain.CurrencyUSD, "0")

		st := h.schedule(t, a.ID, b.ID, "25", domain.RecurrenceMonthly, intPtr(5))

		assert.Equal(t, time.Date(2025, 4, 5, 9, 30, 0, 0, time.UTC), st.NextExecutionDate)
	})

	t.Run("external template", func(t *testing.T) {
		h := newHarness(t, now)
		a := h.store.AddAccount(domain.CurrencyGBP, "100")
		number := "GB29NWBK60161331926819"
		start := now.AddDate(0, 0, 3)

		st, err := h.svc.Create(context.Background(), CreateRequest{
			SourceAccountID:   a.ID,
			DestAccountNumber: &number,
			Type:              domain.TransferTypeExternal,
			Amount:            decimal.NewFromInt(40),
			RecurrenceType:    domain.RecurrenceOneTime,
			StartDate:         start,
		})

		require.NoError(t, err)
		assert.Equal(t, start, st.NextExecutionDate)
		assert.Nil(t, st.DestAccountID)
	})
}

func TestCreate_Rejections(t *testing.T) {
	now := time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)
	h := newHarness(t, now)
	a := h.store.AddAccount(domain.CurrencyUSD, "100")
	b := h.store.AddAccount(domain.CurrencyUSD, "0")
	eur := h.store.AddAccount(domain.CurrencyEUR, "0")
	frozen := h.store.AddAccount(domain.CurrencyUSD, "100")
	h.store.SetAccountStatus(frozen.ID, domain.AccountStatusFrozen)
	missing := uuid.New()
	past := now.AddDate(0, 0, -1)

	base := func() CreateRequest {
		return CreateRequest{
			SourceAccountID: a.ID,
			DestAccountID:   &b.ID,
			Type:            domain.TransferTypeInternal,
			Amount:          decimal.NewFromInt(10),
			RecurrenceType:  domain.RecurrenceDaily,
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *CreateRequest)
		wantErr error
	}{
		{name: "zero amount", mutate: func(r *CreateRequest) { r.Amount = decimal.Zero }, wantErr: domain.ErrInvalidAmount},
		{name: "self transfer", mutate: func(r *CreateRequest) { r.DestAccountID = &a.ID }, wantErr: domain.ErrSelfTransfer},
		{name: "unknown recurrence", mutate: func(r *CreateRequest) { r.RecurrenceType = "hourly" }, wantErr: domain.ErrInvalidRecurrence},
		{
			name: "day of month out of range",
			mutate: func(r *CreateRequest) {
				r.RecurrenceType = domain.RecurrenceMonthly
				r.RecurrenceDay = intPtr(32)
			},
			wantErr: domain.ErrInvalidRecurrence,
		},
		{
			name: "weekday out of range",
			mutate: func(r *CreateRequest) {
				r.RecurrenceType = domain.RecurrenceWeekly
				r.RecurrenceDay = intPtr(7)
			},
			wantErr: domain.ErrInvalidRecurrence,
		},
		{name: "non-positive max executions", mutate: func(r *CreateRequest) { r.MaxExecutions = intPtr(0) }, wantErr: domain.ErrInvalidRequest},
		{name: "end before start", mutate: func(r *CreateRequest) { r.EndDate = &past }, wantErr: domain.ErrInvalidRequest},
		{name: "unknown source", mutate: func(r *CreateRequest) { r.SourceAccountID = missing }, wantErr: domain.ErrAccountNotFound},
		{name: "unknown destination", mutate: func(r *CreateRequest) { r.DestAccountID = &missing }, wantErr: domain.ErrAccountNotFound},
		{name: "frozen source", mutate: func(r *CreateRequest) { r.SourceAccountID = frozen.ID }, wantErr: domain.ErrAccountInactive},
		{name: "cross currency", mutate: func(r *CreateRequest) { r.DestAccountID = &eur.ID }, wantErr: domain.ErrCurrencyMismatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := base()
			tc.mutate(&req)
			st, err := h.svc.Create(context.Background(), req)
			require.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, st)
		})
	}

	list, total, err := h.svc.ListForAccount(context.Background(), a.ID, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
}

func TestStatusCommands(t *testing.T) {
	now := time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)
	h := newHarness(t, now)
	ctx := context.Background()
	a := h.store.AddAccount(domain.CurrencyUSD, "100")
	b := h.store.AddAccount(domain.CurrencyUSD, "0")
	st := h.schedule(t, a.ID, b.ID, "10", domain.RecurrenceDaily, nil)

	paused, err := h.svc.Pause(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleStatusPaused, paused.Status)

	again, err := h.svc.Pause(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, paused.Version, again.Version, "pausing twice does not write")

	resumed, err := h.svc.Resume(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleStatusActive, resumed.Status)
	assert.Equal(t, st.NextExecutionDate, resumed.NextExecutionDate)

	cancelled, err := h.svc.Cancel(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleStatusCancelled, cancelled.Status)

	_, err = h.svc.Resume(ctx, st.ID)
	require.ErrorIs(t, err, domain.ErrScheduleTerminal)
	_, err = h.svc.Pause(ctx, st.ID)
	require.ErrorIs(t, err, domain.ErrScheduleTerminal)
	_, err = h.svc.Cancel(ctx, st.ID)
	require.ErrorIs(t, err, domain.ErrScheduleTerminal)

	_, err = h.svc.Pause(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)

	got, err := h.svc.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleStatusCancelled, got.Status)
}

func TestListForAccount(t *testing.T) {
	now := time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)
	h := newHarness(t, now)
	a := h.store.AddAccount(domain.CurrencyUSD, "100")
	b := h.store.AddAccount(domain.CurrencyUSD, "0")
	for range 3 {
		h.schedule(t, a.ID, b.ID, "10", domain.RecurrenceDaily, nil)
	}

	list, total, err := h.svc.ListForAccount(context.Background(), a.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, list, 2)

	_, _, err = h.svc.ListForAccount(context.Background(), uuid.New(), 10, 0)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
)

func TestLoyaltyLedger_Debit(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		balance     int64
		debit       int64
		wantBalance int64
		wantEntries int
	}{
		{name: "within balance", balance: 100, debit: 30, wantBalance: 70, wantEntries: 1},
		{name: "exact balance", balance: 30, debit: 30, wantBalance: 0, wantEntries: 1},
		{name: "clamps at zero", balance: 20, debit: 50, wantBalance: 0, wantEntries: 1},
		{name: "empty balance records nothing", balance: 0, debit: 10, wantBalance: 0, wantEntries: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			u := env.user(t, tt.balance)

			balance, err := env.loyalty.Debit(ctx, u.ID, tt.debit, models.ReasonAdjustment)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBalance, balance)
			assert.Equal(t, tt.wantBalance, env.balance(t, u.ID))

			history, err := env.loyalty.History(ctx, u.ID, 0)
			require.NoError(t, err)
			assert.Len(t, history, tt.wantEntries)
			if tt.wantEntries > 0 {
				assert.Equal(t, tt.wantBalance-tt.balance, history[0].Delta)
				assert.Equal(t, tt.wantBalance, history[0].BalanceAfter)
			}
		})
	}
}

func TestLoyaltyLedger_Credit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, 5)

	balance, err := env.loyalty.Credit(ctx, u.ID, 45, models.ReasonAdjustment)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	got, err := env.loyalty.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got)
}

func TestLoyaltyLedger_RejectsNonPositivePoints(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, 10)

	for _, points := range []int64{0, -5} {
		_, err := env.loyalty.Credit(ctx, u.ID, points, models.ReasonAdjustment)
		assert.ErrorIs(t, err, models.ErrInvalidPoints)

		_, err = env.loyalty.Debit(ctx, u.ID, points, models.ReasonAdjustment)
		assert.ErrorIs(t, err, models.ErrInvalidPoints)
	}

	assert.Equal(t, int64(10), env.balance(t, u.ID))
}

func TestLoyaltyLedger_UnknownUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.loyalty.Credit(ctx, 404, 10, models.ReasonAdjustment)
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	_, err = env.loyalty.Balance(ctx, 404)
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	_, err = env.loyalty.History(ctx, 404, 10)
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestLoyaltyLedger_HistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, 0)

	_, err := env.loyalty.Credit(ctx, u.ID, 10, models.ReasonAdjustment)
	require.NoError(t, err)
	_, err = env.loyalty.Credit(ctx, u.ID, 20, models.ReasonAdjustment)
	require.NoError(t, err)
	_, err = env.loyalty.Debit(ctx, u.ID, 5, models.ReasonAdjustment)
	require.NoError(t, err)

	history, err := env.loyalty.History(ctx, u.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(-5), history[0].Delta)
	assert.Equal(t, int64(25), history[0].BalanceAfter)
	assert.Equal(t, int64(20), history[1].Delta)
}

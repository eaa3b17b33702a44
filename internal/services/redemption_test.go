package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
)

func TestRedemptionEngine_Redeem(t *testing.T) {
	ctx := context.Background()

	t.Run("debits the current cost and records a pending redemption", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.user(t, 800)
		reward := env.store.SeedReward(models.Reward{Name: "Backstage pass", PointsRequired: 500})

		red, err := env.redemption.Redeem(ctx, u.ID, reward.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RedemptionPending, red.Status)
		assert.Equal(t, int64(500), red.PointsSpent)
		assert.Equal(t, int64(300), env.balance(t, u.ID))

		events := env.store.OutboxEvents()
		require.Len(t, events, 1)
		assert.Equal(t, models.EventRedemptionCreated, events[0].EventType)
		var payload models.RedemptionEventPayload
		require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
		assert.Equal(t, red.ID, payload.RedemptionID)
	})

	t.Run("insufficient points leaves the balance unchanged", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.user(t, 300)
		reward := env.store.SeedReward(models.Reward{Name: "Backstage pass", PointsRequired: 500})

		_, err := env.redemption.Redeem(ctx, u.ID, reward.ID)
		assert.ErrorIs(t, err, models.ErrInsufficientPoints)
		assert.Equal(t, int64(300), env.balance(t, u.ID))
		assert.Equal(t, 0, env.store.Counts()["redemptions"])
		assert.Equal(t, 0, env.store.Counts()["loyalty_entries"])
	})

	t.Run("expired reward", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.user(t, 1000)
		expired := fixedNow.Add(-time.Hour)
		reward := env.store.SeedReward(models.Reward{Name: "Early bird", PointsRequired: 100, ExpiresAt: &expired})

		_, err := env.redemption.Redeem(ctx, u.ID, reward.ID)
		assert.ErrorIs(t, err, models.ErrRewardExpired)
		assert.Equal(t, int64(1000), env.balance(t, u.ID))
	})

	t.Run("inactive reward", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.user(t, 1000)
		reward := env.store.SeedReward(models.Reward{Name: "Retired", PointsRequired: 100, Status: models.RewardInactive})

		_, err := env.redemption.Redeem(ctx, u.ID, reward.ID)
		assert.ErrorIs(t, err, models.ErrRewardInactive)
	})

	t.Run("unknown reward", func(t *testing.T) {
		env := newTestEnv(t)
		u := env.user(t, 1000)

		_, err := env.redemption.Redeem(ctx, u.ID, 99)
		assert.ErrorIs(t, err, models.ErrRewardNotFound)
	})
}

func TestRedemptionEngine_BalanceMatchesRecords(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, 250)
	reward := env.store.SeedReward(models.Reward{Name: "Poster", PointsRequired: 100})

	var redeemed int
	for i := 0; i < 4; i++ {
		if _, err := env.redemption.Redeem(ctx, u.ID, reward.ID); err == nil {
			redeemed++
		} else {
			assert.ErrorIs(t, err, models.ErrInsufficientPoints)
		}
	}

	assert.Equal(t, 2, redeemed)
	assert.Equal(t, redeemed, env.store.Counts()["redemptions"])
	assert.Equal(t, int64(250-100*redeemed), env.balance(t, u.ID))
}

func TestRedemptionEngine_CancelAndFulfill(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, 500)
	stranger := env.user(t, 0)
	reward := env.store.SeedReward(models.Reward{Name: "Drink voucher", PointsRequired: 200})

	first, err := env.redemption.Redeem(ctx, u.ID, reward.ID)
	require.NoError(t, err)
	second, err := env.redemption.Redeem(ctx, u.ID, reward.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100), env.balance(t, u.ID))

	_, err = env.redemption.Cancel(ctx, stranger.ID, first.ID)
	assert.ErrorIs(t, err, models.ErrRedemptionNotFound)

	cancelled, err := env.redemption.Cancel(ctx, u.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RedemptionCancelled, cancelled.Status)
	assert.Equal(t, int64(300), env.balance(t, u.ID))

	_, err = env.redemption.Cancel(ctx, u.ID, first.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Equal(t, int64(300), env.balance(t, u.ID))

	fulfilled, err := env.redemption.Fulfill(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RedemptionFulfilled, fulfilled.Status)
	assert.Equal(t, int64(300), env.balance(t, u.ID))

	_, err = env.redemption.Cancel(ctx, u.ID, second.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	list, err := env.redemption.List(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
)

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Verify(ctx context.Context, reference string) (*GatewayTransaction, error) {
	args := m.Called(ctx, reference)
	txn, _ := args.Get(0).(*GatewayTransaction)
	return txn, args.Error(1)
}

func settled(reference string, status models.PaymentStatus, amount int64) *GatewayTransaction {
	return &GatewayTransaction{Reference: reference, Status: status, Amount: amount}
}

func TestPaymentReconciler_ConfirmVerified(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, 10)
	ticket := env.ticket(t, 100, 10, 5)
	product := env.product(t, 50, 10, 2)

	result := env.checkedOut(t, u.ID, map[models.ItemRef]int{ticket: 2, product: 3})

	first, err := env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{Method: "card", Reference: "ref-0001"})
	require.NoError(t, err)
	assert.False(t, first.AlreadyProcessed)
	assert.Equal(t, models.PaymentVerified, first.Payment.Status)
	require.NotNil(t, first.Payment.VerifiedAt)
	assert.Equal(t, fixedNow, *first.Payment.VerifiedAt)
	assert.Equal(t, models.OrderPaid, first.Order.Status)
	assert.Equal(t, int64(16), first.PointsAwarded)
	assert.Equal(t, int64(26), env.balance(t, u.ID))

	second, err := env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{Method: "card", Reference: "ref-0001"})
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, int64(0), second.PointsAwarded)
	assert.Equal(t, first.Payment.Status, second.Payment.Status)
	assert.Equal(t, first.Order.Status, second.Order.Status)
	assert.Equal(t, int64(26), env.balance(t, u.ID))

	history, err := env.loyalty.History(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.ReasonAccrual, history[0].Reason)
	require.NotNil(t, history[0].IdempotencyKey)
	assert.Equal(t, models.AccrualKey(result.OrderID), *history[0].IdempotencyKey)

	// stock stays sold once paid
	assert.Equal(t, 8, env.stock(t, ticket).QuantityAvailable)
}

func TestPaymentReconciler_ConfirmFailed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, 0)
	ticket := env.ticket(t, 100, 4, 5)

	result := env.checkedOut(t, u.ID, map[models.ItemRef]int{ticket: 3})
	require.Equal(t, 1, env.stock(t, ticket).QuantityAvailable)

	res, err := env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{Status: models.PaymentFailed})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, res.Payment.Status)
	assert.Equal(t, models.OrderCancelled, res.Order.Status)

	item := env.stock(t, ticket)
	assert.Equal(t, 4, item.QuantityAvailable)
	assert.Equal(t, 0, item.QuantitySold)
	assert.Equal(t, int64(0), env.balance(t, u.ID))

	again, err := env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{Status: models.PaymentFailed})
	require.NoError(t, err)
	assert.True(t, again.AlreadyProcessed)
	assert.Equal(t, 4, env.stock(t, ticket).QuantityAvailable)

	_, err = env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{Status: models.PaymentVerified})
	assert.ErrorIs(t, err, models.ErrPaymentAlreadyProcessed)
}

func TestPaymentReconciler_ConfirmValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, 0)
	stranger := env.user(t, 0)
	ticket := env.ticket(t, 100, 4, 0)
	result := env.checkedOut(t, u.ID, map[models.ItemRef]int{ticket: 1})

	_, err := env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{Status: models.PaymentRefunded})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = env.payments.Confirm(ctx, stranger.ID, result.PaymentID, ConfirmRequest{})
	assert.ErrorIs(t, err, models.ErrPaymentNotFound)

	_, err = env.payments.Confirm(ctx, u.ID, result.PaymentID+99, ConfirmRequest{})
	assert.ErrorIs(t, err, models.ErrPaymentNotFound)
}

func TestPaymentReconciler_GatewayVerification(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, verifier GatewayVerifier) (*testEnv, models.User, *CheckoutResult) {
		env := newTestEnv(t)
		env.payments = NewPaymentReconciler(env.store, verifier, zap.NewNop())
		env.payments.now = func() time.Time { return fixedNow }
		u := env.user(t, 0)
		ticket := env.ticket(t, 100, 4, 1)
		return env, u, env.checkedOut(t, u.ID, map[models.ItemRef]int{ticket: 1})
	}

	t.Run("settled at the gateway", func(t *testing.T) {
		verifier := new(mockVerifier)
		verifier.On("Verify", mock.Anything, "PSK-123").Return(settled("PSK-123", models.PaymentVerified, 100), nil).Once()
		env, u, result := setup(t, verifier)

		res, err := env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{Reference: "PSK-123"})
		require.NoError(t, err)
		assert.Equal(t, models.PaymentVerified, res.Payment.Status)
		assert.Equal(t, "PSK-123", res.Payment.GatewayReference)
		assert.Equal(t, int64(1), env.balance(t, u.ID))
		verifier.AssertExpectations(t)
	})

	t.Run("gateway outcome overrides the caller", func(t *testing.T) {
		verifier := new(mockVerifier)
		verifier.On("Verify", mock.Anything, "PSK-123").Return(settled("PSK-123", models.PaymentFailed, 100), nil).Once()
		env, u, result := setup(t, verifier)

		res, err := env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{Reference: "PSK-123"})
		require.NoError(t, err)
		assert.Equal(t, models.PaymentFailed, res.Payment.Status)
		verifier.AssertExpectations(t)
	})

	t.Run("pending at the gateway", func(t *testing.T) {
		verifier := new(mockVerifier)
		verifier.On("Verify", mock.Anything, "PSK-123").Return(settled("PSK-123", models.PaymentPending, 100), nil)
		env, u, result := setup(t, verifier)

		_, err := env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{Reference: "PSK-123"})
		assert.ErrorIs(t, err, models.ErrPaymentNotSettled)

		details, err := env.checkout.GetOrder(ctx, u.ID, result.OrderID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPending, details.Payment.Status)
	})

	t.Run("gateway down", func(t *testing.T) {
		verifier := new(mockVerifier)
		verifier.On("Verify", mock.Anything, "PSK-123").Return(nil, errors.New("connection refused"))
		env, u, result := setup(t, verifier)

		_, err := env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{Reference: "PSK-123"})
		assert.ErrorIs(t, err, models.ErrGatewayUnavailable)
		assert.Equal(t, int64(0), env.balance(t, u.ID))
	})

	t.Run("verified signal without a reference", func(t *testing.T) {
		verifier := new(mockVerifier)
		env, u, result := setup(t, verifier)

		_, err := env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{})
		assert.ErrorIs(t, err, models.ErrReferenceRequired)
		_, err = env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{Method: "card", Reference: "   "})
		assert.ErrorIs(t, err, models.ErrReferenceRequired)
		verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)

		details, err := env.checkout.GetOrder(ctx, u.ID, result.OrderID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPending, details.Payment.Status)
		assert.Equal(t, models.OrderPending, details.Order.Status)
		assert.Equal(t, int64(0), env.balance(t, u.ID))
	})

	t.Run("buyer may abandon without a reference", func(t *testing.T) {
		verifier := new(mockVerifier)
		env, u, result := setup(t, verifier)

		res, err := env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{Status: models.PaymentFailed})
		require.NoError(t, err)
		assert.Equal(t, models.PaymentFailed, res.Payment.Status)
		verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	})

	t.Run("settled amount must match the order total", func(t *testing.T) {
		verifier := new(mockVerifier)
		verifier.On("Verify", mock.Anything, "PSK-cheap").Return(settled("PSK-cheap", models.PaymentVerified, 1), nil)
		env, u, result := setup(t, verifier)

		_, err := env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{Reference: "PSK-cheap"})
		assert.ErrorIs(t, err, models.ErrAmountMismatch)

		details, err := env.checkout.GetOrder(ctx, u.ID, result.OrderID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPending, details.Payment.Status)
		assert.Empty(t, details.Payment.GatewayReference)
		assert.Equal(t, int64(0), env.balance(t, u.ID))
	})

	t.Run("one transaction settles one payment", func(t *testing.T) {
		verifier := new(mockVerifier)
		verifier.On("Verify", mock.Anything, "PSK-123").Return(settled("PSK-123", models.PaymentVerified, 100), nil)
		env, u, first := setup(t, verifier)

		ticket := env.ticket(t, 100, 4, 1)
		second := env.checkedOut(t, u.ID, map[models.ItemRef]int{ticket: 1})

		_, err := env.payments.Confirm(ctx, u.ID, first.PaymentID, ConfirmRequest{Reference: "PSK-123"})
		require.NoError(t, err)

		_, err = env.payments.Confirm(ctx, u.ID, second.PaymentID, ConfirmRequest{Reference: "PSK-123"})
		assert.ErrorIs(t, err, models.ErrReferenceInUse)

		details, err := env.checkout.GetOrder(ctx, u.ID, second.OrderID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPending, details.Payment.Status)
		assert.Equal(t, int64(1), env.balance(t, u.ID))

		// replaying the bound reference on its own payment is still a no-op
		again, err := env.payments.Confirm(ctx, u.ID, first.PaymentID, ConfirmRequest{Reference: "PSK-123"})
		require.NoError(t, err)
		assert.True(t, again.AlreadyProcessed)
	})

	t.Run("a settled payment keeps its reference", func(t *testing.T) {
		verifier := new(mockVerifier)
		verifier.On("Verify", mock.Anything, "PSK-123").Return(settled("PSK-123", models.PaymentVerified, 100), nil)
		verifier.On("Verify", mock.Anything, "PSK-456").Return(settled("PSK-456", models.PaymentVerified, 100), nil)
		env, u, result := setup(t, verifier)

		_, err := env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{Reference: "PSK-123"})
		require.NoError(t, err)

		_, err = env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{Reference: "PSK-456"})
		assert.ErrorIs(t, err, models.ErrReferenceInUse)
	})

	t.Run("no verifier trusts the caller", func(t *testing.T) {
		env, u, result := setup(t, nil)

		res, err := env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{})
		require.NoError(t, err)
		assert.Equal(t, models.PaymentVerified, res.Payment.Status)
		assert.Empty(t, res.Payment.GatewayReference)
	})
}

func TestPaymentReconciler_AccrualUsesCheckoutRate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, 0)
	rerated := env.ticket(t, 100, 5, 5)
	withdrawn := env.product(t, 50, 5, 3)

	result := env.checkedOut(t, u.ID, map[models.ItemRef]int{rerated: 2, withdrawn: 1})

	// catalog changes after checkout must not touch the order's accrual
	item := env.stock(t, rerated)
	item.PointsEarnedPerUnit = 50
	env.store.SeedCatalogItem(item)
	item = env.stock(t, withdrawn)
	item.Deleted = true
	env.store.SeedCatalogItem(item)

	res, err := env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(13), res.PointsAwarded)
	assert.Equal(t, int64(13), env.balance(t, u.ID))

	for _, line := range res.Order.Items {
		switch line.Item {
		case rerated:
			assert.Equal(t, 5, line.PointsPerUnit)
		case withdrawn:
			assert.Equal(t, 3, line.PointsPerUnit)
		}
	}
}

func TestPaymentReconciler_Refund(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, 0)
	ticket := env.ticket(t, 100, 5, 10)

	result := env.checkedOut(t, u.ID, map[models.ItemRef]int{ticket: 2})

	_, err := env.payments.Refund(ctx, u.ID, result.PaymentID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(20), env.balance(t, u.ID))

	// part of the accrual has already been spent
	_, err = env.loyalty.Debit(ctx, u.ID, 15, models.ReasonAdjustment)
	require.NoError(t, err)

	res, err := env.payments.Refund(ctx, u.ID, result.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, res.Payment.Status)
	assert.Equal(t, models.OrderRefunded, res.Order.Status)
	assert.Equal(t, int64(-5), res.PointsAwarded)
	assert.Equal(t, int64(0), env.balance(t, u.ID))

	item := env.stock(t, ticket)
	assert.Equal(t, 5, item.QuantityAvailable)
	assert.Equal(t, 0, item.QuantitySold)

	again, err := env.payments.Refund(ctx, u.ID, result.PaymentID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyProcessed)
	assert.Equal(t, 5, env.stock(t, ticket).QuantityAvailable)
}

func TestPaymentReconciler_Fulfill(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, 0)
	ticket := env.ticket(t, 100, 5, 0)

	result := env.checkedOut(t, u.ID, map[models.ItemRef]int{ticket: 1})

	_, err := env.payments.Fulfill(ctx, result.OrderID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = env.payments.Confirm(ctx, u.ID, result.PaymentID, ConfirmRequest{})
	require.NoError(t, err)

	order, err := env.payments.Fulfill(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFulfilled, order.Status)

	// fulfilled orders can still be refunded
	res, err := env.payments.Refund(ctx, u.ID, result.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderRefunded, res.Order.Status)

	var types []string
	for _, e := range env.store.OutboxEvents() {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{
		models.EventOrderCreated,
		models.EventOrderPaid,
		models.EventOrderFulfilled,
		models.EventOrderRefunded,
	}, types)
}

package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/repositories/memory"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	store      *memory.Store
	inventory  *InventoryLedger
	carts      *CartManager
	checkout   *OrderAssembler
	payments   *PaymentReconciler
	loyalty    *LoyaltyLedger
	redemption *RedemptionEngine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.New(memory.WithClock(func() time.Time { return fixedNow }))
	logger := zap.NewNop()

	env := &testEnv{
		store:      store,
		inventory:  NewInventoryLedger(store, logger),
		carts:      NewCartManager(store, logger),
		checkout:   NewOrderAssembler(store, logger),
		payments:   NewPaymentReconciler(store, nil, logger),
		loyalty:    NewLoyaltyLedger(store, logger),
		redemption: NewRedemptionEngine(store, logger),
	}
	env.checkout.now = func() time.Time { return fixedNow }
	env.payments.now = func() time.Time { return fixedNow }
	env.redemption.now = func() time.Time { return fixedNow }

	return env
}

func (e *testEnv) user(t *testing.T, points int64) models.User {
	t.Helper()
	return e.store.SeedUser(models.User{Email: "buyer@example.com", LoyaltyPoints: points})
}

func (e *testEnv) ticket(t *testing.T, price int64, available, pointsPerUnit int) models.ItemRef {
	t.Helper()
	item := e.store.SeedCatalogItem(models.CatalogItem{
		Ref:                 models.ItemRef{Type: models.ItemTicket},
		Name:                "General Admission",
		UnitPrice:           price,
		QuantityAvailable:   available,
		PointsEarnedPerUnit: pointsPerUnit,
	})
	return item.Ref
}

func (e *testEnv) product(t *testing.T, price int64, available, pointsPerUnit int) models.ItemRef {
	t.Helper()
	item := e.store.SeedCatalogItem(models.CatalogItem{
		Ref:                 models.ItemRef{Type: models.ItemProduct},
		Name:                "Tour T-Shirt",
		UnitPrice:           price,
		QuantityAvailable:   available,
		PointsEarnedPerUnit: pointsPerUnit,
	})
	return item.Ref
}

func (e *testEnv) stock(t *testing.T, ref models.ItemRef) models.CatalogItem {
	t.Helper()
	item, ok := e.store.CatalogItem(ref)
	require.True(t, ok, "catalog item %s missing", ref)
	return item
}

func (e *testEnv) balance(t *testing.T, userID int64) int64 {
	t.Helper()
	u, ok := e.store.User(userID)
	require.True(t, ok)
	return u.LoyaltyPoints
}

// checkedOut fills a cart and checks it out, returning the result
func (e *testEnv) checkedOut(t *testing.T, userID int64, lines map[models.ItemRef]int) *CheckoutResult {
	t.Helper()
	ctx := context.Background()

	for ref, qty := range lines {
		_, err := e.carts.AddItem(ctx, userID, ref, qty)
		require.NoError(t, err)
	}

	result, err := e.checkout.Checkout(ctx, userID, CheckoutRequest{Method: "card", Reference: "4242424242424242"})
	require.NoError(t, err)
	return result
}

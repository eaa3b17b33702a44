package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/logging"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/repositories"
)

// InventoryLedger is the only writer of ticket and product stock counters
type InventoryLedger struct {
	store  repositories.Store
	logger *zap.Logger
}

// NewInventoryLedger creates a new inventory ledger
func NewInventoryLedger(store repositories.Store, logger *zap.Logger) *InventoryLedger {
	return &InventoryLedger{store: store, logger: logger}
}

// Availability returns the current counters of an item
func (l *InventoryLedger) Availability(ctx context.Context, ref models.ItemRef) (*models.CatalogItem, error) {
	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	var item *models.CatalogItem
	err := l.store.WithTx(ctx, func(tx repositories.Tx) error {
		var err error
		item, err = tx.Inventory().Get(ctx, ref)
		return err
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

// Reserve takes quantity units of an item out of the available pool
func (l *InventoryLedger) Reserve(ctx context.Context, ref models.ItemRef, quantity int) (*models.CatalogItem, error) {
	ctx, span := startSpan(ctx, "InventoryLedger.Reserve", itemAttrs(ref, quantity)...)

	var item *models.CatalogItem
	err := l.store.WithTx(ctx, func(tx repositories.Tx) error {
		var err error
		item, err = reserveStock(ctx, tx.Inventory(), ref, quantity)
		return err
	})
	endSpan(span, err)

	if err != nil {
		logging.Warn(ctx, l.logger, "reservation rejected",
			zap.Stringer("item", ref), zap.Int("quantity", quantity), zap.Error(err))
		return nil, err
	}

	logging.Debug(ctx, l.logger, "stock reserved",
		zap.Stringer("item", ref), zap.Int("quantity", quantity), zap.Int("available", item.QuantityAvailable))

	return item, nil
}

// Release puts quantity units of an item back into the available pool
func (l *InventoryLedger) Release(ctx context.Context, ref models.ItemRef, quantity int) (*models.CatalogItem, error) {
	ctx, span := startSpan(ctx, "InventoryLedger.Release", itemAttrs(ref, quantity)...)

	var item *models.CatalogItem
	err := l.store.WithTx(ctx, func(tx repositories.Tx) error {
		var err error
		item, err = releaseStock(ctx, tx.Inventory(), ref, quantity)
		return err
	})
	endSpan(span, err)

	if err != nil {
		logging.Error(ctx, l.logger, "failed to release stock",
			zap.Stringer("item", ref), zap.Int("quantity", quantity), zap.Error(err))
		return nil, err
	}

	logging.Debug(ctx, l.logger, "stock released",
		zap.Stringer("item", ref), zap.Int("quantity", quantity), zap.Int("available", item.QuantityAvailable))

	return item, nil
}

func reserveStock(ctx context.Context, inv repositories.InventoryRepository, ref models.ItemRef, quantity int) (*models.CatalogItem, error) {
	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	if err := models.ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	return inv.Reserve(ctx, ref, quantity)
}

func releaseStock(ctx context.Context, inv repositories.InventoryRepository, ref models.ItemRef, quantity int) (*models.CatalogItem, error) {
	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	if err := models.ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	return inv.Release(ctx, ref, quantity)
}

type lineDemand struct {
	ref      models.ItemRef
	quantity int
}

// demandByItem sums quantities per item and orders the result so rows are
// always locked in the same order.
func demandByItem(lines []models.CartItem) []lineDemand {
	totals := make(map[models.ItemRef]int, len(lines))
	for _, line := range lines {
		totals[line.Item] += line.Quantity
	}

	demand := make([]lineDemand, 0, len(totals))
	for ref, qty := range totals {
		demand = append(demand, lineDemand{ref: ref, quantity: qty})
	}
	sort.Slice(demand, func(i, j int) bool { return demand[i].ref.Less(demand[j].ref) })

	return demand
}

// reserveLines reserves every line and reports all shortfalls at once.
// Reservations that did succeed are left for the caller's transaction to
// roll back. On success it returns the reserved catalog rows by item.
func reserveLines(ctx context.Context, inv repositories.InventoryRepository, lines []models.CartItem) (map[models.ItemRef]*models.CatalogItem, error) {
	var failed []models.InsufficientStockError
	reserved := make(map[models.ItemRef]*models.CatalogItem, len(lines))

	for _, d := range demandByItem(lines) {
		item, err := reserveStock(ctx, inv, d.ref, d.quantity)
		if err == nil {
			reserved[d.ref] = item
			continue
		}

		var shortfall *models.InsufficientStockError
		switch {
		case errors.As(err, &shortfall):
			failed = append(failed, *shortfall)
		case errors.Is(err, models.ErrItemNotFound):
			failed = append(failed, models.InsufficientStockError{Item: d.ref, Requested: d.quantity})
		default:
			return nil, err
		}
	}

	if len(failed) > 0 {
		return nil, &models.CheckoutFailedError{FailedItems: failed}
	}

	return reserved, nil
}

// releaseLines returns the stock held by an order's lines
func releaseLines(ctx context.Context, inv repositories.InventoryRepository, lines []models.CartItem) error {
	for _, d := range demandByItem(lines) {
		if _, err := releaseStock(ctx, inv, d.ref, d.quantity); err != nil {
			return fmt.Errorf("failed to release %s: %w", d.ref, err)
		}
	}
	return nil
}

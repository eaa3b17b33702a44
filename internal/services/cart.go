package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/logging"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/repositories"
)

// CartManager handles the user's cart. Nothing here reserves stock: the
// availability checks are advisory and checkout re-evaluates them.
type CartManager struct {
	store  repositories.Store
	logger *zap.Logger
}

// NewCartManager creates a new cart manager
func NewCartManager(store repositories.Store, logger *zap.Logger) *CartManager {
	return &CartManager{store: store, logger: logger}
}

// GetCart returns the user's cart with its active lines
func (m *CartManager) GetCart(ctx context.Context, userID int64) (*models.Cart, error) {
	var cart *models.Cart
	err := m.store.WithTx(ctx, func(tx repositories.Tx) error {
		var err error
		cart, err = loadCart(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return cart, nil
}

// AddItem adds quantity units of an item to the cart, merging with an
// existing line for the same item. The unit price is captured when the
// line is first created.
func (m *CartManager) AddItem(ctx context.Context, userID int64, ref models.ItemRef, quantity int) (*models.CartItem, error) {
	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	if err := models.ValidateQuantity(quantity); err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, "CartManager.AddItem", itemAttrs(ref, quantity)...)

	var line *models.CartItem
	err := m.store.WithTx(ctx, func(tx repositories.Tx) error {
		item, err := tx.Inventory().Get(ctx, ref)
		if err != nil {
			return err
		}

		cart, err := tx.Carts().GetOrCreate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load cart: %w", err)
		}

		existing, err := tx.Carts().FindActiveItem(ctx, cart.ID, ref)
		if err != nil && !errors.Is(err, models.ErrCartItemNotFound) {
			return fmt.Errorf("failed to look up cart line: %w", err)
		}

		merged := quantity
		if existing != nil {
			merged += existing.Quantity
		}

		if err := checkLine(item, merged); err != nil {
			return err
		}

		if existing != nil {
			if err := tx.Carts().UpdateQuantity(ctx, existing.ID, merged); err != nil {
				return fmt.Errorf("failed to update cart line: %w", err)
			}
			existing.Quantity = merged
			line = existing
			return nil
		}

		cartID := cart.ID
		line = &models.CartItem{
			CartID:    &cartID,
			Item:      ref,
			Quantity:  quantity,
			UnitPrice: item.UnitPrice,
		}
		if err := tx.Carts().AddItem(ctx, line); err != nil {
			return fmt.Errorf("failed to add cart line: %w", err)
		}
		return nil
	})
	endSpan(span, err)

	if err != nil {
		logging.Warn(ctx, m.logger, "add to cart rejected",
			zap.Int64("user_id", userID), zap.Stringer("item", ref), zap.Int("quantity", quantity), zap.Error(err))
		return nil, err
	}

	logging.Info(ctx, m.logger, "cart line saved",
		zap.Int64("user_id", userID),
		zap.Int64("cart_item_id", line.ID),
		zap.Stringer("item", ref),
		zap.Int("quantity", line.Quantity),
	)

	return line, nil
}

// UpdateQuantity sets the quantity of one of the user's cart lines
func (m *CartManager) UpdateQuantity(ctx context.Context, userID, cartItemID int64, quantity int) (*models.CartItem, error) {
	if err := models.ValidateQuantity(quantity); err != nil {
		return nil, err
	}

	var line *models.CartItem
	err := m.store.WithTx(ctx, func(tx repositories.Tx) error {
		cart, err := tx.Carts().GetOrCreate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load cart: %w", err)
		}

		line, err = tx.Carts().GetActiveItem(ctx, cart.ID, cartItemID)
		if err != nil {
			return err
		}

		item, err := tx.Inventory().Get(ctx, line.Item)
		if err != nil {
			return err
		}

		if err := checkLine(item, quantity); err != nil {
			return err
		}

		if err := tx.Carts().UpdateQuantity(ctx, line.ID, quantity); err != nil {
			return fmt.Errorf("failed to update cart line: %w", err)
		}
		line.Quantity = quantity
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Info(ctx, m.logger, "cart line quantity updated",
		zap.Int64("user_id", userID), zap.Int64("cart_item_id", cartItemID), zap.Int("quantity", quantity))

	return line, nil
}

// RemoveItem tombstones one of the user's cart lines
func (m *CartManager) RemoveItem(ctx context.Context, userID, cartItemID int64) error {
	err := m.store.WithTx(ctx, func(tx repositories.Tx) error {
		cart, err := tx.Carts().GetOrCreate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load cart: %w", err)
		}

		if _, err := tx.Carts().GetActiveItem(ctx, cart.ID, cartItemID); err != nil {
			return err
		}

		return tx.Carts().SoftDelete(ctx, cartItemID)
	})
	if err != nil {
		return err
	}

	logging.Info(ctx, m.logger, "cart line removed",
		zap.Int64("user_id", userID), zap.Int64("cart_item_id", cartItemID))

	return nil
}

// Clear tombstones every active line in the user's cart
func (m *CartManager) Clear(ctx context.Context, userID int64) (int, error) {
	var removed int
	err := m.store.WithTx(ctx, func(tx repositories.Tx) error {
		cart, err := tx.Carts().GetOrCreate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load cart: %w", err)
		}

		removed, err = tx.Carts().Clear(ctx, cart.ID)
		return err
	})
	if err != nil {
		return 0, err
	}

	logging.Info(ctx, m.logger, "cart cleared",
		zap.Int64("user_id", userID), zap.Int("removed", removed))

	return removed, nil
}

func loadCart(ctx context.Context, tx repositories.Tx, userID int64) (*models.Cart, error) {
	cart, err := tx.Carts().GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	items, err := tx.Carts().ActiveItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart lines: %w", err)
	}
	cart.Items = items

	return cart, nil
}

// checkLine applies the per-user limit and the soft availability check
func checkLine(item *models.CatalogItem, quantity int) error {
	if item.ExceedsLimit(quantity) {
		return fmt.Errorf("%w: %s allows at most %d per user", models.ErrLimitExceeded, item.Ref, item.LimitPerUser)
	}
	if !item.CanFulfil(quantity) {
		return &models.InsufficientStockError{Item: item.Ref, Requested: quantity, Available: item.QuantityAvailable}
	}
	return nil
}

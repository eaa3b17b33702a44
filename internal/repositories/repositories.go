// Package repositories declares the persistence ports of the checkout
// subsystem. Implementations live in the postgres and memory subpackages.
//
// Every mutation happens inside Store.WithTx: the callback receives a Tx
// whose repositories are bound to one transaction. Returning an error from
// the callback rolls back everything done through that Tx.
package repositories

import (
	"context"
	"time"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
)

// Store is the unit of work entry point
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the repositories bound to one transaction
type Tx interface {
	Inventory() InventoryRepository
	Carts() CartRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Loyalty() LoyaltyRepository
	Rewards() RewardRepository
	Outbox() OutboxRepository
}

// InventoryRepository owns the stock counters of tickets and products
type InventoryRepository interface {
	// Get returns ErrItemNotFound for missing or tombstoned items.
	Get(ctx context.Context, ref models.ItemRef) (*models.CatalogItem, error)
	// Reserve moves quantity from available to sold in one conditional
	// update. A shortfall returns *models.InsufficientStockError.
	Reserve(ctx context.Context, ref models.ItemRef, quantity int) (*models.CatalogItem, error)
	// Release moves up to quantity back from sold to available. The amount
	// moved is clamped to the current sold count.
	Release(ctx context.Context, ref models.ItemRef, quantity int) (*models.CatalogItem, error)
}

// CartRepository stores carts and the lines they own
type CartRepository interface {
	// GetOrCreate returns the user's cart, creating it on first use.
	GetOrCreate(ctx context.Context, userID int64) (*models.Cart, error)
	// ActiveItems returns non-tombstoned lines still owned by the cart.
	ActiveItems(ctx context.Context, cartID int64) ([]models.CartItem, error)
	FindActiveItem(ctx context.Context, cartID int64, ref models.ItemRef) (*models.CartItem, error)
	GetActiveItem(ctx context.Context, cartID, itemID int64) (*models.CartItem, error)
	AddItem(ctx context.Context, item *models.CartItem) error
	UpdateQuantity(ctx context.Context, itemID int64, quantity int) error
	SoftDelete(ctx context.Context, itemID int64) error
	// Clear tombstones every active line and returns how many were removed.
	Clear(ctx context.Context, cartID int64) (int, error)
	// MoveToOrder re-parents the given lines from the cart to the order and
	// persists each line's PointsPerUnit. It fails with
	// ErrConcurrentModification if any line was no longer active in the cart.
	MoveToOrder(ctx context.Context, cartID int64, lines []models.CartItem, orderID int64) error
}

// OrderRepository stores orders
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	// GetByID loads the order together with its lines.
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	// UpdateStatus moves the order from one status to another and returns
	// ErrInvalidTransition if the order was not in the from status.
	UpdateStatus(ctx context.Context, id int64, from, to models.OrderStatus) error
}

// PaymentRepository stores payments
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id int64) (*models.Payment, error)
	GetByOrder(ctx context.Context, orderID int64) (*models.Payment, error)
	// GetByGatewayReference returns ErrPaymentNotFound when no payment is
	// bound to the reference.
	GetByGatewayReference(ctx context.Context, reference string) (*models.Payment, error)
	// GetForUpdate locks the payment row until the transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*models.Payment, error)
	// Update returns ErrReferenceInUse if the gateway reference is already
	// bound to another payment.
	Update(ctx context.Context, payment *models.Payment) error
}

// LoyaltyRepository owns users' loyalty balances and the points journal
type LoyaltyRepository interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	// Credit adds points and returns the new balance.
	Credit(ctx context.Context, userID, points int64) (int64, error)
	// DebitClamped subtracts up to points, never going below zero, and
	// returns the amount actually debited and the new balance.
	DebitClamped(ctx context.Context, userID, points int64) (debited, balance int64, err error)
	// DebitExact subtracts points only if the balance covers them and
	// returns ErrInsufficientPoints otherwise.
	DebitExact(ctx context.Context, userID, points int64) (int64, error)
	// AppendEntry returns ErrDuplicateEntry if the idempotency key was used.
	AppendEntry(ctx context.Context, entry *models.LoyaltyEntry) error
	// FindEntry returns nil without error when no row has the key.
	FindEntry(ctx context.Context, idempotencyKey string) (*models.LoyaltyEntry, error)
	Entries(ctx context.Context, userID int64, limit int) ([]models.LoyaltyEntry, error)
}

// RewardRepository stores rewards and redemptions
type RewardRepository interface {
	GetReward(ctx context.Context, id int64) (*models.Reward, error)
	CreateRedemption(ctx context.Context, redemption *models.Redemption) error
	GetRedemption(ctx context.Context, id int64) (*models.Redemption, error)
	// UpdateRedemptionStatus returns ErrInvalidTransition if the redemption
	// was not in the from status.
	UpdateRedemptionStatus(ctx context.Context, id int64, from, to models.RedemptionStatus) error
	ListRedemptions(ctx context.Context, userID int64) ([]models.Redemption, error)
}

// OutboxRepository stores events awaiting relay
type OutboxRepository interface {
	Append(ctx context.Context, event *models.OutboxEvent) error
	// Claim leases up to limit unpublished events until leaseUntil so other
	// relays skip them.
	Claim(ctx context.Context, limit, maxAttempts int, now, leaseUntil time.Time) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

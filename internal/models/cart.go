package models

import (
	"errors"
	"time"
)

// Cart represents a user's shopping cart. There is exactly one per user.
type Cart struct {
	ID        int64      `json:"id" db:"id"`
	UserID    int64      `json:"user_id" db:"user_id"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Subtotal returns the sum of all active line totals in cents
func (c *Cart) Subtotal() int64 {
	return SumLines(c.Items)
}

// IsEmpty returns true if the cart holds no active lines
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// CartItem is one line of a cart or, after checkout, of an order.
// It belongs to exactly one of the two at any time.
type CartItem struct {
	ID            int64     `json:"id" db:"id"`
	CartID        *int64    `json:"cart_id,omitempty" db:"cart_id"`
	OrderID       *int64    `json:"order_id,omitempty" db:"order_id"`
	Item          ItemRef   `json:"item"`
	Quantity      int       `json:"quantity" db:"quantity"`
	UnitPrice     int64     `json:"unit_price" db:"unit_price"`                  // Price snapshot in cents
	PointsPerUnit int       `json:"points_per_unit" db:"points_earned_per_unit"` // Captured at checkout
	Deleted       bool      `json:"-" db:"is_deleted"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// LineTotal returns quantity times the captured unit price
func (i *CartItem) LineTotal() int64 {
	return int64(i.Quantity) * i.UnitPrice
}

// InCart returns true if the line is still owned by a cart
func (i *CartItem) InCart() bool {
	return i.CartID != nil && i.OrderID == nil
}

// InOrder returns true if the line has been migrated to an order
func (i *CartItem) InOrder() bool {
	return i.OrderID != nil && i.CartID == nil
}

// Validate validates the line
func (i *CartItem) Validate() error {
	if err := i.Item.Validate(); err != nil {
		return err
	}

	if err := ValidateQuantity(i.Quantity); err != nil {
		return err
	}

	if i.UnitPrice < 0 {
		return errors.New("unit price cannot be negative")
	}

	if i.PointsPerUnit < 0 {
		return errors.New("points per unit cannot be negative")
	}

	if (i.CartID == nil) == (i.OrderID == nil) {
		return errors.New("cart item must belong to exactly one of cart or order")
	}

	return nil
}

// ValidateQuantity rejects zero and negative quantities
func ValidateQuantity(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// SumLines computes sum(quantity * unit_price) over lines
func SumLines(items []CartItem) int64 {
	var total int64
	for i := range items {
		total += items[i].LineTotal()
	}
	return total
}

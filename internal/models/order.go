package models

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderFulfilled OrderStatus = "fulfilled"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

// Order represents an order in the system. Its lines are cart items that
// were re-parented from the user's cart at checkout.
type Order struct {
	ID          int64       `json:"id" db:"id"`
	UserID      int64       `json:"user_id" db:"user_id"`
	OrderNumber string      `json:"order_number" db:"order_number"`
	TotalAmount int64       `json:"total_amount" db:"total_amount"` // Amount in cents
	Status      OrderStatus `json:"status" db:"status"`
	Items       []CartItem  `json:"items,omitempty"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

var (
	// Order number format: ORD-YYYYMMDD-XXXXXX (e.g., ORD-20240101-123456)
	orderNumberRegex = regexp.MustCompile(`^ORD-\d{8}-\d{6}$`)

	orderTransitions = map[OrderStatus][]OrderStatus{
		OrderPending:   {OrderPaid, OrderCancelled},
		OrderPaid:      {OrderFulfilled, OrderRefunded},
		OrderFulfilled: {OrderRefunded},
	}
)

// Validate validates the order data
func (o *Order) Validate() error {
	if o.OrderNumber == "" {
		return errors.New("order number is required")
	}

	if !orderNumberRegex.MatchString(o.OrderNumber) {
		return errors.New("order number format is invalid")
	}

	if o.TotalAmount < 0 {
		return errors.New("total amount cannot be negative")
	}

	return ValidateOrderStatus(o.Status)
}

// ValidateOrderStatus validates an order status
func ValidateOrderStatus(status OrderStatus) error {
	switch status {
	case OrderPending, OrderPaid, OrderFulfilled, OrderCancelled, OrderRefunded:
		return nil
	default:
		return errors.New("invalid order status")
	}
}

// CanTransitionTo reports whether the order may move to the given status
func (o *Order) CanTransitionTo(to OrderStatus) bool {
	for _, allowed := range orderTransitions[o.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// RecomputeTotal sets TotalAmount from the attached lines
func (o *Order) RecomputeTotal() {
	o.TotalAmount = SumLines(o.Items)
}

// PointsEarned returns quantity * points_earned_per_unit summed over the
// order lines, using the rate each line captured at checkout.
func (o *Order) PointsEarned() int64 {
	var total int64
	for _, item := range o.Items {
		total += int64(item.Quantity) * int64(item.PointsPerUnit)
	}
	return total
}

// GenerateOrderNumber generates a unique order number
func GenerateOrderNumber(now time.Time) string {
	dateStr := now.Format("20060102")

	max := big.NewInt(1000000)
	randomNum, err := rand.Int(rand.Reader, max)
	if err != nil {
		return fmt.Sprintf("ORD-%s-%06d", dateStr, now.UnixNano()%1000000)
	}

	return fmt.Sprintf("ORD-%s-%06d", dateStr, randomNum.Int64())
}

// IsPending returns true if the order is pending
func (o *Order) IsPending() bool {
	return o.Status == OrderPending
}

// IsPaid returns true if the order is paid
func (o *Order) IsPaid() bool {
	return o.Status == OrderPaid
}

// IsSettled returns true once the order has left the pending state
func (o *Order) IsSettled() bool {
	return o.Status != OrderPending
}

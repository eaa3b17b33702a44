package models

import (
	"encoding/json"
	"time"
)

// Event types written to the outbox
const (
	EventOrderCreated      = "order.created"
	EventOrderPaid         = "order.paid"
	EventOrderCancelled    = "order.cancelled"
	EventOrderRefunded     = "order.refunded"
	EventOrderFulfilled    = "order.fulfilled"
	EventRedemptionCreated = "redemption.created"
)

// Aggregate types written to the outbox
const (
	AggregateOrder      = "order"
	AggregateRedemption = "redemption"
)

// OutboxEvent is a domain event stored in the same transaction as the
// state change it describes and relayed to the message bus later.
type OutboxEvent struct {
	ID            int64             `json:"id" db:"id"`
	AggregateType string            `json:"aggregate_type" db:"aggregate_type"`
	AggregateID   string            `json:"aggregate_id" db:"aggregate_id"`
	EventType     string            `json:"event_type" db:"event_type"`
	Payload       json.RawMessage   `json:"payload" db:"payload"`
	Headers       map[string]string `json:"headers,omitempty" db:"headers"`
	Attempts      int               `json:"attempts" db:"attempts"`
	LastError     *string           `json:"last_error,omitempty" db:"last_error"`
	LockedUntil   *time.Time        `json:"-" db:"locked_until"`
	PublishedAt   *time.Time        `json:"published_at,omitempty" db:"published_at"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
}

// IsPublished returns true once the relay has delivered the event
func (e *OutboxEvent) IsPublished() bool {
	return e.PublishedAt != nil
}

// OrderEventPayload is the body of order.* events
type OrderEventPayload struct {
	OrderID     int64       `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	UserID      int64       `json:"user_id"`
	PaymentID   int64       `json:"payment_id,omitempty"`
	Status      OrderStatus `json:"status"`
	TotalAmount int64       `json:"total_amount"`
	Points      int64       `json:"points,omitempty"`
}

// RedemptionEventPayload is the body of redemption.* events
type RedemptionEventPayload struct {
	RedemptionID int64            `json:"redemption_id"`
	UserID       int64            `json:"user_id"`
	RewardID     int64            `json:"reward_id"`
	PointsSpent  int64            `json:"points_spent"`
	Status       RedemptionStatus `json:"status"`
}

package models

import (
	"errors"
	"fmt"
	"time"
)

// User is the slice of the identity record this subsystem reads and
// mutates: the loyalty balance. Everything else belongs to the identity
// service.
type User struct {
	ID            int64     `json:"id" db:"id"`
	Email         string    `json:"email" db:"email"`
	LoyaltyPoints int64     `json:"loyalty_points" db:"loyalty_points"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// LoyaltyReason labels why a balance changed
type LoyaltyReason string

const (
	ReasonAccrual            LoyaltyReason = "accrual"
	ReasonRefundReversal     LoyaltyReason = "refund_reversal"
	ReasonRedemption         LoyaltyReason = "redemption"
	ReasonRedemptionReversal LoyaltyReason = "redemption_reversal"
	ReasonAdjustment         LoyaltyReason = "adjustment"
)

// LoyaltyEntry is one row of the loyalty journal. Delta is positive for
// credits and negative for debits and reflects what was actually applied,
// so a clamped debit records less than was requested.
type LoyaltyEntry struct {
	ID             int64         `json:"id" db:"id"`
	UserID         int64         `json:"user_id" db:"user_id"`
	Delta          int64         `json:"delta" db:"delta"`
	BalanceAfter   int64         `json:"balance_after" db:"balance_after"`
	Reason         LoyaltyReason `json:"reason" db:"reason"`
	IdempotencyKey *string       `json:"idempotency_key,omitempty" db:"idempotency_key"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// ValidatePoints requires a strictly positive amount
func ValidatePoints(points int64) error {
	if points <= 0 {
		return ErrInvalidPoints
	}
	return nil
}

// Validate validates the journal row
func (e *LoyaltyEntry) Validate() error {
	if e.Delta == 0 {
		return errors.New("loyalty entry delta cannot be zero")
	}

	if e.BalanceAfter < 0 {
		return errors.New("loyalty balance cannot be negative")
	}

	if e.Reason == "" {
		return errors.New("loyalty entry reason is required")
	}

	return nil
}

// AccrualKey is the journal key for points earned by an order
func AccrualKey(orderID int64) string {
	return fmt.Sprintf("order:%d:accrual", orderID)
}

// RefundKey is the journal key for reversing an order's accrual
func RefundKey(orderID int64) string {
	return fmt.Sprintf("order:%d:refund", orderID)
}

// RedemptionKey is the journal key for the debit of a redemption
func RedemptionKey(redemptionID int64) string {
	return fmt.Sprintf("redemption:%d:debit", redemptionID)
}

// RedemptionReversalKey is the journal key for re-crediting a cancelled redemption
func RedemptionReversalKey(redemptionID int64) string {
	return fmt.Sprintf("redemption:%d:reversal", redemptionID)
}

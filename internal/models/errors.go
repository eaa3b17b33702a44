package models

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors used throughout the application
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrItemNotFound       = errors.New("item not found")
	ErrCartItemNotFound   = errors.New("cart item not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrRewardNotFound     = errors.New("reward not found")
	ErrRedemptionNotFound = errors.New("redemption not found")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrDuplicateEntry     = errors.New("duplicate entry")

	ErrEmptyCart               = errors.New("cart is empty")
	ErrInvalidQuantity         = errors.New("quantity must be greater than zero")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrItemUnavailable         = errors.New("item is unavailable")
	ErrLimitExceeded           = errors.New("quantity exceeds the per-user limit")
	ErrCheckoutFailed          = errors.New("checkout failed")
	ErrPaymentAlreadyProcessed = errors.New("payment already processed")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrRewardExpired           = errors.New("reward has expired")
	ErrRewardInactive          = errors.New("reward is inactive")
	ErrInsufficientPoints      = errors.New("insufficient loyalty points")
	ErrInvalidPoints           = errors.New("points must be greater than zero")
	ErrConcurrentModification  = errors.New("concurrent modification, retry the operation")
	ErrGatewayUnavailable      = errors.New("payment gateway unavailable")
	ErrPaymentNotSettled       = errors.New("payment not yet settled by the gateway")
	ErrReferenceRequired       = errors.New("gateway reference is required")
	ErrReferenceInUse          = errors.New("gateway reference belongs to another payment")
	ErrAmountMismatch          = errors.New("gateway amount does not match the order total")
)

// InsufficientStockError reports a reservation shortfall for one item
type InsufficientStockError struct {
	Item      ItemRef `json:"item"`
	Requested int     `json:"requested"`
	Available int     `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.Item, e.Requested, e.Available)
}

// Is lets errors.Is(err, ErrInsufficientStock) match
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// CheckoutFailedError lists every line that could not be reserved
type CheckoutFailedError struct {
	FailedItems []InsufficientStockError `json:"failed_items"`
}

func (e *CheckoutFailedError) Error() string {
	parts := make([]string, 0, len(e.FailedItems))
	for i := range e.FailedItems {
		parts = append(parts, e.FailedItems[i].Error())
	}
	return "checkout failed: " + strings.Join(parts, "; ")
}

// Is lets errors.Is match both ErrCheckoutFailed and ErrInsufficientStock
func (e *CheckoutFailedError) Is(target error) bool {
	return target == ErrCheckoutFailed || target == ErrInsufficientStock
}

// IsNotFound returns true for any of the lookup misses above
func IsNotFound(err error) bool {
	for _, target := range []error{
		ErrUserNotFound, ErrItemNotFound, ErrCartItemNotFound, ErrOrderNotFound,
		ErrPaymentNotFound, ErrRewardNotFound, ErrRedemptionNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

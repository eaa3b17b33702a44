package models

import (
	"errors"
	"strings"
	"time"
)

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentVerified PaymentStatus = "verified"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Payment is the single payment attached to an order
type Payment struct {
	ID         int64         `json:"id" db:"id"`
	OrderID    int64         `json:"order_id" db:"order_id"`
	Method     string        `json:"method" db:"method"`
	Reference  string        `json:"reference" db:"reference"` // masked
	Status     PaymentStatus `json:"status" db:"status"`
	VerifiedAt *time.Time    `json:"verified_at,omitempty" db:"verified_at"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at" db:"updated_at"`

	// GatewayReference is the provider transaction a confirmation was
	// verified against. At most one payment may hold a given value.
	GatewayReference string `json:"-" db:"gateway_reference"`
}

// Validate validates the payment
func (p *Payment) Validate() error {
	if err := ValidatePaymentMethod(p.Method); err != nil {
		return err
	}

	if len(p.Reference) > 255 || len(p.GatewayReference) > 255 {
		return errors.New("payment reference must be less than 255 characters")
	}

	return ValidatePaymentStatus(p.Status)
}

// ValidatePaymentMethod validates the payment method label
func ValidatePaymentMethod(method string) error {
	if strings.TrimSpace(method) == "" {
		return errors.New("payment method is required")
	}

	if len(method) > 50 {
		return errors.New("payment method must be less than 50 characters")
	}

	return nil
}

// ValidatePaymentStatus validates a payment status
func ValidatePaymentStatus(status PaymentStatus) error {
	switch status {
	case PaymentPending, PaymentVerified, PaymentFailed, PaymentRefunded:
		return nil
	default:
		return errors.New("invalid payment status")
	}
}

// IsPending returns true if the payment has not been reconciled
func (p *Payment) IsPending() bool {
	return p.Status == PaymentPending
}

// IsVerified returns true if the payment was confirmed
func (p *Payment) IsVerified() bool {
	return p.Status == PaymentVerified
}

// MaskReference hides all but the last four characters of a card or
// wallet identifier.
func MaskReference(ref string) string {
	ref = strings.TrimSpace(ref)
	runes := []rune(ref)
	if len(runes) <= 4 {
		return ref
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}

package models

import (
	"errors"
	"strings"
	"time"
)

// RewardStatus represents whether a reward can currently be redeemed
type RewardStatus string

const (
	RewardActive   RewardStatus = "active"
	RewardInactive RewardStatus = "inactive"
)

// Reward is a loyalty catalog entry. It may point at a product or a ticket,
// never both, or at neither for a pure discount.
type Reward struct {
	ID             int64        `json:"id" db:"id"`
	Name           string       `json:"name" db:"name"`
	PointsRequired int64        `json:"points_required" db:"points_required"`
	ProductID      *int64       `json:"product_id,omitempty" db:"product_id"`
	TicketID       *int64       `json:"ticket_id,omitempty" db:"ticket_id"`
	Status         RewardStatus `json:"status" db:"status"`
	ExpiresAt      *time.Time   `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}

// Validate validates the reward data
func (r *Reward) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("reward name is required")
	}

	if r.PointsRequired <= 0 {
		return errors.New("points required must be positive")
	}

	if r.ProductID != nil && r.TicketID != nil {
		return errors.New("reward cannot link both a product and a ticket")
	}

	if r.Status != RewardActive && r.Status != RewardInactive {
		return errors.New("invalid reward status")
	}

	return nil
}

// IsExpired returns true if the reward has an expiry at or before now
func (r *Reward) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// IsActive returns true if the reward is switched on
func (r *Reward) IsActive() bool {
	return r.Status == RewardActive
}

// Linked returns the catalog item the reward grants, if any
func (r *Reward) Linked() *ItemRef {
	switch {
	case r.ProductID != nil:
		ref := ProductRef(*r.ProductID)
		return &ref
	case r.TicketID != nil:
		ref := TicketRef(*r.TicketID)
		return &ref
	default:
		return nil
	}
}

// CheckRedeemable returns the reason a reward cannot be redeemed at now
func (r *Reward) CheckRedeemable(now time.Time) error {
	if !r.IsActive() {
		return ErrRewardInactive
	}
	if r.IsExpired(now) {
		return ErrRewardExpired
	}
	return nil
}

// RedemptionStatus represents the fulfillment state of a redemption
type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionFulfilled RedemptionStatus = "fulfilled"
	RedemptionCancelled RedemptionStatus = "cancelled"
)

// Redemption records points exchanged for a reward. PointsSpent is the
// reward cost at redemption time and never changes afterwards.
type Redemption struct {
	ID          int64            `json:"id" db:"id"`
	UserID      int64            `json:"user_id" db:"user_id"`
	RewardID    int64            `json:"reward_id" db:"reward_id"`
	PointsSpent int64            `json:"points_spent" db:"points_spent"`
	Status      RedemptionStatus `json:"status" db:"status"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

// IsPending returns true if the redemption awaits fulfillment
func (r *Redemption) IsPending() bool {
	return r.Status == RedemptionPending
}

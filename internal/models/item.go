package models

import (
	"errors"
	"fmt"
	"strings"
)

// ItemType discriminates the two kinds of sellable catalog entries
type ItemType string

const (
	ItemTicket  ItemType = "ticket"
	ItemProduct ItemType = "product"
)

// ParseItemType resolves the wire representation of an item type.
// Matching is case-insensitive so "Ticket" and "ticket" are both accepted.
func ParseItemType(s string) (ItemType, error) {
	switch ItemType(strings.ToLower(strings.TrimSpace(s))) {
	case ItemTicket:
		return ItemTicket, nil
	case ItemProduct:
		return ItemProduct, nil
	default:
		return "", fmt.Errorf("%w: unknown item type %q", ErrInvalidInput, s)
	}
}

// ItemRef identifies one catalog entry: a ticket or a product
type ItemRef struct {
	Type ItemType `json:"item_type" db:"item_type"`
	ID   int64    `json:"item_id" db:"item_id"`
}

// TicketRef returns a reference to a ticket
func TicketRef(id int64) ItemRef {
	return ItemRef{Type: ItemTicket, ID: id}
}

// ProductRef returns a reference to a product
func ProductRef(id int64) ItemRef {
	return ItemRef{Type: ItemProduct, ID: id}
}

// IsTicket returns true if the reference points at a ticket
func (r ItemRef) IsTicket() bool {
	return r.Type == ItemTicket
}

// IsProduct returns true if the reference points at a product
func (r ItemRef) IsProduct() bool {
	return r.Type == ItemProduct
}

// Validate validates the item reference
func (r ItemRef) Validate() error {
	if r.Type != ItemTicket && r.Type != ItemProduct {
		return errors.New("item type must be ticket or product")
	}

	if r.ID <= 0 {
		return errors.New("item id must be positive")
	}

	return nil
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%d", r.Type, r.ID)
}

// Less orders references by type then id. Reservations are taken in this
// order so that two checkouts never lock the same rows in opposite order.
func (r ItemRef) Less(other ItemRef) bool {
	if r.Type != other.Type {
		return r.Type < other.Type
	}
	return r.ID < other.ID
}

// CatalogItem is the read model of a ticket or product as seen by the
// checkout subsystem: price, stock counters and loyalty configuration.
type CatalogItem struct {
	Ref                 ItemRef `json:"ref"`
	Name                string  `json:"name" db:"name"`
	UnitPrice           int64   `json:"unit_price" db:"price"` // Price in cents
	QuantityAvailable   int     `json:"quantity_available" db:"quantity_available"`
	QuantitySold        int     `json:"quantity_sold" db:"quantity_sold"`
	LimitPerUser        int     `json:"limit_per_user" db:"limit_per_user"` // 0 means unlimited
	PointsEarnedPerUnit int     `json:"points_earned_per_unit" db:"points_earned_per_unit"`
	Deleted             bool    `json:"-" db:"is_deleted"`
}

// OriginalTotal returns the stock the item was created with
func (c *CatalogItem) OriginalTotal() int {
	return c.QuantityAvailable + c.QuantitySold
}

// CanFulfil reports whether quantity units are currently available
func (c *CatalogItem) CanFulfil(quantity int) bool {
	return !c.Deleted && c.QuantityAvailable >= quantity
}

// ExceedsLimit reports whether holding quantity units would break the per-user limit
func (c *CatalogItem) ExceedsLimit(quantity int) bool {
	return c.LimitPerUser > 0 && quantity > c.LimitPerUser
}

// Validate validates the catalog counters
func (c *CatalogItem) Validate() error {
	if err := c.Ref.Validate(); err != nil {
		return err
	}

	if c.UnitPrice < 0 {
		return errors.New("price cannot be negative")
	}

	if c.QuantityAvailable < 0 || c.QuantitySold < 0 {
		return errors.New("stock counters cannot be negative")
	}

	if c.LimitPerUser < 0 {
		return errors.New("limit per user cannot be negative")
	}

	if c.PointsEarnedPerUnit < 0 {
		return errors.New("points earned per unit cannot be negative")
	}

	return nil
}

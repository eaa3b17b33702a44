package models

import (
	"errors"
	"testing"
	"time"
)

func TestParseItemType(t *testing.T) {
	tests := []struct {
		in      string
		want    ItemType
		wantErr bool
	}{
		{"ticket", ItemTicket, false},
		{"Ticket", ItemTicket, false},
		{" PRODUCT ", ItemProduct, false},
		{"event", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseItemType(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("ParseItemType(%q) error = %v, want ErrInvalidInput", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseItemType(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestItemRef_Less(t *testing.T) {
	if !ProductRef(9).Less(TicketRef(1)) {
		t.Error("products should sort before tickets")
	}
	if !TicketRef(1).Less(TicketRef(2)) {
		t.Error("lower id should sort first")
	}
	if TicketRef(2).Less(TicketRef(2)) {
		t.Error("equal refs are not less")
	}
}

func TestCatalogItem(t *testing.T) {
	item := CatalogItem{Ref: TicketRef(1), UnitPrice: 100, QuantityAvailable: 3, QuantitySold: 7, LimitPerUser: 4}

	if item.OriginalTotal() != 10 {
		t.Errorf("OriginalTotal() = %d, want 10", item.OriginalTotal())
	}
	if !item.CanFulfil(3) || item.CanFulfil(4) {
		t.Error("CanFulfil should accept exactly the available quantity")
	}
	if item.ExceedsLimit(4) || !item.ExceedsLimit(5) {
		t.Error("ExceedsLimit should cap at limit_per_user")
	}

	item.LimitPerUser = 0
	if item.ExceedsLimit(1000) {
		t.Error("zero limit means unlimited")
	}

	item.Deleted = true
	if item.CanFulfil(1) {
		t.Error("deleted items cannot be fulfilled")
	}
}

func TestCartItem_Validate(t *testing.T) {
	cartID, orderID := int64(1), int64(2)

	tests := []struct {
		name    string
		item    CartItem
		wantErr bool
	}{
		{"in cart", CartItem{CartID: &cartID, Item: TicketRef(1), Quantity: 1, UnitPrice: 100}, false},
		{"in order", CartItem{OrderID: &orderID, Item: ProductRef(1), Quantity: 2, UnitPrice: 50}, false},
		{"both owners", CartItem{CartID: &cartID, OrderID: &orderID, Item: TicketRef(1), Quantity: 1}, true},
		{"no owner", CartItem{Item: TicketRef(1), Quantity: 1}, true},
		{"zero quantity", CartItem{CartID: &cartID, Item: TicketRef(1), Quantity: 0}, true},
		{"bad ref", CartItem{CartID: &cartID, Item: ItemRef{Type: "event", ID: 1}, Quantity: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMaskReference(t *testing.T) {
	tests := map[string]string{
		"4111111111111111": "************1111",
		"1234":             "1234",
		"":                 "",
		" wallet-9876 ":    "*******9876",
	}
	for in, want := range tests {
		if got := MaskReference(in); got != want {
			t.Errorf("MaskReference(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReward_CheckRedeemable(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		reward Reward
		want   error
	}{
		{"active no expiry", Reward{Status: RewardActive}, nil},
		{"active future expiry", Reward{Status: RewardActive, ExpiresAt: &future}, nil},
		{"expired", Reward{Status: RewardActive, ExpiresAt: &past}, ErrRewardExpired},
		{"expires now", Reward{Status: RewardActive, ExpiresAt: &now}, ErrRewardExpired},
		{"inactive", Reward{Status: RewardInactive}, ErrRewardInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.reward.CheckRedeemable(now); !errors.Is(err, tt.want) && err != tt.want {
				t.Errorf("CheckRedeemable() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReward_Validate(t *testing.T) {
	p, tk := int64(1), int64(2)
	r := Reward{Name: "Free mug", PointsRequired: 100, ProductID: &p, TicketID: &tk, Status: RewardActive}
	if err := r.Validate(); err == nil {
		t.Error("expected error when both product and ticket are linked")
	}

	r.TicketID = nil
	if err := r.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if linked := r.Linked(); linked == nil || *linked != ProductRef(1) {
		t.Errorf("Linked() = %v, want product:1", linked)
	}
}

func TestCheckoutFailedError_Is(t *testing.T) {
	err := error(&CheckoutFailedError{FailedItems: []InsufficientStockError{
		{Item: ProductRef(1), Requested: 1, Available: 0},
	}})

	if !errors.Is(err, ErrCheckoutFailed) {
		t.Error("expected errors.Is(ErrCheckoutFailed)")
	}
	if !errors.Is(err, ErrInsufficientStock) {
		t.Error("expected errors.Is(ErrInsufficientStock)")
	}

	var cf *CheckoutFailedError
	if !errors.As(err, &cf) || len(cf.FailedItems) != 1 {
		t.Error("expected errors.As to expose failed items")
	}
}

package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/services"
)

// CartHandler handles shopping cart and checkout requests
type CartHandler struct {
	carts    *services.CartManager
	checkout *services.OrderAssembler
	logger   *zap.Logger
}

// NewCartHandler creates a new cart handler
func NewCartHandler(carts *services.CartManager, checkout *services.OrderAssembler, logger *zap.Logger) *CartHandler {
	return &CartHandler{carts: carts, checkout: checkout, logger: logger}
}

type addItemRequest struct {
	ItemType string `json:"item_type" validate:"required"`
	ItemID   int64  `json:"item_id" validate:"required,gt=0"`
	Quantity int    `json:"quantity"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type checkoutRequest struct {
	Method    string `json:"method" validate:"required,max=50"`
	Reference string `json:"reference" validate:"max=255"`
}

// CartResponse is the cart with its computed subtotal
type CartResponse struct {
	ID        int64             `json:"id"`
	Items     []models.CartItem `json:"items"`
	ItemCount int               `json:"item_count"`
	Subtotal  int64             `json:"subtotal"`
}

func newCartResponse(cart *models.Cart) CartResponse {
	items := cart.Items
	if items == nil {
		items = []models.CartItem{}
	}

	count := 0
	for i := range items {
		count += items[i].Quantity
	}

	return CartResponse{ID: cart.ID, Items: items, ItemCount: count, Subtotal: cart.Subtotal()}
}

// GetCart returns the user's active cart lines
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newCartResponse(cart))
}

// AddItem adds an item to the cart, merging with an existing line
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	itemType, err := models.ParseItemType(req.ItemType)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	line, err := h.carts.AddItem(r.Context(), userID, models.ItemRef{Type: itemType, ID: req.ItemID}, req.Quantity)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, line)
}

// UpdateQuantity sets the quantity of one cart line
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	lineID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req updateQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	line, err := h.carts.UpdateQuantity(r.Context(), userID, lineID, req.Quantity)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, line)
}

// RemoveItem removes one cart line
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	lineID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.carts.RemoveItem(r.Context(), userID, lineID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearCart removes every line from the cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	removed, err := h.carts.Clear(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// Checkout turns the cart into a pending order and payment
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.checkout.Checkout(r.Context(), userID, services.CheckoutRequest{
		Method:    req.Method,
		Reference: req.Reference,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

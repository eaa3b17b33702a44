package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/services"
)

// OrderHandler serves orders and their payments
type OrderHandler struct {
	orders   *services.OrderAssembler
	payments *services.PaymentReconciler
	logger   *zap.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders *services.OrderAssembler, payments *services.PaymentReconciler, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, payments: payments, logger: logger}
}

type confirmPaymentRequest struct {
	Method    string `json:"method" validate:"max=50"`
	Reference string `json:"reference" validate:"max=255"`
	Status    string `json:"status" validate:"omitempty,oneof=verified failed"`
}

// GetOrder returns one of the user's orders with its lines and payment
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	orderID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	details, err := h.orders.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, details)
}

// FulfillOrder marks a paid order as fulfilled
func (h *OrderHandler) FulfillOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	order, err := h.payments.Fulfill(r.Context(), orderID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// ConfirmPayment settles a pending payment as verified or failed
func (h *OrderHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	paymentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req confirmPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.payments.Confirm(r.Context(), userID, paymentID, services.ConfirmRequest{
		Method:    req.Method,
		Reference: req.Reference,
		Status:    models.PaymentStatus(req.Status),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// RefundPayment refunds a verified payment on behalf of an operator
func (h *OrderHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.payments.Refund(r.Context(), 0, paymentID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/logging"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/repositories"
)

// CheckoutState is the progress of a single checkout attempt
type CheckoutState string

const (
	CheckoutStarted   CheckoutState = "started"
	CheckoutReserving CheckoutState = "reserving"
	CheckoutAssembled CheckoutState = "assembled"
	CheckoutFailed    CheckoutState = "failed"
)

// CheckoutRequest carries the payment details supplied by the caller
type CheckoutRequest struct {
	Method    string
	Reference string
}

// CheckoutResult identifies the order and payment created by a checkout
type CheckoutResult struct {
	OrderID     int64         `json:"order_id"`
	PaymentID   int64         `json:"payment_id"`
	OrderNumber string        `json:"order_number"`
	TotalAmount int64         `json:"total_amount"`
	State       CheckoutState `json:"-"`
}

// OrderDetails is an order with its lines and payment
type OrderDetails struct {
	Order   *models.Order   `json:"order"`
	Payment *models.Payment `json:"payment"`
}

// OrderAssembler turns a user's cart into an order and its payment
type OrderAssembler struct {
	store  repositories.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewOrderAssembler creates a new order assembler
func NewOrderAssembler(store repositories.Store, logger *zap.Logger) *OrderAssembler {
	return &OrderAssembler{store: store, logger: logger, now: time.Now}
}

// Checkout reserves every active cart line and, only if all of them can be
// reserved, creates a pending order, moves the lines onto it, creates a
// pending payment and clears the cart. Everything happens in one
// transaction, so a failed checkout leaves no trace.
func (a *OrderAssembler) Checkout(ctx context.Context, userID int64, req CheckoutRequest) (*CheckoutResult, error) {
	if err := models.ValidatePaymentMethod(req.Method); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	ctx, span := startSpan(ctx, "OrderAssembler.Checkout", attribute.Int64("user.id", userID))

	result := &CheckoutResult{State: CheckoutStarted}
	a.logState(ctx, userID, result.State)

	err := a.store.WithTx(ctx, func(tx repositories.Tx) error {
		cart, err := loadCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		if cart.IsEmpty() {
			return models.ErrEmptyCart
		}

		result.State = CheckoutReserving
		a.logState(ctx, userID, result.State, zap.Int("lines", len(cart.Items)))

		reserved, err := reserveLines(ctx, tx.Inventory(), cart.Items)
		if err != nil {
			return err
		}

		order := &models.Order{
			UserID:      userID,
			OrderNumber: models.GenerateOrderNumber(a.now()),
			Status:      models.OrderPending,
			TotalAmount: models.SumLines(cart.Items),
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		// Accrual reads the rate captured here, not the live catalog.
		for i := range cart.Items {
			cart.Items[i].PointsPerUnit = reserved[cart.Items[i].Item].PointsEarnedPerUnit
		}
		if err := tx.Carts().MoveToOrder(ctx, cart.ID, cart.Items, order.ID); err != nil {
			return fmt.Errorf("failed to move cart lines to order: %w", err)
		}

		payment := &models.Payment{
			OrderID:   order.ID,
			Method:    strings.TrimSpace(req.Method),
			Reference: models.MaskReference(req.Reference),
			Status:    models.PaymentPending,
		}
		if err := tx.Payments().Create(ctx, payment); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}

		if _, err := tx.Carts().Clear(ctx, cart.ID); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}

		if err := emitEvent(ctx, tx, models.AggregateOrder, order.ID, models.EventOrderCreated, models.OrderEventPayload{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      userID,
			PaymentID:   payment.ID,
			Status:      order.Status,
			TotalAmount: order.TotalAmount,
		}); err != nil {
			return err
		}

		result.OrderID = order.ID
		result.PaymentID = payment.ID
		result.OrderNumber = order.OrderNumber
		result.TotalAmount = order.TotalAmount
		return nil
	})
	endSpan(span, err)

	if err != nil {
		result.State = CheckoutFailed
		fields := []zap.Field{zap.Error(err)}
		var failed *models.CheckoutFailedError
		if errors.As(err, &failed) {
			fields = append(fields, zap.Int("failed_items", len(failed.FailedItems)))
		}
		a.logState(ctx, userID, result.State, fields...)
		return nil, err
	}

	result.State = CheckoutAssembled
	a.logState(ctx, userID, result.State,
		zap.Int64("order_id", result.OrderID),
		zap.Int64("payment_id", result.PaymentID),
		zap.Int64("total_amount", result.TotalAmount),
	)

	return result, nil
}

// GetOrder returns one of the user's orders with its lines and payment
func (a *OrderAssembler) GetOrder(ctx context.Context, userID, orderID int64) (*OrderDetails, error) {
	details := &OrderDetails{}
	err := a.store.WithTx(ctx, func(tx repositories.Tx) error {
		order, err := tx.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return models.ErrOrderNotFound
		}
		details.Order = order

		payment, err := tx.Payments().GetByOrder(ctx, orderID)
		if err != nil && !errors.Is(err, models.ErrPaymentNotFound) {
			return fmt.Errorf("failed to load payment: %w", err)
		}
		details.Payment = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	return details, nil
}

func (a *OrderAssembler) logState(ctx context.Context, userID int64, state CheckoutState, fields ...zap.Field) {
	fields = append([]zap.Field{zap.Int64("user_id", userID), zap.String("state", string(state))}, fields...)
	if state == CheckoutFailed {
		logging.Warn(ctx, a.logger, "checkout", fields...)
		return
	}
	logging.Info(ctx, a.logger, "checkout", fields...)
}

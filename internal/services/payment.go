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

// ConfirmRequest is an external payment signal. Status defaults to verified.
type ConfirmRequest struct {
	Method    string
	Reference string
	Status    models.PaymentStatus
}

// ReconcileResult is the state after a reconciliation call.
// AlreadyProcessed is set when the call was a duplicate and changed nothing.
type ReconcileResult struct {
	Payment          *models.Payment `json:"payment"`
	Order            *models.Order   `json:"order"`
	AlreadyProcessed bool            `json:"already_processed"`
	PointsAwarded    int64           `json:"points_awarded"`
}

// PaymentReconciler settles payments and applies the consequences to the
// order, the stock counters and the loyalty balance.
type PaymentReconciler struct {
	store    repositories.Store
	verifier GatewayVerifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewPaymentReconciler creates a new payment reconciler. verifier may be
// nil, in which case the caller's signal is trusted as is.
func NewPaymentReconciler(store repositories.Store, verifier GatewayVerifier, logger *zap.Logger) *PaymentReconciler {
	return &PaymentReconciler{store: store, verifier: verifier, logger: logger, now: time.Now}
}

// Confirm applies a verified or failed signal to a pending payment.
// A repeated signal in the same direction is a no-op.
//
// With a verifier configured, a verified signal must carry the gateway
// reference. The gateway outcome then replaces the caller's, the settled
// amount must equal the order total and the reference is bound to this
// payment so it cannot settle another one.
func (r *PaymentReconciler) Confirm(ctx context.Context, userID, paymentID int64, req ConfirmRequest) (*ReconcileResult, error) {
	target := req.Status
	if target == "" {
		target = models.PaymentVerified
	}
	if target != models.PaymentVerified && target != models.PaymentFailed {
		return nil, fmt.Errorf("%w: payment can only be confirmed as verified or failed", models.ErrInvalidInput)
	}
	if req.Method != "" {
		if err := models.ValidatePaymentMethod(req.Method); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
		}
	}

	reference := strings.TrimSpace(req.Reference)
	if r.verifier != nil && reference == "" && target == models.PaymentVerified {
		return nil, models.ErrReferenceRequired
	}

	ctx, span := startSpan(ctx, "PaymentReconciler.Confirm",
		attribute.Int64("payment.id", paymentID), attribute.String("payment.target", string(target)))

	// The gateway round trip happens before any row is locked.
	var txn *GatewayTransaction
	if r.verifier != nil && reference != "" {
		var err error
		txn, err = r.verifier.Verify(ctx, reference)
		if err != nil {
			err = fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, err)
			endSpan(span, err)
			return nil, err
		}
		if txn.Status == models.PaymentPending {
			endSpan(span, models.ErrPaymentNotSettled)
			return nil, models.ErrPaymentNotSettled
		}
		target = txn.Status
	}

	result := &ReconcileResult{}
	err := r.store.WithTx(ctx, func(tx repositories.Tx) error {
		payment, order, err := r.lockPayment(ctx, tx, userID, paymentID)
		if err != nil {
			return err
		}

		if txn != nil {
			if err := checkGatewayTransaction(ctx, tx, payment, order, txn); err != nil {
				return err
			}
		}

		if payment.Status == target {
			result.Payment, result.Order, result.AlreadyProcessed = payment, order, true
			return nil
		}
		if !payment.IsPending() {
			return fmt.Errorf("%w: payment %d is %s", models.ErrPaymentAlreadyProcessed, paymentID, payment.Status)
		}

		if req.Method != "" {
			payment.Method = strings.TrimSpace(req.Method)
		}
		if reference != "" {
			payment.Reference = models.MaskReference(reference)
		}
		if txn != nil {
			payment.GatewayReference = txn.Reference
		}

		if target == models.PaymentVerified {
			result.PointsAwarded, err = r.markVerified(ctx, tx, payment, order)
		} else {
			err = r.markFailed(ctx, tx, payment, order)
		}
		if err != nil {
			return err
		}

		result.Payment, result.Order = payment, order
		return nil
	})
	endSpan(span, err)

	if err != nil {
		logging.Warn(ctx, r.logger, "payment reconciliation failed",
			zap.Int64("payment_id", paymentID), zap.String("target", string(target)), zap.Error(err))
		return nil, err
	}

	logging.Info(ctx, r.logger, "payment reconciled",
		zap.Int64("payment_id", paymentID),
		zap.Int64("order_id", result.Order.ID),
		zap.String("status", string(result.Payment.Status)),
		zap.Bool("already_processed", result.AlreadyProcessed),
		zap.Int64("points_awarded", result.PointsAwarded),
	)

	return result, nil
}

// Refund reverses a verified payment: the order becomes refunded, its
// stock is released and the points it earned are taken back. A zero
// userID skips the ownership check for operator calls.
func (r *PaymentReconciler) Refund(ctx context.Context, userID, paymentID int64) (*ReconcileResult, error) {
	ctx, span := startSpan(ctx, "PaymentReconciler.Refund", attribute.Int64("payment.id", paymentID))

	result := &ReconcileResult{}
	err := r.store.WithTx(ctx, func(tx repositories.Tx) error {
		payment, order, err := r.lockPayment(ctx, tx, userID, paymentID)
		if err != nil {
			return err
		}

		switch payment.Status {
		case models.PaymentRefunded:
			result.Payment, result.Order, result.AlreadyProcessed = payment, order, true
			return nil
		case models.PaymentVerified:
		default:
			return fmt.Errorf("%w: payment %d is %s", models.ErrInvalidTransition, paymentID, payment.Status)
		}

		if !order.CanTransitionTo(models.OrderRefunded) {
			return fmt.Errorf("%w: order %d is %s", models.ErrInvalidTransition, order.ID, order.Status)
		}

		payment.Status = models.PaymentRefunded
		if err := tx.Payments().Update(ctx, payment); err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}

		if err := tx.Orders().UpdateStatus(ctx, order.ID, order.Status, models.OrderRefunded); err != nil {
			return fmt.Errorf("failed to refund order: %w", err)
		}
		order.Status = models.OrderRefunded

		if err := releaseLines(ctx, tx.Inventory(), order.Items); err != nil {
			return err
		}

		reversed, err := reverseAccrual(ctx, tx.Loyalty(), order)
		if err != nil {
			return err
		}

		if err := emitEvent(ctx, tx, models.AggregateOrder, order.ID, models.EventOrderRefunded, models.OrderEventPayload{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
			PaymentID:   payment.ID,
			Status:      order.Status,
			TotalAmount: order.TotalAmount,
			Points:      -reversed,
		}); err != nil {
			return err
		}

		result.Payment, result.Order, result.PointsAwarded = payment, order, -reversed
		return nil
	})
	endSpan(span, err)

	if err != nil {
		logging.Warn(ctx, r.logger, "refund failed", zap.Int64("payment_id", paymentID), zap.Error(err))
		return nil, err
	}

	logging.Info(ctx, r.logger, "payment refunded",
		zap.Int64("payment_id", paymentID),
		zap.Int64("order_id", result.Order.ID),
		zap.Bool("already_processed", result.AlreadyProcessed),
	)

	return result, nil
}

// Fulfill marks a paid order as delivered
func (r *PaymentReconciler) Fulfill(ctx context.Context, orderID int64) (*models.Order, error) {
	var order *models.Order
	err := r.store.WithTx(ctx, func(tx repositories.Tx) error {
		var err error
		order, err = tx.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.IsPaid() {
			return fmt.Errorf("%w: order %d is %s", models.ErrInvalidTransition, orderID, order.Status)
		}

		if err := tx.Orders().UpdateStatus(ctx, orderID, models.OrderPaid, models.OrderFulfilled); err != nil {
			return fmt.Errorf("failed to fulfill order: %w", err)
		}
		order.Status = models.OrderFulfilled

		return emitEvent(ctx, tx, models.AggregateOrder, order.ID, models.EventOrderFulfilled, models.OrderEventPayload{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
			Status:      order.Status,
			TotalAmount: order.TotalAmount,
		})
	})
	if err != nil {
		return nil, err
	}

	logging.Info(ctx, r.logger, "order fulfilled", zap.Int64("order_id", orderID))

	return order, nil
}

// lockPayment loads the payment under a row lock together with its order.
// userID 0 skips the ownership check for trusted callers.
func (r *PaymentReconciler) lockPayment(ctx context.Context, tx repositories.Tx, userID, paymentID int64) (*models.Payment, *models.Order, error) {
	payment, err := tx.Payments().GetForUpdate(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}

	order, err := tx.Orders().GetByID(ctx, payment.OrderID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load order: %w", err)
	}

	if userID != 0 && order.UserID != userID {
		return nil, nil, models.ErrPaymentNotFound
	}

	return payment, order, nil
}

// checkGatewayTransaction rejects a gateway transaction that is bound to
// another payment, or that settled a different amount than the order total.
func checkGatewayTransaction(ctx context.Context, tx repositories.Tx, payment *models.Payment, order *models.Order, txn *GatewayTransaction) error {
	if payment.GatewayReference != "" && payment.GatewayReference != txn.Reference {
		return fmt.Errorf("%w: payment %d was settled by another transaction", models.ErrReferenceInUse, payment.ID)
	}

	owner, err := tx.Payments().GetByGatewayReference(ctx, txn.Reference)
	switch {
	case errors.Is(err, models.ErrPaymentNotFound):
	case err != nil:
		return fmt.Errorf("failed to look up gateway reference: %w", err)
	case owner.ID != payment.ID:
		return fmt.Errorf("%w: %s", models.ErrReferenceInUse, models.MaskReference(txn.Reference))
	}

	if txn.Status == models.PaymentVerified && txn.Amount != order.TotalAmount {
		return fmt.Errorf("%w: gateway settled %d, order total is %d",
			models.ErrAmountMismatch, txn.Amount, order.TotalAmount)
	}

	return nil
}

func (r *PaymentReconciler) markVerified(ctx context.Context, tx repositories.Tx, payment *models.Payment, order *models.Order) (int64, error) {
	now := r.now()
	payment.Status = models.PaymentVerified
	payment.VerifiedAt = &now
	if err := tx.Payments().Update(ctx, payment); err != nil {
		return 0, fmt.Errorf("failed to update payment: %w", err)
	}

	if err := tx.Orders().UpdateStatus(ctx, order.ID, models.OrderPending, models.OrderPaid); err != nil {
		return 0, fmt.Errorf("failed to mark order paid: %w", err)
	}
	order.Status = models.OrderPaid

	points, err := accruePoints(ctx, tx, order)
	if err != nil {
		return 0, err
	}

	if err := emitEvent(ctx, tx, models.AggregateOrder, order.ID, models.EventOrderPaid, models.OrderEventPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		PaymentID:   payment.ID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		Points:      points,
	}); err != nil {
		return 0, err
	}

	return points, nil
}

func (r *PaymentReconciler) markFailed(ctx context.Context, tx repositories.Tx, payment *models.Payment, order *models.Order) error {
	payment.Status = models.PaymentFailed
	if err := tx.Payments().Update(ctx, payment); err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}

	if err := tx.Orders().UpdateStatus(ctx, order.ID, models.OrderPending, models.OrderCancelled); err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}
	order.Status = models.OrderCancelled

	if err := releaseLines(ctx, tx.Inventory(), order.Items); err != nil {
		return err
	}

	return emitEvent(ctx, tx, models.AggregateOrder, order.ID, models.EventOrderCancelled, models.OrderEventPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		PaymentID:   payment.ID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
	})
}

// accruePoints credits quantity * points_earned_per_unit over the order
// lines. The journal key makes it apply at most once per order.
func accruePoints(ctx context.Context, tx repositories.Tx, order *models.Order) (int64, error) {
	points := order.PointsEarned()
	if points <= 0 {
		return 0, nil
	}

	_, applied, err := creditPoints(ctx, tx.Loyalty(), order.UserID, points, models.ReasonAccrual, models.AccrualKey(order.ID))
	if err != nil {
		return 0, err
	}
	if !applied {
		return 0, nil
	}

	return points, nil
}

// reverseAccrual takes back what the order's accrual credited, clamped at
// the user's current balance. It returns the points actually debited.
func reverseAccrual(ctx context.Context, repo repositories.LoyaltyRepository, order *models.Order) (int64, error) {
	accrual, err := repo.FindEntry(ctx, models.AccrualKey(order.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to look up accrual: %w", err)
	}
	if accrual == nil || accrual.Delta <= 0 {
		return 0, nil
	}

	reversal, err := repo.FindEntry(ctx, models.RefundKey(order.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to look up refund reversal: %w", err)
	}
	if reversal != nil {
		return 0, nil
	}

	entry, err := debitPoints(ctx, repo, order.UserID, accrual.Delta, models.ReasonRefundReversal, models.RefundKey(order.ID), false)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, nil
	}

	return -entry.Delta, nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
)

const paymentColumns = `id, order_id, method, reference, gateway_reference, status, verified_at, created_at, updated_at`

// PaymentRepository handles payment data operations
type PaymentRepository struct {
	db DBTX
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func scanPayment(row scanner) (*models.Payment, error) {
	p := &models.Payment{}
	var (
		gatewayRef sql.NullString
		verifiedAt sql.NullTime
	)

	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.Method,
		&p.Reference,
		&gatewayRef,
		&p.Status,
		&verifiedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.GatewayReference = gatewayRef.String
	if verifiedAt.Valid {
		t := verifiedAt.Time
		p.VerifiedAt = &t
	}

	return p, nil
}

// Create inserts the payment for an order
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.Status == "" {
		payment.Status = models.PaymentPending
	}

	if err := payment.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO payments (order_id, method, reference, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		payment.OrderID,
		payment.Method,
		payment.Reference,
		payment.Status,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if pqCode(err) == codeUniqueViolation {
			return fmt.Errorf("%w: order %d already has a payment", models.ErrDuplicateEntry, payment.OrderID)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// GetByID retrieves a payment by ID
func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

// GetByOrder retrieves the payment attached to an order
func (r *PaymentRepository) GetByOrder(ctx context.Context, orderID int64) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID)
}

// GetForUpdate retrieves a payment and locks its row for the rest of the
// transaction, serializing reconciliation of the same payment.
func (r *PaymentRepository) GetForUpdate(ctx context.Context, id int64) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
}

// GetByGatewayReference retrieves the payment bound to a gateway transaction
func (r *PaymentRepository) GetByGatewayReference(ctx context.Context, reference string) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE gateway_reference = $1`, reference)
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, arg any) (*models.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// Update writes the mutable payment fields
func (r *PaymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	if err := payment.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE payments
		SET method = $1, reference = $2, gateway_reference = $3, status = $4, verified_at = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`

	var verifiedAt sql.NullTime
	if payment.VerifiedAt != nil {
		verifiedAt = sql.NullTime{Time: *payment.VerifiedAt, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		payment.Method,
		payment.Reference,
		sql.NullString{String: payment.GatewayReference, Valid: payment.GatewayReference != ""},
		payment.Status,
		verifiedAt,
		payment.ID,
	).Scan(&payment.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.ErrPaymentNotFound
		}
		if pqCode(err) == codeUniqueViolation {
			return fmt.Errorf("%w: %s", models.ErrReferenceInUse, models.MaskReference(payment.GatewayReference))
		}
		return fmt.Errorf("failed to update payment: %w", err)
	}

	return nil
}

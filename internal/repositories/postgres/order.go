package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
)

// OrderRepository handles order data operations
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a pending order. An order number is generated when the
// caller did not supply one.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	now := time.Now()

	if order.OrderNumber == "" {
		orderNumber := models.GenerateOrderNumber(now)

		// Ensure order number is unique (retry if collision)
		for i := 0; i < 5; i++ {
			var exists bool
			err := r.db.QueryRowContext(ctx,
				"SELECT EXISTS(SELECT 1 FROM orders WHERE order_number = $1)", orderNumber).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check order number uniqueness: %w", err)
			}
			if !exists {
				break
			}
			orderNumber = models.GenerateOrderNumber(now)
		}
		order.OrderNumber = orderNumber
	}

	if order.Status == "" {
		order.Status = models.OrderPending
	}

	if err := order.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO orders (user_id, order_number, total_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		order.UserID,
		order.OrderNumber,
		order.TotalAmount,
		order.Status,
		now,
		now,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

// GetByID retrieves an order and its lines
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	query := `
		SELECT id, user_id, order_number, total_amount, status, created_at, updated_at
		FROM orders
		WHERE id = $1`

	order := &models.Order{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.UserID,
		&order.OrderNumber,
		&order.TotalAmount,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	items, err := queryCartItems(ctx, r.db, `
		SELECT `+cartItemColumns+`
		FROM cart_items
		WHERE order_id = $1 AND is_deleted = FALSE
		ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	order.Items = items

	return order, nil
}

// UpdateStatus moves an order from one status to another
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, from, to models.OrderStatus) error {
	if err := models.ValidateOrderStatus(to); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`

	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if n == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)", id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check order existence: %w", err)
		}
		if !exists {
			return models.ErrOrderNotFound
		}
		return fmt.Errorf("%w: order %d is not %s", models.ErrInvalidTransition, id, from)
	}

	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
)

const cartItemColumns = `id, cart_id, order_id, item_type, item_id, quantity, unit_price, points_earned_per_unit, is_deleted, created_at, updated_at`

// CartRepository handles carts and cart lines
type CartRepository struct {
	db DBTX
}

// NewCartRepository creates a new cart repository
func NewCartRepository(db DBTX) *CartRepository {
	return &CartRepository{db: db}
}

func scanCartItem(row scanner) (*models.CartItem, error) {
	var (
		item     models.CartItem
		cartID   sql.NullInt64
		orderID  sql.NullInt64
		itemType string
	)

	err := row.Scan(
		&item.ID,
		&cartID,
		&orderID,
		&itemType,
		&item.Item.ID,
		&item.Quantity,
		&item.UnitPrice,
		&item.PointsPerUnit,
		&item.Deleted,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.CartID = int64Ptr(cartID)
	item.OrderID = int64Ptr(orderID)
	item.Item.Type = models.ItemType(itemType)

	return &item, nil
}

func queryCartItems(ctx context.Context, db DBTX, query string, args ...any) ([]models.CartItem, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.CartItem
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, *item)
	}

	return items, rows.Err()
}

// GetOrCreate returns the user's cart, inserting it on first use
func (r *CartRepository) GetOrCreate(ctx context.Context, userID int64) (*models.Cart, error) {
	query := `
		INSERT INTO carts (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, user_id, created_at`

	cart := &models.Cart{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt)
	if err != nil {
		if pqCode(err) == codeForeignKeyViolation {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get or create cart: %w", err)
	}

	return cart, nil
}

// ActiveItems returns the cart's live lines in insertion order
func (r *CartRepository) ActiveItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	query := `
		SELECT ` + cartItemColumns + `
		FROM cart_items
		WHERE cart_id = $1 AND is_deleted = FALSE
		ORDER BY id`

	items, err := queryCartItems(ctx, r.db, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart items: %w", err)
	}

	return items, nil
}

// FindActiveItem returns the live line for ref in the cart
func (r *CartRepository) FindActiveItem(ctx context.Context, cartID int64, ref models.ItemRef) (*models.CartItem, error) {
	query := `
		SELECT ` + cartItemColumns + `
		FROM cart_items
		WHERE cart_id = $1 AND item_type = $2 AND item_id = $3 AND is_deleted = FALSE`

	item, err := scanCartItem(r.db.QueryRowContext(ctx, query, cartID, string(ref.Type), ref.ID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrCartItemNotFound
		}
		return nil, fmt.Errorf("failed to find cart item: %w", err)
	}

	return item, nil
}

// GetActiveItem returns a live line by id, scoped to the cart
func (r *CartRepository) GetActiveItem(ctx context.Context, cartID, itemID int64) (*models.CartItem, error) {
	query := `
		SELECT ` + cartItemColumns + `
		FROM cart_items
		WHERE id = $1 AND cart_id = $2 AND is_deleted = FALSE`

	item, err := scanCartItem(r.db.QueryRowContext(ctx, query, itemID, cartID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrCartItemNotFound
		}
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}

	return item, nil
}

// AddItem inserts a new cart line
func (r *CartRepository) AddItem(ctx context.Context, item *models.CartItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO cart_items (cart_id, order_id, item_type, item_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		nullInt64(item.CartID),
		nullInt64(item.OrderID),
		string(item.Item.Type),
		item.Item.ID,
		item.Quantity,
		item.UnitPrice,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to add cart item: %w", err)
	}

	return nil
}

// UpdateQuantity sets a new quantity on a live cart line
func (r *CartRepository) UpdateQuantity(ctx context.Context, itemID int64, quantity int) error {
	if err := models.ValidateQuantity(quantity); err != nil {
		return err
	}

	query := `
		UPDATE cart_items
		SET quantity = $1, updated_at = NOW()
		WHERE id = $2 AND cart_id IS NOT NULL AND is_deleted = FALSE`

	return r.execOne(ctx, "update cart item quantity", query, quantity, itemID)
}

// SoftDelete tombstones a live cart line
func (r *CartRepository) SoftDelete(ctx context.Context, itemID int64) error {
	query := `
		UPDATE cart_items
		SET is_deleted = TRUE, updated_at = NOW()
		WHERE id = $1 AND cart_id IS NOT NULL AND is_deleted = FALSE`

	return r.execOne(ctx, "remove cart item", query, itemID)
}

// Clear tombstones every live line in the cart
func (r *CartRepository) Clear(ctx context.Context, cartID int64) (int, error) {
	query := `
		UPDATE cart_items
		SET is_deleted = TRUE, updated_at = NOW()
		WHERE cart_id = $1 AND is_deleted = FALSE`

	result, err := r.db.ExecContext(ctx, query, cartID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return int(n), nil
}

// MoveToOrder flips ownership of the given lines from cart to order and
// stores the points each line earns
func (r *CartRepository) MoveToOrder(ctx context.Context, cartID int64, lines []models.CartItem, orderID int64) error {
	ids := make([]int64, len(lines))
	points := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = line.ID
		points[i] = int64(line.PointsPerUnit)
	}

	query := `
		UPDATE cart_items AS c
		SET cart_id = NULL, order_id = $1, points_earned_per_unit = v.points, updated_at = NOW()
		FROM unnest($3::bigint[], $4::bigint[]) AS v(id, points)
		WHERE c.id = v.id AND c.cart_id = $2 AND c.is_deleted = FALSE`

	result, err := r.db.ExecContext(ctx, query, orderID, cartID, pq.Array(ids), pq.Array(points))
	if err != nil {
		return fmt.Errorf("failed to move cart items to order: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if int(n) != len(lines) {
		return fmt.Errorf("%w: moved %d of %d cart items", models.ErrConcurrentModification, n, len(lines))
	}

	return nil
}

func (r *CartRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if n == 0 {
		return models.ErrCartItemNotFound
	}

	return nil
}

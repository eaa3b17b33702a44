package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
)

const catalogColumns = `id, name, price, quantity_available, quantity_sold, limit_per_user, points_earned_per_unit, is_deleted`

// InventoryRepository handles the stock counters on tickets and products
type InventoryRepository struct {
	db DBTX
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db DBTX) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func catalogTable(t models.ItemType) (string, error) {
	switch t {
	case models.ItemTicket:
		return "tickets", nil
	case models.ItemProduct:
		return "products", nil
	default:
		return "", fmt.Errorf("%w: unknown item type %q", models.ErrInvalidInput, t)
	}
}

func scanCatalogItem(t models.ItemType, row scanner) (*models.CatalogItem, error) {
	item := &models.CatalogItem{Ref: models.ItemRef{Type: t}}
	err := row.Scan(
		&item.Ref.ID,
		&item.Name,
		&item.UnitPrice,
		&item.QuantityAvailable,
		&item.QuantitySold,
		&item.LimitPerUser,
		&item.PointsEarnedPerUnit,
		&item.Deleted,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Get retrieves a live catalog item
func (r *InventoryRepository) Get(ctx context.Context, ref models.ItemRef) (*models.CatalogItem, error) {
	table, err := catalogTable(ref.Type)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1 AND is_deleted = FALSE`, catalogColumns, table)

	item, err := scanCatalogItem(ref.Type, r.db.QueryRowContext(ctx, query, ref.ID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", ref, err)
	}

	return item, nil
}

// Reserve decrements available and increments sold in a single conditional
// update, so concurrent reservations serialize on the row.
func (r *InventoryRepository) Reserve(ctx context.Context, ref models.ItemRef, quantity int) (*models.CatalogItem, error) {
	if err := models.ValidateQuantity(quantity); err != nil {
		return nil, err
	}

	table, err := catalogTable(ref.Type)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET quantity_available = quantity_available - $1,
		    quantity_sold = quantity_sold + $1,
		    updated_at = NOW()
		WHERE id = $2 AND is_deleted = FALSE AND quantity_available >= $1
		RETURNING %s`, table, catalogColumns)

	item, err := scanCatalogItem(ref.Type, r.db.QueryRowContext(ctx, query, quantity, ref.ID))
	if err == nil {
		return item, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to reserve %s: %w", ref, err)
	}

	// Nothing matched: either the item is gone or stock is short.
	current, err := r.Get(ctx, ref)
	if err != nil {
		return nil, err
	}

	return nil, &models.InsufficientStockError{
		Item:      ref,
		Requested: quantity,
		Available: current.QuantityAvailable,
	}
}

// Release returns stock to the available pool. The amount moved is capped
// at the sold count so sold never drops below zero.
func (r *InventoryRepository) Release(ctx context.Context, ref models.ItemRef, quantity int) (*models.CatalogItem, error) {
	if err := models.ValidateQuantity(quantity); err != nil {
		return nil, err
	}

	table, err := catalogTable(ref.Type)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET quantity_available = quantity_available + LEAST($1, quantity_sold),
		    quantity_sold = quantity_sold - LEAST($1, quantity_sold),
		    updated_at = NOW()
		WHERE id = $2
		RETURNING %s`, table, catalogColumns)

	item, err := scanCatalogItem(ref.Type, r.db.QueryRowContext(ctx, query, quantity, ref.ID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to release %s: %w", ref, err)
	}

	return item, nil
}

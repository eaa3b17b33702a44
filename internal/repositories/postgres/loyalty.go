package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
)

const loyaltyEntryColumns = `id, user_id, delta, balance_after, reason, idempotency_key, created_at`

// LoyaltyRepository handles users' loyalty balances and the points journal
type LoyaltyRepository struct {
	db DBTX
}

// NewLoyaltyRepository creates a new loyalty repository
func NewLoyaltyRepository(db DBTX) *LoyaltyRepository {
	return &LoyaltyRepository{db: db}
}

// GetUser retrieves a user's balance
func (r *LoyaltyRepository) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	query := `
		SELECT id, email, loyalty_points, created_at
		FROM users
		WHERE id = $1`

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.LoyaltyPoints,
		&user.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// Credit adds points to the balance
func (r *LoyaltyRepository) Credit(ctx context.Context, userID, points int64) (int64, error) {
	if err := models.ValidatePoints(points); err != nil {
		return 0, err
	}

	var balance int64
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET loyalty_points = loyalty_points + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING loyalty_points`, points, userID).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, models.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to credit loyalty points: %w", err)
	}

	return balance, nil
}

// DebitClamped subtracts up to points, flooring the balance at zero. The
// row is locked first so the amount debited matches the balance it is
// computed from.
func (r *LoyaltyRepository) DebitClamped(ctx context.Context, userID, points int64) (int64, int64, error) {
	if err := models.ValidatePoints(points); err != nil {
		return 0, 0, err
	}

	var current int64
	err := r.db.QueryRowContext(ctx,
		`SELECT loyalty_points FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, models.ErrUserNotFound
		}
		return 0, 0, fmt.Errorf("failed to lock loyalty balance: %w", err)
	}

	debited := min(points, current)
	if debited == 0 {
		return 0, current, nil
	}

	var balance int64
	err = r.db.QueryRowContext(ctx, `
		UPDATE users
		SET loyalty_points = loyalty_points - $1, updated_at = NOW()
		WHERE id = $2
		RETURNING loyalty_points`, debited, userID).Scan(&balance)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to debit loyalty points: %w", err)
	}

	return debited, balance, nil
}

// DebitExact subtracts points only when the balance covers them
func (r *LoyaltyRepository) DebitExact(ctx context.Context, userID, points int64) (int64, error) {
	if err := models.ValidatePoints(points); err != nil {
		return 0, err
	}

	var balance int64
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET loyalty_points = loyalty_points - $1, updated_at = NOW()
		WHERE id = $2 AND loyalty_points >= $1
		RETURNING loyalty_points`, points, userID).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to debit loyalty points: %w", err)
	}

	if _, err := r.GetUser(ctx, userID); err != nil {
		return 0, err
	}

	return 0, models.ErrInsufficientPoints
}

// AppendEntry writes a journal row
func (r *LoyaltyRepository) AppendEntry(ctx context.Context, entry *models.LoyaltyEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	var key sql.NullString
	if entry.IdempotencyKey != nil {
		key = sql.NullString{String: *entry.IdempotencyKey, Valid: true}
	}

	query := `
		INSERT INTO loyalty_entries (user_id, delta, balance_after, reason, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		entry.UserID,
		entry.Delta,
		entry.BalanceAfter,
		entry.Reason,
		key,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if pqCode(err) == codeUniqueViolation {
			return fmt.Errorf("%w: loyalty entry %s", models.ErrDuplicateEntry, key.String)
		}
		return fmt.Errorf("failed to append loyalty entry: %w", err)
	}

	return nil
}

// FindEntry returns the journal row with the key, or nil if there is none
func (r *LoyaltyRepository) FindEntry(ctx context.Context, idempotencyKey string) (*models.LoyaltyEntry, error) {
	rows, err := r.queryEntries(ctx, `
		SELECT `+loyaltyEntryColumns+`
		FROM loyalty_entries
		WHERE idempotency_key = $1`, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to find loyalty entry: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Entries returns the newest journal rows for a user
func (r *LoyaltyRepository) Entries(ctx context.Context, userID int64, limit int) ([]models.LoyaltyEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	entries, err := r.queryEntries(ctx, `
		SELECT `+loyaltyEntryColumns+`
		FROM loyalty_entries
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get loyalty entries: %w", err)
	}

	return entries, nil
}

func (r *LoyaltyRepository) queryEntries(ctx context.Context, query string, args ...any) ([]models.LoyaltyEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LoyaltyEntry
	for rows.Next() {
		var (
			e   models.LoyaltyEntry
			key sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.BalanceAfter, &e.Reason, &key, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan loyalty entry: %w", err)
		}
		if key.Valid {
			k := key.String
			e.IdempotencyKey = &k
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

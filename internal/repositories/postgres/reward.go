package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
)

const redemptionColumns = `id, user_id, reward_id, points_spent, status, created_at, updated_at`

// RewardRepository handles rewards and redemptions
type RewardRepository struct {
	db DBTX
}

// NewRewardRepository creates a new reward repository
func NewRewardRepository(db DBTX) *RewardRepository {
	return &RewardRepository{db: db}
}

// GetReward retrieves a reward by ID
func (r *RewardRepository) GetReward(ctx context.Context, id int64) (*models.Reward, error) {
	query := `
		SELECT id, name, points_required, product_id, ticket_id, status, expires_at, created_at
		FROM rewards
		WHERE id = $1`

	var (
		reward    models.Reward
		productID sql.NullInt64
		ticketID  sql.NullInt64
		expiresAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&reward.ID,
		&reward.Name,
		&reward.PointsRequired,
		&productID,
		&ticketID,
		&reward.Status,
		&expiresAt,
		&reward.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrRewardNotFound
		}
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}

	reward.ProductID = int64Ptr(productID)
	reward.TicketID = int64Ptr(ticketID)
	if expiresAt.Valid {
		t := expiresAt.Time
		reward.ExpiresAt = &t
	}

	return &reward, nil
}

func scanRedemption(row scanner) (*models.Redemption, error) {
	red := &models.Redemption{}
	err := row.Scan(
		&red.ID,
		&red.UserID,
		&red.RewardID,
		&red.PointsSpent,
		&red.Status,
		&red.CreatedAt,
		&red.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return red, nil
}

// CreateRedemption inserts a pending redemption
func (r *RewardRepository) CreateRedemption(ctx context.Context, redemption *models.Redemption) error {
	if redemption.Status == "" {
		redemption.Status = models.RedemptionPending
	}

	query := `
		INSERT INTO redemptions (user_id, reward_id, points_spent, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		redemption.UserID,
		redemption.RewardID,
		redemption.PointsSpent,
		redemption.Status,
	).Scan(&redemption.ID, &redemption.CreatedAt, &redemption.UpdatedAt)
	if err != nil {
		if pqCode(err) == codeForeignKeyViolation {
			return fmt.Errorf("%w: redemption references a missing user or reward", models.ErrInvalidInput)
		}
		return fmt.Errorf("failed to create redemption: %w", err)
	}

	return nil
}

// GetRedemption retrieves a redemption by ID
func (r *RewardRepository) GetRedemption(ctx context.Context, id int64) (*models.Redemption, error) {
	red, err := scanRedemption(r.db.QueryRowContext(ctx,
		`SELECT `+redemptionColumns+` FROM redemptions WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrRedemptionNotFound
		}
		return nil, fmt.Errorf("failed to get redemption: %w", err)
	}
	return red, nil
}

// UpdateRedemptionStatus moves a redemption from one status to another
func (r *RewardRepository) UpdateRedemptionStatus(ctx context.Context, id int64, from, to models.RedemptionStatus) error {
	query := `
		UPDATE redemptions
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`

	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update redemption status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if n == 0 {
		if _, err := r.GetRedemption(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: redemption %d is not %s", models.ErrInvalidTransition, id, from)
	}

	return nil
}

// ListRedemptions returns a user's redemptions, newest first
func (r *RewardRepository) ListRedemptions(ctx context.Context, userID int64) ([]models.Redemption, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+redemptionColumns+`
		FROM redemptions
		WHERE user_id = $1
		ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list redemptions: %w", err)
	}
	defer rows.Close()

	var redemptions []models.Redemption
	for rows.Next() {
		red, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan redemption: %w", err)
		}
		redemptions = append(redemptions, *red)
	}

	return redemptions, rows.Err()
}

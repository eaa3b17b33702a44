package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/logging"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/repositories"
)

// RedemptionEngine exchanges loyalty points for rewards
type RedemptionEngine struct {
	store  repositories.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewRedemptionEngine creates a new redemption engine
func NewRedemptionEngine(store repositories.Store, logger *zap.Logger) *RedemptionEngine {
	return &RedemptionEngine{store: store, logger: logger, now: time.Now}
}

// Redeem debits the reward's current cost and records a pending
// redemption. The debit never overdraws and both writes commit together.
func (e *RedemptionEngine) Redeem(ctx context.Context, userID, rewardID int64) (*models.Redemption, error) {
	ctx, span := startSpan(ctx, "RedemptionEngine.Redeem",
		attribute.Int64("user.id", userID), attribute.Int64("reward.id", rewardID))

	var redemption *models.Redemption
	err := e.store.WithTx(ctx, func(tx repositories.Tx) error {
		reward, err := tx.Rewards().GetReward(ctx, rewardID)
		if err != nil {
			return err
		}
		if err := reward.CheckRedeemable(e.now()); err != nil {
			return err
		}

		user, err := tx.Loyalty().GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user.LoyaltyPoints < reward.PointsRequired {
			return fmt.Errorf("%w: reward costs %d, balance is %d",
				models.ErrInsufficientPoints, reward.PointsRequired, user.LoyaltyPoints)
		}

		redemption = &models.Redemption{
			UserID:      userID,
			RewardID:    reward.ID,
			PointsSpent: reward.PointsRequired,
			Status:      models.RedemptionPending,
		}
		if err := tx.Rewards().CreateRedemption(ctx, redemption); err != nil {
			return fmt.Errorf("failed to create redemption: %w", err)
		}

		if _, err := debitPoints(ctx, tx.Loyalty(), userID, reward.PointsRequired,
			models.ReasonRedemption, models.RedemptionKey(redemption.ID), true); err != nil {
			return err
		}

		return emitEvent(ctx, tx, models.AggregateRedemption, redemption.ID, models.EventRedemptionCreated,
			models.RedemptionEventPayload{
				RedemptionID: redemption.ID,
				UserID:       userID,
				RewardID:     reward.ID,
				PointsSpent:  redemption.PointsSpent,
				Status:       redemption.Status,
			})
	})
	endSpan(span, err)

	if err != nil {
		logging.Warn(ctx, e.logger, "redemption rejected",
			zap.Int64("user_id", userID), zap.Int64("reward_id", rewardID), zap.Error(err))
		return nil, err
	}

	logging.Info(ctx, e.logger, "reward redeemed",
		zap.Int64("user_id", userID),
		zap.Int64("reward_id", rewardID),
		zap.Int64("redemption_id", redemption.ID),
		zap.Int64("points_spent", redemption.PointsSpent),
	)

	return redemption, nil
}

// Fulfill marks a pending redemption as delivered. Points are unchanged.
func (e *RedemptionEngine) Fulfill(ctx context.Context, redemptionID int64) (*models.Redemption, error) {
	var redemption *models.Redemption
	err := e.store.WithTx(ctx, func(tx repositories.Tx) error {
		var err error
		redemption, err = tx.Rewards().GetRedemption(ctx, redemptionID)
		if err != nil {
			return err
		}
		if !redemption.IsPending() {
			return fmt.Errorf("%w: redemption %d is %s", models.ErrInvalidTransition, redemptionID, redemption.Status)
		}

		if err := tx.Rewards().UpdateRedemptionStatus(ctx, redemptionID, models.RedemptionPending, models.RedemptionFulfilled); err != nil {
			return err
		}
		redemption.Status = models.RedemptionFulfilled
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Info(ctx, e.logger, "redemption fulfilled", zap.Int64("redemption_id", redemptionID))

	return redemption, nil
}

// Cancel cancels one of the user's pending redemptions and re-credits the
// points it spent.
func (e *RedemptionEngine) Cancel(ctx context.Context, userID, redemptionID int64) (*models.Redemption, error) {
	var redemption *models.Redemption
	err := e.store.WithTx(ctx, func(tx repositories.Tx) error {
		var err error
		redemption, err = tx.Rewards().GetRedemption(ctx, redemptionID)
		if err != nil {
			return err
		}
		if redemption.UserID != userID {
			return models.ErrRedemptionNotFound
		}
		if !redemption.IsPending() {
			return fmt.Errorf("%w: redemption %d is %s", models.ErrInvalidTransition, redemptionID, redemption.Status)
		}

		if err := tx.Rewards().UpdateRedemptionStatus(ctx, redemptionID, models.RedemptionPending, models.RedemptionCancelled); err != nil {
			return err
		}
		redemption.Status = models.RedemptionCancelled

		if redemption.PointsSpent > 0 {
			if _, _, err := creditPoints(ctx, tx.Loyalty(), userID, redemption.PointsSpent,
				models.ReasonRedemptionReversal, models.RedemptionReversalKey(redemptionID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, models.ErrRedemptionNotFound) {
			logging.Warn(ctx, e.logger, "redemption cancel failed",
				zap.Int64("redemption_id", redemptionID), zap.Error(err))
		}
		return nil, err
	}

	logging.Info(ctx, e.logger, "redemption cancelled",
		zap.Int64("user_id", userID),
		zap.Int64("redemption_id", redemptionID),
		zap.Int64("points_returned", redemption.PointsSpent),
	)

	return redemption, nil
}

// List returns the user's redemptions, newest first
func (e *RedemptionEngine) List(ctx context.Context, userID int64) ([]models.Redemption, error) {
	var redemptions []models.Redemption
	err := e.store.WithTx(ctx, func(tx repositories.Tx) error {
		var err error
		redemptions, err = tx.Rewards().ListRedemptions(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return redemptions, nil
}

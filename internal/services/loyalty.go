package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/logging"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/repositories"
)

// LoyaltyLedger owns users' loyalty balances. Every balance change is
// journaled in the same transaction.
type LoyaltyLedger struct {
	store  repositories.Store
	logger *zap.Logger
}

// NewLoyaltyLedger creates a new loyalty ledger
func NewLoyaltyLedger(store repositories.Store, logger *zap.Logger) *LoyaltyLedger {
	return &LoyaltyLedger{store: store, logger: logger}
}

// Credit adds points to a user's balance and returns the new balance
func (l *LoyaltyLedger) Credit(ctx context.Context, userID, points int64, reason models.LoyaltyReason) (int64, error) {
	ctx, span := startSpan(ctx, "LoyaltyLedger.Credit",
		attribute.Int64("user.id", userID), attribute.Int64("loyalty.points", points))

	var balance int64
	err := l.store.WithTx(ctx, func(tx repositories.Tx) error {
		entry, _, err := creditPoints(ctx, tx.Loyalty(), userID, points, reason, "")
		if err != nil {
			return err
		}
		balance = entry.BalanceAfter
		return nil
	})
	endSpan(span, err)

	if err != nil {
		return 0, err
	}

	logging.Info(ctx, l.logger, "loyalty points credited",
		zap.Int64("user_id", userID), zap.Int64("points", points), zap.Int64("balance", balance))

	return balance, nil
}

// Debit subtracts points from a user's balance, flooring it at zero.
// Debiting more than the balance is not an error.
func (l *LoyaltyLedger) Debit(ctx context.Context, userID, points int64, reason models.LoyaltyReason) (int64, error) {
	ctx, span := startSpan(ctx, "LoyaltyLedger.Debit",
		attribute.Int64("user.id", userID), attribute.Int64("loyalty.points", points))

	var balance, debited int64
	err := l.store.WithTx(ctx, func(tx repositories.Tx) error {
		entry, err := debitPoints(ctx, tx.Loyalty(), userID, points, reason, "", false)
		if err != nil {
			return err
		}
		if entry != nil {
			debited = -entry.Delta
			balance = entry.BalanceAfter
			return nil
		}
		user, err := tx.Loyalty().GetUser(ctx, userID)
		if err != nil {
			return err
		}
		balance = user.LoyaltyPoints
		return nil
	})
	endSpan(span, err)

	if err != nil {
		return 0, err
	}

	logging.Info(ctx, l.logger, "loyalty points debited",
		zap.Int64("user_id", userID),
		zap.Int64("requested", points),
		zap.Int64("debited", debited),
		zap.Int64("balance", balance),
	)

	return balance, nil
}

// Balance returns the user's current balance
func (l *LoyaltyLedger) Balance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := l.store.WithTx(ctx, func(tx repositories.Tx) error {
		user, err := tx.Loyalty().GetUser(ctx, userID)
		if err != nil {
			return err
		}
		balance = user.LoyaltyPoints
		return nil
	})
	return balance, err
}

// History returns the newest journal rows for a user
func (l *LoyaltyLedger) History(ctx context.Context, userID int64, limit int) ([]models.LoyaltyEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var entries []models.LoyaltyEntry
	err := l.store.WithTx(ctx, func(tx repositories.Tx) error {
		if _, err := tx.Loyalty().GetUser(ctx, userID); err != nil {
			return err
		}
		var err error
		entries, err = tx.Loyalty().Entries(ctx, userID, limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// creditPoints credits and journals points. With a key, a credit already
// journaled under it is returned with applied=false and nothing changes.
func creditPoints(ctx context.Context, repo repositories.LoyaltyRepository, userID, points int64, reason models.LoyaltyReason, key string) (*models.LoyaltyEntry, bool, error) {
	if err := models.ValidatePoints(points); err != nil {
		return nil, false, err
	}

	if key != "" {
		existing, err := repo.FindEntry(ctx, key)
		if err != nil {
			return nil, false, fmt.Errorf("failed to look up loyalty entry: %w", err)
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	balance, err := repo.Credit(ctx, userID, points)
	if err != nil {
		return nil, false, fmt.Errorf("failed to credit points: %w", err)
	}

	entry := &models.LoyaltyEntry{
		UserID:       userID,
		Delta:        points,
		BalanceAfter: balance,
		Reason:       reason,
	}
	if key != "" {
		entry.IdempotencyKey = &key
	}

	if err := repo.AppendEntry(ctx, entry); err != nil {
		return nil, false, fmt.Errorf("failed to journal credit: %w", err)
	}

	return entry, true, nil
}

// debitPoints debits and journals points. A strict debit fails with
// ErrInsufficientPoints instead of clamping. A clamped debit against an
// empty balance changes nothing and returns a nil entry.
func debitPoints(ctx context.Context, repo repositories.LoyaltyRepository, userID, points int64, reason models.LoyaltyReason, key string, strict bool) (*models.LoyaltyEntry, error) {
	if err := models.ValidatePoints(points); err != nil {
		return nil, err
	}

	var debited, balance int64
	if strict {
		var err error
		balance, err = repo.DebitExact(ctx, userID, points)
		if err != nil {
			if errors.Is(err, models.ErrInsufficientPoints) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to debit points: %w", err)
		}
		debited = points
	} else {
		var err error
		debited, balance, err = repo.DebitClamped(ctx, userID, points)
		if err != nil {
			return nil, fmt.Errorf("failed to debit points: %w", err)
		}
		if debited == 0 {
			return nil, nil
		}
	}

	entry := &models.LoyaltyEntry{
		UserID:       userID,
		Delta:        -debited,
		BalanceAfter: balance,
		Reason:       reason,
	}
	if key != "" {
		entry.IdempotencyKey = &key
	}

	if err := repo.AppendEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to journal debit: %w", err)
	}

	return entry, nil
}

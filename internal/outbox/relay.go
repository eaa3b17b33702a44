package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/logging"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/repositories"
)

// Config tunes the relay loop
type Config struct {
	BatchSize   int
	Interval    time.Duration
	Lease       time.Duration
	MaxAttempts int
}

// Relay polls the outbox and hands claimed events to the dispatcher.
// Claiming and marking are short transactions; publishing happens between
// them with no transaction open.
type Relay struct {
	logger     *zap.Logger
	store      repositories.Store
	dispatcher *Dispatcher
	relayID    string
	cfg        Config
	now        func() time.Time
}

// NewRelay creates a new relay
func NewRelay(logger *zap.Logger, store repositories.Store, dispatcher *Dispatcher, cfg Config) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}

	relayID := uuid.NewString()
	return &Relay{
		logger:     logger.With(zap.String("relay_id", relayID)),
		store:      store,
		dispatcher: dispatcher,
		relayID:    relayID,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Run polls until ctx is cancelled
func (r *Relay) Run(ctx context.Context) {
	logging.Info(ctx, r.logger, "outbox relay starting",
		zap.Int("batch_size", r.cfg.BatchSize), zap.Duration("interval", r.cfg.Interval))

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info(context.WithoutCancel(ctx), r.logger, "outbox relay stopping")
			return
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				logging.Error(ctx, r.logger, "outbox batch failed", zap.Error(err))
			}
		}
	}
}

// ProcessBatch claims one batch, publishes it and records the outcome of
// every event. It returns the number of events published.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "outbox.ProcessBatch")
	defer span.End()

	now := r.now()
	var events []models.OutboxEvent
	err := r.store.WithTx(ctx, func(tx repositories.Tx) error {
		var err error
		events, err = tx.Outbox().Claim(ctx, r.cfg.BatchSize, r.cfg.MaxAttempts, now, now.Add(r.cfg.Lease))
		return err
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	logging.Debug(ctx, r.logger, "outbox events claimed", zap.Int("count", len(events)))

	published := 0
	for _, event := range events {
		dispatchErr := r.dispatcher.Dispatch(ctx, event)

		// record the outcome even if the relay is shutting down
		markCtx := context.WithoutCancel(ctx)
		err := r.store.WithTx(markCtx, func(tx repositories.Tx) error {
			if dispatchErr != nil {
				return tx.Outbox().MarkFailed(markCtx, event.ID, dispatchErr.Error())
			}
			return tx.Outbox().MarkPublished(markCtx, event.ID, r.now())
		})
		if err != nil {
			logging.Error(ctx, r.logger, "failed to record outbox outcome",
				zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}

		if dispatchErr == nil {
			published++
		} else if event.Attempts+1 >= r.cfg.MaxAttempts {
			logging.Error(ctx, r.logger, "outbox event gave up",
				zap.Int64("event_id", event.ID), zap.Int("attempts", event.Attempts+1), zap.Error(dispatchErr))
		}
	}

	return published, nil
}

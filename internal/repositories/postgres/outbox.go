package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
)

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload, headers, attempts, last_error, locked_until, published_at, created_at`

// OutboxRepository handles the transactional outbox table
type OutboxRepository struct {
	db DBTX
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db DBTX) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Append stores an event in the current transaction
func (r *OutboxRepository) Append(ctx context.Context, event *models.OutboxEvent) error {
	headers, err := json.Marshal(event.Headers)
	if err != nil {
		return fmt.Errorf("failed to encode outbox headers: %w", err)
	}

	query := `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, headers)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err = r.db.QueryRowContext(ctx, query,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		[]byte(event.Payload),
		headers,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append outbox event: %w", err)
	}

	return nil
}

// Claim leases a batch of unpublished events. Rows locked by another relay
// are skipped.
func (r *OutboxRepository) Claim(ctx context.Context, limit, maxAttempts int, now, leaseUntil time.Time) ([]models.OutboxEvent, error) {
	query := `
		UPDATE outbox_events
		SET locked_until = $1
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE published_at IS NULL
			  AND attempts < $2
			  AND (locked_until IS NULL OR locked_until < $3)
			ORDER BY id
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + outboxColumns

	rows, err := r.db.QueryContext(ctx, query, leaseUntil, maxAttempts, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	defer rows.Close()

	var events []models.OutboxEvent
	for rows.Next() {
		var (
			e           models.OutboxEvent
			payload     []byte
			headers     []byte
			lastError   sql.NullString
			lockedUntil sql.NullTime
			publishedAt sql.NullTime
		)
		err := rows.Scan(
			&e.ID,
			&e.AggregateType,
			&e.AggregateID,
			&e.EventType,
			&payload,
			&headers,
			&e.Attempts,
			&lastError,
			&lockedUntil,
			&publishedAt,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}

		e.Payload = json.RawMessage(payload)
		if len(headers) > 0 {
			if err := json.Unmarshal(headers, &e.Headers); err != nil {
				return nil, fmt.Errorf("failed to decode outbox headers: %w", err)
			}
		}
		if lastError.Valid {
			msg := lastError.String
			e.LastError = &msg
		}
		if lockedUntil.Valid {
			t := lockedUntil.Time
			e.LockedUntil = &t
		}
		if publishedAt.Valid {
			t := publishedAt.Time
			e.PublishedAt = &t
		}

		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })

	return events, nil
}

// MarkPublished records a successful delivery
func (r *OutboxRepository) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET published_at = $1, locked_until = NULL, last_error = NULL
		WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event published: %w", err)
	}
	return nil
}

// MarkFailed records a failed delivery attempt and releases the lease
func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = $1, locked_until = NULL
		WHERE id = $2`, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event failed: %w", err)
	}
	return nil
}

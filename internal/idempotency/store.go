// Package idempotency remembers the outcome of requests that carry an
// Idempotency-Key so a retried request replays the first response instead
// of running again.
package idempotency

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInProgress means another request holding the same key has not finished.
	ErrInProgress = errors.New("a request with this idempotency key is in progress")
	// ErrKeyReused means the key was first used for a different request.
	ErrKeyReused = errors.New("idempotency key was used for a different request")
)

// Status is the lifecycle state of a key
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Record is what is stored under a key
type Record struct {
	Status      Status    `json:"status"`
	Fingerprint string    `json:"fingerprint"`
	StatusCode  int       `json:"status_code,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Body        []byte    `json:"body,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store claims keys and keeps completed responses.
//
// Begin claims key for the caller and returns a nil record. If the key is
// already completed it returns the stored record. If it is still pending it
// returns ErrInProgress.
type Store interface {
	Begin(ctx context.Context, key, fingerprint string) (*Record, error)
	Complete(ctx context.Context, key string, record Record) error
	Abort(ctx context.Context, key string) error
}

func checkExisting(rec *Record, fingerprint string) (*Record, error) {
	if rec.Fingerprint != fingerprint {
		return nil, ErrKeyReused
	}
	if rec.Status != StatusCompleted {
		return nil, ErrInProgress
	}
	return rec, nil
}

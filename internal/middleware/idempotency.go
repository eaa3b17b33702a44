package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/idempotency"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/logging"
)

const (
	IdempotencyKeyHeader   = "Idempotency-Key"
	IdempotentReplayHeader = "Idempotent-Replayed"

	maxIdempotencyKeyLength = 255
	maxFingerprintBodyBytes = 1 << 20
)

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Requests without the header pass through. Server errors release the key so
// the client can retry.
func Idempotency(store idempotency.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLength {
				writeJSONError(w, http.StatusBadRequest, "ValidationError", "Idempotency-Key is too long")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxFingerprintBodyBytes+1))
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "ValidationError", "failed to read request body")
				return
			}
			if len(body) > maxFingerprintBodyBytes {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "PayloadTooLarge", "request body is too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			userID, _ := UserIDFromContext(r.Context())
			scopedKey := strconv.FormatInt(userID, 10) + ":" + key
			fingerprint := requestFingerprint(r, userID, body)

			existing, err := store.Begin(r.Context(), scopedKey, fingerprint)
			switch {
			case errors.Is(err, idempotency.ErrInProgress):
				writeJSONError(w, http.StatusConflict, "RequestInProgress", err.Error())
				return
			case errors.Is(err, idempotency.ErrKeyReused):
				writeJSONError(w, http.StatusUnprocessableEntity, "IdempotencyKeyReused", err.Error())
				return
			case err != nil:
				logging.Error(r.Context(), logger, "idempotency store unavailable", zap.Error(err))
				writeJSONError(w, http.StatusServiceUnavailable, "Unavailable", "please retry shortly")
				return
			}

			if existing != nil {
				replay(w, existing)
				return
			}

			rec := &recordingWriter{ResponseWriter: w, statusCode: http.StatusOK}
			completed := false
			defer func() {
				if completed {
					return
				}
				// panics and server errors release the key
				if abortErr := store.Abort(context.WithoutCancel(r.Context()), scopedKey); abortErr != nil {
					logging.Warn(r.Context(), logger, "failed to release idempotency key", zap.Error(abortErr))
				}
			}()

			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusInternalServerError {
				return
			}

			record := idempotency.Record{
				Status:      idempotency.StatusCompleted,
				Fingerprint: fingerprint,
				StatusCode:  rec.statusCode,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
				CreatedAt:   time.Now().UTC(),
			}
			if err := store.Complete(context.WithoutCancel(r.Context()), scopedKey, record); err != nil {
				logging.Error(r.Context(), logger, "failed to store idempotent response", zap.Error(err))
				return
			}
			completed = true
		})
	}
}

// requestFingerprint identifies what a key was first used for. A key sent
// again with a different body is a different request.
func requestFingerprint(r *http.Request, userID int64, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method + " " + r.URL.Path + " " + strconv.FormatInt(userID, 10) + "\n"))
	h.Write(bytes.TrimSpace(body))
	return hex.EncodeToString(h.Sum(nil))
}

func replay(w http.ResponseWriter, record *idempotency.Record) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(IdempotentReplayHeader, "true")
	w.WriteHeader(record.StatusCode)
	_, _ = w.Write(record.Body)
}

// recordingWriter passes the response through and keeps a copy
type recordingWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

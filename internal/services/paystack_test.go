package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
)

func newPaystackServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestPaystackVerifier_Verify(t *testing.T) {
	tests := []struct {
		name          string
		gatewayStatus string
		want          models.PaymentStatus
	}{
		{"success", "success", models.PaymentVerified},
		{"failed", "failed", models.PaymentFailed},
		{"abandoned", "abandoned", models.PaymentFailed},
		{"reversed", "reversed", models.PaymentFailed},
		{"ongoing", "ongoing", models.PaymentPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/transaction/verify/PSK-1", r.URL.Path)
				assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{"id":1,"status":"` +
					tt.gatewayStatus + `","reference":"PSK-1","amount":25000,"currency":"KES"}}`))
			})

			v := NewPaystackVerifier(PaystackConfig{SecretKey: "sk_test", BaseURL: srv.URL}, zap.NewNop())
			got, err := v.Verify(context.Background(), "PSK-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, int64(25000), got.Amount)
			assert.Equal(t, "PSK-1", got.Reference)
		})
	}
}

func TestPaystackVerifier_APIError(t *testing.T) {
	srv := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
	})

	v := NewPaystackVerifier(PaystackConfig{SecretKey: "sk_test", BaseURL: srv.URL}, zap.NewNop())
	_, err := v.Verify(context.Background(), "missing")

	var perr *PaystackError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusNotFound, perr.StatusCode)
	assert.Equal(t, "Transaction reference not found", perr.Message)
}

func TestPaystackVerifier_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	})

	v := NewPaystackVerifier(PaystackConfig{
		SecretKey:       "sk_test",
		BaseURL:         srv.URL,
		BreakerFailures: 3,
		BreakerOpenFor:  time.Minute,
	}, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := v.Verify(context.Background(), "PSK-1")
		require.Error(t, err)
	}

	_, err := v.Verify(context.Background(), "PSK-1")
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(3), calls.Load())
}

func TestPaystackVerifier_ClientErrorsKeepBreakerClosed(t *testing.T) {
	var calls atomic.Int32
	srv := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"Invalid reference"}`))
	})

	v := NewPaystackVerifier(PaystackConfig{SecretKey: "sk_test", BaseURL: srv.URL, BreakerFailures: 2}, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := v.Verify(context.Background(), "bad")
		var perr *PaystackError
		require.ErrorAs(t, err, &perr)
	}
	assert.Equal(t, int32(5), calls.Load())
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/logging"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
)

// GatewayTransaction is the provider's view of a transaction. Amount is in
// the currency's minor unit, the same unit as order totals.
type GatewayTransaction struct {
	Reference string
	Status    models.PaymentStatus
	Amount    int64
}

// GatewayVerifier asks the payment provider for the settled state of a
// transaction reference.
type GatewayVerifier interface {
	Verify(ctx context.Context, reference string) (*GatewayTransaction, error)
}

// PaystackConfig represents Paystack verification configuration
type PaystackConfig struct {
	SecretKey string
	BaseURL   string
	Timeout   time.Duration

	BreakerFailures  uint32
	BreakerOpenFor   time.Duration
	BreakerHalfOpen  uint32
	BreakerResetSpan time.Duration
}

// PaystackVerifier verifies transactions against the Paystack API
type PaystackVerifier struct {
	config  PaystackConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// TransactionVerification represents transaction verification response
type TransactionVerification struct {
	Status  bool               `json:"status"`
	Message string             `json:"message"`
	Data    TransactionDetails `json:"data"`
}

// TransactionDetails contains the fields of a verified transaction we read
type TransactionDetails struct {
	ID        int64  `json:"id"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Channel   string `json:"channel"`
	PaidAt    string `json:"paid_at"`
}

// PaystackError represents an error response from Paystack
type PaystackError struct {
	StatusCode int    `json:"-"`
	Status     bool   `json:"status"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
}

func (e *PaystackError) Error() string {
	return fmt.Sprintf("paystack error (status %d): %s", e.StatusCode, e.Message)
}

// clientError reports a rejection caused by the request rather than by the
// gateway being unhealthy.
func (e *PaystackError) clientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

// NewPaystackVerifier creates a new Paystack verifier
func NewPaystackVerifier(config PaystackConfig, logger *zap.Logger) *PaystackVerifier {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.paystack.co"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.BreakerFailures == 0 {
		config.BreakerFailures = 5
	}

	settings := gobreaker.Settings{
		Name:        "paystack",
		MaxRequests: config.BreakerHalfOpen,
		Interval:    config.BreakerResetSpan,
		Timeout:     config.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			var perr *PaystackError
			return err == nil || (errors.As(err, &perr) && perr.clientError())
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &PaystackVerifier{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// Verify maps the Paystack transaction to a payment status and amount.
// Anything the gateway has not finished with stays pending.
func (v *PaystackVerifier) Verify(ctx context.Context, reference string) (*GatewayTransaction, error) {
	ctx, span := startSpan(ctx, "PaystackVerifier.Verify")

	verification, err := executeWithBreaker(v.breaker, func() (*TransactionVerification, error) {
		return v.VerifyTransaction(ctx, reference)
	})
	endSpan(span, err)

	if err != nil {
		logging.Warn(ctx, v.logger, "paystack verification failed",
			zap.String("reference", models.MaskReference(reference)), zap.Error(err))
		return nil, err
	}

	txn := &GatewayTransaction{
		Reference: verification.Data.Reference,
		Status:    paystackStatus(verification.Data.Status),
		Amount:    verification.Data.Amount,
	}
	if txn.Reference == "" {
		txn.Reference = reference
	}

	logging.Info(ctx, v.logger, "paystack transaction verified",
		zap.String("reference", models.MaskReference(reference)),
		zap.String("gateway_status", verification.Data.Status),
		zap.String("status", string(txn.Status)),
		zap.Int64("amount", txn.Amount),
	)

	return txn, nil
}

// VerifyTransaction calls GET /transaction/verify/{reference}
func (v *PaystackVerifier) VerifyTransaction(ctx context.Context, reference string) (*TransactionVerification, error) {
	verifyURL := fmt.Sprintf("%s/transaction/verify/%s", strings.TrimRight(v.config.BaseURL, "/"), url.PathEscape(reference))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, verifyURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+v.config.SecretKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send verification request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read verification response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, handleAPIError(resp.StatusCode, bodyBytes)
	}

	var verification TransactionVerification
	if err := json.Unmarshal(bodyBytes, &verification); err != nil {
		return nil, fmt.Errorf("failed to decode verification response: %w", err)
	}

	if !verification.Status {
		return nil, &PaystackError{StatusCode: resp.StatusCode, Message: verification.Message}
	}

	return &verification, nil
}

func handleAPIError(statusCode int, body []byte) error {
	perr := &PaystackError{StatusCode: statusCode}
	if err := json.Unmarshal(body, perr); err != nil || perr.Message == "" {
		perr.Message = strings.TrimSpace(string(body))
	}
	return perr
}

func paystackStatus(status string) models.PaymentStatus {
	switch strings.ToLower(status) {
	case "success":
		return models.PaymentVerified
	case "failed", "abandoned", "reversed":
		return models.PaymentFailed
	default:
		return models.PaymentPending
	}
}

func executeWithBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})

	if err != nil {
		return *new(T), err
	}

	return res.(T), nil
}

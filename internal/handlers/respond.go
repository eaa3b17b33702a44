package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/logging"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/middleware"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string                         `json:"error"`
	Message string                         `json:"message"`
	Items   []models.InsufficientStockError `json:"items,omitempty"`
	Fields  map[string]string              `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a JSON body into dst and validates it. An empty body
// decodes to the zero value.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed JSON body: %v", models.ErrInvalidInput, err)
	}
	return validate.Struct(dst)
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", models.ErrInvalidInput, name)
	}
	return id, nil
}

// currentUser returns the authenticated user id or writes a 401
func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized", Message: "authentication required"})
		return 0, false
	}
	return userID, true
}

// FormatValidationError turns validator errors into field messages
func FormatValidationError(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())

		switch fe.Tag() {
		case "required":
			fields[field] = fmt.Sprintf("%s is required", field)
		case "max":
			fields[field] = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		case "gt":
			fields[field] = fmt.Sprintf("%s must be greater than %s", field, fe.Param())
		case "oneof":
			fields[field] = fmt.Sprintf("%s must be one of: %s", field, fe.Param())
		default:
			fields[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return fields
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{models.ErrInvalidQuantity, http.StatusBadRequest, "InvalidQuantity"},
	{models.ErrReferenceRequired, http.StatusBadRequest, "ReferenceRequired"},
	{models.ErrInvalidPoints, http.StatusBadRequest, "InvalidPoints"},
	{models.ErrInvalidInput, http.StatusBadRequest, "ValidationError"},

	{models.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{models.ErrForbidden, http.StatusForbidden, "Forbidden"},

	{models.ErrCheckoutFailed, http.StatusConflict, "InsufficientStock"},
	{models.ErrInsufficientStock, http.StatusConflict, "InsufficientStock"},
	{models.ErrPaymentAlreadyProcessed, http.StatusConflict, "PaymentAlreadyProcessed"},
	{models.ErrConcurrentModification, http.StatusConflict, "ConcurrentModification"},
	{models.ErrInvalidTransition, http.StatusConflict, "InvalidTransition"},
	{models.ErrPaymentNotSettled, http.StatusConflict, "PaymentNotSettled"},
	{models.ErrReferenceInUse, http.StatusConflict, "ReferenceInUse"},
	{models.ErrDuplicateEntry, http.StatusConflict, "Conflict"},

	{models.ErrEmptyCart, http.StatusUnprocessableEntity, "EmptyCart"},
	{models.ErrInsufficientPoints, http.StatusUnprocessableEntity, "InsufficientPoints"},
	{models.ErrRewardExpired, http.StatusUnprocessableEntity, "RewardExpired"},
	{models.ErrRewardInactive, http.StatusUnprocessableEntity, "RewardInactive"},
	{models.ErrLimitExceeded, http.StatusUnprocessableEntity, "LimitExceeded"},
	{models.ErrItemUnavailable, http.StatusUnprocessableEntity, "ItemUnavailable"},
	{models.ErrAmountMismatch, http.StatusUnprocessableEntity, "AmountMismatch"},

	{models.ErrGatewayUnavailable, http.StatusServiceUnavailable, "GatewayUnavailable"},
}

// writeError maps a service error to its HTTP status and JSON body
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "ValidationError",
			Message: "request validation failed",
			Fields:  FormatValidationError(err),
		})
		return
	}

	if models.IsNotFound(err) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "NotFound", Message: err.Error()})
		return
	}

	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}

		resp := ErrorResponse{Error: m.code, Message: err.Error()}

		var failed *models.CheckoutFailedError
		var shortfall *models.InsufficientStockError
		switch {
		case errors.As(err, &failed):
			resp.Items = failed.FailedItems
		case errors.As(err, &shortfall):
			resp.Items = []models.InsufficientStockError{*shortfall}
		}

		writeJSON(w, m.status, resp)
		return
	}

	logging.Error(r.Context(), logger, "unhandled error",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "InternalError",
		Message: "something went wrong, please try again",
	})
}

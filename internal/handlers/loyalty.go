package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/models"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/services"
)

// LoyaltyHandler serves loyalty balances and reward redemptions
type LoyaltyHandler struct {
	ledger     *services.LoyaltyLedger
	redemption *services.RedemptionEngine
	logger     *zap.Logger
}

// NewLoyaltyHandler creates a new loyalty handler
func NewLoyaltyHandler(ledger *services.LoyaltyLedger, redemption *services.RedemptionEngine, logger *zap.Logger) *LoyaltyHandler {
	return &LoyaltyHandler{ledger: ledger, redemption: redemption, logger: logger}
}

// Balance returns the user's points balance
func (h *LoyaltyHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	balance, err := h.ledger.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"user_id": userID, "loyalty_points": balance})
}

// History returns the user's most recent journal entries
func (h *LoyaltyHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, h.logger, models.ErrInvalidInput)
			return
		}
		limit = parsed
	}

	entries, err := h.ledger.History(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []models.LoyaltyEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// Redeem exchanges points for a reward
func (h *LoyaltyHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	rewardID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	redemption, err := h.redemption.Redeem(r.Context(), userID, rewardID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, redemption)
}

// ListRedemptions returns the user's redemptions
func (h *LoyaltyHandler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	redemptions, err := h.redemption.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if redemptions == nil {
		redemptions = []models.Redemption{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"redemptions": redemptions})
}

// FulfillRedemption marks a pending redemption as delivered
func (h *LoyaltyHandler) FulfillRedemption(w http.ResponseWriter, r *http.Request) {
	redemptionID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	redemption, err := h.redemption.Fulfill(r.Context(), redemptionID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, redemption)
}

// CancelRedemption cancels a pending redemption and returns its points
func (h *LoyaltyHandler) CancelRedemption(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	redemptionID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	redemption, err := h.redemption.Cancel(r.Context(), userID, redemptionID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, redemption)
}

package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/openalways/openalways/internal/ads"
	"github.com/openalways/openalways/internal/auth"
	"github.com/openalways/openalways/internal/service"
)

// AdsHandler handles the ad catalog and reward endpoints.
type AdsHandler struct {
	keys   Keys
	logger *slog.Logger
}

// NewAdsHandler creates an AdsHandler.
func NewAdsHandler(keys Keys, logger *slog.Logger) *AdsHandler {
	return &AdsHandler{keys: keys, logger: logger}
}

// List handles GET /api/ads.
func (h *AdsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ads":            ads.Active(),
		"watch_duration": ads.WatchDuration,
	})
}

// Reward handles POST /api/ads/reward.
func (h *AdsHandler) Reward(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
		return
	}

	var req struct {
		AdID int `json:"adId"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}

	result, err := h.keys.ClaimAd(r.Context(), user.ID, req.AdID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownAd):
			writeError(w, http.StatusNotFound, CodeNotFound, "Unknown ad")
		case errors.Is(err, service.ErrAlreadyClaimed):
			writeError(w, http.StatusBadRequest, CodeValidation, "Reward already claimed for this ad today")
		case errors.Is(err, service.ErrDailyAdLimit):
			writeError(w, http.StatusBadRequest, CodeValidation, "Daily ad reward limit reached")
		default:
			h.logger.Error("ad reward failed",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"reward":   result.Ad.Reward,
		"max_keys": result.MaxKeys,
	})
}

package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/openalways/openalways/internal/auth"
	"github.com/openalways/openalways/internal/middleware"
	"github.com/openalways/openalways/internal/model"
	"github.com/openalways/openalways/internal/service"
)

// Keys is the key service surface the handler needs.
type Keys interface {
	Regenerate(ctx context.Context, userID string) (*service.RegenerateResult, error)
	History(ctx context.Context, userID string) ([]model.APIKeyHistoryEntry, error)
	ClaimAd(ctx context.Context, userID string, adID int) (*service.ClaimAdResult, error)
}

// KeysHandler handles key management endpoints.
type KeysHandler struct {
	keys   Keys
	logger *slog.Logger
}

// NewKeysHandler creates a KeysHandler.
func NewKeysHandler(keys Keys, logger *slog.Logger) *KeysHandler {
	return &KeysHandler{keys: keys, logger: logger}
}

// GetKey handles GET /api/keys. It reports the caller's current key and
// quota position.
func (h *KeysHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"api_key":        user.APIKey,
		"created_at":     user.CreatedAt,
		"keys_generated": user.KeysGenerated,
		"max_keys":       user.MaxKeys,
	})
}

// Regenerate handles POST /api/keys/regenerate.
func (h *KeysHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
		return
	}

	result, err := h.keys.Regenerate(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, service.ErrQuotaExceeded) {
			writeError(w, http.StatusForbidden, CodeQuotaExceeded,
				"Key generation limit reached. Watch an ad to raise it.")
			return
		}
		h.logger.Error("key regeneration failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"api_key":        result.Key,
		"keys_generated": result.KeysGenerated,
		"max_keys":       result.MaxKeys,
	})
}

// History handles GET /api/keys/history. Key values come back masked.
func (h *KeysHandler) History(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
		return
	}

	entries, err := h.keys.History(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("key history failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"keys": entries})
}

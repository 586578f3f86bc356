package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openalways/openalways/internal/auth"
	"github.com/openalways/openalways/internal/model"
)

// UsageLister lists a user's recent chat usage.
type UsageLister interface {
	List(ctx context.Context, userID string) ([]model.UsageSummary, error)
}

// UsageHandler handles usage history endpoints.
type UsageHandler struct {
	usage  UsageLister
	logger *slog.Logger
}

// NewUsageHandler creates a UsageHandler.
func NewUsageHandler(usage UsageLister, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{usage: usage, logger: logger}
}

// List handles GET /api/usage.
func (h *UsageHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
		return
	}

	summaries, err := h.usage.List(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("usage listing failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error")
		return
	}

	if summaries == nil {
		summaries = []model.UsageSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

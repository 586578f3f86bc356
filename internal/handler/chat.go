package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/openalways/openalways/internal/auth"
	"github.com/openalways/openalways/internal/chat"
	"github.com/openalways/openalways/internal/middleware"
)

// Chatter is the chat service surface the handler needs.
type Chatter interface {
	ProcessMessage(ctx context.Context, modelID, message string) (*chat.Result, error)
}

// UsageRecorder appends usage rows for completed chats.
type UsageRecorder interface {
	Record(ctx context.Context, userID, modelName, prompt, response string, tokens int)
}

// ChatHandler handles the chat proxy endpoints.
type ChatHandler struct {
	chat   Chatter
	usage  UsageRecorder
	logger *slog.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(chatter Chatter, usage UsageRecorder, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chat: chatter, usage: usage, logger: logger}
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
		return
	}

	var req struct {
		Model   string `json:"model"`
		Message string `json:"message"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}
	if req.Model == "" {
		req.Model = "okitakoy"
	}

	result, err := h.chat.ProcessMessage(r.Context(), req.Model, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrUnknownModel):
			writeError(w, http.StatusBadRequest, CodeValidation, "Unsupported model")
		case errors.Is(err, chat.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, CodeValidation, "Message required")
		case errors.Is(err, chat.ErrUpstream):
			writeError(w, http.StatusInternalServerError, CodeUpstreamError, "Upstream completion failed, try again")
		default:
			h.logger.Error("chat failed",
				slog.String("error", err.Error()),
				slog.String("request_id", middleware.GetRequestID(r.Context())),
			)
			writeError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error")
		}
		return
	}

	h.usage.Record(r.Context(), user.ID, req.Model, req.Message, result.Response, result.TokensUsed)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"model":       result.Model,
		"provider":    result.Provider,
		"response":    result.Response,
		"tokens_used": result.TokensUsed,
	})
}

// Models handles GET /api/models. Public, no auth.
func (h *ChatHandler) Models(w http.ResponseWriter, r *http.Request) {
	models := make(map[string]map[string]string)
	for _, p := range chat.Personas() {
		models[p.ID] = map[string]string{
			"name":     p.Name,
			"provider": p.Provider,
		}
	}
	writeJSON(w, http.StatusOK, models)
}

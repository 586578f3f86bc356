package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/openalways/openalways/internal/auth"
	"github.com/openalways/openalways/internal/cache"
	"github.com/openalways/openalways/internal/model"
)

// SessionCookieName is the session cookie set at login.
const SessionCookieName = "oa_session"

// SessionStore resolves session IDs to user IDs.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (string, error)
}

// UserLoader loads users by ID.
type UserLoader interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// KeyVerifier resolves raw API keys to their owners.
type KeyVerifier interface {
	VerifyKey(ctx context.Context, rawKey string) (*model.User, *model.APIKey, error)
}

// AuthConfig holds dependencies for the Auth middleware.
type AuthConfig struct {
	Sessions SessionStore
	Users    UserLoader
	Keys     KeyVerifier
	Logger   *slog.Logger
}

// Auth authenticates the request by session cookie or bearer API key and
// stores the resulting identity in the context. A valid session cookie wins
// over a bearer header; requests with neither get 401.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := cfg.sessionIdentity(r); id != nil {
				next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
				return
			}

			if id := cfg.bearerIdentity(r); id != nil {
				next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Authentication required"}}`))
		})
	}
}

func (cfg AuthConfig) sessionIdentity(r *http.Request) *auth.Identity {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	userID, err := cfg.Sessions.GetSession(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, cache.ErrSessionNotFound) {
			cfg.Logger.Error("session lookup failed",
				slog.String("error", err.Error()),
				slog.String("request_id", GetRequestID(r.Context())),
			)
		}
		return nil
	}

	user, err := cfg.Users.GetUserByID(r.Context(), userID)
	if err != nil {
		return nil
	}

	return &auth.Identity{User: user, Method: auth.MethodSession}
}

func (cfg AuthConfig) bearerIdentity(r *http.Request) *auth.Identity {
	token, ok := auth.ParseBearer(r.Header.Get("Authorization"))
	if !ok {
		return nil
	}

	user, key, err := cfg.Keys.VerifyKey(r.Context(), token)
	if err != nil {
		return nil
	}

	return &auth.Identity{User: user, Method: auth.MethodAPIKey, KeyID: key.ID}
}

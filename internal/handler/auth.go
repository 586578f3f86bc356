package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/openalways/openalways/internal/middleware"
	"github.com/openalways/openalways/internal/model"
	"github.com/openalways/openalways/internal/service"
)

// stateCookieName carries the OAuth state between redirect and callback.
const stateCookieName = "oa_oauth_state"

// Accounts is the account service surface the auth handler needs.
type Accounts interface {
	Register(ctx context.Context, input service.RegisterInput) (*service.OTPDelivery, error)
	VerifyEmail(ctx context.Context, email, code string) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.User, error)
	ForgotPassword(ctx context.Context, email string) (*service.OTPDelivery, error)
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	ResendOTP(ctx context.Context, email, purpose string) (*service.OTPDelivery, error)
	GoogleAuthURL(state string) (string, error)
	GoogleSignIn(ctx context.Context, code string) (*model.User, error)
}

// SessionManager creates and destroys server-side sessions.
type SessionManager interface {
	CreateSession(ctx context.Context, userID string, ttl time.Duration) (string, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// AuthHandler handles registration, login and credential recovery.
type AuthHandler struct {
	accounts      Accounts
	sessions      SessionManager
	logger        *slog.Logger
	sessionTTL    time.Duration
	secureCookies bool
	baseURL       string
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(accounts Accounts, sessions SessionManager, logger *slog.Logger, sessionTTL time.Duration, secureCookies bool, baseURL string) *AuthHandler {
	return &AuthHandler{
		accounts:      accounts,
		sessions:      sessions,
		logger:        logger,
		sessionTTL:    sessionTTL,
		secureCookies: secureCookies,
		baseURL:       baseURL,
	}
}

// otpResponse is the common shape for endpoints that issue a code.
type otpResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Email     string `json:"email,omitempty"`
	EmailSent bool   `json:"email_sent"`
	OTPCode   string `json:"otp_code,omitempty"`
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email          string `json:"email"`
		Username       string `json:"username"`
		Password       string `json:"password"`
		TurnstileToken string `json:"turnstile_token"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}

	delivery, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Email:        req.Email,
		Username:     req.Username,
		Password:     req.Password,
		CaptchaToken: req.TurnstileToken,
		RemoteIP:     r.RemoteAddr,
	})
	if err != nil {
		h.writeAccountError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, otpResponse{
		Success:   true,
		Message:   "Registration successful. Check your email.",
		Email:     delivery.Email,
		EmailSent: delivery.EmailSent,
		OTPCode:   delivery.DebugCode,
	})
}

// VerifyEmail handles POST /auth/verify-email. A valid code logs the user in.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}

	user, err := h.accounts.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		h.writeAccountError(w, r, err)
		return
	}

	if err := h.startSession(w, r, user); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to create session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Email verified",
		"api_key":  user.APIKey,
		"username": user.Username,
	})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}

	user, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		var nv *service.NotVerifiedError
		if errors.As(err, &nv) {
			// Credentials were right; a fresh verification code is on its way
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":              errorDetail{Code: CodeUnauthorized, Message: "Email not verified"},
				"needs_verification": true,
				"email":              nv.Email,
				"email_sent":         nv.EmailSent,
				"otp_code":           nv.DebugCode,
			})
			return
		}
		h.writeAccountError(w, r, err)
		return
	}

	if err := h.startSession(w, r, user); err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to create session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Login successful",
		"api_key":  user.APIKey,
		"username": user.Username,
	})
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.DeleteSession(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("failed to delete session", slog.String("error", err.Error()))
		}
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ForgotPassword handles POST /auth/forgot-password.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}

	delivery, err := h.accounts.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		h.writeAccountError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, otpResponse{
		Success:   true,
		Message:   "Code sent",
		EmailSent: delivery.EmailSent,
		OTPCode:   delivery.DebugCode,
	})
}

// ResetPassword handles POST /auth/reset-password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Code        string `json:"code"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		h.writeAccountError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Password reset",
	})
}

// ResendOTP handles POST /auth/resend-otp.
func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email   string `json:"email"`
		Purpose string `json:"purpose"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body")
		return
	}

	delivery, err := h.accounts.ResendOTP(r.Context(), req.Email, req.Purpose)
	if err != nil {
		h.writeAccountError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, otpResponse{
		Success:   true,
		Message:   "Code resent",
		EmailSent: delivery.EmailSent,
		OTPCode:   delivery.DebugCode,
	})
}

// GoogleLogin handles GET /auth/google-login.
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.New().String()

	url, err := h.accounts.GoogleAuthURL(state)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, CodeUpstreamError, "Google sign-in unavailable")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, url, http.StatusFound)
}

// GoogleCallback handles GET /auth/google-callback.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		http.Redirect(w, r, h.baseURL+"/auth/login?error=google_failed", http.StatusFound)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, h.baseURL+"/auth/login?error=google_failed", http.StatusFound)
		return
	}

	user, err := h.accounts.GoogleSignIn(r.Context(), code)
	if err != nil {
		h.logger.Error("google sign-in failed", slog.String("error", err.Error()))
		http.Redirect(w, r, h.baseURL+"/auth/login?error=google_failed", http.StatusFound)
		return
	}

	if err := h.startSession(w, r, user); err != nil {
		http.Redirect(w, r, h.baseURL+"/auth/login?error=google_failed", http.StatusFound)
		return
	}

	// The dashboard reads the key over the authenticated API, never from
	// the redirect URL.
	http.Redirect(w, r, h.baseURL+"/dashboard", http.StatusFound)
}

// startSession creates a server-side session and sets the cookie.
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, user *model.User) error {
	sessionID, err := h.sessions.CreateSession(r.Context(), user.ID, h.sessionTTL)
	if err != nil {
		h.logger.Error("failed to create session",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeAccountError maps account service errors to HTTP responses.
func (h *AuthHandler) writeAccountError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrMissingFields),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, service.ErrPasswordTooShort),
		errors.Is(err, service.ErrCaptchaFailed),
		errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrCodeInvalid),
		errors.Is(err, service.ErrCodeExpired),
		errors.Is(err, service.ErrBadPurpose):
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, service.ErrBadCredentials):
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	default:
		h.logger.Error("account operation failed",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error")
	}
}

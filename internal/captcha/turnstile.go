// Package captcha verifies Cloudflare Turnstile tokens.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// verifyURL is the Cloudflare Turnstile siteverify endpoint.
const verifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// Verifier checks Turnstile tokens against Cloudflare. With an empty secret
// the check is skipped entirely, which keeps local development working
// without a Turnstile site.
type Verifier struct {
	secret string
	client *http.Client
	logger *slog.Logger

	// endpoint is overridable in tests.
	endpoint string
}

// NewVerifier creates a Verifier. An empty secret disables verification.
func NewVerifier(secret string, logger *slog.Logger) *Verifier {
	return &Verifier{
		secret:   secret,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
		endpoint: verifyURL,
	}
}

// Enabled reports whether token verification is active.
func (v *Verifier) Enabled() bool {
	return v.secret != ""
}

// Verify checks a Turnstile response token. Returns true when the token is
// valid or when verification is disabled.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if v.secret == "" {
		return true, nil
	}

	form := url.Values{
		"secret":   {v.secret},
		"response": {token},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("turnstile request failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Success    bool     `json:"success"`
		ErrorCodes []string `json:"error-codes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("failed to decode turnstile response: %w", err)
	}

	if !result.Success {
		v.logger.Info("turnstile verification rejected",
			slog.Any("error_codes", result.ErrorCodes),
		)
	}

	return result.Success, nil
}

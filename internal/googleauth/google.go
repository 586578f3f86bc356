// Package googleauth implements the Google OAuth sign-in flow.
package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// Google OAuth endpoints. Declared directly so the package depends only on
// the oauth2 core.
var endpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// userinfoURL returns the authenticated user's profile.
const userinfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// ErrNotConfigured is returned when Google credentials are missing.
var ErrNotConfigured = errors.New("google sign-in not configured")

// UserInfo is the subset of the Google profile the application needs.
type UserInfo struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
}

// Client drives the authorization code flow against Google.
type Client struct {
	config *oauth2.Config
}

// New creates a Client. Empty credentials yield a disabled client whose
// methods return ErrNotConfigured.
func New(clientID, clientSecret, redirectURL string) *Client {
	if clientID == "" || clientSecret == "" {
		return &Client{}
	}
	return &Client{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email"},
			Endpoint:     endpoint,
		},
	}
}

// Enabled reports whether Google sign-in is configured.
func (c *Client) Enabled() bool {
	return c.config != nil
}

// AuthCodeURL builds the Google consent page URL for a state token.
func (c *Client) AuthCodeURL(state string) (string, error) {
	if c.config == nil {
		return "", ErrNotConfigured
	}
	return c.config.AuthCodeURL(state), nil
}

// Exchange trades an authorization code for the user's profile.
func (c *Client) Exchange(ctx context.Context, code string) (*UserInfo, error) {
	if c.config == nil {
		return nil, ErrNotConfigured
	}

	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	httpClient := c.config.Client(ctx, token)
	resp, err := httpClient.Get(userinfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read userinfo: %w", err)
	}

	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}

	if info.Sub == "" || info.Email == "" {
		return nil, errors.New("userinfo missing sub or email")
	}

	return &info, nil
}

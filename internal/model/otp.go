package model

import "time"

// One-time code purposes.
const (
	PurposeVerification = "verification"
	PurposeReset        = "reset"
)

// OTPTTL is how long a one-time code stays redeemable.
const OTPTTL = 10 * time.Minute

// OTPCode is a short-lived single-use code proving control of an email
// address. A code that is consumed or past its expiry never authorizes an
// action again; both conditions are re-checked on every use.
type OTPCode struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Code      string    `json:"-"`
	Purpose   string    `json:"purpose"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired reports whether the code is past its expiry at the given time.
func (c *OTPCode) IsExpired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}

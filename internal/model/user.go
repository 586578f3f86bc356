// Package model defines domain entities for the application.
package model

import "time"

// Key issuance defaults applied at registration.
const (
	DefaultMaxKeys       = 5
	InitialKeysGenerated = 1
)

// User represents an account. PasswordHash is empty for accounts created
// through Google sign-in; APIKey always mirrors the single active row in
// the api_keys table.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	APIKey        string    `json:"-"`
	IsVerified    bool      `json:"is_verified"`
	GoogleID      string    `json:"-"`
	KeysGenerated int       `json:"keys_generated"`
	MaxKeys       int       `json:"max_keys"`
	CreatedAt     time.Time `json:"created_at"`
}

// CanRegenerateKey reports whether the user is below the key ceiling.
func (u *User) CanRegenerateKey() bool {
	return u.KeysGenerated < u.MaxKeys
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

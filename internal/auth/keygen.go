// Package auth provides credential primitives: API key generation,
// bearer-header parsing, and password hashing.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// Key format: open_always_live_{secret}
// The secret is 32 bytes of random material, base64url-encoded (43 chars).
const (
	KeyPrefix      = "open_always_live_"
	keySecretBytes = 32
)

// keyPattern validates the full key format.
var keyPattern = regexp.MustCompile(`^open_always_live_[A-Za-z0-9_-]{43}$`)

// GenerateKey creates a new API key. Keys are opaque bearer strings with no
// counter or timestamp component; all entropy comes from crypto/rand.
func GenerateKey() (string, error) {
	secret := make([]byte, keySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("generate key secret: %w", err)
	}
	return KeyPrefix + base64.RawURLEncoding.EncodeToString(secret), nil
}

// ValidKeyFormat checks whether a string looks like an issued key.
func ValidKeyFormat(key string) bool {
	return keyPattern.MatchString(key)
}

// ParseBearer extracts the token from an "Authorization: Bearer <token>"
// header value. Returns false for a missing header or any other scheme.
func ParseBearer(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// otpBytes yields a 6 character hex code.
const otpBytes = 3

// GenerateOTP returns a short uppercase hex code for email verification.
func GenerateOTP() (string, error) {
	buf := make([]byte, otpBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

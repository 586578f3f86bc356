package model

import (
	"strings"
	"time"
)

// APIKey is one historical key issuance record. Rows are never deleted:
// regeneration deactivates the previous row and inserts a new active one,
// so at most one row per user has IsActive set.
type APIKey struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Key       string     `json:"-"` // Never serialize the raw key
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
}

// Masked returns the key with the random suffix mostly hidden, keeping the
// recognizable prefix and the last four characters for display.
func (k *APIKey) Masked() string {
	return MaskKey(k.Key)
}

// keyPrefix duplicates auth.KeyPrefix; auth imports this package, so the
// constant cannot be shared.
const keyPrefix = "open_always_live_"

// MaskKey masks a raw key value for audit display. The base64url secret may
// itself contain underscores, so the split point is the fixed prefix length,
// never a separator search.
func MaskKey(key string) string {
	const visibleSuffix = 4
	secret, ok := strings.CutPrefix(key, keyPrefix)
	if !ok || len(secret) <= visibleSuffix {
		return key
	}
	return keyPrefix + "..." + secret[len(secret)-visibleSuffix:]
}

// APIKeyHistoryEntry is the audit view of one issuance record.
type APIKeyHistoryEntry struct {
	ID        string     `json:"id"`
	Key       string     `json:"key"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
}

// ToHistoryEntry converts a key record to its masked audit view.
func (k *APIKey) ToHistoryEntry() APIKeyHistoryEntry {
	return APIKeyHistoryEntry{
		ID:        k.ID,
		Key:       k.Masked(),
		IsActive:  k.IsActive,
		CreatedAt: k.CreatedAt,
		LastUsed:  k.LastUsed,
	}
}

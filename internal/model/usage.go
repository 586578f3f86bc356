package model

import "time"

// UsageRecord is one appended chat exchange. Records are write-once and
// never mutated.
type UsageRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Model      string    `json:"model"`
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	TokensUsed int       `json:"tokens_used"`
	CreatedAt  time.Time `json:"created_at"`
}

// maxPromptPreview is the prompt length shown in usage listings.
const maxPromptPreview = 100

// UsageSummary is the listing view of a usage record.
type UsageSummary struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	Tokens    int       `json:"tokens"`
	CreatedAt time.Time `json:"created_at"`
}

// ToSummary returns the listing view with the prompt truncated.
func (u *UsageRecord) ToSummary() UsageSummary {
	prompt := u.Prompt
	if len(prompt) > maxPromptPreview {
		prompt = prompt[:maxPromptPreview] + "..."
	}
	return UsageSummary{
		ID:        u.ID,
		Model:     u.Model,
		Prompt:    prompt,
		Tokens:    u.TokensUsed,
		CreatedAt: u.CreatedAt,
	}
}

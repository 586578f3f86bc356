package model

import "time"

// AdViewGrant marks one claimed ad reward for a (user, ad, calendar day)
// triple. The unique constraint on that triple is what enforces the
// once-per-ad-per-day rule; grants are persisted so restarts do not reset it.
type AdViewGrant struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	AdID      int       `json:"ad_id"`
	Day       time.Time `json:"day"`
	CreatedAt time.Time `json:"created_at"`
}

// GrantDay truncates a timestamp to the UTC calendar day used for grants.
func GrantDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

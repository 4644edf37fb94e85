package domain

import "time"

// ResetToken is a single-use, time-boxed credential for the password-reset
// flow. Consuming it revokes every session of the user.
type ResetToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time // nil until consumed
	CreatedAt time.Time
}

// Usable reports whether the token can still be consumed at the given instant.
func (t *ResetToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

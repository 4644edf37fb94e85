package domain

import "time"

// Session represents one issued refresh-token lineage member for a user.
//
// Rotation revokes the current session and creates a child; ReplacedByID on
// the revoked parent points forward to that child, so successive rotations
// form a singly linked chain (the session family) rooted at the original
// login. Sessions are never deleted, only marked revoked.
type Session struct {
	ID                 string
	UserID             string
	HashedRefreshToken string // SHA-256 of the current refresh token; never the raw token
	ExpiresAt          time.Time
	RevokedAt          *time.Time // nil while the session is the valid bearer
	LastUsedAt         *time.Time
	ReplacedByID       string // id of the successor session; empty until rotated out
	IP                 string
	UserAgent          string
	CreatedAt          time.Time
}

// Active reports whether the session is a valid refresh-token bearer at the
// given instant: not revoked and not past its expiry.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

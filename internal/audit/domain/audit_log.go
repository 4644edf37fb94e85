package domain

import "time"

// AuditLog represents one recorded security event.
type AuditLog struct {
	ID        string
	UserID    string
	SessionID string
	Action    string
	Resource  string
	IP        string
	UserAgent string
	Metadata  string
	CreatedAt time.Time
}

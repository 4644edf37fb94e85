package repository

import (
	"context"
	"time"

	"auth-session-control/internal/session/domain"
)

// Repository defines persistence for sessions.
//
// RevokeIfActive is the single compare-and-set primitive the rotation state
// machine depends on: it must be atomic at the store so that two concurrent
// rotations of one session produce exactly one winner, even across service
// instances.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	// Revoke marks the session revoked; idempotent no-op if already revoked.
	Revoke(ctx context.Context, id string) error
	// RevokeIfActive marks the session revoked and used at the given time only
	// if it is not yet revoked. Returns true if this caller performed the
	// transition, false if the session was missing or already revoked.
	RevokeIfActive(ctx context.Context, id string, at time.Time) (bool, error)
	// RevokeAllByUser marks every non-revoked session of the user revoked.
	// Idempotent set-update, safe to retry.
	RevokeAllByUser(ctx context.Context, userID string) error
	// SetReplacedBy records the forward lineage pointer on a rotated-out session.
	SetReplacedBy(ctx context.Context, id, replacedByID string) error
}

package repository

import (
	"context"
	"time"

	"auth-session-control/internal/passwordreset/domain"
)

// Repository defines persistence for password-reset tokens.
type Repository interface {
	Create(ctx context.Context, t *domain.ResetToken) error
	GetByToken(ctx context.Context, token string) (*domain.ResetToken, error)
	// MarkUsedIfUnused stamps used_at only if the token has not been consumed.
	// Returns true if this caller consumed it; the conditional update keeps the
	// token single-use under concurrent resets.
	MarkUsedIfUnused(ctx context.Context, id string, at time.Time) (bool, error)
}

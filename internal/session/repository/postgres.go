package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auth-session-control/internal/session/domain"
)

// storeTimeout bounds every store call so no operation blocks indefinitely.
const storeTimeout = 5 * time.Second

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, user_id, hashed_refresh_token, expires_at, revoked_at, last_used_at, replaced_by_id, ip, user_agent, created_at`

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListByUser returns all sessions for the user, newest first, including revoked ones.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Create persists the session. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.UserID, s.HashedRefreshToken, s.ExpiresAt,
		timeToNull(s.RevokedAt), timeToNull(s.LastUsedAt),
		stringToNull(s.ReplacedByID), stringToNull(s.IP), stringToNull(s.UserAgent),
		s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Revoke marks the session revoked. Idempotent: a second call is a no-op.
func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeIfActive atomically revokes the session if it is not yet revoked and
// stamps last_used_at. The WHERE revoked_at IS NULL guard makes this a
// compare-and-set: of two concurrent callers, exactly one sees true.
func (r *PostgresRepository) RevokeIfActive(ctx context.Context, id string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $2, last_used_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		id, at)
	if err != nil {
		return false, fmt.Errorf("revoke session if active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RevokeAllByUser marks every non-revoked session of the user revoked.
func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke all sessions: %w", err)
	}
	return nil
}

// SetReplacedBy records the successor session id on a rotated-out session.
func (r *PostgresRepository) SetReplacedBy(ctx context.Context, id, replacedByID string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET replaced_by_id = $2 WHERE id = $1`,
		id, replacedByID)
	if err != nil {
		return fmt.Errorf("set replaced_by: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s          domain.Session
		revokedAt  sql.NullTime
		lastUsedAt sql.NullTime
		replacedBy sql.NullString
		ip         sql.NullString
		userAgent  sql.NullString
	)
	err := row.Scan(&s.ID, &s.UserID, &s.HashedRefreshToken, &s.ExpiresAt,
		&revokedAt, &lastUsedAt, &replacedBy, &ip, &userAgent, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.RevokedAt = nullToTime(revokedAt)
	s.LastUsedAt = nullToTime(lastUsedAt)
	s.ReplacedByID = replacedBy.String
	s.IP = ip.String
	s.UserAgent = userAgent.String
	return &s, nil
}

func timeToNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullToTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}

func stringToNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Package service implements the authentication and session lifecycle:
// register, login, refresh-token rotation with reuse detection, logout,
// and the password change/reset flows.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"auth-session-control/internal/audit"
	"auth-session-control/internal/passwordreset/domain"
	"auth-session-control/internal/policy/engine"
	"auth-session-control/internal/rbac"
	rbacdomain "auth-session-control/internal/rbac/domain"
	"auth-session-control/internal/security"
	sessiondomain "auth-session-control/internal/session/domain"
	userdomain "auth-session-control/internal/user/domain"
)

// DefaultRoleName is assigned to every newly registered user.
const DefaultRoleName = "USER"

// Sentinel errors for the auth service; the transport layer maps them to codes.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidRefreshToken    = errors.New("invalid or expired refresh token")
	ErrRefreshTokenReuse      = errors.New("refresh token reuse detected; all sessions revoked")
	ErrInvalidResetToken      = errors.New("invalid or expired reset token")
	ErrWeakPassword           = errors.New("password does not meet policy")
)

// AuthResult holds the outcome of Login and Refresh: the token pair plus the
// identity it is bound to. Register returns UserID only.
type AuthResult struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	UserID           string
	SessionID        string
}

// Introspection is the result of inspecting an access token. Active is false
// for any token that should not be honored; the other fields are only set
// when Active is true.
type Introspection struct {
	Active      bool
	UserID      string
	SessionID   string
	Roles       []string
	Permissions []string
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error
}

// SessionRepo is the minimal session repository needed by the auth service.
// RevokeIfActive must be atomic at the store; it is the primitive that keeps
// rotation single-winner under concurrency.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	ListByUser(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
	Create(ctx context.Context, s *sessiondomain.Session) error
	Revoke(ctx context.Context, id string) error
	RevokeIfActive(ctx context.Context, id string, at time.Time) (bool, error)
	RevokeAllByUser(ctx context.Context, userID string) error
	SetReplacedBy(ctx context.Context, id, replacedByID string) error
}

// ResetRepo is the minimal password-reset repository needed by the auth service.
type ResetRepo interface {
	Create(ctx context.Context, t *domain.ResetToken) error
	GetByToken(ctx context.Context, token string) (*domain.ResetToken, error)
	MarkUsedIfUnused(ctx context.Context, id string, at time.Time) (bool, error)
}

// RoleRepo is the minimal role repository needed by the auth service.
type RoleRepo interface {
	GetRoleByName(ctx context.Context, name string) (*rbacdomain.Role, error)
	AssignRoleToUser(ctx context.Context, userID, roleID string) error
}

// AuthService implements register, login, refresh rotation, logout, and the
// password flows. All session-state transitions go through conditional store
// updates; the service itself holds no locks.
type AuthService struct {
	userRepo    UserRepo
	sessionRepo SessionRepo
	resetRepo   ResetRepo
	roleRepo    RoleRepo
	resolver    *rbac.Resolver
	hasher      *security.Hasher
	tokens      *security.TokenProvider
	policy      engine.Evaluator
	auditLog    audit.AuditLogger
	refreshTTL  time.Duration
	resetTTL    time.Duration
}

// NewAuthService returns an AuthService with the given dependencies.
// resolver, policy, and auditLog may be nil; the corresponding concern is skipped.
func NewAuthService(
	userRepo UserRepo,
	sessionRepo SessionRepo,
	resetRepo ResetRepo,
	roleRepo RoleRepo,
	resolver *rbac.Resolver,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	policy engine.Evaluator,
	auditLog audit.AuditLogger,
	refreshTTL, resetTTL time.Duration,
) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		resetRepo:   resetRepo,
		roleRepo:    roleRepo,
		resolver:    resolver,
		hasher:      hasher,
		tokens:      tokens,
		policy:      policy,
		auditLog:    auditLog,
		refreshTTL:  refreshTTL,
		resetTTL:    resetTTL,
	}
}

// Register creates a user with the given email and password and assigns the
// default role. Returns AuthResult with UserID only; the caller must Login to
// get tokens.
func (s *AuthService) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := s.checkPasswordPolicy(ctx, password); err != nil {
		return nil, err
	}
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hashed,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	if s.roleRepo != nil {
		role, err := s.roleRepo.GetRoleByName(ctx, DefaultRoleName)
		if err == nil && role != nil {
			if err := s.roleRepo.AssignRoleToUser(ctx, user.ID, role.ID); err != nil {
				return nil, err
			}
		}
	}
	s.logAccess(ctx, user.ID, "", "register", "user", "")
	return &AuthResult{UserID: user.ID}, nil
}

// Login authenticates with email/password, creates a session, and returns the
// token pair. Unknown email, wrong password, and inactive account all map to
// ErrInvalidCredentials so the response does not leak which check failed.
func (s *AuthService) Login(ctx context.Context, email, password, ip, userAgent string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive || user.PasswordHash == "" {
		s.logAccess(ctx, "", "", "login_failure", "session", "")
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		s.logAccess(ctx, user.ID, "", "login_failure", "session", "")
		return nil, ErrInvalidCredentials
	}
	result, err := s.startSession(ctx, user.ID, ip, userAgent)
	if err != nil {
		return nil, err
	}
	s.logAccess(ctx, user.ID, result.SessionID, "login", "session", "")
	return result, nil
}

// Refresh validates the presented refresh token, rotates the session, and
// returns a new token pair. Replay is what gets escalated: a revoked session
// that has a successor means its token was already exchanged once, and a hash
// mismatch on a live session means the current token leaked; both revoke every
// session of the user and return ErrRefreshTokenReuse. A session revoked
// without a successor (logout, password change, an earlier reuse sweep) or
// past its expiry just fails with ErrInvalidRefreshToken.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	userID, sessionID, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.UserID != userID {
		return nil, ErrInvalidRefreshToken
	}
	if sess.RevokedAt != nil {
		if sess.ReplacedByID != "" {
			return nil, s.handleReuse(ctx, userID, sessionID)
		}
		return nil, ErrInvalidRefreshToken
	}
	now := time.Now().UTC()
	if !now.Before(sess.ExpiresAt) {
		return nil, ErrInvalidRefreshToken
	}
	if !security.RefreshTokenHashEqual(refreshToken, sess.HashedRefreshToken) {
		return nil, s.handleReuse(ctx, userID, sessionID)
	}
	won, err := s.sessionRepo.RevokeIfActive(ctx, sessionID, now)
	if err != nil {
		return nil, err
	}
	if !won {
		// Another rotation of the same session got there first; this
		// presentation is by definition a second use of the same token.
		return nil, s.handleReuse(ctx, userID, sessionID)
	}
	result, err := s.startSession(ctx, userID, ip, userAgent)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.SetReplacedBy(ctx, sessionID, result.SessionID); err != nil {
		return nil, err
	}
	s.logAccess(ctx, userID, result.SessionID, "refresh", "session", fmt.Sprintf(`{"rotated_from":%q}`, sessionID))
	return result, nil
}

// Logout revokes the session identified by the refresh token. Invalid,
// expired, and already-revoked tokens are all treated as success so logout
// is idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	userID, sessionID, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil
	}
	if err := s.sessionRepo.Revoke(ctx, sessionID); err != nil {
		return err
	}
	s.logAccess(ctx, userID, sessionID, "logout", "session", "")
	return nil
}

// LogoutAll revokes every session of the user. Idempotent.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidCredentials
	}
	if err := s.sessionRepo.RevokeAllByUser(ctx, userID); err != nil {
		return err
	}
	s.logAccess(ctx, userID, "", "logout_all", "session", "")
	return nil
}

// Sessions returns all sessions of the user, revoked ones included.
func (s *AuthService) Sessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	return s.sessionRepo.ListByUser(ctx, userID)
}

// ChangePassword verifies the current password, stores the new hash, and
// revokes every session of the user so stolen refresh tokens die with the
// old credential.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil || !user.IsActive {
		return ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}
	if err := s.checkPasswordPolicy(ctx, newPassword); err != nil {
		return err
	}
	hashed, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePasswordHash(ctx, userID, hashed); err != nil {
		return err
	}
	if err := s.sessionRepo.RevokeAllByUser(ctx, userID); err != nil {
		return err
	}
	s.logAccess(ctx, userID, "", "password_change", "user", "")
	return nil
}

// ForgotPassword starts the reset flow. The returned token is handed to the
// mail layer; it is never an error for the email to be unknown, so the
// response cannot be used to probe which addresses are registered.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user == nil || !user.IsActive {
		return "", nil
	}
	now := time.Now().UTC()
	token := &domain.ResetToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Token:     uuid.New().String(),
		ExpiresAt: now.Add(s.resetTTL),
		CreatedAt: now,
	}
	if err := s.resetRepo.Create(ctx, token); err != nil {
		return "", err
	}
	s.logAccess(ctx, user.ID, "", "password_reset_request", "user", "")
	return token.Token, nil
}

// ResetPassword consumes a reset token, stores the new hash, and revokes
// every session of the user. The conditional consume keeps the token
// single-use even when two resets race.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrInvalidResetToken
	}
	rt, err := s.resetRepo.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if rt == nil || !rt.Usable(now) {
		return ErrInvalidResetToken
	}
	if err := s.checkPasswordPolicy(ctx, newPassword); err != nil {
		return err
	}
	hashed, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return err
	}
	consumed, err := s.resetRepo.MarkUsedIfUnused(ctx, rt.ID, now)
	if err != nil {
		return err
	}
	if !consumed {
		return ErrInvalidResetToken
	}
	if err := s.userRepo.UpdatePasswordHash(ctx, rt.UserID, hashed); err != nil {
		return err
	}
	if err := s.sessionRepo.RevokeAllByUser(ctx, rt.UserID); err != nil {
		return err
	}
	s.logAccess(ctx, rt.UserID, "", "password_reset", "user", "")
	return nil
}

// Introspect reports whether an access token should be honored right now:
// valid signature, live session, active user. Inactive tokens yield
// Active=false, not an error, so callers can treat the result uniformly.
func (s *AuthService) Introspect(ctx context.Context, accessToken string) (*Introspection, error) {
	inactive := &Introspection{Active: false}
	userID, sessionID, err := s.tokens.ValidateAccess(accessToken)
	if err != nil {
		return inactive, nil
	}
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || !sess.Active(time.Now().UTC()) {
		return inactive, nil
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return inactive, nil
	}
	out := &Introspection{Active: true, UserID: userID, SessionID: sessionID}
	if s.resolver != nil {
		roles, err := s.resolver.RoleNames(ctx, userID)
		if err != nil {
			return nil, err
		}
		perms, err := s.resolver.EffectivePermissions(ctx, userID)
		if err != nil {
			return nil, err
		}
		out.Roles = setToSlice(roles)
		out.Permissions = setToSlice(perms)
	}
	return out, nil
}

// startSession creates a fresh session and issues its token pair.
func (s *AuthService) startSession(ctx context.Context, userID, ip, userAgent string) (*AuthResult, error) {
	sessionID := uuid.New().String()
	refreshToken, refreshExp, err := s.tokens.IssueRefresh(userID, sessionID)
	if err != nil {
		return nil, err
	}
	accessToken, accessExp, err := s.tokens.IssueAccess(userID, sessionID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sess := &sessiondomain.Session{
		ID:                 sessionID,
		UserID:             userID,
		HashedRefreshToken: security.HashRefreshToken(refreshToken),
		ExpiresAt:          now.Add(s.refreshTTL),
		IP:                 ip,
		UserAgent:          userAgent,
		CreatedAt:          now,
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		UserID:           userID,
		SessionID:        sessionID,
	}, nil
}

// handleReuse revokes every session of the user and returns ErrRefreshTokenReuse.
// A store failure during the revoke takes precedence so the caller retries.
func (s *AuthService) handleReuse(ctx context.Context, userID, sessionID string) error {
	if err := s.sessionRepo.RevokeAllByUser(ctx, userID); err != nil {
		return err
	}
	s.logAccess(ctx, userID, sessionID, "reuse_detected", "session", "")
	return ErrRefreshTokenReuse
}

func (s *AuthService) checkPasswordPolicy(ctx context.Context, password string) error {
	if s.policy == nil {
		if len(password) < 8 {
			return fmt.Errorf("%w: too_short", ErrWeakPassword)
		}
		return nil
	}
	result, err := s.policy.EvaluatePassword(ctx, password)
	if err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("%w: %s", ErrWeakPassword, strings.Join(result.Violations, ", "))
	}
	return nil
}

func (s *AuthService) logAccess(ctx context.Context, userID, sessionID, action, resource, metadata string) {
	if s.auditLog == nil {
		return
	}
	s.auditLog.LogEvent(ctx, userID, sessionID, action, resource, metadata)
}

func setToSlice(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	ok, _ := regexp.MatchString(simpleEmail, email)
	if !ok {
		return errors.New("invalid email format")
	}
	return nil
}

package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is malformed, of the wrong kind,
	// or fails signature/issuer validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a token's signature is valid but its
	// lifetime has lapsed. Callers that do reuse detection rely on this being
	// distinct from ErrInvalidToken.
	ErrExpiredToken = errors.New("expired token")
)

// Token kinds. Access and refresh tokens are signed with independent secrets
// so compromise of one does not compromise the other; the kind claim also
// rejects a token presented against the wrong verifier.
const (
	tokenKindAccess  = "access"
	tokenKindRefresh = "refresh"
)

// SessionClaims holds JWT claims for both token kinds: the subject (user id),
// the session id, and the kind.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	Kind      string `json:"kind"`
}

// TokenProvider issues and validates HS256 access and refresh JWTs with
// independent secrets and lifetimes. Signing and verification are pure and
// stateless; a TokenProvider is safe for concurrent use.
type TokenProvider struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenProvider returns a TokenProvider signing with the given secrets.
// Both secrets must be non-empty and must differ.
func NewTokenProvider(accessSecret, refreshSecret []byte, issuer string, accessTTL, refreshTTL time.Duration) (*TokenProvider, error) {
	if len(accessSecret) == 0 || len(refreshSecret) == 0 {
		return nil, errors.New("security: token secrets must be non-empty")
	}
	if string(accessSecret) == string(refreshSecret) {
		return nil, errors.New("security: access and refresh secrets must differ")
	}
	return &TokenProvider{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		issuer:        issuer,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

// IssueAccess issues a short-lived access JWT for the given user and session.
// Returns the token string and its expiration time.
func (p *TokenProvider) IssueAccess(userID, sessionID string) (string, time.Time, error) {
	return p.issue(tokenKindAccess, p.accessSecret, p.accessTTL, userID, sessionID)
}

// IssueRefresh issues a long-lived refresh JWT for the given user and session.
// Returns the token string and its expiration time. The caller stores a hash
// of the token on the session for rotation binding.
func (p *TokenProvider) IssueRefresh(userID, sessionID string) (string, time.Time, error) {
	return p.issue(tokenKindRefresh, p.refreshSecret, p.refreshTTL, userID, sessionID)
}

func (p *TokenProvider) issue(kind string, secret []byte, ttl time.Duration, userID, sessionID string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
		Kind:      kind,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ValidateAccess parses and validates an access token (signature, exp, iss, kind).
// Returns userID and sessionID, or ErrInvalidToken/ErrExpiredToken.
func (p *TokenProvider) ValidateAccess(tokenString string) (userID, sessionID string, err error) {
	return p.validate(tokenKindAccess, p.accessSecret, tokenString)
}

// ValidateRefresh parses and validates a refresh token (signature, exp, iss, kind).
// Returns userID and sessionID, or ErrInvalidToken/ErrExpiredToken.
func (p *TokenProvider) ValidateRefresh(tokenString string) (userID, sessionID string, err error) {
	return p.validate(tokenKindRefresh, p.refreshSecret, tokenString)
}

func (p *TokenProvider) validate(kind string, secret []byte, tokenString string) (string, string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", ErrExpiredToken
		}
		return "", "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return "", "", ErrInvalidToken
	}
	if claims.Issuer != p.issuer || claims.Kind != kind {
		return "", "", ErrInvalidToken
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Subject, claims.SessionID, nil
}

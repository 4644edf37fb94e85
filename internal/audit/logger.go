// Package audit records security events for authentication and session flows.
// Recording is best-effort: a failing audit write never fails the operation
// that triggered it.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"auth-session-control/internal/audit/domain"
	"auth-session-control/internal/audit/event"
	auditrepo "auth-session-control/internal/audit/repository"
)

// IPExtractor returns the client IP from the request context (e.g. gRPC peer).
type IPExtractor func(context.Context) string

// UserAgentExtractor returns the client user agent from the request context.
type UserAgentExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource. Used
// by auth and session code paths. LogEvent is best-effort: failures are logged
// and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, sessionID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository, optional request
// extractors, and optional event emitters (Kafka, OTel).
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	uaExtractor UserAgentExtractor
	emitters    []event.Emitter
}

// NewLogger returns an AuditLogger that persists to repo. Either extractor may
// be nil; then the field is recorded as "unknown". Nil emitters are skipped.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, uaExtractor UserAgentExtractor, emitters ...event.Emitter) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, uaExtractor: uaExtractor, emitters: emitters}
}

// LogEvent writes one audit log entry and fans it out to the configured
// emitters asynchronously. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, sessionID, action, resource, metadata string) {
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	ua := "unknown"
	if l.uaExtractor != nil {
		ua = l.uaExtractor(ctx)
	}
	now := time.Now().UTC()
	if l.repo != nil {
		entry := &domain.AuditLog{
			ID:        uuid.New().String(),
			UserID:    userID,
			SessionID: sessionID,
			Action:    action,
			Resource:  resource,
			IP:        ip,
			UserAgent: ua,
			Metadata:  metadata,
			CreatedAt: now,
		}
		if err := l.repo.Create(ctx, entry); err != nil {
			log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
		}
	}
	for _, em := range l.emitters {
		event.EmitAsync(em, &event.Event{
			UserID:    userID,
			SessionID: sessionID,
			Action:    action,
			Resource:  resource,
			IP:        ip,
			Metadata:  metadata,
			CreatedAt: now,
		})
	}
}

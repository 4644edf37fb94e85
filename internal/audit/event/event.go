// Package event defines the wire shape for audit events streamed to external
// sinks (Kafka, OTel logs) and the Emitter contract those sinks implement.
package event

import (
	"context"
	"log"
	"time"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// Event is one security event as streamed to sinks. JSON field names are the
// contract with the worker (Kafka message value).
type Event struct {
	UserID    string    `json:"userId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip,omitempty"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Emitter emits audit events to a sink. Callers use it best-effort: log and
// ignore errors; a failing sink must never fail the primary operation.
type Emitter interface {
	Emit(ctx context.Context, e *Event) error
}

// Multi returns an Emitter that fans out to every non-nil emitter in order.
// The first error is returned after all emitters have been tried.
func Multi(emitters ...Emitter) Emitter {
	var active []Emitter
	for _, e := range emitters {
		if e != nil {
			active = append(active, e)
		}
	}
	return multiEmitter(active)
}

type multiEmitter []Emitter

func (m multiEmitter) Emit(ctx context.Context, e *Event) error {
	var firstErr error
	for _, em := range m {
		if err := em.Emit(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not
// blocked. The goroutine uses context.Background() so request cancellation does
// not abort an in-flight emit.
func EmitAsync(emitter Emitter, e *Event) {
	if emitter == nil || e == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(ctx, e); err != nil {
			log.Printf("audit: async emit failed: %v", err)
		}
	}()
}

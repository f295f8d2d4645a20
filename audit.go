package goSession

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/internal/audit"
)

// Audit event types emitted by the recipe.
const (
	AuditSessionCreated     = "session.created"
	AuditSessionVerified    = "session.verified"
	AuditSessionRefreshed   = "session.refreshed"
	AuditSessionRevoked     = "session.revoked"
	AuditTokenTheftDetected = "session.token_theft_detected"
	AuditGrantMissing       = "session.grant_missing"
)

// Re-exports so callers wire sinks without importing internal/audit.
type (
	AuditEvent = audit.Event
	AuditSink  = audit.Sink

	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
)

// NewChannelSink creates a buffered channel sink.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a line-delimited JSON sink.
var NewJSONWriterSink = audit.NewJSONWriterSink

func (r *Recipe) emitAudit(ctx context.Context, eventType, userID, sessionHandle string, success bool, failure error) {
	if r.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp:     time.Now(),
		EventType:     eventType,
		UserID:        userID,
		SessionHandle: sessionHandle,
		Success:       success,
	}
	if failure != nil {
		event.Error = failure.Error()
	}
	r.audit.Emit(ctx, event)
}

// AuditDropped reports how many audit events were dropped under
// backpressure.
func (r *Recipe) AuditDropped() uint64 {
	if r.audit == nil {
		return 0
	}
	return r.audit.Dropped()
}

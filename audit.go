package sessionguard

import (
	"context"
	"io"
	"log/slog"

	"github.com/MrEthical07/sessionguard/internal/audit"
)

// AuditEvent is one session lifecycle record. It never carries key
// material or session values.
type AuditEvent = audit.Event

// AuditSink receives audit events from the Guard's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink discards audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers audit events into a channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per event line.
type JSONWriterSink = audit.JSONWriterSink

// SlogSink logs audit events through a *slog.Logger.
type SlogSink = audit.SlogSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewSlogSink returns a sink logging through logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return audit.NewSlogSink(logger)
}

const (
	auditEventSessionCreated     = "session_created"
	auditEventSessionRejected    = "session_rejected"
	auditEventSessionRegenerated = "session_regenerated"
	auditEventSessionDestroyed   = "session_destroyed"
	auditEventKeyGenFailed       = "key_generation_failed"
	auditEventCreationThrottled  = "creation_throttled"
	auditEventCookieInvalid      = "cookie_invalid"
)

func (g *Guard) emitAudit(ctx context.Context, eventType string, success bool, sessionID string, err error, metadata map[string]string) {
	if g == nil || g.audit == nil {
		return
	}

	event := AuditEvent{
		EventType: eventType,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	g.audit.Emit(ctx, event)
}

package audit

import (
	"context"
	"time"

	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/contextkeys"
	"github.com/medora/medora/pkg/observability"
)

// Logger records audit events
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// NopLogger discards every event
type NopLogger struct{}

// Log implements Logger
func (NopLogger) Log(context.Context, Event) error { return nil }

// NewEvent fills actor, provider, request id and time from ctx
func NewEvent(ctx context.Context, action Action, resourceType, resourceID string, outcome Outcome) Event {
	ev := Event{
		OccurredAt:   time.Now().UTC(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Outcome:      outcome,
		RequestID:    contextkeys.GetRequestID(ctx),
	}
	if authCtx, ok := auth.FromContext(ctx); ok {
		actor := authCtx.AccountID
		provider := authCtx.ProviderID
		ev.ActorID = &actor
		ev.ProviderID = &provider
	}
	return ev
}

// Record logs ev and reports a failure to the request logger instead of the
// caller. A failed audit write never fails the audited request.
func Record(ctx context.Context, logger Logger, ev Event) {
	if logger == nil {
		return
	}
	if err := logger.Log(ctx, ev); err != nil {
		observability.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"action":        string(ev.Action),
			"resource_type": ev.ResourceType,
			"resource_id":   ev.ResourceID,
		}).Warn("Failed to write audit event")
	}
}

package audit

import (
	"context"

	id "everkeep/pkg/domain"
	"everkeep/pkg/requestcontext"
)

// ClientFromContext builds the forensic client metadata for an event from the
// request context populated by the middleware chain.
func ClientFromContext(ctx context.Context) ClientInfo {
	return ClientInfo{
		IPAddress: requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		Device:    requestcontext.Device(ctx),
	}
}

// SessionFromContext returns the session ID for an event, or nil when the
// context carries none.
func SessionFromContext(ctx context.Context) *id.SessionID {
	sessionID := requestcontext.SessionID(ctx)
	if sessionID.IsNil() {
		return nil
	}
	return &sessionID
}

// Package requestcontext provides HTTP-independent accessors for
// request-scoped values. Middleware sets them; services read them without
// importing net/http.
package requestcontext

import (
	"context"

	id "everkeep/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	actorIDKey   struct{}
	sessionIDKey struct{}
	reviewerKey  struct{}
	clientIPKey  struct{}
	userAgentKey struct{}
	deviceKey    struct{}
	requestIDKey struct{}
)

// ActorID retrieves the authenticated actor ID from the context.
// Returns the zero value (nil UUID) if not set.
func ActorID(ctx context.Context) id.ActorID {
	if v, ok := ctx.Value(actorIDKey{}).(id.ActorID); ok {
		return v
	}
	return id.ActorID{}
}

func WithActorID(ctx context.Context, actorID id.ActorID) context.Context {
	return context.WithValue(ctx, actorIDKey{}, actorID)
}

// SessionID retrieves the session ID from the context.
func SessionID(ctx context.Context) id.SessionID {
	if v, ok := ctx.Value(sessionIDKey{}).(id.SessionID); ok {
		return v
	}
	return id.SessionID{}
}

func WithSessionID(ctx context.Context, sessionID id.SessionID) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// ReviewerID retrieves the reviewer identity for review endpoints.
func ReviewerID(ctx context.Context) id.ReviewerID {
	if v, ok := ctx.Value(reviewerKey{}).(id.ReviewerID); ok {
		return v
	}
	return id.ReviewerID{}
}

func WithReviewerID(ctx context.Context, reviewerID id.ReviewerID) context.Context {
	return context.WithValue(ctx, reviewerKey{}, reviewerID)
}

// ClientIP retrieves the client network address from the context.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey{}).(string); ok {
		return v
	}
	return ""
}

// UserAgent retrieves the raw User-Agent header from the context.
func UserAgent(ctx context.Context) string {
	if v, ok := ctx.Value(userAgentKey{}).(string); ok {
		return v
	}
	return ""
}

// Device retrieves the parsed device summary ("Chrome 126 / Linux") from the
// context.
func Device(ctx context.Context) string {
	if v, ok := ctx.Value(deviceKey{}).(string); ok {
		return v
	}
	return ""
}

// WithClientMetadata injects client IP, User-Agent and device summary.
// Useful for service unit tests that skip the HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent, device string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	ctx = context.WithValue(ctx, deviceKey{}, device)
	return ctx
}

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

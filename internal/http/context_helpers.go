package httpx

import "context"

// Unexported context key types avoid collisions across packages.
type (
	sessionKey   struct{}
	requestIDKey struct{}
)

// SetSessionIDInContext returns a child context that carries the caller's session id.
// An empty id returns ctx unchanged.
func SetSessionIDInContext(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionIDFromContext returns the session id scoped to the request, if any.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey{}).(string)
	return id, ok && id != ""
}

// SetRequestIDInContext returns a child context that carries the request id.
func SetRequestIDInContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id assigned by Logging, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Package reqcontext carries a per-call correlation ID and request source
// through context.Context so log lines and activity records from the same
// inbound call_tool can be tied together, adapted from the shape of an
// internal/reqcontext package.
package reqcontext

import (
	"context"
	"regexp"

	"github.com/google/uuid"
)

// ContextKey is the type used for every key this package stores in a
// context.Context, kept unexported-shaped to avoid collisions with keys
// from other packages.
type ContextKey string

const (
	// CorrelationIDKey is the context key for the correlation ID.
	CorrelationIDKey ContextKey = "correlation_id"
	// RequestSourceKey is the context key for the request source.
	RequestSourceKey ContextKey = "request_source"
)

// RequestSource records where an inbound call_tool originated.
type RequestSource string

const (
	// SourceMCP is a call arriving over the MCP stdio transport.
	SourceMCP RequestSource = "MCP"
	// SourceCLI is a call made by the doctor/reauth CLI commands.
	SourceCLI RequestSource = "CLI"
	// SourceInternal is a call the router or cache makes on its own
	// behalf (e.g. the reauth tool).
	SourceInternal RequestSource = "INTERNAL"
	// SourceUnknown is the zero value returned when nothing was set.
	SourceUnknown RequestSource = "UNKNOWN"
)

// GenerateCorrelationID returns a fresh random-looking correlation ID,
// a random UUID from google/uuid.
func GenerateCorrelationID() string {
	return uuid.New().String()
}

// WithCorrelationID attaches a correlation ID to ctx.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// GetCorrelationID returns the correlation ID attached to ctx, or "" if
// none was set.
func GetCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestSource attaches a request source to ctx.
func WithRequestSource(ctx context.Context, source RequestSource) context.Context {
	return context.WithValue(ctx, RequestSourceKey, source)
}

// GetRequestSource returns the request source attached to ctx, or
// SourceUnknown if none was set.
func GetRequestSource(ctx context.Context) RequestSource {
	if ctx == nil {
		return SourceUnknown
	}
	if source, ok := ctx.Value(RequestSourceKey).(RequestSource); ok {
		return source
	}
	return SourceUnknown
}

// WithMetadata generates a fresh correlation ID and attaches it along with
// source to ctx in one call; this is the entry point server.makeHandler
// uses for every inbound call_tool.
func WithMetadata(ctx context.Context, source RequestSource) context.Context {
	ctx = WithCorrelationID(ctx, GenerateCorrelationID())
	return WithRequestSource(ctx, source)
}

// MaxRequestIDLength bounds an externally-supplied request ID before it
// is trusted as a cache/log correlation key.
const MaxRequestIDLength = 256

var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,256}$`)

// IsValidRequestID reports whether id is safe to log and store as-is:
// alphanumeric plus dash/underscore, 1-256 characters.
func IsValidRequestID(id string) bool {
	if id == "" || len(id) > MaxRequestIDLength {
		return false
	}
	return requestIDPattern.MatchString(id)
}

// GenerateRequestID returns a fresh UUIDv4 request ID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// GetOrGenerateRequestID returns providedID if it passes IsValidRequestID,
// otherwise mints a new one. Used wherever a caller-supplied ID (e.g. from
// an upstream header) must not be trusted blindly.
func GetOrGenerateRequestID(providedID string) string {
	if IsValidRequestID(providedID) {
		return providedID
	}
	return GenerateRequestID()
}

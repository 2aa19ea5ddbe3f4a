// Package tracer is a thin tracing seam over OpenTelemetry so transfer code
// records spans without importing otel APIs directly.
//
// Implementations:
//   - NoopTracer for tests
//   - OTelTracer for production, backed by the global tracer provider
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span and marks it failed when err is non-nil.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
//
//	ctx, span := t.Start(ctx, "transfer.dispatch",
//	    tracer.String("transfer_id", string(transferID)),
//	)
//	defer func() { span.End(err) }()
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to a span.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute      { return Attribute{Key: key, Value: value} }
func Bool(key string, value bool) Attribute   { return Attribute{Key: key, Value: value} }
func Int(key string, value int) Attribute     { return Attribute{Key: key, Value: int64(value)} }
func Int64(key string, value int64) Attribute { return Attribute{Key: key, Value: value} }

// HashSubject returns a short stable digest of a subject id so spans can be
// correlated without carrying patient identifiers.
func HashSubject(subjectID string) string {
	if subjectID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(subjectID))
	return hex.EncodeToString(sum[:8])
}

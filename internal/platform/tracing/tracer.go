// Package tracing is a small span abstraction over OpenTelemetry so domain
// packages can be traced without importing otel directly.
package tracing

import (
	"context"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer is safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute { return Attribute{Key: key, Value: value} }

func Bool(key string, value bool) Attribute { return Attribute{Key: key, Value: value} }

func Int64(key string, value int64) Attribute { return Attribute{Key: key, Value: value} }

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

const (
	SpanVerify        = "verification.verify"
	SpanGeoResolve    = "geoip.resolve"
	SpanGeoProvider   = "geoip.provider"
	SpanDocumentIssue = "document.generate"
)

const (
	AttrResult      = "verification.result"
	AttrInputKind   = "verification.input_kind"
	AttrGeoSource   = "geoip.source"
	AttrGeoProvider = "geoip.provider"
	AttrCountry     = "geoip.country"
	AttrDocType     = "document.type"
)

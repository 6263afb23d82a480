// Package telemetry wraps Sentry tracing and error capture for quilld.
//
// Services start spans around their public operations and tag them with the
// workspace, item, or conversation they touch. When no DSN is configured the
// package degrades to no-ops so local development needs no Sentry account.
package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
)

const serverName = "quilld"

// Config controls Sentry initialization.
type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init configures the global Sentry client and returns a flush function to
// defer at shutdown. An empty DSN yields a no-op flush, and an init failure
// is logged rather than returned so the daemon never refuses to start over
// telemetry.
func Init(cfg Config) (func(), error) {
	noop := func() {}
	if cfg.DSN == "" {
		return noop, nil
	}

	env := cfg.Environment
	if env == "" {
		env = "development"
	}
	rate := cfg.TracesSampleRate
	if rate == 0 {
		rate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      env,
		ServerName:       serverName,
		Debug:            cfg.Debug,
		EnableTracing:    true,
		TracesSampleRate: rate,
		TracesSampler:    sampler(rate),
	})
	if err != nil {
		log.Printf("sentry: init failed, continuing without tracing: %v", err)
		return noop, nil
	}

	log.Printf("sentry: tracing enabled (environment=%s sample_rate=%.2f)", env, rate)
	return func() { sentry.Flush(5 * time.Second) }, nil
}

// sampler drops health check noise, inherits the parent decision for child
// spans, and applies the configured rate to new transactions.
func sampler(rate float64) sentry.TracesSampler {
	return func(sc sentry.SamplingContext) float64 {
		if sc.Span.Name == "GET /health" || sc.Span.Op == "http.server GET /health" {
			return 0.0
		}
		var zero sentry.SpanID
		if sc.Span.ParentSpanID != zero {
			if sc.Span.Sampled.Bool() {
				return 1.0
			}
			return 0.0
		}
		return rate
	}
}

// SpanAttributes identifies the entities an operation touches. Empty fields
// are not tagged.
type SpanAttributes struct {
	WorkspaceID    string
	ItemID         string
	ConversationID string
	Operation      string
}

func (a SpanAttributes) apply(span *sentry.Span) {
	if span == nil {
		return
	}
	if a.WorkspaceID != "" {
		span.SetTag("workspace_id", a.WorkspaceID)
	}
	if a.ItemID != "" {
		span.SetTag("item_id", a.ItemID)
	}
	if a.ConversationID != "" {
		span.SetTag("conversation_id", a.ConversationID)
	}
	if a.Operation != "" {
		span.SetData("operation", a.Operation)
	}
}

// Span is a nil-safe handle over a sentry span.
type Span struct {
	inner *sentry.Span
}

// End finishes the span.
func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetError marks the span failed and reports the error.
func (s *Span) SetError(err error) {
	if s.inner == nil {
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError
	if hub := sentry.GetHubFromContext(s.inner.Context()); hub != nil {
		hub.CaptureException(err)
	}
}

// Context returns the context carrying the span.
func (s *Span) Context() context.Context {
	if s.inner == nil {
		return context.Background()
	}
	return s.inner.Context()
}

// StartSpan opens a child span under the transaction in ctx, or a fresh
// transaction when there is none, and tags it with attrs.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}
	attrs.apply(span)
	return span.Context(), &Span{inner: span}
}

// CaptureError reports err through the hub in ctx, falling back to the
// global hub.
func CaptureError(ctx context.Context, err error) {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

package queue

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// injectTrace copies the span in ctx onto item.
func injectTrace(ctx context.Context, item *Item) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return
	}
	item.TraceID = sc.TraceID().String()
	item.SpanID = sc.SpanID().String()
}

// parentContext makes the submitter's span the remote parent of ctx. IDs
// that do not decode leave ctx unchanged.
func parentContext(ctx context.Context, traceID, spanID string) context.Context {
	if traceID == "" || spanID == "" {
		return ctx
	}
	tid, err := trace.TraceIDFromHex(traceID)
	if err != nil {
		return ctx
	}
	sid, err := trace.SpanIDFromHex(spanID)
	if err != nil {
		return ctx
	}
	return trace.ContextWithRemoteSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))
}

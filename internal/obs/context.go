package obs

import (
	"context"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Domain fields a handler can attach to its request.
const (
	FieldActingUser     = "acting_user_id"
	FieldContractID     = "contract_id"
	FieldSubmissionKind = "submission_kind"
	FieldTaskID         = "task_id"
)

// spanKeyPrefix namespaces annotated fields on spans.
const spanKeyPrefix = "pricing."

type fieldsKey struct{}

// requestFields is shared by pointer so values set deep in a handler are
// visible to middleware that ran before it.
type requestFields struct {
	mu      sync.Mutex
	pattern string
	keys    []string
	values  map[string]string
}

func fieldsFrom(ctx context.Context) *requestFields {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(fieldsKey{}).(*requestFields)
	return f
}

// WithRequestFields installs an empty field set unless ctx already has one.
func WithRequestFields(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if fieldsFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, fieldsKey{}, &requestFields{values: map[string]string{}})
}

// WithRoutePattern pins the route label used by logs and metrics.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	ctx = WithRequestFields(ctx)
	f := fieldsFrom(ctx)
	f.mu.Lock()
	f.pattern = pattern
	f.mu.Unlock()
	return ctx
}

// RoutePatternFromContext returns the pinned pattern, or the chi pattern
// once routing has matched.
func RoutePatternFromContext(ctx context.Context) string {
	if f := fieldsFrom(ctx); f != nil {
		f.mu.Lock()
		pattern := f.pattern
		f.mu.Unlock()
		if pattern != "" {
			return pattern
		}
	}
	if ctx == nil {
		return ""
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// Annotate attaches a domain identifier to the current request's access log
// and server span. Outside an instrumented request only the span is touched.
func Annotate(ctx context.Context, key, value string) {
	if ctx == nil || value == "" {
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(spanKeyPrefix+key, value))
	f := fieldsFrom(ctx)
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Annotation returns the value annotated under key.
func Annotation(ctx context.Context, key string) (string, bool) {
	f := fieldsFrom(ctx)
	if f == nil {
		return "", false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

// Annotations returns the fields set with Annotate, in first-set order.
func Annotations(ctx context.Context) [][2]string {
	f := fieldsFrom(ctx)
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][2]string, 0, len(f.keys))
	for _, k := range f.keys {
		out = append(out, [2]string{k, f.values[k]})
	}
	return out
}

// Package trace records per-stage timings of one odwatch run.
//
//	ctx = trace.WithTrace(ctx, "Reconcile")
//	...
//	trace.FromContext(ctx).RecordSpan("Snapshot.ReadAll", map[string]any{"count": n})
//	log.Debug(trace.FromContext(ctx).Dump())
package trace

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"
)

type contextKey string

const traceKey contextKey = "odwatch_trace"

// Trace holds timing information for an operation
type Trace struct {
	mu       sync.Mutex
	spans    []Span
	start    time.Time
	lastTime time.Time // Last span time (for auto-duration calculation)
	opName   string    // Operation name (e.g., "Fetch", "Reconcile")
	enable   bool
}

// Span represents a timed stage
type Span struct {
	Name     string
	Duration time.Duration
	Details  map[string]any
}

func newTrace(opName string) *Trace {
	now := time.Now()
	return &Trace{
		start:    now,
		lastTime: now,
		opName:   opName,
		enable:   true,
	}
}

// WithTrace adds a trace to context with operation name.
// When opName is omitted the caller's function name is used.
func WithTrace(ctx context.Context, opName ...string) context.Context {
	name := "Operation"
	if len(opName) > 0 && opName[0] != "" {
		name = opName[0]
	} else if pc, _, _, ok := runtime.Caller(1); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			name = fn.Name()
		}
	}
	return context.WithValue(ctx, traceKey, newTrace(name))
}

// FromContext gets trace from context.
// If not found, returns a disabled trace that records nothing.
func FromContext(ctx context.Context) *Trace {
	if tr, ok := ctx.Value(traceKey).(*Trace); ok {
		return tr
	}
	return &Trace{enable: false}
}

// RecordSpan records a span lasting from the previous RecordSpan (or the
// trace start) until now
func (t *Trace) RecordSpan(name string, details ...map[string]any) {
	if !t.enable {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	span := Span{
		Name:     name,
		Duration: now.Sub(t.lastTime),
	}
	if len(details) > 0 {
		span.Details = details[0]
	}

	t.spans = append(t.spans, span)
	t.lastTime = now
}

// Total returns total elapsed time since trace start
func (t *Trace) Total() time.Duration {
	if !t.enable {
		return 0
	}
	return time.Since(t.start)
}

// Dump returns formatted trace information
func (t *Trace) Dump() string {
	if !t.enable {
		return ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.spans) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Trace [%s]: Total %v ===\n", t.opName, t.Total())
	for i, span := range t.spans {
		fmt.Fprintf(&b, "[%d] %s: %v", i+1, span.Name, span.Duration)
		if len(span.Details) > 0 {
			fmt.Fprintf(&b, " %+v", span.Details)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Spans returns a copy of the recorded spans
func (t *Trace) Spans() []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	spans := make([]Span, len(t.spans))
	copy(spans, t.spans)
	return spans
}

// LogValue renders the trace as a slog group: total plus one attr per span.
func (t *Trace) LogValue() slog.Value {
	spans := t.Spans()
	attrs := make([]slog.Attr, 0, len(spans)+2)
	attrs = append(attrs, slog.String("op", t.opName), slog.Duration("total", t.Total()))
	for _, s := range spans {
		attrs = append(attrs, slog.Duration(s.Name, s.Duration))
	}
	return slog.GroupValue(attrs...)
}

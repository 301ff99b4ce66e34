package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds run-scoped logging context that is automatically attached
// to every *Ctx log call made while the context is alive.
type LogContext struct {
	TraceID   string    // Request trace ID (API-triggered operations)
	RunID     string    // Collection run identifier
	Strategy  string    // GC strategy in effect
	Node      string    // Node identity (hostname + instance id)
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewRunContext creates a LogContext for a collection run.
func NewRunContext(runID, strategy, node string) *LogContext {
	return &LogContext{
		RunID:     runID,
		Strategy:  strategy,
		Node:      node,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// ElapsedMs returns milliseconds elapsed since StartTime.
func (lc *LogContext) ElapsedMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}

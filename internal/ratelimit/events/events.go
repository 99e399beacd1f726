// Package events defines the one-way observability event sink the rate
// limiter reports denials through, plus its concrete sinks. Emission is
// best-effort: a sink must never block or fail the request path.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event kinds.
const (
	KindRateLimited   = "rate_limited"
	KindAbuseDetected = "abuse_detected"
	KindStoreDegraded = "store_degraded"
)

// Severities mirror the log levels the same conditions are logged at.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Event is a structured observability record. Caller identifiers placed here
// must already be anonymized; sinks forward them verbatim.
type Event struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Severity   string    `json:"severity"`
	Class      string    `json:"class,omitempty"`
	Source     string    `json:"source,omitempty"`
	Endpoint   string    `json:"endpoint,omitempty"`
	Hits       int64     `json:"hits,omitempty"`
	Limit      int       `json:"limit,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New builds an event with a fresh ID and timestamp.
func New(kind, severity string) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Severity:   severity,
		OccurredAt: time.Now().UTC(),
	}
}

// Sink consumes events one-way. Implementations must be non-blocking and
// may drop events under pressure.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		s.Emit(ctx, event)
	}
}

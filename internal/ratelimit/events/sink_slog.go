package events

import (
	"context"
	"log/slog"
)

// SlogSink writes events to the structured log. It is the default sink when
// no broker is configured.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink returns a sink logging at the event's own severity.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Emit(ctx context.Context, event Event) {
	if s.logger == nil {
		return
	}
	level := slog.LevelWarn
	if event.Severity == SeverityError {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "ratelimit event",
		"event_id", event.ID,
		"kind", event.Kind,
		"class", event.Class,
		"source", event.Source,
		"endpoint", event.Endpoint,
		"hits", event.Hits,
		"limit", event.Limit,
	)
}

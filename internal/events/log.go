package events

import (
	"context"
	"log/slog"
)

// LogPublisher writes events to the structured log. It is used when no
// broker is configured.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, e *IngestEvent) error {
	if e == nil {
		return ErrNilEvent
	}
	p.log.Info("ingest event",
		"event_type", e.EventType,
		"job_id", e.JobID,
		"document_key", e.DocumentKey,
		"fragments", e.Fragments,
		"stored", e.Stored,
		"duration_ms", e.DurationMs,
		"error", e.Error,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Package events publishes ingestion lifecycle events.
package events

import (
	"context"
	"time"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	TypeIngestCompleted = "ingest.completed"
	TypeIngestFailed    = "ingest.failed"
)

// IngestEvent is a transport-neutral payload for a finished ingestion job.
type IngestEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	JobID         string    `json:"job_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	DocumentURL   string    `json:"document_url"`
	DocumentKey   string    `json:"document_key"`
	Fragments     int       `json:"fragments"`
	Stored        int       `json:"stored"`
	DurationMs    int64     `json:"duration_ms"`
	Error         string    `json:"error,omitempty"`
}

// Publisher publishes ingestion events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *IngestEvent) error
	Close() error
}

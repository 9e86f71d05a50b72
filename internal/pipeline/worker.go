package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dgallion1/ragdoc/internal/events"
)

// Runner ingests one document while reporting progress. *Ingester
// implements it.
type Runner interface {
	Run(ctx context.Context, url string, p Progress) (*Result, error)
}

// Worker processes a single ingestion job.
type Worker struct {
	runner    Runner
	publisher events.Publisher
	log       *slog.Logger
	timeout   time.Duration
	backoff   func(attempt int) time.Duration
}

func NewWorker(runner Runner, publisher events.Publisher, log *slog.Logger, timeout time.Duration) *Worker {
	return &Worker{
		runner:    runner,
		publisher: publisher,
		log:       log,
		timeout:   timeout,
		backoff:   Backoff,
	}
}

// Process runs the ingest pipeline for a job, retrying transient oracle
// failures, and publishes the outcome.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "url", job.URL)
	start := time.Now()

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	var (
		res *Result
		err error
	)
	for attempt := range MaxRetries {
		res, err = w.runner.Run(ctx, job.URL, job)
		if err == nil || !IsRetryable(err) || attempt == MaxRetries-1 {
			break
		}
		log.Warn("retryable ingestion error", "attempt", attempt, "error", err)
		job.AddError(err.Error())
		select {
		case <-time.After(w.backoff(attempt)):
		case <-ctx.Done():
			err = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}

	event := &events.IngestEvent{
		SchemaVersion: events.SchemaVersionV1,
		JobID:         job.ID,
		DocumentURL:   job.URL,
		DocumentKey:   DocumentKey(job.URL),
	}

	if err != nil {
		phase := job.Snapshot().Status
		log.Error("ingestion failed", "phase", phase, "error", err)
		job.Fail(string(phase), err)
		event.EventType = events.TypeIngestFailed
		event.Error = err.Error()
		event.Fragments = job.Snapshot().Progress.TotalFragments
	} else {
		log.Info("ingestion job complete", "stored", res.Stored, "duration", time.Since(start))
		job.Complete(res)
		event.EventType = events.TypeIngestCompleted
		event.Fragments = res.Fragments
		event.Stored = res.Stored
	}

	w.publish(event, start)
}

// publish uses its own context so a timed-out job still reports failure.
func (w *Worker) publish(event *events.IngestEvent, start time.Time) {
	if w.publisher == nil {
		return
	}
	event.EmittedAt = time.Now().UTC()
	event.DurationMs = time.Since(start).Milliseconds()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.publisher.Publish(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		w.log.Warn("publish ingest event failed", "job_id", event.JobID, "error", err)
	}
}

// Package recorder implements the §4.9 Run Recorder: it opens a
// PipelineRun at the start of one pipeline execution, then fills in its
// counters, duration, and terminal status once the run completes. A write
// failure never blocks the pipeline's own result from reaching its caller;
// it is retried in the background instead.
package recorder

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trendforge/ingest/infrastructure/resilience"
	"github.com/trendforge/ingest/internal/app/domain/run"
	"github.com/trendforge/ingest/internal/app/pipeline"
	"github.com/trendforge/ingest/internal/app/storage"
	"github.com/trendforge/ingest/pkg/logger"
)

// Recorder wraps a RunStore with the open/complete lifecycle and the
// non-blocking retry policy §4.9 requires of every write.
type Recorder struct {
	store storage.RunStore
	log   *logger.Logger
	retry resilience.RetryConfig
}

// New builds a Recorder over store. A nil log falls back to the package
// default, matching every other component's zero-value constructor idiom.
func New(store storage.RunStore, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.NewDefault("recorder")
	}
	return &Recorder{store: store, log: log, retry: resilience.DefaultRetryConfig()}
}

// Start opens a PipelineRun in the running state and returns it. A write
// failure here is retried in the background (see asyncRetry); the caller
// still gets back a run value to thread through to Complete regardless of
// whether the initial write landed, since the pipeline itself must not wait
// on the Recorder.
func (r *Recorder) Start(ctx context.Context, startedAt time.Time) run.PipelineRun {
	pr := run.PipelineRun{
		ID:        uuid.NewString(),
		Status:    run.StatusRunning,
		StartedAt: startedAt,
	}
	if err := r.store.Create(ctx, pr); err != nil {
		r.log.WithField("run_id", pr.ID).WithError(err).Warn("failed to record run start, retrying in background")
		r.asyncRetry(pr.ID, func(ctx context.Context) error { return r.store.Create(ctx, pr) })
	}
	return pr
}

// Complete fills in pr's terminal status, counters, and duration from one
// pipeline.Result (and, separately, the raw item count the Converter saw
// before the pipeline ever ran) and persists the update. runErr, if
// non-nil, marks the run failed and its message is appended to Errors.
func (r *Recorder) Complete(ctx context.Context, pr run.PipelineRun, itemsCollected int, result pipeline.Result, runErr error, completedAt time.Time) run.PipelineRun {
	pr.CompletedAt = completedAt
	pr.Duration = completedAt.Sub(pr.StartedAt)
	pr.Counters = run.Counters{
		ItemsCollected:    itemsCollected,
		ItemsProcessed:    len(result.Survivors),
		ItemsDeduplicated: dedupedCount(result.Drops),
		TopicsCreated:     result.TopicsCreated,
		TrendsCreated:     result.TrendsCreated,
	}
	if runErr != nil {
		pr.Status = run.StatusFailed
		pr.Errors = append(pr.Errors, runErr.Error())
	} else {
		pr.Status = run.StatusCompleted
	}

	if err := r.store.Update(ctx, pr); err != nil {
		r.log.WithField("run_id", pr.ID).WithError(err).Warn("failed to record run completion, retrying in background")
		r.asyncRetry(pr.ID, func(ctx context.Context) error { return r.store.Update(ctx, pr) })
	}
	return pr
}

// Skip records a run that never started (e.g. the scheduler's precondition
// checks skipped the tick before any items were collected).
func (r *Recorder) Skip(ctx context.Context, reason string, at time.Time) run.PipelineRun {
	pr := run.PipelineRun{
		ID:          uuid.NewString(),
		Status:      run.StatusSkipped,
		StartedAt:   at,
		CompletedAt: at,
		Errors:      []string{reason},
	}
	if err := r.store.Create(ctx, pr); err != nil {
		r.log.WithField("run_id", pr.ID).WithError(err).Warn("failed to record skipped run, retrying in background")
		r.asyncRetry(pr.ID, func(ctx context.Context) error { return r.store.Create(ctx, pr) })
	}
	return pr
}

// Abort finalizes a run that was opened by Start but never reached
// Complete — the Scheduler's precondition checks skipped the tick, or its
// collect step failed, before any pipeline ever ran. Unlike Complete, no
// counters are available; only the terminal status and reason are set.
func (r *Recorder) Abort(ctx context.Context, pr run.PipelineRun, status run.Status, reason string, at time.Time) run.PipelineRun {
	pr.Status = status
	pr.CompletedAt = at
	pr.Duration = at.Sub(pr.StartedAt)
	if reason != "" {
		pr.Errors = append(pr.Errors, reason)
	}
	if err := r.store.Update(ctx, pr); err != nil {
		r.log.WithField("run_id", pr.ID).WithError(err).Warn("failed to record aborted run, retrying in background")
		r.asyncRetry(pr.ID, func(ctx context.Context) error { return r.store.Update(ctx, pr) })
	}
	return pr
}

// asyncRetry runs fn with exponential backoff on a context detached from
// the caller's (the pipeline has already returned by the time this
// matters), logging a final warning if every attempt is exhausted.
func (r *Recorder) asyncRetry(runID string, fn func(ctx context.Context) error) {
	go func() {
		ctx := context.Background()
		err := resilience.Retry(ctx, r.retry, func() error { return fn(ctx) })
		if err != nil {
			r.log.WithField("run_id", runID).WithError(err).Error("giving up recording run after retries")
		}
	}()
}

// dedupedCount sums every drop reason the Deduplicator stage owns, leaving
// out DropInvalid (the Normalizer's concern) and DropVectorFailed (not a
// dedup outcome at all, a persistence one).
func dedupedCount(drops map[pipeline.DropReason]int) int {
	return drops[pipeline.DropExactDuplicate] + drops[pipeline.DropNaturalKeyConflict] + drops[pipeline.DropSemanticDuplicate]
}

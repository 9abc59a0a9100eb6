// Package ingestor wires the Scheduler's collected items through the
// Converter and Pipeline Engine, and drives the Run Recorder's lifecycle
// around each run. It is the ItemDispatcher the Scheduler calls into, and
// the component the control surface's /run_now handler drives for
// synchronous-trigger, asynchronous-completion runs.
package ingestor

import (
	"context"
	"time"

	"github.com/trendforge/ingest/internal/app/convert"
	"github.com/trendforge/ingest/internal/app/domain/item"
	"github.com/trendforge/ingest/internal/app/domain/run"
	"github.com/trendforge/ingest/internal/app/pipeline"
	"github.com/trendforge/ingest/internal/app/recorder"
	"github.com/trendforge/ingest/internal/app/scheduler"
	"github.com/trendforge/ingest/internal/app/storage"
	"github.com/trendforge/ingest/pkg/logger"
)

// Ensure Ingestor implements scheduler.ItemDispatcher.
var _ scheduler.ItemDispatcher = (*Ingestor)(nil)

// EventSink receives per-stage progress for one run, and a close signal
// once the run is terminal. The control surface's websocket hub implements
// this; a nil sink (the zero value) disables streaming entirely.
type EventSink interface {
	Publish(runID string, event pipeline.StageEvent)
	Close(runID string)
}

type runKey struct{}

func withRun(ctx context.Context, pr run.PipelineRun) context.Context {
	return context.WithValue(ctx, runKey{}, pr)
}

func runFromContext(ctx context.Context) (run.PipelineRun, bool) {
	pr, ok := ctx.Value(runKey{}).(run.PipelineRun)
	return pr, ok
}

// Ingestor ties one plugin's collected batch to one pipeline run.
type Ingestor struct {
	facade   *storage.Facade
	embedder pipeline.Embedder
	recorder *recorder.Recorder
	pcfg     pipeline.Config
	log      *logger.Logger
	sink     EventSink
}

// New builds an Ingestor. A nil embedder falls back to pipeline.HashEmbedder,
// matching the Engine's own zero-dependency default.
func New(facade *storage.Facade, rec *recorder.Recorder, embedder pipeline.Embedder, pcfg pipeline.Config, log *logger.Logger) *Ingestor {
	if embedder == nil {
		embedder = pipeline.HashEmbedder{}
	}
	if log == nil {
		log = logger.NewDefault("ingestor")
	}
	return &Ingestor{facade: facade, embedder: embedder, recorder: rec, pcfg: pcfg, log: log}
}

// WithEventSink registers the control surface's stage-progress sink.
func (i *Ingestor) WithEventSink(sink EventSink) {
	i.sink = sink
}

// TriggerRun opens a PipelineRun and hands the tick off to the Scheduler in
// the background, returning the run immediately so an HTTP caller gets its
// run_id without waiting for collection or pipeline execution to finish —
// per §6's `POST /run_now` contract. Progress is observable via the
// EventSink (if wired) or by polling `GET /runs/{run_id}`.
func (i *Ingestor) TriggerRun(ctx context.Context, sched *scheduler.Scheduler, pluginName string, overrideChecks bool) run.PipelineRun {
	pr := i.recorder.Start(ctx, time.Now())
	runCtx := withRun(context.Background(), pr)

	go func() {
		tick := sched.RunNow(runCtx, pluginName, overrideChecks)
		i.finalizeIfUnresolved(context.Background(), pr, tick)
	}()

	return pr
}

// finalizeIfUnresolved closes out runs the Scheduler skipped or failed
// before ever calling Dispatch (health/rate-limit precondition rejections,
// collect errors). A run Dispatch did reach will already be terminal by the
// time this runs, in which case it is left untouched.
func (i *Ingestor) finalizeIfUnresolved(ctx context.Context, pr run.PipelineRun, tick scheduler.TickResult) {
	if tick.Status == scheduler.TickCompleted {
		return
	}
	if got, ok, err := i.facade.Runs.Get(ctx, pr.ID); err == nil && ok && got.IsTerminal() {
		return
	}

	status := run.StatusFailed
	if tick.Status == scheduler.TickSkipped {
		status = run.StatusSkipped
	}
	i.recorder.Abort(ctx, pr, status, tick.Reason, time.Now())
}

// Dispatch converts raw into processed items and runs them through a fresh
// pipeline.Engine, then completes the run the enclosing TriggerRun opened.
// A ctx with no run attached (Dispatch called outside TriggerRun, e.g. by
// the Scheduler's own cron-driven ticks) gets its own ad hoc run record, so
// scheduled ticks are recorded exactly like manually triggered ones.
func (i *Ingestor) Dispatch(ctx context.Context, pluginName string, items []item.Raw) error {
	pr, ok := runFromContext(ctx)
	if !ok {
		pr = i.recorder.Start(ctx, time.Now())
	}

	now := time.Now()
	converted := make([]item.Processed, 0, len(items))
	for _, raw := range items {
		if p, ok := convert.Convert(raw, now); ok {
			converted = append(converted, p)
		}
	}

	engine := pipeline.NewEngine()
	if i.sink != nil {
		engine.OnStage(func(ev pipeline.StageEvent) { i.sink.Publish(pr.ID, ev) })
	}

	result, runErr := engine.Run(ctx, pr.ID, time.Now, i.log, i.pcfg, i.facade, i.embedder, converted)
	i.recorder.Complete(ctx, pr, len(items), result, runErr, time.Now())
	if i.sink != nil {
		i.sink.Close(pr.ID)
	}

	if runErr != nil {
		return runErr
	}
	return nil
}

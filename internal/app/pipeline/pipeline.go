// Package pipeline runs newly converted items through the ordered stage
// chain described by §4.7: normalization, language detection,
// deduplication, persistence, clustering, ranking, and a final topic/trend
// persistence pass. Stages are composed by Engine in a fixed order; each
// stage is independently testable against the in-memory Storage Facade.
package pipeline

import (
	"context"
	"time"

	"github.com/trendforge/ingest/infrastructure/errkind"
	"github.com/trendforge/ingest/internal/app/domain/item"
	"github.com/trendforge/ingest/internal/app/domain/topic"
	"github.com/trendforge/ingest/internal/app/domain/trend"
	"github.com/trendforge/ingest/internal/app/storage"
	"github.com/trendforge/ingest/pkg/hotlog"
	"github.com/trendforge/ingest/pkg/logger"
)

// Stage transforms a batch of items, dropping or mutating entries as its
// contract requires. A stage that returns fewer items than it received has
// dropped the rest (duplicates, invalid items); it must not silently lose
// items without recording why via Context.recordDrop.
type Stage interface {
	Name() string
	Run(ctx context.Context, pc *Context, items []item.Processed) ([]item.Processed, error)
}

// DropReason classifies why an item did not survive a stage, for the run
// recorder's counters and for logging.
type DropReason string

const (
	DropExactDuplicate    DropReason = "exact_duplicate"
	DropNaturalKeyConflict DropReason = "natural_key_conflict"
	DropSemanticDuplicate DropReason = "semantic_duplicate"
	DropInvalid           DropReason = "invalid"
	DropVectorFailed      DropReason = "vector_failed"
)

// Context carries per-run state and dependencies shared across every stage:
// the Storage Facade, the embedder, tunable thresholds, and the run's own
// clock and logger. It is not safe for concurrent stage execution (stages
// run sequentially by design, per §4.7).
type Context struct {
	RunID  string
	Now    func() time.Time
	Log    *logger.Logger
	// HotLog is the per-item structured logger: stages processing batches in
	// the thousands log item-level decisions through it instead of through
	// Log, so a busy run's debug trace doesn't pay logrus's field-map
	// allocation cost per item.
	HotLog *hotlog.Logger
	Config Config

	Items   storage.ItemStore
	Vectors storage.VectorStore
	Topics  storage.TopicStore
	Trends  storage.TrendStore
	Cache   storage.CacheStore

	Embedder Embedder
	Locks    *FingerprintLocker

	drops map[DropReason]int

	// proposals and itemTopic are populated by the Clusterer stage and
	// consumed by the Ranker and TopicTrendPersister stages. They live on
	// Context rather than flowing through the []item.Processed batch
	// because a Topic aggregates many items and item.Processed has no
	// TopicID field of its own (an item can move between topics across
	// runs, so the association belongs to the run, not the item).
	proposals    []topic.Topic
	itemTopic    map[string]string
	rankedTrends []trend.Trend

	topicsCreated int
	trendsCreated int
}

// NewContext builds a run Context directly, for stage unit tests and for
// any caller that wants to run a subset of stages rather than the full
// Engine (e.g. a backfill tool re-running just the Ranker).
func NewContext(runID string, now func() time.Time, log *logger.Logger, cfg Config, s *storage.Facade, embedder Embedder) *Context {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.NewDefault("pipeline")
	}
	return &Context{
		RunID:    runID,
		Now:      now,
		Log:      log,
		HotLog:   hotlog.NewDefault("pipeline"),
		Config:   cfg.withDefaults(),
		Items:    s.Items,
		Vectors:  s.Vectors,
		Topics:   s.Topics,
		Trends:   s.Trends,
		Cache:    s.Cache,
		Embedder: embedder,
		Locks:    NewFingerprintLocker(),
		drops:    make(map[DropReason]int),
	}
}

// recordDrop tallies a drop for the run recorder's counters.
func (pc *Context) recordDrop(reason DropReason, n int) {
	if n <= 0 {
		return
	}
	pc.drops[reason] += n
}

// Drops returns a snapshot of drop counts by reason, accumulated so far.
func (pc *Context) Drops() map[DropReason]int {
	out := make(map[DropReason]int, len(pc.drops))
	for k, v := range pc.drops {
		out[k] = v
	}
	return out
}

// setProposals records the Clusterer's output for the Ranker and
// TopicTrendPersister stages.
func (pc *Context) setProposals(proposals []topic.Topic, itemTopic map[string]string) {
	pc.proposals = proposals
	pc.itemTopic = itemTopic
}

// Proposals returns the Clusterer's topic proposals for this run.
func (pc *Context) Proposals() []topic.Topic { return pc.proposals }

// TopicFor returns the topic ID an item was assigned to by the Clusterer.
func (pc *Context) TopicFor(itemID string) (string, bool) {
	id, ok := pc.itemTopic[itemID]
	return id, ok
}

// latestTrendFor looks up the most recent prior Trend recorded for a topic,
// for the Ranker's velocity derivation. Lookup failures are treated as "no
// prior trend" rather than propagated, since a missing prior Trend (this
// topic's first run) is an expected, common case.
func (pc *Context) latestTrendFor(ctx context.Context, topicID string) (trend.Trend, bool) {
	prior, err := pc.Trends.LatestForTopic(ctx, topicID, 1)
	if err != nil || len(prior) == 0 {
		return trend.Trend{}, false
	}
	return prior[0], true
}

// trendHistoryFor returns up to limit prior Trends for a topic, most recent
// first, for the Ranker's sustained/declining state derivation (which needs
// a short run of history, not just the single latest point).
func (pc *Context) trendHistoryFor(ctx context.Context, topicID string, limit int) []trend.Trend {
	prior, err := pc.Trends.LatestForTopic(ctx, topicID, limit)
	if err != nil {
		return nil
	}
	return prior
}

// setTrends records the Ranker's output for the TopicTrendPersister stage.
func (pc *Context) setTrends(trends []trend.Trend) {
	pc.rankedTrends = trends
}

// RankedTrends returns the Ranker's scored, ranked trends for this run.
func (pc *Context) RankedTrends() []trend.Trend { return pc.rankedTrends }

// Result summarizes one pipeline run over a single batch of converted items.
type Result struct {
	Survivors     []item.Processed
	Drops         map[DropReason]int
	TopicsCreated int
	TrendsCreated int
}

// StageEvent reports one stage's completion, for a caller (the control
// surface's run-progress websocket) that wants to observe a run as it
// happens rather than poll for its terminal PipelineRun record.
type StageEvent struct {
	Stage     string
	ItemCount int
	Drops     map[DropReason]int
}

// StageHook receives one StageEvent per completed stage, in stage order.
type StageHook func(event StageEvent)

// Engine runs the fixed stage chain in order, per §4.7 and the resolved
// ordering decision in DESIGN.md: Normalizer, LanguageDetector,
// Deduplicator, ItemPersister, Clusterer, Ranker, TopicTrendPersister.
type Engine struct {
	stages []Stage
	hook   StageHook
}

// OnStage registers a hook invoked after every stage completes
// successfully. It is optional; a nil hook (the zero value) is a no-op.
// Not safe to call concurrently with Run.
func (e *Engine) OnStage(hook StageHook) {
	e.hook = hook
}

// NewEngine builds the standard 7-stage pipeline. Every stage reads its
// thresholds from the run Context's Config at Run time, so one Engine value
// is reusable across runs with different configs.
func NewEngine() *Engine {
	return &Engine{
		stages: []Stage{
			&Normalizer{},
			&LanguageDetector{},
			&Deduplicator{},
			&ItemPersister{},
			&Clusterer{},
			&Ranker{},
			&TopicTrendPersister{},
		},
	}
}

// Run drives every stage in order over items, short-circuiting on the first
// stage that returns an error of any kind (returned wrapped as
// errkind.StorageError), and otherwise accumulating drops per §4.7's
// partial-failure policy: a stage may drop individual items but must let the
// rest of the batch continue.
func (e *Engine) Run(ctx context.Context, runID string, now func() time.Time, log *logger.Logger, cfg Config, s *storage.Facade, embedder Embedder, items []item.Processed) (Result, error) {
	pc := NewContext(runID, now, log, cfg, s, embedder)
	batch := items
	for _, stage := range e.stages {
		var err error
		batch, err = stage.Run(ctx, pc, batch)
		if err != nil {
			return Result{Survivors: batch, Drops: pc.Drops()}, errkind.Wrap(errkind.StorageError, "stage "+stage.Name()+" failed", err)
		}
		if e.hook != nil {
			e.hook(StageEvent{Stage: stage.Name(), ItemCount: len(batch), Drops: pc.Drops()})
		}
	}
	return Result{
		Survivors:     batch,
		Drops:         pc.Drops(),
		TopicsCreated: pc.topicsCreated,
		TrendsCreated: pc.trendsCreated,
	}, nil
}

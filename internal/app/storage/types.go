// Package storage defines the capability interfaces the pipeline and
// control surface depend on, independent of any concrete backend. Each
// interface is small and owned by the component that needs it, following
// the teacher's capability-interface composition pattern: a consumer
// declares exactly the methods it calls, and a facade (see Application in
// cmd/ingestd) wires concrete implementations in.
package storage

import (
	"context"
	"time"

	"github.com/trendforge/ingest/internal/app/domain/item"
	"github.com/trendforge/ingest/internal/app/domain/run"
	"github.com/trendforge/ingest/internal/app/domain/topic"
	"github.com/trendforge/ingest/internal/app/domain/trend"
)

// ItemStore persists Processed items, keyed by UUID, with unique secondary
// indexes on (source, source_id) and on content_hash, and a non-unique
// index on collected_at.
type ItemStore interface {
	Insert(ctx context.Context, it item.Processed) error
	// Upsert inserts it, or updates it in place if its natural key
	// (source, source_id) already exists. Returns the existing row's ID
	// when an update occurred, so callers can reconcile against the ID the
	// Converter derived.
	Upsert(ctx context.Context, it item.Processed) (existingID string, updated bool, err error)
	Get(ctx context.Context, id string) (item.Processed, bool, error)
	GetByNaturalKey(ctx context.Context, source, sourceID string) (item.Processed, bool, error)
	GetByContentHash(ctx context.Context, hash [32]byte) (item.Processed, bool, error)
	SetStatus(ctx context.Context, id string, status item.Status) error
	ListByStatus(ctx context.Context, status item.Status, limit int) ([]item.Processed, error)
	ListWindow(ctx context.Context, since, until time.Time, limit, offset int) ([]item.Processed, error)
}

// VectorCandidate is one match returned by VectorStore.Search.
type VectorCandidate struct {
	ItemID     string
	Similarity float64
	Language   string
	Category   string
	Collected  time.Time
	Published  time.Time
}

// VectorStore persists the embedding for an item plus enough metadata to
// filter k-NN search by language/category/recency without a join back to
// ItemStore.
type VectorStore interface {
	Upsert(ctx context.Context, itemID string, embedding []float32, language, category string, collected, published time.Time) error
	Delete(ctx context.Context, itemID string) error
	// Search returns candidates restricted to collected_at >= since and (if
	// language != "") matching language, ordered by cosine similarity
	// descending. No similarity floor is applied; callers filter by their
	// own threshold.
	Search(ctx context.Context, embedding []float32, since time.Time, language string, limit int) ([]VectorCandidate, error)
}

// CacheStore is an opaque TTL key-value store doubling as the backing for
// distributed rate-limit sorted sets.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	// ZAdd/ZRemRangeByScore/ZCard back a distributed sliding-window rate
	// limiter keyed by timestamp, mirroring Redis's sorted-set primitives.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error
	ZCard(ctx context.Context, key string) (int64, error)
}

// TopicStore persists Topic aggregates.
type TopicStore interface {
	Upsert(ctx context.Context, t topic.Topic) error
	Get(ctx context.Context, id string) (topic.Topic, bool, error)
	ListRecent(ctx context.Context, since time.Time, limit int) ([]topic.Topic, error)
}

// TrendStore persists per-run Trend rows.
type TrendStore interface {
	Insert(ctx context.Context, t trend.Trend) error
	ListByRun(ctx context.Context, runID string, limit int) ([]trend.Trend, error)
	LatestForTopic(ctx context.Context, topicID string, limit int) ([]trend.Trend, error)
}

// RunStore persists PipelineRun records.
type RunStore interface {
	Create(ctx context.Context, r run.PipelineRun) error
	Update(ctx context.Context, r run.PipelineRun) error
	Get(ctx context.Context, id string) (run.PipelineRun, bool, error)
	ListRecent(ctx context.Context, limit int) ([]run.PipelineRun, error)
}

// Facade is the flattened view of a concrete backend (memory.Store,
// postgres.Store) used throughout the application: pipeline stages and the
// control surface depend on exactly the capability fields they need,
// without importing the backend package that constructs the Facade. It
// holds no state of its own.
type Facade struct {
	Items   ItemStore
	Vectors VectorStore
	Cache   CacheStore
	Topics  TopicStore
	Trends  TrendStore
	Runs    RunStore
}

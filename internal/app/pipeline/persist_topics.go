package pipeline

import (
	"context"

	"github.com/trendforge/ingest/internal/app/domain/item"
)

// TopicTrendPersister writes the Clusterer's topic proposals and the
// Ranker's scored trends, then invalidates the CacheStore entries for every
// affected category so cached trend listings don't serve stale data. Per
// §5's at-least-once semantics, a failure here aborts the run (the caller
// marks the PipelineRun failed) but does not roll back the ItemStore rows
// the ItemPersister already committed earlier in the same run.
type TopicTrendPersister struct{}

func (p *TopicTrendPersister) Name() string { return "topic_trend_persister" }

func (p *TopicTrendPersister) Run(ctx context.Context, pc *Context, items []item.Processed) ([]item.Processed, error) {
	proposals := pc.Proposals()
	for _, t := range proposals {
		if err := pc.Topics.Upsert(ctx, t); err != nil {
			return items, err
		}
		pc.topicsCreated++
	}

	categories := make(map[string]struct{})
	for _, t := range pc.RankedTrends() {
		if err := pc.Trends.Insert(ctx, t); err != nil {
			return items, err
		}
		pc.trendsCreated++
		if t.Category != "" {
			categories[t.Category] = struct{}{}
		}
	}

	for category := range categories {
		if err := pc.Cache.Del(ctx, cacheKeyForCategory(category)); err != nil {
			pc.Log.WithField("category", category).WithError(err).Warn("failed to invalidate trend cache entry")
		}
	}

	return items, nil
}

// cacheKeyForCategory is the control surface's cache key convention for a
// category's ranked trend listing; invalidated here so the next read
// recomputes it from the freshly written Trend rows.
func cacheKeyForCategory(category string) string {
	return "trends:category:" + category
}

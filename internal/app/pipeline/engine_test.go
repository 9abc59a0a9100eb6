package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trendforge/ingest/internal/app/domain/item"
	"github.com/trendforge/ingest/internal/app/pipeline"
)

func TestEngineRunsFullChainAndPersistsSurvivors(t *testing.T) {
	facade := newFacade()
	now := time.Now()
	engine := pipeline.NewEngine()

	items := []item.Processed{
		{ID: "a", Source: "hn", SourceID: "1", Title: "Breakthrough battery doubles electric vehicle range",
			Content: "Researchers say the new chemistry could ship within two years", Category: "science",
			Engagement: map[string]float64{"likes": 120}, PublishedAt: now, CollectedAt: now},
		{ID: "b", Source: "rss", SourceID: "2", Title: "", Content: "empty title should be dropped", PublishedAt: now, CollectedAt: now},
	}

	result, err := engine.Run(context.Background(), "run-1", func() time.Time { return now }, nil, pipeline.Config{}, facade, pipeline.HashEmbedder{}, items)
	require.NoError(t, err)
	require.Len(t, result.Survivors, 1)
	require.Equal(t, 1, result.Drops[pipeline.DropInvalid])
	// The one surviving item forms a cluster of size 1, below MinClusterSize:
	// per §4.7 it remains an unclustered item this run, no Topic or Trend.
	require.Equal(t, 0, result.TopicsCreated)
	require.Equal(t, 0, result.TrendsCreated)

	got, ok, err := facade.Items.Get(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, item.StatusProcessed, got.Status)
}

func TestEngineDedupsAcrossTwoRuns(t *testing.T) {
	facade := newFacade()
	now := time.Now()
	engine := pipeline.NewEngine()
	clock := func() time.Time { return now }

	item1 := item.Processed{ID: "a", Source: "hn", SourceID: "1", Title: "Same story republished elsewhere",
		Content: "identical content", Category: "tech", PublishedAt: now, CollectedAt: now}

	_, err := engine.Run(context.Background(), "run-1", clock, nil, pipeline.Config{}, facade, pipeline.HashEmbedder{}, []item.Processed{item1})
	require.NoError(t, err)

	item2 := item.Processed{ID: "b", Source: "other", SourceID: "99", Title: "Same story republished elsewhere",
		Content: "identical content", Category: "tech", PublishedAt: now, CollectedAt: now}

	result, err := engine.Run(context.Background(), "run-2", clock, nil, pipeline.Config{}, facade, pipeline.HashEmbedder{}, []item.Processed{item2})
	require.NoError(t, err)
	require.Empty(t, result.Survivors)
	require.Equal(t, 1, result.Drops[pipeline.DropExactDuplicate])
}

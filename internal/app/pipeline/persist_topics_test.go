package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trendforge/ingest/internal/app/domain/item"
	"github.com/trendforge/ingest/internal/app/pipeline"
)

func TestTopicTrendPersisterWritesTopicsAndTrendsAndInvalidatesCache(t *testing.T) {
	facade := newFacade()
	now := time.Now()
	pc := newTestContext(facade, now)
	embedder := pipeline.HashEmbedder{}

	title, content := "Regional airline adds new routes", "Expansion targets underserved cities"
	emb := embedder.Embed(title, content)
	items := []item.Processed{
		{ID: "a", Title: title, Content: content, Category: "travel",
			Embedding: emb, Engagement: map[string]float64{"shares": 10}, PublishedAt: now},
		{ID: "b", Title: title, Content: content, Category: "travel",
			Embedding: emb, Engagement: map[string]float64{"shares": 4}, PublishedAt: now},
	}

	require.NoError(t, facade.Cache.SetEX(context.Background(), "trends:category:travel", "stale", time.Minute))

	c := &pipeline.Clusterer{}
	_, err := c.Run(context.Background(), pc, items)
	require.NoError(t, err)
	r := &pipeline.Ranker{}
	_, err = r.Run(context.Background(), pc, items)
	require.NoError(t, err)

	p := &pipeline.TopicTrendPersister{}
	_, err = p.Run(context.Background(), pc, items)
	require.NoError(t, err)

	topicID, ok := pc.TopicFor("a")
	require.True(t, ok)
	_, found, err := facade.Topics.Get(context.Background(), topicID)
	require.NoError(t, err)
	require.True(t, found)

	trends, err := facade.Trends.ListByRun(context.Background(), "test-run", 0)
	require.NoError(t, err)
	require.Len(t, trends, 1)

	_, cached, err := facade.Cache.Get(context.Background(), "trends:category:travel")
	require.NoError(t, err)
	require.False(t, cached)
}

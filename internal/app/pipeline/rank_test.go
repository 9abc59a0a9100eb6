package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trendforge/ingest/internal/app/domain/item"
	"github.com/trendforge/ingest/internal/app/pipeline"
)

func TestRankerProducesEmergingTrendForNewTopic(t *testing.T) {
	facade := newFacade()
	now := time.Now()
	pc := newTestContext(facade, now)
	embedder := pipeline.HashEmbedder{}

	title, content := "City council approves new transit line", "Construction begins next year"
	emb := embedder.Embed(title, content)
	items := []item.Processed{
		{ID: "a", Title: title, Content: content, Category: "local",
			Embedding: emb, Engagement: map[string]float64{"likes": 50}, PublishedAt: now},
		{ID: "b", Title: title, Content: content, Category: "local",
			Embedding: emb, Engagement: map[string]float64{"likes": 10}, PublishedAt: now},
	}

	c := &pipeline.Clusterer{}
	_, err := c.Run(context.Background(), pc, items)
	require.NoError(t, err)

	r := &pipeline.Ranker{}
	_, err = r.Run(context.Background(), pc, items)
	require.NoError(t, err)

	trends := pc.RankedTrends()
	require.Len(t, trends, 1)
	require.Equal(t, 1, trends[0].Rank)
	require.GreaterOrEqual(t, trends[0].Score, 0.0)
	require.Equal(t, "emerging", string(trends[0].State))
}

func TestRankerOrdersByScoreDescending(t *testing.T) {
	facade := newFacade()
	now := time.Now()
	pc := newTestContext(facade, now)
	embedder := pipeline.HashEmbedder{}

	hot := item.Processed{ID: "hot", Title: "Massive product launch breaks sales records", Content: "demand overwhelms supply",
		Category: "tech", Engagement: map[string]float64{"likes": 900}, PublishedAt: now}
	hot.Embedding = embedder.Embed(hot.Title, hot.Content)
	hot2 := item.Processed{ID: "hot2", Title: hot.Title, Content: hot.Content,
		Category: "tech", Engagement: map[string]float64{"likes": 400}, PublishedAt: now, Embedding: hot.Embedding}

	cold := item.Processed{ID: "cold", Title: "Quiet afternoon at the museum", Content: "a few visitors strolled through",
		Category: "culture", Engagement: map[string]float64{"likes": 2}, PublishedAt: now}
	cold.Embedding = embedder.Embed(cold.Title, cold.Content)
	cold2 := item.Processed{ID: "cold2", Title: cold.Title, Content: cold.Content,
		Category: "culture", Engagement: map[string]float64{"likes": 1}, PublishedAt: now, Embedding: cold.Embedding}

	items := []item.Processed{hot, hot2, cold, cold2}

	c := &pipeline.Clusterer{}
	_, err := c.Run(context.Background(), pc, items)
	require.NoError(t, err)

	r := &pipeline.Ranker{}
	_, err = r.Run(context.Background(), pc, items)
	require.NoError(t, err)

	trends := pc.RankedTrends()
	require.Len(t, trends, 2)
	require.Equal(t, "hot", titleToItemID(trends[0].Title, hot, cold))
	require.True(t, trends[0].Score >= trends[1].Score)
}

func titleToItemID(title string, hot, cold item.Processed) string {
	switch title {
	case hot.Title:
		return "hot"
	case cold.Title:
		return "cold"
	default:
		return "unknown"
	}
}

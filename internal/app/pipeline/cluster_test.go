package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trendforge/ingest/internal/app/domain/item"
	"github.com/trendforge/ingest/internal/app/pipeline"
)

func TestClustererGroupsSimilarItemsIntoOneTopic(t *testing.T) {
	facade := newFacade()
	now := time.Now()
	pc := newTestContext(facade, now)
	embedder := pipeline.HashEmbedder{}

	title, content := "Startup raises new funding round for AI platform", "Investors back the growth stage"
	emb := embedder.Embed(title, content)

	items := []item.Processed{
		{ID: "a", Title: title, Content: content, Category: "tech", Embedding: emb, PublishedAt: now},
		{ID: "b", Title: title, Content: content, Category: "tech", Embedding: emb, PublishedAt: now},
	}

	c := &pipeline.Clusterer{}
	_, err := c.Run(context.Background(), pc, items)
	require.NoError(t, err)

	topicA, okA := pc.TopicFor("a")
	topicB, okB := pc.TopicFor("b")
	require.True(t, okA)
	require.True(t, okB)
	require.Equal(t, topicA, topicB)

	proposals := pc.Proposals()
	require.Len(t, proposals, 1)
	require.Len(t, proposals[0].ItemIDs, 2)
}

func TestClustererLeavesDissimilarItemsAsSingletons(t *testing.T) {
	facade := newFacade()
	now := time.Now()
	pc := newTestContext(facade, now)
	embedder := pipeline.HashEmbedder{}

	items := []item.Processed{
		{ID: "a", Title: "Local bakery opens downtown", Content: "fresh bread every morning", Category: "food",
			Embedding: embedder.Embed("Local bakery opens downtown", "fresh bread every morning"), PublishedAt: now},
		{ID: "b", Title: "Senate passes new budget bill", Content: "lawmakers reached a compromise", Category: "politics",
			Embedding: embedder.Embed("Senate passes new budget bill", "lawmakers reached a compromise"), PublishedAt: now},
	}

	c := &pipeline.Clusterer{}
	_, err := c.Run(context.Background(), pc, items)
	require.NoError(t, err)

	// Neither item joins a cluster of MinClusterSize or larger, so per §4.7
	// both stay unclustered this run: no Topic is created for either.
	_, okA := pc.TopicFor("a")
	_, okB := pc.TopicFor("b")
	require.False(t, okA)
	require.False(t, okB)
	require.Empty(t, pc.Proposals())
}

package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trendforge/ingest/internal/app/domain/item"
	"github.com/trendforge/ingest/internal/app/domain/run"
	"github.com/trendforge/ingest/internal/app/domain/topic"
	"github.com/trendforge/ingest/internal/app/domain/trend"
	"github.com/trendforge/ingest/internal/app/storage/memory"
)

func TestItemStoreUpsertInsertsThenUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	store := memory.New().Items()

	first := item.Processed{ID: "a", Source: "hn", SourceID: "1", Title: "first", ContentHash: [32]byte{1}}
	id, updated, err := store.Upsert(ctx, first)
	require.NoError(t, err)
	require.False(t, updated)
	require.Equal(t, "a", id)

	second := item.Processed{ID: "b", Source: "hn", SourceID: "1", Title: "second", ContentHash: [32]byte{2}}
	id, updated, err = store.Upsert(ctx, second)
	require.NoError(t, err)
	require.True(t, updated)
	require.Equal(t, "a", id)

	got, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "second", got.Title)
}

func TestItemStoreGetByNaturalKeyAndContentHash(t *testing.T) {
	ctx := context.Background()
	store := memory.New().Items()
	hash := [32]byte{7}
	require.NoError(t, store.Insert(ctx, item.Processed{ID: "x", Source: "reddit", SourceID: "42", ContentHash: hash}))

	byKey, ok, err := store.GetByNaturalKey(ctx, "reddit", "42")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", byKey.ID)

	byHash, ok, err := store.GetByContentHash(ctx, hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", byHash.ID)

	_, ok, err = store.GetByNaturalKey(ctx, "reddit", "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestItemStoreListWindowOrdersAndPaginates(t *testing.T) {
	ctx := context.Background()
	store := memory.New().Items()
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Insert(ctx, item.Processed{
			ID: id, Source: "s", SourceID: id,
			CollectedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	out, err := store.ListWindow(ctx, base, base.Add(time.Hour), 0, 0)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, "a", out[0].ID)
	require.Equal(t, "c", out[2].ID)

	paged, err := store.ListWindow(ctx, base, base.Add(time.Hour), 1, 1)
	require.NoError(t, err)
	require.Len(t, paged, 1)
	require.Equal(t, "b", paged[0].ID)
}

func TestItemStoreSetStatus(t *testing.T) {
	ctx := context.Background()
	store := memory.New().Items()
	require.NoError(t, store.Insert(ctx, item.Processed{ID: "a", Status: item.StatusPending}))
	require.NoError(t, store.SetStatus(ctx, "a", item.StatusVectorPending))

	got, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, item.StatusVectorPending, got.Status)
}

func TestVectorStoreSearchRanksBySimilarityAndFiltersWindow(t *testing.T) {
	ctx := context.Background()
	store := memory.New().Vectors()
	now := time.Now()

	require.NoError(t, store.Upsert(ctx, "close", []float32{1, 0}, "en", "tech", now, now))
	require.NoError(t, store.Upsert(ctx, "orthogonal", []float32{0, 1}, "en", "tech", now, now))
	require.NoError(t, store.Upsert(ctx, "stale", []float32{1, 0}, "en", "tech", now.Add(-48*time.Hour), now))

	results, err := store.Search(ctx, []float32{1, 0}, now.Add(-time.Hour), "en", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "close", results[0].ItemID)
	require.InDelta(t, 1.0, results[0].Similarity, 1e-9)
}

func TestVectorStoreDeleteRemovesFromSearch(t *testing.T) {
	ctx := context.Background()
	store := memory.New().Vectors()
	now := time.Now()
	require.NoError(t, store.Upsert(ctx, "a", []float32{1, 0}, "en", "tech", now, now))
	require.NoError(t, store.Delete(ctx, "a"))

	results, err := store.Search(ctx, []float32{1, 0}, now.Add(-time.Hour), "", 10)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestCacheStoreGetSetExpiresWithTTL(t *testing.T) {
	ctx := context.Background()
	store := memory.New().Cache()
	require.NoError(t, store.SetEX(ctx, "k", "v", -time.Second))

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.SetEX(ctx, "k2", "v2", time.Hour))
	v, ok, err := store.Get(ctx, "k2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", v)
}

func TestCacheStoreSortedSetOperations(t *testing.T) {
	ctx := context.Background()
	store := memory.New().Cache()

	require.NoError(t, store.ZAdd(ctx, "rl:plugin", 1.0, "t1"))
	require.NoError(t, store.ZAdd(ctx, "rl:plugin", 2.0, "t2"))
	require.NoError(t, store.ZAdd(ctx, "rl:plugin", 3.0, "t3"))

	count, err := store.ZCard(ctx, "rl:plugin")
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	require.NoError(t, store.ZRemRangeByScore(ctx, "rl:plugin", 0, 2.0))
	count, err = store.ZCard(ctx, "rl:plugin")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestTopicStoreUpsertGetListRecent(t *testing.T) {
	ctx := context.Background()
	store := memory.New().Topics()
	now := time.Now()

	require.NoError(t, store.Upsert(ctx, topic.Topic{ID: "t1", Title: "AI", FirstSeen: now, LastUpdated: now}))
	require.NoError(t, store.Upsert(ctx, topic.Topic{ID: "t2", Title: "Old", FirstSeen: now.Add(-48 * time.Hour), LastUpdated: now.Add(-48 * time.Hour)}))

	got, ok, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "AI", got.Title)

	recent, err := store.ListRecent(ctx, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "t1", recent[0].ID)
}

func TestTrendStoreInsertAndListByRun(t *testing.T) {
	ctx := context.Background()
	store := memory.New().Trends()

	require.NoError(t, store.Insert(ctx, trend.Trend{ID: "tr1", RunID: "run-1", TopicID: "t1", Score: 10}))
	require.NoError(t, store.Insert(ctx, trend.Trend{ID: "tr2", RunID: "run-1", TopicID: "t2", Score: 20}))
	require.NoError(t, store.Insert(ctx, trend.Trend{ID: "tr3", RunID: "run-2", TopicID: "t1", Score: 5}))

	byRun, err := store.ListByRun(ctx, "run-1", 10)
	require.NoError(t, err)
	require.Len(t, byRun, 2)
	require.Equal(t, "tr2", byRun[0].ID) // higher score first

	latest, err := store.LatestForTopic(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, latest, 2)
}

func TestRunStoreCreateUpdateGetListRecent(t *testing.T) {
	ctx := context.Background()
	store := memory.New().Runs()
	now := time.Now()

	require.NoError(t, store.Create(ctx, run.PipelineRun{ID: "r1", Status: run.StatusRunning, StartedAt: now}))
	got, ok, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, run.StatusRunning, got.Status)

	got.Status = run.StatusCompleted
	require.NoError(t, store.Update(ctx, got))

	updated, ok, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, run.StatusCompleted, updated.Status)

	require.NoError(t, store.Create(ctx, run.PipelineRun{ID: "r2", Status: run.StatusPending, StartedAt: now.Add(time.Minute)}))
	recent, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "r2", recent[0].ID) // most recently started first
}

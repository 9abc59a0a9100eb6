// Package memory provides in-process implementations of every storage
// capability interface, used for tests and single-process deployments that
// don't wire Postgres/Redis. Grounded on the teacher's in-memory store
// pattern (a single struct guarding plain maps behind one mutex, exposed
// through the same interfaces the production stores satisfy).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trendforge/ingest/internal/app/domain/item"
	"github.com/trendforge/ingest/internal/app/domain/run"
	"github.com/trendforge/ingest/internal/app/domain/topic"
	"github.com/trendforge/ingest/internal/app/domain/trend"
	"github.com/trendforge/ingest/internal/app/storage"
)

// data is the shared backing state for every capability store. ItemStore
// and VectorStore both define an Upsert method with different signatures,
// so they can't live on the same Go type — each capability gets its own
// thin wrapper type around the same *data, guarded by one mutex.
type data struct {
	mu sync.RWMutex

	items       map[string]item.Processed     // by ID
	itemsByKey  map[string]string              // "source:source_id" -> ID
	itemsByHash map[[32]byte]string            // content_hash -> ID
	vectors     map[string]vectorRow           // by item ID
	cache       map[string]cacheEntry          // opaque kv
	sortedSets  map[string]map[string]float64  // zset name -> member -> score
	topics      map[string]topic.Topic
	trends      map[string][]trend.Trend // by run ID
	runs        map[string]run.PipelineRun
}

type vectorRow struct {
	embedding []float32
	language  string
	category  string
	collected time.Time
	published time.Time
}

type cacheEntry struct {
	value   string
	expires time.Time
}

func newData() *data {
	return &data{
		items:       make(map[string]item.Processed),
		itemsByKey:  make(map[string]string),
		itemsByHash: make(map[[32]byte]string),
		vectors:     make(map[string]vectorRow),
		cache:       make(map[string]cacheEntry),
		sortedSets:  make(map[string]map[string]float64),
		topics:      make(map[string]topic.Topic),
		trends:      make(map[string][]trend.Trend),
		runs:        make(map[string]run.PipelineRun),
	}
}

func naturalKey(source, sourceID string) string { return source + ":" + sourceID }

// Store bundles one in-memory instance of every capability store, all
// sharing the same backing data and lock.
type Store struct {
	d *data

	items   *ItemStore
	vectors *VectorStore
	cache   *CacheStore
	topics  *TopicStore
	trends  *TrendStore
	runs    *RunStore
}

// New builds an empty in-memory store with every capability wired to
// shared state.
func New() *Store {
	d := newData()
	return &Store{
		d:       d,
		items:   &ItemStore{d: d},
		vectors: &VectorStore{d: d},
		cache:   &CacheStore{d: d},
		topics:  &TopicStore{d: d},
		trends:  &TrendStore{d: d},
		runs:    &RunStore{d: d},
	}
}

func (s *Store) Items() *ItemStore     { return s.items }
func (s *Store) Vectors() *VectorStore { return s.vectors }
func (s *Store) Cache() *CacheStore    { return s.cache }
func (s *Store) Topics() *TopicStore   { return s.topics }
func (s *Store) Trends() *TrendStore   { return s.trends }
func (s *Store) Runs() *RunStore       { return s.runs }

var (
	_ storage.ItemStore   = (*ItemStore)(nil)
	_ storage.VectorStore = (*VectorStore)(nil)
	_ storage.CacheStore  = (*CacheStore)(nil)
	_ storage.TopicStore  = (*TopicStore)(nil)
	_ storage.TrendStore  = (*TrendStore)(nil)
	_ storage.RunStore    = (*RunStore)(nil)
)

// ItemStore is the in-memory storage.ItemStore.
type ItemStore struct{ d *data }

func (s *ItemStore) Insert(_ context.Context, it item.Processed) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.items[it.ID] = it
	s.d.itemsByKey[naturalKey(it.Source, it.SourceID)] = it.ID
	s.d.itemsByHash[it.ContentHash] = it.ID
	return nil
}

func (s *ItemStore) Upsert(_ context.Context, it item.Processed) (string, bool, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	key := naturalKey(it.Source, it.SourceID)
	if existingID, ok := s.d.itemsByKey[key]; ok {
		existing := s.d.items[existingID]
		it.ID = existingID
		it.CreatedAt = existing.CreatedAt
		s.d.items[existingID] = it
		s.d.itemsByHash[it.ContentHash] = existingID
		return existingID, true, nil
	}

	s.d.items[it.ID] = it
	s.d.itemsByKey[key] = it.ID
	s.d.itemsByHash[it.ContentHash] = it.ID
	return it.ID, false, nil
}

func (s *ItemStore) Get(_ context.Context, id string) (item.Processed, bool, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	it, ok := s.d.items[id]
	return it, ok, nil
}

func (s *ItemStore) GetByNaturalKey(_ context.Context, source, sourceID string) (item.Processed, bool, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	id, ok := s.d.itemsByKey[naturalKey(source, sourceID)]
	if !ok {
		return item.Processed{}, false, nil
	}
	return s.d.items[id], true, nil
}

func (s *ItemStore) GetByContentHash(_ context.Context, hash [32]byte) (item.Processed, bool, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	id, ok := s.d.itemsByHash[hash]
	if !ok {
		return item.Processed{}, false, nil
	}
	return s.d.items[id], true, nil
}

func (s *ItemStore) SetStatus(_ context.Context, id string, status item.Status) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	it, ok := s.d.items[id]
	if !ok {
		return nil
	}
	it.Status = status
	it.UpdatedAt = time.Now()
	s.d.items[id] = it
	return nil
}

func (s *ItemStore) ListByStatus(_ context.Context, status item.Status, limit int) ([]item.Processed, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	var out []item.Processed
	for _, it := range s.d.items {
		if it.Status == status {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollectedAt.Before(out[j].CollectedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ItemStore) ListWindow(_ context.Context, since, until time.Time, limit, offset int) ([]item.Processed, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	var out []item.Processed
	for _, it := range s.d.items {
		if !it.CollectedAt.Before(since) && it.CollectedAt.Before(until) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollectedAt.Before(out[j].CollectedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// VectorStore is the in-memory storage.VectorStore, doing brute-force
// cosine similarity over every stored embedding. Fine for tests and small
// deployments; the Postgres backend stores embeddings as packed bytes and
// also searches them by brute force in Go.
type VectorStore struct{ d *data }

func (s *VectorStore) Upsert(_ context.Context, itemID string, embedding []float32, language, category string, collected, published time.Time) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.vectors[itemID] = vectorRow{embedding: embedding, language: language, category: category, collected: collected, published: published}
	return nil
}

func (s *VectorStore) Delete(_ context.Context, itemID string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	delete(s.d.vectors, itemID)
	return nil
}

func (s *VectorStore) Search(_ context.Context, embedding []float32, since time.Time, language string, limit int) ([]storage.VectorCandidate, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	var out []storage.VectorCandidate
	for id, row := range s.d.vectors {
		if row.collected.Before(since) {
			continue
		}
		if language != "" && row.language != language {
			continue
		}
		sim := cosineSimilarity(embedding, row.embedding)
		out = append(out, storage.VectorCandidate{
			ItemID: id, Similarity: sim, Language: row.language,
			Category: row.category, Collected: row.collected, Published: row.published,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (sqrt(normA) * sqrt(normB))
}

// sqrt avoids importing math solely for Sqrt in a file that otherwise has
// no floating-point needs beyond this.
func sqrt(x float64) float64 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 40; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

// CacheStore is the in-memory storage.CacheStore, including sorted-set
// emulation for the distributed rate-limiter path.
type CacheStore struct{ d *data }

func (s *CacheStore) Get(_ context.Context, key string) (string, bool, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	e, ok := s.d.cache[key]
	if !ok || (!e.expires.IsZero() && time.Now().After(e.expires)) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *CacheStore) SetEX(_ context.Context, key, value string, ttl time.Duration) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var expires time.Time
	if ttl != 0 {
		expires = time.Now().Add(ttl)
	}
	s.d.cache[key] = cacheEntry{value: value, expires: expires}
	return nil
}

func (s *CacheStore) Del(_ context.Context, key string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	delete(s.d.cache, key)
	return nil
}

func (s *CacheStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	set, ok := s.d.sortedSets[key]
	if !ok {
		set = make(map[string]float64)
		s.d.sortedSets[key] = set
	}
	set[member] = score
	return nil
}

func (s *CacheStore) ZRemRangeByScore(_ context.Context, key string, min, max float64) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	set, ok := s.d.sortedSets[key]
	if !ok {
		return nil
	}
	for member, score := range set {
		if score >= min && score <= max {
			delete(set, member)
		}
	}
	return nil
}

func (s *CacheStore) ZCard(_ context.Context, key string) (int64, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	return int64(len(s.d.sortedSets[key])), nil
}

// TopicStore is the in-memory storage.TopicStore.
type TopicStore struct{ d *data }

func (s *TopicStore) Upsert(_ context.Context, t topic.Topic) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.topics[t.ID] = t
	return nil
}

func (s *TopicStore) Get(_ context.Context, id string) (topic.Topic, bool, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	t, ok := s.d.topics[id]
	return t, ok, nil
}

func (s *TopicStore) ListRecent(_ context.Context, since time.Time, limit int) ([]topic.Topic, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	var out []topic.Topic
	for _, t := range s.d.topics {
		if !t.LastUpdated.Before(since) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.After(out[j].LastUpdated) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TrendStore is the in-memory storage.TrendStore.
type TrendStore struct{ d *data }

func (s *TrendStore) Insert(_ context.Context, t trend.Trend) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.trends[t.RunID] = append(s.d.trends[t.RunID], t)
	return nil
}

func (s *TrendStore) ListByRun(_ context.Context, runID string, limit int) ([]trend.Trend, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	out := append([]trend.Trend(nil), s.d.trends[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *TrendStore) LatestForTopic(_ context.Context, topicID string, limit int) ([]trend.Trend, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	var out []trend.Trend
	for _, rows := range s.d.trends {
		for _, t := range rows {
			if t.TopicID == topicID {
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.After(out[j].LastUpdated) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RunStore is the in-memory storage.RunStore.
type RunStore struct{ d *data }

func (s *RunStore) Create(_ context.Context, r run.PipelineRun) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.runs[r.ID] = r
	return nil
}

func (s *RunStore) Update(_ context.Context, r run.PipelineRun) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.runs[r.ID] = r
	return nil
}

func (s *RunStore) Get(_ context.Context, id string) (run.PipelineRun, bool, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	r, ok := s.d.runs[id]
	return r, ok, nil
}

func (s *RunStore) ListRecent(_ context.Context, limit int) ([]run.PipelineRun, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()

	out := make([]run.PipelineRun, 0, len(s.d.runs))
	for _, r := range s.d.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

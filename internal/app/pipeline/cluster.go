package pipeline

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trendforge/ingest/internal/app/domain/item"
	"github.com/trendforge/ingest/internal/app/domain/topic"
)

// topicNamespace is the fixed UUIDv5 namespace new Topic IDs are derived
// under, mirroring convert's itemNamespace pattern: a topic's ID is a
// deterministic function of its (sorted) member item IDs, so re-clustering
// the same set of items in a replayed run yields the same Topic ID.
var topicNamespace = uuid.MustParse("7a6f1d3e-9b3c-5a4e-9d7f-1f3c6a8e2b4d")

// clusterRecallLimit is how many recent topics the Clusterer recalls as
// candidates for cross-run merging.
const clusterRecallLimit = 500

// Clusterer groups items by semantic similarity into Topic proposals, per
// §4.7: items first try to join an existing Topic recalled from the last
// ClusterWindow (represented by re-embedding the topic's own Title+Summary,
// since the Topic type carries no stored centroid of its own), then
// unmatched items are grouped against each other with a greedy
// single-linkage pass at ClusterThreshold. A resulting local group below
// MinClusterSize (default 2) is dropped: it stays an unclustered item this
// run, with no Topic created for it.
type Clusterer struct{}

func (c *Clusterer) Name() string { return "clusterer" }

func (c *Clusterer) Run(ctx context.Context, pc *Context, items []item.Processed) ([]item.Processed, error) {
	since := pc.Now().Add(-pc.Config.ClusterWindow)
	existing, err := pc.Topics.ListRecent(ctx, since, clusterRecallLimit)
	if err != nil {
		return items, err
	}
	existingVecs := make([][]float32, len(existing))
	for i, t := range existing {
		existingVecs[i] = pc.Embedder.Embed(t.Title, t.Summary)
	}

	// sort items by ID so clustering decisions are reproducible regardless
	// of batch ordering upstream.
	ordered := make([]item.Processed, len(items))
	copy(ordered, items)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	itemTopic := make(map[string]string, len(ordered))
	updates := make(map[int][]item.Processed) // index into existing -> newly joined items

	type localCluster struct {
		members  []item.Processed
		centroid []float32
	}
	var locals []localCluster

	for _, it := range ordered {
		if bestIdx, sim, ok := bestMatch(it.Embedding, existingVecs); ok && sim >= pc.Config.ClusterThreshold {
			updates[bestIdx] = append(updates[bestIdx], it)
			continue
		}

		centroids := make([][]float32, len(locals))
		for i, l := range locals {
			centroids[i] = l.centroid
		}
		if bestIdx, sim, ok := bestMatch(it.Embedding, centroids); ok && sim >= pc.Config.ClusterThreshold {
			locals[bestIdx].members = append(locals[bestIdx].members, it)
			locals[bestIdx].centroid = mean(locals[bestIdx].centroid, it.Embedding, len(locals[bestIdx].members))
			continue
		}

		locals = append(locals, localCluster{members: []item.Processed{it}, centroid: it.Embedding})
	}

	var proposals []topic.Topic
	now := pc.Now()

	for idx, joined := range updates {
		t := existing[idx]
		t = mergeIntoTopic(t, joined, now)
		proposals = append(proposals, t)
		for _, it := range joined {
			itemTopic[it.ID] = t.ID
		}
	}

	for _, l := range locals {
		if len(l.members) < pc.Config.MinClusterSize {
			// singleton (or sub-threshold) local cluster that didn't join a
			// recalled topic: per §4.7 it stays an unclustered item this run,
			// no Topic is created for it.
			continue
		}
		t := newTopicFromCluster(l.members, now)
		proposals = append(proposals, t)
		for _, it := range l.members {
			itemTopic[it.ID] = t.ID
		}
	}

	sort.Slice(proposals, func(i, j int) bool { return proposals[i].ID < proposals[j].ID })
	pc.setProposals(proposals, itemTopic)
	return items, nil
}

// bestMatch returns the index of the closest vector to target by cosine
// similarity, tie-breaking toward the lowest index (deterministic given the
// caller's stable ordering of candidates).
func bestMatch(target []float32, candidates [][]float32) (int, float64, bool) {
	best, bestSim := -1, -1.0
	for i, c := range candidates {
		sim := cosineSimilarity(target, c)
		if sim > bestSim {
			best, bestSim = i, sim
		}
	}
	if best < 0 {
		return 0, 0, false
	}
	return best, bestSim, true
}

// mean folds v into a running centroid of n accumulated members.
func mean(centroid, v []float32, n int) []float32 {
	if n <= 1 || len(centroid) != len(v) {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	out := make([]float32, len(v))
	for i := range v {
		out[i] = centroid[i] + (v[i]-centroid[i])/float32(n)
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (sqrtf(na) * sqrtf(nb))
}

func sqrtf(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 40; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

// newTopicFromCluster builds a brand-new Topic from a freshly formed
// cluster of items that met MinClusterSize. The Topic ID is a deterministic
// function of its sorted member IDs so re-clustering the same set of items
// in a replayed run is idempotent.
func newTopicFromCluster(members []item.Processed, now time.Time) topic.Topic {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	sort.Strings(ids)

	t := topic.Topic{
		ID:          uuid.NewSHA1(topicNamespace, []byte(strings.Join(ids, ","))).String(),
		ItemIDs:     ids,
		FirstSeen:   now,
		LastUpdated: now,
	}
	return mergeFields(t, members)
}

// mergeIntoTopic folds newly joined items into an existing Topic recalled
// from TopicStore.
func mergeIntoTopic(t topic.Topic, joined []item.Processed, now time.Time) topic.Topic {
	seen := make(map[string]struct{}, len(t.ItemIDs))
	for _, id := range t.ItemIDs {
		seen[id] = struct{}{}
	}
	for _, it := range joined {
		if _, ok := seen[it.ID]; !ok {
			t.ItemIDs = append(t.ItemIDs, it.ID)
			seen[it.ID] = struct{}{}
		}
	}
	sort.Strings(t.ItemIDs)
	t.LastUpdated = now
	return mergeFields(t, joined)
}

// mergeFields folds the items newly contributing to t into its
// consumer-facing fields: Sources becomes the union of t's and theirs,
// their Engagement is added to t's, Category and Language take their
// majority vote (keeping t's value when none of them has one), and
// Keywords and Title are recomputed from them alone (Title from the most
// engaged one). Summary and the timestamps are left unchanged.
func mergeFields(t topic.Topic, contributing []item.Processed) topic.Topic {
	sourceSet := make(map[string]struct{})
	for _, s := range t.Sources {
		sourceSet[s] = struct{}{}
	}
	categoryVotes := make(map[string]int)
	languageVotes := make(map[string]int)
	if t.Engagement == nil {
		t.Engagement = make(map[string]float64)
	}
	wordFreq := make(map[string]int)

	var topItem item.Processed
	var topEngagement float64

	for _, it := range contributing {
		sourceSet[it.Source] = struct{}{}
		if it.Category != "" {
			categoryVotes[it.Category]++
		}
		if it.Language != "" {
			languageVotes[it.Language]++
		}
		for k, v := range it.Engagement {
			t.Engagement[k] += v
		}
		total := sumEngagement(it.Engagement)
		if total >= topEngagement {
			topEngagement = total
			topItem = it
		}
		for _, w := range strings.Fields(strings.ToLower(it.Title)) {
			w = strings.Trim(w, ".,!?;:\"'()")
			if len(w) < 4 {
				continue
			}
			wordFreq[w]++
		}
	}

	t.Sources = setToSortedSlice(sourceSet)
	t.Category = topVote(categoryVotes, t.Category)
	t.Language = topVote(languageVotes, t.Language)
	t.Keywords = topKeywords(wordFreq, 5)
	if topItem.Title != "" {
		t.Title = topItem.Title
	}
	return t
}

func sumEngagement(m map[string]float64) float64 {
	var total float64
	for _, v := range m {
		total += v
	}
	return total
}

func setToSortedSlice(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// topVote picks the highest-voted key, tie-breaking alphabetically; it
// falls back to fallback when there are no votes at all (e.g. an existing
// topic recalled with no newly contributing items this round).
func topVote(votes map[string]int, fallback string) string {
	best, bestCount := fallback, 0
	keys := make([]string, 0, len(votes))
	for k := range votes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if votes[k] > bestCount {
			best, bestCount = k, votes[k]
		}
	}
	return best
}

// topKeywords returns the n most frequent words, tie-broken alphabetically.
func topKeywords(freq map[string]int, n int) []string {
	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] == freq[words[j]] {
			return words[i] < words[j]
		}
		return freq[words[i]] > freq[words[j]]
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}

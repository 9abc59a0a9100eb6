package pipeline

import (
	"context"

	"github.com/trendforge/ingest/infrastructure/errkind"
	"github.com/trendforge/ingest/internal/app/domain/item"
	"github.com/trendforge/ingest/internal/app/storage"
)

// Deduplicator runs the three-level cascade from §4.7: exact content-hash
// match, natural-key match, then semantic match over the VectorStore within
// DedupWindow and restricted to the same detected language. It computes and
// attaches each surviving item's embedding (via Context.Embedder) so later
// stages (ItemPersister, Clusterer) don't recompute it. A per-item
// fingerprint lock (natural key) is held for the duration of this stage's
// checks, so two runs racing the same item can't both pass.
type Deduplicator struct{}

func (d *Deduplicator) Name() string { return "deduplicator" }

func (d *Deduplicator) Run(ctx context.Context, pc *Context, items []item.Processed) ([]item.Processed, error) {
	survivors := make([]item.Processed, 0, len(items))
	var exact, keyConflict, semantic int

	// seenHash/seenKey track this batch's own items, since ItemPersister
	// runs as a later stage: two exact/natural-key duplicates arriving in
	// the same collect() batch would otherwise both still be unpersisted
	// when evaluate's store lookups run, and neither would be dropped.
	var zeroHash [32]byte
	seenHash := make(map[[32]byte]struct{}, len(items))
	seenKey := make(map[string]struct{}, len(items))

	for _, it := range items {
		source, sourceID := it.NaturalKey()
		lockKey := source + ":" + sourceID

		release, ok := pc.Locks.Acquire(lockKey, pc.Config.LockTimeout)
		if !ok {
			return survivors, errkind.New(errkind.LockTimeout, "could not acquire fingerprint lock for "+lockKey)
		}

		var reason DropReason
		keep, embedding := true, []float32(nil)
		_, hashSeen := seenHash[it.ContentHash]
		_, keySeen := seenKey[lockKey]
		switch {
		case it.ContentHash != zeroHash && hashSeen:
			keep, reason = false, DropExactDuplicate
		case keySeen:
			keep, reason = false, DropNaturalKeyConflict
		default:
			keep, reason, embedding = d.evaluate(ctx, pc, it)
		}

		if !keep {
			release()
			switch reason {
			case DropExactDuplicate:
				exact++
			case DropNaturalKeyConflict:
				keyConflict++
			case DropSemanticDuplicate:
				semantic++
			}
			pc.HotLog.Item(it.ID, source, sourceID).Debug().Str("reason", string(reason)).Msg("item dropped")
			continue
		}

		if it.ContentHash != zeroHash {
			seenHash[it.ContentHash] = struct{}{}
		}
		seenKey[lockKey] = struct{}{}

		it.Embedding = embedding
		survivors = append(survivors, it)
		release()
		pc.HotLog.Item(it.ID, source, sourceID).Debug().Msg("item kept")
	}

	pc.recordDrop(DropExactDuplicate, exact)
	pc.recordDrop(DropNaturalKeyConflict, keyConflict)
	pc.recordDrop(DropSemanticDuplicate, semantic)
	return survivors, nil
}

// evaluate runs the three-level cascade for one item against persisted
// history, returning the drop reason that applies (if any) and the
// embedding computed along the way, so the caller doesn't need to recompute
// it for a surviving item. Within-batch duplicates are caught by Run before
// this is reached.
func (d *Deduplicator) evaluate(ctx context.Context, pc *Context, it item.Processed) (keep bool, reason DropReason, embedding []float32) {
	if _, found, err := pc.Items.GetByContentHash(ctx, it.ContentHash); err == nil && found {
		return false, DropExactDuplicate, nil
	}

	source, sourceID := it.NaturalKey()
	if _, found, err := pc.Items.GetByNaturalKey(ctx, source, sourceID); err == nil && found {
		return false, DropNaturalKeyConflict, nil
	}

	embedding = pc.Embedder.Embed(it.Title, it.Content)
	since := pc.Now().Add(-pc.Config.DedupWindow)
	candidates, err := pc.Vectors.Search(ctx, embedding, since, it.Language, 5)
	if err != nil || len(candidates) == 0 {
		return true, "", embedding
	}

	best := bestCandidate(candidates)
	if best.Similarity < pc.Config.DedupThreshold {
		return true, "", embedding
	}
	return false, DropSemanticDuplicate, nil
}

// bestCandidate picks the highest-similarity match, breaking ties by most
// recently published, per §4.7's tie-break rule.
func bestCandidate(candidates []storage.VectorCandidate) storage.VectorCandidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Similarity > best.Similarity || (c.Similarity == best.Similarity && c.Published.After(best.Published)) {
			best = c
		}
	}
	return best
}

package pipeline

import (
	"context"

	"github.com/trendforge/ingest/internal/app/domain/item"
)

// ItemPersister writes every surviving item to the ItemStore, then upserts
// its embedding into the VectorStore. Per §4.7/§5, the two writes are
// independent: a VectorStore failure does not drop the item or fail the
// run, it marks the ItemStore row vector_pending (this stage only sets the
// status; no component in this module retries the vector write, so the row
// stays vector_pending). An ItemStore failure is fatal to the batch — it means the
// pipeline's at-least-once guarantee for already-surviving items is at
// risk, so the stage aborts rather than silently continuing.
type ItemPersister struct{}

func (p *ItemPersister) Name() string { return "item_persister" }

func (p *ItemPersister) Run(ctx context.Context, pc *Context, items []item.Processed) ([]item.Processed, error) {
	out := make([]item.Processed, 0, len(items))
	var vectorFailed int

	for _, it := range items {
		it.Status = item.StatusPending
		if _, _, err := pc.Items.Upsert(ctx, it); err != nil {
			return out, err
		}

		if err := pc.Vectors.Upsert(ctx, it.ID, it.Embedding, it.Language, it.Category, it.CollectedAt, it.PublishedAt); err != nil {
			it.Status = item.StatusVectorPending
			if setErr := pc.Items.SetStatus(ctx, it.ID, item.StatusVectorPending); setErr != nil {
				pc.Log.WithField("item_id", it.ID).WithError(setErr).Warn("failed to mark item vector_pending after vector store failure")
			}
			vectorFailed++
			out = append(out, it)
			continue
		}

		it.Status = item.StatusProcessed
		if err := pc.Items.SetStatus(ctx, it.ID, item.StatusProcessed); err != nil {
			pc.Log.WithField("item_id", it.ID).WithError(err).Warn("failed to mark item processed")
		}
		out = append(out, it)
	}

	pc.recordDrop(DropVectorFailed, vectorFailed)
	return out, nil
}

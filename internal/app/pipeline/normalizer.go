package pipeline

import (
	"context"

	"github.com/trendforge/ingest/internal/app/convert"
	"github.com/trendforge/ingest/internal/app/domain/item"
)

// Normalizer re-enforces the §4.6 text invariants (trimmed, HTML-stripped,
// whitespace-collapsed) and recomputes ContentHash for items reaching the
// pipeline without having passed through convert.Convert — e.g. replayed
// items read back from ItemStore for a retry. Items that normalize to an
// empty title are dropped, matching Convert's own rule.
type Normalizer struct{}

func (n *Normalizer) Name() string { return "normalizer" }

func (n *Normalizer) Run(ctx context.Context, pc *Context, items []item.Processed) ([]item.Processed, error) {
	survivors := make([]item.Processed, 0, len(items))
	dropped := 0
	for _, it := range items {
		it.Title = convert.NormalizeText(it.Title)
		it.Content = convert.NormalizeText(it.Content)
		if it.Title == "" {
			dropped++
			continue
		}
		it.ContentHash = convert.ContentHash(it.Title, it.Content)
		survivors = append(survivors, it)
	}
	pc.recordDrop(DropInvalid, dropped)
	return survivors, nil
}

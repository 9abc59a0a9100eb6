// Package convert translates a collector's RawItem into the pipeline's
// canonical Processed item: trimmed/stripped text, a deterministic ID, and a
// content hash used for exact-duplicate detection.
package convert

import (
	"crypto/sha256"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/trendforge/ingest/internal/app/domain/item"
)

// itemNamespace is the fixed UUIDv5 namespace every item ID is derived
// under, so re-ingesting the same (source, source_id) pair is idempotent
// across process restarts.
var itemNamespace = uuid.MustParse("c6d760c0-2f0a-5e1d-9f1a-6f6f6c6c6374")

var (
	stripper      = bluemonday.StrictPolicy()
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// Convert normalizes raw into a Processed item. It reports ok=false when the
// normalized title is empty, per §4.6 — such items are dropped rather than
// persisted.
func Convert(raw item.Raw, now time.Time) (item.Processed, bool) {
	title := normalizeText(raw.Title)
	if title == "" {
		return item.Processed{}, false
	}
	content := normalizeText(raw.Content)

	publishedAt := raw.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = now
	}

	id := uuid.NewSHA1(itemNamespace, []byte(raw.Source+":"+raw.SourceID)).String()

	engagement := make(map[string]float64, len(raw.Engagement))
	for k, v := range raw.Engagement {
		engagement[k] = v
	}

	return item.Processed{
		ID:          id,
		Source:      raw.Source,
		SourceID:    raw.SourceID,
		Title:       title,
		Content:     content,
		Engagement:  engagement,
		PublishedAt: publishedAt,
		CollectedAt: now,
		ContentHash: contentHash(title, content),
		Status:      item.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, true
}

// normalizeText trims, strips HTML tags/entities, and collapses internal
// whitespace runs, preserving display case.
func normalizeText(s string) string {
	// Sanitize drops tags but HTML-escapes the remaining text; unescape it
	// so entities do not survive into display text or the content hash.
	stripped := html.UnescapeString(stripper.Sanitize(s))
	collapsed := whitespaceRun.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(collapsed)
}

// contentHash is SHA256(lower(title) + "\n" + lower(content)), used for
// exact-duplicate detection ahead of the semantic Deduplicator stage.
func contentHash(title, content string) [32]byte {
	combined := strings.ToLower(title) + "\n" + strings.ToLower(content)
	return sha256.Sum256([]byte(combined))
}

// NormalizeText exports normalizeText for the pipeline's Normalizer stage,
// which re-enforces this same invariant on items that reach the pipeline
// without having passed through Convert (e.g. replayed or backfilled items).
func NormalizeText(s string) string {
	return normalizeText(s)
}

// ContentHash exports contentHash so the Normalizer stage can recompute a
// item's hash after re-normalizing its title/content.
func ContentHash(title, content string) [32]byte {
	return contentHash(title, content)
}

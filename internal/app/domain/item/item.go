// Package item holds the raw and processed item types flowing through the
// pipeline.
package item

import "time"

// Status tracks a ProcessedItem's persistence lifecycle across the Storage
// Facade's two-phase write (ItemStore row + VectorStore upsert).
type Status string

const (
	StatusPending       Status = "pending"
	StatusProcessed     Status = "processed"
	StatusVectorPending Status = "vector_pending"
	StatusFailed        Status = "failed"
)

// Raw is produced by a collector. It is ephemeral: it exists only in-memory
// between collection and conversion, and is never persisted directly.
type Raw struct {
	Source      string
	SourceID    string
	Title       string
	Description string
	Content     string
	URL         string
	Author      string
	PublishedAt time.Time
	Engagement  map[string]float64
	Metadata    map[string]string
}

// Processed is the canonical pipeline element, the unit ItemStore persists.
type Processed struct {
	ID            string // UUIDv5(namespace, source+":"+sourceID)
	Source        string
	SourceID      string
	Title         string
	Content       string
	Language      string // IETF BCP-47 short form, e.g. "en", "zh"; "und" if undetermined
	Category      string
	Engagement    map[string]float64
	PublishedAt   time.Time
	CollectedAt   time.Time
	ContentHash   [32]byte // SHA-256(lower(title) + "\n" + lower(content))
	Embedding     []float32
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NaturalKey returns the (source, source_id) pair used for idempotent
// re-ingestion and as the ItemStore's secondary unique index.
func (p Processed) NaturalKey() (string, string) {
	return p.Source, p.SourceID
}

// IsTerminal reports whether the item has finished its persistence lifecycle
// (no compensating task will touch it further).
func (p Processed) IsTerminal() bool {
	return p.Status == StatusProcessed || p.Status == StatusFailed
}

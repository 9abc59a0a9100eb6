package postgres

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trendforge/ingest/internal/app/storage"
)

// VectorStore is the Postgres-backed storage.VectorStore.
type VectorStore struct{ db *sqlx.DB }

// vectorRow mirrors item_vectors. Embeddings are packed as little-endian
// float32 bytes rather than relying on a pgvector extension, per §4.8's
// note that no external vector database is assumed.
type vectorRow struct {
	ItemID    string    `db:"item_id"`
	Embedding []byte    `db:"embedding"`
	Language  string    `db:"language"`
	Category  string    `db:"category"`
	Collected time.Time `db:"collected_at"`
	Published time.Time `db:"published_at"`
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func (s *VectorStore) Upsert(ctx context.Context, itemID string, embedding []float32, language, category string, collected, published time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_vectors (item_id, embedding, language, category, collected_at, published_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (item_id) DO UPDATE SET
			embedding = EXCLUDED.embedding, language = EXCLUDED.language,
			category = EXCLUDED.category, collected_at = EXCLUDED.collected_at,
			published_at = EXCLUDED.published_at
	`, itemID, encodeEmbedding(embedding), language, category, collected, published)
	return err
}

func (s *VectorStore) Delete(ctx context.Context, itemID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM item_vectors WHERE item_id = $1`, itemID)
	return err
}

// Search loads every candidate passing the collected_at/language filter and
// ranks by cosine similarity in Go, matching the teacher's pattern of
// keeping application logic out of SQL beyond filtering. Fine at the scale
// this facade targets; a pgvector index is the natural next step if the
// candidate set outgrows a single query.
func (s *VectorStore) Search(ctx context.Context, embedding []float32, since time.Time, language string, limit int) ([]storage.VectorCandidate, error) {
	var rows []vectorRow
	query := `SELECT item_id, embedding, language, category, collected_at, published_at
		FROM item_vectors
		WHERE collected_at >= $1 AND ($2 = '' OR language = $2)`
	if err := s.db.SelectContext(ctx, &rows, query, since, language); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	out := make([]storage.VectorCandidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, storage.VectorCandidate{
			ItemID:     r.ItemID,
			Similarity: cosineSimilarity(embedding, decodeEmbedding(r.Embedding)),
			Language:   r.Language,
			Category:   r.Category,
			Collected:  r.Collected,
			Published:  r.Published,
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
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

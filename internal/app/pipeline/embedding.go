package pipeline

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// embeddingDims is the fixed dimensionality every Embedder must produce.
// VectorStore.Search compares vectors positionally, so every embedding in
// the corpus must share this width.
const embeddingDims = 64

// Embedder turns an item's normalized text into a fixed-width vector for the
// Deduplicator's semantic-match pass and the Clusterer's topic grouping.
// The reference HashEmbedder below is a deterministic, dependency-free
// stand-in: no example repo in this corpus ships a semantic embedding
// model, and none of the spec's thresholds (θ_dup, θ_cluster) depend on a
// particular model's geometry, only on cosine distance over *a* stable
// embedding. Swapping in a real model later only requires implementing this
// interface.
type Embedder interface {
	Embed(title, content string) []float32
}

// HashEmbedder projects shingled lowercase text into embeddingDims buckets
// using SHA-256 over each trigram, then L2-normalizes the result. Two items
// sharing many trigrams land close together under cosine similarity; this
// is exactly the property the Deduplicator and Clusterer need, without
// requiring network calls or a bundled model.
type HashEmbedder struct{}

func (HashEmbedder) Embed(title, content string) []float32 {
	text := strings.ToLower(strings.TrimSpace(title + " " + content))
	vec := make([]float32, embeddingDims)
	if text == "" {
		return vec
	}

	shingles := trigrams(text)
	for _, sh := range shingles {
		sum := sha256.Sum256([]byte(sh))
		bucket := binary.BigEndian.Uint32(sum[:4]) % embeddingDims
		sign := float32(1)
		if sum[4]&1 == 1 {
			sign = -1
		}
		vec[bucket] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}

// trigrams splits text on whitespace into words, then yields overlapping
// 3-word shingles (falling back to the whole text for very short inputs) so
// near-duplicate titles share most of their shingles even after minor
// rewording.
func trigrams(text string) []string {
	words := strings.Fields(text)
	if len(words) < 3 {
		return []string{text}
	}
	out := make([]string, 0, len(words)-2)
	for i := 0; i+3 <= len(words); i++ {
		out = append(out, strings.Join(words[i:i+3], " "))
	}
	return out
}

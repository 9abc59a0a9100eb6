package pipeline

import "time"

// Config holds every tunable threshold named in §4.7. Zero-value fields are
// replaced with the documented defaults by withDefaults, the same
// pattern the teacher uses for NewHealthTracker/NewCache's zero-value
// handling.
type Config struct {
	// MinLanguageSampleLength is the minimum combined title+content rune
	// count the LanguageDetector requires before attempting classification;
	// shorter items are tagged "und".
	MinLanguageSampleLength int

	// DedupWindow bounds how far back the Deduplicator's semantic pass
	// searches the VectorStore for a candidate match.
	DedupWindow time.Duration
	// DedupThreshold (θ_dup) is the minimum cosine similarity at which two
	// items are judged the same story.
	DedupThreshold float64

	// ClusterWindow bounds how far back the Clusterer's recall pass looks
	// for existing Topics the current batch's items may join.
	ClusterWindow time.Duration
	// ClusterThreshold (θ_cluster) is the minimum cosine similarity at
	// which two items are judged part of the same topic. Always looser
	// than DedupThreshold.
	ClusterThreshold float64
	// MinClusterSize is the smallest group of items that forms a Topic;
	// no Topic is created for a smaller group.
	MinClusterSize int

	// FreshnessHalfLife (τ) controls how quickly the Ranker's freshness
	// term decays with item age.
	FreshnessHalfLife time.Duration
	// EngagementWeight, VelocityWeight, FreshnessWeight, AgeWeight are the
	// Ranker's score = w_e*engagement_z + w_v*velocity + w_f*freshness -
	// w_a*age_penalty coefficients.
	EngagementWeight float64
	VelocityWeight   float64
	FreshnessWeight  float64
	AgeWeight        float64
	// MaxPerCategoryInTopN caps how many of the top N ranked trends may
	// share a category, enforcing the diversity constraint.
	MaxPerCategoryInTopN int
	TopN                 int

	// LockTimeout bounds how long the Deduplicator waits to acquire a
	// fingerprint lock before failing the item with errkind.LockTimeout.
	LockTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinLanguageSampleLength <= 0 {
		c.MinLanguageSampleLength = 20
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 14 * 24 * time.Hour
	}
	if c.DedupThreshold <= 0 {
		c.DedupThreshold = 0.92
	}
	if c.ClusterWindow <= 0 {
		c.ClusterWindow = 72 * time.Hour
	}
	if c.ClusterThreshold <= 0 {
		c.ClusterThreshold = 0.78
	}
	if c.MinClusterSize <= 0 {
		c.MinClusterSize = 2
	}
	if c.FreshnessHalfLife <= 0 {
		c.FreshnessHalfLife = 48 * time.Hour
	}
	if c.EngagementWeight == 0 {
		c.EngagementWeight = 0.4
	}
	if c.VelocityWeight == 0 {
		c.VelocityWeight = 0.3
	}
	if c.FreshnessWeight == 0 {
		c.FreshnessWeight = 0.2
	}
	if c.AgeWeight == 0 {
		c.AgeWeight = 0.1
	}
	if c.MaxPerCategoryInTopN <= 0 {
		c.MaxPerCategoryInTopN = 3
	}
	if c.TopN <= 0 {
		c.TopN = 10
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Second
	}
	return c
}

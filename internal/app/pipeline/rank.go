package pipeline

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trendforge/ingest/internal/app/domain/item"
	"github.com/trendforge/ingest/internal/app/domain/topic"
	"github.com/trendforge/ingest/internal/app/domain/trend"
)

// trendNamespace is the fixed UUIDv5 namespace Trend IDs are derived under:
// one Trend per (RunID, TopicID) pair, so a run can never produce two Trend
// rows for the same topic.
var trendNamespace = uuid.MustParse("4e8d8e70-0c77-5f3a-9b7b-2b6e4d9a7c1a")

// engagementReferenceScale is the denominator engagementScore normalizes
// against before clamping to [0, 3]. Tuned so a moderately engaged topic
// (hundreds of combined reactions/shares) lands near 1.0, leaving headroom
// for genuinely viral topics without letting one outlier dominate the
// linear combination.
const engagementReferenceScale = 200.0

// sustainedHistoryRuns is how many prior Trend rows deriveState consults to
// decide "sustained" (§4.7: at least 3 runs, staying within 20% of peak
// engagement).
const sustainedHistoryRuns = 3

// scoredTrend pairs a computed Trend with data the category-diversity pass
// and state derivation need but that don't belong on the persisted type.
type scoredTrend struct {
	t              trend.Trend
	prevExists     bool
	runsTracked    int
	peakEngagement float64
}

// Ranker scores each Topic proposal from the Clusterer and assembles the
// run's Trend records, per §4.7's formula:
//
//	score = w_e*engagement_z + w_v*velocity + w_f*freshness - w_a*age_penalty
//	freshness = exp(-age_hours/τ)
//	age_penalty = log(1 + days_since_first_seen)
//
// Trends are ranked by score descending with a category-diversity
// constraint (no category holds more than MaxPerCategoryInTopN of the top
// TopN positions), tie-broken by higher velocity then earlier FirstSeen.
type Ranker struct{}

func (r *Ranker) Name() string { return "ranker" }

func (r *Ranker) Run(ctx context.Context, pc *Context, items []item.Processed) ([]item.Processed, error) {
	proposals := pc.Proposals()
	if len(proposals) == 0 {
		return items, nil
	}

	now := pc.Now()
	cfg := pc.Config

	scoredTrends := make([]scoredTrend, len(proposals))
	for i, t := range proposals {
		prev, prevExists := pc.latestTrendFor(ctx, t.ID)
		history := pc.trendHistoryFor(ctx, t.ID, sustainedHistoryRuns)

		velocity := velocityFor(t, prev, prevExists, now)
		engagementZ := engagementScore(t)

		peakEngagement := sumEngagement(t.Engagement)
		for _, h := range history {
			if he := sumEngagement(h.Engagement); he > peakEngagement {
				peakEngagement = he
			}
		}

		ageHours := now.Sub(t.LastUpdated).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
		freshness := math.Exp(-ageHours / cfg.FreshnessHalfLife.Hours())

		daysSinceFirstSeen := now.Sub(t.FirstSeen).Hours() / 24
		if daysSinceFirstSeen < 0 {
			daysSinceFirstSeen = 0
		}
		agePenalty := math.Log(1 + daysSinceFirstSeen)

		score := cfg.EngagementWeight*engagementZ +
			cfg.VelocityWeight*velocity +
			cfg.FreshnessWeight*freshness -
			cfg.AgeWeight*agePenalty
		if score < 0 {
			score = 0
		}

		scoredTrends[i] = scoredTrend{
			t: trend.Trend{
				ID:               uuid.NewSHA1(trendNamespace, []byte(pc.RunID+":"+t.ID)).String(),
				TopicID:          t.ID,
				RunID:            pc.RunID,
				Title:            t.Title,
				Summary:          t.Summary,
				Score:            score,
				Velocity:         velocity,
				Category:         t.Category,
				Language:         t.Language,
				Keywords:         t.Keywords,
				Engagement:       t.Engagement,
				FirstSeen:        t.FirstSeen,
				LastUpdated:      t.LastUpdated,
				PeakEngagementAt: peakEngagementAt(t, prev, prevExists, now),
			},
			prevExists:     prevExists,
			runsTracked:    len(history) + 1,
			peakEngagement: peakEngagement,
		}
	}

	viralThreshold := velocityP90(scoredTrends)

	sort.SliceStable(scoredTrends, func(i, j int) bool {
		a, b := scoredTrends[i].t, scoredTrends[j].t
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Velocity != b.Velocity {
			return a.Velocity > b.Velocity
		}
		return a.FirstSeen.Before(b.FirstSeen)
	})

	enforceCategoryDiversity(scoredTrends, cfg.TopN, cfg.MaxPerCategoryInTopN)

	trends := make([]trend.Trend, len(scoredTrends))
	for i, s := range scoredTrends {
		s.t.Rank = i + 1
		s.t.State = deriveState(s, viralThreshold, cfg, now)
		trends[i] = s.t
	}
	pc.setTrends(trends)
	return items, nil
}

// engagementScore normalizes a topic's combined engagement metrics against
// engagementReferenceScale, clamped to [0, 3] so a single viral outlier
// can't dominate the linear combination.
func engagementScore(t topic.Topic) float64 {
	total := sumEngagement(t.Engagement)
	z := total / engagementReferenceScale
	if z < 0 {
		return 0
	}
	if z > 3 {
		return 3
	}
	return z
}

// velocityFor measures the rate of engagement change since the topic's
// last-recorded Trend: (current - previous) engagement per hour elapsed,
// floored at 0 (the Ranker only tracks rising/flat velocity; a negative
// delta is handled by deriveState via the "declining" state, not by a
// negative velocity value). A topic with no prior Trend (this is its first
// run) gets velocity 0 and is always "emerging".
func velocityFor(t topic.Topic, prev trend.Trend, prevExists bool, now time.Time) float64 {
	if !prevExists {
		return 0
	}
	elapsed := now.Sub(prev.LastUpdated).Hours()
	if elapsed <= 0 {
		elapsed = 1
	}
	delta := sumEngagement(t.Engagement) - sumEngagement(prev.Engagement)
	if delta < 0 {
		return 0
	}
	return delta / elapsed
}

// peakEngagementAt keeps the timestamp of whichever run (this one or a
// prior one) recorded the highest combined engagement for this topic.
func peakEngagementAt(t topic.Topic, prev trend.Trend, prevExists bool, now time.Time) time.Time {
	if !prevExists {
		return now
	}
	if sumEngagement(t.Engagement) > sumEngagement(prev.Engagement) {
		return now
	}
	return prev.PeakEngagementAt
}

// deriveState classifies a scored trend's trajectory, per §4.7: viral is a
// velocity outlier relative to this run's own distribution (above the 90th
// percentile), sustained requires at least sustainedHistoryRuns of history
// while staying within 20% of the topic's peak engagement, and declining is
// a drop of more than 40% from that peak.
func deriveState(s scoredTrend, viralThreshold float64, cfg Config, now time.Time) trend.State {
	t := s.t
	if !s.prevExists {
		return trend.StateEmerging
	}
	ageHours := now.Sub(t.FirstSeen).Hours()
	if t.Score < 0.05 && ageHours > cfg.FreshnessHalfLife.Hours()*4 {
		return trend.StateDead
	}

	current := sumEngagement(t.Engagement)
	peak := s.peakEngagement
	if peak <= 0 {
		peak = current
	}

	switch {
	case t.Velocity > 0 && t.Velocity >= viralThreshold:
		return trend.StateViral
	case s.runsTracked >= sustainedHistoryRuns && current >= peak*0.8:
		return trend.StateSustained
	case current < peak*0.6:
		return trend.StateDeclining
	case t.Velocity > 0:
		return trend.StateSustained
	default:
		return trend.StateDeclining
	}
}

// velocityP90 returns this run's 90th-percentile velocity across all scored
// trends, the threshold deriveState uses to classify "viral". A run with
// fewer than two trends has no meaningful distribution, so it returns
// math.MaxFloat64 and nothing clears the threshold.
func velocityP90(trends []scoredTrend) float64 {
	if len(trends) == 0 {
		return math.MaxFloat64
	}
	velocities := make([]float64, len(trends))
	for i, s := range trends {
		velocities[i] = s.t.Velocity
	}
	sort.Float64s(velocities)
	if len(velocities) == 1 {
		return math.MaxFloat64
	}
	idx := int(math.Ceil(0.9*float64(len(velocities)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(velocities) {
		idx = len(velocities) - 1
	}
	return velocities[idx]
}

// enforceCategoryDiversity walks the score-sorted list and demotes any
// trend past MaxPerCategoryInTopN same-category entries within the first
// topN positions to just after topN, preserving relative order otherwise.
func enforceCategoryDiversity(trends []scoredTrend, topN, maxPerCategory int) {
	if topN <= 0 || topN >= len(trends) {
		return
	}
	counts := make(map[string]int)
	var kept, deferred []scoredTrend
	for _, s := range trends {
		if len(kept) < topN && counts[s.t.Category] < maxPerCategory {
			kept = append(kept, s)
			counts[s.t.Category]++
			continue
		}
		deferred = append(deferred, s)
	}
	copy(trends, append(kept, deferred...))
}

package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trendforge/ingest/internal/app/domain/trend"
)

// TrendStore is the Postgres-backed storage.TrendStore.
type TrendStore struct{ db *sqlx.DB }

type trendRow struct {
	ID               string    `db:"id"`
	TopicID          string    `db:"topic_id"`
	RunID            string    `db:"run_id"`
	Rank             int       `db:"rank"`
	Title            string    `db:"title"`
	Summary          string    `db:"summary"`
	Score            float64   `db:"score"`
	Velocity         float64   `db:"velocity"`
	State            string    `db:"state"`
	Category         string    `db:"category"`
	Language         string    `db:"language"`
	Keywords         []byte    `db:"keywords"`
	Engagement       []byte    `db:"engagement"`
	FirstSeen        time.Time `db:"first_seen"`
	LastUpdated      time.Time `db:"last_updated"`
	PeakEngagementAt time.Time `db:"peak_engagement_at"`
}

func toTrendRow(t trend.Trend) (trendRow, error) {
	keywords, err := json.Marshal(t.Keywords)
	if err != nil {
		return trendRow{}, err
	}
	engagement, err := json.Marshal(t.Engagement)
	if err != nil {
		return trendRow{}, err
	}
	return trendRow{
		ID: t.ID, TopicID: t.TopicID, RunID: t.RunID, Rank: t.Rank, Title: t.Title,
		Summary: t.Summary, Score: t.Score, Velocity: t.Velocity, State: string(t.State),
		Category: t.Category, Language: t.Language, Keywords: keywords, Engagement: engagement,
		FirstSeen: t.FirstSeen, LastUpdated: t.LastUpdated, PeakEngagementAt: t.PeakEngagementAt,
	}, nil
}

func fromTrendRow(r trendRow) (trend.Trend, error) {
	t := trend.Trend{
		ID: r.ID, TopicID: r.TopicID, RunID: r.RunID, Rank: r.Rank, Title: r.Title,
		Summary: r.Summary, Score: r.Score, Velocity: r.Velocity, State: trend.State(r.State),
		Category: r.Category, Language: r.Language,
		FirstSeen: r.FirstSeen, LastUpdated: r.LastUpdated, PeakEngagementAt: r.PeakEngagementAt,
	}
	if err := json.Unmarshal(r.Keywords, &t.Keywords); err != nil {
		return trend.Trend{}, err
	}
	if len(r.Engagement) > 0 {
		if err := json.Unmarshal(r.Engagement, &t.Engagement); err != nil {
			return trend.Trend{}, err
		}
	}
	return t, nil
}

const trendColumns = `id, topic_id, run_id, rank, title, summary, score, velocity, state,
	category, language, keywords, engagement, first_seen, last_updated, peak_engagement_at`

func (s *TrendStore) Insert(ctx context.Context, t trend.Trend) error {
	row, err := toTrendRow(t)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO trends (`+trendColumns+`)
		VALUES (:id, :topic_id, :run_id, :rank, :title, :summary, :score, :velocity, :state,
			:category, :language, :keywords, :engagement, :first_seen, :last_updated, :peak_engagement_at)
	`, row)
	return err
}

func (s *TrendStore) ListByRun(ctx context.Context, runID string, limit int) ([]trend.Trend, error) {
	var rows []trendRow
	query := `SELECT ` + trendColumns + ` FROM trends WHERE run_id = $1 ORDER BY rank LIMIT NULLIF($2, 0)`
	if err := s.db.SelectContext(ctx, &rows, query, runID, limit); err != nil {
		return nil, err
	}
	return fromTrendRows(rows)
}

func (s *TrendStore) LatestForTopic(ctx context.Context, topicID string, limit int) ([]trend.Trend, error) {
	var rows []trendRow
	query := `SELECT ` + trendColumns + ` FROM trends WHERE topic_id = $1 ORDER BY last_updated DESC LIMIT NULLIF($2, 0)`
	if err := s.db.SelectContext(ctx, &rows, query, topicID, limit); err != nil {
		return nil, err
	}
	return fromTrendRows(rows)
}

func fromTrendRows(rows []trendRow) ([]trend.Trend, error) {
	out := make([]trend.Trend, 0, len(rows))
	for _, r := range rows {
		t, err := fromTrendRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

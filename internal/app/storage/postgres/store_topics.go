package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trendforge/ingest/internal/app/domain/topic"
)

// TopicStore is the Postgres-backed storage.TopicStore.
type TopicStore struct{ db *sqlx.DB }

type topicRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Summary     string    `db:"summary"`
	Category    string    `db:"category"`
	Language    string    `db:"language"`
	Sources     []byte    `db:"sources"`
	ItemIDs     []byte    `db:"item_ids"`
	Keywords    []byte    `db:"keywords"`
	Engagement  []byte    `db:"engagement"`
	FirstSeen   time.Time `db:"first_seen"`
	LastUpdated time.Time `db:"last_updated"`
}

func toTopicRow(t topic.Topic) (topicRow, error) {
	sources, err := json.Marshal(t.Sources)
	if err != nil {
		return topicRow{}, err
	}
	itemIDs, err := json.Marshal(t.ItemIDs)
	if err != nil {
		return topicRow{}, err
	}
	keywords, err := json.Marshal(t.Keywords)
	if err != nil {
		return topicRow{}, err
	}
	engagement, err := json.Marshal(t.Engagement)
	if err != nil {
		return topicRow{}, err
	}
	return topicRow{
		ID: t.ID, Title: t.Title, Summary: t.Summary, Category: t.Category, Language: t.Language,
		Sources: sources, ItemIDs: itemIDs, Keywords: keywords, Engagement: engagement,
		FirstSeen: t.FirstSeen, LastUpdated: t.LastUpdated,
	}, nil
}

func fromTopicRow(r topicRow) (topic.Topic, error) {
	var t topic.Topic
	t.ID, t.Title, t.Summary, t.Category, t.Language = r.ID, r.Title, r.Summary, r.Category, r.Language
	t.FirstSeen, t.LastUpdated = r.FirstSeen, r.LastUpdated
	if err := json.Unmarshal(r.Sources, &t.Sources); err != nil {
		return topic.Topic{}, err
	}
	if err := json.Unmarshal(r.ItemIDs, &t.ItemIDs); err != nil {
		return topic.Topic{}, err
	}
	if err := json.Unmarshal(r.Keywords, &t.Keywords); err != nil {
		return topic.Topic{}, err
	}
	if len(r.Engagement) > 0 {
		if err := json.Unmarshal(r.Engagement, &t.Engagement); err != nil {
			return topic.Topic{}, err
		}
	}
	return t, nil
}

const topicColumns = `id, title, summary, category, language, sources, item_ids, keywords,
	engagement, first_seen, last_updated`

func (s *TopicStore) Upsert(ctx context.Context, t topic.Topic) error {
	row, err := toTopicRow(t)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO topics (`+topicColumns+`)
		VALUES (:id, :title, :summary, :category, :language, :sources, :item_ids, :keywords,
			:engagement, :first_seen, :last_updated)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, summary = EXCLUDED.summary, category = EXCLUDED.category,
			language = EXCLUDED.language, sources = EXCLUDED.sources, item_ids = EXCLUDED.item_ids,
			keywords = EXCLUDED.keywords, engagement = EXCLUDED.engagement,
			last_updated = EXCLUDED.last_updated
	`, row)
	return err
}

func (s *TopicStore) Get(ctx context.Context, id string) (topic.Topic, bool, error) {
	var row topicRow
	err := s.db.GetContext(ctx, &row, `SELECT `+topicColumns+` FROM topics WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return topic.Topic{}, false, nil
	}
	if err != nil {
		return topic.Topic{}, false, err
	}
	t, err := fromTopicRow(row)
	return t, err == nil, err
}

func (s *TopicStore) ListRecent(ctx context.Context, since time.Time, limit int) ([]topic.Topic, error) {
	var rows []topicRow
	query := `SELECT ` + topicColumns + ` FROM topics WHERE last_updated >= $1 ORDER BY last_updated DESC LIMIT NULLIF($2, 0)`
	if err := s.db.SelectContext(ctx, &rows, query, since, limit); err != nil {
		return nil, err
	}
	out := make([]topic.Topic, 0, len(rows))
	for _, r := range rows {
		t, err := fromTopicRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

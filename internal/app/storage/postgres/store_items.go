package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trendforge/ingest/internal/app/domain/item"
)

// ItemStore is the Postgres-backed storage.ItemStore.
type ItemStore struct{ db *sqlx.DB }

// itemRow mirrors processed_items, tagged for sqlx's StructScan.
type itemRow struct {
	ID          string    `db:"id"`
	Source      string    `db:"source"`
	SourceID    string    `db:"source_id"`
	Title       string    `db:"title"`
	Content     string    `db:"content"`
	Language    string    `db:"language"`
	Category    string    `db:"category"`
	Metrics     []byte    `db:"metrics"`
	PublishedAt time.Time `db:"published_at"`
	CollectedAt time.Time `db:"collected_at"`
	ContentHash []byte    `db:"content_hash"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func toItemRow(it item.Processed) (itemRow, error) {
	metrics, err := json.Marshal(it.Engagement)
	if err != nil {
		return itemRow{}, err
	}
	hash := make([]byte, len(it.ContentHash))
	copy(hash, it.ContentHash[:])
	return itemRow{
		ID: it.ID, Source: it.Source, SourceID: it.SourceID, Title: it.Title,
		Content: it.Content, Language: it.Language, Category: it.Category,
		Metrics: metrics, PublishedAt: it.PublishedAt, CollectedAt: it.CollectedAt,
		ContentHash: hash, Status: string(it.Status),
		CreatedAt: it.CreatedAt, UpdatedAt: it.UpdatedAt,
	}, nil
}

func fromItemRow(r itemRow) (item.Processed, error) {
	var engagement map[string]float64
	if len(r.Metrics) > 0 {
		if err := json.Unmarshal(r.Metrics, &engagement); err != nil {
			return item.Processed{}, err
		}
	}
	var hash [32]byte
	copy(hash[:], r.ContentHash)
	return item.Processed{
		ID: r.ID, Source: r.Source, SourceID: r.SourceID, Title: r.Title,
		Content: r.Content, Language: r.Language, Category: r.Category,
		Engagement: engagement, PublishedAt: r.PublishedAt, CollectedAt: r.CollectedAt,
		ContentHash: hash, Status: item.Status(r.Status),
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}, nil
}

const itemColumns = `id, source, source_id, title, content, language, category, metrics,
	published_at, collected_at, content_hash, status, created_at, updated_at`

func (s *ItemStore) Insert(ctx context.Context, it item.Processed) error {
	row, err := toItemRow(it)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO processed_items (`+itemColumns+`)
		VALUES (:id, :source, :source_id, :title, :content, :language, :category, :metrics,
			:published_at, :collected_at, :content_hash, :status, :created_at, :updated_at)
	`, row)
	return err
}

// Upsert inserts it, or on a (source, source_id) conflict updates every
// mutable column in place while keeping the existing row's id and
// created_at, returning that existing id.
func (s *ItemStore) Upsert(ctx context.Context, it item.Processed) (string, bool, error) {
	row, err := toItemRow(it)
	if err != nil {
		return "", false, err
	}

	var result struct {
		ID      string `db:"id"`
		Updated bool   `db:"updated"`
	}
	rows, err := s.db.NamedQueryContext(ctx, `
		INSERT INTO processed_items (`+itemColumns+`)
		VALUES (:id, :source, :source_id, :title, :content, :language, :category, :metrics,
			:published_at, :collected_at, :content_hash, :status, :created_at, :updated_at)
		ON CONFLICT (source, source_id) DO UPDATE SET
			title = EXCLUDED.title, content = EXCLUDED.content, language = EXCLUDED.language,
			category = EXCLUDED.category, metrics = EXCLUDED.metrics,
			published_at = EXCLUDED.published_at, collected_at = EXCLUDED.collected_at,
			content_hash = EXCLUDED.content_hash, status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		RETURNING id, (xmax <> 0) AS updated
	`, row)
	if err != nil {
		return "", false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", false, sql.ErrNoRows
	}
	if err := rows.StructScan(&result); err != nil {
		return "", false, err
	}
	return result.ID, result.Updated, rows.Err()
}

func (s *ItemStore) Get(ctx context.Context, id string) (item.Processed, bool, error) {
	var row itemRow
	err := s.db.GetContext(ctx, &row, `SELECT `+itemColumns+` FROM processed_items WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return item.Processed{}, false, nil
	}
	if err != nil {
		return item.Processed{}, false, err
	}
	it, err := fromItemRow(row)
	return it, err == nil, err
}

func (s *ItemStore) GetByNaturalKey(ctx context.Context, source, sourceID string) (item.Processed, bool, error) {
	var row itemRow
	err := s.db.GetContext(ctx, &row, `SELECT `+itemColumns+` FROM processed_items WHERE source = $1 AND source_id = $2`, source, sourceID)
	if err == sql.ErrNoRows {
		return item.Processed{}, false, nil
	}
	if err != nil {
		return item.Processed{}, false, err
	}
	it, err := fromItemRow(row)
	return it, err == nil, err
}

func (s *ItemStore) GetByContentHash(ctx context.Context, hash [32]byte) (item.Processed, bool, error) {
	var row itemRow
	err := s.db.GetContext(ctx, &row, `SELECT `+itemColumns+` FROM processed_items WHERE content_hash = $1`, hash[:])
	if err == sql.ErrNoRows {
		return item.Processed{}, false, nil
	}
	if err != nil {
		return item.Processed{}, false, err
	}
	it, err := fromItemRow(row)
	return it, err == nil, err
}

func (s *ItemStore) SetStatus(ctx context.Context, id string, status item.Status) error {
	_, err := s.db.ExecContext(ctx, `UPDATE processed_items SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	return err
}

func (s *ItemStore) ListByStatus(ctx context.Context, status item.Status, limit int) ([]item.Processed, error) {
	var rows []itemRow
	query := `SELECT ` + itemColumns + ` FROM processed_items WHERE status = $1 ORDER BY collected_at LIMIT NULLIF($2, 0)`
	if err := s.db.SelectContext(ctx, &rows, query, string(status), limit); err != nil {
		return nil, err
	}
	return fromItemRows(rows)
}

func (s *ItemStore) ListWindow(ctx context.Context, since, until time.Time, limit, offset int) ([]item.Processed, error) {
	var rows []itemRow
	query := `SELECT ` + itemColumns + ` FROM processed_items
		WHERE collected_at >= $1 AND collected_at < $2
		ORDER BY collected_at
		LIMIT NULLIF($3, 0) OFFSET $4`
	if err := s.db.SelectContext(ctx, &rows, query, since, until, limit, offset); err != nil {
		return nil, err
	}
	return fromItemRows(rows)
}

func fromItemRows(rows []itemRow) ([]item.Processed, error) {
	out := make([]item.Processed, 0, len(rows))
	for _, r := range rows {
		it, err := fromItemRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

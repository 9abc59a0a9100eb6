package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trendforge/ingest/internal/app/domain/run"
)

// RunStore is the Postgres-backed storage.RunStore.
type RunStore struct{ db *sqlx.DB }

type runRow struct {
	ID                string       `db:"id"`
	Status            string       `db:"status"`
	ItemsCollected    int          `db:"items_collected"`
	ItemsProcessed    int          `db:"items_processed"`
	ItemsDeduplicated int          `db:"items_deduplicated"`
	TopicsCreated     int          `db:"topics_created"`
	TrendsCreated     int          `db:"trends_created"`
	DurationMS        int64        `db:"duration_ms"`
	Errors            []byte       `db:"errors"`
	StartedAt         time.Time    `db:"started_at"`
	CompletedAt       sql.NullTime `db:"completed_at"`
}

func toRunRow(r run.PipelineRun) (runRow, error) {
	errs, err := json.Marshal(r.Errors)
	if err != nil {
		return runRow{}, err
	}
	row := runRow{
		ID: r.ID, Status: string(r.Status),
		ItemsCollected: r.Counters.ItemsCollected, ItemsProcessed: r.Counters.ItemsProcessed,
		ItemsDeduplicated: r.Counters.ItemsDeduplicated, TopicsCreated: r.Counters.TopicsCreated,
		TrendsCreated: r.Counters.TrendsCreated, DurationMS: r.Duration.Milliseconds(),
		Errors: errs, StartedAt: r.StartedAt,
	}
	if !r.CompletedAt.IsZero() {
		row.CompletedAt = sql.NullTime{Time: r.CompletedAt, Valid: true}
	}
	return row, nil
}

func fromRunRow(r runRow) (run.PipelineRun, error) {
	out := run.PipelineRun{
		ID: r.ID, Status: run.Status(r.Status),
		Counters: run.Counters{
			ItemsCollected: r.ItemsCollected, ItemsProcessed: r.ItemsProcessed,
			ItemsDeduplicated: r.ItemsDeduplicated, TopicsCreated: r.TopicsCreated,
			TrendsCreated: r.TrendsCreated,
		},
		Duration:  time.Duration(r.DurationMS) * time.Millisecond,
		StartedAt: r.StartedAt,
	}
	if r.CompletedAt.Valid {
		out.CompletedAt = r.CompletedAt.Time
	}
	if len(r.Errors) > 0 {
		if err := json.Unmarshal(r.Errors, &out.Errors); err != nil {
			return run.PipelineRun{}, err
		}
	}
	return out, nil
}

const runColumns = `id, status, items_collected, items_processed, items_deduplicated,
	topics_created, trends_created, duration_ms, errors, started_at, completed_at`

func (s *RunStore) Create(ctx context.Context, r run.PipelineRun) error {
	row, err := toRunRow(r)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO pipeline_runs (`+runColumns+`)
		VALUES (:id, :status, :items_collected, :items_processed, :items_deduplicated,
			:topics_created, :trends_created, :duration_ms, :errors, :started_at, :completed_at)
	`, row)
	return err
}

func (s *RunStore) Update(ctx context.Context, r run.PipelineRun) error {
	row, err := toRunRow(r)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		UPDATE pipeline_runs SET
			status = :status, items_collected = :items_collected, items_processed = :items_processed,
			items_deduplicated = :items_deduplicated, topics_created = :topics_created,
			trends_created = :trends_created, duration_ms = :duration_ms, errors = :errors,
			completed_at = :completed_at
		WHERE id = :id
	`, row)
	return err
}

func (s *RunStore) Get(ctx context.Context, id string) (run.PipelineRun, bool, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return run.PipelineRun{}, false, nil
	}
	if err != nil {
		return run.PipelineRun{}, false, err
	}
	r, err := fromRunRow(row)
	return r, err == nil, err
}

func (s *RunStore) ListRecent(ctx context.Context, limit int) ([]run.PipelineRun, error) {
	var rows []runRow
	query := `SELECT ` + runColumns + ` FROM pipeline_runs ORDER BY started_at DESC LIMIT NULLIF($1, 0)`
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, err
	}
	out := make([]run.PipelineRun, 0, len(rows))
	for _, r := range rows {
		pr, err := fromRunRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, nil
}

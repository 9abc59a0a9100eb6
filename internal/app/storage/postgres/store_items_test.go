package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/trendforge/ingest/internal/app/domain/item"
	"github.com/trendforge/ingest/internal/app/storage/postgres"
)

func newMockStore(t *testing.T) (*postgres.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return postgres.New(sqlx.NewDb(db, "postgres")), mock
}

func TestItemStoreInsertExecutesNamedQuery(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec("INSERT INTO processed_items").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Items().Insert(context.Background(), item.Processed{
		ID: "a", Source: "hn", SourceID: "1", Title: "hello",
		PublishedAt: now, CollectedAt: now, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemStoreGetScansRow(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	cols := []string{"id", "source", "source_id", "title", "content", "language", "category",
		"metrics", "published_at", "collected_at", "content_hash", "status", "created_at", "updated_at"}
	rows := sqlmock.NewRows(cols).AddRow(
		"a", "hn", "1", "hello", "body", "en", "tech",
		[]byte(`{}`), now, now, make([]byte, 32), "pending", now, now,
	)
	mock.ExpectQuery("SELECT .* FROM processed_items WHERE id = \\$1").
		WithArgs("a").
		WillReturnRows(rows)

	got, ok, err := store.Items().Get(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", got.Title)
	require.Equal(t, "hn", got.Source)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestItemStoreSetStatusExecutesUpdate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE processed_items SET status").
		WithArgs("a", "processed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Items().SetStatus(context.Background(), "a", item.StatusProcessed)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/trendforge/ingest/internal/app/domain/topic"
)

func TestTopicStoreUpsertOnConflict(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec("INSERT INTO topics").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Topics().Upsert(context.Background(), topic.Topic{
		ID: "t1", Title: "AI", FirstSeen: now, LastUpdated: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTopicStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	cols := []string{"id", "title", "summary", "category", "language", "sources", "item_ids",
		"keywords", "engagement", "first_seen", "last_updated"}
	mock.ExpectQuery("SELECT .* FROM topics WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(cols))

	_, ok, err := store.Topics().Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

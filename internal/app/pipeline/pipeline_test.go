package pipeline_test

import (
	"time"

	"github.com/trendforge/ingest/internal/app/pipeline"
	"github.com/trendforge/ingest/internal/app/storage"
	"github.com/trendforge/ingest/internal/app/storage/memory"
	"github.com/trendforge/ingest/pkg/logger"
)

func newFacade() *storage.Facade {
	s := memory.New()
	return &storage.Facade{
		Items:   s.Items(),
		Vectors: s.Vectors(),
		Cache:   s.Cache(),
		Topics:  s.Topics(),
		Trends:  s.Trends(),
		Runs:    s.Runs(),
	}
}

func newTestContext(facade *storage.Facade, now time.Time) *pipeline.Context {
	return pipeline.NewContext("test-run", func() time.Time { return now }, logger.NewDefault("test"), pipeline.Config{}, facade, pipeline.HashEmbedder{})
}

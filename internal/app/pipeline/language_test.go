package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trendforge/ingest/internal/app/domain/item"
	"github.com/trendforge/ingest/internal/app/pipeline"
)

func TestLanguageDetectorTagsEnglishStopwordHeavyText(t *testing.T) {
	pc := newTestContext(newFacade(), time.Now())
	d := &pipeline.LanguageDetector{MinLength: 5}

	items := []item.Processed{{
		ID:      "a",
		Title:   "The report is ready for the committee",
		Content: "It was written with the help of the editor and the team",
	}}
	out, err := d.Run(context.Background(), pc, items)
	require.NoError(t, err)
	require.Equal(t, "en", out[0].Language)
}

func TestLanguageDetectorTagsShortTextUndetermined(t *testing.T) {
	pc := newTestContext(newFacade(), time.Now())
	d := &pipeline.LanguageDetector{MinLength: 50}

	items := []item.Processed{{ID: "a", Title: "hi"}}
	out, err := d.Run(context.Background(), pc, items)
	require.NoError(t, err)
	require.Equal(t, "und", out[0].Language)
}

func TestLanguageDetectorTagsHanScript(t *testing.T) {
	pc := newTestContext(newFacade(), time.Now())
	d := &pipeline.LanguageDetector{MinLength: 3}

	items := []item.Processed{{ID: "a", Title: "中国科技公司宣布新计划", Content: "这项计划将影响整个行业"}}
	out, err := d.Run(context.Background(), pc, items)
	require.NoError(t, err)
	require.Equal(t, "zh", out[0].Language)
}

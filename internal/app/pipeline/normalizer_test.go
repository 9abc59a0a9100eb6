package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trendforge/ingest/internal/app/domain/item"
	"github.com/trendforge/ingest/internal/app/pipeline"
)

func TestNormalizerStripsHTMLAndRecomputesHash(t *testing.T) {
	pc := newTestContext(newFacade(), time.Now())
	n := &pipeline.Normalizer{}

	items := []item.Processed{{ID: "a", Title: "  <b>Hello</b>  World  ", Content: "<p>body</p>"}}
	out, err := n.Run(context.Background(), pc, items)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "Hello World", out[0].Title)
	require.Equal(t, "body", out[0].Content)
	require.NotEqual(t, [32]byte{}, out[0].ContentHash)
}

func TestNormalizerDropsEmptyTitleAndRecordsDrop(t *testing.T) {
	pc := newTestContext(newFacade(), time.Now())
	n := &pipeline.Normalizer{}

	items := []item.Processed{{ID: "a", Title: "   <br/>   "}}
	out, err := n.Run(context.Background(), pc, items)
	require.NoError(t, err)
	require.Empty(t, out)
	require.Equal(t, 1, pc.Drops()[pipeline.DropInvalid])
}

package convert_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trendforge/ingest/internal/app/convert"
	"github.com/trendforge/ingest/internal/app/domain/item"
)

func TestConvertStripsHTMLAndCollapsesWhitespace(t *testing.T) {
	now := time.Now()
	raw := item.Raw{
		Source:   "hn",
		SourceID: "123",
		Title:    "  Hello   <b>World</b>  ",
		Content:  "<p>Some   content</p>\n\nwith   gaps",
	}

	processed, ok := convert.Convert(raw, now)
	require.True(t, ok)
	require.Equal(t, "Hello World", processed.Title)
	require.Equal(t, "Some content with gaps", processed.Content)
}

func TestConvertDropsEmptyTitle(t *testing.T) {
	raw := item.Raw{Source: "hn", SourceID: "1", Title: "   <br/>   "}
	_, ok := convert.Convert(raw, time.Now())
	require.False(t, ok)
}

func TestConvertIDIsDeterministic(t *testing.T) {
	now := time.Now()
	raw := item.Raw{Source: "reddit", SourceID: "abc", Title: "x"}

	first, ok := convert.Convert(raw, now)
	require.True(t, ok)
	second, ok := convert.Convert(raw, now.Add(time.Hour))
	require.True(t, ok)

	require.Equal(t, first.ID, second.ID)
}

func TestConvertIDDiffersAcrossSources(t *testing.T) {
	now := time.Now()
	a, _ := convert.Convert(item.Raw{Source: "hn", SourceID: "1", Title: "x"}, now)
	b, _ := convert.Convert(item.Raw{Source: "reddit", SourceID: "1", Title: "x"}, now)
	require.NotEqual(t, a.ID, b.ID)
}

func TestConvertFallsBackToCollectedAtForMissingPublishedAt(t *testing.T) {
	now := time.Now()
	p, ok := convert.Convert(item.Raw{Source: "hn", SourceID: "1", Title: "x"}, now)
	require.True(t, ok)
	require.True(t, p.PublishedAt.Equal(now))
}

func TestConvertContentHashIsCaseInsensitive(t *testing.T) {
	now := time.Now()
	a, _ := convert.Convert(item.Raw{Source: "hn", SourceID: "1", Title: "Hello", Content: "World"}, now)
	b, _ := convert.Convert(item.Raw{Source: "hn", SourceID: "2", Title: "HELLO", Content: "world"}, now)
	require.Equal(t, a.ContentHash, b.ContentHash)
}

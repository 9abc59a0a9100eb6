package plugin_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trendforge/ingest/infrastructure/errkind"
	"github.com/trendforge/ingest/internal/app/plugin"
)

func TestNewScriptCollectorRejectsEmptyScript(t *testing.T) {
	_, err := plugin.NewScriptCollector(plugin.ScriptCollectorConfig{PluginName: "x"}, nil)
	require.Error(t, err)
	require.Equal(t, errkind.ConfigError, errkind.Of(err))
}

func TestNewScriptCollectorRejectsSyntaxError(t *testing.T) {
	_, err := plugin.NewScriptCollector(plugin.ScriptCollectorConfig{
		PluginName: "x",
		Script:     "function collect( { return []",
	}, nil)
	require.Error(t, err)
	require.Equal(t, errkind.ConfigError, errkind.Of(err))
}

func TestScriptCollectorReturnsItems(t *testing.T) {
	c, err := plugin.NewScriptCollector(plugin.ScriptCollectorConfig{
		PluginName: "custom-blog",
		Script: `function collect() {
			return [
				{source: "custom-blog", source_id: "1", title: "Hello", content: "world", engagement: {views: 42}}
			];
		}`,
	}, nil)
	require.NoError(t, err)

	items, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "1", items[0].SourceID)
	require.Equal(t, float64(42), items[0].Engagement["views"])
}

func TestScriptCollectorFetchBuiltin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "7", "title": "Fetched"}`))
	}))
	defer srv.Close()

	c, err := plugin.NewScriptCollector(plugin.ScriptCollectorConfig{
		PluginName: "fetcher",
		Script: `function collect() {
			var doc = fetch("` + srv.URL + `");
			return [{source: "fetcher", source_id: doc.id, title: doc.title, content: "x"}];
		}`,
	}, srv.Client())
	require.NoError(t, err)

	items, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "7", items[0].SourceID)
	require.Equal(t, "Fetched", items[0].Title)
}

func TestScriptCollectorMissingEntryPoint(t *testing.T) {
	c, err := plugin.NewScriptCollector(plugin.ScriptCollectorConfig{
		PluginName: "broken",
		Script:     `function notCollect() { return []; }`,
	}, nil)
	require.NoError(t, err)

	_, err = c.Collect(context.Background())
	require.Error(t, err)
	require.Equal(t, errkind.ConfigError, errkind.Of(err))
}

func TestScriptCollectorReadFileRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	c, err := plugin.NewScriptCollector(plugin.ScriptCollectorConfig{
		PluginName: "fs-reader",
		WorkDir:    dir,
		Script: `function collect() {
			readFile("../../../etc/passwd");
			return [];
		}`,
	}, nil)
	require.NoError(t, err)

	_, err = c.Collect(context.Background())
	require.Error(t, err)
	require.Equal(t, errkind.ConfigError, errkind.Of(err))
}

package plugin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"

	"github.com/trendforge/ingest/infrastructure/errkind"
	"github.com/trendforge/ingest/internal/app/domain/item"
	domain "github.com/trendforge/ingest/internal/app/domain/plugin"
)

// FieldMap configures which jsonpath expression (evaluated with
// PaesslerAG/jsonpath over the gjson-decoded body) extracts each RawItem
// field from one element of the candidate-items array.
type FieldMap struct {
	// ItemsPath is a JSONPath expression selecting the array of candidate
	// items, e.g. "$.data.items" or "$" if the body is itself the array.
	ItemsPath   string
	SourceID    string
	Title       string
	Description string
	Content     string
	URL         string
	Author      string
	PublishedAt string
	Engagement  map[string]string // metric name -> jsonpath expression
}

// HTTPCollectorConfig is the static configuration of an HTTP/JSON collector.
type HTTPCollectorConfig struct {
	PluginName string
	URLs       []string
	AuthHeader string
	AuthToken  string
	Fields     FieldMap
	Metadata   domain.Metadata
}

// HTTPCollector fetches one or more configured URLs, parses the JSON body
// with gjson, and extracts item fields using configurable jsonpath
// expressions per field. It is stateless and safe to reuse across ticks.
type HTTPCollector struct {
	cfg    HTTPCollectorConfig
	client *http.Client
}

var _ Collector = (*HTTPCollector)(nil)

// NewHTTPCollector validates cfg and constructs a collector. Missing URLs or
// a field map with no ItemsPath configured is a ConfigError.
func NewHTTPCollector(cfg HTTPCollectorConfig, client *http.Client) (*HTTPCollector, error) {
	if cfg.PluginName == "" {
		return nil, errkind.New(errkind.ConfigError, "plugin name is required")
	}
	if len(cfg.URLs) == 0 {
		return nil, errkind.New(errkind.ConfigError, "at least one URL is required")
	}
	if cfg.Fields.ItemsPath == "" {
		return nil, errkind.New(errkind.ConfigError, "fields.items_path is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPCollector{cfg: cfg, client: client}, nil
}

func (c *HTTPCollector) Name() string { return c.cfg.PluginName }

func (c *HTTPCollector) Metadata() domain.Metadata { return c.cfg.Metadata }

// Collect fetches every configured URL in turn and flattens their extracted
// items. A non-2xx or transport error is NetworkError; a 429 is QuotaError
// carrying retry_after parsed from the Retry-After header (30s when absent
// or unparseable). A body that is not valid JSON is skipped; ParseError is
// returned when ItemsPath fails to evaluate on a body, or when no URL
// yields any item.
func (c *HTTPCollector) Collect(ctx context.Context) ([]item.Raw, error) {
	var items []item.Raw
	var sawAnyMatch bool

	for _, url := range c.cfg.URLs {
		body, retryAfter, err := c.fetch(ctx, url)
		if err != nil {
			if retryAfter > 0 {
				return nil, errkind.Quota("rate limited", err).WithRetryAfter(retryAfter)
			}
			return nil, err
		}

		if !gjson.ValidBytes(body) {
			continue
		}

		raws, err := c.extract(body)
		if err != nil {
			return nil, errkind.Parse(fmt.Sprintf("extracting items from %s", url), err)
		}
		if len(raws) > 0 {
			sawAnyMatch = true
		}
		items = append(items, raws...)
	}

	if !sawAnyMatch {
		return nil, errkind.New(errkind.ParseError, "no items matched the configured field map across any configured URL")
	}
	return items, nil
}

func (c *HTTPCollector) fetch(ctx context.Context, url string) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, errkind.Network("building request", err)
	}
	if c.cfg.AuthHeader != "" && c.cfg.AuthToken != "" {
		req.Header.Set(c.cfg.AuthHeader, c.cfg.AuthToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, errkind.Network("fetching "+url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), errkind.New(errkind.QuotaError, "429 from "+url)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, 0, errkind.New(errkind.NetworkError, fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, url))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, errkind.Network("reading response body", err)
	}
	return body, 0, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 30 * time.Second
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 30 * time.Second
}

func (c *HTTPCollector) extract(body []byte) ([]item.Raw, error) {
	// decode once into a generic value so jsonpath can walk it; gjson already
	// validated the bytes are well-formed JSON above.
	var doc any
	// gjson.ParseBytes gives us a navigable Result tree; jsonpath needs a
	// plain interface{} document, so round-trip through gjson.Result.Value().
	doc = gjson.ParseBytes(body).Value()

	candidates, err := jsonpath.Get(c.cfg.Fields.ItemsPath, doc)
	if err != nil {
		return nil, fmt.Errorf("evaluating items_path %q: %w", c.cfg.Fields.ItemsPath, err)
	}

	list, ok := candidates.([]interface{})
	if !ok {
		// a single-object match is still a valid one-item batch
		list = []interface{}{candidates}
	}

	out := make([]item.Raw, 0, len(list))
	for _, raw := range list {
		ri := item.Raw{
			Source:     c.cfg.PluginName,
			Engagement: map[string]float64{},
			Metadata:   map[string]string{},
		}
		ri.SourceID = stringField(raw, c.cfg.Fields.SourceID)
		ri.Title = stringField(raw, c.cfg.Fields.Title)
		ri.Description = stringField(raw, c.cfg.Fields.Description)
		ri.Content = stringField(raw, c.cfg.Fields.Content)
		ri.URL = stringField(raw, c.cfg.Fields.URL)
		ri.Author = stringField(raw, c.cfg.Fields.Author)
		if ts := stringField(raw, c.cfg.Fields.PublishedAt); ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				ri.PublishedAt = t
			}
		}
		for metric, expr := range c.cfg.Fields.Engagement {
			if v, ok := numberField(raw, expr); ok {
				ri.Engagement[metric] = v
			}
		}
		if ri.SourceID == "" || ri.Title == "" {
			continue
		}
		out = append(out, ri)
	}
	return out, nil
}

func stringField(doc interface{}, expr string) string {
	if expr == "" {
		return ""
	}
	v, err := jsonpath.Get(expr, doc)
	if err != nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func numberField(doc interface{}, expr string) (float64, bool) {
	if expr == "" {
		return 0, false
	}
	v, err := jsonpath.Get(expr, doc)
	if err != nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

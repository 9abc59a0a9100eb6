package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/trendforge/ingest/infrastructure/errkind"
	"github.com/trendforge/ingest/internal/app/domain/item"
	domain "github.com/trendforge/ingest/internal/app/domain/plugin"
)

var osReadFile = os.ReadFile

// ScriptCollectorConfig is the static configuration of a sandboxed Scripted
// collector.
type ScriptCollectorConfig struct {
	PluginName string
	Script     string // JavaScript source; must define EntryPoint
	EntryPoint string // defaults to "collect"
	WorkDir    string // root readFile is restricted to
	Secrets    map[string]string
	Metadata   domain.Metadata
	Timeout    time.Duration
}

// ScriptCollector runs a user-supplied JavaScript collector inside a fresh
// goja VM per call, the same one-VM-per-invocation isolation the TEE script
// engine uses. The script is handed a "fetch" builtin proxying through the
// collector's own http.Client, a "readFile" builtin jailed to
// WorkDir, a "secrets" object, and a "console.log" sink whose output is
// discarded (scripts run unattended; nothing reads Collect's logs).
type ScriptCollector struct {
	cfg    ScriptCollectorConfig
	client *http.Client
}

var _ Collector = (*ScriptCollector)(nil)

// NewScriptCollector validates cfg and constructs a collector. An empty
// Script, or a WorkDir that is not an absolute path, is a ConfigError.
func NewScriptCollector(cfg ScriptCollectorConfig, client *http.Client) (*ScriptCollector, error) {
	if cfg.PluginName == "" {
		return nil, errkind.New(errkind.ConfigError, "plugin name is required")
	}
	if strings.TrimSpace(cfg.Script) == "" {
		return nil, errkind.New(errkind.ConfigError, "script source is required")
	}
	if cfg.WorkDir != "" && !filepath.IsAbs(cfg.WorkDir) {
		return nil, errkind.New(errkind.ConfigError, "work_dir must be an absolute path")
	}
	if cfg.EntryPoint == "" {
		cfg.EntryPoint = "collect"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if _, err := goja.Compile(cfg.PluginName+".js", cfg.Script, false); err != nil {
		return nil, errkind.Config("compiling script", err)
	}
	return &ScriptCollector{cfg: cfg, client: client}, nil
}

func (c *ScriptCollector) Name() string { return c.cfg.PluginName }

func (c *ScriptCollector) Metadata() domain.Metadata { return c.cfg.Metadata }

// Collect compiles and runs the script in a dedicated VM, calls its entry
// point with no arguments, and interprets the returned value as either a
// single item object or an array of item objects. A script that throws, or
// whose entry point is missing, is a ConfigError (the plugin is broken, not
// the remote data); a result that cannot be mapped onto RawItem fields is a
// ParseError.
func (c *ScriptCollector) Collect(ctx context.Context) ([]item.Raw, error) {
	vm := goja.New()

	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = vm.Set("console", console)

	secretsObj := vm.NewObject()
	for k, v := range c.cfg.Secrets {
		_ = secretsObj.Set(k, v)
	}
	_ = vm.Set("secrets", secretsObj)

	_ = vm.Set("fetch", c.sandboxedFetch(ctx, vm))
	_ = vm.Set("readFile", c.sandboxedReadFile(vm))

	if _, err := vm.RunString(c.cfg.Script); err != nil {
		return nil, errkind.Config("running script", err)
	}

	entry, ok := goja.AssertFunction(vm.Get(c.cfg.EntryPoint))
	if !ok {
		return nil, errkind.New(errkind.ConfigError, fmt.Sprintf("entry point %q is not a function", c.cfg.EntryPoint))
	}

	resultVal, err := entry(goja.Undefined())
	if err != nil {
		return nil, classifyScriptError(err)
	}
	if resultVal == nil || goja.IsUndefined(resultVal) || goja.IsNull(resultVal) {
		return nil, errkind.New(errkind.ParseError, "script returned no result")
	}

	return decodeScriptResult(resultVal.Export())
}

// classifyScriptError treats an explicit throw of a QuotaError/NetworkError
// marker object (set by the fetch builtin) as such; anything else thrown by
// script logic itself is a ConfigError, since it is the plugin author's bug.
func classifyScriptError(err error) error {
	if gojaErr, ok := err.(*goja.Exception); ok {
		if obj, ok := gojaErr.Value().Export().(map[string]interface{}); ok {
			if kind, _ := obj["kind"].(string); kind != "" {
				msg, _ := obj["message"].(string)
				switch errkind.Kind(kind) {
				case errkind.NetworkError:
					return errkind.New(errkind.NetworkError, msg)
				case errkind.QuotaError:
					return errkind.New(errkind.QuotaError, msg)
				case errkind.ParseError:
					return errkind.New(errkind.ParseError, msg)
				}
			}
		}
	}
	return errkind.Config("script threw", err)
}

func decodeScriptResult(exported interface{}) ([]item.Raw, error) {
	var list []interface{}
	switch v := exported.(type) {
	case []interface{}:
		list = v
	case map[string]interface{}:
		list = []interface{}{v}
	default:
		return nil, errkind.New(errkind.ParseError, "script result is neither an object nor an array")
	}

	out := make([]item.Raw, 0, len(list))
	for _, raw := range list {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		ri, err := rawItemFromScriptObject(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, ri)
	}
	return out, nil
}

func rawItemFromScriptObject(obj map[string]interface{}) (item.Raw, error) {
	ri := item.Raw{Engagement: map[string]float64{}, Metadata: map[string]string{}}
	ri.Source, _ = obj["source"].(string)
	ri.SourceID, _ = obj["source_id"].(string)
	ri.Title, _ = obj["title"].(string)
	ri.Description, _ = obj["description"].(string)
	ri.Content, _ = obj["content"].(string)
	ri.URL, _ = obj["url"].(string)
	ri.Author, _ = obj["author"].(string)
	if ts, ok := obj["published_at"].(string); ok && ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			ri.PublishedAt = t
		}
	}
	if eng, ok := obj["engagement"].(map[string]interface{}); ok {
		for k, v := range eng {
			if f, ok := v.(float64); ok {
				ri.Engagement[k] = f
			}
		}
	}
	if ri.SourceID == "" || ri.Title == "" {
		return item.Raw{}, errkind.New(errkind.ParseError, "script item missing required source_id/title")
	}
	return ri, nil
}

// sandboxedFetch returns a goja-callable function proxying GET requests
// through the collector's http.Client, returning the decoded JSON body (or
// raw text if it isn't JSON). It throws a {kind, message} object on failure
// so classifyScriptError can recover the right errkind.Kind.
func (c *ScriptCollector) sandboxedFetch(ctx context.Context, vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			panic(vm.ToValue(map[string]interface{}{"kind": string(errkind.ConfigError), "message": "fetch requires a url argument"}))
		}
		url := call.Arguments[0].String()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			panic(vm.ToValue(map[string]interface{}{"kind": string(errkind.NetworkError), "message": err.Error()}))
		}
		resp, err := c.client.Do(req)
		if err != nil {
			panic(vm.ToValue(map[string]interface{}{"kind": string(errkind.NetworkError), "message": err.Error()}))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			panic(vm.ToValue(map[string]interface{}{"kind": string(errkind.QuotaError), "message": "429 from " + url}))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			panic(vm.ToValue(map[string]interface{}{"kind": string(errkind.NetworkError), "message": fmt.Sprintf("status %d", resp.StatusCode)}))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			panic(vm.ToValue(map[string]interface{}{"kind": string(errkind.NetworkError), "message": err.Error()}))
		}

		var decoded interface{}
		if json.Unmarshal(body, &decoded) == nil {
			return vm.ToValue(decoded)
		}
		return vm.ToValue(string(body))
	}
}

// sandboxedReadFile returns a goja-callable function reading a file relative
// to WorkDir, rejecting any path that escapes it (no "..", no absolute
// override).
func (c *ScriptCollector) sandboxedReadFile(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if c.cfg.WorkDir == "" {
			panic(vm.ToValue(map[string]interface{}{"kind": string(errkind.ConfigError), "message": "readFile is disabled: no work_dir configured"}))
		}
		if len(call.Arguments) == 0 {
			panic(vm.ToValue(map[string]interface{}{"kind": string(errkind.ConfigError), "message": "readFile requires a path argument"}))
		}
		rel := call.Arguments[0].String()
		joined := filepath.Join(c.cfg.WorkDir, rel)
		cleaned := filepath.Clean(joined)
		if !strings.HasPrefix(cleaned, filepath.Clean(c.cfg.WorkDir)+string(filepath.Separator)) {
			panic(vm.ToValue(map[string]interface{}{"kind": string(errkind.ConfigError), "message": "path escapes work_dir"}))
		}
		data, err := osReadFile(cleaned)
		if err != nil {
			panic(vm.ToValue(map[string]interface{}{"kind": string(errkind.ConfigError), "message": err.Error()}))
		}
		return vm.ToValue(string(data))
	}
}

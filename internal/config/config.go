// Package config loads trendforge-ingest's configuration: a YAML file
// overlaid with environment variables, following the teacher's
// file-then-env idiom from pkg/config.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// SchedulerConfig controls the Scheduler's bounded concurrency and tick
// defaults, per §6's `scheduler.*` options.
type SchedulerConfig struct {
	MaxConcurrency         int `json:"max_concurrency" env:"SCHEDULER_MAX_CONCURRENCY"`
	DefaultTimeoutSeconds  int `json:"default_timeout_seconds" env:"SCHEDULER_DEFAULT_TIMEOUT_SECONDS"`
	TickRetryMax           int `json:"tick_retry_max" env:"SCHEDULER_TICK_RETRY_MAX"`
	UnhealthyThreshold     int `json:"unhealthy_threshold" env:"SCHEDULER_UNHEALTHY_THRESHOLD"`
	UnhealthyCooldownSecs  int `json:"unhealthy_cooldown_seconds" env:"SCHEDULER_UNHEALTHY_COOLDOWN_SECONDS"`
	PollIntervalSeconds    int `json:"poll_interval_seconds" env:"SCHEDULER_POLL_INTERVAL_SECONDS"`
	RateLimitWindowSeconds int `json:"rate_limit_window_seconds" env:"SCHEDULER_RATE_LIMIT_WINDOW_SECONDS"`
	HistoryLimit           int `json:"history_limit" env:"SCHEDULER_HISTORY_LIMIT"`
}

// DedupConfig controls the Deduplicator stage, per §6's `dedup.*` options.
type DedupConfig struct {
	SemanticThreshold float64 `json:"semantic_threshold" env:"DEDUP_SEMANTIC_THRESHOLD"`
	LookbackDays      int     `json:"lookback_days" env:"DEDUP_LOOKBACK_DAYS"`
}

// ClusterConfig controls the Clusterer stage, per §6's `cluster.*` option.
type ClusterConfig struct {
	Threshold     float64 `json:"threshold" env:"CLUSTER_THRESHOLD"`
	MinSize       int     `json:"min_size" env:"CLUSTER_MIN_SIZE"`
	LookbackHours int     `json:"lookback_hours" env:"CLUSTER_LOOKBACK_HOURS"`
}

// RankerWeights are the Ranker stage's non-negative scoring weights, per
// §6's `ranker.weights.*` options.
type RankerWeights struct {
	Engagement float64 `json:"engagement" env:"RANKER_WEIGHT_ENGAGEMENT"`
	Velocity   float64 `json:"velocity" env:"RANKER_WEIGHT_VELOCITY"`
	Freshness  float64 `json:"freshness" env:"RANKER_WEIGHT_FRESHNESS"`
	Age        float64 `json:"age" env:"RANKER_WEIGHT_AGE"`
}

// RankerConfig controls the Ranker stage, per §6's `ranker.*` options.
type RankerConfig struct {
	Weights      RankerWeights `json:"weights"`
	TauHours     float64       `json:"tau_hours" env:"RANKER_TAU_HOURS"`
	DiversityCap int           `json:"diversity_cap" env:"RANKER_DIVERSITY_CAP"`
}

// RunConfig controls one pipeline run's overall deadline, per §6's
// `run.overall_deadline_seconds` option.
type RunConfig struct {
	OverallDeadlineSeconds int `json:"overall_deadline_seconds" env:"RUN_OVERALL_DEADLINE_SECONDS"`
}

// StorageConfig controls the Storage Facade's backend, per §6's
// `storage.*` options.
type StorageConfig struct {
	Backend     string `json:"backend" env:"STORAGE_BACKEND"`
	VectorDim   int    `json:"vector_dim" env:"STORAGE_VECTOR_DIM"`
	PostgresDSN string `json:"postgres_dsn" env:"STORAGE_POSTGRES_DSN"`
	RedisAddr   string `json:"redis_addr" env:"STORAGE_REDIS_ADDR"`
}

// ControlConfig controls the control surface's HTTP bind address, per §6's
// `control.listen_addr` option.
type ControlConfig struct {
	ListenAddr         string `json:"listen_addr" env:"CONTROL_LISTEN_ADDR"`
	IdempotencyTTLMins int    `json:"idempotency_ttl_minutes" env:"CONTROL_IDEMPOTENCY_TTL_MINUTES"`
}

// LoggingConfig controls application logging, matching the teacher's own
// LoggingConfig shape.
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// HTTPPluginFields mirrors plugin.FieldMap in YAML-friendly form: jsonpath
// expressions selecting each RawItem field out of one collected item.
type HTTPPluginFields struct {
	ItemsPath   string            `json:"items_path" yaml:"items_path"`
	SourceID    string            `json:"source_id" yaml:"source_id"`
	Title       string            `json:"title" yaml:"title"`
	Description string            `json:"description" yaml:"description"`
	Content     string            `json:"content" yaml:"content"`
	URL         string            `json:"url" yaml:"url"`
	Author      string            `json:"author" yaml:"author"`
	PublishedAt string            `json:"published_at" yaml:"published_at"`
	Engagement  map[string]string `json:"engagement" yaml:"engagement"`
}

// HTTPPluginConfig declares one HTTP/JSON collector to register at startup,
// letting operators add trend sources without a code change.
type HTTPPluginConfig struct {
	Name                string           `json:"name" yaml:"name"`
	URLs                []string         `json:"urls" yaml:"urls"`
	AuthHeader          string           `json:"auth_header" yaml:"auth_header"`
	AuthToken           string           `json:"auth_token" yaml:"auth_token"`
	Fields              HTTPPluginFields `json:"fields" yaml:"fields"`
	Schedule            string           `json:"schedule" yaml:"schedule"`
	TimeoutSeconds      int              `json:"timeout_seconds" yaml:"timeout_seconds"`
	RateLimitPerHour    int              `json:"rate_limit_per_hour" yaml:"rate_limit_per_hour"`
	ConcurrencyHint     int              `json:"concurrency_hint" yaml:"concurrency_hint"`
	StartDisabled       bool             `json:"start_disabled" yaml:"start_disabled"`
}

// Config is the top-level configuration structure.
type Config struct {
	Scheduler SchedulerConfig    `json:"scheduler"`
	Dedup     DedupConfig        `json:"dedup"`
	Cluster   ClusterConfig      `json:"cluster"`
	Ranker    RankerConfig       `json:"ranker"`
	Run       RunConfig          `json:"run"`
	Storage   StorageConfig      `json:"storage"`
	Control   ControlConfig      `json:"control"`
	Logging   LoggingConfig      `json:"logging"`
	Plugins   []HTTPPluginConfig `json:"plugins" yaml:"plugins"`
}

// New returns a configuration populated with the defaults named throughout
// SPEC_FULL.md's configuration reference.
func New() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			MaxConcurrency:         8,
			DefaultTimeoutSeconds:  300,
			TickRetryMax:           3,
			UnhealthyThreshold:     3,
			UnhealthyCooldownSecs:  60,
			PollIntervalSeconds:    5,
			RateLimitWindowSeconds: 3600,
			HistoryLimit:           1000,
		},
		Dedup: DedupConfig{
			SemanticThreshold: 0.92,
			LookbackDays:      3,
		},
		Cluster: ClusterConfig{
			Threshold:     0.80,
			MinSize:       2,
			LookbackHours: 48,
		},
		Ranker: RankerConfig{
			Weights:      RankerWeights{Engagement: 0.4, Velocity: 0.3, Freshness: 0.2, Age: 0.1},
			TauHours:     12,
			DiversityCap: 3,
		},
		Run: RunConfig{OverallDeadlineSeconds: 600},
		Storage: StorageConfig{
			Backend:   "memory",
			VectorDim: 256,
		},
		Control: ControlConfig{
			ListenAddr:         "0.0.0.0:8080",
			IdempotencyTTLMins: 24 * 60,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "trendforge-ingest",
		},
	}
}

// Load loads configuration from a YAML file (CONFIG_FILE, or
// configs/config.yaml if unset) overlaid with environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors when no tagged fields are present in the
		// environment; treat that as "no overrides" so local runs work
		// without exporting every variable.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	// yaml.v3 matches lowercased field names, not the json tags, so the
	// document is decoded generically and re-read through encoding/json to
	// honour the snake_case keys.
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, cfg)
}

// Validate rejects configurations §6 and §7 would make nonsensical:
// negative ranker weights, an out-of-range dedup threshold, and a tick
// retry count outside the documented 0-5 band.
func (c *Config) Validate() error {
	if c.Dedup.SemanticThreshold < 0 || c.Dedup.SemanticThreshold > 1 {
		return fmt.Errorf("dedup.semantic_threshold must be in [0,1], got %f", c.Dedup.SemanticThreshold)
	}
	if c.Scheduler.TickRetryMax < 0 || c.Scheduler.TickRetryMax > 5 {
		return fmt.Errorf("scheduler.tick_retry_max must be in [0,5], got %d", c.Scheduler.TickRetryMax)
	}
	w := c.Ranker.Weights
	for name, v := range map[string]float64{"engagement": w.Engagement, "velocity": w.Velocity, "freshness": w.Freshness, "age": w.Age} {
		if v < 0 {
			return fmt.Errorf("ranker.weights.%s must be non-negative, got %f", name, v)
		}
	}
	return nil
}

// PollInterval is the Scheduler's poll tick as a time.Duration.
func (c SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// DefaultTimeout is the Scheduler's per-plugin fallback timeout as a
// time.Duration.
func (c SchedulerConfig) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutSeconds) * time.Second
}

// UnhealthyCooldown is the Scheduler's unhealthy-plugin cooldown as a
// time.Duration.
func (c SchedulerConfig) UnhealthyCooldown() time.Duration {
	return time.Duration(c.UnhealthyCooldownSecs) * time.Second
}

// RateLimitWindow is the Scheduler's rate-limit window as a time.Duration.
func (c SchedulerConfig) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// OverallDeadline is one pipeline run's deadline as a time.Duration.
func (c RunConfig) OverallDeadline() time.Duration {
	return time.Duration(c.OverallDeadlineSeconds) * time.Second
}

// IdempotencyTTL is the control surface's Idempotency-Key retention window.
func (c ControlConfig) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLMins) * time.Minute
}

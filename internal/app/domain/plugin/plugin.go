// Package plugin holds the collector plugin's static metadata and its
// runtime health record.
package plugin

import "time"

// Metadata describes a collector's static configuration: category tag,
// preferred hourly rate limit, a cron-like schedule expression, timeout, and
// an optional concurrency hint (1 forces non-overlapping ticks).
type Metadata struct {
	Category         string
	RateLimitPerHour int
	CronExpression   string
	TimeoutSeconds   int
	ConcurrencyHint  int
}

// Registration pairs a plugin's unique name with its metadata and an
// enable flag; the Registry is the only place plugins are looked up.
type Registration struct {
	Name     string
	Metadata Metadata
	Enabled  bool
}

// Health is the per-plugin record the HealthTracker maintains: last-run,
// last-success, last-error text, consecutive-failure count, total runs, and
// success rate over the retained history window.
type Health struct {
	PluginName          string
	LastRun             time.Time
	LastSuccess         time.Time
	LastError           string
	ConsecutiveFailures int
	TotalRuns           int
	SuccessRate         float64
}

// Unhealthy reports whether the plugin has crossed the given consecutive
// failure threshold.
func (h Health) Unhealthy(threshold int) bool {
	return h.ConsecutiveFailures >= threshold
}

package scheduler

import (
	"sync"
	"time"

	domain "github.com/trendforge/ingest/internal/app/domain/plugin"
)

const defaultHistoryLimit = 1000

// outcome is one retained success/failure snapshot backing the rolling
// success rate.
type outcome struct {
	success bool
	at      time.Time
}

type pluginRecord struct {
	health  domain.Health
	history []outcome // bounded ring, oldest evicted first
}

// HealthTracker maintains per-plugin run history: last-run/last-success
// timestamps, the current consecutive-failure streak, and a bounded window
// of past outcomes the success rate is computed over.
type HealthTracker struct {
	mu           sync.Mutex
	historyLimit int
	records      map[string]*pluginRecord
}

// NewHealthTracker builds a tracker retaining the last historyLimit outcomes
// per plugin (default 1000 when <= 0).
func NewHealthTracker(historyLimit int) *HealthTracker {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &HealthTracker{
		historyLimit: historyLimit,
		records:      make(map[string]*pluginRecord),
	}
}

func (t *HealthTracker) recordFor(name string) *pluginRecord {
	r, ok := t.records[name]
	if !ok {
		r = &pluginRecord{health: domain.Health{PluginName: name}}
		t.records[name] = r
	}
	return r
}

// RecordSuccess logs a successful tick, resetting the consecutive-failure
// streak to zero.
func (t *HealthTracker) RecordSuccess(name string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.recordFor(name)
	r.health.LastRun = at
	r.health.LastSuccess = at
	r.health.LastError = ""
	r.health.ConsecutiveFailures = 0
	r.health.TotalRuns++
	t.appendOutcome(r, outcome{success: true, at: at})
}

// RecordFailure logs a failed tick with the causing error's message.
func (t *HealthTracker) RecordFailure(name string, err error, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.recordFor(name)
	r.health.LastRun = at
	if err != nil {
		r.health.LastError = err.Error()
	}
	r.health.ConsecutiveFailures++
	r.health.TotalRuns++
	t.appendOutcome(r, outcome{success: false, at: at})
}

func (t *HealthTracker) appendOutcome(r *pluginRecord, o outcome) {
	r.history = append(r.history, o)
	if len(r.history) > t.historyLimit {
		r.history = r.history[len(r.history)-t.historyLimit:]
	}

	successes := 0
	for _, h := range r.history {
		if h.success {
			successes++
		}
	}
	r.health.SuccessRate = float64(successes) / float64(len(r.history))
}

// Status returns the current health record for name. A plugin with no
// recorded history returns a zero-value record with SuccessRate 1 (no
// evidence of trouble yet).
func (t *HealthTracker) Status(name string) domain.Health {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[name]
	if !ok {
		return domain.Health{PluginName: name, SuccessRate: 1}
	}
	return r.health
}

// Unhealthy reports whether name has crossed the given consecutive-failure
// threshold (default 3 when <= 0).
func (t *HealthTracker) Unhealthy(name string, threshold int) bool {
	if threshold <= 0 {
		threshold = 3
	}
	return t.Status(name).Unhealthy(threshold)
}

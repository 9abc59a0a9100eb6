package scheduler

import (
	"sync"
	"time"

	"github.com/trendforge/ingest/infrastructure/ratelimit"
)

// PluginRateLimiter enforces a sliding-window quota per plugin on top of a
// infrastructure/ratelimit.RateLimiter token-bucket burst shaper. The
// sliding window is evaluated lazily: old timestamps are evicted on each
// Allow call, not on a background sweep.
type PluginRateLimiter struct {
	window time.Duration

	mu      sync.Mutex
	entries map[string]*pluginQuota
}

type pluginQuota struct {
	limitPerWindow int
	timestamps     []time.Time
	burst          *ratelimit.RateLimiter
	burstInterval  time.Duration
}

// NewPluginRateLimiter builds a limiter with the given sliding-window period
// (default 1 hour when zero).
func NewPluginRateLimiter(window time.Duration) *PluginRateLimiter {
	if window <= 0 {
		window = time.Hour
	}
	return &PluginRateLimiter{
		window:  window,
		entries: make(map[string]*pluginQuota),
	}
}

// quotaFor returns (creating if absent) the quota bucket for a plugin, sized
// from its declared hourly limit. A limit <= 0 means unlimited.
func (l *PluginRateLimiter) quotaFor(name string, limitPerHour int) *pluginQuota {
	l.mu.Lock()
	defer l.mu.Unlock()

	q, ok := l.entries[name]
	if !ok {
		q = &pluginQuota{limitPerWindow: limitPerHour}
		if limitPerHour > 0 {
			// burst = limit/10 (at least 1), refilled at limit per window,
			// so a plugin can't spend its whole hourly allowance in one shot
			perSecond := float64(limitPerHour) / l.window.Seconds()
			burst := limitPerHour / 10
			if burst < 1 {
				burst = 1
			}
			q.burst = ratelimit.New(ratelimit.RateLimitConfig{RequestsPerSecond: perSecond, Burst: burst})
			q.burstInterval = time.Duration(float64(time.Second) / perSecond)
		}
		l.entries[name] = q
	}
	return q
}

// Allow reports whether plugin may run now given limitPerHour (from its
// Metadata), and if not, how long the caller should wait before retrying.
func (l *PluginRateLimiter) Allow(name string, limitPerHour int) (bool, time.Duration) {
	if limitPerHour <= 0 {
		return true, 0
	}

	q := l.quotaFor(name, limitPerHour)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-l.window)

	kept := q.timestamps[:0]
	for _, ts := range q.timestamps {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	q.timestamps = kept

	if len(q.timestamps) >= q.limitPerWindow {
		oldest := q.timestamps[0]
		retryAfter := oldest.Add(l.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter
	}

	if q.burst != nil && !q.burst.Allow() {
		return false, q.burstInterval
	}

	q.timestamps = append(q.timestamps, now)
	return true, 0
}

// Remaining reports how many admissions are left in the current window for
// plugin, given limitPerHour. Unlimited plugins report -1.
func (l *PluginRateLimiter) Remaining(name string, limitPerHour int) int {
	if limitPerHour <= 0 {
		return -1
	}

	q := l.quotaFor(name, limitPerHour)

	l.mu.Lock()
	defer l.mu.Unlock()

	windowStart := time.Now().Add(-l.window)
	count := 0
	for _, ts := range q.timestamps {
		if ts.After(windowStart) {
			count++
		}
	}
	remaining := limitPerHour - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Reset clears all tracked admissions for every plugin. Used by tests and by
// administrative reset operations.
func (l *PluginRateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*pluginQuota)
}

// Package scheduler drives registered collector plugins on cron-like
// schedules, enforcing health and rate-limit preconditions before each tick
// and handing collected items off to a pipeline dispatcher.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/trendforge/ingest/infrastructure/errkind"
	core "github.com/trendforge/ingest/internal/app/core/service"
	"github.com/trendforge/ingest/internal/app/domain/item"
	domainplugin "github.com/trendforge/ingest/internal/app/domain/plugin"
	"github.com/trendforge/ingest/internal/app/plugin"
	"github.com/trendforge/ingest/internal/app/system"
	"github.com/trendforge/ingest/pkg/logger"
)

// Ensure Scheduler implements system.Service.
var _ system.Service = (*Scheduler)(nil)

// ItemDispatcher hands off a plugin's freshly collected items (to the
// Converter, and from there the Pipeline). It is the Scheduler's only
// coupling to the rest of the ingestion path.
type ItemDispatcher interface {
	Dispatch(ctx context.Context, pluginName string, items []item.Raw) error
}

// ItemDispatcherFunc adapts a function to ItemDispatcher.
type ItemDispatcherFunc func(ctx context.Context, pluginName string, items []item.Raw) error

func (f ItemDispatcherFunc) Dispatch(ctx context.Context, pluginName string, items []item.Raw) error {
	if f == nil {
		return nil
	}
	return f(ctx, pluginName, items)
}

// TickStatus is the terminal state of one plugin tick.
type TickStatus string

const (
	TickCompleted TickStatus = "completed"
	TickFailed    TickStatus = "failed"
	TickSkipped   TickStatus = "skipped"
)

// TickResult records the outcome of one plugin tick, for logging and for
// callers (e.g. the control surface's run-now endpoint) that want to observe
// the result synchronously.
type TickResult struct {
	Plugin     string
	Status     TickStatus
	Reason     string // set when Status == Skipped or Failed
	ItemCount  int
	Duration   time.Duration
	RetryAfter time.Duration
}

// Config controls the Scheduler's bounded concurrency and tick defaults.
type Config struct {
	MaxConcurrency     int
	DefaultTimeout     time.Duration
	TickRetryMax       int
	UnhealthyThreshold int
	UnhealthyCooldown  time.Duration
	PollInterval       time.Duration
	RateLimitWindow    time.Duration
	HistoryLimit       int
}

// DefaultConfig returns the defaults named in the configuration reference.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:     8,
		DefaultTimeout:     300 * time.Second,
		TickRetryMax:       3,
		UnhealthyThreshold: 3,
		UnhealthyCooldown:  60 * time.Second,
		PollInterval:       5 * time.Second,
		RateLimitWindow:    time.Hour,
		HistoryLimit:       1000,
	}
}

// Scheduler polls the plugin registry and drives each enabled plugin on its
// cron schedule, respecting health, rate-limit, and concurrency
// preconditions before every tick.
type Scheduler struct {
	cfg      Config
	registry *plugin.Registry
	health   *HealthTracker
	limiter  *PluginRateLimiter
	parser   cron.Parser
	log      *logger.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	running    bool
	dispatcher ItemDispatcher
	tracer     core.Tracer

	sem         chan struct{}
	nextRun     map[string]time.Time
	serialLocks map[string]*sync.Mutex
}

// NewScheduler builds a scheduler over registry, using cfg for its bounded
// concurrency and precondition thresholds.
func NewScheduler(registry *plugin.Registry, cfg Config, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultConfig().DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Scheduler{
		cfg:         cfg,
		registry:    registry,
		health:      NewHealthTracker(cfg.HistoryLimit),
		limiter:     NewPluginRateLimiter(cfg.RateLimitWindow),
		parser:      cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		log:         log,
		tracer:      core.NoopTracer,
		sem:         make(chan struct{}, cfg.MaxConcurrency),
		nextRun:     make(map[string]time.Time),
		serialLocks: make(map[string]*sync.Mutex),
	}
}

// WithDispatcher registers the item dispatcher invoked after a successful
// collect.
func (s *Scheduler) WithDispatcher(d ItemDispatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatcher = d
}

// WithTracer configures a tracer for tick spans.
func (s *Scheduler) WithTracer(tracer core.Tracer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tracer == nil {
		tracer = core.NoopTracer
	}
	s.tracer = tracer
}

// Health returns the current health record for a registered plugin, for
// the control surface's /plugins and /health endpoints.
func (s *Scheduler) Health(name string) domainplugin.Health {
	return s.health.Status(name)
}

// UnhealthyCount reports how many registered plugins, enabled or not, are
// currently unhealthy
// by the scheduler's configured threshold, for /health's aggregate.
func (s *Scheduler) UnhealthyCount() int {
	count := 0
	for _, name := range s.registry.List(false) {
		if s.health.Unhealthy(name, s.cfg.UnhealthyThreshold) {
			count++
		}
	}
	return count
}

// QueueDepth reports how many tick slots are currently occupied, for
// /health's backpressure signal.
func (s *Scheduler) QueueDepth() int {
	return len(s.sem)
}

// Backpressured reports whether every concurrency slot is currently in use.
func (s *Scheduler) Backpressured() bool {
	return len(s.sem) >= cap(s.sem)
}

func (s *Scheduler) Name() string { return "collector-scheduler" }

func (s *Scheduler) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "collector-scheduler",
		Domain:       "ingestion",
		Layer:        core.LayerEngine,
		Capabilities: []string{"schedule", "dispatch", "rate-limit", "health-track"},
	}
}

// Start begins the background polling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.poll(runCtx)
			}
		}
	}()

	s.log.Info("scheduler started")
	return nil
}

// Stop halts the polling loop and waits for in-flight ticks to finish or ctx
// to be cancelled, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("scheduler stopped")
	return nil
}

// poll checks every enabled plugin's schedule and launches a tick for any
// plugin whose next-run time has arrived, in registration order (the
// Registry's List order) so same-instant ties favor earlier registrations.
func (s *Scheduler) poll(ctx context.Context) {
	now := time.Now()
	for _, name := range s.registry.List(true) {
		c, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		meta := c.Metadata()

		s.mu.Lock()
		due, known := s.nextRun[name]
		s.mu.Unlock()

		if !known {
			next := s.scheduleNext(meta.CronExpression, now)
			s.mu.Lock()
			s.nextRun[name] = next
			s.mu.Unlock()
			continue
		}
		if due.After(now) {
			continue
		}

		next := s.scheduleNext(meta.CronExpression, now)
		s.mu.Lock()
		s.nextRun[name] = next
		s.mu.Unlock()

		s.launchTick(ctx, name, c, false)
	}
}

func (s *Scheduler) scheduleNext(expr string, from time.Time) time.Time {
	if expr == "" {
		return from.Add(s.cfg.PollInterval)
	}
	schedule, err := s.parser.Parse(expr)
	if err != nil {
		s.log.WithError(err).WithField("expression", expr).Warn("invalid cron expression, falling back to poll interval")
		return from.Add(s.cfg.PollInterval)
	}
	return schedule.Next(from)
}

// RunNow triggers an immediate tick outside the normal schedule. When
// overrideChecks is true, the HealthTracker and RateLimiter preconditions
// are skipped. The HealthTracker still records the outcome; the tick is not
// recorded against the plugin's rate limit.
func (s *Scheduler) RunNow(ctx context.Context, name string, overrideChecks bool) TickResult {
	c, ok := s.registry.Get(name)
	if !ok || !s.registry.Enabled(name) {
		return TickResult{Plugin: name, Status: TickSkipped, Reason: "disabled"}
	}
	return s.runTick(ctx, name, c, overrideChecks)
}

func (s *Scheduler) launchTick(ctx context.Context, name string, c plugin.Collector, overrideChecks bool) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runTick(ctx, name, c, overrideChecks)
	}()
}

func (s *Scheduler) serialLockFor(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.serialLocks[name]
	if !ok {
		l = &sync.Mutex{}
		s.serialLocks[name] = l
	}
	return l
}

// collectWithRetry runs collect once, retrying only transient errors
// (errkind.NetworkError / errkind.QuotaError) with exponential backoff
// starting at 250ms, doubling, capped at 5s, for up to TickRetryMax retries
// beyond the initial attempt (§4.5: TickRetryMax=3 means 3 retries — 4
// attempts total — at 250ms/500ms/1s). Permanent errors (ConfigError,
// ParseError, ...) return immediately.
func (s *Scheduler) collectWithRetry(ctx context.Context, c plugin.Collector, out *[]item.Raw) error {
	retryMax := s.cfg.TickRetryMax
	if retryMax <= 0 {
		retryMax = 3
	}
	maxAttempts := retryMax + 1
	delay := 250 * time.Millisecond
	const maxDelay = 5 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		items, err := c.Collect(ctx)
		if err == nil {
			*out = items
			return nil
		}
		lastErr = err

		if !errkind.Of(err).Transient() || attempt == maxAttempts {
			return err
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return lastErr
}

// runTick executes the per-tick protocol from the scheduling contract:
// PreCheck (health, rate limit), Running (collect under a deadline with
// bounded retry on transient errors), Finalizing (dispatch + record
// outcome).
func (s *Scheduler) runTick(ctx context.Context, name string, c plugin.Collector, overrideChecks bool) TickResult {
	meta := c.Metadata()
	start := time.Now()

	if !overrideChecks {
		if s.health.Unhealthy(name, s.cfg.UnhealthyThreshold) {
			status := s.health.Status(name)
			if time.Since(status.LastRun) < s.cfg.UnhealthyCooldown {
				return TickResult{Plugin: name, Status: TickSkipped, Reason: "unhealthy"}
			}
		}
		if allowed, retryAfter := s.limiter.Allow(name, meta.RateLimitPerHour); !allowed {
			return TickResult{Plugin: name, Status: TickSkipped, Reason: "rate_limited", RetryAfter: retryAfter}
		}
	}

	if meta.ConcurrencyHint == 1 {
		lock := s.serialLockFor(name)
		if !lock.TryLock() {
			return TickResult{Plugin: name, Status: TickSkipped, Reason: "contended"}
		}
		defer lock.Unlock()
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return TickResult{Plugin: name, Status: TickSkipped, Reason: "shutting_down"}
	}

	timeout := time.Duration(meta.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	tickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.mu.Lock()
	tracer := s.tracer
	dispatcher := s.dispatcher
	s.mu.Unlock()

	spanCtx, finishSpan := tracer.StartSpan(tickCtx, "scheduler.tick", map[string]string{"plugin": name})

	var items []item.Raw
	collectErr := s.collectWithRetry(spanCtx, c, &items)
	duration := time.Since(start)

	if collectErr != nil {
		finishSpan(collectErr)
		s.health.RecordFailure(name, collectErr, time.Now())
		if classified, ok := errkind.As(collectErr); ok {
			return TickResult{Plugin: name, Status: TickFailed, Reason: string(classified.Kind), Duration: duration, RetryAfter: classified.RetryAfter}
		}
		return TickResult{Plugin: name, Status: TickFailed, Reason: collectErr.Error(), Duration: duration}
	}

	if dispatcher != nil {
		if err := dispatcher.Dispatch(spanCtx, name, items); err != nil {
			finishSpan(err)
			s.health.RecordFailure(name, err, time.Now())
			return TickResult{Plugin: name, Status: TickFailed, Reason: err.Error(), Duration: duration}
		}
	}

	finishSpan(nil)
	s.health.RecordSuccess(name, time.Now())
	return TickResult{Plugin: name, Status: TickCompleted, ItemCount: len(items), Duration: duration}
}

package scheduler_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trendforge/ingest/internal/app/scheduler"
)

func TestHealthTrackerUnknownPluginReportsHealthy(t *testing.T) {
	h := scheduler.NewHealthTracker(0)
	require.False(t, h.Unhealthy("ghost", 3))
	require.Equal(t, float64(1), h.Status("ghost").SuccessRate)
}

func TestHealthTrackerConsecutiveFailuresTriggerUnhealthy(t *testing.T) {
	h := scheduler.NewHealthTracker(0)
	now := time.Now()

	h.RecordFailure("p", errors.New("boom"), now)
	h.RecordFailure("p", errors.New("boom"), now)
	require.False(t, h.Unhealthy("p", 3))

	h.RecordFailure("p", errors.New("boom"), now)
	require.True(t, h.Unhealthy("p", 3))

	status := h.Status("p")
	require.Equal(t, 3, status.ConsecutiveFailures)
	require.Equal(t, 3, status.TotalRuns)
	require.Equal(t, "boom", status.LastError)
}

func TestHealthTrackerSuccessResetsStreak(t *testing.T) {
	h := scheduler.NewHealthTracker(0)
	now := time.Now()

	h.RecordFailure("p", errors.New("x"), now)
	h.RecordFailure("p", errors.New("x"), now)
	h.RecordSuccess("p", now)

	status := h.Status("p")
	require.Equal(t, 0, status.ConsecutiveFailures)
	require.False(t, h.Unhealthy("p", 3))
}

func TestHealthTrackerSuccessRateOverHistory(t *testing.T) {
	h := scheduler.NewHealthTracker(0)
	now := time.Now()

	h.RecordSuccess("p", now)
	h.RecordSuccess("p", now)
	h.RecordFailure("p", errors.New("x"), now)
	h.RecordFailure("p", errors.New("x"), now)

	require.Equal(t, 0.5, h.Status("p").SuccessRate)
}

func TestHealthTrackerHistoryIsBounded(t *testing.T) {
	h := scheduler.NewHealthTracker(2)
	now := time.Now()

	h.RecordFailure("p", errors.New("x"), now)
	h.RecordSuccess("p", now)
	h.RecordSuccess("p", now)

	// only the last 2 outcomes are retained: success, success -> rate 1.0
	require.Equal(t, float64(1), h.Status("p").SuccessRate)
}

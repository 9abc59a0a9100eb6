package control

import (
	"sync"

	"github.com/trendforge/ingest/internal/app/pipeline"
)

// runHub fans a single run's stage events out to every websocket watcher
// currently subscribed to it. Unlike the teacher's multi-topic broadcast
// hub, at most a handful of runs are ever in flight at once here, so one
// map of bounded channels per run-in-progress is enough; there is no
// register/unregister goroutine loop to run.
type runHub struct {
	mu   sync.Mutex
	subs map[string][]chan pipeline.StageEvent
}

func newRunHub() *runHub {
	return &runHub{subs: make(map[string][]chan pipeline.StageEvent)}
}

// Subscribe returns a channel receiving every subsequent StageEvent for
// runID, plus an unsubscribe func the caller must invoke when done watching.
func (h *runHub) Subscribe(runID string) (<-chan pipeline.StageEvent, func()) {
	ch := make(chan pipeline.StageEvent, 16)
	h.mu.Lock()
	h.subs[runID] = append(h.subs[runID], ch)
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		list := h.subs[runID]
		for i, c := range list {
			if c == ch {
				h.subs[runID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, unsubscribe
}

// Publish implements ingestor.EventSink: it delivers ev to every current
// subscriber of runID, dropping the event for any watcher whose buffer is
// full rather than blocking the pipeline run.
func (h *runHub) Publish(runID string, ev pipeline.StageEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[runID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close implements ingestor.EventSink: it drops runID's subscriber list.
// Watchers' read loops notice the PipelineRun has gone terminal
// independently (via GET /runs/{id}) and close their own connections; Close
// here only stops Publish from bothering with a finished run's map entry.
func (h *runHub) Close(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, runID)
}

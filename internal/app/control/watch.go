package control

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/trendforge/ingest/internal/httputil"
)

const (
	watchWriteWait  = 10 * time.Second
	watchPingPeriod = 30 * time.Second
	watchPollPeriod = 500 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWatchRun upgrades to a websocket connection streaming one run's
// stage-completion events, per §6's `GET /runs/{run_id}/watch`. It closes
// cleanly, without ever upgrading a subscription, if the run is already
// terminal.
func (s *Server) handleWatchRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	pr, ok, err := s.facade.Runs.Get(r.Context(), runID)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	if !ok {
		httputil.NotFound(w, "run not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	if pr.IsTerminal() {
		_ = conn.WriteJSON(map[string]any{"event": "terminal", "run": pr})
		return
	}

	events, unsubscribe := s.hub.Subscribe(runID)
	defer unsubscribe()

	ping := time.NewTicker(watchPingPeriod)
	defer ping.Stop()
	poll := time.NewTicker(watchPollPeriod)
	defer poll.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteJSON(map[string]any{"event": "stage", "stage": ev}); err != nil {
				return
			}
		case <-poll.C:
			current, ok, err := s.facade.Runs.Get(r.Context(), runID)
			if err != nil || !ok {
				continue
			}
			if current.IsTerminal() {
				conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
				_ = conn.WriteJSON(map[string]any{"event": "terminal", "run": current})
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

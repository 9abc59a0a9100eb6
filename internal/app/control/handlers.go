package control

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trendforge/ingest/internal/app/domain/plugin"
	"github.com/trendforge/ingest/internal/httputil"
)

type runNowRequest struct {
	Plugin         string `json:"plugin"`
	OverrideChecks bool   `json:"override_checks"`
}

type runNowResponse struct {
	RunID string `json:"run_id"`
}

func (s *Server) handleRunNow(w http.ResponseWriter, r *http.Request) {
	var req runNowRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Plugin == "" {
		httputil.BadRequest(w, "plugin is required")
		return
	}
	if _, ok := s.registry.Get(req.Plugin); !ok {
		httputil.NotFound(w, "plugin not registered")
		return
	}

	pr := s.ingestor.TriggerRun(r.Context(), s.scheduler, req.Plugin, req.OverrideChecks)
	httputil.WriteJSON(w, http.StatusAccepted, runNowResponse{RunID: pr.ID})
}

type pluginSummary struct {
	Name    string        `json:"name"`
	Enabled bool          `json:"enabled"`
	Health  plugin.Health `json:"health"`
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	names := s.registry.List(false)
	out := make([]pluginSummary, 0, len(names))
	for _, name := range names {
		out = append(out, pluginSummary{
			Name:    name,
			Enabled: s.registry.Enabled(name),
			Health:  s.scheduler.Health(name),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type setEnabledRequest struct {
	Value bool `json:"value"`
}

func (s *Server) handleSetPluginEnabled(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req setEnabledRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if err := s.registry.SetEnabled(name, req.Value); err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"name": name, "enabled": req.Value})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
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
	httputil.WriteJSON(w, http.StatusOK, pr)
}

package control

import (
	"net/http"
	"os"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/trendforge/ingest/internal/httputil"
)

// healthResponse is the §6 `GET /health` aggregate: unhealthy plugin count,
// queue depth, a backpressure flag, and a process CPU/RSS snapshot.
type healthResponse struct {
	Status          string  `json:"status"`
	UnhealthyCount  int     `json:"unhealthy_plugin_count"`
	QueueDepth      int     `json:"queue_depth"`
	Backpressured   bool    `json:"backpressured"`
	ProcessCPUPct   float64 `json:"process_cpu_percent"`
	ProcessRSSBytes uint64  `json:"process_rss_bytes"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:         "healthy",
		UnhealthyCount: s.scheduler.UnhealthyCount(),
		QueueDepth:     s.scheduler.QueueDepth(),
		Backpressured:  s.scheduler.Backpressured(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpuPct, err := proc.CPUPercent(); err == nil {
			resp.ProcessCPUPct = cpuPct
		}
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			resp.ProcessRSSBytes = mem.RSS
		}
	}

	if resp.UnhealthyCount > 0 || resp.Backpressured {
		resp.Status = "degraded"
	}

	// Degraded is still a 200: /health reports plugin/queue state for
	// orchestrators to read, it does not gate traffic to this process.
	httputil.WriteJSON(w, http.StatusOK, resp)
}

package server

import (
	"net/http"
	"runtime"
	"time"
)

// HealthResponse is the health endpoint body.
type HealthResponse struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	Uptime        string `json:"uptime"`
	MemoryAllocMB uint64 `json:"memory_alloc_mb"`
	NumGoroutine  int    `json:"num_goroutine"`
}

// HealthHandler reports process liveness and backing store connectivity.
// Returns 503 when the store cannot be reached so load balancers stop
// routing here.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		resp := HealthResponse{
			Status:        "ok",
			Database:      "in-memory",
			Uptime:        time.Since(s.startTime).Round(time.Second).String(),
			MemoryAllocMB: memStats.Alloc / 1024 / 1024,
			NumGoroutine:  runtime.NumGoroutine(),
		}

		statusCode := http.StatusOK
		if s.pinger != nil {
			resp.Database = "redis"
			if err := s.pinger.Ping(r.Context()); err != nil {
				resp.Status = "degraded"
				resp.Database = "unreachable"
				statusCode = http.StatusServiceUnavailable
			}
		}

		writeJSON(w, statusCode, resp)
	}
}

package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/nerrad567/services-client/internal/services"
)

// maxReadyTimeout caps the timeout a caller may request from /ready.
const maxReadyTimeout = 30 * time.Second

// SystemMetrics is the /system response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	Services      services.Status `json:"services"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedEvents    uint64 `json:"dropped_events"`
}

// handleHealth reports "ok" when the facade is initialised and the bus is
// connected, "degraded" otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.services.Status(r.Context())
	status, code := "ok", http.StatusOK
	if !st.Initialized || !st.Connected {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":   status,
		"version":  s.version,
		"services": st,
	})
}

// handleReady asks the middleman whether it is answering.
// Query parameter timeout_ms overrides the configured ready timeout.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	var timeout time.Duration
	if v := r.URL.Query().Get("timeout_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			writeBadRequest(w, "timeout_ms must be a positive integer")
			return
		}
		timeout = min(time.Duration(ms)*time.Millisecond, maxReadyTimeout)
	}

	if !s.services.Ready(r.Context(), timeout) {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "middleman did not answer")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

// handleSystem returns runtime and client statistics.
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	writeJSON(w, http.StatusOK, SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount(), DroppedEvents: s.hub.Dropped()},
		Services:  s.services.Status(r.Context()),
	})
}

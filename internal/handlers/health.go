package handlers

import (
	"net/http"
	"runtime"
	"time"

	"video-thumbnail/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status       string `json:"status"`
	Ready        bool   `json:"ready"`
	Version      string `json:"version"`
	Uptime       string `json:"uptime"`
	CanCapture   bool   `json:"canCapture"`
	CanCache     bool   `json:"canCache"`
	CacheBackend string `json:"cacheBackend"`
	Handles      int    `json:"activeHandles"`

	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports service health. A service that cannot capture frames
// is degraded and answers 503; a missing cache only degrades the status.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	support := h.engine.Support()

	response := HealthResponse{
		Status:       statusHealthy,
		Ready:        support.CanCapture,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		CanCapture:   support.CanCapture,
		CanCache:     support.CanCache,
		CacheBackend: h.cache.Backend(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if h.handles != nil {
		response.Handles = h.handles.Len()
	}
	if !support.CanCapture || !support.CanCache {
		response.Status = statusDegraded
	}

	code := http.StatusOK
	if !support.CanCapture {
		code = http.StatusServiceUnavailable
	}
	writeJSONStatusCode(w, code, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 only when frames can be captured.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.engine.Support().CanCapture {
		writeJSONStatusCode(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSONStatusCode(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

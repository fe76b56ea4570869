package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"dealerhub-api/internal/model"
	"dealerhub-api/internal/repository"
	"dealerhub-api/pkg/apierror"
	"dealerhub-api/pkg/response"
)

// Sweeper runs one scheduler pass on demand.
type Sweeper interface {
	RunNow(ctx context.Context) int
}

// InFlightCounter reports how many syncs currently hold a lease.
type InFlightCounter interface {
	InFlight() int
}

// AdminInfo describes how this instance is wired.
type AdminInfo struct {
	CredentialDB string
	ListingDB    string
	GuardType    string
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	queue     repository.JobQueue
	syncs     InFlightCounter
	sweeper   Sweeper // nil when the scheduler is disabled
	info      AdminInfo
	startTime time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(queue repository.JobQueue, syncs InFlightCounter, sweeper Sweeper, info AdminInfo) *AdminHandler {
	return &AdminHandler{
		queue:     queue,
		syncs:     syncs,
		sweeper:   sweeper,
		info:      info,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["storage"] = map[string]string{
		"credentials": h.info.CredentialDB,
		"listings":    h.info.ListingDB,
		"guard":       h.info.GuardType,
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	syncStats := map[string]interface{}{
		"scheduler": h.sweeper != nil,
	}
	if h.syncs != nil {
		syncStats["in_flight"] = h.syncs.InFlight()
	}
	stats["sync"] = syncStats

	if h.queue != nil {
		counts, err := h.queue.CountJobs(ctx, model.JobQueued)
		if err == nil {
			stats["queued_jobs"] = counts
		} else {
			stats["queued_jobs"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// Sweep handles POST /api/v1/admin/sync/sweep
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		response.Error(w, apierror.ServiceUnavailable("sync scheduler is disabled"))
		return
	}
	response.OK(w, map[string]int{"dispatched": h.sweeper.RunNow(r.Context())})
}

// GetHealth handles GET /api/v1/admin/health
func (h *AdminHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

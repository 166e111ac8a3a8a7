package httpapi

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/coopfund/backoffice/internal/app/scheduler"
	"github.com/coopfund/backoffice/internal/app/services/dbsync"
	svcerrors "github.com/coopfund/backoffice/internal/errors"
	"github.com/coopfund/backoffice/internal/httputil"
)

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Ready(ctx); err != nil {
			h.log.WithContext(r.Context()).WithError(err).Warn("readiness check failed")
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.app.Dashboard.Summary(r.Context(), h.now())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *handler) syncStatus(w http.ResponseWriter, r *http.Request) {
	if h.app.Sync == nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]bool{"enabled": false})
		return
	}
	status, err := h.app.Sync.Status(r.Context())
	if err != nil {
		httputil.WriteError(w, r, svcerrors.Unavailable("sync state unavailable", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// triggerSync starts a run in the background and answers 202 immediately.
func (h *handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	if h.app.Sync == nil {
		httputil.WriteError(w, r, svcerrors.Unavailable("sync is not enabled on this node", nil))
		return
	}
	err := h.app.Sync.Start(context.WithoutCancel(r.Context()))
	if errors.Is(err, dbsync.ErrBusy) {
		httputil.WriteError(w, r, svcerrors.Conflict("a sync run is already in progress"))
		return
	}
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.app.Scheduler.Jobs())
}

func (h *handler) runJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	started := time.Now()
	err := h.app.RunJob(r.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		httputil.WriteError(w, r, svcerrors.NotFound("job", name))
		return
	case errors.Is(err, scheduler.ErrSkipped):
		httputil.WriteError(w, r, svcerrors.Conflict("job is already running"))
		return
	case err != nil:
		httputil.WriteError(w, r, svcerrors.Internal("job failed", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"job":      name,
		"status":   "completed",
		"duration": time.Since(started).String(),
	})
}

func (h *handler) listAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.audit.List(limit))
}

type systemStatus struct {
	Hostname      string  `json:"hostname,omitempty"`
	UptimeSeconds uint64  `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryTotal   uint64  `json:"memory_total"`
	MemoryUsed    uint64  `json:"memory_used"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskTotal     uint64  `json:"disk_total,omitempty"`
	DiskUsed      uint64  `json:"disk_used,omitempty"`
	DiskPercent   float64 `json:"disk_percent,omitempty"`
	Database      string  `json:"database"`
}

// systemStatus reports host resources. Probe failures leave fields zero.
func (h *handler) systemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := systemStatus{Goroutines: runtime.NumGoroutine(), Database: "ok"}

	if info, err := host.InfoWithContext(ctx); err == nil {
		st.Hostname = info.Hostname
		st.UptimeSeconds = info.Uptime
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		st.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		st.MemoryTotal = vm.Total
		st.MemoryUsed = vm.Used
		st.MemoryPercent = vm.UsedPercent
	}
	if h.opts.UploadDir != "" {
		if usage, err := disk.UsageWithContext(ctx, h.opts.UploadDir); err == nil {
			st.DiskTotal = usage.Total
			st.DiskUsed = usage.Used
			st.DiskPercent = usage.UsedPercent
		}
	}
	if h.opts.Ready != nil {
		if err := h.opts.Ready(ctx); err != nil {
			st.Database = "unavailable"
		}
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

package http

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
)

const healthTimeout = 2 * time.Second

// Check probes one dependency.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks  map[string]Check
	started time.Time
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks, started: time.Now()}
}

func (h *HealthHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// ProcessStats is a point-in-time view of this process and its host.
type ProcessStats struct {
	RSSBytes          uint64  `json:"rss_bytes"`
	ProcessCPUPercent float64 `json:"process_cpu_percent"`
	SystemCPUPercent  float64 `json:"system_cpu_percent"`
	SystemMemoryTotal uint64  `json:"system_memory_total_bytes"`
	SystemMemoryUsed  uint64  `json:"system_memory_used_bytes"`
	UptimeSeconds     int64   `json:"uptime_seconds"`
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			logrus.WithError(err).WithField("dependency", name).Warn("Health check failed")
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	c.JSON(status, gin.H{
		"status":  http.StatusText(status),
		"checks":  results,
		"process": h.stats(ctx),
	})
}

// stats reads what it can; a probe that fails leaves its fields zero.
func (h *HealthHandler) stats(ctx context.Context) ProcessStats {
	s := ProcessStats{UptimeSeconds: int64(time.Since(h.started).Seconds())}
	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil && info != nil {
			s.RSSBytes = info.RSS
		}
		if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
			s.ProcessCPUPercent = pct
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.SystemMemoryTotal = vm.Total
		s.SystemMemoryUsed = vm.Total - vm.Available
	}
	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		s.SystemCPUPercent = pcts[0]
	}
	return s
}

package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/radiarr/internal/scheduler"
	"github.com/jmylchreest/radiarr/internal/service"
	"github.com/jmylchreest/radiarr/pkg/httpclient"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"gorm.io/gorm"
)

// BreakerStatsProvider reports circuit breaker state, keyed by breaker name.
// The catalog client satisfies this for its per-mirror breakers.
type BreakerStatsProvider interface {
	BreakerStats() map[string]httpclient.CircuitBreakerStats
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *gorm.DB
	playback  *service.PlaybackService
	sched     *scheduler.Scheduler
	breakers  BreakerStatsProvider
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB sets the database connection for health checks.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// WithPlayback sets the playback service for session counts.
func (h *HealthHandler) WithPlayback(playback *service.PlaybackService) *HealthHandler {
	h.playback = playback
	return h
}

// WithScheduler sets the scheduler for maintenance job status.
func (h *HealthHandler) WithScheduler(sched *scheduler.Scheduler) *HealthHandler {
	h.sched = sched
	return h
}

// WithBreakerStats sets the circuit breaker stats source.
func (h *HealthHandler) WithBreakerStats(breakers BreakerStatsProvider) *HealthHandler {
	h.breakers = breakers
	return h
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service including system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getLivez",
		Method:      "GET",
		Path:        "/livez",
		Summary:     "Liveness probe",
		Description: "Returns ok while the process is able to serve requests",
		Tags:        []string{"System"},
	}, h.GetLivez)

	huma.Register(api, huma.Operation{
		OperationID: "getReadyz",
		Method:      "GET",
		Path:        "/readyz",
		Summary:     "Readiness probe",
		Description: "Returns ready once the database is reachable",
		Tags:        []string{"System"},
	}, h.GetReadyz)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Goroutines    int               `json:"goroutines"`
	CPUInfo       CPUInfo           `json:"cpu"`
	Memory        MemoryInfo        `json:"memory"`
	Sessions      SessionsHealth    `json:"sessions"`
	Components    HealthComponents  `json:"components"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// CPUInfo holds load information relative to the core count.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo holds system and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64           `json:"total_memory_mb"`
	UsedMemoryMB      float64           `json:"used_memory_mb"`
	FreeMemoryMB      float64           `json:"free_memory_mb"`
	AvailableMemoryMB float64           `json:"available_memory_mb"`
	SwapTotalMB       float64           `json:"swap_total_mb"`
	SwapUsedMB        float64           `json:"swap_used_mb"`
	ProcessMemory     ProcessMemoryInfo `json:"process"`
}

// ProcessMemoryInfo breaks down the server's process tree. Children of the
// server process are the live transcoders.
type ProcessMemoryInfo struct {
	MainProcessMB      float64 `json:"main_process_mb"`
	TranscoderMB       float64 `json:"transcoder_mb"`
	TotalProcessTreeMB float64 `json:"total_process_tree_mb"`
	PercentageOfSystem float64 `json:"percentage_of_system"`
	TranscoderCount    int     `json:"transcoder_count"`
}

// SessionsHealth is the relay registry occupancy snapshot.
type SessionsHealth struct {
	Active int `json:"active"`
	Max    int `json:"max"`
}

// HealthComponents groups per-component health detail.
type HealthComponents struct {
	Database        DatabaseHealth         `json:"database"`
	Scheduler       SchedulerHealth        `json:"scheduler"`
	CircuitBreakers []CircuitBreakerStatus `json:"circuit_breakers,omitempty"`
}

// DatabaseHealth reports connection pool state and ping latency.
type DatabaseHealth struct {
	Status                 string  `json:"status"`
	ConnectionPoolSize     int     `json:"connection_pool_size"`
	ActiveConnections      int     `json:"active_connections"`
	IdleConnections        int     `json:"idle_connections"`
	PoolUtilizationPercent float64 `json:"pool_utilization_percent"`
	ResponseTimeMS         float64 `json:"response_time_ms"`
	ResponseTimeStatus     string  `json:"response_time_status"`
}

// SchedulerHealth reports the maintenance scheduler and its next runs.
type SchedulerHealth struct {
	Status            string     `json:"status"`
	JournalNextRun    *time.Time `json:"journal_next_run,omitempty"`
	ProbeCacheNextRun *time.Time `json:"probe_cache_next_run,omitempty"`
}

// CircuitBreakerStatus is one named breaker's state in the health response.
type CircuitBreakerStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	cpuInfo := h.getCPUInfo()
	memInfo := h.getMemoryInfo()
	dbHealth := h.getDatabaseHealth(ctx)

	var sessions SessionsHealth
	if h.playback != nil {
		stats := h.playback.Sessions()
		sessions.Active = stats.ActiveSessions
		sessions.Max = stats.MaxSessions
	}

	var circuitBreakers []CircuitBreakerStatus
	if h.breakers != nil {
		stats := h.breakers.BreakerStats()
		circuitBreakers = make([]CircuitBreakerStatus, 0, len(stats))
		for name, s := range stats {
			circuitBreakers = append(circuitBreakers, CircuitBreakerStatus{
				Name:     name,
				State:    s.State.String(),
				Failures: s.Failures,
			})
		}
	}

	status := "healthy"
	if dbHealth.Status == "error" {
		status = "degraded"
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        status,
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			Goroutines:    runtime.NumGoroutine(),
			CPUInfo:       cpuInfo,
			Memory:        memInfo,
			Sessions:      sessions,
			Components: HealthComponents{
				Database:        dbHealth,
				Scheduler:       h.getSchedulerHealth(),
				CircuitBreakers: circuitBreakers,
			},
			Checks: map[string]string{
				"database": dbHealth.Status,
			},
		},
	}, nil
}

// LivezInput is the input for the liveness endpoint.
type LivezInput struct{}

// LivezOutput is the output for the liveness endpoint.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// GetLivez reports process liveness.
func (h *HealthHandler) GetLivez(ctx context.Context, input *LivezInput) (*LivezOutput, error) {
	resp := &LivezOutput{}
	resp.Body.Status = "ok"
	return resp, nil
}

// ReadyzInput is the input for the readiness endpoint.
type ReadyzInput struct{}

// ReadyzOutput is the output for the readiness endpoint.
type ReadyzOutput struct {
	Body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
}

// GetReadyz reports whether the service can take playback requests. The
// journal database gates readiness; the scheduler is reported but never
// blocks, since pruning can lag without affecting playback.
func (h *HealthHandler) GetReadyz(ctx context.Context, input *ReadyzInput) (*ReadyzOutput, error) {
	resp := &ReadyzOutput{}
	resp.Body.Status = "ready"
	resp.Body.Components = map[string]string{
		"scheduler": h.getSchedulerHealth().Status,
	}

	switch {
	case h.db == nil:
		resp.Body.Components["database"] = "not_configured"
		resp.Body.Status = "not_ready"
	default:
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			resp.Body.Components["database"] = "error"
			resp.Body.Status = "not_ready"
		} else {
			resp.Body.Components["database"] = "ok"
		}
	}

	return resp, nil
}

// getCPUInfo returns CPU load information.
func (h *HealthHandler) getCPUInfo() CPUInfo {
	cores := runtime.NumCPU()

	info := CPUInfo{
		Cores: cores,
	}

	loadAvg, err := load.Avg()
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15

		if cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(cores)) * 100
		}
	}

	return info
}

// getMemoryInfo returns memory usage information.
func (h *HealthHandler) getMemoryInfo() MemoryInfo {
	info := MemoryInfo{}

	vmStat, err := mem.VirtualMemory()
	if err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.FreeMemoryMB = float64(vmStat.Free) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}

	swapStat, err := mem.SwapMemory()
	if err == nil && swapStat != nil {
		info.SwapTotalMB = float64(swapStat.Total) / 1024 / 1024
		info.SwapUsedMB = float64(swapStat.Used) / 1024 / 1024
	}

	info.ProcessMemory = h.getProcessMemoryInfo(info.TotalMemoryMB)

	return info
}

// getProcessMemoryInfo returns the process tree breakdown.
func (h *HealthHandler) getProcessMemoryInfo(totalSystemMB float64) ProcessMemoryInfo {
	info := ProcessMemoryInfo{}

	pid := int32(os.Getpid())
	proc, err := process.NewProcess(pid)
	if err != nil {
		return info
	}

	memInfo, err := proc.MemoryInfo()
	if err == nil && memInfo != nil {
		info.MainProcessMB = float64(memInfo.RSS) / 1024 / 1024
		info.TotalProcessTreeMB = info.MainProcessMB

		if totalSystemMB > 0 {
			info.PercentageOfSystem = (info.MainProcessMB / totalSystemMB) * 100
		}
	}

	children, err := proc.Children()
	if err == nil {
		info.TranscoderCount = len(children)
		for _, child := range children {
			childMem, err := child.MemoryInfo()
			if err == nil && childMem != nil {
				childMB := float64(childMem.RSS) / 1024 / 1024
				info.TranscoderMB += childMB
				info.TotalProcessTreeMB += childMB
			}
		}
	}

	return info
}

// getSchedulerHealth reports the maintenance scheduler state.
func (h *HealthHandler) getSchedulerHealth() SchedulerHealth {
	if h.sched == nil {
		return SchedulerHealth{Status: "ok"}
	}

	status := h.sched.GetStatus()
	health := SchedulerHealth{
		Status:            "ok",
		JournalNextRun:    status.JournalNextRun,
		ProbeCacheNextRun: status.ProbeCacheNextRun,
	}
	if !status.Running {
		health.Status = "stopped"
	}
	return health
}

// getDatabaseHealth returns database health information.
func (h *HealthHandler) getDatabaseHealth(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{
		Status:             "ok",
		ResponseTimeStatus: "healthy",
	}

	if h.db == nil {
		health.Status = "unknown"
		return health
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		health.Status = "error"
		return health
	}

	stats := sqlDB.Stats()
	health.ConnectionPoolSize = stats.MaxOpenConnections
	health.ActiveConnections = stats.InUse
	health.IdleConnections = stats.Idle

	if stats.MaxOpenConnections > 0 {
		health.PoolUtilizationPercent = float64(stats.InUse) / float64(stats.MaxOpenConnections) * 100
	}

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	health.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		health.Status = "error"
		health.ResponseTimeStatus = "error"
	} else if health.ResponseTimeMS > 100 {
		health.ResponseTimeStatus = "slow"
	}

	return health
}

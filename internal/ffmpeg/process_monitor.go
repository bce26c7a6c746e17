package ffmpeg

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats contains resource usage statistics for an FFmpeg process.
type ProcessStats struct {
	PID int `json:"pid"`

	// CPU usage
	CPUPercent float64       `json:"cpu_percent"` // Current CPU usage as percentage (0-100 per core)
	CPUUser    time.Duration `json:"cpu_user"`    // Total user CPU time
	CPUSystem  time.Duration `json:"cpu_system"`  // Total system CPU time

	// Memory usage
	MemoryRSSBytes uint64  `json:"memory_rss_bytes"` // Resident Set Size in bytes
	MemoryRSSMB    float64 `json:"memory_rss_mb"`    // Resident Set Size in MB
	MemoryVMSBytes uint64  `json:"memory_vms_bytes"` // Virtual Memory Size in bytes
	MemoryPercent  float64 `json:"memory_percent"`   // Share of total system memory

	// Bandwidth (tracked externally via CountingWriter)
	BytesWritten  uint64  `json:"bytes_written"`   // Total bytes written to output
	WriteRateBps  float64 `json:"write_rate_bps"`  // Current write rate in bytes/sec
	WriteRateKbps float64 `json:"write_rate_kbps"` // Current write rate in kbps

	// Timing
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	LastUpdated time.Time     `json:"last_updated"`
}

// ProcessMonitor samples resource usage of a running FFmpeg process.
type ProcessMonitor struct {
	pid       int
	proc      *process.Process
	startedAt time.Time
	interval  time.Duration

	mu      sync.RWMutex
	stats   ProcessStats
	running bool

	// For bandwidth rate calculation
	lastBytesWritten uint64
	lastBytesCheck   time.Time

	// Byte counter fed by CountingWriter
	bytesWritten atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a new process monitor. When the process cannot
// be resolved, CPU and memory sampling is skipped but byte counting still
// works.
func NewProcessMonitor(pid int) *ProcessMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	pm := &ProcessMonitor{
		pid:       pid,
		startedAt: time.Now(),
		interval:  time.Second,
		ctx:       ctx,
		cancel:    cancel,
	}

	if proc, err := process.NewProcess(int32(pid)); err == nil {
		pm.proc = proc
	}

	return pm
}

// Start begins the sampling loop.
func (pm *ProcessMonitor) Start() {
	pm.mu.Lock()
	if pm.running {
		pm.mu.Unlock()
		return
	}
	pm.running = true
	pm.lastBytesCheck = time.Now()
	pm.mu.Unlock()

	pm.wg.Add(1)
	go pm.monitorLoop()
}

// Stop stops the sampling loop and waits for it to finish.
func (pm *ProcessMonitor) Stop() {
	pm.cancel()
	pm.wg.Wait()

	pm.mu.Lock()
	pm.running = false
	pm.mu.Unlock()
}

// Stats returns the current process statistics.
func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	stats := pm.stats
	stats.BytesWritten = pm.bytesWritten.Load()
	return stats
}

// AddBytesWritten adds to the bytes written counter.
func (pm *ProcessMonitor) AddBytesWritten(n uint64) {
	pm.bytesWritten.Add(n)
}

// SetInterval sets the monitoring interval. Takes effect on the next Start.
func (pm *ProcessMonitor) SetInterval(d time.Duration) {
	pm.mu.Lock()
	pm.interval = d
	pm.mu.Unlock()
}

func (pm *ProcessMonitor) monitorLoop() {
	defer pm.wg.Done()

	pm.mu.RLock()
	interval := pm.interval
	pm.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial sample
	pm.sample()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.sample()
		}
	}
}

// sample takes a snapshot of process statistics.
func (pm *ProcessMonitor) sample() {
	now := time.Now()

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.stats.PID = pm.pid
	pm.stats.StartedAt = pm.startedAt
	pm.stats.Duration = now.Sub(pm.startedAt)
	pm.stats.LastUpdated = now

	// A sampling error usually means the process exited between ticks.
	// Stale values are kept so the final stats remain readable.
	if pm.proc != nil {
		if pct, err := pm.proc.Percent(0); err == nil {
			pm.stats.CPUPercent = pct
		}
		if times, err := pm.proc.Times(); err == nil && times != nil {
			pm.stats.CPUUser = time.Duration(times.User * float64(time.Second))
			pm.stats.CPUSystem = time.Duration(times.System * float64(time.Second))
		}
		if mi, err := pm.proc.MemoryInfo(); err == nil && mi != nil {
			pm.stats.MemoryRSSBytes = mi.RSS
			pm.stats.MemoryVMSBytes = mi.VMS
			pm.stats.MemoryRSSMB = float64(mi.RSS) / (1024 * 1024)
		}
		if mp, err := pm.proc.MemoryPercent(); err == nil {
			pm.stats.MemoryPercent = float64(mp)
		}
	}

	pm.calculateWriteRate(now)
}

// calculateWriteRate derives the current output bandwidth from the byte
// counter delta since the last sample.
func (pm *ProcessMonitor) calculateWriteRate(now time.Time) {
	currentBytes := pm.bytesWritten.Load()
	elapsed := now.Sub(pm.lastBytesCheck)

	if elapsed > 0 {
		bytesDelta := currentBytes - pm.lastBytesWritten
		pm.stats.WriteRateBps = float64(bytesDelta) / elapsed.Seconds()
		pm.stats.WriteRateKbps = pm.stats.WriteRateBps * 8 / 1000
	}

	pm.stats.BytesWritten = currentBytes
	pm.lastBytesWritten = currentBytes
	pm.lastBytesCheck = now
}

// CountingWriter wraps an io.Writer and reports bytes written to a monitor.
type CountingWriter struct {
	w       io.Writer
	monitor *ProcessMonitor
}

// NewCountingWriter creates a writer that counts bytes and reports to the
// monitor. A nil monitor disables counting.
func NewCountingWriter(w io.Writer, monitor *ProcessMonitor) *CountingWriter {
	return &CountingWriter{
		w:       w,
		monitor: monitor,
	}
}

// Write implements io.Writer and tracks bytes written.
func (cw *CountingWriter) Write(p []byte) (n int, err error) {
	n, err = cw.w.Write(p)
	if n > 0 && cw.monitor != nil {
		cw.monitor.AddBytesWritten(uint64(n))
	}
	return n, err
}

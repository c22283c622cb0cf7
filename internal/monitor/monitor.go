// Package monitor periodically logs process resource usage and event
// throughput.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Source reports subscription activity.
type Source interface {
	Active() int
	Handled() uint64
	Violations() uint64
}

// Monitor tracks system resource usage and event throughput.
type Monitor struct {
	interval time.Duration
	logger   *slog.Logger
	source   Source
	wg       sync.WaitGroup
	proc     *process.Process

	// last observed counters, for per-interval deltas
	lastHandled    uint64
	lastViolations uint64
	lastAt         time.Time
}

// New creates a new monitor with specified collection interval.
func New(interval time.Duration, logger *slog.Logger, source Source) (*Monitor, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("monitor interval must be positive")
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to get process handle: %w", err)
	}

	return &Monitor{
		interval: interval,
		logger:   logger,
		source:   source,
		proc:     proc,
		lastAt:   time.Now(),
	}, nil
}

// Run starts the monitoring loop in a background goroutine that exits
// when ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.wg.Go(func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		// Immediate first collection
		m.collect()

		for {
			select {
			case <-ctx.Done():
				m.logger.Info("monitor shutdown complete")
				return
			case <-ticker.C:
				m.collect()
			}
		}
	})
}

// Wait blocks until the monitor goroutine exits.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// collect reads current metrics and logs resource usage.
func (m *Monitor) collect() {
	// ---- CPU ----
	processCPU, err := m.proc.CPUPercent()
	if err != nil {
		m.logger.Warn("failed to get CPU percent", "error", err)
		processCPU = 0
	}

	cores := runtime.GOMAXPROCS(-1)

	// ---- Runtime / Memory ----
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	mb := func(b uint64) float64 {
		return float64(b) / (1024 * 1024)
	}

	// ---- Events ----
	now := time.Now()
	handled := m.source.Handled()
	violations := m.source.Violations()

	rate := 0.0
	if elapsed := now.Sub(m.lastAt).Seconds(); elapsed > 0 {
		rate = float64(handled-m.lastHandled) / elapsed
	}
	newViolations := violations - m.lastViolations

	m.lastHandled = handled
	m.lastViolations = violations
	m.lastAt = now

	m.logger.LogAttrs(
		context.Background(),
		slog.LevelInfo,
		"resource",
		slog.String("cpu", fmt.Sprintf("%.4f%%", processCPU)),
		slog.Int("cores", cores),
		slog.Int("gor", runtime.NumGoroutine()),
		slog.String("mem", fmt.Sprintf("alloc:%.2fMB sys:%.2fMB", mb(ms.HeapAlloc), mb(ms.HeapSys))),
		slog.Uint64("gc", uint64(ms.NumGC)),
		slog.Int("subs", m.source.Active()),
		slog.Uint64("events", handled),
		slog.String("rate", fmt.Sprintf("%.2f/s", rate)),
		slog.Uint64("violations", violations),
	)

	if newViolations > 0 {
		m.logger.Warn("payload contract violations since last report",
			"count", newViolations,
			"total", violations)
	}
}

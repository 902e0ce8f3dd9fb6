// Package observability aggregates live relay counters and process
// self-stats for the debug endpoint.
package observability

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Monitor collects relay metrics. Counters are atomic so every hot path
// can report without taking a lock.
type Monitor struct {
	log  *slog.Logger
	proc *process.Process

	connections       int64
	messagesRelayed   uint64
	deliveriesDropped uint64
	roomsEvicted      uint64
	startedAt         time.Time
}

func NewMonitor(log *slog.Logger) *Monitor {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Self process handle unavailable, stats will be partial", "err", err)
		p = nil
	}
	return &Monitor{log: log, proc: p, startedAt: time.Now().UTC()}
}

func (m *Monitor) ConnectionOpened() { atomic.AddInt64(&m.connections, 1) }
func (m *Monitor) ConnectionClosed() { atomic.AddInt64(&m.connections, -1) }
func (m *Monitor) MessageRelayed()   { atomic.AddUint64(&m.messagesRelayed, 1) }
func (m *Monitor) DeliveryDropped()  { atomic.AddUint64(&m.deliveriesDropped, 1) }
func (m *Monitor) RoomEvicted()      { atomic.AddUint64(&m.roomsEvicted, 1) }

func (m *Monitor) Connections() int64 { return atomic.LoadInt64(&m.connections) }

// Snapshot returns the current metrics for the debug page. Process stats
// (RSS, CPU) come from the OS; the rest are relay counters.
func (m *Monitor) Snapshot() map[string]any {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := map[string]any{
		"connections":        atomic.LoadInt64(&m.connections),
		"messages_relayed":   atomic.LoadUint64(&m.messagesRelayed),
		"deliveries_dropped": atomic.LoadUint64(&m.deliveriesDropped),
		"rooms_evicted":      atomic.LoadUint64(&m.roomsEvicted),
		"goroutines":         runtime.NumGoroutine(),
		"alloc_mem_mb":       memStats.Alloc / 1024 / 1024,
		"num_gc":             memStats.NumGC,
		"uptime":             time.Since(m.startedAt).Round(time.Second).String(),
	}

	if m.proc != nil {
		if memInfo, err := m.proc.MemoryInfo(); err == nil {
			stats["rss_mb"] = memInfo.RSS / 1024 / 1024
		}
		if cpuPercent, err := m.proc.CPUPercent(); err == nil {
			stats["cpu_percent"] = fmt.Sprintf("%.1f", cpuPercent)
		}
		if status, err := m.proc.Status(); err == nil {
			stats["pid_status"] = status
		}
	}
	return stats
}

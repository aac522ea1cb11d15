// Package observability aggregates live counters of the synchronization
// core for the host shell's diagnostics view.
package observability

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"

	"chat-sync/contract"
	"chat-sync/domain/event"
)

// SyncStats is one sampled snapshot of the core's activity.
type SyncStats struct {
	MessagesMerged    uint64  `json:"messages_merged"`
	MessagesRemoved   uint64  `json:"messages_removed"`
	PermissionUpdates uint64  `json:"permission_updates"`
	RosterUpdates     uint64  `json:"roster_updates"`
	UnseenFlips       uint64  `json:"unseen_flips"`
	MessageRate       float64 `json:"message_rate"` // merges per second since last sample
	RSSMb             uint64  `json:"rss_mb"`
	SampledAt         string  `json:"sampled_at"`
}

// Monitor counts domain events as they flow and samples process memory
// on a fixed interval. It is an EventSink; wire it next to the real
// consumers, it never blocks them.
type Monitor struct {
	log *slog.Logger

	merged      uint64
	removed     uint64
	permissions uint64
	roster      uint64
	unseen      uint64

	mu        sync.RWMutex
	latest    SyncStats
	lastCount uint64
	lastCheck time.Time
}

func NewMonitor(log *slog.Logger) *Monitor {
	return &Monitor{log: log, lastCheck: time.Now()}
}

// Consume implements contract.EventSink.
func (m *Monitor) Consume(e event.DomainEvent) {
	switch e.(type) {
	case event.MessageAdded, event.MessageChanged:
		atomic.AddUint64(&m.merged, 1)
	case event.MessageRemoved:
		atomic.AddUint64(&m.removed, 1)
	case event.PermissionsChanged:
		atomic.AddUint64(&m.permissions, 1)
	case event.RosterChanged:
		atomic.AddUint64(&m.roster, 1)
	case event.UnseenChanged:
		atomic.AddUint64(&m.unseen, 1)
	}
}

// Listen samples stats on the given interval until ctx is done.
func (m *Monitor) Listen(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	proc, procErr := process.NewProcess(int32(os.Getpid()))
	if procErr != nil {
		m.log.Warn("process handle unavailable, memory stats disabled", "error", procErr)
	}

	for {
		select {
		case <-ctx.Done():
			m.log.Info("Stats monitor stopped")
			return
		case <-ticker.C:
			m.sample(proc)
		}
	}
}

func (m *Monitor) sample(proc *process.Process) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	merged := atomic.LoadUint64(&m.merged)

	rate := 0.0
	if elapsed := now.Sub(m.lastCheck).Seconds(); elapsed > 0 {
		rate = float64(merged-m.lastCount) / elapsed
	}
	m.lastCount = merged
	m.lastCheck = now

	stats := SyncStats{
		MessagesMerged:    merged,
		MessagesRemoved:   atomic.LoadUint64(&m.removed),
		PermissionUpdates: atomic.LoadUint64(&m.permissions),
		RosterUpdates:     atomic.LoadUint64(&m.roster),
		UnseenFlips:       atomic.LoadUint64(&m.unseen),
		MessageRate:       rate,
		SampledAt:         now.Format("15:04:05"),
	}
	if proc != nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			stats.RSSMb = mem.RSS / 1024 / 1024
		}
	}
	m.latest = stats
}

// Latest returns the most recent sample.
func (m *Monitor) Latest() SyncStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

var _ contract.EventSink = (*Monitor)(nil)

package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/observability"
	"chat-relay/runtime"
)

// IdleSweeper periodically reclaims live room entries that have been empty
// for longer than the idle threshold. Persisted rooms and their history are
// untouched: a swept room comes back on the next join.
type IdleSweeper struct {
	Log       *slog.Logger
	Registry  *runtime.Registry
	Monitor   *observability.Monitor
	Interval  time.Duration
	Threshold time.Duration
}

func NewIdleSweeper(log *slog.Logger, registry *runtime.Registry, monitor *observability.Monitor, interval, threshold time.Duration) *IdleSweeper {
	return &IdleSweeper{
		Log:       log,
		Registry:  registry,
		Monitor:   monitor,
		Interval:  interval,
		Threshold: threshold,
	}
}

func (w *IdleSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Sweep()
		case <-ctx.Done():
			w.Log.Debug("Context done, stopping idle sweeper")
			return nil
		}
	}
}

// Sweep runs one eviction pass.
func (w *IdleSweeper) Sweep() {
	evicted := w.Registry.EvictIdle(w.Threshold)
	for _, code := range evicted {
		w.Monitor.RoomEvicted()
		w.Log.Info("Evicted idle room", "room", code)
	}
}

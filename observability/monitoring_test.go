package observability

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMonitor_CountersSurviveConcurrentUpdates(t *testing.T) {
	req := require.New(t)
	monitor := NewMonitor(slog.Default())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				monitor.ConnectionOpened()
				monitor.MessageRelayed()
			}
		}()
	}
	wg.Wait()

	req.Equal(int64(1000), monitor.Connections())

	monitor.ConnectionClosed()
	req.Equal(int64(999), monitor.Connections())
}

func TestMonitor_Snapshot(t *testing.T) {
	req := require.New(t)
	monitor := NewMonitor(slog.Default())

	monitor.MessageRelayed()
	monitor.DeliveryDropped()
	monitor.RoomEvicted()

	snapshot := monitor.Snapshot()
	req.Equal(uint64(1), snapshot["messages_relayed"])
	req.Equal(uint64(1), snapshot["deliveries_dropped"])
	req.Equal(uint64(1), snapshot["rooms_evicted"])
	req.Contains(snapshot, "goroutines")
	req.Contains(snapshot, "uptime")
}

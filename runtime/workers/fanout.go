package workers

import (
	"context"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain/event"
)

// EventFanout drains the relay's auxiliary event stream into in-process
// consumers (timeline projection, search index).
//
// Best-effort fan-out with no guarantees regarding delivery, ordering,
// durability, or retries. EventFanout is not a message broker: member
// delivery never goes through here, only side effects do.
type EventFanout struct {
	Log    *slog.Logger
	Events chan event.ChatEvent
	sinks  []contract.EventSink
}

func NewEventFanout(log *slog.Logger, events chan event.ChatEvent) *EventFanout {
	return &EventFanout{Log: log, Events: events}
}

func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.sinks = append(w.sinks, sinks...)
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.Events:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.Log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

// Fanout hands the event to every sink. A failing sink is logged and
// skipped; the others still consume.
func (w *EventFanout) Fanout(ctx context.Context, evt event.ChatEvent) {
	for _, sink := range w.sinks {
		if err := sink.Consume(ctx, evt); err != nil {
			w.Log.Warn("Auxiliary sink rejected event", "room", evt.RoomCode(), "err", err)
		}
	}
}

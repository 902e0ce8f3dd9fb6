// Package sink contains the auxiliary event consumers fed by the fanout
// worker. Sinks observe the relayed event stream for side effects; they
// never participate in member delivery.
package sink

import (
	"context"
	"fmt"
	"log/slog"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/domain/search"
)

// SearchSink feeds relayed messages into the full-text index.
type SearchSink struct {
	index *search.Index
	log   *slog.Logger
}

func NewSearchSink(index *search.Index, log *slog.Logger) *SearchSink {
	return &SearchSink{index: index, log: log}
}

func (s *SearchSink) Consume(_ context.Context, e event.ChatEvent) error {
	switch evt := e.(type) {
	case event.MessageReceived:
		return s.index.IndexMessage(domain.Message{
			ID:         evt.ID,
			Room:       evt.Room,
			SenderID:   evt.SenderID,
			SenderName: evt.SenderName,
			Content:    evt.Content,
			CreatedAt:  evt.At,
		})
	default:
		s.log.Debug(fmt.Sprintf("Not indexed event : %v", evt))
		return nil
	}
}

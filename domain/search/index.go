package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"

	"chat-relay/domain"
)

// Hit is one message returned by a full-text search, rebuilt from the
// stored fields of the index.
type Hit struct {
	MessageID  uuid.UUID
	Room       domain.RoomCode
	SenderID   string
	SenderName string
	Content    string
	At         time.Time
	Score      float64
}

// Index is the full-text message index. One writer per process; bluge
// serializes index mutations internally, the mutex only guards the
// writer swap on Close.
type Index struct {
	mu     sync.Mutex
	writer *bluge.Writer
	log    *slog.Logger
}

// Open opens (or creates) the index at path. An empty path opens an
// in-memory index, used by tests.
func Open(path string, log *slog.Logger) (*Index, error) {
	cfg := bluge.DefaultConfig(path)
	if path == "" {
		cfg = bluge.InMemoryOnlyConfig()
	}
	writer, err := bluge.OpenWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	return &Index{writer: writer, log: log}, nil
}

func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.writer == nil {
		return nil
	}
	err := i.writer.Close()
	i.writer = nil
	return err
}

// IndexMessage upserts one message document. Content is analyzed for
// full-text matching; room and sender are exact-match keywords.
func (i *Index) IndexMessage(msg domain.Message) error {
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewTextField("content", msg.Content).StoreValue()).
		AddField(bluge.NewKeywordField("room", string(msg.Room)).StoreValue()).
		AddField(bluge.NewKeywordField("sender", msg.SenderID).StoreValue()).
		AddField(bluge.NewKeywordField("sender_name", msg.SenderName).StoreValue()).
		AddField(bluge.NewKeywordField("at", strconv.FormatInt(msg.CreatedAt.UnixNano(), 10)).StoreValue())
	return i.writer.Update(doc.ID(), doc)
}

// Search runs the parsed query and returns the best matches plus the
// total match count.
func (i *Index) Search(ctx context.Context, q *Query) ([]Hit, uint64, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open index reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	boolQuery := bluge.NewBooleanQuery()
	for _, term := range strings.Fields(q.Terms) {
		boolQuery.AddMust(bluge.NewMatchQuery(term).SetField("content"))
	}
	if q.Room != "" {
		boolQuery.AddMust(bluge.NewTermQuery(string(q.Room)).SetField("room"))
	}
	if q.Sender != "" {
		boolQuery.AddMust(bluge.NewTermQuery(q.Sender).SetField("sender"))
	}

	request := bluge.NewTopNSearch(q.Limit, boolQuery).WithStandardAggregations()
	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, 0, fmt.Errorf("search failed: %w", err)
	}

	var hits []Hit
	match, err := iterator.Next()
	for err == nil && match != nil {
		hit := Hit{Score: match.Score}
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
					hit.MessageID = id
				}
			case "content":
				hit.Content = string(value)
			case "room":
				hit.Room = domain.RoomCode(value)
			case "sender":
				hit.SenderID = string(value)
			case "sender_name":
				hit.SenderName = string(value)
			case "at":
				if nanos, parseErr := strconv.ParseInt(string(value), 10, 64); parseErr == nil {
					hit.At = time.Unix(0, nanos).UTC()
				}
			}
			return true
		})
		if visitErr != nil {
			i.log.Warn("Failed to load stored fields for match", "err", visitErr)
		} else {
			hits = append(hits, hit)
		}
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, 0, fmt.Errorf("search iteration failed: %w", err)
	}

	return hits, iterator.Aggregations().Count(), nil
}

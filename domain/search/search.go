// Package search turns raw chat input into structured query parameters.
// It decouples what users type from the index engine requirements.
package search

import (
	"strconv"
	"strings"

	"chat-relay/domain"
)

const defaultLimit = 10

// Query represents the structured parameters for a message search.
type Query struct {
	RawInput string          // The original input from the user
	Terms    string          // The actual text to match against message content
	Room     domain.RoomCode // Optional room filter
	Sender   string          // Optional sender filter
	Limit    int             // Number of results
}

// NewQuery parses a raw string to extract command-line style arguments.
// Example: /find invoice --room ABC123 --from alice --limit 20
func NewQuery(input string) *Query {
	query := &Query{
		RawInput: input,
		Limit:    defaultLimit,
	}

	parts := strings.Fields(input)
	var textTerms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			key := strings.TrimPrefix(part, "--")
			val := parts[i+1]

			switch key {
			case "room":
				query.Room = domain.RoomCode(strings.ToUpper(val))
			case "from":
				query.Sender = val
			case "limit":
				if n, err := strconv.Atoi(val); err == nil && n > 0 {
					query.Limit = n
				}
			}
			i++ // Skip the value part in next iteration
			continue
		}

		// If it's not a flag, it's a search term
		if !strings.HasPrefix(part, "/") {
			textTerms = append(textTerms, part)
		}
	}

	query.Terms = strings.Join(textTerms, " ")
	return query
}

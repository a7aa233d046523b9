package feed

import (
	"encoding/json"
	"fmt"

	"github.com/calebwaine/autopricer/internal/domain"
)

// Event types emitted by the upstream marketplace feed.
const (
	EventListingUpdate = "listing-update"
	EventListingDelete = "listing-delete"
)

// Event is one upstream feed event. The feed delivers either a single event
// object or an array batch; DecodeEvents handles both.
type Event struct {
	Event   string  `json:"event"`
	Payload Payload `json:"payload"`
}

// Payload is the listing body of a feed event.
type Payload struct {
	Item       Item            `json:"item"`
	Currencies domain.Currency `json:"currencies"`
	Intent     string          `json:"intent"`
	SteamID    string          `json:"steamid"`
	UserAgent  *UserAgent      `json:"userAgent,omitempty"`
	Details    string          `json:"details,omitempty"`
}

// Item describes the listed item, including disqualifying modifiers.
type Item struct {
	Name       string      `json:"name"`
	Attributes []Attribute `json:"attributes,omitempty"`
	Spells     []string    `json:"spells,omitempty"`
}

// Attribute is a single item attribute from the upstream schema.
type Attribute struct {
	Defindex   int     `json:"defindex"`
	Value      string  `json:"value,omitempty"`
	FloatValue float64 `json:"float_value,omitempty"`
}

// UserAgent identifies the listing software that posted the listing.
type UserAgent struct {
	Client string `json:"client"`
}

// DecodeEvents parses a raw feed message into events, accepting both a single
// object and an array batch.
func DecodeEvents(data []byte) ([]Event, error) {
	trimmed := firstNonSpace(data)
	switch trimmed {
	case '[':
		var events []Event
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("feed: decode event batch: %w", err)
		}
		return events, nil
	case '{':
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("feed: decode event: %w", err)
		}
		return []Event{event}, nil
	default:
		return nil, fmt.Errorf("feed: unrecognized message shape")
	}
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b
		}
	}
	return 0
}

package realtime

import (
	"sort"
	"sync"
	"time"
)

// DefaultRetention caps how many events a buffer keeps before dropping the oldest.
const DefaultRetention = 10000

// Channel identifies a server-pushed event stream.
type Channel string

// Known channels.
const (
	ChannelTick              Channel = "tick"
	ChannelHistoricalData    Channel = "historical_data"
	ChannelPortfolioUpdate   Channel = "portfolio_update"
	ChannelLeaderboardUpdate Channel = "leaderboard_update"
)

// Channels lists every known channel in a stable order.
func Channels() []Channel {
	return []Channel{ChannelTick, ChannelHistoricalData, ChannelPortfolioUpdate, ChannelLeaderboardUpdate}
}

// Event is one captured server push.
type Event struct {
	Channel    Channel
	Payload    map[string]any
	ReceivedAt time.Time
}

// Symbol returns the payload's symbol field, or "" when absent.
func (e Event) Symbol() string {
	if e.Payload == nil {
		return ""
	}

	s, _ := e.Payload["symbol"].(string)

	return s
}

// EventBuffer is an arrival-ordered log of captured events shared between a
// realtime client's receive loop and the phase inspecting it. It is a
// fixed-capacity ring: once full, each Append overwrites the oldest event.
type EventBuffer struct {
	mu        sync.RWMutex
	events    []Event
	head      int // next write index once the ring is full
	retention int
}

// NewEventBuffer creates a buffer keeping at most retention events.
// A non-positive retention uses DefaultRetention.
func NewEventBuffer(retention int) *EventBuffer {
	if retention <= 0 {
		retention = DefaultRetention
	}

	return &EventBuffer{retention: retention}
}

// Append adds an event, dropping the oldest once retention is reached.
func (b *EventBuffer) Append(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) < b.retention {
		b.events = append(b.events, e)
		return
	}

	b.events[b.head] = e
	b.head = (b.head + 1) % b.retention
}

// Clear drops all captured events.
func (b *EventBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = b.events[:0]
	b.head = 0
}

// Snapshot returns a copy of all captured events, oldest first.
func (b *EventBuffer) Snapshot() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.tailLocked(len(b.events))
}

// tailLocked copies the n most recent events in arrival order. Callers hold mu.
func (b *EventBuffer) tailLocked(n int) []Event {
	size := len(b.events)
	if n > size {
		n = size
	}

	out := make([]Event, n)
	if n == 0 {
		return out
	}

	// Oldest event sits at head when the ring is full, at 0 otherwise.
	oldest := 0
	if size == b.retention {
		oldest = b.head
	}

	start := (oldest + size - n) % size
	copied := copy(out, b.events[start:])

	if copied < n {
		copy(out[copied:], b.events[:n-copied])
	}

	return out
}

// Len returns the number of captured events.
func (b *EventBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.events)
}

// Count returns how many captured events arrived on channel.
func (b *EventBuffer) Count(channel Channel) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0

	for _, e := range b.events {
		if e.Channel == channel {
			n++
		}
	}

	return n
}

// CountFor returns how many events on channel carry the given symbol.
func (b *EventBuffer) CountFor(channel Channel, symbol string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0

	for _, e := range b.events {
		if e.Channel == channel && e.Symbol() == symbol {
			n++
		}
	}

	return n
}

// Last returns up to n of the most recent events, oldest first.
func (b *EventBuffer) Last(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 {
		return []Event{}
	}

	return b.tailLocked(n)
}

// Symbols returns the sorted distinct symbols seen on the given channels.
// With no channels, every channel counts.
func (b *EventBuffer) Symbols(channels ...Channel) []string {
	want := make(map[Channel]struct{}, len(channels))
	for _, c := range channels {
		want[c] = struct{}{}
	}

	b.mu.RLock()
	seen := make(map[string]struct{})

	for _, e := range b.events {
		if len(want) > 0 {
			if _, ok := want[e.Channel]; !ok {
				continue
			}
		}

		if s := e.Symbol(); s != "" {
			seen[s] = struct{}{}
		}
	}
	b.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}

	sort.Strings(out)

	return out
}

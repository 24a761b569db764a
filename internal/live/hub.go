// Package live fans chart points out to in-process subscribers and to gRPC
// streaming clients.
package live

import (
	"strings"
	"sync"
	"sync/atomic"

	"barsim/internal/chart"
)

// Filter selects points by symbol and timeframe. Empty fields match all.
type Filter struct {
	Symbol    string
	Timeframe string
}

// Match reports whether p passes the filter.
func (f Filter) Match(p chart.Point) bool {
	if f.Symbol != "" && !strings.EqualFold(f.Symbol, p.Symbol) {
		return false
	}
	if f.Timeframe != "" && f.Timeframe != p.Timeframe {
		return false
	}
	return true
}

// Hub keeps a bounded history of published points and notifies
// subscribers. Slow subscribers lose points rather than block the publisher.
type Hub struct {
	mu         sync.Mutex
	history    []chart.Point
	maxHistory int
	nextSubID  int
	subs       map[int]chan chart.Point
	dropped    atomic.Int64
}

// NewHub creates a hub retaining up to maxHistory points for late joiners.
func NewHub(maxHistory int) *Hub {
	return &Hub{
		maxHistory: maxHistory,
		subs:       make(map[int]chan chart.Point),
	}
}

// Publish implements chart.Publisher.
func (h *Hub) Publish(p chart.Point) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.maxHistory > 0 {
		if len(h.history) == h.maxHistory {
			copy(h.history, h.history[1:])
			h.history = h.history[:len(h.history)-1]
		}
		h.history = append(h.history, p)
	}

	for _, ch := range h.subs {
		select {
		case ch <- p:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber and returns the retained history at the
// moment of subscription. Points published afterwards arrive on ch.
func (h *Hub) Subscribe(bufSize int) (id int, snapshot []chart.Point, ch <-chan chart.Point) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id = h.nextSubID
	h.nextSubID++
	c := make(chan chart.Point, bufSize)
	h.subs[id] = c
	return id, append([]chart.Point(nil), h.history...), c
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		close(ch)
		delete(h.subs, id)
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for full subscribers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

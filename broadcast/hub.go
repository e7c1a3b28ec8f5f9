// Package broadcast maintains the set of live dashboard subscriber
// connections and delivers alarm payloads to them. The hub self-heals:
// any connection that fails a delivery is pruned during the same sweep,
// so a dead subscriber never blocks the others and never needs an
// explicit disconnect.
package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mkarlsen/sitealarm/internal/logger"
	"github.com/mkarlsen/sitealarm/internal/metrics"
)

// Conn is one subscriber handle. The hub only needs to push bytes and
// close; the transport behind it is typically a WebSocket.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// Hub is the concurrency-safe subscriber registry. The mutex guards only
// the connection set; it is never held across sends or any database work.
type Hub struct {
	mu    sync.Mutex
	conns map[Conn]string // handle -> scope tag ("" = wildcard)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[Conn]string)}
}

// Connect registers a subscriber handle. An empty scope tag makes the
// handle a wildcard that receives every event.
func (h *Hub) Connect(c Conn, scope string) {
	h.mu.Lock()
	h.conns[c] = scope
	n := len(h.conns)
	h.mu.Unlock()

	metrics.BroadcastClients.Set(float64(n))
	logger.Info("subscriber connected", "scope", scope, "subscribers", n)
}

// Disconnect removes a subscriber handle. Removing an absent handle is a
// no-op, so the prune path and an explicit client disconnect can race
// harmlessly.
func (h *Hub) Disconnect(c Conn) {
	h.mu.Lock()
	_, present := h.conns[c]
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()

	if present {
		metrics.BroadcastClients.Set(float64(n))
		logger.Info("subscriber disconnected", "subscribers", n)
	}
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast delivers a JSON payload to every matching subscriber. A
// handle is skipped only when both its scope tag and the event's scope
// key are set and differ. Delivery failures are collected per handle and
// the failing handles are removed afterward; one failing subscriber
// never aborts the sweep.
func (h *Hub) Broadcast(payload any, scopeKey string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode broadcast payload: %w", err)
	}

	// Point-in-time copy: sends happen outside the lock.
	h.mu.Lock()
	targets := make(map[Conn]string, len(h.conns))
	for c, scope := range h.conns {
		targets[c] = scope
	}
	h.mu.Unlock()

	var failed []Conn
	for c, scope := range targets {
		if scope != "" && scopeKey != "" && scope != scopeKey {
			continue
		}
		if err := c.Send(data); err != nil {
			logger.Warn("subscriber delivery failed, pruning", "error", err)
			metrics.BroadcastFailures.Inc()
			failed = append(failed, c)
		}
	}

	for _, c := range failed {
		h.Disconnect(c)
		_ = c.Close()
	}
	return nil
}

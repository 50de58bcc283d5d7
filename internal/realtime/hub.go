// Package realtime fans events out to live websocket subscribers, one
// subscriber set per tenant.
package realtime

import (
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/werpoz/chatrelay/internal/logger"
	"github.com/werpoz/chatrelay/internal/metrics"
	"github.com/werpoz/chatrelay/internal/model"
)

// Hub is the in-memory registry of live connections keyed by tenant. It is
// decoupled from the stream tailer so any event source can feed it.
// All methods are safe for concurrent use; socket callbacks arrive from
// multiple goroutines.
type Hub struct {
	mu      sync.RWMutex
	tenants map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{tenants: make(map[string]map[*Client]struct{})}
}

// Add registers a connection under its tenant.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	set, ok := h.tenants[c.TenantID]
	if !ok {
		set = make(map[*Client]struct{})
		h.tenants[c.TenantID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	metrics.HubClients.Inc()
	logger.L().Info("subscriber connected",
		zap.String("tenant_id", c.TenantID), zap.Uint64("client_id", c.id))
}

// Remove unregisters the connection and releases the tenant entry when its
// set becomes empty, so the map does not grow without bound.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	removed := h.removeLocked(c)
	h.mu.Unlock()

	if removed {
		metrics.HubClients.Dec()
		logger.L().Info("subscriber disconnected",
			zap.String("tenant_id", c.TenantID), zap.Uint64("client_id", c.id))
	}
}

// removeLocked deletes the client and closes its send channel exactly once.
// The channel is closed only when the client was still registered, which
// makes Remove safe to call from both the read pump and broadcast eviction.
func (h *Hub) removeLocked(c *Client) bool {
	set, ok := h.tenants[c.TenantID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.tenants, c.TenantID)
	}
	return true
}

// Broadcast serializes the frame once and sends it to every open connection
// of the tenant, in client registration order. Connections with a full or
// closed send buffer are dropped, not errored on. A no-op when the tenant has
// no subscribers.
func (h *Hub) Broadcast(tenantID string, frame model.RealtimeFrame) {
	raw, err := json.Marshal(frame)
	if err != nil {
		logger.L().Error("marshal realtime frame", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.tenants[tenantID]
	if !ok {
		return
	}

	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var toRemove []*Client
	for _, c := range clients {
		select {
		case c.send <- raw:
		default:
			toRemove = append(toRemove, c)
		}
	}

	for _, c := range toRemove {
		if h.removeLocked(c) {
			metrics.HubClients.Dec()
			logger.L().Warn("dropping slow subscriber",
				zap.String("tenant_id", tenantID), zap.Uint64("client_id", c.id))
		}
	}

	metrics.HubBroadcastsTotal.Inc()
}

// ClientCount returns the number of connections registered for the tenant.
func (h *Hub) ClientCount(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[tenantID])
}

// TenantCount returns how many tenants currently hold live connections.
func (h *Hub) TenantCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants)
}

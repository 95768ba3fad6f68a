package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"task_tracker/internal/logger"
	"task_tracker/internal/presence"
)

const presenceTimeout = 2 * time.Second

// Hub groups live connections by user. A user may hold several connections;
// a send to the user reaches all of them.
type Hub struct {
	mu       sync.RWMutex
	groups   map[int64]map[*Client]struct{}
	closed   bool
	clients  sync.WaitGroup // one per registered client until Unregister
	presence presence.Store
	log      *slog.Logger
}

func NewHub(p presence.Store) *Hub {
	return &Hub{
		groups:   make(map[int64]map[*Client]struct{}),
		presence: p,
		log:      logger.With("component", "ws_hub"),
	}
}

// Register joins c to its user's group and marks the user present. It returns
// false once CloseAll has run.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients.Add(1)
	group, ok := h.groups[c.UserID]
	if !ok {
		group = make(map[*Client]struct{})
		h.groups[c.UserID] = group
	}
	group[c] = struct{}{}
	h.mu.Unlock()

	wsConnections.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := h.presence.MarkOnline(ctx, c.UserID); err != nil {
		h.log.Warn("mark online failed", "user_id", c.UserID, "error", err)
	}
	h.log.Debug("client registered", "user_id", c.UserID)
	return true
}

// Unregister removes c from its group and closes its send channel. Calling it
// twice for the same client is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	group, ok := h.groups[c.UserID]
	if ok {
		_, ok = group[c]
	}
	if ok {
		delete(group, c)
		if len(group) == 0 {
			delete(h.groups, c.UserID)
		}
		close(c.send)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	defer h.clients.Done()
	wsConnections.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := h.presence.MarkOffline(ctx, c.UserID); err != nil {
		h.log.Warn("mark offline failed", "user_id", c.UserID, "error", err)
	}
	h.log.Debug("client unregistered", "user_id", c.UserID)
}

// SendToUser queues frame on every connection of userID. A full buffer drops
// the frame for that connection only.
func (h *Hub) SendToUser(userID int64, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.groups[userID] {
		select {
		case c.send <- frame:
		default:
			wsDroppedFrames.Inc()
			h.log.Warn("send buffer full, dropping frame", "user_id", userID)
		}
	}
}

// Connections reports how many connections userID currently holds.
func (h *Hub) Connections(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[userID])
}

// CloseAll stops accepting clients and closes every connection; read pumps
// then unregister themselves. Use Shutdown to wait for them.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, group := range h.groups {
		for c := range group {
			_ = c.conn.Close()
		}
	}
}

// Shutdown closes every connection and waits until each one has unregistered,
// so presence no longer counts any of them.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.CloseAll()

	done := make(chan struct{})
	go func() {
		h.clients.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package ws

import (
	"context"
	"sync"

	"mindmeld/internal/engine"
	"mindmeld/internal/service"
	"mindmeld/internal/store"
)

// Hub hands out one Room per watched session code.
type Hub struct {
	store    store.Store
	sessions *service.SessionService
	cfg      engine.Config

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewHub(st store.Store, sessions *service.SessionService, cfg engine.Config) *Hub {
	return &Hub{
		store:    st,
		sessions: sessions,
		cfg:      cfg,
		rooms:    make(map[string]*Room),
	}
}

// Join registers the client with the room for its session code, creating
// and starting the room on first viewer. Rooms run on their own context:
// they outlive the request that created them and stop when their last
// viewer leaves.
func (h *Hub) Join(c *Client) *Room {
	h.mu.Lock()
	room, ok := h.rooms[c.SessionCode]
	if !ok {
		room = newRoom(h, c.SessionCode)
		h.rooms[c.SessionCode] = room
		go room.Run(context.Background())
	}
	h.mu.Unlock()

	room.Register <- c
	return room
}

func (h *Hub) drop(code string) {
	h.mu.Lock()
	delete(h.rooms, code)
	h.mu.Unlock()
}

package ws

import (
	"context"
	"encoding/json"

	"mindmeld/internal/engine"
	"mindmeld/internal/logger"
	"mindmeld/internal/service"
)

// Room fans one session's engine signals out to every connected viewer.
// The room owns an engine.Observer: as long as anyone watches the session,
// this process participates in driving its transitions.
type Room struct {
	Code       string
	Register   chan *Client
	Unregister chan *Client

	hub      *Hub
	sessions *service.SessionService
	observer *engine.Observer
	clients  map[*Client]bool
}

func newRoom(hub *Hub, code string) *Room {
	return &Room{
		Code:       code,
		Register:   make(chan *Client, 4),
		Unregister: make(chan *Client, 4),
		hub:        hub,
		sessions:   hub.sessions,
		observer:   engine.NewObserver(hub.store, code, hub.cfg),
		clients:    make(map[*Client]bool),
	}
}

// Run drives the room until the last viewer leaves or the observer stops.
func (r *Room) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// a client may have grabbed this room just as it exits; detach anyone
	// still queued so their write pumps terminate
	defer func() {
		for {
			select {
			case c := <-r.Register:
				close(c.Send)
			default:
				return
			}
		}
	}()

	observerDone := make(chan struct{})
	go func() {
		defer close(observerDone)
		if err := r.observer.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("session observer stopped", "session", r.Code, "error", err)
		}
	}()

	for {
		select {
		case c := <-r.Register:
			r.clients[c] = true
			r.sendSnapshot(ctx, c)

		case c := <-r.Unregister:
			if r.clients[c] {
				delete(r.clients, c)
				close(c.Send)
			}
			if len(r.clients) == 0 {
				r.hub.drop(r.Code)
				return
			}

		case sig, ok := <-r.observer.Signals():
			if !ok {
				r.hub.drop(r.Code)
				return
			}
			r.handleSignal(ctx, sig)

		case <-observerDone:
			r.broadcast(Message{Type: "state", Payload: nil})
			r.hub.drop(r.Code)
			return

		case <-ctx.Done():
			r.hub.drop(r.Code)
			return
		}
	}
}

func (r *Room) handleSignal(ctx context.Context, sig engine.Signal) {
	switch sig.Type {
	case engine.SignalAbandoned:
		r.broadcast(Message{Type: "abandoned"})
	case engine.SignalRematch:
		r.broadcast(Message{Type: "rematch", Payload: map[string]string{
			"successorCode": sig.SuccessorCode,
		}})
	}
	// every signal implies the view may have changed
	r.broadcastSnapshot(ctx)
}

func (r *Room) broadcastSnapshot(ctx context.Context) {
	view, err := r.sessions.View(ctx, r.Code)
	if err != nil {
		logger.Debug("ws snapshot failed", "session", r.Code, "error", err)
		return
	}
	r.broadcast(Message{Type: "state", Payload: view})
}

func (r *Room) sendSnapshot(ctx context.Context, c *Client) {
	view, err := r.sessions.View(ctx, r.Code)
	if err != nil {
		r.send(c, Message{Type: "error", Payload: map[string]string{"message": "session unavailable"}})
		return
	}
	r.send(c, Message{Type: "state", Payload: view})
}

func (r *Room) broadcast(msg Message) {
	for c := range r.clients {
		r.send(c, msg)
	}
}

func (r *Room) send(c *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Warn("ws marshal failed", "error", err)
		return
	}
	select {
	case c.Send <- data:
	default:
		// drop for slow consumers; the next snapshot supersedes this one
	}
}

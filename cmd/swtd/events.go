package main

import (
	"sync"

	"github.com/rs/zerolog"
)

// event is pushed to subscribers after the open document changes.
type event struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
	Path   string `json:"path,omitempty"`
	Dirty  bool   `json:"dirty"`
	Count  int    `json:"eventCount"`
}

// eventHub broadcasts document_changed events to connected clients.
type eventHub struct {
	logger  zerolog.Logger
	mu      sync.Mutex
	clients map[*eventClient]struct{}
}

type eventClient struct {
	send chan event
}

func newEventHub(logger zerolog.Logger) *eventHub {
	return &eventHub{
		logger:  logger,
		clients: make(map[*eventClient]struct{}),
	}
}

func (h *eventHub) register() *eventClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	client := &eventClient{send: make(chan event, 16)}
	h.clients[client] = struct{}{}
	return client
}

func (h *eventHub) unregister(client *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *eventHub) broadcast(ev event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- ev:
		default:
			h.logger.Warn().Str("event", ev.Type).Msg("dropping event for slow client")
		}
	}
}

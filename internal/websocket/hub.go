package websocket

import (
	"encoding/json"
	"sync"

	"fingerprint-be/internal/pkg/logger"
)

// Subject key under which clients that want every event register.
const allSubjects = "*"

// Hub fans capture progress events out to websocket clients. Clients
// register for a single subject id (the registration being captured) or for
// all subjects.
type Hub struct {
	// Registered clients map: subject id -> list of clients (multi-viewer)
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	logger logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string][]*Client),
		logger:     log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.Subject] = append(h.clients[client.Subject], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"subject": client.Subject})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.Subject]; ok {
				for i, c := range clients {
					if c == client {
						h.clients[client.Subject] = append(clients[:i], clients[i+1:]...)
						close(client.Send)
						break
					}
				}
				if len(h.clients[client.Subject]) == 0 {
					delete(h.clients, client.Subject)
					h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"subject": client.Subject})
				}
			}
			h.mu.Unlock()
		}
	}
}

// Send delivers an event to clients watching the given subject plus clients
// watching everything. A client that cannot keep up is dropped rather than
// allowed to stall the capture session.
func (h *Hub) Send(subject string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Hub", "Failed to marshal event", map[string]interface{}{"error": err.Error()})
		return
	}

	h.mu.RLock()
	targets := append([]*Client(nil), h.clients[subject]...)
	if subject != allSubjects {
		targets = append(targets, h.clients[allSubjects]...)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("Hub", "Client send buffer full, dropping client", map[string]interface{}{"subject": client.Subject})
			h.unregister <- client
		}
	}
}

// Broadcast delivers an event to every connected client.
func (h *Hub) Broadcast(event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Hub", "Failed to marshal event", map[string]interface{}{"error": err.Error()})
		return
	}

	h.mu.RLock()
	var targets []*Client
	for _, clients := range h.clients {
		targets = append(targets, clients...)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.Send <- data:
		default:
			h.unregister <- client
		}
	}
}

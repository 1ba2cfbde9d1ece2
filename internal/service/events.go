package service

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/FIJTeam/eternitycogs/internal/model"

	"github.com/gofiber/contrib/websocket"
)

// WSClient is one connected ops dashboard.
type WSClient struct {
	Conn    *websocket.Conn
	Subject string
	Send    chan []byte
}

// EventHub fans verification events out to connected ops dashboards.
type EventHub struct {
	clients    map[*WSClient]bool
	register   chan *WSClient
	unregister chan *WSClient
	broadcast  chan []byte
	mu         sync.RWMutex
	done       chan struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:    make(map[*WSClient]bool),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

func (h *EventHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[ws] %s connected (total: %d)", client.Subject, len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			log.Printf("[ws] %s disconnected (total: %d)", client.Subject, len(h.clients))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			return
		}
	}
}

func (h *EventHub) Shutdown() {
	close(h.done)
}

func (h *EventHub) Register(client *WSClient) {
	h.register <- client
}

func (h *EventHub) Unregister(client *WSClient) {
	h.unregister <- client
}

func (h *EventHub) Broadcast(event *model.WSEvent) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Feed is best effort; drop rather than stall a verification.
	}
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

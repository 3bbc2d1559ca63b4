// Package hub fans slot change events out to every connected
// WebSocket client.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"vditaxi/models"
)

// Publisher announces slot changes. The local Hub implements it; so
// does the redis bus in rdx, which relays to every instance's hub.
type Publisher interface {
	Publish(ctx context.Context, ev models.SlotEvent)
}

type Client struct {
	Send chan []byte
	done chan struct{}
}

func NewClient(buffer int) *Client {
	return &Client{Send: make(chan []byte, buffer), done: make(chan struct{})}
}

// Done is closed once the hub has dropped the client.
func (c *Client) Done() <-chan struct{} { return c.done }

type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	quit       chan struct{}
	stopOnce   sync.Once
	mu         sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("[hub] client connected, total %d", n)

		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("[hub] client disconnected, total %d", n)

		case data := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.Send <- data:
				default:
					// Slow reader; it will reconnect and refetch.
					h.drop(c)
				}
			}
			h.mu.Unlock()

		case <-h.quit:
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return
		}
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(c *Client) {
	if h.clients[c] {
		delete(h.clients, c)
		close(c.done)
	}
}

// Stop ends Run and disconnects every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// Register adds c unless the hub is stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Broadcast queues raw frame data for every client.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	case <-h.quit:
	}
}

// Publish encodes ev and broadcasts it to local clients.
func (h *Hub) Publish(_ context.Context, ev models.SlotEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[hub] marshal event: %v", err)
		return
	}
	h.Broadcast(data)
}

// Len reports the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

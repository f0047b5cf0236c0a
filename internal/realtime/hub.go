package realtime

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hiddengems/hiddengems-backend/pkg/logger"
)

const sendBuffer = 256

// Hub tracks the websocket clients connected to this API instance, keyed by
// user. A single goroutine owns the client map; everything else talks to it
// over channels.
type Hub struct {
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	deliver    chan Message
	done       chan struct{}
	connected  atomic.Int64
	logg       *logger.Logger
}

func NewHub(logg *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan Message, sendBuffer),
		done:       make(chan struct{}),
		logg:       logg,
	}
}

// Run processes registrations and deliveries until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = make(map[uuid.UUID]map[*Client]struct{})
			h.connected.Store(0)
			return
		case c := <-h.register:
			set, ok := h.clients[c.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[c.userID] = set
			}
			set[c] = struct{}{}
			h.connected.Add(1)
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.deliver:
			h.fanOut(msg)
		}
	}
}

// Deliver queues msg for the recipient's local clients.
func (h *Hub) Deliver(ctx context.Context, msg Message) {
	select {
	case h.deliver <- msg:
	case <-ctx.Done():
	case <-h.done:
	}
}

// Register attaches c to the hub. It blocks until the hub loop accepts it.
func (h *Hub) Register(ctx context.Context, c *Client) {
	select {
	case h.register <- c:
	case <-ctx.Done():
		close(c.send)
	case <-h.done:
		close(c.send)
	}
}

// Unregister detaches c and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Connected reports how many clients are attached.
func (h *Hub) Connected() int64 {
	return h.connected.Load()
}

func (h *Hub) fanOut(msg Message) {
	set := h.clients[msg.UserID]
	if len(set) == 0 {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logError("marshal realtime message", err)
		return
	}
	for c := range set {
		select {
		case c.send <- payload:
		default:
			// Slow consumer; drop it and let the browser reconnect.
			h.remove(c)
		}
	}
}

func (h *Hub) remove(c *Client) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	h.connected.Add(-1)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
}

func (h *Hub) logError(msg string, err error) {
	if h.logg == nil {
		return
	}
	h.logg.Error(context.Background(), msg, err)
}

package station

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"github.com/agentradio/radio/internal/metrics"
)

// DefaultFrameInterval is how often amplitude frames are pushed.
const DefaultFrameInterval = 100 * time.Millisecond

// Hub keeps the set of feed clients and broadcasts frames to all of them.
// Client bookkeeping happens only on the goroutine running Run.
type Hub struct {
	station  Controls
	clock    clockwork.Clock
	interval time.Duration
	logger   *log.Logger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	count      chan chan int
	done       chan struct{}
}

// NewHub creates a hub for station.
func NewHub(station Controls, clock clockwork.Clock, interval time.Duration, logger *log.Logger) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		station:    station,
		clock:      clock,
		interval:   interval,
		logger:     logger.WithPrefix("hub"),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan chan int),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled. Frames go out on every status
// change and on every interval tick while clients are connected.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	updates, cancel := h.station.Subscribe()
	defer cancel()

	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			metrics.StationClientConnected()
			h.logger.Debug("client joined", "id", client.id, "online", len(h.clients))
			h.send(client, h.frame())

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Debug("client left", "id", client.id, "online", len(h.clients))
			}

		case <-updates:
			h.fanOut(h.frame())

		case <-ticker.Chan():
			if len(h.clients) > 0 {
				h.fanOut(h.frame())
			}

		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// Register adds a client. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client. It is a no-op once the hub has stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-ctx.Done():
		return 0
	case <-h.done:
		return 0
	}
}

func (h *Hub) frame() []byte {
	data, err := json.Marshal(NewFrame(h.station.Status(), h.station.Amplitude()))
	if err != nil {
		h.logger.Error("unable to encode frame", "error", err)
		return nil
	}
	return data
}

func (h *Hub) fanOut(message []byte) {
	if message == nil {
		return
	}
	for client := range h.clients {
		h.send(client, message)
	}
}

// send drops a client whose buffer is full rather than stalling the hub.
func (h *Hub) send(client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		h.logger.Warn("slow client dropped", "id", client.id)
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	metrics.StationClientDisconnected()
}

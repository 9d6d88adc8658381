package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hed1ad/pulseguard/pkg/history"
	"github.com/hed1ad/pulseguard/pkg/pipeline"
)

// Message types sent to display clients.
const (
	MessageStatus  = "status"
	MessageReading = "reading"
	MessageAnomaly = "anomaly"
	MessagePhase   = "phase"
)

// Message is the envelope for everything pushed to display clients.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type readingData struct {
	Reading pipeline.Reading `json:"reading"`
	Window  []float64        `json:"window"`
}

type phaseData struct {
	pipeline.PhaseChange
	Error string `json:"error,omitempty"`
}

// statusKey is the part of a status that is worth resending.
type statusKey struct {
	phase    int
	text     string
	baseline int
	stats    pipeline.Stats
	markers  int
}

func keyOf(s pipeline.Status) statusKey {
	return statusKey{
		phase:    int(s.Phase),
		text:     s.Text,
		baseline: s.BaselineSamples,
		stats:    s.Stats,
		markers:  len(s.Markers),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans pipeline events out to websocket display clients. It is a
// pipeline.Sink and an http.Handler; Run must be running for clients to be
// served.
//
// Sink calls never block the pipeline. When the broadcast queue is full the
// message is dropped; a slow client whose buffer fills is disconnected.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex

	logger *slog.Logger

	// Latest status and reading, replayed to clients as they connect so the
	// plot is drawn without waiting for the next reading.
	snapMu      sync.Mutex
	lastStatus  []byte
	lastKey     statusKey
	lastReading []byte

	dropped atomic.Uint64
}

// NewHub creates a hub. A nil logger uses slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mu.Lock()
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.replay(client)
			h.logger.Debug("display client connected", "client", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("display client disconnected", "client", client.id)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("display client too slow, disconnecting", "client", client.id)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) replay(c *Client) {
	h.snapMu.Lock()
	defer h.snapMu.Unlock()
	for _, msg := range [][]byte{h.lastStatus, h.lastReading} {
		if msg == nil {
			continue
		}
		select {
		case c.send <- msg:
		default:
		}
	}
}

// ServeHTTP upgrades the request and attaches a new display client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(h, conn, uuid.NewString())
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of messages dropped because the broadcast
// queue was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Status publishes the per-tick status. Ticks that change nothing but the
// clock are not resent.
func (h *Hub) Status(s pipeline.Status) {
	if s.Markers == nil {
		s.Markers = []history.Marker{}
	}
	data, ok := h.encode(MessageStatus, s.At, s)
	if !ok {
		return
	}

	key := keyOf(s)
	h.snapMu.Lock()
	same := h.lastStatus != nil && h.lastKey == key
	h.lastStatus, h.lastKey = data, key
	h.snapMu.Unlock()
	if !same {
		h.publish(data)
	}
}

// Reading publishes a reading together with the current window.
func (h *Hub) Reading(r pipeline.Reading, window []float64) {
	data, ok := h.encode(MessageReading, r.At, readingData{Reading: r, Window: window})
	if !ok {
		return
	}
	h.snapMu.Lock()
	h.lastReading = data
	h.snapMu.Unlock()
	h.publish(data)
}

// Anomaly publishes an anomaly marker.
func (h *Hub) Anomaly(e pipeline.AnomalyEvent) {
	if data, ok := h.encode(MessageAnomaly, e.At, e); ok {
		h.publish(data)
	}
}

// PhaseChange publishes a lifecycle transition.
func (h *Hub) PhaseChange(c pipeline.PhaseChange) {
	d := phaseData{PhaseChange: c}
	if c.Err != nil {
		d.Error = c.Err.Error()
	}
	if data, ok := h.encode(MessagePhase, c.At, d); ok {
		h.publish(data)
	}
}

func (h *Hub) encode(typ string, ts time.Time, v any) ([]byte, bool) {
	data, err := json.Marshal(Message{Type: typ, Timestamp: ts, Data: v})
	if err != nil {
		h.logger.Error("encode display message", "type", typ, "error", err)
		return nil, false
	}
	return data, true
}

func (h *Hub) publish(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.dropped.Add(1)
	}
}

var _ pipeline.Sink = (*Hub)(nil)

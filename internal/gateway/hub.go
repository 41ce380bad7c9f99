// Package gateway serves the live feed to views over WebSocket and REST.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"energy-livefeed/internal/metrics"
	"energy-livefeed/internal/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// HubOptions configures a Hub. Zero values select defaults.
type HubOptions struct {
	// Window is the snapshot size sent to new clients.
	Window int
	// ReplayCapacity is how many sample envelopes are kept for backfill.
	ReplayCapacity int
	// Metrics is optional.
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Hub manages WebSocket clients and fans samples out to them.
// It acts as a compositor over a Broadcaster (envelopes + fan-out), a
// ReplayBuffer (gap backfill) and a LatencyTracker.
type Hub struct {
	src     model.WindowSource
	window  int
	metrics *metrics.Metrics
	log     *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
	replay  *ReplayBuffer

	Latency     *LatencyTracker
	Broadcaster *Broadcaster

	// OnClientCount, if set, is called whenever the number of clients changes.
	OnClientCount func(n int)
}

// NewHub creates a Hub serving snapshots from src.
func NewHub(src model.WindowSource, opts HubOptions) *Hub {
	if opts.Window <= 0 {
		opts.Window = 40
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &Hub{
		src:     src,
		window:  opts.Window,
		metrics: opts.Metrics,
		log:     opts.Logger.With(slog.String("component", "hub")),
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(opts.ReplayCapacity),
		Latency: NewLatencyTracker(1000),
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// Run broadcasts every sample received on in. Blocks until ctx is cancelled
// or in is closed, then disconnects all clients.
func (h *Hub) Run(ctx context.Context, in <-chan model.Sample) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in:
			if !ok {
				return
			}
			h.Publish(s)
		}
	}
}

// Publish broadcasts one sample. It has the model.Observer signature.
func (h *Hub) Publish(s model.Sample) {
	h.Broadcaster.Broadcast(s)
}

// HandleWSRequest registers an upgraded connection. When lastSeq > 0 and the
// replay buffer still covers it, the client receives the missed envelopes;
// otherwise it receives a full snapshot.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastSeq int64) *Client {
	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	conn.EnableWriteCompression(true)

	// Register and queue the initial state under the lock so no broadcast
	// can slip between them.
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.sendInitialState(client, lastSeq)
	h.mu.Unlock()

	h.setClientGauge(count)
	h.log.Info("ws client connected", slog.String("client", client.id), slog.Int("total", count))

	go client.writePump()
	go client.readPump()
	return client
}

// sendInitialState must be called with h.mu held.
func (h *Hub) sendInitialState(c *Client, lastSeq int64) {
	if lastSeq > 0 {
		if entries, ok := h.replay.Since(lastSeq); ok {
			for _, e := range entries {
				c.trySend(e.Data)
			}
			h.log.Debug("ws client resumed", slog.String("client", c.id),
				slog.Int64("last_seq", lastSeq), slog.Int("replayed", len(entries)))
			return
		}
	}
	c.trySend(h.windowEnvelope(TypeSnapshot, h.window, h.seq))
	h.countSent(TypeSnapshot)
}

// windowEnvelope wraps the last n samples in an envelope of the given type.
func (h *Hub) windowEnvelope(typ string, n int, seq int64) []byte {
	samples := h.src.Window(n)
	if samples == nil {
		samples = []model.Sample{}
	}
	data, _ := json.Marshal(samples)
	return buildEnvelope(typ, data, time.Now().UTC(), seq)
}

// RemoveClient removes a client from the hub and closes its send channel.
// Safe to call more than once.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.setClientGauge(count)
	h.log.Info("ws client disconnected", slog.String("client", c.id), slog.Int("total", count))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.RemoveClient(c)
	}
}

// Missed returns buffered envelopes with seq in [fromSeq, toSeq].
// Used by the /api/missed REST endpoint for client gap backfill.
func (h *Hub) Missed(fromSeq, toSeq int64) [][]byte {
	entries := h.replay.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// Seq returns the sequence number of the last broadcast sample.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) setClientGauge(n int) {
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(n))
	}
	if h.OnClientCount != nil {
		h.OnClientCount(n)
	}
}

func (h *Hub) countSent(typ string) {
	if h.metrics != nil {
		h.metrics.WSMessagesTotal.WithLabelValues(typ).Inc()
	}
}

func (h *Hub) countDrop() {
	if h.metrics != nil {
		h.metrics.WSBroadcastDrops.Inc()
	}
}

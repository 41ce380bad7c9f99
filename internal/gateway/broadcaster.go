package gateway

import (
	"encoding/json"
	"strconv"
	"time"

	"energy-livefeed/internal/model"
)

// Envelope types sent to clients.
const (
	TypeSample   = "sample"
	TypeSnapshot = "snapshot"
	TypeWindow   = "window"
	TypePong     = "pong"
	TypeError    = "error"
)

// Envelope is the parsed form of every server-to-client message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	TS   string          `json:"ts"`
	Seq  int64           `json:"seq"`
}

// buildEnvelope hand-crafts {"type":...,"data":...,"ts":...,"seq":N}.
// data must already be valid JSON.
func buildEnvelope(typ string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(typ)+len(data)+96)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, typ...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

// Broadcaster assigns sequence numbers to samples, stores the envelopes for
// replay and fans them out to connected clients.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast sends s to every client. Clients whose send buffer is full skip
// the envelope and can backfill it later from the replay buffer.
func (b *Broadcaster) Broadcast(s model.Sample) {
	now := time.Now().UTC()

	if !s.TS.IsZero() {
		lat := now.Sub(s.TS)
		b.hub.Latency.Record(lat)
		if b.hub.metrics != nil && lat >= 0 {
			b.hub.metrics.EmitLatency.Observe(lat.Seconds())
		}
	}

	b.hub.mu.Lock()
	b.hub.seq++
	seq := b.hub.seq
	buf := buildEnvelope(TypeSample, s.JSON(), now, seq)
	// Pushed under the hub lock so snapshot + replay never miss a seq.
	b.hub.replay.Push(seq, buf)
	b.hub.mu.Unlock()

	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for client := range b.hub.clients {
		if client.trySend(buf) {
			b.hub.countSent(TypeSample)
		} else {
			b.hub.countDrop()
		}
	}
}

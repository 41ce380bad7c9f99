package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"energy-livefeed/internal/model"
	"energy-livefeed/internal/telemetry"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// fakeSource is a fixed in-memory WindowSource.
type fakeSource struct {
	mu      sync.Mutex
	samples []model.Sample
}

func (f *fakeSource) Latest() (model.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.samples) == 0 {
		return model.Sample{}, telemetry.ErrNotSeeded
	}
	return f.samples[len(f.samples)-1], nil
}

func (f *fakeSource) Window(n int) []model.Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n <= 0 {
		n = telemetry.DefaultWindow
	}
	if n > len(f.samples) {
		n = len(f.samples)
	}
	if n == 0 {
		return nil
	}
	out := make([]model.Sample, n)
	copy(out, f.samples[len(f.samples)-n:])
	return out
}

func (f *fakeSource) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

func makeSamples(n int) []model.Sample {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := make([]model.Sample, n)
	for i := range out {
		out[i] = model.Sample{
			TS:            base.Add(time.Duration(i) * 2 * time.Second),
			InverterKW:    2.0 + float64(i)*0.25,
			GridKW:        -0.6,
			LoadKW:        1.8,
			BreakerClosed: true,
		}
	}
	return out
}

func TestBuildEnvelope_Format(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	got := string(buildEnvelope(TypeSample, []byte(`{"a":1}`), ts, 7))
	want := `{"type":"sample","data":{"a":1},"ts":"2024-05-01T12:00:00Z","seq":7}`
	if got != want {
		t.Fatalf("envelope = %s, want %s", got, want)
	}

	var env Envelope
	if err := json.Unmarshal([]byte(got), &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if env.Type != TypeSample || env.Seq != 7 {
		t.Errorf("parsed envelope = %+v", env)
	}
}

func TestHub_PublishAssignsSeqAndReplays(t *testing.T) {
	hub := NewHub(&fakeSource{}, HubOptions{ReplayCapacity: 10})
	for _, s := range makeSamples(3) {
		hub.Publish(s)
	}
	if hub.Seq() != 3 {
		t.Fatalf("Seq = %d, want 3", hub.Seq())
	}

	missed := hub.Missed(2, 3)
	if len(missed) != 2 {
		t.Fatalf("Missed(2,3) returned %d envelopes, want 2", len(missed))
	}
	var env Envelope
	if err := json.Unmarshal(missed[0], &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Seq != 2 || env.Type != TypeSample {
		t.Errorf("first missed envelope = %+v, want seq 2 sample", env)
	}
	var s model.Sample
	if err := json.Unmarshal(env.Data, &s); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if s.InverterKW != 2.25 {
		t.Errorf("data inverter_kw = %v, want 2.25", s.InverterKW)
	}
}

// wsServer starts the routes on an httptest server and returns its ws URL.
func wsServer(t *testing.T, hub *Hub, src model.WindowSource) string {
	t.Helper()
	r := mux.NewRouter()
	RegisterRoutes(r, hub, src, RouteOptions{})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// wsReader collects envelopes from a connection, splitting coalesced frames.
type wsReader struct {
	t       *testing.T
	conn    *websocket.Conn
	pending []Envelope
}

func (r *wsReader) next() Envelope {
	r.t.Helper()
	for len(r.pending) == 0 {
		r.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, msg, err := r.conn.ReadMessage()
		if err != nil {
			r.t.Fatalf("read: %v", err)
		}
		for _, part := range bytes.Split(msg, []byte{'\n'}) {
			var env Envelope
			if err := json.Unmarshal(part, &env); err != nil {
				r.t.Fatalf("bad envelope %q: %v", part, err)
			}
			r.pending = append(r.pending, env)
		}
	}
	env := r.pending[0]
	r.pending = r.pending[1:]
	return env
}

func dial(t *testing.T, url string) *wsReader {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsReader{t: t, conn: conn}
}

func TestHub_SnapshotThenSamples(t *testing.T) {
	src := &fakeSource{samples: makeSamples(5)}
	hub := NewHub(src, HubOptions{Window: 3})
	r := dial(t, wsServer(t, hub, src))

	snap := r.next()
	if snap.Type != TypeSnapshot {
		t.Fatalf("first envelope type = %q, want snapshot", snap.Type)
	}
	var window []model.Sample
	if err := json.Unmarshal(snap.Data, &window); err != nil {
		t.Fatalf("snapshot data: %v", err)
	}
	if len(window) != 3 {
		t.Fatalf("snapshot has %d samples, want 3", len(window))
	}
	if !window[2].TS.Equal(src.samples[4].TS) {
		t.Errorf("snapshot does not end with the latest sample")
	}
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", hub.ClientCount())
	}

	hub.Publish(makeSamples(6)[5])
	env := r.next()
	if env.Type != TypeSample || env.Seq != 1 {
		t.Fatalf("envelope = %+v, want sample seq 1", env)
	}
}

func TestHub_ResumeFromLastSeq(t *testing.T) {
	src := &fakeSource{samples: makeSamples(5)}
	hub := NewHub(src, HubOptions{})
	for _, s := range makeSamples(3) {
		hub.Publish(s)
	}

	r := dial(t, wsServer(t, hub, src)+"?last_seq=1")
	for _, want := range []int64{2, 3} {
		env := r.next()
		if env.Type != TypeSample || env.Seq != want {
			t.Fatalf("envelope = %s seq %d, want sample seq %d", env.Type, env.Seq, want)
		}
	}
}

func TestHub_ResumeTooOldGetsSnapshot(t *testing.T) {
	src := &fakeSource{samples: makeSamples(5)}
	hub := NewHub(src, HubOptions{ReplayCapacity: 2})
	for _, s := range makeSamples(5) {
		hub.Publish(s)
	}

	r := dial(t, wsServer(t, hub, src)+"?last_seq=1")
	if env := r.next(); env.Type != TypeSnapshot || env.Seq != 5 {
		t.Fatalf("envelope = %s seq %d, want snapshot seq 5", env.Type, env.Seq)
	}
}

func TestHub_ResumeAheadOfServerGetsSnapshot(t *testing.T) {
	src := &fakeSource{samples: makeSamples(5)}
	hub := NewHub(src, HubOptions{})
	for _, s := range makeSamples(3) {
		hub.Publish(s)
	}

	// A view that outlived a server restart still holds a larger seq.
	r := dial(t, wsServer(t, hub, src)+"?last_seq=50")
	env := r.next()
	if env.Type != TypeSnapshot || env.Seq != hub.Seq() {
		t.Fatalf("envelope = %s seq %d, want snapshot seq %d", env.Type, env.Seq, hub.Seq())
	}
	var window []model.Sample
	if err := json.Unmarshal(env.Data, &window); err != nil {
		t.Fatalf("snapshot data: %v", err)
	}
	if len(window) != 5 {
		t.Errorf("snapshot has %d samples, want 5", len(window))
	}
}

func TestClient_PingAndWindow(t *testing.T) {
	src := &fakeSource{samples: makeSamples(10)}
	hub := NewHub(src, HubOptions{})
	r := dial(t, wsServer(t, hub, src))
	r.next() // snapshot

	if err := r.conn.WriteMessage(websocket.TextMessage, []byte(`{"ping":123}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	r.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := r.conn.ReadMessage()
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	var pong struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	if err := json.Unmarshal(msg, &pong); err != nil {
		t.Fatalf("pong: %v", err)
	}
	if pong.Type != TypePong || pong.Ping != 123 {
		t.Errorf("pong = %+v", pong)
	}

	if err := r.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"WINDOW","n":4}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	env := r.next()
	if env.Type != TypeWindow {
		t.Fatalf("type = %q, want window", env.Type)
	}
	var window []model.Sample
	if err := json.Unmarshal(env.Data, &window); err != nil {
		t.Fatalf("window data: %v", err)
	}
	if len(window) != 4 {
		t.Errorf("window has %d samples, want 4", len(window))
	}
}

func TestHub_RemoveClientOnClose(t *testing.T) {
	src := &fakeSource{samples: makeSamples(2)}
	hub := NewHub(src, HubOptions{})
	counts := make(chan int, 4)
	hub.OnClientCount = func(n int) { counts <- n }

	r := dial(t, wsServer(t, hub, src))
	r.next()
	r.conn.Close()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case n := <-counts:
			if n == 0 {
				return
			}
		case <-deadline:
			t.Fatalf("client was not removed, ClientCount = %d", hub.ClientCount())
		}
	}
}

func TestWS_OriginAllowList(t *testing.T) {
	src := &fakeSource{samples: makeSamples(2)}
	hub := NewHub(src, HubOptions{})
	r := mux.NewRouter()
	RegisterRoutes(r, hub, src, RouteOptions{AllowedOrigins: []string{"http://dash.example"}})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	if err == nil {
		t.Fatal("upgrade from a foreign origin should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign origin: resp = %v, want 403", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://DASH.example"}})
	if err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	reader := &wsReader{t: t, conn: conn}
	if env := reader.next(); env.Type != TypeSnapshot {
		t.Fatalf("first envelope = %q, want snapshot", env.Type)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		allowed []string
		origin  string
		want    bool
	}{
		{nil, "http://any.example", true},
		{[]string{"*"}, "http://any.example", true},
		{[]string{"http://a.example"}, "http://a.example", true},
		{[]string{"http://a.example"}, "http://b.example", false},
		{[]string{"http://a.example"}, "", true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := originChecker(tt.allowed)(req); got != tt.want {
			t.Errorf("originChecker(%v)(%q) = %v, want %v", tt.allowed, tt.origin, got, tt.want)
		}
	}
}

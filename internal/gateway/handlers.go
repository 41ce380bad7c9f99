package gateway

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"energy-livefeed/internal/logger"
	"energy-livefeed/internal/metrics"
	"energy-livefeed/internal/model"
	"energy-livefeed/internal/render"
	"energy-livefeed/internal/telemetry"
	"energy-livefeed/internal/tiles"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const maxCanvas = 4000

// RouteOptions configures RegisterRoutes. Zero values select defaults.
type RouteOptions struct {
	Window  int
	CanvasW int
	CanvasH int
	Start   time.Time
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus

	// AllowedOrigins limits browser WebSocket upgrades, matching the CORS
	// list. Empty or "*" allows every origin.
	AllowedOrigins []string
}

// RegisterRoutes registers the WebSocket endpoint and the REST API on r.
func RegisterRoutes(r *mux.Router, hub *Hub, src model.WindowSource, opts RouteOptions) {
	if opts.Window <= 0 {
		opts.Window = telemetry.DefaultWindow
	}
	if opts.CanvasW <= 0 {
		opts.CanvasW = 600
	}
	if opts.CanvasH <= 0 {
		opts.CanvasH = 180
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now()
	}

	upgrader := websocket.Upgrader{
		CheckOrigin:       originChecker(opts.AllowedOrigins),
		EnableCompression: true,
	}

	r.Use(requestID)

	// WebSocket endpoint. ?last_seq=N resumes from the replay buffer.
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		var lastSeq int64
		if v := req.URL.Query().Get("last_seq"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "last_seq must be a non-negative integer")
				return
			}
			lastSeq = n
		}
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			slog.Warn("ws upgrade failed", append(logger.LogWithRequest(req.Context()), slog.Any("error", err))...)
			return
		}
		hub.HandleWSRequest(conn, lastSeq)
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(instrument(opts.Metrics))

	api.HandleFunc("/latest", func(w http.ResponseWriter, req *http.Request) {
		s, err := src.Latest()
		if err != nil {
			writeSourceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}).Methods(http.MethodGet)

	api.HandleFunc("/window", func(w http.ResponseWriter, req *http.Request) {
		n, ok := queryInt(w, req, "n", opts.Window, 1, 1<<16)
		if !ok {
			return
		}
		samples := src.Window(n)
		if samples == nil {
			samples = []model.Sample{}
		}
		writeJSON(w, http.StatusOK, WindowResponse{N: len(samples), Seq: hub.Seq(), Samples: samples})
	}).Methods(http.MethodGet)

	// Gap backfill: envelopes with seq in [from, to].
	api.HandleFunc("/missed", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
		to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
		if err1 != nil || err2 != nil {
			writeError(w, http.StatusBadRequest, "from and to are required integers")
			return
		}
		if from > to {
			writeError(w, http.StatusBadRequest, "from must be <= to")
			return
		}
		msgs := hub.Missed(from, to)
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, m := range msgs {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(m)
		}
		buf.WriteByte(']')
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}).Methods(http.MethodGet)

	api.HandleFunc("/tiles", func(w http.ResponseWriter, req *http.Request) {
		s, err := src.Latest()
		if err != nil {
			writeSourceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, TilesResponse{
			Frame: tiles.SettledFrame(s, time.Now().UTC()),
			Stats: tiles.QuickStats(),
		})
	}).Methods(http.MethodGet)

	api.HandleFunc("/quick-stats", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, tiles.QuickStats())
	}).Methods(http.MethodGet)

	api.HandleFunc("/sparkline.svg", func(w http.ResponseWriter, req *http.Request) {
		n, ok := queryInt(w, req, "n", opts.Window, 1, 1<<16)
		if !ok {
			return
		}
		width, ok := queryInt(w, req, "w", opts.CanvasW, 1, maxCanvas)
		if !ok {
			return
		}
		height, ok := queryInt(w, req, "h", opts.CanvasH, 1, maxCanvas)
		if !ok {
			return
		}
		if src.Len() == 0 {
			writeError(w, http.StatusServiceUnavailable, telemetry.ErrNotSeeded.Error())
			return
		}
		surface := render.NewSVGSurface(width, height)
		render.Render(surface, src.Window(n))
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		if _, err := surface.WriteTo(w); err != nil {
			slog.Warn("sparkline write failed", append(logger.LogWithRequest(req.Context()), slog.Any("error", err))...)
		}
	}).Methods(http.MethodGet)

	api.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		var health string
		if opts.Health != nil {
			health = opts.Health.Status()
		}
		writeJSON(w, http.StatusOK, hub.Status(health, opts.Start))
	}).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and otherwise requires a case-insensitive match against allowed.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(o)] = true
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[strings.ToLower(origin)]
	}
}

// queryInt parses an optional integer query parameter bounded to [lo, hi].
// On failure it writes a 400 and returns ok=false.
func queryInt(w http.ResponseWriter, req *http.Request, key string, def, lo, hi int) (int, bool) {
	v := req.URL.Query().Get(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		writeError(w, http.StatusBadRequest,
			key+" must be an integer in ["+strconv.Itoa(lo)+", "+strconv.Itoa(hi)+"]")
		return 0, false
	}
	return n, true
}

func writeSourceError(w http.ResponseWriter, err error) {
	if telemetry.IsNotSeeded(err) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

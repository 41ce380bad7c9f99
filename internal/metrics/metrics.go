package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"energy-livefeed/internal/bus"
	"energy-livefeed/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the live feed.
type Metrics struct {
	TicksTotal     prometheus.Counter
	TickErrors     prometheus.Counter
	EvictionsTotal prometheus.Counter
	SeriesLen      prometheus.Gauge
	TickDur        prometheus.Histogram

	// Latest published readings
	InverterKW    prometheus.Gauge
	GridKW        prometheus.Gauge
	LoadKW        prometheus.Gauge
	BreakerClosed prometheus.Gauge // 0=open, 1=closed

	// Backpressure
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name

	// Gateway
	WSClients         prometheus.Gauge
	WSBroadcastDrops  prometheus.Counter
	WSMessagesTotal   *prometheus.CounterVec // labels: type
	EmitLatency       prometheus.Histogram   // sample-to-WS-emit latency
	HTTPRequestsTotal *prometheus.CounterVec // labels: route, code
}

// NewMetrics creates all metrics and registers them with reg.
// Passing prometheus.DefaultRegisterer exposes them on promhttp.Handler().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livefeed_ticks_total",
			Help: "Total samples appended by the tick timer",
		}),
		TickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livefeed_tick_errors_total",
			Help: "Ticks skipped because the series was not seeded",
		}),
		EvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livefeed_evictions_total",
			Help: "Samples evicted from the bounded series",
		}),
		SeriesLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livefeed_series_len",
			Help: "Current number of samples held in the series",
		}),
		TickDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "livefeed_tick_duration_seconds",
			Help:    "Time spent generating a sample and notifying observers",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),

		InverterKW: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livefeed_inverter_kw",
			Help: "Latest simulated inverter power",
		}),
		GridKW: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livefeed_grid_kw",
			Help: "Latest simulated grid power (negative = export)",
		}),
		LoadKW: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livefeed_load_kw",
			Help: "Latest simulated load power",
		}),
		BreakerClosed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livefeed_breaker_closed",
			Help: "Latest simulated breaker state (0=open, 1=closed)",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livefeed_fanout_drops_total",
			Help: "Samples dropped by the FanOut bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "livefeed_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livefeed_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		WSBroadcastDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livefeed_ws_broadcast_drops_total",
			Help: "Envelopes dropped because a client send buffer was full",
		}),
		WSMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livefeed_ws_messages_total",
			Help: "Envelopes sent to WebSocket clients by type",
		}, []string{"type"}),
		EmitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "livefeed_emit_latency_seconds",
			Help:    "Latency from sample timestamp to WebSocket broadcast",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livefeed_http_requests_total",
			Help: "REST requests by route and status code",
		}, []string{"route", "code"}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.TickErrors,
		m.EvictionsTotal,
		m.SeriesLen,
		m.TickDur,
		m.InverterKW,
		m.GridKW,
		m.LoadKW,
		m.BreakerClosed,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.WSClients,
		m.WSBroadcastDrops,
		m.WSMessagesTotal,
		m.EmitLatency,
		m.HTTPRequestsTotal,
	)

	return m
}

// ObserveTick records one completed feed tick. Matches telemetry.Feed.OnTick.
func (m *Metrics) ObserveTick(ti telemetry.TickInfo) {
	m.TicksTotal.Inc()
	if ti.Evicted {
		m.EvictionsTotal.Inc()
	}
	m.SeriesLen.Set(float64(ti.Len))
	m.TickDur.Observe(ti.Duration.Seconds())

	m.InverterKW.Set(ti.Sample.InverterKW)
	m.GridKW.Set(ti.Sample.GridKW)
	m.LoadKW.Set(ti.Sample.LoadKW)
	if ti.Sample.BreakerClosed {
		m.BreakerClosed.Set(1)
	} else {
		m.BreakerClosed.Set(0)
	}
}

// TickError records a skipped tick. Matches telemetry.Feed.OnTickError.
func (m *Metrics) TickError(error) {
	m.TickErrors.Inc()
}

// FanoutDrop records a dropped sample. Matches bus.FanOut.OnDrop.
func (m *Metrics) FanoutDrop(subscriberIdx int) {
	m.FanoutDropsTotal.WithLabelValues(strconv.Itoa(subscriberIdx)).Inc()
}

// ReportSaturation publishes per-subscriber fill levels of fo.
func (m *Metrics) ReportSaturation(fo *bus.FanOut) {
	for i, st := range fo.ChannelStats() {
		pct := 0.0
		if st.Cap > 0 {
			pct = float64(st.Len) / float64(st.Cap) * 100
		}
		m.ChannelSaturationPct.WithLabelValues("fanout_" + strconv.Itoa(i)).Set(pct)
	}
}

// StartSaturationReporter samples fo every interval until ctx is cancelled.
func (m *Metrics) StartSaturationReporter(ctx context.Context, fo *bus.FanOut, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ReportSaturation(fo)
			}
		}
	}()
}

// HealthStatus represents the feed health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedRunning  bool          `json:"feed_running"`
	LastTickTime time.Time     `json:"last_tick_time"`
	TickInterval time.Duration `json:"tick_interval"`
	SeriesLen    int           `json:"series_len"`
	WSClients    int           `json:"ws_clients"`
	StartedAt    time.Time     `json:"started_at"`

	now func() time.Time
}

// NewHealthStatus returns a default health status for a feed ticking every interval.
func NewHealthStatus(interval time.Duration) *HealthStatus {
	return &HealthStatus{
		TickInterval: interval,
		StartedAt:    time.Now(),
		now:          time.Now,
	}
}

func (h *HealthStatus) SetFeedRunning(v bool) {
	h.mu.Lock()
	h.FeedRunning = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetWSClients(n int) {
	h.mu.Lock()
	h.WSClients = n
	h.mu.Unlock()
}

// ObserveTick records the time and series length of a tick.
func (h *HealthStatus) ObserveTick(ti telemetry.TickInfo) {
	h.mu.Lock()
	h.LastTickTime = h.now()
	h.SeriesLen = ti.Len
	h.mu.Unlock()
}

// staleAfter is how many missed intervals make the feed degraded.
const staleAfter = 3

// Status returns "healthy", "degraded" or "unhealthy".
func (h *HealthStatus) Status() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status()
}

func (h *HealthStatus) status() string {
	if !h.FeedRunning {
		return "unhealthy"
	}
	ref := h.LastTickTime
	if ref.IsZero() {
		ref = h.StartedAt
	}
	if h.now().Sub(ref) > staleAfter*h.TickInterval {
		return "degraded"
	}
	return "healthy"
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := h.status()
	httpCode := http.StatusOK
	if overallStatus != "healthy" {
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	lastTick := ""
	if !h.LastTickTime.IsZero() {
		tickAge = h.now().Sub(h.LastTickTime).Round(time.Millisecond).String()
		lastTick = h.LastTickTime.Format(time.RFC3339)
	}

	status := struct {
		Status       string `json:"status"`
		Uptime       string `json:"uptime"`
		FeedRunning  bool   `json:"feed_running"`
		LastTickTime string `json:"last_tick_time"`
		TickAge      string `json:"tick_age"`
		TickInterval string `json:"tick_interval"`
		SeriesLen    int    `json:"series_len"`
		WSClients    int    `json:"ws_clients"`
	}{
		Status:       overallStatus,
		Uptime:       h.now().Sub(h.StartedAt).Round(time.Second).String(),
		FeedRunning:  h.FeedRunning,
		LastTickTime: lastTick,
		TickAge:      tickAge,
		TickInterval: h.TickInterval.String(),
		SeriesLen:    h.SeriesLen,
		WSClients:    h.WSClients,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server backed by gatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

package gateway

import (
	"energy-livefeed/internal/model"
	"energy-livefeed/internal/tiles"
)

// WindowResponse is the body of GET /api/window.
type WindowResponse struct {
	N       int            `json:"n"`
	Seq     int64          `json:"seq"`
	Samples []model.Sample `json:"samples"`
}

// TilesResponse is the body of GET /api/tiles.
type TilesResponse struct {
	Frame tiles.Frame       `json:"frame"`
	Stats []tiles.QuickStat `json:"quick_stats"`
}

// LatencyDTO reports sample-to-emit latency percentiles in milliseconds.
type LatencyDTO struct {
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
	Count int     `json:"count"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status    string         `json:"status"`
	WSClients int            `json:"ws_clients"`
	Seq       int64          `json:"seq"`
	SeriesLen int            `json:"series_len"`
	Replay    int            `json:"replay_len"`
	Latency   LatencyDTO     `json:"latency"`
	Runtime   RuntimeMetrics `json:"runtime"`
	UptimeSec int64          `json:"uptime_sec"`
	TS        string         `json:"ts"`
}

// errorResponse is the body of every non-2xx JSON reply.
type errorResponse struct {
	Error string `json:"error"`
}

package gateway

import (
	"runtime"
	"time"
)

// RuntimeMetrics holds process resource usage.
type RuntimeMetrics struct {
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	GCRuns      uint32  `json:"gc_runs"`
	Goroutines  int     `json:"goroutines"`
	CPUCores    int     `json:"cpu_cores"`
}

// CollectRuntime samples Go runtime statistics.
func CollectRuntime() RuntimeMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return RuntimeMetrics{
		HeapAllocMB: round2(float64(ms.HeapAlloc) / 1024 / 1024),
		SysMB:       round2(float64(ms.Sys) / 1024 / 1024),
		GCRuns:      ms.NumGC,
		Goroutines:  runtime.NumGoroutine(),
		CPUCores:    runtime.NumCPU(),
	}
}

// Status assembles the /api/status body. health may be empty.
func (h *Hub) Status(health string, start time.Time) StatusResponse {
	p50, p95, p99 := h.Latency.Percentiles()
	if health == "" {
		health = "ok"
	}
	return StatusResponse{
		Status:    health,
		WSClients: h.ClientCount(),
		Seq:       h.Seq(),
		SeriesLen: h.src.Len(),
		Replay:    h.replay.Len(),
		Latency: LatencyDTO{
			P50:   round2(p50),
			P95:   round2(p95),
			P99:   round2(p99),
			Count: h.Latency.Count(),
		},
		Runtime:   CollectRuntime(),
		UptimeSec: int64(time.Since(start).Seconds()),
		TS:        time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

package model

import (
	"encoding/json"
	"time"
)

// Sample is one synthetic telemetry observation of the controller.
// Power readings are kilowatts; GridKW is signed (negative = export).
type Sample struct {
	TS            time.Time `json:"ts"`
	InverterKW    float64   `json:"inverter_kw"`
	GridKW        float64   `json:"grid_kw"`
	LoadKW        float64   `json:"load_kw"`
	BreakerClosed bool      `json:"breaker_closed"`
}

// Value returns the reading for the given channel.
func (s Sample) Value(ch Channel) float64 {
	switch ch {
	case Inverter:
		return s.InverterKW
	case Grid:
		return s.GridKW
	case Load:
		return s.LoadKW
	}
	return 0
}

// JSON returns the JSON-encoded sample (ignoring errors for hot-path usage).
func (s *Sample) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

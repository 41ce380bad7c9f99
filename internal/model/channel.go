package model

// Channel names one plotted power quantity.
type Channel string

const (
	Inverter Channel = "inverter"
	Load     Channel = "load"
	Grid     Channel = "grid"
)

// Channels lists every channel in drawing order.
var Channels = []Channel{Inverter, Load, Grid}

// channelColors are the fixed stroke colours of the sparkline.
var channelColors = map[Channel]string{
	Inverter: "#4fe1c1",
	Load:     "#7aa0ff",
	Grid:     "#f4bf4f",
}

// Color returns the stroke colour for the channel, or "" if unknown.
func (c Channel) Color() string {
	return channelColors[c]
}

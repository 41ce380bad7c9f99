package tiles

// QuickStat is one line of the static quick-stats list.
type QuickStat struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// QuickStats returns the quick-stats list shown next to the live chart.
func QuickStats() []QuickStat {
	return []QuickStat{
		{Label: "Auto mode", Value: "Enabled"},
		{Label: "Safety", Value: "Active"},
		{Label: "Data latency", Value: "< 1.2s"},
		{Label: "Uptime (30d)", Value: "99.97%"},
	}
}

// String renders the stat as "Label: Value".
func (q QuickStat) String() string {
	return q.Label + ": " + q.Value
}

package model

// ── Feed Port Interfaces ──
// These interfaces decouple consumers (gateway, renderer, tiles) from the
// concrete feed implementation.

// Observer is called once per tick with the newly appended sample.
// It runs on the tick goroutine and must not block.
type Observer func(Sample)

// WindowSource exposes read access to the current series.
type WindowSource interface {
	// Latest returns the most recently appended sample.
	Latest() (Sample, error)

	// Window returns the last n samples in chronological order.
	Window(n int) []Sample

	// Len returns the number of samples currently held.
	Len() int
}

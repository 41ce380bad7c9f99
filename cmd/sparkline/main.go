// cmd/sparkline renders the mock feed offline: it seeds a local series,
// advances it by --ticks manual ticks and writes the last --window samples
// as an SVG sparkline.
//
// Usage:
//
//	go run ./cmd/sparkline --ticks=60 --window=40 --out=sparkline.svg
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"

	"energy-livefeed/internal/logger"
	"energy-livefeed/internal/render"
	"energy-livefeed/internal/telemetry"
)

func main() {
	ticks := flag.Int("ticks", 0, "Manual ticks to apply after seeding")
	window := flag.Int("window", telemetry.DefaultWindow, "Samples to plot")
	out := flag.String("out", "-", "Output file (- for stdout)")
	width := flag.Int("w", 600, "Canvas width in px")
	height := flag.Int("h", 180, "Canvas height in px")
	seed := flag.Int64("seed", 0, "Random seed (0 = time based)")
	level := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	log := logger.New(os.Stderr, "sparkline", logger.ParseLevel(*level))

	if err := run(*ticks, *window, *width, *height, *seed, *out, log); err != nil {
		log.Error("sparkline failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ticks, window, width, height int, seed int64, out string, log *slog.Logger) error {
	if ticks < 0 {
		return fmt.Errorf("--ticks must be >= 0, got %d", ticks)
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("canvas must be positive, got %dx%d", width, height)
	}

	cfg := telemetry.Config{}
	if seed != 0 {
		cfg.Rand = rand.New(rand.NewSource(seed))
	}
	feed := telemetry.NewFeed(telemetry.NewSeries(cfg), 0, log)

	evicted := 0
	feed.OnTick = func(ti telemetry.TickInfo) {
		if ti.Evicted {
			evicted++
		}
	}
	feed.Seed()
	for i := 0; i < ticks; i++ {
		if _, err := feed.TickOnce(); err != nil {
			return fmt.Errorf("tick %d: %w", i, err)
		}
	}
	log.Info("series ready", slog.Int("len", feed.Len()), slog.Int("evicted", evicted))

	surface := render.NewSVGSurface(width, height)
	render.Render(surface, feed.Window(window))

	var w io.Writer = os.Stdout
	if out != "-" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	if _, err := surface.WriteTo(w); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}

// cmd/feedview is a terminal view of the live feed. It subscribes to the
// feed server, animates the dashboard tiles on a single status line and,
// when SPARKLINE_PATH is set, keeps an SVG sparkline of the recent window
// up to date on disk.
//
// Usage:
//
//	FEED_URL=ws://localhost:8080/ws SPARKLINE_PATH=live.svg go run ./cmd/feedview
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"energy-livefeed/config"
	"energy-livefeed/internal/bus"
	"energy-livefeed/internal/feedclient"
	"energy-livefeed/internal/logger"
	"energy-livefeed/internal/model"
	"energy-livefeed/internal/render"
	"energy-livefeed/internal/ringbuf"
	"energy-livefeed/internal/tiles"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Logs go to stderr so the status line on stdout stays readable.
	log := logger.New(os.Stderr, "feedview", logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := feedclient.New(feedclient.Config{URL: cfg.FeedURL, Logger: log})
	if err != nil {
		log.Error("feed client", slog.Any("error", err))
		os.Exit(1)
	}
	client.OnGap = func(from, to int64) {
		log.Warn("samples missed", slog.Int64("from_seq", from), slog.Int64("to_seq", to))
	}

	in := make(chan model.Sample, cfg.BusBufferSize)
	fanout := bus.New(cfg.BusBufferSize)
	tilesIn := fanout.Subscribe()
	chartIn := fanout.Subscribe()

	go func() {
		for {
			select {
			case <-ctx.Done():
				fanout.Close()
				return
			case s := <-in:
				fanout.Publish(s)
			}
		}
	}()

	for _, q := range tiles.QuickStats() {
		fmt.Println(q.String())
	}

	board := tiles.NewBoard(cfg.AnimationDuration)
	go board.Run(ctx, tilesIn, cfg.FrameInterval, func(f tiles.Frame) {
		fmt.Print("\r" + statusLine(f))
	})

	go runChart(ctx, chartIn, cfg, log)

	if err := client.Start(ctx, in); err != nil {
		log.Error("feed client stopped", slog.Any("error", err))
	}
	fmt.Println()
	log.Info("feedview stopped", slog.Int64("last_seq", client.LastSeq()))
}

// statusLine renders a frame as one terminal line.
func statusLine(f tiles.Frame) string {
	var b strings.Builder
	for i, t := range f.Numeric {
		if i == 3 {
			break // tile-* duplicate the stat-* values
		}
		fmt.Fprintf(&b, "%s %s | ", t.ID, t.Text)
	}
	fmt.Fprintf(&b, "breaker %s (%s) | mode %s", f.Breaker, f.BreakerNote, f.Mode)
	return b.String()
}

// runChart keeps a local window of samples and redraws the sparkline into
// cfg.SparklinePath after every sample. With no path the surface is nil and
// rendering is skipped.
func runChart(ctx context.Context, in <-chan model.Sample, cfg *config.Config, log *slog.Logger) {
	window := ringbuf.New(cfg.Capacity)

	var surface render.Surface
	var svg *render.SVGSurface
	if cfg.SparklinePath != "" {
		svg = render.NewSVGSurface(cfg.CanvasWidth, cfg.CanvasHeight)
		surface = svg
	}

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in:
			if !ok {
				return
			}
			window.Push(s)
			render.Render(surface, window.Tail(cfg.WindowSize))
			if svg == nil {
				continue
			}
			if err := writeFileAtomic(cfg.SparklinePath, svg.Bytes()); err != nil {
				log.Warn("sparkline write failed", slog.String("path", cfg.SparklinePath), slog.Any("error", err))
			}
		}
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".sparkline-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Package feedclient connects a view to the feed server's WebSocket and
// turns its envelopes back into samples.
//
// Wire format, one JSON envelope per line (frames may batch several):
//
//	{"type":"snapshot","data":[{...},...],"ts":"...","seq":12}
//	{"type":"sample","data":{...},"ts":"...","seq":13}
//
// After a disconnect the client redials with ?last_seq=N so the server can
// replay what was missed; anything the server could not replay is reported
// through OnGap.
package feedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"energy-livefeed/internal/model"

	"github.com/gorilla/websocket"
)

// Config holds configuration for the feed client.
type Config struct {
	// URL of the feed WebSocket, e.g. "ws://localhost:8080/ws".
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client streams samples from a feed server.
type Client struct {
	cfg     Config
	log     *slog.Logger
	lastSeq atomic.Int64
	lastTS  time.Time // read goroutine only

	// Optional hook, called each time a reconnection is scheduled.
	OnReconnect func()

	// Optional hook, called with the inclusive range of sequence numbers
	// that were skipped between two sample envelopes.
	OnGap func(from, to int64)
}

// envelope mirrors the server's message shape.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	Seq  int64           `json:"seq"`
}

// New creates a Client. Returns an error if the URL is not a ws/wss URL.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("feedclient: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("feedclient: unsupported scheme %q", u.Scheme)
	}
	return &Client{cfg: cfg, log: cfg.Logger.With(slog.String("component", "feedclient"))}, nil
}

// LastSeq returns the sequence number of the last sample delivered.
func (c *Client) LastSeq() int64 { return c.lastSeq.Load() }

// Start connects and streams samples into out. Blocks until ctx is
// cancelled. Reconnects automatically on disconnect.
func (c *Client) Start(ctx context.Context, out chan<- model.Sample) error {
	delay := c.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, err := c.runOnce(ctx, out)
		if err == nil {
			return nil
		}
		if connected {
			delay = c.cfg.ReconnectDelay
		}

		c.log.Warn("feed disconnected, reconnecting",
			slog.Any("error", err), slog.Duration("delay", delay))
		if c.OnReconnect != nil {
			c.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

func (c *Client) dialURL() string {
	seq := c.lastSeq.Load()
	if seq <= 0 {
		return c.cfg.URL
	}
	u, _ := url.Parse(c.cfg.URL)
	q := u.Query()
	q.Set("last_seq", strconv.FormatInt(seq, 10))
	u.RawQuery = q.Encode()
	return u.String()
}

// runOnce makes a single connection and reads until disconnect or ctx
// cancel. connected reports whether the dial succeeded.
func (c *Client) runOnce(ctx context.Context, out chan<- model.Sample) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.dialURL(), nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	c.log.Info("feed connected", slog.String("url", c.cfg.URL), slog.Int64("last_seq", c.lastSeq.Load()))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}
		for _, line := range bytes.Split(raw, []byte{'\n'}) {
			if len(line) == 0 {
				continue
			}
			if err := c.handle(ctx, line, out); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return true, nil
				}
				c.log.Warn("bad envelope", slog.Any("error", err))
			}
		}
	}
}

func (c *Client) handle(ctx context.Context, line []byte, out chan<- model.Sample) error {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case "snapshot":
		var window []model.Sample
		if err := json.Unmarshal(env.Data, &window); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		// A snapshot after a failed resume overlaps what was already delivered.
		for _, s := range window {
			if !c.lastTS.IsZero() && !s.TS.After(c.lastTS) {
				continue
			}
			if err := deliver(ctx, out, s); err != nil {
				return err
			}
			c.lastTS = s.TS
		}
		c.lastSeq.Store(env.Seq)
	case "sample":
		last := c.lastSeq.Load()
		if env.Seq <= last {
			return nil
		}
		if last > 0 && env.Seq > last+1 && c.OnGap != nil {
			c.OnGap(last+1, env.Seq-1)
		}
		var s model.Sample
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return fmt.Errorf("decode sample: %w", err)
		}
		if err := deliver(ctx, out, s); err != nil {
			return err
		}
		c.lastTS = s.TS
		c.lastSeq.Store(env.Seq)
	}
	return nil
}

func deliver(ctx context.Context, out chan<- model.Sample, s model.Sample) error {
	select {
	case out <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

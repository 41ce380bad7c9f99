package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds all application configuration.
// Values are applied in order: defaults, YAML file, environment variables.
type Config struct {
	// Feed
	TickInterval time.Duration `yaml:"tickInterval"`
	Capacity     int           `yaml:"capacity"`
	SeedCount    int           `yaml:"seedCount"`
	WindowSize   int           `yaml:"windowSize"`

	// Servers
	ListenAddr     string   `yaml:"listenAddr"`
	MetricsAddr    string   `yaml:"metricsAddr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	ReplayCapacity int      `yaml:"replayCapacity"`
	BusBufferSize  int      `yaml:"busBufferSize"`

	// Rendering
	CanvasWidth  int `yaml:"canvasWidth"`
	CanvasHeight int `yaml:"canvasHeight"`

	// View
	FeedURL           string        `yaml:"feedUrl"`
	AnimationDuration time.Duration `yaml:"animationDuration"`
	FrameInterval     time.Duration `yaml:"frameInterval"`
	SparklinePath     string        `yaml:"sparklinePath"`

	// Logging
	LogLevel      string `yaml:"logLevel"`
	LogFile       string `yaml:"logFile"`
	LogMaxSizeMB  int    `yaml:"logMaxSizeMb"`
	LogMaxBackups int    `yaml:"logMaxBackups"`
	LogMaxAgeDays int    `yaml:"logMaxAgeDays"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		TickInterval: 2 * time.Second,
		Capacity:     100,
		SeedCount:    40,
		WindowSize:   40,

		ListenAddr:     ":8080",
		MetricsAddr:    ":9090",
		AllowedOrigins: []string{"*"},
		ReplayCapacity: 500,
		BusBufferSize:  64,

		CanvasWidth:  600,
		CanvasHeight: 180,

		FeedURL:           "ws://localhost:8080/ws",
		AnimationDuration: 600 * time.Millisecond,
		FrameInterval:     16 * time.Millisecond,

		LogLevel:      "info",
		LogMaxSizeMB:  10,
		LogMaxBackups: 3,
		LogMaxAgeDays: 7,
	}
}

// Load reads configuration from an optional .env file, an optional YAML file
// named by LIVEFEED_CONFIG, and environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Defaults()

	if path := os.Getenv("LIVEFEED_CONFIG"); path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg.
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	cfg.TickInterval = getEnvDuration("TICK_INTERVAL", cfg.TickInterval)
	cfg.Capacity = getEnvInt("SERIES_CAPACITY", cfg.Capacity)
	cfg.SeedCount = getEnvInt("SEED_COUNT", cfg.SeedCount)
	cfg.WindowSize = getEnvInt("WINDOW_SIZE", cfg.WindowSize)

	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	cfg.ReplayCapacity = getEnvInt("REPLAY_CAPACITY", cfg.ReplayCapacity)
	cfg.BusBufferSize = getEnvInt("BUS_BUFFER_SIZE", cfg.BusBufferSize)

	cfg.CanvasWidth = getEnvInt("CANVAS_WIDTH", cfg.CanvasWidth)
	cfg.CanvasHeight = getEnvInt("CANVAS_HEIGHT", cfg.CanvasHeight)

	cfg.FeedURL = getEnv("FEED_URL", cfg.FeedURL)
	cfg.AnimationDuration = getEnvDuration("ANIMATION_DURATION", cfg.AnimationDuration)
	cfg.FrameInterval = getEnvDuration("FRAME_INTERVAL", cfg.FrameInterval)
	cfg.SparklinePath = getEnv("SPARKLINE_PATH", cfg.SparklinePath)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.LogMaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", cfg.LogMaxSizeMB)
	cfg.LogMaxBackups = getEnvInt("LOG_MAX_BACKUPS", cfg.LogMaxBackups)
	cfg.LogMaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", cfg.LogMaxAgeDays)
}

// Validate rejects configurations the feed cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval must be positive, got %s", c.TickInterval))
	}
	if c.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("series capacity must be positive, got %d", c.Capacity))
	}
	if c.SeedCount <= 0 || c.SeedCount > c.Capacity {
		errs = append(errs, fmt.Errorf("seed count must be in [1,%d], got %d", c.Capacity, c.SeedCount))
	}
	if c.WindowSize <= 0 || c.WindowSize > c.Capacity {
		errs = append(errs, fmt.Errorf("window size must be in [1,%d], got %d", c.Capacity, c.WindowSize))
	}
	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 {
		errs = append(errs, fmt.Errorf("canvas must be positive, got %dx%d", c.CanvasWidth, c.CanvasHeight))
	}
	if c.AnimationDuration <= 0 || c.FrameInterval <= 0 {
		errs = append(errs, errors.New("animation duration and frame interval must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: ignoring invalid integer", slog.String("key", key), slog.String("value", v))
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("1500ms") or plain milliseconds ("1500").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	slog.Warn("config: ignoring invalid duration", slog.String("key", key), slog.String("value", v))
	return fallback
}

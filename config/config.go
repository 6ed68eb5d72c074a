package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Addr is the TCP address the service listens on and clients dial
	Addr             string
	MaxRetries       int
	RetryInterval    time.Duration
	FrameCount       int
	Device           string
	FramesPerBuffer  int
	ProgressInterval time.Duration
	LogLevel         string
	// MetricsAddr serves /metrics when set
	MetricsAddr string
}

func Default() *Config {
	return &Config{
		Addr:             "127.0.0.1:21027",
		MaxRetries:       25,
		RetryInterval:    200 * time.Millisecond,
		FrameCount:       5,
		Device:           "default",
		FramesPerBuffer:  1024,
		ProgressInterval: 500 * time.Millisecond,
		LogLevel:         "info",
	}
}

// LoadConfig reads .env when present, then the AUDIOD_* environment
// variables. Unset variables keep their defaults.
func LoadConfig(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := Default()
	var err error
	cfg.Addr = getString("AUDIOD_ADDR", cfg.Addr)
	cfg.Device = getString("AUDIOD_DEVICE", cfg.Device)
	cfg.LogLevel = getString("AUDIOD_LOG_LEVEL", cfg.LogLevel)
	cfg.MetricsAddr = getString("AUDIOD_METRICS_ADDR", cfg.MetricsAddr)

	if cfg.MaxRetries, err = getInt("AUDIOD_MAX_RETRIES", cfg.MaxRetries); err != nil {
		return nil, err
	}
	if cfg.FrameCount, err = getInt("AUDIOD_FRAME_COUNT", cfg.FrameCount); err != nil {
		return nil, err
	}
	if cfg.FramesPerBuffer, err = getInt("AUDIOD_FRAMES_PER_BUFFER", cfg.FramesPerBuffer); err != nil {
		return nil, err
	}
	if cfg.RetryInterval, err = getMillis("AUDIOD_RETRY_INTERVAL_MS", cfg.RetryInterval); err != nil {
		return nil, err
	}
	if cfg.ProgressInterval, err = getMillis("AUDIOD_PROGRESS_INTERVAL_MS", cfg.ProgressInterval); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("address must not be empty")
	case c.MaxRetries < 0:
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	case c.FrameCount < 1:
		return fmt.Errorf("frame count must be at least 1, got %d", c.FrameCount)
	case c.FramesPerBuffer < 1:
		return fmt.Errorf("frames per buffer must be at least 1, got %d", c.FramesPerBuffer)
	case c.RetryInterval < 0:
		return fmt.Errorf("retry interval must not be negative, got %s", c.RetryInterval)
	case c.ProgressInterval <= 0:
		return fmt.Errorf("progress interval must be positive, got %s", c.ProgressInterval)
	}
	return nil
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return n, nil
}

func getMillis(key string, def time.Duration) (time.Duration, error) {
	n, err := getInt(key, int(def/time.Millisecond))
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Millisecond, nil
}

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	plog "github.com/seantiz/polyglot/internal/log"
	"github.com/seantiz/polyglot/internal/worker"
)

const (
	defaultListenAddr  = "127.0.0.1:8000"
	defaultDBPath      = "polyglot.db"
	defaultDevice      = "cpu"
	defaultModelName   = "glossary"
	defaultModelPath   = "downloaded_translation_models"
	defaultIdleTimeout = 60 * time.Second
	defaultGracePeriod = 5 * time.Second
	defaultEnvFile     = ".env"

	envListenAddr  = "POLYGLOT_LISTEN_ADDR"
	envDBPath      = "POLYGLOT_DB_PATH"
	envLogLevel    = "POLYGLOT_LOG_LEVEL"
	envDevice      = "POLYGLOT_DEVICE"
	envModelName   = "POLYGLOT_MODEL_NAME"
	envModelPath   = "POLYGLOT_MODEL_PATH"
	envIdleTimeout = "POLYGLOT_MODEL_IDLE_TIMEOUT"
	envGracePeriod = "POLYGLOT_WORKER_GRACE_PERIOD"
)

// ErrInvalidConfig is returned for configuration values that parse but
// cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr  string
	DBPath      string
	LogLevel    slog.Level
	Device      string
	ModelName   string
	ModelPath   string
	IdleTimeout time.Duration
	GracePeriod time.Duration
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an
// error. An empty path means ".env".
func LoadEnvFile(path string) error {
	if path == "" {
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:  defaultListenAddr,
		DBPath:      defaultDBPath,
		LogLevel:    slog.LevelInfo,
		Device:      defaultDevice,
		ModelName:   defaultModelName,
		ModelPath:   defaultModelPath,
		IdleTimeout: defaultIdleTimeout,
		GracePeriod: defaultGracePeriod,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = ParseLogLevel(v)
	}
	if v := os.Getenv(envDevice); v != "" {
		cfg.Device = v
	}
	if v := os.Getenv(envModelName); v != "" {
		cfg.ModelName = v
	}
	if v := os.Getenv(envModelPath); v != "" {
		cfg.ModelPath = v
	}
	if v := os.Getenv(envIdleTimeout); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", envIdleTimeout, err)
		}
		cfg.IdleTimeout = d
	}
	if v := os.Getenv(envGracePeriod); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", envGracePeriod, err)
		}
		cfg.GracePeriod = d
	}

	return cfg, nil
}

// Validate rejects values that parse but cannot be used.
func (c Config) Validate() error {
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("%w: idle timeout must be positive, got %s", ErrInvalidConfig, c.IdleTimeout)
	}
	if c.GracePeriod <= 0 {
		return fmt.Errorf("%w: grace period must be positive, got %s", ErrInvalidConfig, c.GracePeriod)
	}
	if c.ModelName == "" {
		return fmt.Errorf("%w: model name is required", ErrInvalidConfig)
	}
	return nil
}

// WorkerConfig returns the immutable configuration handed to worker children.
func (c Config) WorkerConfig() worker.Config {
	return worker.Config{
		Device:      c.Device,
		Model:       c.ModelName,
		StoragePath: c.ModelPath,
		LogLevel:    strings.ToLower(c.LogLevel.String()),
	}
}

// parseSeconds accepts a Go duration ("90s", "2m") or a plain number of seconds.
func parseSeconds(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return d, nil
}

// ParseLogLevel maps a level name to a slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured
// level. Attributes stored on a context with log.ContextAttrs are added to
// records logged with that context.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(plog.NewContextHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})))
}

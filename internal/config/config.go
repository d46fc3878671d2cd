package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates every knob of the server.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Chat     ChatConfig
	Sessions SessionConfig
	Catalog  CatalogConfig
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level string
	JSON  bool
}

type ChatConfig struct {
	// ReplyDelay is the simulated typing time before a canned answer appears.
	ReplyDelay time.Duration
	// FallbackReply is sent for unrecognised questions. Empty keeps them silent.
	FallbackReply string
}

type SessionConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

type CatalogConfig struct {
	Latency time.Duration
}

// LoadDotEnv loads the given files (".env" when none) into the process
// environment. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load builds the configuration from environment variables.
func Load() (*Config, error) {
	addr, err := ParseAddr(getEnvOrDefault("ADDR", "8080"))
	if err != nil {
		return nil, err
	}
	shutdown, err := parseDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	logJSON, err := parseBoolEnv("LOG_JSON", false)
	if err != nil {
		return nil, err
	}
	replyDelay, err := parseDurationEnv("REPLY_DELAY", 1500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	idle, err := parseDurationEnv("SESSION_IDLE_TIMEOUT", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	sweep, err := parseDurationEnv("SESSION_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}
	if sweep <= 0 {
		return nil, fmt.Errorf("invalid SESSION_SWEEP_INTERVAL %s: must be positive", sweep)
	}
	latency, err := parseDurationEnv("RESULTS_DELAY", time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{Addr: addr, ShutdownTimeout: shutdown},
		Log: LogConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
			JSON:  logJSON,
		},
		Chat: ChatConfig{
			ReplyDelay:    replyDelay,
			FallbackReply: strings.TrimSpace(os.Getenv("FALLBACK_REPLY")),
		},
		Sessions: SessionConfig{IdleTimeout: idle, SweepInterval: sweep},
		Catalog:  CatalogConfig{Latency: latency},
	}, nil
}

// ParseAddr accepts "8080", ":8080" or "127.0.0.1:8080".
func ParseAddr(v string) (string, error) {
	if strings.ContainsAny(v, " \t") {
		return "", fmt.Errorf("invalid ADDR value: %q", v)
	}
	if strings.Contains(v, ":") {
		return v, nil
	}
	return ":" + v, nil
}

func getEnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return v, nil
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid %s value %q: negative duration", key, raw)
	}
	return v, nil
}

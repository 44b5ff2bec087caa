package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the screenshot service.
type Config struct {
	// HTTP surface
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Browser launch
	ChromePath string
	Headless   bool

	// Capture behavior
	NavTimeoutMS   int
	SettleMS       int
	PostSuppressMS int
	JPEGQuality    int
	DefaultWidth   int
	DefaultHeight  int

	// Snapshot persistence (empty dir disables it)
	SnapshotDir string

	// Logging
	LogLevel string
	LogFile  string

	// Ops notification (empty endpoint disables it)
	NotifyEndpoint string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:         getEnvOrDefault("SCREENSHOT_BIND_ADDR", "127.0.0.1:8180"),
		PortCandidates:   getEnvListOrDefault("SCREENSHOT_BIND_CANDIDATES", []string{"127.0.0.1:8181", "127.0.0.1:8182"}),
		PortAutoFallback: getEnvBoolOrDefault("SCREENSHOT_PORT_AUTO_FALLBACK", true),
		ChromePath:       os.Getenv("CHROME_PATH"),
		Headless:         getEnvBoolOrDefault("SCREENSHOT_HEADLESS", true),
		NavTimeoutMS:     getEnvIntOrDefault("SCREENSHOT_NAV_TIMEOUT_MS", 30000),
		SettleMS:         getEnvIntOrDefault("SCREENSHOT_SETTLE_MS", 1500),
		PostSuppressMS:   getEnvIntOrDefault("SCREENSHOT_POST_SUPPRESS_MS", 400),
		JPEGQuality:      getEnvIntOrDefault("SCREENSHOT_JPEG_QUALITY", 80),
		DefaultWidth:     getEnvIntOrDefault("SCREENSHOT_DEFAULT_WIDTH", 1280),
		DefaultHeight:    getEnvIntOrDefault("SCREENSHOT_DEFAULT_HEIGHT", 900),
		SnapshotDir:      getEnvOrDefault("SNAPSHOT_DIR", ""),
		LogLevel:         strings.ToLower(getEnvOrDefault("SCREENSHOT_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("SCREENSHOT_LOG_FILE", "logs/screenshot_api.log"),
		NotifyEndpoint:   getEnvOrDefault("NOTIFY_ENDPOINT", ""),
	}

	if cfg.NavTimeoutMS < 1000 {
		cfg.NavTimeoutMS = 1000
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 80
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

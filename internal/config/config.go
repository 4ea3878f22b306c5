package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// Aggregation pipeline
	QueueLogPath      string
	RefreshInterval   time.Duration
	ComputeTimeout    time.Duration
	MaxScanBytes      int64
	CacheCapacity     int
	DefaultWindowDays int

	// WebSocket keepalive
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		QueueLogPath:   getEnv("QUEUE_LOG_PATH", "/var/log/asterisk/queue_log"),
	}

	refreshMin, err := strconv.Atoi(getEnv("REFRESH_INTERVAL_MIN", "60"))
	if err != nil || refreshMin <= 0 {
		return nil, fmt.Errorf("invalid REFRESH_INTERVAL_MIN: %q", getEnv("REFRESH_INTERVAL_MIN", "60"))
	}
	config.RefreshInterval = time.Duration(refreshMin) * time.Minute

	computeSec, err := strconv.Atoi(getEnv("COMPUTE_TIMEOUT_SEC", "30"))
	if err != nil || computeSec <= 0 {
		return nil, fmt.Errorf("invalid COMPUTE_TIMEOUT_SEC: %q", getEnv("COMPUTE_TIMEOUT_SEC", "30"))
	}
	config.ComputeTimeout = time.Duration(computeSec) * time.Second

	maxScanMB, err := strconv.Atoi(getEnv("MAX_SCAN_MB", "256"))
	if err != nil || maxScanMB < 0 {
		return nil, fmt.Errorf("invalid MAX_SCAN_MB: %q", getEnv("MAX_SCAN_MB", "256"))
	}
	config.MaxScanBytes = int64(maxScanMB) * 1024 * 1024

	config.CacheCapacity, err = strconv.Atoi(getEnv("CACHE_CAPACITY", "64"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_CAPACITY: %q", getEnv("CACHE_CAPACITY", "64"))
	}

	config.DefaultWindowDays, err = strconv.Atoi(getEnv("DEFAULT_WINDOW_DAYS", "30"))
	if err != nil || config.DefaultWindowDays < 0 {
		return nil, fmt.Errorf("invalid DEFAULT_WINDOW_DAYS: %q", getEnv("DEFAULT_WINDOW_DAYS", "30"))
	}

	// WebSocket keepalive timing
	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.PongWait = time.Duration(wsReadTimeout) * time.Second
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WriteWait = time.Duration(wsWriteTimeout) * time.Second

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

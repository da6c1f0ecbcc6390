package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values.
type Config struct {
	// Messaging server
	SocketURL        string
	APIURL           string
	HandshakeTimeout time.Duration

	// Connection policy
	ConnectAttempts int
	RetryDelay      time.Duration

	// History
	HistoryTimeout  time.Duration
	HistoryPageSize int

	// Composition
	TypingInterval time.Duration

	// Shared client state (identity + bearer token)
	ProfilePath string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Dev server
	ServerAddr string
	JWTSecret  string
}

// Load reads configuration from environment variables.
// A .env file in the working directory is applied first when present;
// variables already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		SocketURL:        getEnv("BUDGETCHAT_SOCKET_URL", "ws://localhost:8585/socket"),
		APIURL:           strings.TrimSuffix(getEnv("BUDGETCHAT_API_URL", "http://localhost:8585"), "/"),
		HandshakeTimeout: getDuration("BUDGETCHAT_HANDSHAKE_TIMEOUT", 10*time.Second),

		ConnectAttempts: getInt("BUDGETCHAT_CONNECT_ATTEMPTS", 3),
		RetryDelay:      getDuration("BUDGETCHAT_RETRY_DELAY", time.Second),

		HistoryTimeout:  getDuration("BUDGETCHAT_HISTORY_TIMEOUT", 10*time.Second),
		HistoryPageSize: getInt("BUDGETCHAT_HISTORY_PAGE_SIZE", 50),

		TypingInterval: getDuration("BUDGETCHAT_TYPING_INTERVAL", 2*time.Second),

		ProfilePath: getEnv("BUDGETCHAT_PROFILE", defaultProfilePath()),

		LogFile:  getEnv("BUDGETCHAT_LOG_FILE", "/tmp/budgetchat.log"),
		LogLevel: parseLogLevel(getEnv("BUDGETCHAT_LOG_LEVEL", "INFO")),

		ServerAddr: getEnv("BUDGETCHAT_SERVER_ADDR", ":8585"),
		JWTSecret:  getEnv("BUDGETCHAT_JWT_SECRET", "dev-secret"),
	}
}

func defaultProfilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "profile.yaml"
	}
	return filepath.Join(home, ".config", "budgetchat", "profile.yaml")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Package config loads PentryPal Core configuration from the environment.
package config

import (
	"time"

	"github.com/joho/godotenv"
)

// APIConfig holds remote backend connection settings.
type APIConfig struct {
	BaseURL        string
	WebSocketURL   string
	RequestTimeout time.Duration
	MaxRetries     int
}

// SyncConfig holds offline queue and drain settings.
type SyncConfig struct {
	QueueMaxSize     int
	ActionMaxRetries int
	DrainDelay       time.Duration
	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
}

// StorageConfig holds local persistence settings.
type StorageConfig struct {
	DataDir string
}

// HTTPConfig holds the desktop control-plane listener settings.
type HTTPConfig struct {
	Port          string
	BindInterface string
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level string
}

// Config is the full core configuration.
type Config struct {
	API     APIConfig
	Sync    SyncConfig
	Storage StorageConfig
	HTTP    HTTPConfig
	Logger  LoggerConfig
}

// NewConfig loads configuration from the environment, with .env support.
func NewConfig() *Config {
	_ = godotenv.Load()
	return &Config{
		API: APIConfig{
			BaseURL:        getStringEnv("PENTRYPAL_API_URL", "https://api.pentrypal.app"),
			WebSocketURL:   getStringEnv("PENTRYPAL_WS_URL", "wss://api.pentrypal.app/ws"),
			RequestTimeout: time.Duration(getIntEnv("PENTRYPAL_API_TIMEOUT", 15)) * time.Second,
			MaxRetries:     getIntEnv("PENTRYPAL_API_MAX_RETRIES", 3),
		},
		Sync: SyncConfig{
			QueueMaxSize:     getIntEnv("PENTRYPAL_QUEUE_MAX_SIZE", 100),
			ActionMaxRetries: getIntEnv("PENTRYPAL_ACTION_MAX_RETRIES", 3),
			DrainDelay:       time.Duration(getIntEnv("PENTRYPAL_DRAIN_DELAY_MS", 2000)) * time.Millisecond,
			ProbeInterval:    time.Duration(getIntEnv("PENTRYPAL_PROBE_INTERVAL", 15)) * time.Second,
			ProbeTimeout:     time.Duration(getIntEnv("PENTRYPAL_PROBE_TIMEOUT", 5)) * time.Second,
		},
		Storage: StorageConfig{
			DataDir: getStringEnv("PENTRYPAL_DATA_DIR", "./data"),
		},
		HTTP: HTTPConfig{
			Port:          getStringEnv("PENTRYPAL_HTTP_PORT", "8091"),
			BindInterface: getStringEnv("PENTRYPAL_HTTP_BIND_INTERFACE", "127.0.0.1"),
		},
		Logger: LoggerConfig{
			Level: getStringEnv("PENTRYPAL_LOG_LEVEL", "info"),
		},
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the player runtime.
type Config struct {
	Device   DeviceConfig
	Catalog  CatalogConfig
	NATS     NATSConfig
	Storage  StorageConfig
	Clock    ClockConfig
	Download DownloadConfig
	Playback PlaybackConfig
	Watchdog WatchdogConfig
	Status   StatusConfig
}

// DeviceConfig identifies this screen against the catalog.
type DeviceConfig struct {
	// ID is the human-assigned identifier shown on the device. The catalog
	// lookup falls back to the opaque UUID when no screen matches it.
	ID          string
	Environment string
	LogLevel    string
}

// CatalogConfig holds the remote catalog endpoint.
type CatalogConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	// ViewerBaseURL hosts the rendered pages for widgets and external links.
	ViewerBaseURL string
}

// NATSConfig holds the push command channel configuration.
type NATSConfig struct {
	URL           string
	MaxReconnect  int
	ReconnectWait time.Duration
}

// StorageConfig holds local file layout and the signed-URL storage backend.
type StorageConfig struct {
	DataDir    string // sqlite database + content-addressed media area
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	SignedURLTTL time.Duration
}

// ClockConfig holds time synchronization settings.
type ClockConfig struct {
	NTPHost      string
	HTTPFallback string
	SyncInterval time.Duration
	// MaxDrift is the largest single offset shift accepted after the first
	// sync; bigger jumps are treated as spoofed or corrupted responses.
	MaxDrift time.Duration
}

// DownloadConfig tunes the content pipeline.
type DownloadConfig struct {
	Concurrency int
	Timeout     time.Duration
}

// PlaybackConfig tunes the render engine.
type PlaybackConfig struct {
	RendererCommand string // external decoder binary
	StreamCacheSize int    // max entries in the LRU disk cache
	AdvanceDelay    time.Duration
}

// WatchdogConfig tunes the supervisory loops.
type WatchdogConfig struct {
	FreezeInterval      time.Duration
	FreezeThreshold     int
	FocusInterval       time.Duration
	FocusThreshold      int
	FocusBreakerLimit   int
	FocusBreakerWindow  time.Duration
	ThermalInterval     time.Duration
	ThermalCriticalTemp float64
	MaintenanceInterval time.Duration
	MaintenanceHour     int // local hour of the daily low-traffic window
}

// StatusConfig holds the local observability surface.
type StatusConfig struct {
	HTTPPort int
}

// Load loads configuration from the environment, honoring a .env file in the
// working directory when present.
func Load() (*Config, error) {
	// Missing .env is the normal case on provisioned devices.
	_ = godotenv.Load()

	cfg := &Config{
		Device: DeviceConfig{
			ID:          getEnv("DEVICE_ID", ""),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Catalog: CatalogConfig{
			BaseURL:        getEnv("CATALOG_URL", "http://localhost:8000"),
			APIKey:         getEnv("CATALOG_API_KEY", ""),
			RequestTimeout: getEnvAsDuration("CATALOG_TIMEOUT", 15*time.Second),
			ViewerBaseURL:  getEnv("VIEWER_BASE_URL", "https://sitesobremidia.vercel.app/player"),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnect:  getEnvAsInt("NATS_MAX_RECONNECT", -1),
			ReconnectWait: getEnvAsDuration("NATS_RECONNECT_WAIT", 5*time.Second),
		},
		Storage: StorageConfig{
			DataDir:      getEnv("DATA_DIR", "/var/lib/playerd"),
			S3Bucket:     getEnv("S3_BUCKET", ""),
			S3Region:     getEnv("S3_REGION", "us-east-1"),
			S3Endpoint:   getEnv("S3_ENDPOINT", ""),
			SignedURLTTL: getEnvAsDuration("SIGNED_URL_TTL", 15*time.Minute),
		},
		Clock: ClockConfig{
			NTPHost:      getEnv("NTP_HOST", "pool.ntp.org"),
			HTTPFallback: getEnv("TIME_HTTP_FALLBACK", "https://www.google.com"),
			SyncInterval: getEnvAsDuration("TIME_SYNC_INTERVAL", 1*time.Hour),
			MaxDrift:     getEnvAsDuration("TIME_MAX_DRIFT", 1*time.Hour),
		},
		Download: DownloadConfig{
			Concurrency: getEnvAsInt("DOWNLOAD_CONCURRENCY", 2),
			Timeout:     getEnvAsDuration("DOWNLOAD_TIMEOUT", 10*time.Minute),
		},
		Playback: PlaybackConfig{
			RendererCommand: getEnv("RENDERER_COMMAND", "ffplay"),
			StreamCacheSize: getEnvAsInt("STREAM_CACHE_SIZE", 64),
			AdvanceDelay:    getEnvAsDuration("ADVANCE_DELAY", 500*time.Millisecond),
		},
		Watchdog: WatchdogConfig{
			FreezeInterval:      getEnvAsDuration("FREEZE_INTERVAL", 500*time.Millisecond),
			FreezeThreshold:     getEnvAsInt("FREEZE_THRESHOLD", 2),
			FocusInterval:       getEnvAsDuration("FOCUS_INTERVAL", 2*time.Second),
			FocusThreshold:      getEnvAsInt("FOCUS_THRESHOLD", 4),
			FocusBreakerLimit:   getEnvAsInt("FOCUS_BREAKER_LIMIT", 3),
			FocusBreakerWindow:  getEnvAsDuration("FOCUS_BREAKER_WINDOW", 5*time.Minute),
			ThermalInterval:     getEnvAsDuration("THERMAL_INTERVAL", 30*time.Second),
			ThermalCriticalTemp: getEnvAsFloat("THERMAL_CRITICAL_TEMP", 75.0),
			MaintenanceInterval: getEnvAsDuration("MAINTENANCE_INTERVAL", 6*time.Hour),
			MaintenanceHour:     getEnvAsInt("MAINTENANCE_HOUR", 3),
		},
		Status: StatusConfig{
			HTTPPort: getEnvAsInt("STATUS_PORT", 9180),
		},
	}

	if cfg.Device.ID == "" {
		return nil, fmt.Errorf("DEVICE_ID is required")
	}

	return cfg, nil
}

// Helper functions for environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

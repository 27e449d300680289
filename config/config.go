package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Log           LogConfig           `yaml:"log"`
	OverrideCache OverrideCacheConfig `yaml:"override_cache"`
	Equipment     EquipmentConfig     `yaml:"equipment"`
	Photos        PhotosConfig        `yaml:"photos"`
	Reports       ReportsConfig       `yaml:"reports"`
	Push          PushConfig          `yaml:"push"`
	WorkerPool    WorkerPoolConfig    `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	// AllowedOrigins lists the browser origins allowed by CORS and the
	// WebSocket upgrader. Empty allows every origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds the database connection configuration.
// A DSN starting with "postgres://" or "host=" selects PostgreSQL,
// anything else is treated as a SQLite file path.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogSQL                 bool   `yaml:"log_sql"`
	EnableTracing          bool   `yaml:"enable_tracing"`
}

// LogConfig holds the logger configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// OverrideCacheConfig bounds the lifetime of cached answer intents.
type OverrideCacheConfig struct {
	TTLMinutes     int           `yaml:"ttl_minutes"`
	CleanupMinutes int           `yaml:"cleanup_minutes"`
	TTL            time.Duration `yaml:"-"`
	Cleanup        time.Duration `yaml:"-"`
}

// IdentifierRange is the inclusive range of truck numbers allowed for a model.
type IdentifierRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// EquipmentConfig holds the per-model identifier ranges.
type EquipmentConfig struct {
	Models map[string]IdentifierRange `yaml:"models"`
}

// PhotosConfig holds where evidence photos are written.
type PhotosConfig struct {
	Dir            string `yaml:"dir"`
	ThumbnailWidth int    `yaml:"thumbnail_width"`
}

// ReportsConfig holds where exported reports are written.
type ReportsConfig struct {
	Dir string `yaml:"dir"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// DefaultModelRanges are used when the configuration does not list any model.
var DefaultModelRanges = map[string]IdentifierRange{
	"797F":  {Min: 301, Max: 339},
	"798AC": {Min: 340, Max: 399},
}

// Load reads the configuration from the given path. Variables from a .env
// file in the working directory are loaded first; DATABASE_DSN overrides
// the configured DSN and CORS_ALLOWED_ORIGINS (comma-separated) the
// allowed origins.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if origins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); origins != "" {
		cfg.Server.AllowedOrigins = splitAndTrim(origins)
	}
	for _, o := range cfg.Server.AllowedOrigins {
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return nil, fmt.Errorf("invalid allowed origin %q: must start with http:// or https://", o)
		}
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "./data/inspector.db"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.OverrideCache.TTLMinutes <= 0 {
		cfg.OverrideCache.TTLMinutes = 12 * 60
	}
	if cfg.OverrideCache.CleanupMinutes <= 0 {
		cfg.OverrideCache.CleanupMinutes = 60
	}
	cfg.OverrideCache.TTL = time.Duration(cfg.OverrideCache.TTLMinutes) * time.Minute
	cfg.OverrideCache.Cleanup = time.Duration(cfg.OverrideCache.CleanupMinutes) * time.Minute

	if len(cfg.Equipment.Models) == 0 {
		cfg.Equipment.Models = make(map[string]IdentifierRange, len(DefaultModelRanges))
		for k, v := range DefaultModelRanges {
			cfg.Equipment.Models[k] = v
		}
	}

	if cfg.Photos.Dir == "" {
		cfg.Photos.Dir = "./data/photos"
	}
	if cfg.Photos.ThumbnailWidth <= 0 {
		cfg.Photos.ThumbnailWidth = 200
	}
	if cfg.Reports.Dir == "" {
		cfg.Reports.Dir = "./data/reports"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

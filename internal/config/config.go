package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server       ServerConfig
	App          AppConfig
	Log          LogConfig
	CredentialDB CredentialDBConfig
	ListingDB    ListingDBConfig
	Cache        CacheConfig
	Crypto       CryptoConfig
	Inventory    InventoryConfig
	Sync         SyncConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"300s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string   `envconfig:"APP_NAME" default:"dealerhub-api"`
	Environment string   `envconfig:"APP_ENV" default:"development"`
	Debug       bool     `envconfig:"APP_DEBUG" default:"false"`
	Version     string   `envconfig:"APP_VERSION" default:"1.0.0"`
	APIKeys     []string `envconfig:"API_KEYS"`
}

// LogConfig controls where log output goes. An empty File logs to stderr only.
type LogConfig struct {
	File       string `envconfig:"LOG_FILE" default:""`
	MaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"50"`
	MaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"5"`
	MaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"14"`
	Compress   bool   `envconfig:"LOG_COMPRESS" default:"true"`
}

// CredentialDBConfig holds credential store settings.
type CredentialDBConfig struct {
	Type     string `envconfig:"CREDENTIAL_DB_TYPE" default:"sqlite"` // sqlite or mysql
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"3306"`
	Name     string `envconfig:"DB_NAME" default:"dealerhub"`
	User     string `envconfig:"DB_USER" default:"root"`
	Password string `envconfig:"DB_PASS" default:""`
}

// ListingDBConfig holds listing/job store settings.
type ListingDBConfig struct {
	Type string `envconfig:"LISTING_DB_TYPE" default:"sqlite"` // sqlite or postgres
	Path string `envconfig:"LISTING_DB_PATH" default:"./data/dealerhub.db"`
	// PostgreSQL settings
	Host     string `envconfig:"LISTING_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"LISTING_DB_PORT" default:"5432"`
	Name     string `envconfig:"LISTING_DB_NAME" default:"dealerhub"`
	User     string `envconfig:"LISTING_DB_USER" default:"postgres"`
	Password string `envconfig:"LISTING_DB_PASS" default:""`
	SSLMode  string `envconfig:"LISTING_DB_SSLMODE" default:"disable"`
}

// CacheConfig holds Redis and in-flight guard settings.
type CacheConfig struct {
	GuardType     string        `envconfig:"GUARD_TYPE" default:"memory"` // memory or redis
	LeaseTTL      time.Duration `envconfig:"GUARD_LEASE_TTL" default:"15m"`
	RedisHost     string        `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int           `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix     string        `envconfig:"REDIS_KEY_PREFIX" default:"dealerhub:sync"`
}

// CryptoConfig holds the key used to encrypt stored inventory secrets.
type CryptoConfig struct {
	SecretKey string `envconfig:"CREDENTIAL_SECRET_KEY" default:""`
}

// InventoryConfig holds upstream inventory API settings.
type InventoryConfig struct {
	MobileDeBaseURL    string        `envconfig:"MOBILEDE_BASE_URL" default:"https://services.mobile.de"`
	AutoScout24BaseURL string        `envconfig:"AUTOSCOUT24_BASE_URL" default:"https://listing-creation.api.autoscout24.com"`
	Timeout            time.Duration `envconfig:"INVENTORY_HTTP_TIMEOUT" default:"20s"`
	UserAgent          string        `envconfig:"INVENTORY_USER_AGENT" default:"dealerhub-sync/1.0"`
}

// SyncConfig holds sync pipeline settings.
type SyncConfig struct {
	PageSize              int           `envconfig:"SYNC_PAGE_SIZE" default:"100"`
	MaxPages              int           `envconfig:"SYNC_MAX_PAGES" default:"50"`
	TickInterval          time.Duration `envconfig:"SYNC_TICK_INTERVAL" default:"5s"`
	ResyncInterval        time.Duration `envconfig:"SYNC_RESYNC_INTERVAL" default:"60s"`
	BackgroundMinInterval time.Duration `envconfig:"SYNC_BACKGROUND_MIN_INTERVAL" default:"60s"`
	Timeout               time.Duration `envconfig:"SYNC_TIMEOUT" default:"10m"`
	Platforms             []string      `envconfig:"SYNC_SOCIAL_PLATFORMS" default:"facebook,instagram"`
	SchedulerEnabled      bool          `envconfig:"SYNC_SCHEDULER_ENABLED" default:"true"`
	JobRetention          time.Duration `envconfig:"SYNC_JOB_RETENTION" default:"168h"`
	PruneInterval         time.Duration `envconfig:"SYNC_PRUNE_INTERVAL" default:"1h"`
}

// MySQLDSN returns the MySQL data source name.
func (d *CredentialDBConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// PostgresDSN returns the PostgreSQL connection string.
func (l *ListingDBConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		l.User, l.Password, l.Host, l.Port, l.Name, l.SSLMode)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Validate checks value ranges that envconfig cannot express.
func (c *Config) Validate() error {
	if c.Sync.PageSize < 1 || c.Sync.PageSize > 100 {
		return fmt.Errorf("SYNC_PAGE_SIZE must be between 1 and 100, got %d", c.Sync.PageSize)
	}
	if c.Sync.MaxPages < 1 {
		return fmt.Errorf("SYNC_MAX_PAGES must be positive, got %d", c.Sync.MaxPages)
	}
	if c.Sync.TickInterval <= 0 {
		return fmt.Errorf("SYNC_TICK_INTERVAL must be positive")
	}
	platforms := c.Sync.Platforms[:0]
	for _, p := range c.Sync.Platforms {
		if p = strings.TrimSpace(p); p != "" {
			platforms = append(platforms, p)
		}
	}
	if len(platforms) == 0 {
		return fmt.Errorf("SYNC_SOCIAL_PLATFORMS must name at least one platform")
	}
	c.Sync.Platforms = platforms
	switch c.Cache.GuardType {
	case "memory", "redis":
	default:
		return fmt.Errorf("GUARD_TYPE must be memory or redis, got %q", c.Cache.GuardType)
	}
	if c.Sync.Timeout <= 0 {
		return fmt.Errorf("SYNC_TIMEOUT must be positive")
	}
	if c.Cache.LeaseTTL <= c.Sync.Timeout {
		return fmt.Errorf("GUARD_LEASE_TTL (%v) must be longer than SYNC_TIMEOUT (%v)", c.Cache.LeaseTTL, c.Sync.Timeout)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

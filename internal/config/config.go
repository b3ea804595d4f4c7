package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/catalogd/catalogd/internal/cache"
)

// Config holds service settings. Load from env; call LoadEnvFile(".env")
// first to use a .env file (keep .env out of git).
type Config struct {
	// HTTP admin/export server
	ListenAddr string // e.g. :8585

	// Snapshot store backend: "memory", "sqlite", or "redis"
	StoreBackend string
	SQLitePath   string // e.g. /var/lib/catalogd/catalogd.db
	RedisURL     string // e.g. redis://localhost:6379/0

	// Profiles file (YAML). Optional; profiles can also be added at runtime.
	ProfilesFile string

	// Background refresh
	RefreshCron   string // cron spec; "" disables the scheduler
	RefreshOnBoot bool

	// Snapshot freshness overrides
	CatalogTTL   time.Duration
	EPGXtreamTTL time.Duration
	EPGURLTTL    time.Duration

	// Container extension appended to live stream URLs
	LiveExtension string
}

// Load reads config from environment.
func Load() *Config {
	c := &Config{
		ListenAddr:    getEnv("CATALOGD_LISTEN_ADDR", ":8585"),
		StoreBackend:  strings.ToLower(getEnv("CATALOGD_STORE", "sqlite")),
		SQLitePath:    getEnv("CATALOGD_SQLITE_PATH", "./catalogd.db"),
		RedisURL:      getEnv("CATALOGD_REDIS_URL", "redis://localhost:6379/0"),
		ProfilesFile:  os.Getenv("CATALOGD_PROFILES_FILE"),
		RefreshCron:   getEnv("CATALOGD_REFRESH_CRON", "0 */6 * * *"),
		RefreshOnBoot: getEnvBool("CATALOGD_REFRESH_ON_BOOT", false),
		CatalogTTL:    getEnvDuration("CATALOGD_CATALOG_TTL", 24*time.Hour),
		EPGXtreamTTL:  getEnvDuration("CATALOGD_EPG_XTREAM_TTL", 6*time.Hour),
		EPGURLTTL:     getEnvDuration("CATALOGD_EPG_URL_TTL", 6*time.Hour),
		LiveExtension: getEnv("CATALOGD_LIVE_EXTENSION", "ts"),
	}
	switch c.StoreBackend {
	case "memory", "sqlite", "redis":
	default:
		log.Printf("config: unknown store backend %q, using sqlite", c.StoreBackend)
		c.StoreBackend = "sqlite"
	}
	return c
}

// TTLs maps the configured durations onto the cache's TTL table.
func (c *Config) TTLs() cache.TTLTable {
	t := cache.DefaultTTLs()
	if c.CatalogTTL > 0 {
		t.Catalog = c.CatalogTTL
	}
	if c.EPGXtreamTTL > 0 {
		t.EPGXtream = c.EPGXtreamTTL
	}
	if c.EPGURLTTL > 0 {
		t.EPGURL = c.EPGURLTTL
	}
	return t
}

// LoadEnvFile loads KEY=value pairs from path into the environment.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

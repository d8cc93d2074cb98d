package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/datashop/datashop/internal/errors"
)

// Storage backends.
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreFile     = "file"
	StoreMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	// Storage
	Store         string // "mongo", "postgres", "file", "memory"
	DataDir       string
	MongoURI      string
	MongoDatabase string
	PostgresDSN   string

	// Remote sources
	ScraperToken   string
	ScraperBaseURL string
	TikiBaseURL    string

	// Fetch behaviour
	FetchDelay    time.Duration // fixed gap between consecutive remote fetches
	HTTPTimeout   time.Duration
	HTTPRetries   int
	RatePerSecond float64
	RateBurst     int
	RespectRobots bool
	DelayProfile  string // "off", "cautious", "normal", "aggressive"
	Proxies       string // comma separated proxy URLs or a file with one per line

	// Events
	RedisAddr         string
	RedisDB           int
	RedisStream       string
	RedisStreamMaxLen int64

	// Query cache
	MemcacheAddr string
	CacheTTL     time.Duration

	// HTTP server
	HTTPPort string
	APIKey   string

	// Logging
	LogLevel    string
	Environment string
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Store:             StoreFile,
		DataDir:           "data",
		MongoURI:          "mongodb://localhost:27017",
		MongoDatabase:     "datashop",
		ScraperBaseURL:    "https://continuous-scraper.common.chartedapi.com",
		TikiBaseURL:       "https://tiki.vn/api/v2/products",
		FetchDelay:        5 * time.Second,
		HTTPTimeout:       30 * time.Second,
		HTTPRetries:       2,
		RatePerSecond:     1.0,
		RateBurst:         1,
		RespectRobots:     true,
		DelayProfile:      "off",
		RedisStream:       "datashop:captures",
		RedisStreamMaxLen: 10000,
		CacheTTL:          5 * time.Minute,
		HTTPPort:          "8080",
		LogLevel:          "info",
		Environment:       "development",
	}
}

// LoadFromEnv loads .env file (if present) then overrides config from environment variables.
func (c *Config) LoadFromEnv() {
	// Auto-load .env file; silently ignored if missing
	_ = godotenv.Load()

	setString(&c.Store, "DATASHOP_STORE")
	setString(&c.DataDir, "DATASHOP_DATA_DIR")
	setString(&c.MongoURI, "MONGO_URI")
	setString(&c.MongoDatabase, "MONGO_DATABASE")
	setString(&c.PostgresDSN, "POSTGRES_DSN")

	setString(&c.ScraperToken, "SCRAPER_TOKEN")
	setString(&c.ScraperBaseURL, "SCRAPER_BASE_URL")
	setString(&c.TikiBaseURL, "TIKI_BASE_URL")

	setDuration(&c.FetchDelay, "DATASHOP_FETCH_DELAY")
	setDuration(&c.HTTPTimeout, "DATASHOP_HTTP_TIMEOUT")
	if v := os.Getenv("DATASHOP_HTTP_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HTTPRetries = n
		}
	}
	if v := os.Getenv("DATASHOP_RATE_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RatePerSecond = f
		}
	}
	if v := os.Getenv("DATASHOP_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateBurst = n
		}
	}
	if v := os.Getenv("DATASHOP_RESPECT_ROBOTS"); v == "false" {
		c.RespectRobots = false
	}
	setString(&c.DelayProfile, "DATASHOP_DELAY_PROFILE")
	setString(&c.Proxies, "DATASHOP_PROXIES")

	setString(&c.RedisAddr, "REDIS_ADDR")
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RedisDB = n
		}
	}
	setString(&c.RedisStream, "REDIS_STREAM")
	if v := os.Getenv("REDIS_STREAM_MAXLEN"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.RedisStreamMaxLen = n
		}
	}

	setString(&c.MemcacheAddr, "MEMCACHE_ADDR")
	setDuration(&c.CacheTTL, "DATASHOP_CACHE_TTL")

	setString(&c.HTTPPort, "PORT")
	setString(&c.APIKey, "DATASHOP_API_KEY")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Environment, "DATASHOP_ENVIRONMENT")
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMongo:
		if c.MongoURI == "" {
			return errors.NewConfiguration("MONGO_URI is required for the mongo store", nil)
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.NewConfiguration("POSTGRES_DSN is required for the postgres store", nil)
		}
	case StoreFile:
		if c.DataDir == "" {
			return errors.NewConfiguration("DATASHOP_DATA_DIR is required for the file store", nil)
		}
	case StoreMemory:
	default:
		return errors.NewConfiguration(fmt.Sprintf("unknown store %q", c.Store), nil)
	}
	switch c.DelayProfile {
	case "off", "cautious", "normal", "aggressive":
	default:
		return errors.NewConfiguration(fmt.Sprintf("unknown delay profile %q", c.DelayProfile), nil)
	}
	if c.FetchDelay < 0 {
		return errors.NewConfiguration("DATASHOP_FETCH_DELAY must not be negative", nil)
	}
	if c.HTTPRetries < 0 {
		return errors.NewConfiguration("DATASHOP_HTTP_RETRIES must not be negative", nil)
	}
	return nil
}

// HasScraperToken reports whether the Shopee and Lazada proxy can be called.
func (c *Config) HasScraperToken() bool {
	return strings.TrimSpace(c.ScraperToken) != ""
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setDuration accepts Go durations ("5s", "1m30s") or a plain number of seconds.
func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(f * float64(time.Second))
	}
}

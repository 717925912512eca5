package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Feed     FeedConfig
	Output   OutputConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	// RateLimit is the sustained request rate of the API; RateBurst its burst.
	RateLimit time.Duration
	RateBurst int
}

type ScraperConfig struct {
	Target           int
	MaxRounds        int
	UnitPriceCeiling float64
	BatchSize        int
	PageDelayMin     time.Duration
	PageDelayMax     time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	RetryMaxDelay    time.Duration
	MaxFailedPages   int
	DetailRate       time.Duration
	DetailBurst      int
	// DetailPause is waited after every granted detail fetch.
	DetailPause    time.Duration
	DetailCacheTTL time.Duration
	DetailTimeout  time.Duration
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	StatePath      string
	ProxyServer    string
}

type FeedConfig struct {
	Timeout   time.Duration
	UserAgent string
}

type OutputConfig struct {
	Dir       string
	CursorDir string
	// CursorBackend is "file" or "redis".
	CursorBackend string
}

type DatabaseConfig struct {
	Enabled  bool
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// StreamMaxLen approximately caps the event stream; 0 disables trimming.
	StreamMaxLen int64
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the configuration from the environment. Values from a .env file
// in the working directory fill in variables that are not already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"*"}),
			RateLimit:       getDurationOrDefault("SERVER_RATE_LIMIT", 100*time.Millisecond),
			RateBurst:       getIntOrDefault("SERVER_RATE_BURST", 30),
		},
		Scraper: ScraperConfig{
			Target:           getIntOrDefault("SCRAPER_TARGET", 1000),
			MaxRounds:        getIntOrDefault("SCRAPER_MAX_ROUNDS", 120),
			UnitPriceCeiling: getFloatOrDefault("SCRAPER_UNIT_PRICE_CEILING", 200),
			BatchSize:        getIntOrDefault("SCRAPER_BATCH_SIZE", 1000),
			PageDelayMin:     getDurationOrDefault("SCRAPER_PAGE_DELAY_MIN", 3*time.Second),
			PageDelayMax:     getDurationOrDefault("SCRAPER_PAGE_DELAY_MAX", 5*time.Second),
			MaxRetries:       getIntOrDefault("SCRAPER_MAX_RETRIES", 3),
			RetryDelay:       getDurationOrDefault("SCRAPER_RETRY_DELAY", time.Second),
			RetryMaxDelay:    getDurationOrDefault("SCRAPER_RETRY_MAX_DELAY", 10*time.Second),
			MaxFailedPages:   getIntOrDefault("SCRAPER_MAX_FAILED_PAGES", 10),
			DetailRate:       getDurationOrDefault("SCRAPER_DETAIL_RATE", 500*time.Millisecond),
			DetailBurst:      getIntOrDefault("SCRAPER_DETAIL_BURST", 2),
			DetailPause:      getDurationOrDefault("SCRAPER_DETAIL_PAUSE", 0),
			DetailCacheTTL:   getDurationOrDefault("SCRAPER_DETAIL_CACHE_TTL", 30*time.Minute),
			DetailTimeout:    getDurationOrDefault("SCRAPER_DETAIL_TIMEOUT", 20*time.Second),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 25*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1366),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 768),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "nl-NL,nl;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Amsterdam"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "nl-NL"),
			StatePath:      getEnvOrDefault("BROWSER_STATE_PATH", ""),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Feed: FeedConfig{
			Timeout:   getDurationOrDefault("FEED_TIMEOUT", 30*time.Second),
			UserAgent: getEnvOrDefault("FEED_USER_AGENT", ""),
		},
		Output: OutputConfig{
			Dir:           getEnvOrDefault("OUTPUT_DIR", "data"),
			CursorDir:     getEnvOrDefault("CURSOR_DIR", "data/state"),
			CursorBackend: getEnvOrDefault("CURSOR_BACKEND", "file"),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			URL:      getEnvOrDefault("DATABASE_URL", ""),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "shelf_prices"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			StreamMaxLen: int64(getIntOrDefault("REDIS_STREAM_MAXLEN", 100000)),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.Target < 1 {
		return fmt.Errorf("SCRAPER_TARGET must be at least 1")
	}

	if c.Scraper.MaxRounds < 1 {
		return fmt.Errorf("SCRAPER_MAX_ROUNDS must be at least 1")
	}

	if c.Scraper.UnitPriceCeiling <= 0 {
		return fmt.Errorf("SCRAPER_UNIT_PRICE_CEILING must be positive")
	}

	if c.Scraper.BatchSize < 1 {
		return fmt.Errorf("SCRAPER_BATCH_SIZE must be at least 1")
	}

	if c.Scraper.PageDelayMin > c.Scraper.PageDelayMax {
		return fmt.Errorf("SCRAPER_PAGE_DELAY_MIN cannot be greater than SCRAPER_PAGE_DELAY_MAX")
	}

	if c.Scraper.MaxRetries < 1 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES must be at least 1")
	}

	switch c.Output.CursorBackend {
	case "file", "redis":
	default:
		return fmt.Errorf("CURSOR_BACKEND must be file or redis, got %q", c.Output.CursorBackend)
	}

	if c.Database.Enabled && c.Database.URL == "" && c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Scraper.DetailPause < 0 {
		return fmt.Errorf("SCRAPER_DETAIL_PAUSE cannot be negative")
	}

	if c.Server.RateBurst < 1 {
		return fmt.Errorf("SERVER_RATE_BURST must be at least 1")
	}

	return nil
}

func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

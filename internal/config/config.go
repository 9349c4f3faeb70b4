package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Browser  BrowserConfig
	Scraper  ScraperConfig
	Monitor  MonitorConfig
	Price    PriceConfig
	LLM      LLMConfig
	SMTP     SMTPConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
}

type ScraperConfig struct {
	NavRetries         int
	NavRetryDelay      time.Duration
	NetworkIdleTimeout time.Duration
	SettleDelay        time.Duration
	FetchTimeout       time.Duration
	BaseURL            string
}

type MonitorConfig struct {
	SweepInterval      time.Duration
	MinIntervalMinutes int
}

type PriceConfig struct {
	MinCents int64
	MaxCents int64
}

type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxHTMLSize int
	Timeout     time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8080),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "tweedekans"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "monitor.availability"),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "nl-NL,nl;q=0.9,en-US;q=0.8,en;q=0.7"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Amsterdam"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "nl-NL"),
		},
		Scraper: ScraperConfig{
			NavRetries:         getIntOrDefault("SCRAPER_NAV_RETRIES", 3),
			NavRetryDelay:      getDurationOrDefault("SCRAPER_NAV_RETRY_DELAY", 2*time.Second),
			NetworkIdleTimeout: getDurationOrDefault("SCRAPER_NETWORK_IDLE_TIMEOUT", 10*time.Second),
			SettleDelay:        getDurationOrDefault("SCRAPER_SETTLE_DELAY", 2*time.Second),
			FetchTimeout:       getDurationOrDefault("SCRAPER_FETCH_TIMEOUT", 15*time.Second),
			BaseURL:            getEnvOrDefault("SCRAPER_BASE_URL", "https://www.coolblue.nl"),
		},
		Monitor: MonitorConfig{
			SweepInterval:      getDurationOrDefault("MONITOR_SWEEP_INTERVAL", 5*time.Minute),
			MinIntervalMinutes: getIntOrDefault("MONITOR_MIN_INTERVAL_MINUTES", 15),
		},
		Price: PriceConfig{
			MinCents: int64(getIntOrDefault("PRICE_MIN_CENTS", 5000)),
			MaxCents: int64(getIntOrDefault("PRICE_MAX_CENTS", 5000000)),
		},
		LLM: LLMConfig{
			APIKey:      getEnvOrDefault("LLM_API_KEY", ""),
			BaseURL:     getEnvOrDefault("LLM_BASE_URL", ""),
			Model:       getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
			MaxHTMLSize: getIntOrDefault("LLM_MAX_HTML_SIZE", 50000),
			Timeout:     getDurationOrDefault("LLM_TIMEOUT", 30*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     getEnvOrDefault("SMTP_HOST", ""),
			Port:     getIntOrDefault("SMTP_PORT", 587),
			User:     getEnvOrDefault("SMTP_USER", ""),
			Password: getEnvOrDefault("SMTP_PASSWORD", ""),
			From:     getEnvOrDefault("SMTP_FROM", ""),
			FromName: getEnvOrDefault("SMTP_FROM_NAME", "Tweede Kans Monitor"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Monitor.SweepInterval < time.Second {
		return fmt.Errorf("MONITOR_SWEEP_INTERVAL must be at least 1s")
	}

	if c.Monitor.MinIntervalMinutes < 15 {
		return fmt.Errorf("MONITOR_MIN_INTERVAL_MINUTES must be at least 15")
	}

	if c.Price.MinCents <= 0 || c.Price.MaxCents <= c.Price.MinCents {
		return fmt.Errorf("price bounds must satisfy 0 < PRICE_MIN_CENTS < PRICE_MAX_CENTS")
	}

	if c.Scraper.NavRetries < 1 {
		return fmt.Errorf("SCRAPER_NAV_RETRIES must be at least 1")
	}

	if c.LLM.MaxHTMLSize < 1024 {
		return fmt.Errorf("LLM_MAX_HTML_SIZE must be at least 1024")
	}

	if c.LLM.Timeout < time.Second {
		return fmt.Errorf("LLM_TIMEOUT must be at least 1s")
	}

	return nil
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

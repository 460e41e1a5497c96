package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RateLimitMs int
	MaxRetries  int

	CSVOutputPath string
	ChromeBin     string

	FipeBaseURL     string
	FipeMaxRequests int
	FipeTimeout     time.Duration

	PriceMemoryPath string
	NotifyUnchanged bool

	TelegramToken  string
	TelegramChatID int64

	SearchConfigPath string
	Debug            bool
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "carwatch"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "carwatch"),
		PostgresDB:       getEnv("POSTGRES_DB", "carwatch"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RateLimitMs: getEnvInt("RATE_LIMIT_MS", 2000),
		MaxRetries:  getEnvInt("MAX_RETRIES", 3),

		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "./output/observations.csv"),
		ChromeBin:     getEnv("CHROME_BIN", ""),

		FipeBaseURL:     getEnv("FIPE_BASE_URL", "https://parallelum.com.br/fipe/api/v1/carros"),
		FipeMaxRequests: getEnvInt("FIPE_MAX_REQUESTS", 120),
		FipeTimeout:     getEnvDuration("FIPE_TIMEOUT", 10*time.Second),

		PriceMemoryPath: getEnv("PRICE_MEMORY_PATH", "./data/price_memory.json"),
		NotifyUnchanged: getEnvBool("NOTIFY_UNCHANGED", false),

		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID: getEnvInt64("TELEGRAM_CHAT_ID", 0),

		SearchConfigPath: getEnv("SEARCH_CONFIG", ""),
		Debug:            getEnvBool("LOG_DEBUG", false),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// RateLimit is RateLimitMs as a duration.
func (c *Config) RateLimit() time.Duration {
	return time.Duration(c.RateLimitMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}

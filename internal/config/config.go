package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"society-ticketing/internal/database"

	"github.com/joho/godotenv"
)

type Config struct {
	Server        ServerConfig
	Database      database.Config
	Redis         RedisConfig
	Stripe        StripeConfig
	Payout        PayoutConfig
	Notifications NotificationsConfig
	Log           LogConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
	// CheckoutLimit is the number of checkout attempts allowed per student per window.
	CheckoutLimit  int
	CheckoutWindow time.Duration
	// OperatorToken guards the payout queue endpoints. Empty disables them.
	OperatorToken string
	// SeedDemo loads demo data when running on the in-memory store.
	SeedDemo bool
	// AllowedOrigins restricts CORS. Empty allows any origin.
	AllowedOrigins []string
}

type RedisConfig struct {
	URL string
}

type StripeConfig struct {
	SecretKey string
	// UseFake selects the in-process gateway that never moves money.
	UseFake bool
}

type PayoutConfig struct {
	Currency      string
	MaxAttempts   int
	RetryInterval time.Duration
	RetryBatch    int
	QueueKey      string
	DeadLetterKey string
}

type NotificationsConfig struct {
	Backend string // "redis" or "memory"
}

type LogConfig struct {
	Level string
	JSON  bool
}

func Load() (*Config, error) {
	// Load .env files if they exist (try .env.local first, then .env)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	env := getEnv("ENV", "development")

	config := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Host:           getEnv("HOST", "localhost"),
			Env:            env,
			CheckoutLimit:  getEnvAsInt("CHECKOUT_RATE_LIMIT", 5),
			CheckoutWindow: getEnvAsDuration("CHECKOUT_RATE_WINDOW", time.Minute),
			OperatorToken:  getEnv("OPERATOR_TOKEN", ""),
			SeedDemo:       getEnvAsBool("SEED_DEMO", env == "development"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		},
		Database: parseDatabaseConfig(),
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Stripe: StripeConfig{
			SecretKey: getEnv("STRIPE_SECRET_KEY", ""),
			UseFake:   getEnvAsBool("STRIPE_FAKE", env != "production"),
		},
		Payout: PayoutConfig{
			Currency:      getEnv("PAYOUT_CURRENCY", "gbp"),
			MaxAttempts:   getEnvAsInt("PAYOUT_MAX_ATTEMPTS", 5),
			RetryInterval: getEnvAsDuration("PAYOUT_RETRY_INTERVAL", 5*time.Minute),
			RetryBatch:    getEnvAsInt("PAYOUT_RETRY_BATCH", 50),
			QueueKey:      getEnv("PAYOUT_QUEUE_KEY", "payouts:retry"),
			DeadLetterKey: getEnv("PAYOUT_DEAD_LETTER_KEY", "payouts:dead"),
		},
		Notifications: NotificationsConfig{
			Backend: getEnv("NOTIFICATIONS_BACKEND", "memory"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			JSON:  getEnvAsBool("LOG_JSON", env == "production"),
		},
	}

	return config, nil
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// HasDatabase reports whether any database settings were supplied.
func (c *Config) HasDatabase() bool {
	return c.Database.URL != "" || os.Getenv("DB_HOST") != ""
}

func parseDatabaseConfig() database.Config {
	var config database.Config
	if databaseURL := getEnv("DATABASE_URL", ""); databaseURL != "" {
		config = parseDatabaseURL(databaseURL)
	} else {
		config = database.Config{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "society_ticketing"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		}
	}

	config.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", 0)
	config.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", 0)
	config.ConnMaxLifetime = getEnvAsDuration("DB_CONN_MAX_LIFETIME", 0)
	config.PingAttempts = getEnvAsInt("DB_PING_ATTEMPTS", 5)
	return config
}

func parseDatabaseURL(databaseURL string) database.Config {
	config := database.Config{
		URL: databaseURL,
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		// If parsing fails, return the URL as-is
		return config
	}

	config.Host = u.Hostname()
	if u.Port() != "" {
		config.Port, _ = strconv.Atoi(u.Port())
	} else {
		config.Port = 5432
	}

	if u.User != nil {
		config.User = u.User.Username()
		config.Password, _ = u.User.Password()
	}

	config.DBName = strings.TrimPrefix(u.Path, "/")

	config.SSLMode = u.Query().Get("sslmode")
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	return config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

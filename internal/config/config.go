package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// InsecureJWTSecret is the signing secret used outside production when
// JWT_SECRET is unset. Tokens signed with it are trivially forgeable.
const InsecureJWTSecret = "changeme"

type Config struct {
	Env string

	// Database
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPath     string

	// JWT
	JWTSecret string

	// Completion API (OpenAI-compatible)
	OpenAIAPIKey string
	OpenAIAPIURL string
	OpenAIModel  string
	AITimeout    time.Duration

	// Token denylist backend; empty means the database table is used.
	RedisURL string

	// Server
	Port             string
	CORSOrigins      string
	RateLimitMax     int
	AuthRateLimitMax int
}

func Load() *Config {
	return &Config{
		Env: getEnv("APP_ENV", "development"),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "chat_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBPath:     getEnv("DB_PATH", "chat.db"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIAPIURL: getEnv("OPENAI_API_URL", "https://api.openai.com/v1"),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AITimeout:    parseDuration(getEnv("AI_TIMEOUT", "60s")),

		RedisURL: getEnv("REDIS_URL", ""),

		Port:             getEnv("PORT", "8080"),
		CORSOrigins:      getEnv("CORS_ORIGINS", "http://localhost:8001"),
		RateLimitMax:     parseInt(getEnv("RATE_LIMIT_MAX", "60"), 60),
		AuthRateLimitMax: parseInt(getEnv("AUTH_RATE_LIMIT_MAX", "10"), 10),
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate enforces required settings. Outside production a missing
// JWT_SECRET falls back to InsecureJWTSecret and usedFallback is true.
func (c *Config) Validate() (usedFallback bool, err error) {
	if c.JWTSecret == "" {
		if c.IsProduction() {
			return false, errors.New("JWT_SECRET environment variable is required in production")
		}
		c.JWTSecret = InsecureJWTSecret
		usedFallback = true
	}
	if c.IsProduction() && c.DBDriver == "postgres" && c.DBPassword == "" {
		return usedFallback, errors.New("DB_PASSWORD environment variable is required in production")
	}
	if c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
		return usedFallback, errors.New("DB_DRIVER must be postgres or sqlite")
	}
	return usedFallback, nil
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

package config

import (
	"os"
	"strconv"
	"time"

	"mindmeld/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort     string
	DatabaseURL string
	JWTSecret   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Round timer duration used when a session is created with the
	// timer enabled.
	RoundTimer time.Duration

	// Default round limit applied when a session is created without an
	// explicit one. 0 means unlimited.
	DefaultRoundLimit int

	APIRateLimit  int
	APIRateWindow time.Duration

	LogLevel string
	LogJSON  bool
}

// Load reads configuration from the environment.
func Load() *Config {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	roundTimer := 30 * time.Second
	if v := os.Getenv("ROUND_TIMER_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			roundTimer = time.Duration(n) * time.Second
		}
	}

	defaultRoundLimit := 0
	if v := os.Getenv("MAX_ROUNDS_DEFAULT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			defaultRoundLimit = n
		}
	}

	apiRateLimit := 60
	if v := os.Getenv("API_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			apiRateLimit = n
		}
	}

	apiRateWindow := time.Minute
	if v := os.Getenv("API_RATE_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			apiRateWindow = time.Duration(n) * time.Second
		}
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			redisDB = n
		}
	}

	return &Config{
		AppPort:           port,
		DatabaseURL:       dbURL,
		JWTSecret:         jwtSecret,
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           redisDB,
		RoundTimer:        roundTimer,
		DefaultRoundLimit: defaultRoundLimit,
		APIRateLimit:      apiRateLimit,
		APIRateWindow:     apiRateWindow,
		LogLevel:          envOr("LOG_LEVEL", "info"),
		LogJSON:           os.Getenv("LOG_JSON") == "true",
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

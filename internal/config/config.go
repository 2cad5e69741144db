package config

import (
	"os"
	"strconv"
	"time"

	"ctm_arena/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort     string
	DatabaseURL string
	JWTSecret   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Stake limits
	MinStake int64
	MaxStake int64

	// Auth proof freshness window
	AuthProofTTL time.Duration

	// Rate limiting for move endpoints
	MoveRateLimit  int
	MoveRateWindow int

	// How long a completed session stays addressable before its id is freed
	SessionRetention time.Duration
}

// Load reads configuration from the environment, with .env support for
// local runs.
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

	redisAddr := os.Getenv("REDIS_ADDR")
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			redisDB = n
		}
	}

	maxStake := int64(100000)
	if v := os.Getenv("MAX_STAKE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			maxStake = n
		}
	}

	minStake := int64(1)
	if v := os.Getenv("MIN_STAKE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			minStake = n
		}
	}

	authTTL := 5 * time.Minute
	if v := os.Getenv("AUTH_PROOF_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			authTTL = time.Duration(n) * time.Second
		}
	}

	moveRateLimit := 60
	if v := os.Getenv("MOVE_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			moveRateLimit = n
		}
	}

	moveRateWindow := 60
	if v := os.Getenv("MOVE_RATE_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			moveRateWindow = n
		}
	}

	retention := 30 * time.Minute
	if v := os.Getenv("SESSION_RETENTION_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			retention = time.Duration(n) * time.Minute
		}
	}

	return &Config{
		AppPort:          port,
		DatabaseURL:      dbURL,
		JWTSecret:        jwtSecret,
		RedisAddr:        redisAddr,
		RedisPassword:    redisPassword,
		RedisDB:          redisDB,
		MinStake:         minStake,
		MaxStake:         maxStake,
		AuthProofTTL:     authTTL,
		MoveRateLimit:    moveRateLimit,
		MoveRateWindow:   moveRateWindow,
		SessionRetention: retention,
	}
}

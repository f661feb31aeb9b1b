package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ストレージバックエンド
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
	StorageFile     = "file"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string

	// Storage
	StorageBackend string
	DatabaseURL    string
	RedisURL       string
	StorageDir     string

	// Session
	AuthSimulatedLatency       time.Duration
	PredictionSimulatedLatency time.Duration
	SessionIdleTTL             time.Duration

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitAuth    int

	// Argon2
	Argon2MemoryKB uint32
	Argon2Time     uint32
}

// Load は環境変数からConfigを読み込む。
// 未知のバックエンドや、バックエンドに必要な環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")

	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	switch cfg.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return nil, fmt.Errorf("unknown LOG_LEVEL: %q", cfg.LogLevel)
	}

	cfg.StorageBackend = strings.ToLower(getEnvString("STORAGE_BACKEND", StorageMemory))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.StorageDir = os.Getenv("STORAGE_DIR")

	var missing []string
	switch cfg.StorageBackend {
	case StorageMemory:
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StorageRedis:
		if cfg.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
	case StorageFile:
		if cfg.StorageDir == "" {
			missing = append(missing, "STORAGE_DIR")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND: %q", cfg.StorageBackend)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set for %s storage: %v", cfg.StorageBackend, missing)
	}

	// Optional fields with defaults
	cfg.AuthSimulatedLatency = getEnvDuration("AUTH_SIMULATED_LATENCY", 0)
	cfg.PredictionSimulatedLatency = getEnvDuration("PREDICTION_SIMULATED_LATENCY", 0)
	cfg.SessionIdleTTL = getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.Argon2MemoryKB = getEnvUint32("ARGON2_MEMORY_KB", 19456)
	cfg.Argon2Time = getEnvUint32("ARGON2_TIME", 2)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvUint32(key string, defaultVal uint32) uint32 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseUint(v, 10, 32)
	if err != nil || i == 0 {
		return defaultVal
	}
	return uint32(i)
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

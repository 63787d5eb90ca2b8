package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogDebug bool

	// Gemini AI
	GeminiAPIKey  string
	GeminiModel   string
	GeminiAPIBase string
	GeminiBackend string

	// Chat relay
	UpstreamTimeout   time.Duration
	MaxBodyBytes      int64
	RateLimitPerMin   int
	CORSAllowedOrigin string

	// Only enable behind a proxy that overwrites X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool

	// Supabase auth (optional)
	JWTSecret string

	// Redis (optional)
	RedisURL string
}

const (
	BackendREST = "rest"
	BackendSDK  = "sdk"
)

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:              getEnvOrDefault("PORT", "8080"),
		Env:               getEnvOrDefault("ENV", "development"),
		LogDebug:          getEnvAsBoolOrDefault("LOG_DEBUG", false),
		GeminiAPIKey:      mustGetEnv("GEMINI_API_KEY"),
		GeminiModel:       getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiAPIBase:     getEnvOrDefault("GEMINI_API_BASE", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiBackend:     getEnvOrDefault("GEMINI_BACKEND", BackendREST),
		UpstreamTimeout:   getEnvAsDurationOrDefault("CHAT_UPSTREAM_TIMEOUT", 30*time.Second),
		MaxBodyBytes:      int64(getEnvAsIntOrDefault("CHAT_MAX_BODY_BYTES", 1<<20)),
		RateLimitPerMin:   getEnvAsIntOrDefault("CHAT_RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigin: getEnvOrDefault("CORS_ALLOWED_ORIGIN", "*"),
		TrustProxyHeaders: getEnvAsBoolOrDefault("TRUST_PROXY_HEADERS", false),
		JWTSecret:         getEnvOrDefault("SUPABASE_JWT_SECRET", ""),
		RedisURL:          getEnvOrDefault("REDIS_URL", ""),
	}

	if cfg.GeminiBackend != BackendREST && cfg.GeminiBackend != BackendSDK {
		panic(fmt.Sprintf("GEMINI_BACKEND must be %q or %q, got %q", BackendREST, BackendSDK, cfg.GeminiBackend))
	}

	return cfg
}

// GenerateURL is the REST generateContent endpoint for the configured model.
func (c *Config) GenerateURL() string {
	return fmt.Sprintf("%s/models/%s:generateContent", c.GeminiAPIBase, c.GeminiModel)
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// Accepts Go durations ("45s") or plain seconds ("45").
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

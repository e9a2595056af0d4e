package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment            string
	HTTPPort               string
	DatabaseURL            string
	JWTSecret              string
	JWTIssuer              string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	RedisTimeout           time.Duration
	AccessTokenTTL         time.Duration
	RefreshTokenTTL        time.Duration
	SessionTTL             time.Duration
	ConversationSessionTTL time.Duration
	OTPTTL                 time.Duration
	OTPMaxAttempts         int
	LoginRateLimit         int
	LoginRateWindow        time.Duration
	OTPRateLimit           int
	OTPRateWindow          time.Duration
	RateLimitRPM           int
	SnowflakeNode          int64
	ServiceName            string
	TelemetryEndpoint      string
	TelemetryInsecure      bool
	CORSAllowedOrigins     []string
	CORSAllowedMethods     []string
	CORSAllowedHeaders     []string
	CORSAllowCredentials   bool
	DemoUserEmail          string
	DemoUserPassword       string
	AdminAPIKey            string
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:            getEnv("APP_ENV", "development"),
		HTTPPort:               getEnv("HTTP_PORT", "8000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		JWTSecret:              strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTIssuer:              getEnv("JWT_ISSUER", "valora-txauth"),
		RedisAddr:              getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                getInt("REDIS_DB", 0),
		RedisTimeout:           getDuration("REDIS_TIMEOUT", 250*time.Millisecond),
		AccessTokenTTL:         getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:        getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		SessionTTL:             getDuration("SESSION_TTL", 15*time.Minute),
		ConversationSessionTTL: getDuration("CONVERSATION_SESSION_TTL", 24*time.Hour),
		OTPTTL:                 getDuration("OTP_TTL", 5*time.Minute),
		OTPMaxAttempts:         getInt("OTP_MAX_ATTEMPTS", 3),
		LoginRateLimit:         getInt("LOGIN_RATE_LIMIT", 5),
		LoginRateWindow:        getDuration("LOGIN_RATE_WINDOW", 5*time.Minute),
		OTPRateLimit:           getInt("OTP_RATE_LIMIT", 5),
		OTPRateWindow:          getDuration("OTP_RATE_WINDOW", 5*time.Minute),
		RateLimitRPM:           getInt("RATE_LIMIT_RPM", 600),
		SnowflakeNode:          int64(getInt("SNOWFLAKE_NODE", 1)),
		ServiceName:            getEnv("SERVICE_NAME", "valora-txauth"),
		TelemetryEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:      getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:     getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:     getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
		CORSAllowedHeaders:     getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials:   getBool("CORS_ALLOW_CREDENTIALS", false),
		DemoUserEmail:          strings.TrimSpace(os.Getenv("DEMO_USER_EMAIL")),
		DemoUserPassword:       strings.TrimSpace(os.Getenv("DEMO_USER_PASSWORD")),
		AdminAPIKey:            strings.TrimSpace(os.Getenv("ADMIN_API_KEY")),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	if cfg.AdminAPIKey != "" && len(cfg.AdminAPIKey) < 16 {
		return Config{}, fmt.Errorf("ADMIN_API_KEY must be at least 16 bytes")
	}
	if cfg.OTPMaxAttempts < 1 {
		cfg.OTPMaxAttempts = 1
	}
	// Store calls must stay sub-second so an outage degrades latency predictably.
	if cfg.RedisTimeout <= 0 || cfg.RedisTimeout >= time.Second {
		cfg.RedisTimeout = 250 * time.Millisecond
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}

// Package config validates process configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration for the server process.
type Config struct {
	Port string

	AuthJWKSURL   string
	AuthIssuer    string
	AuthAudience  string
	SkipAuth      bool

	DatabaseURL string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	GoEnv    string
	LogLevel string

	AllowedOrigins string

	RateLimitAPIGlobal string
	RateLimitAPIRooms  string
	RateLimitWsIP      string
	RateLimitWsUser    string

	RoundDurationSeconds int
	WordsPerRound        int
	SkipPenaltyAfter     int
	WinScore             int

	AbandonReapThresholdSeconds int
}

// ValidateEnv reads and validates the process environment, returning a Config
// or an aggregate error describing every violation found.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "8080"
	} else if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	cfg.SkipAuth = os.Getenv("SKIP_AUTH") == "true"
	cfg.AuthJWKSURL = os.Getenv("AUTH_JWKS_URL")
	cfg.AuthIssuer = os.Getenv("AUTH_ISSUER")
	cfg.AuthAudience = os.Getenv("AUTH_AUDIENCE")
	if !cfg.SkipAuth {
		if cfg.AuthJWKSURL == "" || cfg.AuthIssuer == "" || cfg.AuthAudience == "" {
			errs = append(errs, "AUTH_JWKS_URL, AUTH_ISSUER and AUTH_AUDIENCE are required when SKIP_AUTH is not true")
		}
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && os.Getenv("SKIP_DB") != "true" {
		errs = append(errs, "DATABASE_URL is required (set SKIP_DB=true to use the in-memory corpus store)")
	}

	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	cfg.RateLimitAPIGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")
	cfg.RateLimitAPIRooms = getEnvOrDefault("RATE_LIMIT_API_ROOMS", "100-M")
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")
	cfg.RateLimitWsUser = getEnvOrDefault("RATE_LIMIT_WS_USER", "10-M")

	cfg.RoundDurationSeconds = getEnvIntOrDefault("ROUND_DURATION_SECONDS", 60, &errs)
	cfg.WordsPerRound = getEnvIntOrDefault("WORDS_PER_ROUND", 20, &errs)
	cfg.SkipPenaltyAfter = getEnvIntOrDefault("SKIP_PENALTY_AFTER", 3, &errs)
	cfg.WinScore = getEnvIntOrDefault("WIN_SCORE", 50, &errs)
	cfg.AbandonReapThresholdSeconds = getEnvIntOrDefault("ABANDON_REAP_THRESHOLD_SECONDS", 300, &errs)

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int, errs *[]string) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s must be an integer (got '%s')", key, raw))
		return defaultValue
	}
	return v
}

func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"port", cfg.Port,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"skip_auth", cfg.SkipAuth,
		"redis_enabled", cfg.RedisEnabled,
		"round_duration_seconds", cfg.RoundDurationSeconds,
		"words_per_round", cfg.WordsPerRound,
		"win_score", cfg.WinScore,
	)
}

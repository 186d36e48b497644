package config

import (
	"os"
	"strings"
	"testing"
)

func setupTestEnv(t *testing.T) func() {
	keys := []string{
		"PORT", "SKIP_AUTH", "AUTH_JWKS_URL", "AUTH_ISSUER", "AUTH_AUDIENCE",
		"DATABASE_URL", "SKIP_DB", "REDIS_ENABLED", "REDIS_ADDR", "REDIS_PASSWORD",
		"GO_ENV", "LOG_LEVEL", "ALLOWED_ORIGINS",
		"RATE_LIMIT_API_GLOBAL", "RATE_LIMIT_API_ROOMS", "RATE_LIMIT_WS_IP", "RATE_LIMIT_WS_USER",
		"ROUND_DURATION_SECONDS", "WORDS_PER_ROUND", "SKIP_PENALTY_AFTER", "WIN_SCORE",
		"ABANDON_REAP_THRESHOLD_SECONDS",
	}
	orig := make(map[string]string, len(keys))
	for _, k := range keys {
		orig[k] = os.Getenv(k)
		os.Unsetenv(k)
	}
	return func() {
		for k, v := range orig {
			if v != "" {
				os.Setenv(k, v)
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

func setValidBase() {
	os.Setenv("PORT", "8080")
	os.Setenv("SKIP_AUTH", "true")
	os.Setenv("SKIP_DB", "true")
}

func TestValidateEnvValidConfiguration(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	setValidBase()

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected PORT '8080', got '%s'", cfg.Port)
	}
	if cfg.GoEnv != "production" {
		t.Errorf("expected GO_ENV to default to 'production', got '%s'", cfg.GoEnv)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected LOG_LEVEL to default to 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.WordsPerRound != 20 {
		t.Errorf("expected WORDS_PER_ROUND to default to 20, got %d", cfg.WordsPerRound)
	}
}

func TestValidateEnvInvalidPort(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	setValidBase()
	os.Setenv("PORT", "99999")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error for invalid PORT, got nil")
	}
	if !strings.Contains(err.Error(), "PORT must be a valid port number") {
		t.Errorf("expected error about PORT, got: %v", err)
	}
}

func TestValidateEnvRequiresAuthConfigUnlessSkipped(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	os.Setenv("PORT", "8080")
	os.Setenv("SKIP_DB", "true")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error for missing auth config, got nil")
	}
	if !strings.Contains(err.Error(), "AUTH_JWKS_URL") {
		t.Errorf("expected error about auth config, got: %v", err)
	}
}

func TestValidateEnvSkipAuthBypassesAuthRequirement(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	setValidBase()

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !cfg.SkipAuth {
		t.Error("expected SkipAuth to be true")
	}
}

func TestValidateEnvRequiresDatabaseURLUnlessSkipDB(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	os.Setenv("PORT", "8080")
	os.Setenv("SKIP_AUTH", "true")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error for missing DATABASE_URL, got nil")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL is required") {
		t.Errorf("expected error about DATABASE_URL, got: %v", err)
	}
}

func TestValidateEnvRedisDefaultAddr(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	setValidBase()
	os.Setenv("REDIS_ENABLED", "true")

	cfg, err := ValidateEnv()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("expected REDIS_ADDR to default to 'localhost:6379', got '%s'", cfg.RedisAddr)
	}
}

func TestValidateEnvRejectsNonIntegerGameSettings(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	setValidBase()
	os.Setenv("WIN_SCORE", "not-a-number")

	_, err := ValidateEnv()
	if err == nil {
		t.Fatal("expected error for non-integer WIN_SCORE, got nil")
	}
	if !strings.Contains(err.Error(), "WIN_SCORE must be an integer") {
		t.Errorf("expected error about WIN_SCORE, got: %v", err)
	}
}

func TestGetEnvOrDefaultReturnsSetValue(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	os.Setenv("GO_ENV", "staging")
	if v := getEnvOrDefault("GO_ENV", "production"); v != "staging" {
		t.Errorf("expected 'staging', got '%s'", v)
	}
}

func TestGetEnvOrDefaultFallsBackWhenUnset(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()
	if v := getEnvOrDefault("GO_ENV", "production"); v != "production" {
		t.Errorf("expected 'production', got '%s'", v)
	}
}

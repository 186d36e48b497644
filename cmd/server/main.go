package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/nntndfrk/alias-game/internal/auth"
	"github.com/nntndfrk/alias-game/internal/broadcast"
	"github.com/nntndfrk/alias-game/internal/cache"
	"github.com/nntndfrk/alias-game/internal/config"
	"github.com/nntndfrk/alias-game/internal/corpus"
	"github.com/nntndfrk/alias-game/internal/game"
	"github.com/nntndfrk/alias-game/internal/httpapi"
	"github.com/nntndfrk/alias-game/internal/logging"
	"github.com/nntndfrk/alias-game/internal/ratelimit"
	"github.com/nntndfrk/alias-game/internal/resilience"
	"github.com/nntndfrk/alias-game/internal/room"
	"github.com/nntndfrk/alias-game/internal/wsconn"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on process environment")
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("invalid environment configuration", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.GoEnv != "production"); err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validator := buildValidator(ctx, cfg)

	corpusStore, users, archiver := buildCorpus(cfg)

	redisClient, err := cache.Connect(redisAddr(cfg), cfg.RedisPassword)
	if err != nil {
		logging.Error(ctx, "failed to connect to redis")
		os.Exit(1)
	}

	limiter, err := ratelimit.New(cfg, redisClient)
	if err != nil {
		logging.Error(ctx, "failed to build rate limiter")
		os.Exit(1)
	}

	fabric := broadcast.New()
	reapThreshold := time.Duration(cfg.AbandonReapThresholdSeconds) * time.Second
	registry := room.NewRegistry(fabric, reapThreshold)
	go registry.RunReaper(ctx)

	engine := game.NewEngine(corpusStore)

	hub := wsconn.NewHub(validator, registry, engine, fabric, limiter, archiver, allowedOrigins(cfg))

	server := &httpapi.Server{
		Validator:      validator,
		Users:          users,
		Registry:       registry,
		Hub:            hub,
		Limiter:        limiter,
		Redis:          redisClient,
		AllowedOrigins: allowedOrigins(cfg),
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router(),
	}

	go func() {
		logging.Info(ctx, "server starting on :"+cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "server failed")
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logging.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(context.Background(), "server forced to shutdown")
	}
	redisClient.Close()
	logging.Info(context.Background(), "server exited")
}

func buildValidator(ctx context.Context, cfg *config.Config) auth.TokenValidator {
	if cfg.SkipAuth {
		logging.Warn(ctx, "authentication disabled, using static dev validator")
		return auth.NewStaticValidator(map[string]*auth.Principal{
			"dev-token": {Subject: "dev-user", Name: "Dev User", Email: "dev@example.com"},
		})
	}
	validator, err := auth.NewJWKSValidator(ctx, cfg.AuthJWKSURL, cfg.AuthIssuer, cfg.AuthAudience)
	if err != nil {
		logging.Error(ctx, "failed to initialize jwks validator")
		os.Exit(1)
	}
	return validator
}

func buildCorpus(cfg *config.Config) (corpus.Store, *corpus.UserStore, *corpus.GameArchiver) {
	if cfg.DatabaseURL == "" {
		slog.Warn("SKIP_DB set, using in-memory corpus store (dev only)")
		store := corpus.NewMemoryStore(devWordSeed())
		return store, nil, nil
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := db.AutoMigrate(&corpus.WordRecord{}, &corpus.UserRecord{}, &corpus.GameArchiveRecord{}); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	dbBreaker := resilience.New("corpus_db", 3, 30*time.Second)
	store := corpus.NewGormStore(corpus.NewGorm(db), dbBreaker)
	users := corpus.NewUserStore(db, dbBreaker)
	archiver := corpus.NewGameArchiver(db)
	return store, users, archiver
}

func devWordSeed() []corpus.Word {
	words := []string{"сонце", "дощ", "гора", "річка", "книга", "машина", "дерево", "вогонь", "мур", "хмара"}
	seed := make([]corpus.Word, len(words))
	for i, w := range words {
		seed[i] = corpus.Word{Value: w, Difficulty: corpus.Medium, Category: "general"}
	}
	return seed
}

func redisAddr(cfg *config.Config) string {
	if !cfg.RedisEnabled {
		return ""
	}
	return cfg.RedisAddr
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.AllowedOrigins == "" {
		return []string{"http://localhost:3000"}
	}
	var origins []string
	start := 0
	for i := 0; i <= len(cfg.AllowedOrigins); i++ {
		if i == len(cfg.AllowedOrigins) || cfg.AllowedOrigins[i] == ',' {
			origins = append(origins, cfg.AllowedOrigins[start:i])
			start = i + 1
		}
	}
	return origins
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/Skufu/symptomcheck/internal/classifier"
	"github.com/Skufu/symptomcheck/internal/history"
	"github.com/Skufu/symptomcheck/internal/logging"
)

type Config struct {
	Port             string
	DatabaseURL      string
	EnableDB         bool
	ModelDir         string
	ModelStore       string
	LogLevel         string
	LogFormat        string
	StaticDir        string
	RetrainPerMinute int
}

func main() {
	gin.SetMode(getEnv("GIN_MODE", "release"))

	cfg, err := loadConfig()
	if err != nil {
		logging.Fatal().Err(err).Msg("config error")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx := context.Background()

	store, err := classifier.OpenStore(cfg.ModelStore, cfg.ModelDir)
	if err != nil {
		logging.Fatal().Err(err).Str("dir", cfg.ModelDir).Msg("open model store failed")
	}
	defer store.Close()

	pipeline := classifier.New(store)
	if err := pipeline.Load(ctx); err != nil {
		logging.Fatal().Err(err).Msg("model load failed")
	}

	var predictions PredictionLog
	if cfg.EnableDB {
		pool, err := history.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logging.Fatal().Err(err).Msg("database connection failed")
		}
		defer pool.Close()

		hist := history.New(pool)
		if err := hist.Migrate(ctx); err != nil {
			logging.Fatal().Err(err).Msg("database migration failed")
		}
		predictions = hist
	}

	staticRoot := cfg.StaticDir
	if staticRoot == "" {
		staticRoot = detectStaticRoot()
	}

	router := setupRouter(pipeline, predictions, routerOptions{
		StaticRoot:       staticRoot,
		RetrainPerMinute: cfg.RetrainPerMinute,
	})
	// WriteTimeout covers a synchronous retrain.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	logging.Info().Str("port", cfg.Port).Str("model_store", cfg.ModelStore).Msg("server listening")
	waitForShutdown(server)
}

func loadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		EnableDB:    strings.EqualFold(getEnv("ENABLE_DB", "false"), "true"),
		ModelDir:    getEnv("MODEL_DIR", "models"),
		ModelStore:  strings.ToLower(getEnv("MODEL_STORE", classifier.StoreFile)),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		StaticDir:   os.Getenv("STATIC_DIR"),
	}

	if cfg.EnableDB && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}

	if cfg.ModelStore != classifier.StoreFile && cfg.ModelStore != classifier.StoreBadger {
		return nil, fmt.Errorf("MODEL_STORE must be %q or %q, got %q", classifier.StoreFile, classifier.StoreBadger, cfg.ModelStore)
	}

	perMinute, err := strconv.Atoi(getEnv("RETRAIN_PER_MINUTE", "6"))
	if err != nil || perMinute < 0 {
		return nil, fmt.Errorf("RETRAIN_PER_MINUTE must be a non-negative integer")
	}
	cfg.RetrainPerMinute = perMinute

	return cfg, nil
}

func waitForShutdown(server *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logging.Info().Msg("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// detectStaticRoot looks for a built frontend (index.html) in the working
// directory and up to two parents. It returns "" when none is found.
func detectStaticRoot() string {
	startDir, err := os.Getwd()
	if err != nil {
		return ""
	}

	candidates := []string{
		startDir,
		filepath.Join(startDir, "dist"),
		filepath.Dir(startDir),
		filepath.Dir(filepath.Dir(startDir)),
	}

	for _, dir := range candidates {
		if fileExists(filepath.Join(dir, "index.html")) {
			return dir
		}
	}

	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

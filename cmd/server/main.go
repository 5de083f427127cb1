package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/EliosFinance/elios-backend-sub000/internal/api"
	"github.com/EliosFinance/elios-backend-sub000/internal/config"
	"github.com/EliosFinance/elios-backend-sub000/internal/engine"
	"github.com/EliosFinance/elios-backend-sub000/internal/metrics"
	"github.com/EliosFinance/elios-backend-sub000/internal/progress"
	"github.com/EliosFinance/elios-backend-sub000/internal/queue"
	"github.com/EliosFinance/elios-backend-sub000/internal/storage"
	"github.com/EliosFinance/elios-backend-sub000/internal/worker"
)

func main() {
	log.Println("Starting challenge progression service...")

	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Database connection
	dbConfig := storage.DBConfig{
		Host:            getEnv("DB_HOST", cfg.Database.Host),
		Port:            getEnvInt("DB_PORT", cfg.Database.Port),
		User:            getEnv("DB_USER", cfg.Database.User),
		Password:        getEnv("DB_PASSWORD", cfg.Database.Password),
		Database:        getEnv("DB_NAME", cfg.Database.Name),
		SSLMode:         getEnv("DB_SSLMODE", cfg.Database.SSLMode),
		MaxConnections:  cfg.Database.MaxConnections,
		MinConnections:  cfg.Database.MinConnections,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	}

	pool, err := storage.NewConnectionPool(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer storage.ClosePool(pool)
	log.Println("Connected to database")

	// 2. Stores and queue
	progressRepo := progress.NewPostgresRepository(pool)
	definitionRepo := progress.NewPostgresDefinitionRepository(pool)
	definitions := progress.NewCachedDefinitions(definitionRepo, cfg.Cache.DefinitionTTL)

	retryConfig := queue.RetryConfig{
		BaseDelay: cfg.Worker.BaseDelay,
		MaxDelay:  cfg.Worker.MaxDelay,
		MaxJitter: cfg.Worker.MaxJitter,
	}
	jobQueue := queue.NewPostgresQueue(
		pool,
		queue.NewULIDGenerator(),
		retryConfig,
		cfg.Worker.MaxAttempts,
		cfg.Worker.LeaseTTL,
	)

	// 3. Engine and worker pool
	eng := engine.New(definitions, progressRepo, cfg.Worker.SaveRetries)
	m := metrics.NewMetrics()

	workers := worker.NewPool(jobQueue, eng, m, worker.Config{
		NumWorkers:   cfg.Worker.PoolSize,
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
		JobTimeout:   cfg.Worker.JobTimeout,
		ReapInterval: cfg.Worker.ReapInterval,
	})
	workers.Start()
	defer workers.Stop()

	// 4. HTTP surface
	handler := api.NewHandler(jobQueue, progressRepo, jobQueue, m)

	router := http.NewServeMux()
	router.HandleFunc("POST /api/v1/progress", handler.RequestProgress)
	router.HandleFunc("GET /api/v1/progress/{userID}/{challengeID}", handler.GetProgress)
	router.HandleFunc("GET /api/v1/deadletters", handler.ListDeadLetters)
	router.HandleFunc("GET /health", handler.Health)
	router.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// 5. Run until signalled
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server error: %v", err)
	}

	log.Println("Shutdown complete")
}

// loadConfig reads the YAML config if a path is given, otherwise uses defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// getEnv gets environment variable or returns default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets environment variable as int or returns default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

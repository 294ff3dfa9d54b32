// ============================================================================
// MAIN.GO - APPLICATION ENTRY POINT
// ============================================================================
// Startup flow:
// config -> logger -> store cluster -> registry -> router -> server
// ============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shortly/internal/config"
	httpHandler "shortly/internal/handler/http"
	"shortly/internal/ratelimit"
	"shortly/internal/replica"
	"shortly/internal/repository"
	"shortly/internal/repository/memory"
	"shortly/internal/repository/postgres"
	redisrepo "shortly/internal/repository/redis"
	"shortly/internal/service"
	"shortly/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// ========================================================================
	// STEP 1: LOAD CONFIGURATION
	// ========================================================================
	// A .env file is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Ignoring .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// ========================================================================
	// STEP 2: INITIALIZE STRUCTURED LOGGER
	// ========================================================================
	appLogger := logger.New(cfg.App.LogLevel)
	appLogger.Info("Starting shortly",
		"environment", cfg.App.Environment,
		"port", cfg.Server.Port,
		"backend", cfg.Store.Backend,
	)

	// ========================================================================
	// STEP 3: CONNECT TO THE STORE CLUSTER
	// ========================================================================
	ctx := context.Background()
	cluster, closeStore, err := openCluster(ctx, cfg, appLogger.Logger)
	if err != nil {
		appLogger.Error("Failed to connect to store", "error", err)
		log.Fatalf("Store connection failed: %v", err)
	}
	defer closeStore()

	// ========================================================================
	// STEP 4: DEPENDENCY INJECTION
	// ========================================================================
	// Store cluster -> Registry -> Handler -> Router
	registry := service.NewRegistry(cluster, replica.NewRandomPicker(nil), appLogger.Logger)
	handler := httpHandler.NewHandler(registry, appLogger.Logger, cfg.Server.PublicBaseURL())

	opts := httpHandler.RouterOptions{Logger: appLogger.Logger}
	if cfg.App.EnableMetrics {
		opts.Metrics = promhttp.Handler()
	}
	if limiter := newLimiter(cfg, cluster); limiter != nil {
		opts.Limiter = limiter
		appLogger.Info("Rate limiting enabled", "requests_per_minute", cfg.App.RateLimitPerMinute)
	}

	// ========================================================================
	// STEP 5: CREATE AND START HTTP SERVER
	// ========================================================================
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      httpHandler.NewRouter(handler, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLogger.Info("Server starting", "address", server.Addr, "base_url", cfg.Server.PublicBaseURL())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Server failed", "error", err)
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// ========================================================================
	// STEP 6: GRACEFUL SHUTDOWN
	// ========================================================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
		return
	}

	appLogger.Info("Server exited gracefully")
}

// openCluster connects to the configured backend and returns its topology
// together with a function releasing every connection.
func openCluster(ctx context.Context, cfg *config.Config, log *slog.Logger) (*repository.Cluster, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		writeNode, readNodes, err := cfg.Redis.Nodes()
		if err != nil {
			return nil, nil, err
		}

		cluster, closeAll, err := redisrepo.OpenCluster(ctx, writeNode, readNodes, redisrepo.ClientOptions{
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info("Redis cluster connected", "write_node", writeNode, "read_nodes", readNodes)

		return cluster, func() {
			if err := closeAll(); err != nil {
				log.Warn("Failed to close Redis clients", "error", err)
			}
		}, nil

	case config.BackendPostgres:
		cluster, closeAll, err := postgres.OpenCluster(ctx, cfg.Postgres.WriteDSN, cfg.Postgres.ReadDSNs, postgres.PoolOptions{
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info("PostgreSQL cluster connected", "read_nodes", len(cfg.Postgres.ReadDSNs))

		return cluster, closeAll, nil

	case config.BackendMemory:
		store := memory.NewStore("memory")
		cluster, err := repository.NewCluster(store, store)
		if err != nil {
			return nil, nil, err
		}
		log.Warn("Using in-memory store, data is lost on restart")

		return cluster, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// newLimiter builds the create-endpoint rate limiter. It needs Redis, so it
// is only available on the Redis backend.
func newLimiter(cfg *config.Config, cluster *repository.Cluster) httpHandler.RateLimiter {
	if !cfg.App.RateLimitEnabled {
		return nil
	}

	writer, ok := cluster.Writer().(*redisrepo.Store)
	if !ok {
		return nil
	}

	return ratelimit.NewLimiter(writer.Client(), cfg.App.RateLimitPerMinute, time.Minute)
}

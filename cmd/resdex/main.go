package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kailas-cloud/resdex/internal/app"
	"github.com/kailas-cloud/resdex/internal/config"
	logpkg "github.com/kailas-cloud/resdex/internal/logger"
	"github.com/kailas-cloud/resdex/internal/metrics"
	chiTransport "github.com/kailas-cloud/resdex/internal/transport/chi"
	"github.com/kailas-cloud/resdex/internal/version"
)

func main() {
	// Load configuration based on RESDEX_ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting resdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	ctx := logpkg.ContextWithLogger(context.Background(), logger)
	store, err := app.OpenStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer store.Close()
	logger.Info("Connected to database")

	// Register query metrics explicitly (no init())
	metrics.RegisterQueryMetrics()

	a := app.New(cfg, store, afero.NewOsFs())
	if err := a.Resources.EnsureKindIndexes(ctx); err != nil {
		logger.Fatal("Failed to create kind indexes", zap.Error(err))
	}

	server := chiTransport.NewServer(chiTransport.Deps{
		Callers:   a.Providers,
		Endpoints: a.Structure,
		Schema:    a.Schema,
		Resources: a.Content,
		Lister:    a.Query,
		Bulk:      a.Bulk,
		Files:     a.Files,
		Health:    a.Health,
	}, logger, chiTransport.Options{
		KeyHeader:     cfg.Auth.Header,
		KeyQueryParam: cfg.Auth.QueryParam,
		CORSOrigins:   cfg.HTTP.CORSOrigins,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

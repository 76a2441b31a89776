package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/congo-pay/authgraph/internal/config"
	"github.com/congo-pay/authgraph/internal/infra"
	"github.com/congo-pay/authgraph/internal/logging"
	"github.com/congo-pay/authgraph/internal/routes"
	"github.com/congo-pay/authgraph/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel).With(slog.String("app", cfg.AppName))

	ctx := context.Background()
	deps, cleanup, err := connectStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("connect store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	srv, err := server.New(cfg, deps, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()
	logger.Info("server started", "addr", cfg.Address(), "store", cfg.StoreDriver)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

// connectStore opens the client for the configured store driver.
func connectStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (routes.Deps, func(), error) {
	var deps routes.Deps
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName)
		if err != nil {
			return deps, nil, err
		}
		if cfg.RunMigrations {
			if err := infra.Migrate(ctx, db); err != nil {
				db.Close()
				return deps, nil, err
			}
			logger.Info("migrations applied")
		}
		deps.DB = db
		return deps, db.Close, nil
	case config.DriverRedis:
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return deps, nil, err
		}
		deps.Cache = cache
		return deps, func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}, nil
	case config.DriverMongo:
		client, err := infra.NewMongoClient(ctx, cfg.MongoURI)
		if err != nil {
			return deps, nil, err
		}
		deps.Mongo = client
		return deps, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("close mongo", "error", err)
			}
		}, nil
	default:
		logger.Warn("using in-memory store; data is lost on restart")
		return deps, func() {}, nil
	}
}

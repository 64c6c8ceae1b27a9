package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neperienx/bookpipeline/internal/app"
	"github.com/neperienx/bookpipeline/internal/config"
	"github.com/neperienx/bookpipeline/internal/database"
	"github.com/neperienx/bookpipeline/internal/pkg/cluster"
	"github.com/neperienx/bookpipeline/internal/pkg/nativelog"
	"github.com/neperienx/bookpipeline/internal/pkg/proctitle"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "Path to YAML config file")
	flag.Parse()

	_ = proctitle.Set("bookpipeline")

	logger, err := nativelog.NewZapLogger()
	if err != nil {
		logger, _ = zap.NewProduction()
		logger.Warn("native log pipeline unavailable, fallback to zap production logger", zap.Error(err))
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// Schema migration runs once, before any worker connects.
	if !cluster.IsWorker() {
		if err := database.EnsureSchema(cfg); err != nil {
			logger.Fatal("schema migration failed", zap.Error(err))
		}
	}

	opts := cluster.Options{
		Enable:     cfg.Cluster,
		Workers:    cfg.ClusterWorkers,
		ListenAddr: fmt.Sprintf(":%d", cfg.Port),
	}
	if err := cluster.Run(logger, opts, func() error {
		return serve(logger, cfg)
	}); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func serve(logger *zap.Logger, cfg *config.AppConfig) error {
	application, err := app.New(logger, cfg)
	if err != nil {
		logger.Error("failed to initialize app", zap.Error(err))
		return err
	}

	// Workers either share the public port (SO_REUSEPORT) or get a private
	// address from the master, depending on platform.
	addr := application.Addr()
	reusePort := cfg.Cluster
	if workerAddr := cluster.WorkerListenAddr(); workerAddr != "" {
		addr = workerAddr
		reusePort = false
	}
	listener, err := cluster.ListenTCP(addr, reusePort)
	if err != nil {
		logger.Error("listen failed", zap.String("addr", addr), zap.Error(err))
		return err
	}

	srv := &http.Server{Handler: application.Router()}

	errCh := make(chan error, 1)
	go func() {
		if cluster.ShouldLogBootstrap() || cluster.WorkerID() == 1 {
			logger.Info("server starting", zap.String("addr", addr))
		}
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server...")
	application.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
		return err
	}
	logger.Info("server exited")
	return nil
}

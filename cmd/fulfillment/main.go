// Package main запускает HTTP-сервер сервиса комплектации заказов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/bol-fulfillment/internal/carrier"
	"github.com/mmeshcher/bol-fulfillment/internal/config"
	"github.com/mmeshcher/bol-fulfillment/internal/handler"
	"github.com/mmeshcher/bol-fulfillment/internal/marketplace"
	"github.com/mmeshcher/bol-fulfillment/internal/middleware"
	"github.com/mmeshcher/bol-fulfillment/internal/repository"
	"github.com/mmeshcher/bol-fulfillment/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()

	cfg, err := config.Parse()
	if err != nil {
		logger.Error("configuration error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	err = run(ctx, cfg, logger)
	stop()

	if err != nil {
		logger.Error("application terminated with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// run собирает сервис и обслуживает запросы до отмены ctx. Хранилище закрывается
// при любом исходе, в том числе при ошибке запуска.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	sugar := logger.Sugar()

	blobs, err := repository.NewFileBlobs(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("file storage initialization: %w", err)
	}

	repo, err := newRepository(cfg)
	if err != nil {
		return fmt.Errorf("storage initialization: %w", err)
	}

	marketClient := marketplace.NewClient(cfg.Marketplace, logger)
	carrierClient := carrier.NewClient(cfg.Carrier, logger)

	if missing := marketClient.Missing(); len(missing) > 0 {
		sugar.Warnw("marketplace is not configured, order and price operations are disabled", "missing", missing)
	}
	if missing := carrierClient.Missing(); len(missing) > 0 {
		sugar.Warnw("carrier is not configured, picking is disabled", "missing", missing)
	}

	svc := service.NewService(repo, blobs, marketClient, carrierClient,
		service.WithLogger(logger),
		service.WithOperator(cfg.Operator.Login, cfg.Operator.Password),
	)
	defer func() {
		if err := svc.Close(); err != nil {
			sugar.Errorw("final flush failed", "error", err)
		}
	}()

	if err := svc.Load(ctx); err != nil {
		return fmt.Errorf("load picking list: %w", err)
	}

	var auth *middleware.AuthMiddleware
	if svc.AuthEnabled() {
		auth = middleware.NewAuthMiddleware(cfg.SessionSecret)
	} else {
		sugar.Warn("OPERATOR_PASSWORD is not set, API is served without login")
	}
	h := handler.NewHandler(svc, logger, auth)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Фоновое сохранение листа комплектации
	g.Go(func() error {
		svc.StartAutoFlush(ctx, cfg.FlushInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting fulfillment server", "addr", cfg.RunAddress, "dataDir", cfg.DataDir)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}

// newRepository выбирает PostgreSQL, если задан DATABASE_URI, иначе файл в каталоге данных.
func newRepository(cfg *config.Config) (service.Repository, error) {
	if cfg.DatabaseURI != "" {
		return repository.NewPostgresRepository(cfg.DatabaseURI)
	}
	return repository.NewFileRepository(cfg.DataDir)
}

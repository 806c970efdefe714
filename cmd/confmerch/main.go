package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/confmerch-system/internal/config"
	"github.com/mmeshcher/confmerch-system/internal/handler"
	"github.com/mmeshcher/confmerch-system/internal/middleware"
	"github.com/mmeshcher/confmerch-system/internal/notify"
	"github.com/mmeshcher/confmerch-system/internal/repository"
	"github.com/mmeshcher/confmerch-system/internal/service"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("service stopped", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Parse()
	if err != nil {
		return err
	}

	if cfg.DatabaseURI == "" {
		return errors.New("database URI is required")
	}
	if cfg.AuthSecret == "" {
		return errors.New("auth secret is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		return err
	}
	defer repo.Close()

	var notifiers []service.Notifier
	if cfg.NotifyWebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.NotifyWebhookURL, logger))
	}
	if cfg.RedisAddress != "" {
		rn := notify.NewRedisNotifier(cfg.RedisAddress, "orders", logger)
		defer rn.Close()
		notifiers = append(notifiers, rn)
	}

	svc := service.NewService(repo, notifiers...)

	auth, err := middleware.NewAuthMiddleware(cfg.AuthSecret)
	if err != nil {
		return err
	}
	h := handler.NewHandler(svc, logger, auth)

	srv := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: handler.SetupRouter(h),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", zap.String("address", cfg.RunAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

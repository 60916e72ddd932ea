package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/navikt/appsec-orgbot/internal/config"
	"github.com/navikt/appsec-orgbot/internal/handlers"
	"github.com/navikt/appsec-orgbot/internal/webhook"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath string
	flagSet := pflag.NewFlagSet("orgbot", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a .env or yaml configuration file (default: environment only)")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := newLogger(os.Stdout, cfg.LogLevel)
	log.Info("Starting orgbot", slog.Any("scripts", cfg.EnabledScripts()))

	if cfg.WebhookSecret == "" {
		log.Warn("GITHUB_WEBHOOK_SECRET is not set, webhook signatures will not be verified")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handlerCtx, err := handlers.NewHandlerContext(ctx, cfg, log)
	if err != nil {
		return err
	}

	router := webhook.NewRouter(log)
	if err := handlerCtx.Register(router, cfg.EnabledScripts()); err != nil {
		return err
	}

	go func() {
		me, err := handlerCtx.Identity.Me(ctx)
		if err != nil {
			log.Error("Authentication failed", slog.Any("error", err))
			return
		}
		log.Info("Authenticated as", slog.String("login", me.Login))
	}()

	server := &http.Server{
		Addr: cfg.Addr(),
		Handler: webhook.NewHandler(webhook.HandlerConfig{
			Path:   cfg.WebhookPath,
			Secret: []byte(cfg.WebhookSecret),
			Router: router,
			Logger: log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server listening", slog.String("addr", server.Addr), slog.String("path", cfg.WebhookPath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down", slog.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", slog.Any("error", err))
	}

	waitForListeners(router, cfg.ShutdownTimeout, log)
	log.Info("Stopped")
	return nil
}

// waitForListeners lets in-flight scripts finish, giving up after timeout.
func waitForListeners(router *webhook.Router, timeout time.Duration, log *slog.Logger) {
	done := make(chan struct{})
	go func() {
		router.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn("Timed out waiting for running scripts")
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: config.ParseLogLevel(level)}))
}

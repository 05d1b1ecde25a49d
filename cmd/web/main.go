package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"render-studio/internal/config"
	"render-studio/internal/editor"
	"render-studio/internal/gemini"
	"render-studio/internal/handlers"
	"render-studio/internal/history"
	"render-studio/internal/httpclient"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	gem := gemini.New(gemini.Options{
		APIKey:        cfg.GeminiAPIKey,
		BaseURL:       cfg.GeminiBaseURL,
		APIVersion:    cfg.GeminiAPIVersion,
		ImageModel:    cfg.ImageModel,
		RatePerMinute: cfg.RatePerMinute,
		HTTPClient:    httpClient,
		Logger:        logger,
	})

	store, closeStore, err := openHistory(cfg, logger)
	if err != nil {
		logger.Error("history store init failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	registry := editor.NewRegistry(cfg.SessionTTL)

	handler := handlers.New(handlers.Options{
		Registry:       registry,
		Service:        gem,
		Generator:      gem,
		History:        store,
		HistoryKey:     cfg.HistoryKey,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           withLogging(handler.Routes(), logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("web started", "addr", cfg.Addr, "history_driver", cfg.HistoryDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

func openHistory(cfg config.Config, logger *slog.Logger) (history.Store, func(), error) {
	switch cfg.HistoryDriver {
	case "file":
		store, err := history.OpenFile(history.FileOptions{
			Path:     cfg.HistoryPath,
			MaxItems: cfg.HistoryMaxItems,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Flush(); err != nil {
				logger.Error("history flush failed", "err", err)
			}
		}, nil
	default:
		store, err := history.OpenSQLite(history.SQLiteOptions{
			Path:     cfg.HistoryPath,
			MaxItems: cfg.HistoryMaxItems,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

func withLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("http", "method", r.Method, "path", r.URL.Path, "dur_ms", time.Since(start).Milliseconds())
	})
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Fatal777/applyx-pdfedit/api"
	"github.com/Fatal777/applyx-pdfedit/config"
	"github.com/Fatal777/applyx-pdfedit/engine"
	"github.com/Fatal777/applyx-pdfedit/export"
	"github.com/Fatal777/applyx-pdfedit/fonts"
	"github.com/Fatal777/applyx-pdfedit/observability"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	obs := observability.NewStdLogger(observability.ParseLevel(cfg.LogLevel))

	eng := engine.New()

	opts := []export.Option{export.WithFontTimeout(cfg.FontTimeout)}
	if cfg.FontPath != "" {
		path := cfg.FontPath
		opts = append(opts, export.WithFontLoader(func() (fonts.Measurer, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			return fonts.NewTrueTypeMeasurer(data)
		}))
	}
	worker := export.NewWorker(eng, obs, opts...)

	srv := api.NewServer(eng, worker, log, obs, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting applyx-pdfedit", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

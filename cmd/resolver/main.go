package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammed-shakir/geo-resolver/internal/app"
	"github.com/mohammed-shakir/geo-resolver/internal/core/config"
	"github.com/mohammed-shakir/geo-resolver/internal/core/health"
	"github.com/mohammed-shakir/geo-resolver/internal/core/router"
	"github.com/mohammed-shakir/geo-resolver/internal/core/server"
	"github.com/mohammed-shakir/geo-resolver/internal/logger"
	"github.com/mohammed-shakir/geo-resolver/internal/metrics"
	"github.com/mohammed-shakir/geo-resolver/internal/regionevents"
	"github.com/mohammed-shakir/geo-resolver/internal/sessions"
)

// Version is set at link time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("read .env: %v", err)
	}
	cfg := config.FromEnv()
	version := Version
	if version == "dev" {
		version = cfg.Version
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "resolver",
		Version:   version,
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	appLog.Info("starting resolver",
		"addr", cfg.Addr,
		"version", version,
		"overpass", cfg.Upstream.OverpassURL,
		"nominatim", cfg.Upstream.NominatimURL,
		"session_store", cfg.Sessions.Store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.NewEngine(cfg, appLog)
	if err != nil {
		appLog.Error("failed to initialize engine", "err", err)
		return 1
	}

	newState, rc, err := app.StateFactory(ctx, cfg)
	if err != nil {
		appLog.Error("failed to initialize session state", "err", err)
		return 1
	}
	ready := map[string]health.Pinger{}
	if rc != nil {
		defer func() { _ = rc.Close() }()
		ready["redis"] = rc
	}

	reg, err := sessions.New(engine, cfg.Sessions.Max, newState, appLog)
	if err != nil {
		appLog.Error("failed to initialize session registry", "err", err)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		reg.CloseAll(closeCtx)
	}()

	var sink router.EventSink
	if cfg.Events.Enabled {
		pub, err := regionevents.NewPublisher(config.Brokers(cfg.Events.Brokers), cfg.Events.Topic, cfg.Events.Queue, appLog)
		if err != nil {
			appLog.Error("failed to initialize region events", "err", err)
			return 1
		}
		defer func() {
			if err := pub.Close(); err != nil {
				appLog.Warn("region events close", "err", err)
			}
		}()
		sink = pub
	}

	opts := server.Options{Addr: cfg.Addr, CORSOrigins: cfg.CORSOrigins, Ready: ready}
	if cfg.Metrics.Enabled {
		p, err := metrics.New(metrics.BuildFromEnv(version))
		if err != nil {
			appLog.Error("failed to initialize metrics", "err", err)
			return 1
		}
		if cfg.Metrics.Addr == "" {
			opts.Metrics = p.Handler()
			opts.MetricsPath = cfg.Metrics.Path
		} else {
			serveMetrics(ctx, appLog, cfg.Metrics.Addr, cfg.Metrics.Path, p.Handler())
		}
	}

	api := router.New(appLog, engine, reg, sink, cfg.WeatherYears)
	if err := server.Run(ctx, appLog, api, opts); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

// serveMetrics runs a dedicated metrics listener until ctx is done.
func serveMetrics(ctx context.Context, l *slog.Logger, addr, path string, h http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(path, h)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		l.Info("metrics listen", "addr", addr, "path", path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("metrics server exited", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Warn("metrics shutdown", "err", err)
		}
	}()
}

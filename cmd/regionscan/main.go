package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/geo-resolver/internal/app"
	"github.com/mohammed-shakir/geo-resolver/internal/core/config"
	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
	"github.com/mohammed-shakir/geo-resolver/internal/core/router"
	"github.com/mohammed-shakir/geo-resolver/internal/logger"
	"github.com/mohammed-shakir/geo-resolver/internal/regionevents"
	"github.com/mohammed-shakir/geo-resolver/internal/tiling"
)

func main() {
	os.Exit(run())
}

func run() int {
	area := flag.String("bbox", "", "area to scan: south,north,west,east")
	res := flag.Int("res", 3, "H3 resolution used to tile the area")
	features := flag.String("features", "", "comma separated features: airports,peaks,beaches,saltlakes")
	minPeak := flag.String("min-peak-height", "", "minimum peak elevation in meters")
	publish := flag.Bool("publish", false, "publish discovered regions to Kafka")
	envFile := flag.String("env", ".env", "optional env file")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *envFile, err)
		return 2
	}
	cfg := config.FromEnv()
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "regionscan",
	}, os.Stderr)
	appLog := logger.NewSlog(&zl)

	bb, err := router.ParseBBox(*area)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -bbox: %v\n", err)
		return 2
	}
	prefs, err := router.ParsePreferences(url.Values{
		"features":              {*features},
		model.PropMinPeakHeight: {*minPeak},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -features: %v\n", err)
		return 2
	}
	if prefs.Features.Empty() {
		fmt.Fprintln(os.Stderr, "-features is required")
		return 2
	}

	tiler, err := tiling.New(*res)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -res: %v\n", err)
		return 2
	}
	tiles, err := tiler.Tiles(bb)
	if err != nil {
		appLog.Error("tiling failed", "err", err)
		return 1
	}

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
	if rc != nil {
		defer func() { _ = rc.Close() }()
	}

	var pub publisher
	if *publish || cfg.Events.Enabled {
		p, err := regionevents.NewPublisher(config.Brokers(cfg.Events.Brokers), cfg.Events.Topic, cfg.Events.Queue, appLog)
		if err != nil {
			appLog.Error("failed to initialize region events", "err", err)
			return 1
		}
		defer func() {
			if err := p.Close(); err != nil {
				appLog.Warn("region events close", "err", err)
			}
		}()
		pub = p
	}

	id := uuid.NewString()
	session := engine.StartFindRegionsWith(newState(id), id)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = session.Close(closeCtx)
	}()

	appLog.Info("region scan started",
		"session_id", id, "bbox", bb.String(), "res", *res, "tiles", len(tiles))
	start := time.Now()
	st, err := scan(ctx, appLog, session, id, tiles, prefs, os.Stdout, pub)
	appLog.Info("region scan finished",
		"session_id", id,
		"tiles", st.Tiles,
		"regions", st.Regions,
		"dropped_events", st.Dropped,
		"duration", time.Since(start).String())
	if err != nil {
		appLog.Error("region scan failed", "err", err)
		return 1
	}
	return 0
}

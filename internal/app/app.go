// Package app wires the resolution engine from configuration; shared by the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/geo-resolver/internal/core/config"
	"github.com/mohammed-shakir/geo-resolver/internal/core/executor"
	"github.com/mohammed-shakir/geo-resolver/internal/core/httpclient"
	"github.com/mohammed-shakir/geo-resolver/internal/core/nominatim"
	"github.com/mohammed-shakir/geo-resolver/internal/core/openmeteo"
	"github.com/mohammed-shakir/geo-resolver/internal/core/resolver"
	"github.com/mohammed-shakir/geo-resolver/internal/sessions"
	"github.com/mohammed-shakir/geo-resolver/internal/statestore"
)

// Upstream labels used in logs and metrics.
const (
	UpstreamOverpass  = "overpass"
	UpstreamNominatim = "nominatim"
	UpstreamOpenMeteo = "openmeteo"
)

// NewEngine builds the engine with one executor per upstream over a shared client.
func NewEngine(cfg config.Config, logger *slog.Logger) (*resolver.Engine, error) {
	client := httpclient.NewOutbound(cfg.Upstream.UserAgent, cfg.Upstream.Timeout)

	op, err := executor.New(logger, client, cfg.Upstream.OverpassURL, UpstreamOverpass)
	if err != nil {
		return nil, fmt.Errorf("overpass executor: %w", err)
	}
	op = op.WithRateLimit(cfg.Upstream.OverpassRPS)
	nomBase, err := executor.New(logger, client, cfg.Upstream.NominatimURL, UpstreamNominatim)
	if err != nil {
		return nil, fmt.Errorf("nominatim executor: %w", err)
	}
	meteo, err := executor.New(logger, client, cfg.Upstream.OpenMeteoURL, UpstreamOpenMeteo)
	if err != nil {
		return nil, fmt.Errorf("openmeteo executor: %w", err)
	}

	nomBase = nomBase.WithRateLimit(cfg.Upstream.NominatimRPS)

	places := nominatim.New(logger, nomBase.EndpointPath("lookup"),
		nominatim.WithBatchSize(cfg.NominatimBatch),
		nominatim.WithLanguage(cfg.Language),
	)
	return resolver.New(logger, op, places, resolver.Options{
		MaxBoxKm: cfg.MaxBBoxKm,
		Weather:  openmeteo.New(logger, meteo),
	}), nil
}

// StateFactory returns the session state factory for cfg and, for Redis, the
// client to ping and close. The client is nil for in-memory state.
func StateFactory(ctx context.Context, cfg config.Config) (sessions.StateFactory, *statestore.Client, error) {
	if cfg.Sessions.Store != "redis" {
		return sessions.MemoryStates, nil, nil
	}
	rc, err := statestore.New(ctx, cfg.Redis.Addr, cfg.Sessions.TTL,
		statestore.WithPoolSize(cfg.Redis.PoolSize),
		statestore.WithDialTimeout(cfg.Redis.DialTimeout),
		statestore.WithReadTimeout(cfg.Redis.ReadTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("session state store: %w", err)
	}
	return func(id string) resolver.ProcessedState { return rc.Session(id) }, rc, nil
}

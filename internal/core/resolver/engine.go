// Package resolver resolves cities and regions by combining Overpass queries
// with Nominatim place lookups.
package resolver

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/geo-resolver/internal/core/executor"
	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
	"github.com/mohammed-shakir/geo-resolver/internal/core/observability"
	"github.com/mohammed-shakir/geo-resolver/internal/core/openmeteo"
	"github.com/mohammed-shakir/geo-resolver/internal/core/overpass"
	"github.com/mohammed-shakir/geo-resolver/internal/logger"
)

// DefaultMaxBoxKm bounds the width and height of a region search box.
const DefaultMaxBoxKm = 2000

// PlaceLookup resolves relation ids into places. Either call may return a
// strict subset of ids; an error means an upstream failure, not "no match".
type PlaceLookup interface {
	LookupCities(ctx context.Context, ids model.EntityIDs, match model.Match) ([]model.PlaceInfo, error)
	LookupRegions(ctx context.Context, ids model.EntityIDs) ([]model.PlaceInfo, error)
}

type DetailLoader interface {
	LoadDetails(ctx context.Context, id model.EntityID) []model.FeatureDetail
}

type WeatherLoader interface {
	LoadHistorical(ctx context.Context, lat, lon float64, r model.DateRange) []model.WeatherInfo
}

type Options struct {
	MaxBoxKm float64
	// Details defaults to tourism nodes loaded through the Overpass executor.
	Details DetailLoader
	Weather WeatherLoader
	Now     func() time.Time
}

// Engine is safe for concurrent use; the sessions it starts are not.
type Engine struct {
	logger   *slog.Logger
	overpass executor.Interface
	places   PlaceLookup
	details  DetailLoader
	weather  WeatherLoader
	maxBoxKm float64
	now      func() time.Time
}

func New(logger *slog.Logger, op executor.Interface, places PlaceLookup, opts Options) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Engine{
		logger:   logger,
		overpass: op,
		places:   places,
		details:  opts.Details,
		weather:  opts.Weather,
		maxBoxKm: opts.MaxBoxKm,
		now:      opts.Now,
	}
	if e.details == nil {
		e.details = NewTourismDetails(logger, op)
	}
	if e.maxBoxKm <= 0 {
		e.maxBoxKm = DefaultMaxBoxKm
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// FindCitiesByName resolves administrative relations named exactly name.
func (e *Engine) FindCitiesByName(ctx context.Context, name string, includeDetails bool) []model.PlaceRecord {
	ids := e.queryRelationIDs(ctx, overpass.ByName(name))
	return e.findCities(ctx, "cities_by_name", ids, model.MatchAny, includeDetails)
}

// FindCitiesByPosition resolves the city containing the point.
func (e *Engine) FindCitiesByPosition(ctx context.Context, lat, lon float64, includeDetails bool) []model.PlaceRecord {
	ids := e.queryRelationIDs(ctx, overpass.ByPosition(lat, lon))
	return e.findCities(ctx, "cities_by_position", ids, model.MatchBest, includeDetails)
}

// queryRelationIDs treats transport failures as an empty answer.
func (e *Engine) queryRelationIDs(ctx context.Context, query string) model.EntityIDs {
	ctx = logger.WithQueryFingerprint(ctx, overpass.Fingerprint(query))
	e.logger.DebugContext(ctx, "overpass query", "query", query)
	body, err := e.overpass.Post(ctx, query)
	if err != nil {
		e.logger.WarnContext(ctx, "overpass query failed", "err", err)
		return nil
	}
	return overpass.ExtractRelationIDs(body)
}

func (e *Engine) findCities(
	ctx context.Context,
	op string,
	ids model.EntityIDs,
	match model.Match,
	includeDetails bool,
) []model.PlaceRecord {
	if len(ids) == 0 {
		e.logger.ErrorContext(ctx, "no cities found", "op", op)
		observability.IncResolve(op, observability.OutcomeEmpty)
		return nil
	}

	// Only Nominatim knows which relations are cities.
	infos, err := e.places.LookupCities(ctx, ids, match)
	if err != nil && len(infos) == 0 {
		e.logger.ErrorContext(ctx, "cannot look up cities", "op", op, "checked", len(ids), "err", err)
		observability.IncResolve(op, observability.OutcomeUpstream)
		return nil
	}
	if len(infos) == 0 {
		e.logger.ErrorContext(ctx, "cannot find cities in nominatim", "op", op, "checked", len(ids))
		observability.IncResolve(op, observability.OutcomeEmpty)
		return nil
	}
	if err != nil {
		e.logger.WarnContext(ctx, "partial city lookup", "op", op, "err", err)
	}
	e.logger.InfoContext(ctx, "found cities in nominatim",
		"op", op, "found", len(infos), "checked", len(ids), "match", match.String())
	observability.IncResolve(op, observability.OutcomeFound)

	out := make([]model.PlaceRecord, 0, len(infos))
	for _, info := range infos {
		rec := model.PlaceRecordFromInfo(info)
		if includeDetails {
			rec.Features = e.details.LoadDetails(ctx, info.OsmID)
		}
		out = append(out, rec)
	}
	return out
}

// GetWeather loads daily weather for the anchor range rolled back into the
// past, one period per year, most recent first.
func (e *Engine) GetWeather(ctx context.Context, lat, lon float64, anchor model.DateRange, years int) []model.WeatherPeriod {
	if e.weather == nil {
		return nil
	}
	ranges := openmeteo.HistoricalRanges(anchor, e.now(), years)
	out := make([]model.WeatherPeriod, 0, len(ranges))
	for _, r := range ranges {
		days := e.weather.LoadHistorical(ctx, lat, lon, r)
		if len(days) == 0 {
			continue
		}
		out = append(out, model.WeatherPeriod{Range: r, Days: days})
	}
	if len(out) == 0 {
		e.logger.ErrorContext(ctx, "no historical weather", "lat", lat, "lon", lon, "anchor", anchor.String())
		observability.IncResolve("weather", observability.OutcomeEmpty)
		return nil
	}
	observability.IncResolve("weather", observability.OutcomeFound)
	return out
}

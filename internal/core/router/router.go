// Package router maps the resolver HTTP API onto the resolution engine.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
	"github.com/mohammed-shakir/geo-resolver/internal/core/observability"
	"github.com/mohammed-shakir/geo-resolver/internal/regionevents"
	"github.com/mohammed-shakir/geo-resolver/internal/sessions"
)

// Resolver is the stateless part of the resolution engine.
type Resolver interface {
	FindCitiesByName(ctx context.Context, name string, includeDetails bool) []model.PlaceRecord
	FindCitiesByPosition(ctx context.Context, lat, lon float64, includeDetails bool) []model.PlaceRecord
	GetWeather(ctx context.Context, lat, lon float64, anchor model.DateRange, years int) []model.WeatherPeriod
}

// Sessions addresses region discovery sessions by id.
type Sessions interface {
	Start() string
	Advance(ctx context.Context, id string, bb model.BBox, prefs model.Preferences) ([]model.PlaceRecord, error)
	Close(ctx context.Context, id string) error
}

// EventSink receives discovered regions; nil disables publishing.
type EventSink interface {
	PublishAll(evs []regionevents.Event) (dropped int)
}

type API struct {
	logger       *slog.Logger
	resolver     Resolver
	sessions     Sessions
	events       EventSink
	weatherYears int
	now          func() time.Time
}

func New(logger *slog.Logger, res Resolver, ss Sessions, events EventSink, weatherYears int) *API {
	return &API{
		logger:       logger,
		resolver:     res,
		sessions:     ss,
		events:       events,
		weatherYears: max(weatherYears, 1),
		now:          time.Now,
	}
}

// Mount registers the API routes on r.
func (a *API) Mount(r chi.Router) {
	r.Get("/cities", a.instrument("/cities", a.handleCities))
	r.Get("/weather", a.instrument("/weather", a.handleWeather))
	r.Route("/regions/sessions", func(r chi.Router) {
		r.Post("/", a.instrument("/regions/sessions", a.handleStartSession))
		r.Post("/{id}/advance", a.instrument("/regions/sessions/{id}/advance", a.handleAdvance))
		r.Delete("/{id}", a.instrument("/regions/sessions/{id}", a.handleCloseSession))
	})
}

func (a *API) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		h(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.ObserveHTTP(r.Method, route, status, time.Since(start).Seconds())
	}
}

func (a *API) handleCities(w http.ResponseWriter, r *http.Request) {
	q, warn, err := ParseCityQuery(r.URL.Query())
	if warn != "" {
		a.logger.WarnContext(r.Context(), warn)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var recs []model.PlaceRecord
	if q.ByName {
		recs = a.resolver.FindCitiesByName(r.Context(), q.Name, q.Details)
	} else {
		recs = a.resolver.FindCitiesByPosition(r.Context(), q.Lat, q.Lon, q.Details)
	}
	a.writeJSON(w, r, http.StatusOK, nonNil(recs))
}

func (a *API) handleWeather(w http.ResponseWriter, r *http.Request) {
	q, err := ParseWeatherQuery(r.URL.Query(), a.weatherYears)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	periods := a.resolver.GetWeather(r.Context(), q.Lat, q.Lon, q.Anchor, q.Years)
	a.writeJSON(w, r, http.StatusOK, nonNil(periods))
}

func (a *API) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id := a.sessions.Start()
	a.writeJSON(w, r, http.StatusCreated, map[string]string{"id": id})
}

func (a *API) handleAdvance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()
	bb, err := ParseBBox(q.Get("bbox"))
	if err != nil {
		http.Error(w, "invalid bbox: "+err.Error(), http.StatusBadRequest)
		return
	}
	prefs, err := ParsePreferences(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	recs, err := a.sessions.Advance(r.Context(), id, bb, prefs)
	if errors.Is(err, sessions.ErrNotFound) {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	if err != nil {
		a.logger.ErrorContext(r.Context(), "advance failed", "session_id", id, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if a.events != nil && len(recs) > 0 {
		if dropped := a.events.PublishAll(regionevents.EventsFor(id, bb, prefs, recs, a.now())); dropped > 0 {
			a.logger.WarnContext(r.Context(), "region events dropped", "session_id", id, "dropped", dropped)
		}
	}
	a.writeJSON(w, r, http.StatusOK, nonNil(recs))
}

func (a *API) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := a.sessions.Close(r.Context(), id)
	switch {
	case errors.Is(err, sessions.ErrNotFound):
		http.Error(w, "unknown session", http.StatusNotFound)
	case err != nil:
		a.logger.ErrorContext(r.Context(), "close session failed", "session_id", id, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *API) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.WarnContext(r.Context(), "write response", "err", err)
	}
}

// nonNil makes empty results encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

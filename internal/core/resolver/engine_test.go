package resolver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
)

func TestFindCitiesByName(t *testing.T) {
	op := &fakeOverpass{ids: model.EntityIDs{120965, 7378}}
	places := newFakePlaces(120965)
	e := New(nil, op, places, Options{})

	got := e.FindCitiesByName(context.Background(), "Lyon", false)
	if len(got) != 1 || got[0].OsmID != 120965 || got[0].Name != "place-120965" {
		t.Fatalf("got %+v", got)
	}
	if places.match != model.MatchAny {
		t.Fatalf("name lookup must use MatchAny, got %v", places.match)
	}
	if len(op.queries) != 1 || !strings.Contains(op.queries[0], `["name"="Lyon"]`) {
		t.Fatalf("queries: %v", op.queries)
	}
	if got[0].Features != nil {
		t.Fatal("details not requested")
	}
}

func TestFindCitiesByPosition_UsesBestMatchAndDetails(t *testing.T) {
	op := &fakeOverpass{ids: model.EntityIDs{1}}
	places := newFakePlaces(1)
	details := &fakeDetails{}
	e := New(nil, op, places, Options{Details: details})

	got := e.FindCitiesByPosition(context.Background(), 45.76, 4.83, true)
	if len(got) != 1 || len(got[0].Features) != 1 {
		t.Fatalf("got %+v", got)
	}
	if places.match != model.MatchBest {
		t.Fatalf("position lookup must use MatchBest, got %v", places.match)
	}
	if len(details.loaded) != 1 || details.loaded[0] != 1 {
		t.Fatalf("details loaded for %v", details.loaded)
	}
}

func TestFindCities_NoIDsSkipsLookup(t *testing.T) {
	places := newFakePlaces()
	e := New(nil, &fakeOverpass{}, places, Options{})

	if got := e.FindCitiesByName(context.Background(), "Atlantis", true); len(got) != 0 {
		t.Fatalf("got %+v want empty", got)
	}
	if places.calls != 0 {
		t.Fatalf("lookup called %d times, want 0", places.calls)
	}
}

func TestFindCities_TransportErrorIsEmpty(t *testing.T) {
	places := newFakePlaces(1)
	e := New(nil, &fakeOverpass{err: errors.New("timeout")}, places, Options{})
	if got := e.FindCitiesByPosition(context.Background(), 1, 2, false); len(got) != 0 {
		t.Fatalf("got %+v want empty", got)
	}
	if places.calls != 0 {
		t.Fatal("lookup must not run without ids")
	}
}

func TestFindCities_LookupFailureIsEmpty(t *testing.T) {
	places := newFakePlaces(1)
	places.err = errors.New("nominatim down")
	e := New(nil, &fakeOverpass{ids: model.EntityIDs{1}}, places, Options{})
	if got := e.FindCitiesByName(context.Background(), "x", false); len(got) != 0 {
		t.Fatalf("got %+v want empty", got)
	}
}

func TestGetWeather(t *testing.T) {
	w := &fakeWeather{empty: map[int]bool{2022: true}}
	e := New(nil, &fakeOverpass{}, newFakePlaces(), Options{Weather: w, Now: fixedNow("2024-06-05")})
	anchor := model.DateRange{Start: fixedNow("2024-06-01")(), End: fixedNow("2024-06-10")()}

	got := e.GetWeather(context.Background(), 48.85, 2.35, anchor, 3)
	if len(w.ranges) != 3 {
		t.Fatalf("loaded %d ranges want 3", len(w.ranges))
	}
	if len(got) != 2 || got[0].Range.Start.Year() != 2023 || got[1].Range.Start.Year() != 2021 {
		t.Fatalf("got %+v", got)
	}
}

func TestGetWeather_NoLoader(t *testing.T) {
	e := New(nil, &fakeOverpass{}, newFakePlaces(), Options{})
	if got := e.GetWeather(context.Background(), 1, 2, model.DateRange{}, 1); got != nil {
		t.Fatalf("got %+v", got)
	}
}

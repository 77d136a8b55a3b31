package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
)

// fakeOverpass answers every query with the same relation ids.
type fakeOverpass struct {
	ids     model.EntityIDs
	err     error
	queries []string
}

func (f *fakeOverpass) Post(_ context.Context, query string) ([]byte, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	parts := make([]string, 0, len(f.ids))
	for _, id := range f.ids {
		parts = append(parts, fmt.Sprintf(`{"type":"relation","id":%d}`, id))
	}
	return []byte(`{"elements":[` + strings.Join(parts, ",") + `]}`), nil
}

func (f *fakeOverpass) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("not used")
}

// fakePlaces resolves the ids it knows, in request order.
type fakePlaces struct {
	known   map[model.EntityID]model.PlaceInfo
	err     error
	calls   int
	lastIDs model.EntityIDs
	match   model.Match
}

func newFakePlaces(ids ...model.EntityID) *fakePlaces {
	p := &fakePlaces{known: map[model.EntityID]model.PlaceInfo{}}
	for _, id := range ids {
		p.known[id] = model.PlaceInfo{OsmID: id, Name: fmt.Sprintf("place-%d", id), Country: "X"}
	}
	return p
}

func (f *fakePlaces) resolve(ids model.EntityIDs) ([]model.PlaceInfo, error) {
	f.calls++
	f.lastIDs = append(model.EntityIDs(nil), ids...)
	if f.err != nil {
		return nil, f.err
	}
	var out []model.PlaceInfo
	for _, id := range ids {
		if info, ok := f.known[id]; ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func (f *fakePlaces) LookupCities(_ context.Context, ids model.EntityIDs, match model.Match) ([]model.PlaceInfo, error) {
	f.match = match
	return f.resolve(ids)
}

func (f *fakePlaces) LookupRegions(_ context.Context, ids model.EntityIDs) ([]model.PlaceInfo, error) {
	return f.resolve(ids)
}

type fakeDetails struct{ loaded []model.EntityID }

func (f *fakeDetails) LoadDetails(_ context.Context, id model.EntityID) []model.FeatureDetail {
	f.loaded = append(f.loaded, id)
	return []model.FeatureDetail{{Tags: model.Tags{model.TagTourism: "museum"}}}
}

type fakeWeather struct {
	ranges []model.DateRange
	empty  map[int]bool // by year
}

func (f *fakeWeather) LoadHistorical(_ context.Context, _, _ float64, r model.DateRange) []model.WeatherInfo {
	f.ranges = append(f.ranges, r)
	if f.empty[r.Start.Year()] {
		return nil
	}
	return []model.WeatherInfo{{Time: r.Start, TemperatureMax: 20, TemperatureMin: 10, TemperatureAverage: 15}}
}

// failingState fails reads or merges on demand.
type failingState struct {
	MemoryState
	readErr  error
	mergeErr error
}

func (s *failingState) Processed(ctx context.Context) (model.EntityIDs, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.MemoryState.Processed(ctx)
}

func (s *failingState) Merge(ctx context.Context, ids model.EntityIDs) error {
	if s.mergeErr != nil {
		return s.mergeErr
	}
	return s.MemoryState.Merge(ctx, ids)
}

func fixedNow(s string) func() time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return func() time.Time { return t }
}

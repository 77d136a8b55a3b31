// Package nominatim resolves OSM relation ids into place records via the Nominatim lookup API.
package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/geo-resolver/internal/core/executor"
	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
)

// MaxBatch is the id limit of one Nominatim lookup request.
const MaxBatch = 50

// cityTypes are the address types accepted as a city.
var cityTypes = map[string]struct{}{
	"city": {},
	"town": {},
}

type Client struct {
	logger *slog.Logger
	exec   executor.Interface
	batch  int
	lang   string
}

type Option func(*Client)

func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= MaxBatch {
			c.batch = n
		}
	}
}

func WithLanguage(lang string) Option {
	return func(c *Client) { c.lang = strings.TrimSpace(lang) }
}

// New wraps exec, which must point at the Nominatim /lookup endpoint.
func New(logger *slog.Logger, exec executor.Interface, opts ...Option) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Client{logger: logger, exec: exec, batch: MaxBatch, lang: "en"}
	for _, o := range opts {
		o(c)
	}
	return c
}

type place struct {
	OsmType     string            `json:"osm_type"`
	OsmID       int64             `json:"osm_id"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	AddressType string            `json:"addresstype"`
	PlaceRank   int               `json:"place_rank"`
	Importance  float64           `json:"importance"`
	Address     map[string]string `json:"address"`
}

func (p place) isRelation() bool {
	return p.OsmType == "relation" || p.OsmType == "R"
}

func (p place) isCity() bool {
	_, ok := cityTypes[p.AddressType]
	return ok
}

func (p place) info() (model.PlaceInfo, bool) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return model.PlaceInfo{}, false
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return model.PlaceInfo{}, false
	}
	name := p.Name
	if name == "" {
		name, _, _ = strings.Cut(p.DisplayName, ",")
		name = strings.TrimSpace(name)
	}
	return model.PlaceInfo{
		OsmID:     model.EntityID(p.OsmID),
		Name:      name,
		Country:   p.Address["country"],
		Latitude:  lat,
		Longitude: lon,
	}, true
}

// LookupCities returns the ids Nominatim classifies as cities. MatchBest keeps
// only the most specific one. The result may be a strict subset of ids.
func (c *Client) LookupCities(ctx context.Context, ids model.EntityIDs, match model.Match) ([]model.PlaceInfo, error) {
	places, err := c.lookup(ctx, ids)
	cities := slices.DeleteFunc(places, func(p place) bool { return !p.isCity() })
	if match == model.MatchBest && len(cities) > 1 {
		cities = []place{best(cities)}
	}
	return toInfos(cities), err
}

// LookupRegions returns every relation Nominatim knows, without city filtering.
func (c *Client) LookupRegions(ctx context.Context, ids model.EntityIDs) ([]model.PlaceInfo, error) {
	places, err := c.lookup(ctx, ids)
	return toInfos(places), err
}

// best prefers the highest place rank, then importance, then response order.
func best(ps []place) place {
	b := ps[0]
	for _, p := range ps[1:] {
		if p.PlaceRank > b.PlaceRank || (p.PlaceRank == b.PlaceRank && p.Importance > b.Importance) {
			b = p
		}
	}
	return b
}

func toInfos(ps []place) []model.PlaceInfo {
	out := make([]model.PlaceInfo, 0, len(ps))
	for _, p := range ps {
		if info, ok := p.info(); ok {
			out = append(out, info)
		}
	}
	return out
}

// lookup issues one request per batch. Failed batches are skipped; their
// errors are returned joined alongside whatever the other batches found.
func (c *Client) lookup(ctx context.Context, ids model.EntityIDs) ([]place, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var (
		out  []place
		errs []error
	)
	for chunk := range slices.Chunk(ids, c.batch) {
		body, err := c.exec.Get(ctx, c.lookupQuery(chunk))
		if err != nil {
			c.logger.WarnContext(ctx, "nominatim lookup failed", "ids", len(chunk), "err", err)
			errs = append(errs, err)
			continue
		}
		ps, err := decodePlaces(body)
		if err != nil {
			c.logger.WarnContext(ctx, "nominatim response malformed", "ids", len(chunk), "err", err)
			errs = append(errs, err)
			continue
		}
		out = append(out, ps...)
	}
	return out, errors.Join(errs...)
}

func (c *Client) lookupQuery(ids model.EntityIDs) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "R" + strconv.FormatInt(int64(id), 10)
	}
	q := url.Values{}
	q.Set("osm_ids", strings.Join(parts, ","))
	q.Set("format", "jsonv2")
	q.Set("addressdetails", "1")
	if c.lang != "" {
		q.Set("accept-language", c.lang)
	}
	return q.Encode()
}

func decodePlaces(body []byte) ([]place, error) {
	var ps []place
	if err := json.Unmarshal(body, &ps); err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", err)
	}
	return slices.DeleteFunc(ps, func(p place) bool { return !p.isRelation() }), nil
}

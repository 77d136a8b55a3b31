// Package tiling splits a large search area into H3-cell sized bounding boxes.
package tiling

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
)

const kmPerDegree = 111.32

type Tiler struct {
	res int
}

func New(res int) (*Tiler, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	return &Tiler{res: res}, nil
}

func (t *Tiler) Resolution() int { return t.res }

// Cells returns the sorted cells intersecting the area: cells whose center
// lies inside plus the cells around points sampled along the border. Cells
// near the border may not intersect it; Tiles drops those.
func (t *Tiler) Cells(area model.BBox) ([]h3.Cell, error) {
	if area.North <= area.South || area.East <= area.West {
		return nil, errors.New("area must satisfy north>south and east>west")
	}
	outer := h3.GeoLoop{
		{Lat: area.South, Lng: area.West},
		{Lat: area.South, Lng: area.East},
		{Lat: area.North, Lng: area.East},
		{Lat: area.North, Lng: area.West},
	}
	inner, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, t.res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	edgeKm, err := h3.HexagonEdgeLengthAvgKm(t.res)
	if err != nil {
		return nil, fmt.Errorf("h3 edge length: %w", err)
	}
	border, err := borderCells(area, edgeKm/kmPerDegree, t.res)
	if err != nil {
		return nil, err
	}

	seen := make(map[h3.Cell]struct{}, len(inner)+len(border))
	out := make([]h3.Cell, 0, len(inner)+len(border))
	for _, c := range append(inner, border...) {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Tiles returns the bounding boxes of the covering cells clipped to the
// area, without duplicates.
func (t *Tiler) Tiles(area model.BBox) ([]model.BBox, error) {
	cells, err := t.Cells(area)
	if err != nil {
		return nil, err
	}
	out := make([]model.BBox, 0, len(cells))
	seen := make(map[model.BBox]struct{}, len(cells))
	for _, c := range cells {
		bb, err := cellBBox(c)
		if err != nil {
			return nil, err
		}
		clipped, ok := clip(bb, area)
		if !ok {
			continue
		}
		if _, dup := seen[clipped]; dup {
			continue
		}
		seen[clipped] = struct{}{}
		out = append(out, clipped)
	}
	return out, nil
}

func cellBBox(c h3.Cell) (model.BBox, error) {
	boundary, err := c.Boundary()
	if err != nil {
		return model.BBox{}, fmt.Errorf("h3 boundary %s: %w", c, err)
	}
	ring := make(orb.Ring, 0, len(boundary))
	for _, v := range boundary {
		ring = append(ring, orb.Point{v.Lng, v.Lat})
	}
	return model.BBoxFromBound(ring.Bound()), nil
}

func clip(bb, area model.BBox) (model.BBox, bool) {
	out := model.BBox{
		South: math.Max(bb.South, area.South),
		North: math.Min(bb.North, area.North),
		West:  math.Max(bb.West, area.West),
		East:  math.Min(bb.East, area.East),
	}
	return out, out.North > out.South && out.East > out.West
}

func borderCells(area model.BBox, stepDeg float64, res int) ([]h3.Cell, error) {
	if stepDeg <= 0 {
		return nil, errors.New("non-positive sampling step")
	}
	var pts []h3.LatLng
	for lat := area.South; lat < area.North+stepDeg; lat += stepDeg {
		y := math.Min(lat, area.North)
		pts = append(pts, h3.LatLng{Lat: y, Lng: area.West}, h3.LatLng{Lat: y, Lng: area.East})
	}
	for lng := area.West; lng < area.East+stepDeg; lng += stepDeg {
		x := math.Min(lng, area.East)
		pts = append(pts, h3.LatLng{Lat: area.South, Lng: x}, h3.LatLng{Lat: area.North, Lng: x})
	}
	// samples are at most half a step from any border point, so every cell
	// crossing the border is a sample cell or one of its neighbours
	out := make([]h3.Cell, 0, 7*len(pts))
	for _, p := range pts {
		c, err := h3.LatLngToCell(p, res)
		if err != nil {
			return nil, fmt.Errorf("h3 cell for %v: %w", p, err)
		}
		ring, err := h3.GridDisk(c, 1)
		if err != nil {
			return nil, fmt.Errorf("h3 grid disk %s: %w", c, err)
		}
		out = append(out, ring...)
	}
	return out, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

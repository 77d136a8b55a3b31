// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// BBox is stored as (south, north, west, east) in EPSG:4326 degrees.
type BBox struct {
	South, North float64
	West, East   float64
}

// String representation in the stored axis order
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.South, b.North, b.West, b.East)
}

func (b BBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

func BBoxFromBound(bd orb.Bound) BBox {
	return BBox{South: bd.Min.Lat(), North: bd.Max.Lat(), West: bd.Min.Lon(), East: bd.Max.Lon()}
}

// DimensionsKm returns the geodesic width (along the middle parallel) and height of the box.
func (b BBox) DimensionsKm() (widthKm, heightKm float64) {
	midLat := (b.South + b.North) / 2
	widthKm = geo.Distance(orb.Point{b.West, midLat}, orb.Point{b.East, midLat}) / 1000
	heightKm = geo.Distance(orb.Point{b.West, b.South}, orb.Point{b.West, b.North}) / 1000
	return widthKm, heightKm
}

// EntityID identifies a relation in the Overpass namespace.
type EntityID int64

type EntityIDs []EntityID

type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Tags is an open key/value mapping; only the keys this service writes are fixed.
type Tags map[string]string

const (
	TagTourism = "tourism"
	TagName    = "name"
	TagNameEn  = "name:en"
)

type FeatureDetail struct {
	Position Point `json:"position"`
	Tags     Tags  `json:"tags"`
}

// PlaceInfo is what the place lookup service knows about one relation.
type PlaceInfo struct {
	OsmID     EntityID
	Name      string
	Country   string
	Latitude  float64
	Longitude float64
}

type PlaceRecord struct {
	OsmID    EntityID        `json:"osm_id"`
	Name     string          `json:"name"`
	Country  string          `json:"country"`
	Center   Point           `json:"center"`
	Features []FeatureDetail `json:"features,omitempty"`
}

func PlaceRecordFromInfo(info PlaceInfo) PlaceRecord {
	return PlaceRecord{
		OsmID:   info.OsmID,
		Name:    info.Name,
		Country: info.Country,
		Center:  Point{Lat: info.Latitude, Lon: info.Longitude},
	}
}

// Match is the strictness of a city lookup.
type Match int

const (
	MatchAny Match = iota
	MatchBest
)

func (m Match) String() string {
	if m == MatchBest {
		return "best"
	}
	return "any"
}

// DateRange is an inclusive pair of calendar dates (UTC midnight), Start <= End.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r DateRange) String() string {
	return r.Start.Format(time.DateOnly) + ".." + r.End.Format(time.DateOnly)
}

type WeatherInfo struct {
	Time               time.Time `json:"time"`
	TemperatureMax     float64   `json:"temperature_max"`
	TemperatureMin     float64   `json:"temperature_min"`
	TemperatureAverage float64   `json:"temperature_average"`
}

// WeatherPeriod is the daily weather of one historical range.
type WeatherPeriod struct {
	Range DateRange     `json:"range"`
	Days  []WeatherInfo `json:"days"`
}

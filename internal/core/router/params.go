package router

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
)

const maxWeatherYears = 50

var validate = validator.New(validator.WithRequiredStructEnabled())

type position struct {
	Lat float64 `validate:"min=-90,max=90"`
	Lon float64 `validate:"min=-180,max=180"`
}

type bboxParams struct {
	South float64 `validate:"min=-90,max=90"`
	North float64 `validate:"min=-90,max=90,gtfield=South"`
	West  float64 `validate:"min=-180,max=180"`
	East  float64 `validate:"min=-180,max=180,gtfield=West"`
}

// invalid turns validator errors into one readable message.
func invalid(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be >= %s", field, fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be <= %s", field, fe.Param()))
		case "gtfield":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", field, strings.ToLower(fe.Param())))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// CityQuery is either a name lookup or a position lookup.
type CityQuery struct {
	Name    string
	Lat     float64
	Lon     float64
	ByName  bool
	Details bool
}

// ParseCityQuery reads name or lat/lon; name wins when both are given.
func ParseCityQuery(v url.Values) (CityQuery, string, error) {
	var warn string
	details, err := parseBool(v.Get("details"))
	if err != nil {
		return CityQuery{}, "", fmt.Errorf("invalid details: %w", err)
	}

	name := strings.TrimSpace(v.Get("name"))
	rawLat, rawLon := strings.TrimSpace(v.Get("lat")), strings.TrimSpace(v.Get("lon"))
	if name != "" {
		if rawLat != "" || rawLon != "" {
			warn = "both name and position supplied; preferring name"
		}
		return CityQuery{Name: name, ByName: true, Details: details}, warn, nil
	}
	if rawLat == "" || rawLon == "" {
		return CityQuery{}, "", errors.New("missing required parameter: name or lat and lon")
	}
	lat, lon, err := parsePosition(rawLat, rawLon)
	if err != nil {
		return CityQuery{}, "", err
	}
	return CityQuery{Lat: lat, Lon: lon, Details: details}, "", nil
}

// ParseBBox reads "south,north,west,east" in degrees.
func ParseBBox(raw string) (model.BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return model.BBox{}, errors.New("expected 4 comma-separated values: south,north,west,east")
	}
	var vals [4]float64
	for i, p := range parts {
		f, err := parseFloat(p)
		if err != nil {
			return model.BBox{}, fmt.Errorf("value %d: %w", i+1, err)
		}
		vals[i] = f
	}
	p := bboxParams{South: vals[0], North: vals[1], West: vals[2], East: vals[3]}
	if err := validate.Struct(p); err != nil {
		return model.BBox{}, invalid(err)
	}
	return model.BBox{South: p.South, North: p.North, West: p.West, East: p.East}, nil
}

// ParsePreferences reads the feature list and the known feature properties.
func ParsePreferences(v url.Values) (model.Preferences, error) {
	fs, err := model.ParseFeatureSet(v.Get("features"))
	if err != nil {
		return model.Preferences{}, fmt.Errorf("invalid features: %w", err)
	}
	prefs := model.Preferences{Features: fs, Properties: map[string]string{}}
	if h := strings.TrimSpace(v.Get(model.PropMinPeakHeight)); h != "" {
		prefs.Properties[model.PropMinPeakHeight] = h
	}
	return prefs, nil
}

type WeatherQuery struct {
	Lat, Lon float64
	Anchor   model.DateRange
	Years    int
}

func ParseWeatherQuery(v url.Values, defaultYears int) (WeatherQuery, error) {
	lat, lon, err := parsePosition(strings.TrimSpace(v.Get("lat")), strings.TrimSpace(v.Get("lon")))
	if err != nil {
		return WeatherQuery{}, err
	}
	start, err := time.Parse(time.DateOnly, strings.TrimSpace(v.Get("start")))
	if err != nil {
		return WeatherQuery{}, fmt.Errorf("invalid start: %w", err)
	}
	end, err := time.Parse(time.DateOnly, strings.TrimSpace(v.Get("end")))
	if err != nil {
		return WeatherQuery{}, fmt.Errorf("invalid end: %w", err)
	}
	if end.Before(start) {
		return WeatherQuery{}, errors.New("end must not be before start")
	}
	years := defaultYears
	if raw := strings.TrimSpace(v.Get("years")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return WeatherQuery{}, fmt.Errorf("invalid years: %w", err)
		}
		years = n
	}
	if err := validate.Var(years, fmt.Sprintf("min=1,max=%d", maxWeatherYears)); err != nil {
		return WeatherQuery{}, fmt.Errorf("years must be in [1,%d]", maxWeatherYears)
	}
	return WeatherQuery{Lat: lat, Lon: lon, Anchor: model.DateRange{Start: start, End: end}, Years: years}, nil
}

func parsePosition(rawLat, rawLon string) (lat, lon float64, err error) {
	if lat, err = parseFloat(rawLat); err != nil {
		return 0, 0, fmt.Errorf("lat: %w", err)
	}
	if lon, err = parseFloat(rawLon); err != nil {
		return 0, 0, fmt.Errorf("lon: %w", err)
	}
	if err := validate.Struct(position{Lat: lat, Lon: lon}); err != nil {
		return 0, 0, invalid(err)
	}
	return lat, lon, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("parse float: %q is not finite", v)
	}
	return f, nil
}

func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse bool: %w", err)
	}
	return b, nil
}

package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/mohammed-shakir/geo-resolver/internal/core/executor"
	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
)

const dailyParams = "temperature_2m_max,temperature_2m_min"

type Client struct {
	logger *slog.Logger
	exec   executor.Interface
}

// New wraps exec, which must point at the archive endpoint.
func New(logger *slog.Logger, exec executor.Interface) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{logger: logger, exec: exec}
}

// HistoricalQuery formats the archive request for one date range.
func HistoricalQuery(lat, lon float64, r model.DateRange) string {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("start_date", r.Start.Format(time.DateOnly))
	q.Set("end_date", r.End.Format(time.DateOnly))
	q.Set("daily", dailyParams)
	return q.Encode()
}

// LoadHistorical returns daily temperatures for r. Upstream failures and
// malformed responses give an empty result.
func (c *Client) LoadHistorical(ctx context.Context, lat, lon float64, r model.DateRange) []model.WeatherInfo {
	body, err := c.exec.Get(ctx, HistoricalQuery(lat, lon, r))
	if err != nil {
		c.logger.WarnContext(ctx, "historical weather request failed", "range", r.String(), "err", err)
		return nil
	}
	out, err := ParseDaily(body)
	if err != nil {
		c.logger.ErrorContext(ctx, "historical weather response is malformed", "range", r.String(), "err", err)
		return nil
	}
	return out
}

type dailyResponse struct {
	Daily struct {
		Time           []string   `json:"time"`
		TemperatureMax []*float64 `json:"temperature_2m_max"`
		TemperatureMin []*float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

// ParseDaily decodes the daily block; the three series must have equal length.
// Days with a missing temperature are skipped.
func ParseDaily(body []byte) ([]model.WeatherInfo, error) {
	var resp dailyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode daily: %w", err)
	}
	d := resp.Daily
	n := len(d.Time)
	if len(d.TemperatureMax) != n || len(d.TemperatureMin) != n {
		return nil, fmt.Errorf("daily series length mismatch: time=%d max=%d min=%d",
			n, len(d.TemperatureMax), len(d.TemperatureMin))
	}
	out := make([]model.WeatherInfo, 0, n)
	for i := range n {
		day, err := time.Parse(time.DateOnly, d.Time[i])
		if err != nil {
			return nil, fmt.Errorf("daily time %q: %w", d.Time[i], err)
		}
		if d.TemperatureMax[i] == nil || d.TemperatureMin[i] == nil {
			continue
		}
		hi, lo := *d.TemperatureMax[i], *d.TemperatureMin[i]
		out = append(out, model.WeatherInfo{
			Time:               day,
			TemperatureMax:     hi,
			TemperatureMin:     lo,
			TemperatureAverage: (hi + lo) / 2,
		})
	}
	return out, nil
}

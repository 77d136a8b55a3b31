package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
	"github.com/mohammed-shakir/geo-resolver/internal/regionevents"
)

type advancer interface {
	Advance(ctx context.Context, bb model.BBox, prefs model.Preferences) []model.PlaceRecord
}

type publisher interface {
	PublishAll(evs []regionevents.Event) (dropped int)
}

type scanStats struct {
	Tiles   int
	Regions int
	Dropped int
}

// scan advances one session over every tile and writes each new region as a JSON line.
func scan(
	ctx context.Context,
	logger *slog.Logger,
	s advancer,
	sessionID string,
	tiles []model.BBox,
	prefs model.Preferences,
	out io.Writer,
	pub publisher,
) (scanStats, error) {
	var st scanStats
	enc := json.NewEncoder(out)
	for i, tile := range tiles {
		if err := ctx.Err(); err != nil {
			return st, fmt.Errorf("scan interrupted at tile %d/%d: %w", i, len(tiles), err)
		}
		recs := s.Advance(ctx, tile, prefs)
		st.Tiles++
		for _, r := range recs {
			if err := enc.Encode(r); err != nil {
				return st, fmt.Errorf("write region %d: %w", r.OsmID, err)
			}
		}
		st.Regions += len(recs)
		if pub != nil && len(recs) > 0 {
			st.Dropped += pub.PublishAll(regionevents.EventsFor(sessionID, tile, prefs, recs, time.Now()))
		}
		logger.Debug("tile scanned", "tile", i+1, "of", len(tiles), "bbox", tile.String(), "found", len(recs))
	}
	return st, nil
}

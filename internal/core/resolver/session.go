package resolver

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
	"github.com/mohammed-shakir/geo-resolver/internal/core/observability"
	"github.com/mohammed-shakir/geo-resolver/internal/core/overpass"
)

const opRegions = "regions"

var ErrSessionClosed = errors.New("region session closed")

// Session discovers regions box by box and never returns a region twice.
// It is not safe for concurrent use.
type Session struct {
	e      *Engine
	logger *slog.Logger
	state  ProcessedState
	closed bool
}

// StartFindRegions starts a session with in-memory state.
func (e *Engine) StartFindRegions() *Session {
	return e.StartFindRegionsWith(NewMemoryState(), "")
}

// StartFindRegionsWith starts a session over state; id only labels logs.
func (e *Engine) StartFindRegionsWith(state ProcessedState, id string) *Session {
	l := e.logger
	if id != "" {
		l = l.With("session_id", id)
	}
	return &Session{e: e, logger: l, state: state}
}

// ValidBox reports whether both box dimensions are strictly below the maximum.
func (e *Engine) ValidBox(bb model.BBox) bool {
	w, h := bb.DimensionsKm()
	return w < e.maxBoxKm && h < e.maxBoxKm
}

// Advance returns regions matching prefs in bb that earlier calls did not
// return. Any failure yields an empty result and leaves the state as it was.
func (s *Session) Advance(ctx context.Context, bb model.BBox, prefs model.Preferences) []model.PlaceRecord {
	if s.closed {
		s.logger.ErrorContext(ctx, "advance on closed session")
		return nil
	}
	if !s.e.ValidBox(bb) {
		w, h := bb.DimensionsKm()
		s.logger.ErrorContext(ctx, "bounding box too large",
			"bbox", bb.String(), "width_km", w, "height_km", h, "max_km", s.e.maxBoxKm)
		observability.IncResolve(opRegions, observability.OutcomeInvalid)
		return nil
	}

	query := overpass.BuildRegionQuery(bb, prefs)
	if query == "" {
		return nil
	}

	candidates := s.e.queryRelationIDs(ctx, query)
	if len(candidates) == 0 {
		observability.IncResolve(opRegions, observability.OutcomeEmpty)
		return nil
	}

	processed, err := s.state.Processed(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "cannot read processed ids", "err", err)
		observability.IncResolve(opRegions, observability.OutcomeUpstream)
		return nil
	}
	todo := Difference(candidates, processed)
	if skipped := len(SortedSet(candidates)) - len(todo); skipped > 0 {
		s.logger.DebugContext(ctx, "skipped processed relation ids", "skipped", skipped)
		observability.AddRegionIDs("skipped", skipped)
	}
	if len(todo) == 0 {
		observability.IncResolve(opRegions, observability.OutcomeEmpty)
		return nil
	}

	infos, err := s.e.places.LookupRegions(ctx, todo)
	if len(infos) == 0 {
		// ids stay unprocessed so a later box can retry them
		s.logger.ErrorContext(ctx, "cannot find regions in nominatim", "checked", len(todo), "err", err)
		observability.AddRegionIDs("retry", len(todo))
		observability.IncResolve(opRegions, observability.OutcomeEmpty)
		return nil
	}
	if err != nil {
		s.logger.WarnContext(ctx, "partial region lookup", "err", err)
	}

	out := make([]model.PlaceRecord, 0, len(infos))
	resolved := make(model.EntityIDs, 0, len(infos))
	for _, info := range infos {
		if _, ok := slices.BinarySearch(todo, info.OsmID); !ok {
			continue
		}
		if slices.Contains(resolved, info.OsmID) {
			continue
		}
		resolved = append(resolved, info.OsmID)
		out = append(out, model.PlaceRecordFromInfo(info))
	}
	if len(out) == 0 {
		s.logger.ErrorContext(ctx, "nominatim returned only unrequested relations", "checked", len(todo))
		observability.IncResolve(opRegions, observability.OutcomeEmpty)
		return nil
	}

	if err := s.state.Merge(ctx, resolved); err != nil {
		s.logger.ErrorContext(ctx, "cannot record processed ids", "ids", len(resolved), "err", err)
	}
	s.logger.InfoContext(ctx, "found regions in nominatim", "found", len(out), "checked", len(todo))
	observability.AddRegionIDs("new", len(resolved))
	observability.AddRegionIDs("retry", len(todo)-len(resolved))
	observability.IncResolve(opRegions, observability.OutcomeFound)
	return out
}

// Close discards the session state. Further Advance calls return nothing.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	return s.state.Close(ctx)
}

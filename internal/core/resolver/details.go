package resolver

import (
	"context"
	"log/slog"

	"github.com/mohammed-shakir/geo-resolver/internal/core/executor"
	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
	"github.com/mohammed-shakir/geo-resolver/internal/core/overpass"
)

// TourismDetails loads tourism points inside a relation's area.
type TourismDetails struct {
	logger *slog.Logger
	exec   executor.Interface
}

func NewTourismDetails(logger *slog.Logger, exec executor.Interface) *TourismDetails {
	return &TourismDetails{logger: logger, exec: exec}
}

func (d *TourismDetails) LoadDetails(ctx context.Context, id model.EntityID) []model.FeatureDetail {
	body, err := d.exec.Post(ctx, overpass.TourismNodes(id))
	if err != nil {
		d.logger.WarnContext(ctx, "tourism details query failed", "osm_id", int64(id), "err", err)
		return nil
	}
	return tourismFeatures(overpass.ExtractNodes(body))
}

// tourismFeatures keeps the category and the name tags of each node.
func tourismFeatures(nodes []overpass.Node) []model.FeatureDetail {
	out := make([]model.FeatureDetail, 0, len(nodes))
	for _, n := range nodes {
		tags := model.Tags{model.TagTourism: n.Tags[model.TagTourism]}
		if v := n.Tags[model.TagName]; v != "" {
			tags[model.TagName] = v
		}
		if v := n.Tags[model.TagNameEn]; v != "" {
			tags[model.TagNameEn] = v
		}
		out = append(out, model.FeatureDetail{
			Position: model.Point{Lat: n.Lat, Lon: n.Lon},
			Tags:     tags,
		})
	}
	return out
}

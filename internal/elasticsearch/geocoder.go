package elasticsearch

import (
	"context"

	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/config"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/orchestrator"
)

const (
	geocodeLimit      = 5
	currentLocationID  = "current-location"
)

// Geocoder resolves names and coordinates against the locations index. The
// current location is the configured default.
type Geocoder struct {
	searcher Searcher
	builder  *QueryBuilder
	index    string
	current  config.LocationConfig
	logger   *zap.Logger
}

var _ orchestrator.Geocoder = (*Geocoder)(nil)

func NewGeocoder(searcher Searcher, index string, current config.LocationConfig, logger *zap.Logger) *Geocoder {
	return &Geocoder{
		searcher: searcher,
		builder:  NewQueryBuilder(),
		index:    index,
		current:  current,
		logger:   logger,
	}
}

func (g *Geocoder) CurrentLocation(ctx context.Context) (*models.LocationResult, error) {
	return &models.LocationResult{
		ID:   currentLocationID,
		Name: g.current.Name,
		Coordinate: &models.Coordinate{
			Latitude:  g.current.Latitude,
			Longitude: g.current.Longitude,
		},
	}, nil
}

func (g *Geocoder) LookUpLocation(ctx context.Context, coordinate models.Coordinate) ([]models.Placemark, error) {
	return g.placemarks(ctx, g.builder.BuildReverseGeocodeQuery(coordinate, geocodeLimit))
}

func (g *Geocoder) LookUpLocationName(ctx context.Context, name string) ([]models.Placemark, error) {
	return g.placemarks(ctx, g.builder.BuildLocationNameQuery(name, geocodeLimit))
}

func (g *Geocoder) placemarks(ctx context.Context, query map[string]any) ([]models.Placemark, error) {
	result, err := g.searcher.Search(ctx, g.index, query)
	if err != nil {
		return nil, err
	}
	out := make([]models.Placemark, 0, len(result.Hits))
	for _, hit := range result.Hits {
		pm, err := decodeLocation(hit)
		if err != nil {
			g.logger.Warn("skipping undecodable location", zap.String("id", hit.ID), zap.Error(err))
			continue
		}
		out = append(out, pm)
	}
	return out, nil
}

package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/config"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/orchestrator"
)

// PlaceSession serves place search, details and autocomplete from the places index.
type PlaceSession struct {
	searcher Searcher
	builder  *QueryBuilder
	cfg      config.ElasticsearchConfig
	logger   *zap.Logger
}

var _ orchestrator.PlaceSearchSession = (*PlaceSession)(nil)

func NewPlaceSession(searcher Searcher, cfg config.ElasticsearchConfig, logger *zap.Logger) *PlaceSession {
	return &PlaceSession{
		searcher: searcher,
		builder:  NewQueryBuilder(),
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *PlaceSession) Query(ctx context.Context, req *orchestrator.PlaceSearchRequest) (*orchestrator.SearchResponse, error) {
	result, err := s.searcher.Search(ctx, s.cfg.PlacesIndex, s.builder.BuildPlaceQuery(req))
	if err != nil {
		return nil, err
	}
	return &orchestrator.SearchResponse{
		Places:   s.decodePlaces(result.Hits),
		Total:    result.Total,
		TimedOut: result.TimedOut,
	}, nil
}

func (s *PlaceSession) Details(ctx context.Context, fsqID string) (*models.PlaceDetails, error) {
	source, err := s.searcher.Get(ctx, s.cfg.PlacesIndex, fsqID)
	if err != nil {
		return nil, err
	}
	var doc placeDocument
	if err := json.Unmarshal(source, &doc); err != nil {
		return nil, fmt.Errorf("decoding place %s: %w", fsqID, err)
	}
	details := doc.details(fsqID)
	return &details, nil
}

func (s *PlaceSession) Autocomplete(ctx context.Context, caption string, limit int, scope *models.LocationResult) ([]models.AutocompleteResult, error) {
	result, err := s.searcher.Search(ctx, s.cfg.PlacesIndex, s.builder.BuildAutocompleteQuery(caption, limit, scope))
	if err != nil {
		return nil, err
	}
	places := s.decodePlaces(result.Hits)
	out := make([]models.AutocompleteResult, 0, len(places))
	for i := range places {
		out = append(out, models.AutocompleteResult{
			Text:  places[i].Name,
			Type:  "place",
			Place: &places[i],
		})
	}
	return out, nil
}

func (s *PlaceSession) SearchLocations(ctx context.Context, text string, limit int) ([]models.LocationResult, error) {
	result, err := s.searcher.Search(ctx, s.cfg.LocationsIndex, s.builder.BuildLocationNameQuery(text, limit))
	if err != nil {
		return nil, err
	}
	out := make([]models.LocationResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		pm, err := decodeLocation(hit)
		if err != nil {
			s.logger.Warn("skipping undecodable location", zap.String("id", hit.ID), zap.Error(err))
			continue
		}
		c := pm.Coordinate
		out = append(out, models.LocationResult{ID: hit.ID, Name: pm.Name, Coordinate: &c})
	}
	return out, nil
}

func (s *PlaceSession) decodePlaces(hits []Hit) []models.PlaceResponse {
	places := make([]models.PlaceResponse, 0, len(hits))
	for _, hit := range hits {
		place, err := decodePlace(hit)
		if err != nil {
			s.logger.Warn("skipping undecodable place", zap.String("id", hit.ID), zap.Error(err))
			continue
		}
		places = append(places, place)
	}
	return places
}

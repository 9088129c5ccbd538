package orchestrator

import (
	"context"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
)

// PlaceSearchRequest is the provider-facing form of an intent's parameters.
type PlaceSearchRequest struct {
	Query      string             `json:"query"`
	Near       string             `json:"near,omitempty"`
	Coordinate *models.Coordinate `json:"coordinate,omitempty"`
	Radius     float64            `json:"radius"`
	Categories []string           `json:"categories,omitempty"`
	MinPrice   int                `json:"min_price"`
	MaxPrice   int                `json:"max_price"`
	OpenNow    *bool              `json:"open_now,omitempty"`
	OpenAt     string             `json:"open_at,omitempty"`
	Sort       string             `json:"sort,omitempty"`
	Limit      int                `json:"limit"`
	Section    models.Section     `json:"section,omitempty"`
}

type SearchResponse struct {
	Places   []models.PlaceResponse `json:"places"`
	Total    int64                  `json:"total"`
	TimedOut bool                   `json:"timed_out"`
}

type PlaceSearchSession interface {
	Query(ctx context.Context, req *PlaceSearchRequest) (*SearchResponse, error)
	Details(ctx context.Context, fsqID string) (*models.PlaceDetails, error)
	Autocomplete(ctx context.Context, caption string, limit int, scope *models.LocationResult) ([]models.AutocompleteResult, error)
	SearchLocations(ctx context.Context, text string, limit int) ([]models.LocationResult, error)
}

type PersonalizedSession interface {
	FetchRecommendedVenues(ctx context.Context, req *PlaceSearchRequest) ([]models.PlaceResponse, error)
	FetchRelatedVenues(ctx context.Context, fsqID string) ([]models.PlaceResponse, error)
	FetchTastes(ctx context.Context, page int) (*models.TastesPage, error)
	Identity(ctx context.Context) (string, error)
}

type Geocoder interface {
	CurrentLocation(ctx context.Context) (*models.LocationResult, error)
	LookUpLocation(ctx context.Context, coordinate models.Coordinate) ([]models.Placemark, error)
	LookUpLocationName(ctx context.Context, name string) ([]models.Placemark, error)
}

// CurrentIntent reports whether an intent is still the tail of the conversation.
type CurrentIntent interface {
	IsCurrent(id string) bool
}

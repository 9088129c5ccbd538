package elasticsearch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/apperrors"
	"github.com/shubhsaxena/nearby-assistant/internal/config"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/orchestrator"
)

type fakeSearcher struct {
	results   map[string]*SearchResult
	docs      map[string]json.RawMessage
	err       error
	lastIndex string
	lastQuery map[string]any
}

func (f *fakeSearcher) Search(ctx context.Context, index string, query map[string]any) (*SearchResult, error) {
	f.lastIndex = index
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[index]; ok {
		return r, nil
	}
	return &SearchResult{}, nil
}

func (f *fakeSearcher) Get(ctx context.Context, index, id string) (json.RawMessage, error) {
	if doc, ok := f.docs[id]; ok {
		return doc, nil
	}
	return nil, apperrors.NotFound(id)
}

func testESConfig() config.ElasticsearchConfig {
	return config.DefaultConfig().Elasticsearch
}

func TestDecodeSearchResponse(t *testing.T) {
	body := `{
		"took": 7,
		"timed_out": false,
		"hits": {
			"total": {"value": 2, "relation": "eq"},
			"hits": [
				{"_index": "places", "_id": "p1", "_score": 1.5, "_source": {"fsq_id": "p1", "name": "Blue Bottle"}},
				{"_index": "places", "_id": "p2", "_score": null, "sort": [120.5], "_source": {"name": "Joe"}}
			]
		}
	}`

	result, err := decodeSearchResponse(strings.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 2 || result.TookMs != 7 {
		t.Errorf("unexpected totals: %+v", result)
	}
	if len(result.Hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(result.Hits))
	}

	place, err := decodePlace(result.Hits[1])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if place.FsqID != "p2" {
		t.Errorf("expected id fallback to p2, got %s", place.FsqID)
	}
	if place.Distance != 120.5 {
		t.Errorf("expected distance from sort value, got %f", place.Distance)
	}
}

func TestPlaceSession_Query(t *testing.T) {
	searcher := &fakeSearcher{results: map[string]*SearchResult{
		"places": {
			Total:    2,
			TimedOut: true,
			Hits: []Hit{
				{ID: "p1", Source: json.RawMessage(`{"fsq_id":"p1","name":"Blue Bottle","location":{"lat":40.7,"lon":-74}}`)},
				{ID: "bad", Source: json.RawMessage(`{"name": 7}`)},
			},
		},
	}}
	s := NewPlaceSession(searcher, testESConfig(), zap.NewNop())

	resp, err := s.Query(context.Background(), &orchestrator.PlaceSearchRequest{Query: "coffee", Limit: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searcher.lastIndex != "places" {
		t.Errorf("expected places index, got %s", searcher.lastIndex)
	}
	if len(resp.Places) != 1 || resp.Places[0].Latitude != 40.7 {
		t.Errorf("expected one decoded place, got %+v", resp.Places)
	}
	if !resp.TimedOut || resp.Total != 2 {
		t.Errorf("expected totals carried over, got %+v", resp)
	}
}

func TestPlaceSession_QueryError(t *testing.T) {
	s := NewPlaceSession(&fakeSearcher{err: apperrors.NetworkFailure("down", nil)}, testESConfig(), zap.NewNop())
	if _, err := s.Query(context.Background(), &orchestrator.PlaceSearchRequest{}); !errors.Is(err, apperrors.ErrNetwork) {
		t.Errorf("expected network failure, got %v", err)
	}
}

func TestPlaceSession_Details(t *testing.T) {
	searcher := &fakeSearcher{docs: map[string]json.RawMessage{
		"p1": json.RawMessage(`{"name":"Blue Bottle","rating":8.7,"price":2,"tel":"555","tips":["get the latte"]}`),
	}}
	s := NewPlaceSession(searcher, testESConfig(), zap.NewNop())

	d, err := s.Details(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.FsqID != "p1" || d.Place.Name != "Blue Bottle" || d.Rating != 8.7 || d.Price != 2 {
		t.Errorf("unexpected details: %+v", d)
	}

	if _, err := s.Details(context.Background(), "missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestPlaceSession_Autocomplete(t *testing.T) {
	searcher := &fakeSearcher{results: map[string]*SearchResult{
		"places": {Hits: []Hit{
			{ID: "p1", Source: json.RawMessage(`{"name":"Blue Bottle"}`)},
			{ID: "p2", Source: json.RawMessage(`{"name":"Blue Ribbon"}`)},
		}},
	}}
	s := NewPlaceSession(searcher, testESConfig(), zap.NewNop())

	got, err := s.Autocomplete(context.Background(), "blue", 5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(got))
	}
	if got[1].Text != "Blue Ribbon" || got[1].Place == nil || got[1].Place.FsqID != "p2" {
		t.Errorf("unexpected suggestion: %+v", got[1])
	}
}

func TestGeocoder(t *testing.T) {
	searcher := &fakeSearcher{results: map[string]*SearchResult{
		"locations": {Hits: []Hit{
			{ID: "l1", Source: json.RawMessage(`{"name":"Downtown","locality":"Austin","location":{"lat":30.26,"lon":-97.74}}`)},
		}},
	}}
	current := config.LocationConfig{Name: "New York", Latitude: 40.7128, Longitude: -74.006}
	g := NewGeocoder(searcher, "locations", current, zap.NewNop())

	loc, err := g.CurrentLocation(context.Background())
	if err != nil || loc.Name != "New York" || loc.Coordinate.Latitude != 40.7128 {
		t.Errorf("unexpected current location: %+v %v", loc, err)
	}

	pms, err := g.LookUpLocationName(context.Background(), "downtown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pms) != 1 || pms[0].Locality != "Austin" || pms[0].Coordinate.Latitude != 30.26 {
		t.Errorf("unexpected placemarks: %+v", pms)
	}

	if _, err := g.LookUpLocation(context.Background(), models.Coordinate{Latitude: 30, Longitude: -97}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, ok := searcher.lastQuery["sort"]; !ok {
		t.Error("expected reverse geocode to sort by distance")
	}
}

func TestPlaceSession_SearchLocations(t *testing.T) {
	searcher := &fakeSearcher{results: map[string]*SearchResult{
		"locations": {Hits: []Hit{
			{ID: "l1", Source: json.RawMessage(`{"name":"Downtown","location":{"lat":1,"lon":2}}`)},
		}},
	}}
	s := NewPlaceSession(searcher, testESConfig(), zap.NewNop())

	got, err := s.SearchLocations(context.Background(), "down", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "l1" || got[0].Coordinate.Longitude != 2 {
		t.Errorf("unexpected locations: %+v", got)
	}
}

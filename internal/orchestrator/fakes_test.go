package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
)

type fakePlaces struct {
	mu           sync.Mutex
	places       []models.PlaceResponse
	queryErr     error
	details      map[string]models.PlaceDetails
	detailsErr   map[string]error
	detailsCalls atomic.Int32
	suggestions  []models.AutocompleteResult
	lastRequest  *PlaceSearchRequest
	lastLimit    int
	block        chan struct{}
}

func (f *fakePlaces) Query(ctx context.Context, req *PlaceSearchRequest) (*SearchResponse, error) {
	f.mu.Lock()
	f.lastRequest = req
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &SearchResponse{Places: f.places, Total: int64(len(f.places))}, nil
}

func (f *fakePlaces) Details(ctx context.Context, fsqID string) (*models.PlaceDetails, error) {
	f.detailsCalls.Add(1)
	if err, ok := f.detailsErr[fsqID]; ok {
		return nil, err
	}
	d, ok := f.details[fsqID]
	if !ok {
		d = models.PlaceDetails{FsqID: fsqID, Place: models.PlaceResponse{FsqID: fsqID}}
	}
	return &d, nil
}

func (f *fakePlaces) Autocomplete(ctx context.Context, caption string, limit int, scope *models.LocationResult) ([]models.AutocompleteResult, error) {
	f.lastLimit = limit
	return f.suggestions, nil
}

func (f *fakePlaces) SearchLocations(ctx context.Context, text string, limit int) ([]models.LocationResult, error) {
	return []models.LocationResult{{Name: text}}, nil
}

type fakePersonal struct {
	recs       []models.PlaceResponse
	recsErr    error
	related    []models.PlaceResponse
	tastes     []string
	lastRecReq *PlaceSearchRequest
}

func (f *fakePersonal) FetchRecommendedVenues(ctx context.Context, req *PlaceSearchRequest) ([]models.PlaceResponse, error) {
	f.lastRecReq = req
	if f.recsErr != nil {
		return nil, f.recsErr
	}
	return f.recs, nil
}

func (f *fakePersonal) FetchRelatedVenues(ctx context.Context, fsqID string) ([]models.PlaceResponse, error) {
	return f.related, nil
}

func (f *fakePersonal) FetchTastes(ctx context.Context, page int) (*models.TastesPage, error) {
	return &models.TastesPage{Tastes: f.tastes, Page: page}, nil
}

func (f *fakePersonal) Identity(ctx context.Context) (string, error) {
	return "user-1", nil
}

type trackedEvent struct {
	name  string
	props map[string]any
	err   error
}

type recordingSink struct {
	mu     sync.Mutex
	events []trackedEvent
}

func (s *recordingSink) Track(_ context.Context, name string, props map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, trackedEvent{name: name, props: props})
}

func (s *recordingSink) TrackError(_ context.Context, err error, props map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	phase, _ := props["phase"].(string)
	s.events = append(s.events, trackedEvent{name: "error:" + phase, props: props, err: err})
}

func (s *recordingSink) TrackCacheRefresh(context.Context, string, int, time.Duration, error) {}

func (s *recordingSink) has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.name == name {
			return true
		}
	}
	return false
}

type staticCurrent struct{ id string }

func (c staticCurrent) IsCurrent(id string) bool { return c.id == id }

type fakeGeocoder struct {
	current    *models.LocationResult
	placemarks []models.Placemark
	err        error
	calls      atomic.Int32
}

func (g *fakeGeocoder) CurrentLocation(ctx context.Context) (*models.LocationResult, error) {
	return g.current, nil
}

func (g *fakeGeocoder) LookUpLocation(ctx context.Context, c models.Coordinate) ([]models.Placemark, error) {
	return g.placemarks, g.err
}

func (g *fakeGeocoder) LookUpLocationName(ctx context.Context, name string) ([]models.Placemark, error) {
	g.calls.Add(1)
	return g.placemarks, g.err
}

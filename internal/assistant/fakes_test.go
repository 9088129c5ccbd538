package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/cache"
	"github.com/shubhsaxena/nearby-assistant/internal/config"
	"github.com/shubhsaxena/nearby-assistant/internal/intent"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/orchestrator"
	"github.com/shubhsaxena/nearby-assistant/internal/query"
	"github.com/shubhsaxena/nearby-assistant/internal/taxonomy"
)

type stubDictionary map[string]bool

func (d stubDictionary) HasDefinition(term string) bool {
	for _, w := range strings.Fields(strings.ToLower(term)) {
		if d[w] {
			return true
		}
	}
	return false
}

type fakePlaces struct {
	mu          sync.Mutex
	places      []models.PlaceResponse
	queryErr    error
	suggestions []models.AutocompleteResult
	locations   []models.LocationResult
	lastRequest *orchestrator.PlaceSearchRequest
	queries     int
}

func (f *fakePlaces) Query(ctx context.Context, req *orchestrator.PlaceSearchRequest) (*orchestrator.SearchResponse, error) {
	f.mu.Lock()
	f.lastRequest = req
	f.queries++
	f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &orchestrator.SearchResponse{Places: f.places, Total: int64(len(f.places))}, nil
}

func (f *fakePlaces) Details(ctx context.Context, fsqID string) (*models.PlaceDetails, error) {
	for _, p := range f.places {
		if p.FsqID == fsqID {
			return &models.PlaceDetails{FsqID: fsqID, Place: p, Rating: 8.5}, nil
		}
	}
	return nil, errors.New("no such place")
}

func (f *fakePlaces) Autocomplete(ctx context.Context, caption string, limit int, scope *models.LocationResult) ([]models.AutocompleteResult, error) {
	return f.suggestions, nil
}

func (f *fakePlaces) SearchLocations(ctx context.Context, text string, limit int) ([]models.LocationResult, error) {
	return f.locations, nil
}

func (f *fakePlaces) request() *orchestrator.PlaceSearchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRequest
}

type fakePersonal struct {
	recsCalls atomic.Int32
	recsErr   error
	related []models.PlaceResponse
	tastes  []string
}

func (f *fakePersonal) FetchRecommendedVenues(ctx context.Context, req *orchestrator.PlaceSearchRequest) ([]models.PlaceResponse, error) {
	f.recsCalls.Add(1)
	if f.recsErr != nil {
		return nil, f.recsErr
	}
	return []models.PlaceResponse{}, nil
}

func (f *fakePersonal) FetchRelatedVenues(ctx context.Context, fsqID string) ([]models.PlaceResponse, error) {
	return f.related, nil
}

func (f *fakePersonal) FetchTastes(ctx context.Context, page int) (*models.TastesPage, error) {
	return &models.TastesPage{Tastes: f.tastes, Page: page, HasMore: page == 0}, nil
}

func (f *fakePersonal) Identity(ctx context.Context) (string, error) {
	return "user-1", nil
}

type fakeGeocoder struct {
	placemarks map[string][]models.Placemark
	lookups    int
}

func (g *fakeGeocoder) CurrentLocation(ctx context.Context) (*models.LocationResult, error) {
	return &models.LocationResult{ID: "current", Name: "Current Location", Coordinate: &models.Coordinate{Latitude: 40.7, Longitude: -74.0}}, nil
}

func (g *fakeGeocoder) LookUpLocation(ctx context.Context, coordinate models.Coordinate) ([]models.Placemark, error) {
	return nil, nil
}

func (g *fakeGeocoder) LookUpLocationName(ctx context.Context, name string) ([]models.Placemark, error) {
	g.lookups++
	return g.placemarks[name], nil
}

type fakeCache struct {
	tastes    []models.CategoryResult
	locations []models.LocationResult
	refreshed int
	refreshFn func()
}

func (c *fakeCache) IndustryResults() []models.CategoryResult        { return nil }
func (c *fakeCache) TasteResults() []models.CategoryResult           { return c.tastes }
func (c *fakeCache) PlaceResults() []models.CategoryResult           { return nil }
func (c *fakeCache) LocationResults() []models.LocationResult        { return c.locations }
func (c *fakeCache) RecommendationData() []models.RecommendationData { return nil }

func (c *fakeCache) TasteTitles() []string {
	titles := make([]string, 0, len(c.tastes))
	for _, t := range c.tastes {
		titles = append(titles, t.ParentCategory)
	}
	return titles
}

func (c *fakeCache) PlaceNames() []string { return nil }

func (c *fakeCache) RefreshCache(ctx context.Context) error {
	c.refreshed++
	if c.refreshFn != nil {
		c.refreshFn()
	}
	return nil
}

func (c *fakeCache) AppendCachedLocation(ctx context.Context, loc models.LocationResult) error {
	for _, existing := range c.locations {
		if cache.LocationIdentity(existing) == cache.LocationIdentity(loc) {
			return nil
		}
	}
	c.locations = append(c.locations, loc)
	return nil
}

func testTable() *taxonomy.Table {
	return taxonomy.Build(map[string]taxonomy.RawEntry{
		"13032": {FullLabel: []string{"Dining and Drinking", "Cafe", "Coffee Shop"}},
		"13003": {FullLabel: []string{"Dining and Drinking", "Bar"}},
		"10027": {FullLabel: []string{"Arts and Entertainment", "Museum"}},
	})
}

type harness struct {
	host     *Host
	places   *fakePlaces
	personal *fakePersonal
	geocoder *fakeGeocoder
	cache    *fakeCache
	state    *intent.State
	events   chan Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	table := testTable()

	domain, err := query.DefaultDomainModel()
	if err != nil {
		t.Fatalf("default domain model: %v", err)
	}
	lexical, err := query.DefaultLexicalModel()
	if err != nil {
		t.Fatalf("default lexical model: %v", err)
	}
	tagger, err := query.NewTagger(domain.FromTaxonomy(table), lexical)
	if err != nil {
		t.Fatalf("new tagger: %v", err)
	}
	analyzer := query.NewAnalyzer(
		tagger,
		query.NewFilterExtractor(table, true),
		query.NewIntentClassifier(table, stubDictionary{"coffee": true}),
		query.Defaults{Radius: query.DefaultRadius, Limit: query.DefaultLimit},
	)

	h := &harness{
		places: &fakePlaces{
			places: []models.PlaceResponse{
				{FsqID: "p1", Name: "Blue Bottle"},
				{FsqID: "p2", Name: "Stumptown"},
				{FsqID: "p3", Name: "Joe Coffee"},
			},
			suggestions: []models.AutocompleteResult{
				{Text: "coffee shop", Type: "search"},
				{Text: "Coffee Project", Type: "place", Place: &models.PlaceResponse{FsqID: "a1", Name: "Coffee Project"}},
			},
		},
		personal: &fakePersonal{
			related: []models.PlaceResponse{{FsqID: "r1", Name: "Partners"}},
			tastes:  []string{"Espresso", "Pastries"},
		},
		geocoder: &fakeGeocoder{placemarks: map[string][]models.Placemark{
			"downtown": {{Name: "Downtown", Coordinate: models.Coordinate{Latitude: 40.71, Longitude: -74.01}}},
		}},
		cache:  &fakeCache{},
		state:  intent.NewState(),
		events: make(chan Event, 64),
	}

	cfg := config.SearchConfig{DefaultRadius: query.DefaultRadius, DefaultLimit: query.DefaultLimit, AutocompleteLimit: 5, PrefetchCount: 2}
	orch, err := orchestrator.New(h.places, h.personal, nil, nil, h.state, cfg, 10, zap.NewNop())
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	h.host, err = NewHost(Components{
		Analyzer:     analyzer,
		Orchestrator: orch,
		Resolver:     orchestrator.NewLocationResolver(h.geocoder, table, 0, zap.NewNop()),
		State:        h.state,
		Cache:        h.cache,
		Table:        table,
	}, h.events, zap.NewNop())
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	return h
}

func (h *harness) drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-h.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

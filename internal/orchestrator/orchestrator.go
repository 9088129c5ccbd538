package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shubhsaxena/nearby-assistant/internal/analytics"
	"github.com/shubhsaxena/nearby-assistant/internal/apperrors"
	"github.com/shubhsaxena/nearby-assistant/internal/config"
	"github.com/shubhsaxena/nearby-assistant/internal/intent"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/observability"
	"github.com/shubhsaxena/nearby-assistant/internal/query"
)

const (
	defaultAutocompleteLimit = 5
	defaultPrefetchCount     = 8
	defaultDetailsCacheSize  = 1000
	prefetchConcurrency      = 4
)

// ErrDuplicateSuppressed is returned when the same component of the same
// search is already running.
var ErrDuplicateSuppressed = errors.New("duplicate search component suppressed")

// Batch is the outcome of one search round.
type Batch struct {
	Places          []models.PlaceResponse
	Recommendations []models.PlaceResponse
	Results         []models.ChatResult
	// Stale is set when the intent stopped being current while the round ran.
	// The intent is left untouched in that case.
	Stale bool
}

type Orchestrator struct {
	places     PlaceSearchSession
	personal   PersonalizedSession
	analytics  analytics.Sink
	slowSearch *observability.SlowSearchDetector
	current    CurrentIntent
	builder    *RequestBuilder
	details    *lru.Cache[string, models.PlaceDetails]
	cfg        config.SearchConfig
	logger     *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New wires the orchestrator. personal may be nil for anonymous sessions and
// current may be nil when every intent is treated as current.
func New(
	places PlaceSearchSession,
	personal PersonalizedSession,
	sink analytics.Sink,
	slowSearch *observability.SlowSearchDetector,
	current CurrentIntent,
	cfg config.SearchConfig,
	detailsCacheSize int,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if places == nil {
		return nil, apperrors.ValidationFailure("place search session is required")
	}
	if sink == nil {
		sink = analytics.Nop{}
	}
	if detailsCacheSize <= 0 {
		detailsCacheSize = defaultDetailsCacheSize
	}
	details, err := lru.New[string, models.PlaceDetails](detailsCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating details cache: %w", err)
	}
	return &Orchestrator{
		places:     places,
		personal:   personal,
		analytics:  sink,
		slowSearch: slowSearch,
		current:    current,
		builder:    NewRequestBuilder(cfg.DefaultRadius, cfg.DefaultLimit),
		details:    details,
		cfg:        cfg,
		logger:     logger,
		inFlight:   make(map[string]struct{}),
	}, nil
}

// BuildIntent creates a fresh intent with empty fulfillment. It has no side effects.
func (o *Orchestrator) BuildIntent(caption string, kind models.IntentKind, filters map[string]string, params *query.Parameters, destination *models.LocationResult) *intent.Intent {
	return intent.New(caption, kind, filters, params, destination)
}

// PerformSearch runs the recommended and place branches concurrently. A failed
// branch contributes an empty list; only a failure of both is an error.
func (o *Orchestrator) PerformSearch(ctx context.Context, in *intent.Intent) (*Batch, error) {
	release, err := o.acquire(ctx, in, "search")
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := observability.StartSpan(ctx, "orchestrator.perform_search",
		attribute.String("intent_id", in.ID),
	)
	defer span.End()

	recReq := o.builder.RecommendedRequest(in)
	placeReq := o.builder.PlaceRequest(in)

	var (
		recs, places     []models.PlaceResponse
		recErr, placeErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		recs, recErr = o.fetchRecommended(ctx, recReq)
		return nil
	})
	g.Go(func() error {
		places, placeErr = o.queryPlaces(ctx, placeReq)
		return nil
	})
	_ = g.Wait()

	if recErr != nil && placeErr != nil {
		return nil, apperrors.NetworkFailure("all search branches failed", errors.Join(recErr, placeErr))
	}

	batch := &Batch{Places: places, Recommendations: recs}
	if !o.isCurrent(in) {
		o.logger.Debug("discarding search results for superseded intent", zap.String("intent_id", in.ID))
		batch.Stale = true
		return batch, nil
	}
	in.Fulfillment.Places = places
	in.Fulfillment.Recommendations = recs
	return batch, nil
}

func (o *Orchestrator) fetchRecommended(ctx context.Context, req *PlaceSearchRequest) ([]models.PlaceResponse, error) {
	if o.personal == nil {
		return []models.PlaceResponse{}, nil
	}
	start := time.Now()
	recs, err := o.personal.FetchRecommendedVenues(ctx, req)
	if err != nil {
		observability.SearchBranchDuration.WithLabelValues("recommended", "error").Observe(time.Since(start).Seconds())
		o.analytics.TrackError(ctx, err, map[string]any{"phase": "recommendedSearch.fetchError"})
		return []models.PlaceResponse{}, err
	}
	observability.SearchBranchDuration.WithLabelValues("recommended", "success").Observe(time.Since(start).Seconds())
	o.analytics.Track(ctx, "recommendedSearch.parsed", map[string]any{"count": len(recs)})
	if recs == nil {
		recs = []models.PlaceResponse{}
	}
	return recs, nil
}

func (o *Orchestrator) queryPlaces(ctx context.Context, req *PlaceSearchRequest) ([]models.PlaceResponse, error) {
	start := time.Now()
	resp, err := o.places.Query(ctx, req)
	duration := time.Since(start)
	if err != nil {
		observability.SearchBranchDuration.WithLabelValues("place", "error").Observe(duration.Seconds())
		o.analytics.TrackError(ctx, err, map[string]any{"phase": "placeSearch"})
		return []models.PlaceResponse{}, err
	}
	observability.SearchBranchDuration.WithLabelValues("place", "success").Observe(duration.Seconds())
	o.slowSearch.Intercept(ctx, req.Query, "place", duration, len(resp.Places), resp.TimedOut)
	o.analytics.Track(ctx, "placeSearch", map[string]any{"count": len(resp.Places)})

	places := resp.Places
	if places == nil {
		places = []models.PlaceResponse{}
	}
	return places, nil
}

// PerformAutocomplete fetches suggestions scoped to the intent's destination.
func (o *Orchestrator) PerformAutocomplete(ctx context.Context, caption string, in *intent.Intent) (*Batch, error) {
	release, err := o.acquire(ctx, in, "autocomplete")
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := observability.StartSpan(ctx, "orchestrator.perform_autocomplete")
	defer span.End()

	limit := o.cfg.AutocompleteLimit
	if limit <= 0 {
		limit = defaultAutocompleteLimit
	}

	start := time.Now()
	suggestions, err := o.places.Autocomplete(ctx, caption, limit, in.Destination)
	if err != nil {
		observability.SearchBranchDuration.WithLabelValues("autocomplete", "error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("autocomplete %q: %w", caption, err)
	}
	observability.SearchBranchDuration.WithLabelValues("autocomplete", "success").Observe(time.Since(start).Seconds())
	o.slowSearch.Intercept(ctx, caption, "autocomplete", time.Since(start), len(suggestions), false)

	places, results := AutocompleteResults(caption, suggestions)
	batch := &Batch{Places: places, Results: results}
	if !o.isCurrent(in) {
		batch.Stale = true
		return batch, nil
	}
	in.Fulfillment.Places = places
	return batch, nil
}

// PrefetchInitialDetailsIfNeeded fetches details for the first count places
// that do not have them yet. Failures for individual places are logged and
// skipped; an error is returned only when nothing could be fetched.
func (o *Orchestrator) PrefetchInitialDetailsIfNeeded(ctx context.Context, in *intent.Intent, count int) ([]models.PlaceDetails, error) {
	places := in.Fulfillment.Places
	if len(places) == 0 || count <= 0 {
		return []models.PlaceDetails{}, nil
	}
	if count > len(places) {
		count = len(places)
	}
	places = places[:count]

	release, err := o.acquire(ctx, in, "details")
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := observability.StartSpan(ctx, "orchestrator.prefetch_details",
		attribute.Int("count", count),
	)
	defer span.End()

	fetched := make([]*models.PlaceDetails, len(places))
	errs := make([]error, len(places))

	g := new(errgroup.Group)
	g.SetLimit(prefetchConcurrency)
	for i, place := range places {
		if d, ok := in.DetailsFor(place.FsqID); ok {
			copied := *d
			fetched[i] = &copied
			continue
		}
		g.Go(func() error {
			d, err := o.FetchDetails(ctx, place.FsqID)
			if err != nil {
				o.logger.Warn("details prefetch failed", zap.String("fsq_id", place.FsqID), zap.Error(err))
				errs[i] = err
				return nil
			}
			fetched[i] = d
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.PlaceDetails, 0, len(places))
	for _, d := range fetched {
		if d != nil {
			out = append(out, *d)
		}
	}
	if len(out) == 0 {
		if err := errors.Join(errs...); err != nil {
			return nil, apperrors.NetworkFailure("details prefetch", err)
		}
	}
	return out, nil
}

// FetchDetails returns place details, served from the LRU when possible.
func (o *Orchestrator) FetchDetails(ctx context.Context, fsqID string) (*models.PlaceDetails, error) {
	if fsqID == "" {
		return nil, apperrors.ValidationFailure("place id is required")
	}
	if d, ok := o.details.Get(fsqID); ok {
		observability.CacheHits.WithLabelValues("details").Inc()
		return &d, nil
	}
	observability.CacheMisses.WithLabelValues("details").Inc()

	d, err := o.places.Details(ctx, fsqID)
	if err != nil {
		return nil, fmt.Errorf("fetching details for %s: %w", fsqID, err)
	}
	o.details.Add(fsqID, *d)
	return d, nil
}

// SelectPlace marks one of the intent's places as selected and loads its details.
func (o *Orchestrator) SelectPlace(ctx context.Context, in *intent.Intent, fsqID string) (*models.PlaceDetails, error) {
	place, ok := findPlace(in, fsqID)
	if !ok {
		return nil, apperrors.NotFound("place " + fsqID)
	}
	details, err := o.FetchDetails(ctx, fsqID)
	if err != nil {
		return nil, err
	}
	if o.isCurrent(in) {
		in.Fulfillment.SelectedPlace = &place
		d := *details
		in.Fulfillment.SelectedDetails = &d
	}
	return details, nil
}

// FetchRelated loads venues related to fsqID and formats them.
func (o *Orchestrator) FetchRelated(ctx context.Context, in *intent.Intent, fsqID string) ([]models.ChatResult, error) {
	if o.personal == nil {
		return []models.ChatResult{}, nil
	}
	release, err := o.acquire(ctx, in, "related")
	if err != nil {
		return nil, err
	}
	defer release()

	related, err := o.personal.FetchRelatedVenues(ctx, fsqID)
	if err != nil {
		o.analytics.TrackError(ctx, err, map[string]any{"phase": "relatedSearch"})
		return nil, fmt.Errorf("fetching related venues for %s: %w", fsqID, err)
	}

	scratch := *in
	scratch.Fulfillment.Related = related
	if o.isCurrent(in) {
		in.Fulfillment.Related = related
	}
	return BuildRelatedResults(&scratch), nil
}

// FetchTastes loads one page of the user's tastes as category results.
func (o *Orchestrator) FetchTastes(ctx context.Context, page int) ([]models.CategoryResult, bool, error) {
	if o.personal == nil {
		return []models.CategoryResult{}, false, nil
	}
	resp, err := o.personal.FetchTastes(ctx, page)
	if err != nil {
		return nil, false, fmt.Errorf("fetching tastes page %d: %w", page, err)
	}
	return TasteResults(resp.Tastes), resp.HasMore, nil
}

func (o *Orchestrator) SearchLocations(ctx context.Context, text string) ([]models.LocationResult, error) {
	limit := o.cfg.AutocompleteLimit
	if limit <= 0 {
		limit = defaultAutocompleteLimit
	}
	locations, err := o.places.SearchLocations(ctx, text, limit)
	if err != nil {
		return nil, fmt.Errorf("searching locations %q: %w", text, err)
	}
	return locations, nil
}

// PrefetchCount is the configured number of places to prefetch details for.
func (o *Orchestrator) PrefetchCount() int {
	if o.cfg.PrefetchCount < 0 {
		return defaultPrefetchCount
	}
	return o.cfg.PrefetchCount
}

func (o *Orchestrator) isCurrent(in *intent.Intent) bool {
	return o.current == nil || o.current.IsCurrent(in.ID)
}

func searchKey(in *intent.Intent) string {
	location := ""
	if in.Destination != nil {
		location = in.Destination.Name
	}
	return in.Caption + "|" + location
}

func (o *Orchestrator) acquire(ctx context.Context, in *intent.Intent, component string) (func(), error) {
	key := searchKey(in) + "::" + component

	o.mu.Lock()
	if _, busy := o.inFlight[key]; busy {
		o.mu.Unlock()
		observability.DuplicateSuppressed.Inc()
		o.analytics.Track(ctx, "placeQueryModel.duplicateSuppressed", map[string]any{"key": key})
		return nil, ErrDuplicateSuppressed
	}
	o.inFlight[key] = struct{}{}
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.inFlight, key)
		o.mu.Unlock()
	}, nil
}

func findPlace(in *intent.Intent, fsqID string) (models.PlaceResponse, bool) {
	f := in.Fulfillment
	for _, list := range [][]models.PlaceResponse{f.Places, f.Recommendations, f.Related} {
		for _, p := range list {
			if p.FsqID == fsqID {
				return p, true
			}
		}
	}
	return models.PlaceResponse{}, false
}

package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/observability"
	"github.com/shubhsaxena/nearby-assistant/internal/taxonomy"
)

// Phrases that refer to the user's own position: "near me", and "nearby"
// which splits into "by".
var currentLocationPhrases = map[string]struct{}{
	"me":   {},
	"by":   {},
	"here": {},
}

// LocationResolver turns a "near X" phrase into a destination. Only the most
// recent lookup may change the destination; older ones are cancelled.
type LocationResolver struct {
	geocoder Geocoder
	table    *taxonomy.Table
	answers  *gocache.Cache
	logger   *zap.Logger

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

func NewLocationResolver(geocoder Geocoder, table *taxonomy.Table, ttl time.Duration, logger *zap.Logger) *LocationResolver {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &LocationResolver{
		geocoder: geocoder,
		table:    table,
		answers:  gocache.New(ttl, 2*ttl),
		logger:   logger,
	}
}

// Resolve reports the destination for near. It returns false when the
// destination should stay as it is: empty phrase, lookup failure, no usable
// placemark, or a newer lookup superseding this one.
func (r *LocationResolver) Resolve(ctx context.Context, rawQuery, near string, known []models.LocationResult) (*models.LocationResult, bool) {
	near = strings.ToLower(strings.TrimSpace(near))
	if near == "" {
		return nil, false
	}

	if _, ok := currentLocationPhrases[near]; ok {
		loc, err := r.geocoder.CurrentLocation(ctx)
		if err != nil || loc == nil {
			r.logger.Warn("current location unavailable", zap.Error(err))
			return nil, false
		}
		return loc, true
	}

	for _, loc := range known {
		if strings.EqualFold(strings.TrimSpace(loc.Name), near) {
			l := loc
			return &l, true
		}
	}

	if cached, ok := r.answers.Get(near); ok {
		observability.CacheHits.WithLabelValues("geocode").Inc()
		loc := cached.(models.LocationResult)
		return &loc, true
	}
	observability.CacheMisses.WithLabelValues("geocode").Inc()

	ctx, seq := r.begin(ctx)
	placemarks, err := r.geocoder.LookUpLocationName(ctx, near)
	if !r.finish(seq) {
		r.logger.Debug("dropping superseded geocode answer", zap.String("near", near))
		return nil, false
	}
	if err != nil {
		r.logger.Warn("geocode lookup failed", zap.String("near", near), zap.Error(err))
		return nil, false
	}

	candidates := FilterPlacemarks(rawQuery, placemarks, r.table)
	if len(candidates) == 0 {
		return nil, false
	}
	pm := candidates[0]
	coord := pm.Coordinate
	loc := models.LocationResult{
		ID:         uuid.NewString(),
		Name:       pm.Name,
		Coordinate: &coord,
	}
	r.answers.Set(near, loc, gocache.DefaultExpiration)
	return &loc, true
}

// Cancel aborts any lookup in flight.
func (r *LocationResolver) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.seq++
}

func (r *LocationResolver) begin(ctx context.Context) (context.Context, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	r.seq++
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	return ctx, r.seq
}

// finish reports whether seq is still the latest lookup and releases its context.
func (r *LocationResolver) finish(seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq != r.seq {
		return false
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return true
}

// FilterPlacemarks keeps placemarks whose name appears in the raw query and is
// not itself a category or parent category name.
func FilterPlacemarks(rawQuery string, placemarks []models.Placemark, table *taxonomy.Table) []models.Placemark {
	lowered := strings.ToLower(rawQuery)
	out := make([]models.Placemark, 0, len(placemarks))
	for _, pm := range placemarks {
		name := strings.TrimSpace(pm.Name)
		if name == "" || !strings.Contains(lowered, strings.ToLower(name)) {
			continue
		}
		if table.HasParent(name) || table.HasCategory(name) {
			continue
		}
		out = append(out, pm)
	}
	return out
}

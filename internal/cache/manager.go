package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/shubhsaxena/nearby-assistant/internal/analytics"
	"github.com/shubhsaxena/nearby-assistant/internal/apperrors"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/observability"
)

const (
	TierDefault         = "default"
	TierCategories      = "categories"
	TierTastes          = "tastes"
	TierPlaces          = "places"
	TierLocations       = "locations"
	TierRecommendations = "recommendations"

	totalTasks = 6
)

// Manager holds the in-memory cache tiers and keeps them in step with a Store.
// Tiers are replaced wholesale; readers always get copies.
type Manager struct {
	store     Store
	publisher ChangePublisher
	sink      analytics.Sink
	source    string
	logger    *zap.Logger

	mu              sync.RWMutex
	defaults        []models.CategoryResult
	records         map[models.CacheGroup][]models.CachedRecord
	industry        []models.CategoryResult
	tastes          []models.CategoryResult
	places          []models.CategoryResult
	locations       []models.LocationResult
	recommendations []models.RecommendationData
	all             []models.CategoryResult
	refreshing      bool
	inflight        int
	completed       int

	// writeMu serializes appends so the duplicate check and the store write
	// see the same tier.
	writeMu    sync.Mutex
	generation atomic.Uint64
	flight     singleflight.Group
}

// NewManager returns a manager with empty tiers. publisher may be nil.
func NewManager(store Store, publisher ChangePublisher, sink analytics.Sink, logger *zap.Logger) *Manager {
	if sink == nil {
		sink = analytics.Nop{}
	}
	return &Manager{
		store:     store,
		publisher: publisher,
		sink:      sink,
		source:    uuid.NewString(),
		logger:    logger,
		records:   make(map[models.CacheGroup][]models.CachedRecord),
	}
}

// Source identifies this instance on published change events.
func (m *Manager) Source() string {
	return m.source
}

// RefreshCache reloads every tier in order. Concurrent callers join the
// refresh already running.
func (m *Manager) RefreshCache(ctx context.Context) error {
	_, err, shared := m.flight.Do("all", func() (any, error) {
		return nil, m.refreshAll(ctx)
	})
	if shared {
		m.logger.Debug("joined in-flight cache refresh")
	}
	return err
}

func (m *Manager) refreshAll(ctx context.Context) error {
	ctx, span := observability.StartSpan(ctx, "cache.refresh")
	defer span.End()

	start := time.Now()

	m.mu.Lock()
	m.refreshing = true
	m.completed = 0
	m.mu.Unlock()
	observability.CacheRefreshProgress.Set(0)

	defer func() {
		m.mu.Lock()
		m.refreshing = false
		m.mu.Unlock()
	}()

	tasks := []func(context.Context) error{
		m.RefreshDefaultResults,
		m.RefreshCachedCategories,
		m.RefreshCachedTastes,
		m.RefreshCachedPlaces,
		m.RefreshCachedLocations,
		m.RefreshCachedRecommendationData,
	}

	var errs []error
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := task(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	m.recomputeAll()
	count := len(m.all)
	m.mu.Unlock()

	err := errors.Join(errs...)
	span.SetAttributes(attribute.Int("cache.results", count))
	m.sink.TrackCacheRefresh(ctx, "all", count, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("refreshing cache: %w", err)
	}

	m.logger.Info("cache refreshed",
		zap.Int("results", count),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (m *Manager) RefreshDefaultResults(ctx context.Context) error {
	return m.refreshTier(ctx, TierDefault, func(ctx context.Context, gen uint64) (int, error) {
		results := defaultResults()
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.isGeneration(gen) {
			return 0, nil
		}
		m.defaults = results
		m.recomputeAll()
		return len(results), nil
	})
}

func (m *Manager) RefreshCachedCategories(ctx context.Context) error {
	return m.refreshGroup(ctx, TierCategories, models.GroupCategory)
}

func (m *Manager) RefreshCachedTastes(ctx context.Context) error {
	return m.refreshGroup(ctx, TierTastes, models.GroupTaste)
}

func (m *Manager) RefreshCachedPlaces(ctx context.Context) error {
	return m.refreshGroup(ctx, TierPlaces, models.GroupPlace)
}

func (m *Manager) RefreshCachedLocations(ctx context.Context) error {
	return m.refreshGroup(ctx, TierLocations, models.GroupLocation)
}

func (m *Manager) RefreshCachedRecommendationData(ctx context.Context) error {
	return m.refreshTier(ctx, TierRecommendations, func(ctx context.Context, gen uint64) (int, error) {
		rows, err := m.store.FetchRecommendationData(ctx)
		if err != nil {
			return 0, apperrors.NetworkFailure("fetching recommendation data", err)
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.isGeneration(gen) {
			return 0, nil
		}
		m.recommendations = dedupeRecommendations(rows)
		return len(m.recommendations), nil
	})
}

// RefreshGroup refreshes the tier backing a cache group.
func (m *Manager) RefreshGroup(ctx context.Context, group models.CacheGroup) error {
	switch group {
	case models.GroupCategory:
		return m.RefreshCachedCategories(ctx)
	case models.GroupTaste:
		return m.RefreshCachedTastes(ctx)
	case models.GroupPlace:
		return m.RefreshCachedPlaces(ctx)
	case models.GroupLocation:
		return m.RefreshCachedLocations(ctx)
	default:
		return apperrors.ValidationFailure(fmt.Sprintf("unknown cache group %q", group))
	}
}

func (m *Manager) refreshGroup(ctx context.Context, tier string, group models.CacheGroup) error {
	return m.refreshTier(ctx, tier, func(ctx context.Context, gen uint64) (int, error) {
		records, err := m.store.FetchGroup(ctx, group)
		if err != nil {
			return 0, apperrors.NetworkFailure("fetching cached "+tier, err)
		}
		records = dedupeRecords(records)

		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.isGeneration(gen) {
			return 0, nil
		}
		m.setGroup(group, records)
		return len(records), nil
	})
}

// refreshTier runs load once per tier at a time. A load that started before a
// ClearCache sees a stale generation and leaves the tier untouched. The tier
// counts as in flight until load returns.
func (m *Manager) refreshTier(ctx context.Context, tier string, load func(context.Context, uint64) (int, error)) error {
	_, err, _ := m.flight.Do("tier:"+tier, func() (any, error) {
		m.mu.Lock()
		m.inflight++
		m.mu.Unlock()
		defer func() {
			m.mu.Lock()
			m.inflight--
			m.mu.Unlock()
		}()

		start := time.Now()
		gen := m.generation.Load()

		count, err := load(ctx, gen)

		status := "ok"
		if err != nil {
			status = "error"
			m.sink.TrackError(ctx, err, map[string]any{"phase": "cacheRefresh." + tier})
			m.logger.Warn("cache tier refresh failed", zap.String("tier", tier), zap.Error(err))
		}
		observability.CacheRefreshDuration.WithLabelValues(tier, status).Observe(time.Since(start).Seconds())

		m.completeTask()
		return count, err
	})
	return err
}

func (m *Manager) completeTask() {
	m.mu.Lock()
	if m.completed < totalTasks {
		m.completed++
	}
	progress := float64(m.completed) / totalTasks
	m.mu.Unlock()
	observability.CacheRefreshProgress.Set(progress)
}

func (m *Manager) isGeneration(gen uint64) bool {
	return m.generation.Load() == gen
}

// setGroup replaces one tier. Callers hold mu.
func (m *Manager) setGroup(group models.CacheGroup, records []models.CachedRecord) {
	m.records[group] = records
	switch group {
	case models.GroupCategory:
		m.industry = categoryResults(records)
	case models.GroupTaste:
		m.tastes = categoryResults(records)
	case models.GroupPlace:
		m.places = placeResults(records)
	case models.GroupLocation:
		m.locations = locationResults(records)
	}
	m.recomputeAll()
}

// recomputeAll rebuilds the merged category list. Callers hold mu.
func (m *Manager) recomputeAll() {
	all := make([]models.CategoryResult, 0, len(m.industry)+len(m.tastes)+len(m.defaults)+len(m.places))
	all = append(all, m.industry...)
	all = append(all, m.tastes...)
	all = append(all, m.defaults...)
	all = append(all, m.places...)
	sortByParent(all)
	m.all = all
}

func (m *Manager) AppendCachedCategory(ctx context.Context, record models.CachedRecord) error {
	record.Group = models.GroupCategory
	return m.appendRecord(ctx, record)
}

func (m *Manager) AppendCachedTaste(ctx context.Context, record models.CachedRecord) error {
	record.Group = models.GroupTaste
	return m.appendRecord(ctx, record)
}

func (m *Manager) AppendCachedPlace(ctx context.Context, record models.CachedRecord) error {
	record.Group = models.GroupPlace
	return m.appendRecord(ctx, record)
}

// AppendCachedLocation stores a location under its quantized identity.
func (m *Manager) AppendCachedLocation(ctx context.Context, loc models.LocationResult) error {
	return m.appendRecord(ctx, models.CachedRecord{
		Group:    models.GroupLocation,
		Identity: LocationIdentity(loc),
		Title:    loc.Name,
		List:     string(models.GroupLocation),
		Section:  string(models.SectionTopPicks),
	})
}

func (m *Manager) appendRecord(ctx context.Context, record models.CachedRecord) error {
	record.Identity = strings.TrimSpace(record.Identity)
	if record.Identity == "" {
		return apperrors.ValidationFailure("cached record identity is required")
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.containsIdentity(record.Group, record.Identity) {
		return nil
	}

	gen := m.generation.Load()
	stored, err := m.store.StoreRecord(ctx, record)
	if err != nil {
		m.sink.TrackError(ctx, err, map[string]any{"phase": "cacheAppend", "group": string(record.Group)})
		return fmt.Errorf("storing cached %s: %w", strings.ToLower(string(record.Group)), err)
	}

	m.mu.Lock()
	if m.isGeneration(gen) {
		records := append(append([]models.CachedRecord(nil), m.records[record.Group]...), stored)
		m.setGroup(record.Group, records)
	}
	m.mu.Unlock()

	m.publish(ctx, models.ChangeEvent{
		Type:     ChangeCreate,
		Group:    string(record.Group),
		Identity: stored.Identity,
		RecordID: stored.RecordID,
	})
	return nil
}

func (m *Manager) AppendRecommendationData(ctx context.Context, data models.RecommendationData) error {
	if strings.TrimSpace(data.Identity) == "" {
		return apperrors.ValidationFailure("recommendation identity is required")
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	for _, existing := range m.recommendations {
		if RecommendationKey(existing) == RecommendationKey(data) {
			m.mu.RUnlock()
			return nil
		}
	}
	m.mu.RUnlock()

	gen := m.generation.Load()
	if err := m.store.StoreRecommendationData(ctx, data); err != nil {
		return fmt.Errorf("storing recommendation data: %w", err)
	}

	m.mu.Lock()
	if m.isGeneration(gen) {
		m.recommendations = append(append([]models.RecommendationData(nil), m.recommendations...), data)
	}
	m.mu.Unlock()
	return nil
}

// RemoveCached deletes one record from the store and its tier.
func (m *Manager) RemoveCached(ctx context.Context, group models.CacheGroup, identity string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.store.DeleteRecord(ctx, group, identity); err != nil {
		return fmt.Errorf("deleting cached %s: %w", strings.ToLower(string(group)), err)
	}

	m.mu.Lock()
	current := m.records[group]
	kept := make([]models.CachedRecord, 0, len(current))
	for _, r := range current {
		if r.Identity != identity {
			kept = append(kept, r)
		}
	}
	m.setGroup(group, kept)
	m.mu.Unlock()

	m.publish(ctx, models.ChangeEvent{
		Type:     ChangeDelete,
		Group:    string(group),
		Identity: identity,
		RecordID: RecordID(group, identity),
	})
	return nil
}

// ClearCache empties every tier and the store. Refreshes already in flight
// complete without repopulating the tiers.
func (m *Manager) ClearCache(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.generation.Add(1)

	m.mu.Lock()
	m.defaults = nil
	m.records = make(map[models.CacheGroup][]models.CachedRecord)
	m.industry = nil
	m.tastes = nil
	m.places = nil
	m.locations = nil
	m.recommendations = nil
	m.all = nil
	m.mu.Unlock()

	if err := m.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clearing cache store: %w", err)
	}

	m.publish(ctx, models.ChangeEvent{Type: ChangeClear})
	m.logger.Info("cache cleared")
	return nil
}

func (m *Manager) publish(ctx context.Context, event models.ChangeEvent) {
	if m.publisher == nil {
		return
	}
	event.Source = m.source
	event.Timestamp = time.Now().UTC()
	if err := m.publisher.PublishChange(ctx, event); err != nil {
		m.logger.Warn("failed to publish cache change",
			zap.String("type", event.Type),
			zap.String("group", event.Group),
			zap.Error(err),
		)
	}
}

func (m *Manager) containsIdentity(group models.CacheGroup, identity string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records[group] {
		if r.Identity == identity {
			return true
		}
	}
	return false
}

// IsRefreshing reports a full refresh or any single-tier refresh in flight.
func (m *Manager) IsRefreshing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshing || m.inflight > 0
}

func (m *Manager) CompletedTasks() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.completed
}

func (m *Manager) Progress() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return float64(m.completed) / totalTasks
}

func (m *Manager) DefaultResults() []models.CategoryResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.CategoryResult(nil), m.defaults...)
}

func (m *Manager) IndustryResults() []models.CategoryResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.CategoryResult(nil), m.industry...)
}

func (m *Manager) TasteResults() []models.CategoryResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.CategoryResult(nil), m.tastes...)
}

func (m *Manager) PlaceResults() []models.CategoryResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.CategoryResult(nil), m.places...)
}

func (m *Manager) AllCachedResults() []models.CategoryResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.CategoryResult(nil), m.all...)
}

func (m *Manager) LocationResults() []models.LocationResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.LocationResult(nil), m.locations...)
}

func (m *Manager) RecommendationData() []models.RecommendationData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.RecommendationData(nil), m.recommendations...)
}

// TasteTitles and PlaceNames feed the query tagger's domain model.
func (m *Manager) TasteTitles() []string {
	return titles(m.TasteResults())
}

func (m *Manager) PlaceNames() []string {
	return titles(m.PlaceResults())
}

func (m *Manager) CachedCategoriesContains(title string) bool {
	return containsTitle(m.IndustryResults(), title)
}

func (m *Manager) CachedTastesContains(title string) bool {
	return containsTitle(m.TasteResults(), title)
}

func (m *Manager) CachedPlacesContains(title string) bool {
	return containsTitle(m.PlaceResults(), title)
}

func (m *Manager) CachedLocationContains(name string) bool {
	for _, l := range m.LocationResults() {
		if l.Name == name {
			return true
		}
	}
	return false
}

func titles(results []models.CategoryResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.ParentCategory)
	}
	return out
}

func containsTitle(results []models.CategoryResult, title string) bool {
	for _, r := range results {
		if r.ParentCategory == title {
			return true
		}
	}
	return false
}

func dedupeRecords(records []models.CachedRecord) []models.CachedRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]models.CachedRecord, 0, len(records))
	for _, r := range records {
		key := RecommendationKey(r)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

func dedupeRecommendations(rows []models.RecommendationData) []models.RecommendationData {
	seen := make(map[string]struct{}, len(rows))
	out := make([]models.RecommendationData, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.Identity]; ok {
			continue
		}
		seen[r.Identity] = struct{}{}
		out = append(out, r)
	}
	return out
}

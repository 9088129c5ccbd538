package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
)

type memStore struct {
	mu              sync.Mutex
	records         map[models.CacheGroup]map[string]models.CachedRecord
	recommendations map[string]models.RecommendationData
	fetchCalls      map[models.CacheGroup]int
	failGroup       models.CacheGroup
	failStore       bool

	// blockGroup makes FetchGroup snapshot its records, signal entered and
	// wait for release before returning them.
	blockGroup models.CacheGroup
	entered    chan struct{}
	release    chan struct{}
	enterOnce  sync.Once
}

func newMemStore() *memStore {
	return &memStore{
		records:         make(map[models.CacheGroup]map[string]models.CachedRecord),
		recommendations: make(map[string]models.RecommendationData),
		fetchCalls:      make(map[models.CacheGroup]int),
	}
}

func (s *memStore) seed(records ...models.CachedRecord) {
	for _, r := range records {
		if r.RecordID == "" {
			r.RecordID = RecordID(r.Group, r.Identity)
		}
		if s.records[r.Group] == nil {
			s.records[r.Group] = make(map[string]models.CachedRecord)
		}
		s.records[r.Group][r.Identity] = r
	}
}

func (s *memStore) FetchGroup(_ context.Context, group models.CacheGroup) ([]models.CachedRecord, error) {
	s.mu.Lock()
	s.fetchCalls[group]++
	if s.failGroup == group {
		s.mu.Unlock()
		return nil, errors.New("store unavailable")
	}
	out := make([]models.CachedRecord, 0, len(s.records[group]))
	for _, r := range s.records[group] {
		out = append(out, r)
	}
	block := s.blockGroup == group
	s.mu.Unlock()

	if block {
		s.enterOnce.Do(func() { close(s.entered) })
		<-s.release
	}
	return out, nil
}

func (s *memStore) StoreRecord(_ context.Context, record models.CachedRecord) (models.CachedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStore {
		return record, errors.New("write failed")
	}
	if record.RecordID == "" {
		record.RecordID = RecordID(record.Group, record.Identity)
	}
	if s.records[record.Group] == nil {
		s.records[record.Group] = make(map[string]models.CachedRecord)
	}
	s.records[record.Group][record.Identity] = record
	return record, nil
}

func (s *memStore) DeleteRecord(_ context.Context, group models.CacheGroup, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records[group], identity)
	return nil
}

func (s *memStore) DeleteAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[models.CacheGroup]map[string]models.CachedRecord)
	s.recommendations = make(map[string]models.RecommendationData)
	return nil
}

func (s *memStore) FetchRecommendationData(context.Context) ([]models.RecommendationData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RecommendationData, 0, len(s.recommendations))
	for _, r := range s.recommendations {
		out = append(out, r)
	}
	return out, nil
}

func (s *memStore) StoreRecommendationData(_ context.Context, data models.RecommendationData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recommendations[RecommendationKey(data)] = data
	return nil
}

func (s *memStore) HealthCheck(context.Context) error { return nil }
func (s *memStore) Close() error                      { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (p *recordingPublisher) PublishChange(_ context.Context, event models.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Events() []models.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.ChangeEvent(nil), p.events...)
}

type refreshRecord struct {
	tier  string
	count int
	err   error
}

type recordingSink struct {
	mu        sync.Mutex
	refreshes []refreshRecord
	errors    []map[string]any
}

func (s *recordingSink) Track(context.Context, string, map[string]any) {}

func (s *recordingSink) TrackError(_ context.Context, _ error, props map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, props)
}

func (s *recordingSink) TrackCacheRefresh(_ context.Context, tier string, count int, _ time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes = append(s.refreshes, refreshRecord{tier: tier, count: count, err: err})
}

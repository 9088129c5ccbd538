// Package indexing keeps this instance's cache tiers in step with writes made
// elsewhere. Change events are coalesced per group and applied as tier
// refreshes on a timer.
package indexing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/analytics"
	"github.com/shubhsaxena/nearby-assistant/internal/cache"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/observability"
)

// Refresher is the part of cache.Manager the processor drives.
type Refresher interface {
	RefreshCache(ctx context.Context) error
	RefreshGroup(ctx context.Context, group models.CacheGroup) error
	Source() string
}

type SyncProcessor struct {
	refresher Refresher
	sink      analytics.Sink
	logger    *zap.Logger
	afterSync func(context.Context)

	mu      sync.Mutex
	pending map[models.CacheGroup]struct{}
	full    bool
	ticker  *time.Ticker
	done    chan struct{}
}

type Option func(*SyncProcessor)

// WithAfterSync runs fn after a flush changed at least one tier, including
// a flush where some groups failed. Consumers derived from the cache (the
// tagger vocabulary, the result index) rebuild there.
func WithAfterSync(fn func(context.Context)) Option {
	return func(sp *SyncProcessor) {
		sp.afterSync = fn
	}
}

func NewSyncProcessor(refresher Refresher, sink analytics.Sink, flushInterval time.Duration, logger *zap.Logger, opts ...Option) *SyncProcessor {
	if sink == nil {
		sink = analytics.Nop{}
	}
	sp := &SyncProcessor{
		refresher: refresher,
		sink:      sink,
		logger:    logger,
		pending:   make(map[models.CacheGroup]struct{}),
		ticker:    time.NewTicker(flushInterval),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(sp)
	}

	go sp.flushLoop()

	return sp
}

// HandleEvent queues the tier an event touches. Events published by this
// instance are ignored since the manager already applied them.
func (sp *SyncProcessor) HandleEvent(ctx context.Context, event *models.ChangeEvent) error {
	if event.Source != "" && event.Source == sp.refresher.Source() {
		observability.CacheSyncEventsTotal.WithLabelValues(event.Type, "skipped").Inc()
		return nil
	}

	group, full, err := transformEvent(event)
	if err != nil {
		return fmt.Errorf("transforming event: %w", err)
	}

	sp.mu.Lock()
	if full {
		sp.full = true
	} else {
		sp.pending[group] = struct{}{}
	}
	sp.mu.Unlock()

	sp.sink.Track(ctx, "cacheSync.event", map[string]any{
		"type":   event.Type,
		"group":  event.Group,
		"source": event.Source,
	})
	return nil
}

// transformEvent maps an event to the group to refresh, or to a full refresh
// when the remote cache was cleared.
func transformEvent(event *models.ChangeEvent) (models.CacheGroup, bool, error) {
	switch event.Type {
	case cache.ChangeClear:
		return "", true, nil
	case cache.ChangeCreate, "UPDATE", cache.ChangeDelete:
		group, ok := models.ParseCacheGroup(event.Group)
		if !ok {
			return "", false, fmt.Errorf("unknown cache group: %q", event.Group)
		}
		return group, false, nil
	default:
		return "", false, fmt.Errorf("unknown event type: %s", event.Type)
	}
}

func (sp *SyncProcessor) flushLoop() {
	for {
		select {
		case <-sp.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := sp.flush(ctx); err != nil {
				sp.logger.Error("periodic cache sync failed", zap.Error(err))
			}
			cancel()
		case <-sp.done:
			return
		}
	}
}

func (sp *SyncProcessor) flush(ctx context.Context) error {
	sp.mu.Lock()
	full := sp.full
	groups := make([]models.CacheGroup, 0, len(sp.pending))
	for g := range sp.pending {
		groups = append(groups, g)
	}
	sp.full = false
	sp.pending = make(map[models.CacheGroup]struct{})
	sp.mu.Unlock()

	if !full && len(groups) == 0 {
		return nil
	}

	start := time.Now()

	// A full refresh covers every group queued alongside it. Tiers that loaded
	// are applied even when the refresh reports an error.
	if full {
		err := sp.refresher.RefreshCache(ctx)
		sp.synced(ctx)
		if err != nil {
			sp.mu.Lock()
			sp.full = true
			sp.mu.Unlock()
			observability.CacheSyncEventsTotal.WithLabelValues("refresh", "error").Inc()
			return fmt.Errorf("full cache sync: %w", err)
		}
		observability.CacheSyncEventsTotal.WithLabelValues("refresh", "success").Inc()
		sp.logger.Info("full cache sync completed", zap.Duration("duration", time.Since(start)))
		return nil
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })

	var failed []models.CacheGroup
	for _, g := range groups {
		if err := sp.refresher.RefreshGroup(ctx, g); err != nil {
			sp.logger.Warn("cache group sync failed", zap.String("group", string(g)), zap.Error(err))
			failed = append(failed, g)
		}
	}

	if len(failed) < len(groups) {
		sp.synced(ctx)
	}

	if len(failed) > 0 {
		// Put failed groups back for the next flush
		sp.mu.Lock()
		for _, g := range failed {
			sp.pending[g] = struct{}{}
		}
		sp.mu.Unlock()

		observability.CacheSyncEventsTotal.WithLabelValues("refresh", "error").Add(float64(len(failed)))
		return fmt.Errorf("cache sync: %d of %d groups failed", len(failed), len(groups))
	}

	observability.CacheSyncEventsTotal.WithLabelValues("refresh", "success").Add(float64(len(groups)))
	sp.logger.Info("cache sync completed",
		zap.Int("groups", len(groups)),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}

func (sp *SyncProcessor) synced(ctx context.Context) {
	if sp.afterSync != nil {
		sp.afterSync(ctx)
	}
}

func (sp *SyncProcessor) Stop() error {
	sp.ticker.Stop()
	close(sp.done)

	// Final flush
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return sp.flush(ctx)
}

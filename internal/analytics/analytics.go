// Package analytics records product analytics events. Delivery is fire-and-forget:
// a failing sink never fails the operation being tracked.
package analytics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/observability"
)

type Sink interface {
	Track(ctx context.Context, name string, props map[string]any)
	TrackError(ctx context.Context, err error, props map[string]any)
	TrackCacheRefresh(ctx context.Context, tier string, count int, duration time.Duration, err error)
}

// Writer persists analytics events. The ClickHouse client implements it.
type Writer interface {
	WriteEvent(ctx context.Context, event *models.AnalyticsEvent) error
}

type Nop struct{}

func (Nop) Track(context.Context, string, map[string]any)                       {}
func (Nop) TrackError(context.Context, error, map[string]any)                   {}
func (Nop) TrackCacheRefresh(context.Context, string, int, time.Duration, error) {}

// Recorder logs every event and hands it to an optional Writer.
type Recorder struct {
	writer Writer
	logger *zap.Logger
}

func NewRecorder(writer Writer, logger *zap.Logger) *Recorder {
	return &Recorder{writer: writer, logger: logger}
}

func (r *Recorder) Track(ctx context.Context, name string, props map[string]any) {
	r.logger.Debug("analytics event", zap.String("name", name), zap.Any("props", props))
	r.write(ctx, &models.AnalyticsEvent{
		EventType:   "track",
		Name:        name,
		ExtraFields: props,
	})
}

func (r *Recorder) TrackError(ctx context.Context, err error, props map[string]any) {
	phase, _ := props["phase"].(string)
	r.logger.Warn("analytics error", zap.String("phase", phase), zap.Error(err))

	event := &models.AnalyticsEvent{
		EventType:   "error",
		Name:        "error",
		Phase:       phase,
		ExtraFields: props,
	}
	if err != nil {
		event.Message = err.Error()
	}
	r.write(ctx, event)
}

func (r *Recorder) TrackCacheRefresh(ctx context.Context, tier string, count int, duration time.Duration, err error) {
	event := &models.AnalyticsEvent{
		EventType:  "cache_refresh",
		Name:       "cacheRefresh",
		Phase:      tier,
		DurationMs: float64(duration.Milliseconds()),
		TotalHits:  int64(count),
	}
	if err != nil {
		event.Message = err.Error()
		r.logger.Warn("cache refresh failed", zap.String("tier", tier), zap.Error(err))
	}
	r.write(ctx, event)
}

func (r *Recorder) write(ctx context.Context, event *models.AnalyticsEvent) {
	if r.writer == nil {
		return
	}
	event.Timestamp = time.Now()
	event.TraceID = observability.TraceIDFromContext(ctx)
	if err := r.writer.WriteEvent(ctx, event); err != nil {
		r.logger.Warn("failed to write analytics event", zap.String("name", event.Name), zap.Error(err))
	}
}

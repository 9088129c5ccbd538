package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
)

// SlowSearchDetector flags provider searches that exceed the configured latency thresholds.
type SlowSearchDetector struct {
	warningThreshold  time.Duration
	criticalThreshold time.Duration
	logger            *zap.Logger
	analyticsWriter   AnalyticsWriter
}

type AnalyticsWriter interface {
	WriteSearchPerformance(ctx context.Context, event *models.AnalyticsEvent) error
}

func NewSlowSearchDetector(warning, critical time.Duration, logger *zap.Logger, aw AnalyticsWriter) *SlowSearchDetector {
	return &SlowSearchDetector{
		warningThreshold:  warning,
		criticalThreshold: critical,
		logger:            logger,
		analyticsWriter:   aw,
	}
}

func (d *SlowSearchDetector) Intercept(ctx context.Context, query string, searchType string, duration time.Duration, resultCount int, timedOut bool) {
	if d == nil || duration <= d.warningThreshold {
		return
	}

	traceID := TraceIDFromContext(ctx)
	severity := d.classifySeverity(duration)

	SlowSearchCounter.WithLabelValues(severity, searchType).Inc()

	d.logger.Warn("slow search detected",
		zap.String("trace_id", traceID),
		zap.String("query_hash", hashQueryForLog(query)),
		zap.String("search_type", searchType),
		zap.Float64("duration_ms", float64(duration.Milliseconds())),
		zap.Int("result_count", resultCount),
		zap.Bool("timed_out", timedOut),
		zap.String("severity", severity),
	)

	if d.analyticsWriter != nil {
		event := &models.AnalyticsEvent{
			EventType:  "search_performance",
			Name:       "slowSearch",
			Phase:      severity,
			QueryHash:  hashQueryForLog(query),
			QueryType:  searchType,
			DurationMs: float64(duration.Milliseconds()),
			TotalHits:  int64(resultCount),
			TimedOut:   timedOut,
			Timestamp:  time.Now().UTC(),
			TraceID:    traceID,
		}
		go func() {
			writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := d.analyticsWriter.WriteSearchPerformance(writeCtx, event); err != nil {
				d.logger.Error("failed to write search analytics",
					zap.String("trace_id", traceID),
					zap.Error(err),
				)
			}
		}()
	}
}

func (d *SlowSearchDetector) classifySeverity(dur time.Duration) string {
	if dur > d.criticalThreshold {
		return "critical"
	}
	if dur > d.warningThreshold {
		return "warning"
	}
	return "normal"
}

// hashQueryForLog keeps raw captions out of logs and analytics rows.
func hashQueryForLog(q string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(q))
}

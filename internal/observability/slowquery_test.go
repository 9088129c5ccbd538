package observability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shubhsaxena/nearby-assistant/internal/models"

	"go.uber.org/zap"
)

type mockAnalyticsWriter struct {
	mu     sync.Mutex
	events []*models.AnalyticsEvent
}

func (m *mockAnalyticsWriter) WriteSearchPerformance(ctx context.Context, event *models.AnalyticsEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockAnalyticsWriter) getEvents() []*models.AnalyticsEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*models.AnalyticsEvent, len(m.events))
	copy(cp, m.events)
	return cp
}

func TestSlowSearchDetector_ClassifySeverity(t *testing.T) {
	sqd := &SlowSearchDetector{
		warningThreshold:  200 * time.Millisecond,
		criticalThreshold: 500 * time.Millisecond,
	}

	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"below warning", 100 * time.Millisecond, "normal"},
		{"at warning", 200 * time.Millisecond, "normal"},
		{"above warning", 300 * time.Millisecond, "warning"},
		{"at critical", 500 * time.Millisecond, "warning"},
		{"above critical", 600 * time.Millisecond, "critical"},
		{"well above critical", 1 * time.Second, "critical"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sqd.classifySeverity(tt.duration)
			if got != tt.want {
				t.Errorf("classifySeverity(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestSlowSearchDetector_InterceptBelowThreshold(t *testing.T) {
	aw := &mockAnalyticsWriter{}
	sqd := NewSlowSearchDetector(200*time.Millisecond, 500*time.Millisecond, zap.NewNop(), aw)

	sqd.Intercept(context.Background(), "coffee", "places",
		100*time.Millisecond, 50, false)

	// Give async writer time just in case (it shouldn't fire)
	time.Sleep(50 * time.Millisecond)

	events := aw.getEvents()
	if len(events) != 0 {
		t.Errorf("expected no analytics events for fast query, got %d", len(events))
	}
}

func TestSlowSearchDetector_InterceptAtThreshold(t *testing.T) {
	aw := &mockAnalyticsWriter{}
	sqd := NewSlowSearchDetector(200*time.Millisecond, 500*time.Millisecond, zap.NewNop(), aw)

	sqd.Intercept(context.Background(), "tacos", "places",
		200*time.Millisecond, 50, false)

	time.Sleep(50 * time.Millisecond)

	events := aw.getEvents()
	if len(events) != 0 {
		t.Errorf("expected no analytics events at exact threshold, got %d", len(events))
	}
}

func TestSlowSearchDetector_InterceptAboveWarning(t *testing.T) {
	aw := &mockAnalyticsWriter{}
	sqd := NewSlowSearchDetector(200*time.Millisecond, 500*time.Millisecond, zap.NewNop(), aw)

	sqd.Intercept(context.Background(), "cheap coffee", "places",
		300*time.Millisecond, 12, false)

	// Wait for async analytics write
	time.Sleep(100 * time.Millisecond)

	events := aw.getEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 analytics event, got %d", len(events))
	}

	event := events[0]
	if event.EventType != "search_performance" {
		t.Errorf("expected event type 'search_performance', got %q", event.EventType)
	}
	if event.QueryType != "places" {
		t.Errorf("expected search type 'places', got %q", event.QueryType)
	}
	if event.Phase != "warning" {
		t.Errorf("expected phase 'warning', got %q", event.Phase)
	}
	if event.DurationMs != 300 {
		t.Errorf("expected duration 300ms, got %f", event.DurationMs)
	}
	if event.TotalHits != 12 {
		t.Errorf("expected total hits 12, got %d", event.TotalHits)
	}
}

func TestSlowSearchDetector_InterceptAboveCritical(t *testing.T) {
	aw := &mockAnalyticsWriter{}
	sqd := NewSlowSearchDetector(200*time.Millisecond, 500*time.Millisecond, zap.NewNop(), aw)

	sqd.Intercept(context.Background(), "museums", "recommended",
		700*time.Millisecond, 0, true)

	time.Sleep(100 * time.Millisecond)

	events := aw.getEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 analytics event, got %d", len(events))
	}

	event := events[0]
	if event.TimedOut != true {
		t.Error("expected timed_out true")
	}
	if event.Phase != "critical" {
		t.Errorf("expected phase 'critical', got %q", event.Phase)
	}
}

func TestSlowSearchDetector_NilAnalyticsWriter(t *testing.T) {
	// Should not panic with nil analytics writer
	sqd := NewSlowSearchDetector(200*time.Millisecond, 500*time.Millisecond, zap.NewNop(), nil)

	// Should not panic
	sqd.Intercept(context.Background(), "slow query", "places",
		300*time.Millisecond, 100, false)
}

func TestSlowSearchDetector_NilReceiver(t *testing.T) {
	var sqd *SlowSearchDetector
	sqd.Intercept(context.Background(), "anything", "places", time.Hour, 0, true)
}

func TestNewSlowSearchDetector(t *testing.T) {
	aw := &mockAnalyticsWriter{}
	sqd := NewSlowSearchDetector(200*time.Millisecond, 500*time.Millisecond, zap.NewNop(), aw)

	if sqd == nil {
		t.Fatal("expected non-nil SlowSearchDetector")
	}
	if sqd.warningThreshold != 200*time.Millisecond {
		t.Errorf("expected warning threshold 200ms, got %v", sqd.warningThreshold)
	}
	if sqd.criticalThreshold != 500*time.Millisecond {
		t.Errorf("expected critical threshold 500ms, got %v", sqd.criticalThreshold)
	}
}

func TestHashQueryForLog(t *testing.T) {
	h1 := hashQueryForLog("test query")
	h2 := hashQueryForLog("test query")

	if h1 != h2 {
		t.Errorf("hashQueryForLog not deterministic: %q != %q", h1, h2)
	}
	if h1 == "" {
		t.Error("expected non-empty hash")
	}
	// Should be 16 hex chars
	if len(h1) != 16 {
		t.Errorf("expected 16 char hex, got %d chars: %q", len(h1), h1)
	}
}

func TestHashQueryForLog_DistinctCaptions(t *testing.T) {
	if hashQueryForLog("cheap coffee near downtown") == hashQueryForLog("cheap coffee near uptown") {
		t.Error("different captions should produce different hashes")
	}
	if got := hashQueryForLog(""); len(got) != 16 {
		t.Errorf("expected 16 char hex for empty caption, got %q", got)
	}
}

package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/config"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/resilience"
)

type Client struct {
	conn     driver.Conn
	cb       *gobreaker.CircuitBreaker
	retryCfg resilience.RetryConfig
	userID   string
	logger   *zap.Logger
}

func NewClient(cfg config.ClickHouseConfig, searchCfg config.SearchConfig, logger *zap.Logger) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addresses,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": int(cfg.QueryTimeout.Seconds()),
		},
		DialTimeout:  cfg.DialTimeout,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}

	logger.Info("clickhouse client connected", zap.Strings("addresses", cfg.Addresses))

	return &Client{
		conn:     conn,
		cb:       resilience.NewCircuitBreaker("clickhouse-personalized", searchCfg.CircuitBreaker, logger),
		retryCfg: resilience.RetryConfigFrom(searchCfg.Retry),
		userID:   cfg.UserID,
		logger:   logger,
	}, nil
}

// WriteEvent stores a product analytics event.
func (c *Client) WriteEvent(ctx context.Context, event *models.AnalyticsEvent) error {
	query := `
		INSERT INTO analytics_events (
			event_type, name, phase, message, duration_ms, total_hits, timestamp, trace_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	return c.conn.Exec(ctx, query,
		event.EventType,
		event.Name,
		event.Phase,
		event.Message,
		event.DurationMs,
		event.TotalHits,
		event.Timestamp,
		event.TraceID,
	)
}

// WriteSearchPerformance stores slow search events.
func (c *Client) WriteSearchPerformance(ctx context.Context, event *models.AnalyticsEvent) error {
	query := `
		INSERT INTO search_performance (
			event_type, query_hash, query_type, duration_ms,
			total_hits, timed_out, severity, timestamp, trace_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	return c.conn.Exec(ctx, query,
		event.EventType,
		event.QueryHash,
		event.QueryType,
		event.DurationMs,
		event.TotalHits,
		event.TimedOut,
		event.Phase,
		event.Timestamp,
		event.TraceID,
	)
}

func (c *Client) HealthCheck(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) EnsureTables(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS search_performance (
			event_type String,
			query_hash String,
			query_type String,
			duration_ms Float64,
			total_hits Int64,
			timed_out Bool,
			severity String,
			timestamp DateTime,
			trace_id String
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (timestamp, query_hash)`,

		`CREATE TABLE IF NOT EXISTS analytics_events (
			event_type String,
			name String,
			phase String,
			message String,
			duration_ms Float64,
			total_hits Int64,
			timestamp DateTime,
			trace_id String
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (timestamp, name)`,

		`CREATE TABLE IF NOT EXISTS place_interactions (
			user_id String,
			fsq_id String,
			name String,
			categories Array(String),
			category_codes Array(String),
			tastes Array(String),
			latitude Float64,
			longitude Float64,
			locality String,
			region String,
			country String,
			interacted_at DateTime
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(interacted_at)
		ORDER BY (user_id, fsq_id, interacted_at)`,

		`CREATE TABLE IF NOT EXISTS venue_recommendations (
			user_id String,
			fsq_id String,
			name String,
			categories Array(String),
			category_codes Array(String),
			tastes Array(String),
			latitude Float64,
			longitude Float64,
			locality String,
			region String,
			country String,
			section String,
			price UInt8,
			open_now Bool,
			score Float64,
			updated_at DateTime
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY (user_id, fsq_id)`,
	}

	for _, ddl := range tables {
		if err := c.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("creating table: %w", err)
		}
	}

	c.logger.Info("clickhouse tables ensured")
	return nil
}

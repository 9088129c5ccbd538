package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/apperrors"
	"github.com/shubhsaxena/nearby-assistant/internal/config"
	"github.com/shubhsaxena/nearby-assistant/internal/observability"
	"github.com/shubhsaxena/nearby-assistant/internal/resilience"
)

// Searcher is the part of the client the place session and geocoder depend on.
type Searcher interface {
	Search(ctx context.Context, index string, query map[string]any) (*SearchResult, error)
	Get(ctx context.Context, index, id string) (json.RawMessage, error)
}

type Client struct {
	es       *elasticsearch.Client
	cb       *gobreaker.CircuitBreaker
	cfg      config.ElasticsearchConfig
	retryCfg resilience.RetryConfig
	logger   *zap.Logger
}

func NewClient(cfg config.ElasticsearchConfig, searchCfg config.SearchConfig, logger *zap.Logger) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses:  cfg.Addresses,
		Username:   cfg.Username,
		Password:   cfg.Password,
		MaxRetries: cfg.MaxRetries,
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	res, err := es.Ping()
	if err != nil {
		return nil, fmt.Errorf("pinging elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch ping returned status: %s", res.Status())
	}

	cb := resilience.NewCircuitBreaker("elasticsearch-places", searchCfg.CircuitBreaker, logger)

	logger.Info("elasticsearch client connected", zap.Strings("addresses", cfg.Addresses))

	return &Client{
		es:       es,
		cb:       cb,
		cfg:      cfg,
		retryCfg: resilience.RetryConfigFrom(searchCfg.Retry),
		logger:   logger,
	}, nil
}

type Hit struct {
	ID     string
	Score  float64
	Sort   []any
	Source json.RawMessage
}

type SearchResult struct {
	Hits     []Hit
	Total    int64
	TookMs   int64
	TimedOut bool
}

func (c *Client) Search(ctx context.Context, index string, query map[string]any) (*SearchResult, error) {
	ctx, span := observability.StartSpan(ctx, "es.search",
		attribute.String("es.index", index),
	)
	defer span.End()

	start := time.Now()
	result, err := resilience.Call(ctx, c.cb, c.retryCfg, "elasticsearch", func(ctx context.Context) (*SearchResult, error) {
		return c.executeSearch(ctx, index, query)
	})

	duration := time.Since(start)
	if err != nil {
		observability.ESQueryDuration.WithLabelValues(index, "error").Observe(duration.Seconds())
		return nil, classify(fmt.Sprintf("es search (index=%s)", index), err)
	}
	if result == nil {
		observability.ESQueryDuration.WithLabelValues(index, "error").Observe(duration.Seconds())
		return nil, fmt.Errorf("es search (index=%s): unexpected nil result", index)
	}
	observability.ESQueryDuration.WithLabelValues(index, "success").Observe(duration.Seconds())

	return result, nil
}

// classify keeps already classified errors and treats the rest as transport failures.
func classify(op string, err error) error {
	if _, ok := apperrors.CodeOf(err); ok {
		return err
	}
	return apperrors.NetworkFailure(op, err)
}

func (c *Client) executeSearch(ctx context.Context, index string, query map[string]any) (*SearchResult, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshaling es query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(body)),
		c.es.Search.WithTimeout(c.cfg.RequestTimeout),
		c.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("executing es search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("es search error status=%s body=%s", res.Status(), string(bodyBytes))
	}

	return decodeSearchResponse(res.Body)
}

func decodeSearchResponse(r io.Reader) (*SearchResult, error) {
	var esResp esSearchResponse
	if err := json.NewDecoder(r).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("decoding es response: %w", err)
	}

	hits := make([]Hit, 0, len(esResp.Hits.Hits))
	for _, h := range esResp.Hits.Hits {
		hits = append(hits, Hit{
			ID:     h.ID,
			Score:  h.Score,
			Sort:   h.Sort,
			Source: h.Source,
		})
	}

	return &SearchResult{
		Hits:     hits,
		Total:    esResp.Hits.Total.Value,
		TookMs:   esResp.Took,
		TimedOut: esResp.TimedOut,
	}, nil
}

// Get fetches a single document source. A missing document is NotFound and
// does not count against the circuit breaker.
func (c *Client) Get(ctx context.Context, index, id string) (json.RawMessage, error) {
	ctx, span := observability.StartSpan(ctx, "es.get",
		attribute.String("es.index", index),
	)
	defer span.End()

	start := time.Now()
	source, err := resilience.Call(ctx, c.cb, c.retryCfg, "elasticsearch", func(ctx context.Context) (json.RawMessage, error) {
		res, err := c.es.Get(index, id, c.es.Get.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("executing es get: %w", err)
		}
		defer res.Body.Close()

		if res.StatusCode == http.StatusNotFound {
			return nil, apperrors.NotFound(fmt.Sprintf("document %s in %s", id, index))
		}
		if res.IsError() {
			bodyBytes, _ := io.ReadAll(res.Body)
			return nil, fmt.Errorf("es get error status=%s body=%s", res.Status(), string(bodyBytes))
		}

		var doc struct {
			Source json.RawMessage `json:"_source"`
		}
		if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
			return nil, apperrors.ValidationFailure("decoding es document: " + err.Error())
		}
		return doc.Source, nil
	})

	duration := time.Since(start)
	if errors.Is(err, apperrors.ErrNotFound) {
		observability.ESQueryDuration.WithLabelValues(index, "not_found").Observe(duration.Seconds())
		return nil, err
	}
	if err != nil {
		observability.ESQueryDuration.WithLabelValues(index, "error").Observe(duration.Seconds())
		return nil, classify(fmt.Sprintf("es get (index=%s id=%s)", index, id), err)
	}
	observability.ESQueryDuration.WithLabelValues(index, "success").Observe(duration.Seconds())
	return source, nil
}

func (c *Client) HealthCheck(ctx context.Context) (string, error) {
	res, err := c.es.Cluster.Health(
		c.es.Cluster.Health.WithContext(ctx),
	)
	if err != nil {
		return "red", fmt.Errorf("es health check: %w", err)
	}
	defer res.Body.Close()

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return "red", fmt.Errorf("decoding health response: %w", err)
	}
	return health.Status, nil
}

func (c *Client) Close() error {
	return nil
}

// ES response types

type esSearchResponse struct {
	Took     int64 `json:"took"`
	TimedOut bool  `json:"timed_out"`
	Hits     struct {
		Total struct {
			Value    int64  `json:"value"`
			Relation string `json:"relation"`
		} `json:"total"`
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

type esHit struct {
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Sort   []any           `json:"sort,omitempty"`
	Source json.RawMessage `json:"_source"`
}

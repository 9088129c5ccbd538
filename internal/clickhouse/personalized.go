package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shubhsaxena/nearby-assistant/internal/apperrors"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/observability"
	"github.com/shubhsaxena/nearby-assistant/internal/orchestrator"
	"github.com/shubhsaxena/nearby-assistant/internal/resilience"
)

const (
	relatedLimit  = 20
	tastePageSize = 50
	venueColumns  = "fsq_id, name, categories, tastes, latitude, longitude, locality, region, country"
)

var _ orchestrator.PersonalizedSession = (*Client)(nil)

// Identity returns the configured user. An anonymous deployment has none.
func (c *Client) Identity(ctx context.Context) (string, error) {
	if c.userID == "" {
		return "", apperrors.NoTokenFound("no user identity configured", nil)
	}
	return c.userID, nil
}

func (c *Client) FetchRecommendedVenues(ctx context.Context, req *orchestrator.PlaceSearchRequest) ([]models.PlaceResponse, error) {
	userID, err := c.Identity(ctx)
	if err != nil {
		return nil, err
	}
	query, args := recommendedQuery(userID, req)
	return c.queryVenues(ctx, "recommended", query, args...)
}

// FetchRelatedVenues ranks places by how many users interacted with both them and fsqID.
func (c *Client) FetchRelatedVenues(ctx context.Context, fsqID string) ([]models.PlaceResponse, error) {
	query := `
		SELECT
			b.fsq_id,
			any(b.name),
			any(b.categories),
			any(b.tastes),
			any(b.latitude),
			any(b.longitude),
			any(b.locality),
			any(b.region),
			any(b.country)
		FROM place_interactions AS a
		INNER JOIN place_interactions AS b ON a.user_id = b.user_id
		WHERE a.fsq_id = ? AND b.fsq_id != ?
		GROUP BY b.fsq_id
		ORDER BY uniqExact(b.user_id) DESC, b.fsq_id
		LIMIT ?
	`
	return c.queryVenues(ctx, "related", query, fsqID, fsqID, relatedLimit)
}

func (c *Client) FetchTastes(ctx context.Context, page int) (*models.TastesPage, error) {
	userID, err := c.Identity(ctx)
	if err != nil {
		return nil, err
	}
	if page < 0 {
		page = 0
	}

	query := `
		SELECT taste
		FROM place_interactions
		ARRAY JOIN tastes AS taste
		WHERE user_id = ?
		GROUP BY taste
		ORDER BY count() DESC, taste
		LIMIT ? OFFSET ?
	`
	limit, offset := pageWindow(page, tastePageSize)

	var tastes []string
	err = c.read(ctx, "tastes", func(ctx context.Context) error {
		tastes = tastes[:0]
		rows, err := c.conn.Query(ctx, query, userID, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var taste string
			if err := rows.Scan(&taste); err != nil {
				return apperrors.ValidationFailure("scanning taste row: " + err.Error())
			}
			tastes = append(tastes, taste)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	hasMore := len(tastes) > tastePageSize
	if hasMore {
		tastes = tastes[:tastePageSize]
	}
	return &models.TastesPage{Tastes: tastes, Page: page, HasMore: hasMore, Identity: userID}, nil
}

func (c *Client) queryVenues(ctx context.Context, queryType, query string, args ...any) ([]models.PlaceResponse, error) {
	var venues []models.PlaceResponse
	err := c.read(ctx, queryType, func(ctx context.Context) error {
		venues = venues[:0]
		rows, err := c.conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		v, err := scanVenues(rows)
		venues = v
		return err
	})
	if err != nil {
		return nil, err
	}
	if venues == nil {
		venues = []models.PlaceResponse{}
	}
	return venues, nil
}

// read runs a query behind the circuit breaker with retries and records its duration.
func (c *Client) read(ctx context.Context, queryType string, fn func(context.Context) error) error {
	ctx, span := observability.StartSpan(ctx, "ch.query",
		attribute.String("query_type", queryType),
	)
	defer span.End()

	start := time.Now()
	_, err := resilience.Call(ctx, c.cb, c.retryCfg, "clickhouse", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	if err != nil {
		observability.CHQueryDuration.WithLabelValues(queryType, "error").Observe(time.Since(start).Seconds())
		if _, ok := apperrors.CodeOf(err); ok {
			return err
		}
		return apperrors.NetworkFailure("ch "+queryType+" query", err)
	}
	observability.CHQueryDuration.WithLabelValues(queryType, "success").Observe(time.Since(start).Seconds())
	return nil
}

func scanVenues(rows driver.Rows) ([]models.PlaceResponse, error) {
	var venues []models.PlaceResponse
	for rows.Next() {
		var p models.PlaceResponse
		if err := rows.Scan(&p.FsqID, &p.Name, &p.Categories, &p.Tastes, &p.Latitude, &p.Longitude, &p.Locality, &p.Region, &p.Country); err != nil {
			return nil, apperrors.ValidationFailure("scanning venue row: " + err.Error())
		}
		venues = append(venues, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating venue rows: %w", err)
	}
	return venues, nil
}

// recommendedQuery builds the personalized venue query for userID. Optional
// conditions are appended only when the request carries them.
func recommendedQuery(userID string, req *orchestrator.PlaceSearchRequest) (string, []any) {
	conditions := []string{"user_id = ?"}
	args := []any{userID}

	if req.Coordinate != nil && req.Radius > 0 {
		conditions = append(conditions, "geoDistance(longitude, latitude, ?, ?) <= ?")
		args = append(args, req.Coordinate.Longitude, req.Coordinate.Latitude, req.Radius)
	}
	if len(req.Categories) > 0 {
		conditions = append(conditions, "hasAny(category_codes, ?)")
		args = append(args, req.Categories)
	}
	if req.Section != "" && req.Section != models.SectionTopPicks {
		conditions = append(conditions, "section = ?")
		args = append(args, string(req.Section))
	}
	if req.MinPrice > 1 {
		conditions = append(conditions, "price >= ?")
		args = append(args, req.MinPrice)
	}
	if req.MaxPrice > 0 && req.MaxPrice < 4 {
		conditions = append(conditions, "price <= ?")
		args = append(args, req.MaxPrice)
	}
	if req.OpenNow != nil && *req.OpenNow {
		conditions = append(conditions, "open_now")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := "SELECT " + venueColumns + " FROM venue_recommendations FINAL WHERE " +
		strings.Join(conditions, " AND ") + " ORDER BY score DESC, fsq_id LIMIT ?"
	return query, args
}

// pageWindow asks for one extra row so the caller can tell whether another page exists.
func pageWindow(page, size int) (limit, offset int) {
	return size + 1, page * size
}

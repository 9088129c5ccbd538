package orchestrator

import (
	"github.com/shubhsaxena/nearby-assistant/internal/intent"
	"github.com/shubhsaxena/nearby-assistant/internal/query"
)

const (
	minPriceTier = 1
	maxPriceTier = 4

	recommendedRadius = 20000
)

// RequestBuilder turns intent parameters into provider requests.
type RequestBuilder struct {
	defaultRadius float64
	defaultLimit  int
}

func NewRequestBuilder(defaultRadius float64, defaultLimit int) *RequestBuilder {
	if defaultRadius <= 0 {
		defaultRadius = query.DefaultRadius
	}
	if defaultLimit <= 0 {
		defaultLimit = query.DefaultLimit
	}
	return &RequestBuilder{defaultRadius: defaultRadius, defaultLimit: defaultLimit}
}

// PlaceRequest builds the plain place query for an intent.
func (b *RequestBuilder) PlaceRequest(in *intent.Intent) *PlaceSearchRequest {
	req := b.base(in)
	if p := in.Parameters; p != nil && p.Sort != "" {
		req.Sort = p.Sort
	} else {
		req.Sort = query.DefaultSort
	}
	return req
}

// RecommendedRequest builds the personalized query. The radius is capped at
// the recommendation provider's maximum and the browse section is carried.
func (b *RequestBuilder) RecommendedRequest(in *intent.Intent) *PlaceSearchRequest {
	req := b.base(in)
	if req.Radius > recommendedRadius {
		req.Radius = recommendedRadius
	}
	if in.Parameters != nil {
		req.Section = in.Parameters.Section
	}
	return req
}

func (b *RequestBuilder) base(in *intent.Intent) *PlaceSearchRequest {
	req := &PlaceSearchRequest{
		Query:    in.Caption,
		Radius:   b.defaultRadius,
		Limit:    b.defaultLimit,
		MinPrice: minPriceTier,
		MaxPrice: maxPriceTier,
	}

	if in.Destination != nil && in.Destination.Coordinate != nil {
		c := *in.Destination.Coordinate
		req.Coordinate = &c
	}

	p := in.Parameters
	if p == nil {
		return req
	}

	if p.Query != "" {
		req.Query = p.Query
	}
	if p.Radius > 0 {
		req.Radius = p.Radius
	}
	if p.Limit > 0 && p.Limit < req.Limit {
		req.Limit = p.Limit
	}
	if p.MinPrice != nil && *p.MinPrice > minPriceTier && *p.MinPrice <= maxPriceTier {
		req.MinPrice = *p.MinPrice
	}
	if p.MaxPrice != nil && *p.MaxPrice >= minPriceTier && *p.MaxPrice < maxPriceTier {
		req.MaxPrice = *p.MaxPrice
	}
	if req.MinPrice > req.MaxPrice {
		req.MinPrice = req.MaxPrice
	}
	req.Categories = append([]string(nil), p.Categories...)
	req.OpenNow = p.OpenNow
	req.OpenAt = p.OpenAt

	// A resolved destination wins over the free-text location.
	if req.Coordinate == nil && p.Near != "" {
		req.Near = p.Near
	}
	return req
}

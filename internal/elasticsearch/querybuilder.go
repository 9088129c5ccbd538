package elasticsearch

import (
	"fmt"
	"strings"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/orchestrator"
)

var placeSearchFields = []string{"name^3", "categories^2", "tastes", "description"}

type QueryBuilder struct{}

func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

// BuildPlaceQuery translates a place request into a bool query with
// popularity boosting. Distance sorting needs a coordinate and otherwise falls
// back to relevance.
func (qb *QueryBuilder) BuildPlaceQuery(req *orchestrator.PlaceSearchRequest) map[string]any {
	boolQuery := map[string]any{}

	if text := strings.TrimSpace(req.Query); text != "" {
		boolQuery["must"] = []map[string]any{
			{
				"multi_match": map[string]any{
					"query":       text,
					"type":        "best_fields",
					"fields":      placeSearchFields,
					"fuzziness":   "AUTO",
					"tie_breaker": 0.3,
				},
			},
		}
	} else {
		boolQuery["must"] = []map[string]any{{"match_all": map[string]any{}}}
	}

	var filters []map[string]any
	if len(req.Categories) > 0 {
		filters = append(filters, map[string]any{
			"terms": map[string]any{"category_codes": req.Categories},
		})
	}
	if req.Coordinate != nil {
		filters = append(filters, geoDistanceFilter(*req.Coordinate, req.Radius))
	} else if req.Near != "" {
		filters = append(filters, map[string]any{
			"multi_match": map[string]any{
				"query":  req.Near,
				"fields": []string{"locality", "region", "formatted_address"},
			},
		})
	}
	if req.MinPrice > 1 || (req.MaxPrice > 0 && req.MaxPrice < 4) {
		priceRange := map[string]any{}
		if req.MinPrice > 1 {
			priceRange["gte"] = req.MinPrice
		}
		if req.MaxPrice > 0 && req.MaxPrice < 4 {
			priceRange["lte"] = req.MaxPrice
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{"price": priceRange},
		})
	}
	if req.OpenNow != nil && *req.OpenNow {
		filters = append(filters, map[string]any{
			"term": map[string]any{"open_now": true},
		})
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	if req.Section != "" && req.Section != models.SectionTopPicks {
		boolQuery["should"] = []map[string]any{
			{
				"term": map[string]any{
					"section": map[string]any{
						"value": string(req.Section),
						"boost": 1.5,
					},
				},
			},
		}
	}

	query := map[string]any{
		"query": map[string]any{
			"script_score": map[string]any{
				"query": map[string]any{
					"bool": boolQuery,
				},
				"script": map[string]any{
					"source": "_score * (1 + Math.log1p(doc['popularity'].value))",
				},
			},
		},
		"size": req.Limit,
	}

	switch req.Sort {
	case "distance":
		if req.Coordinate != nil {
			query["sort"] = []map[string]any{geoDistanceSort(*req.Coordinate)}
		}
	case "rating":
		query["sort"] = []map[string]any{
			{"rating": map[string]any{"order": "desc"}},
			{"_score": map[string]any{"order": "desc"}},
		}
	case "popularity":
		query["sort"] = []map[string]any{
			{"popularity": map[string]any{"order": "desc"}},
			{"_score": map[string]any{"order": "desc"}},
		}
	}

	return query
}

// BuildAutocompleteQuery matches name prefixes, scoped to the destination when it has a coordinate.
func (qb *QueryBuilder) BuildAutocompleteQuery(prefix string, size int, scope *models.LocationResult) map[string]any {
	boolQuery := map[string]any{
		"must": []map[string]any{
			{
				"match_bool_prefix": map[string]any{
					"name": map[string]any{"query": prefix},
				},
			},
		},
	}
	query := map[string]any{
		"size": size,
		"query": map[string]any{
			"bool": boolQuery,
		},
	}
	if scope != nil && scope.Coordinate != nil {
		query["sort"] = []map[string]any{geoDistanceSort(*scope.Coordinate), {"_score": map[string]any{"order": "desc"}}}
	}
	return query
}

// BuildLocationNameQuery searches the locations index by name.
func (qb *QueryBuilder) BuildLocationNameQuery(name string, size int) map[string]any {
	return map[string]any{
		"size": size,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     name,
				"type":      "best_fields",
				"fields":    []string{"name^3", "locality^2", "region", "country"},
				"fuzziness": "AUTO",
			},
		},
	}
}

// BuildReverseGeocodeQuery finds the locations closest to a coordinate.
func (qb *QueryBuilder) BuildReverseGeocodeQuery(c models.Coordinate, size int) map[string]any {
	return map[string]any{
		"size":  size,
		"query": map[string]any{"match_all": map[string]any{}},
		"sort":  []map[string]any{geoDistanceSort(c)},
	}
}

func geoDistanceFilter(c models.Coordinate, radius float64) map[string]any {
	return map[string]any{
		"geo_distance": map[string]any{
			"distance": fmt.Sprintf("%.0fm", radius),
			"location": map[string]any{"lat": c.Latitude, "lon": c.Longitude},
		},
	}
}

func geoDistanceSort(c models.Coordinate) map[string]any {
	return map[string]any{
		"_geo_distance": map[string]any{
			"location": map[string]any{"lat": c.Latitude, "lon": c.Longitude},
			"order":    "asc",
			"unit":     "m",
		},
	}
}

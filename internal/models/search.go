package models

import (
	"fmt"
	"strings"
	"time"
)

type IntentKind int

const (
	IntentSearch IntentKind = iota
	IntentAutocomplete
)

func (k IntentKind) String() string {
	switch k {
	case IntentSearch:
		return "search"
	case IntentAutocomplete:
		return "autocomplete"
	default:
		return "unknown"
	}
}

func ParseIntentKind(s string) (IntentKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "search":
		return IntentSearch, nil
	case "autocomplete":
		return IntentAutocomplete, nil
	default:
		return IntentSearch, fmt.Errorf("unknown intent kind %q", s)
	}
}

func (k IntentKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *IntentKind) UnmarshalText(text []byte) error {
	parsed, err := ParseIntentKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type LocationResult struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Coordinate *Coordinate `json:"coordinate,omitempty"`
}

type Placemark struct {
	Name       string     `json:"name"`
	Locality   string     `json:"locality,omitempty"`
	Region     string     `json:"region,omitempty"`
	Country    string     `json:"country,omitempty"`
	Coordinate Coordinate `json:"coordinate"`
}

type PlaceResponse struct {
	FsqID            string   `json:"fsq_id"`
	Name             string   `json:"name"`
	Categories       []string `json:"categories,omitempty"`
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Address          string   `json:"address,omitempty"`
	FormattedAddress string   `json:"formatted_address,omitempty"`
	Locality         string   `json:"locality,omitempty"`
	Region           string   `json:"region,omitempty"`
	PostCode         string   `json:"post_code,omitempty"`
	Country          string   `json:"country,omitempty"`
	Distance         float64  `json:"distance,omitempty"`
	Photo            string   `json:"photo,omitempty"`
	Tastes           []string `json:"tastes,omitempty"`
}

type PlaceDetails struct {
	FsqID       string        `json:"fsq_id"`
	Place       PlaceResponse `json:"place"`
	Description string        `json:"description,omitempty"`
	Tel         string        `json:"tel,omitempty"`
	Website     string        `json:"website,omitempty"`
	Hours       string        `json:"hours,omitempty"`
	OpenNow     *bool         `json:"open_now,omitempty"`
	Rating      float64       `json:"rating,omitempty"`
	Price       int           `json:"price,omitempty"`
	Popularity  float64       `json:"popularity,omitempty"`
	Tastes      []string      `json:"tastes,omitempty"`
	Photos      []string      `json:"photos,omitempty"`
	Tips        []string      `json:"tips,omitempty"`
}

type AutocompleteResult struct {
	Text  string         `json:"text"`
	Type  string         `json:"type"` // place, search, address
	Place *PlaceResponse `json:"place,omitempty"`
}

type TastesPage struct {
	Tastes   []string `json:"tastes"`
	Page     int      `json:"page"`
	HasMore  bool     `json:"has_more"`
	Identity string   `json:"identity,omitempty"`
}

type ChangeEvent struct {
	Type      string    `json:"type"` // CREATE, DELETE, CLEAR
	Group     string    `json:"group,omitempty"`
	Identity  string    `json:"identity,omitempty"`
	RecordID  string    `json:"record_id,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type AnalyticsEvent struct {
	EventType   string         `json:"event_type"`
	Name        string         `json:"name"`
	Phase       string         `json:"phase,omitempty"`
	Message     string         `json:"message,omitempty"`
	QueryHash   string         `json:"query_hash,omitempty"`
	QueryType   string         `json:"query_type,omitempty"`
	DurationMs  float64        `json:"duration_ms,omitempty"`
	TotalHits   int64          `json:"total_hits,omitempty"`
	TimedOut    bool           `json:"timed_out,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	TraceID     string         `json:"trace_id,omitempty"`
	ExtraFields map[string]any `json:"extra_fields,omitempty"`
}

package assistant

import (
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/query"
)

// Message is one user utterance.
type Message struct {
	Caption string            `json:"caption"`
	Filters map[string]string `json:"filters,omitempty"`
	// Kind overrides intent classification when set.
	Kind *models.IntentKind `json:"kind,omitempty"`
	// Refine revises the previous turn instead of starting a new one.
	Refine bool `json:"refine,omitempty"`
	// DestinationID selects a known location result as the destination.
	DestinationID string `json:"destination_id,omitempty"`
}

// Turn is the outcome of one message.
type Turn struct {
	IntentID        string                 `json:"intent_id"`
	Caption         string                 `json:"caption"`
	Kind            models.IntentKind      `json:"kind"`
	Parameters      *query.Parameters      `json:"parameters,omitempty"`
	Destination     *models.LocationResult `json:"destination,omitempty"`
	Results         []models.ChatResult    `json:"results"`
	Recommendations []models.ChatResult    `json:"recommendations"`
	Stale           bool                   `json:"stale,omitempty"`
}

type EventType string

const (
	EventIntent      EventType = "intent"
	EventDestination EventType = "destination"
	EventResults     EventType = "results"
	EventError       EventType = "error"
)

// Event is published on the host's event channel as a turn progresses.
type Event struct {
	Type        EventType              `json:"type"`
	IntentID    string                 `json:"intent_id,omitempty"`
	Destination *models.LocationResult `json:"destination,omitempty"`
	Turn        *Turn                  `json:"turn,omitempty"`
	Err         error                  `json:"-"`
}

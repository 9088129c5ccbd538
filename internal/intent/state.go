package intent

import (
	"sync"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/query"
)

// State is the ordered intent history of one conversation. It is append-only
// apart from ReplaceLast and Reset.
type State struct {
	mu      sync.RWMutex
	history []*Intent
}

func NewState() *State {
	return &State{}
}

func (s *State) Append(in *Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, in)
}

// ReplaceLast pops the tail and pushes the revised intent. On an empty history it appends.
func (s *State) ReplaceLast(in *Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.history); n > 0 {
		s.history = s.history[:n-1]
	}
	s.history = append(s.history, in)
}

func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

func (s *State) Last() (*Intent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		return nil, false
	}
	return s.history[len(s.history)-1], true
}

func (s *State) Intents() []*Intent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Intent, len(s.history))
	copy(out, s.history)
	return out
}

func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// IsCurrent reports whether id belongs to the most recent intent.
func (s *State) IsCurrent(id string) bool {
	last, ok := s.Last()
	return ok && last.ID == id
}

// UpdateLast rebuilds the tail intent for a refined caption, carrying over its
// selection and fetched responses. Reports false when the history is empty.
func (s *State) UpdateLast(caption string, kind models.IntentKind, filters map[string]string, params *query.Parameters, destination *models.LocationResult) (*Intent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.history)
	if n == 0 {
		return nil, false
	}
	last := s.history[n-1]
	if destination == nil {
		destination = last.Destination
	}
	revised := New(caption, kind, filters, params, destination)
	revised.Fulfillment = last.Fulfillment.Clone()
	s.history[n-1] = revised
	return revised, true
}

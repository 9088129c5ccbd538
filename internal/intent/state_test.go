package intent

import (
	"testing"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/query"
)

func TestNew(t *testing.T) {
	filters := map[string]string{"distance": "5"}
	in := New("coffee", models.IntentSearch, filters, &query.Parameters{Query: "coffee"}, nil)

	if in.ID == "" {
		t.Error("expected generated id")
	}
	filters["distance"] = "10"
	if in.Filters["distance"] != "5" {
		t.Error("expected filters to be copied at creation")
	}

	other := New("coffee", models.IntentSearch, nil, nil, nil)
	if in.Equal(other) {
		t.Error("expected intents with distinct ids to differ")
	}
	same := *in
	same.Caption = "tea"
	if !in.Equal(&same) {
		t.Error("expected equality by id")
	}
	var nilIntent *Intent
	if !nilIntent.Equal(nil) || nilIntent.Equal(in) {
		t.Error("unexpected nil equality")
	}
}

func TestDetailsFor(t *testing.T) {
	in := New("coffee", models.IntentSearch, nil, nil, nil)
	in.Fulfillment.Details = []models.PlaceDetails{{FsqID: "a"}, {FsqID: "b"}}

	d, ok := in.DetailsFor("b")
	if !ok || d.FsqID != "b" {
		t.Errorf("expected details for b, got %v %v", d, ok)
	}
	if _, ok := in.DetailsFor("c"); ok {
		t.Error("expected no details for c")
	}
}

func TestState_AppendAndLast(t *testing.T) {
	s := NewState()
	if _, ok := s.Last(); ok {
		t.Error("expected empty state to have no last intent")
	}

	first := New("coffee", models.IntentSearch, nil, nil, nil)
	second := New("tea", models.IntentSearch, nil, nil, nil)
	s.Append(first)
	s.Append(second)

	if s.Len() != 2 {
		t.Fatalf("expected 2 intents, got %d", s.Len())
	}
	last, _ := s.Last()
	if last != second {
		t.Error("expected last appended intent")
	}
	if !s.IsCurrent(second.ID) || s.IsCurrent(first.ID) {
		t.Error("expected only the tail to be current")
	}
}

func TestState_ReplaceLast(t *testing.T) {
	s := NewState()
	first := New("coffee", models.IntentSearch, nil, nil, nil)
	second := New("cof", models.IntentAutocomplete, nil, nil, nil)
	revised := New("coffee shop", models.IntentSearch, nil, nil, nil)

	s.ReplaceLast(first)
	if s.Len() != 1 {
		t.Fatalf("expected replace on empty history to append, got %d", s.Len())
	}

	s.Append(second)
	s.ReplaceLast(revised)

	intents := s.Intents()
	if len(intents) != 2 {
		t.Fatalf("expected 2 intents, got %d", len(intents))
	}
	if intents[0] != first || intents[1] != revised {
		t.Error("expected order preserved with the tail replaced")
	}
}

func TestState_IntentsReturnsCopy(t *testing.T) {
	s := NewState()
	s.Append(New("coffee", models.IntentSearch, nil, nil, nil))

	intents := s.Intents()
	intents[0] = nil
	if last, _ := s.Last(); last == nil {
		t.Error("expected history to be unaffected by caller mutation")
	}
}

func TestState_Reset(t *testing.T) {
	s := NewState()
	s.Append(New("coffee", models.IntentSearch, nil, nil, nil))
	s.Reset()
	if s.Len() != 0 {
		t.Errorf("expected empty history after reset, got %d", s.Len())
	}
}

func TestState_UpdateLast(t *testing.T) {
	s := NewState()
	if _, ok := s.UpdateLast("x", models.IntentSearch, nil, nil, nil); ok {
		t.Error("expected update on empty history to report false")
	}

	dest := &models.LocationResult{Name: "soho"}
	original := New("coffee", models.IntentSearch, nil, nil, dest)
	original.Fulfillment.Places = []models.PlaceResponse{{FsqID: "p1", Name: "Blue Bottle"}}
	original.Fulfillment.SelectedPlace = &original.Fulfillment.Places[0]
	s.Append(original)

	revised, ok := s.UpdateLast("coffee open now", models.IntentSearch, map[string]string{"open_now": "true"}, nil, nil)
	if !ok {
		t.Fatal("expected update to succeed")
	}
	if revised.ID == original.ID {
		t.Error("expected revised intent to get a new id")
	}
	if revised.Caption != "coffee open now" {
		t.Errorf("expected revised caption, got %q", revised.Caption)
	}
	if revised.Destination != dest {
		t.Error("expected destination carried over")
	}
	if len(revised.Fulfillment.Places) != 1 || revised.Fulfillment.SelectedPlace == nil {
		t.Error("expected fulfillment carried over")
	}
	if s.Len() != 1 {
		t.Errorf("expected history length unchanged, got %d", s.Len())
	}

	revised.Fulfillment.Places[0].Name = "changed"
	if original.Fulfillment.Places[0].Name != "Blue Bottle" {
		t.Error("expected revised fulfillment to be independent of the original")
	}
}

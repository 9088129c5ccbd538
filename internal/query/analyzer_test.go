package query

import (
	"testing"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
)

func newTestAnalyzer(t *testing.T, dict Dictionary) *Analyzer {
	t.Helper()
	table := testTable()
	return NewAnalyzer(
		newTestTagger(t),
		NewFilterExtractor(table, true),
		NewIntentClassifier(table, dict),
		Defaults{Radius: DefaultRadius, Limit: DefaultLimit},
	)
}

func TestAnalyze_CheapCoffeeNearDowntown(t *testing.T) {
	a := newTestAnalyzer(t, stubDictionary{"coffee": true})
	caption := "cheap coffee near downtown"

	analysis := a.Analyze(caption, nil, nil)

	if _, ok := a.Extractor().Radius(caption); ok {
		t.Error("expected no radius")
	}
	if analysis.Parameters.Radius != DefaultRadius {
		t.Errorf("expected default radius, got %v", analysis.Parameters.Radius)
	}
	if analysis.Parameters.MaxPrice == nil || *analysis.Parameters.MaxPrice != 2 {
		t.Errorf("expected max price 2, got %v", analysis.Parameters.MaxPrice)
	}
	if analysis.Parameters.MinPrice != nil {
		t.Errorf("expected no min price, got %v", *analysis.Parameters.MinPrice)
	}
	near, ok := analysis.NearLocation()
	if !ok || near != "downtown" {
		t.Errorf("expected near location 'downtown', got (%q, %v)", near, ok)
	}
	if analysis.Kind != models.IntentSearch {
		t.Errorf("expected search intent, got %v", analysis.Kind)
	}
	if analysis.Parameters.Query != "cheap coffee" {
		t.Errorf("expected parsed query 'cheap coffee', got %q", analysis.Parameters.Query)
	}
	if analysis.Parameters.Section != models.SectionCoffee {
		t.Errorf("expected coffee section, got %q", analysis.Parameters.Section)
	}
}

func TestAnalyze_WithoutDictionaryMatch(t *testing.T) {
	a := newTestAnalyzer(t, stubDictionary{})

	analysis := a.Analyze("cheap coffee near downtown", nil, nil)
	if analysis.Kind != models.IntentAutocomplete {
		t.Errorf("expected autocomplete when nothing matches the prefix, got %v", analysis.Kind)
	}
}

func TestAnalyze_Enrich(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	a.Enrich([]string{"Natural Wine"}, []string{"Blue Bottle"})

	analysis := a.Analyze("blue bottle", nil, nil)
	if !analysis.Tags["blue"].Contains(TagPlace) {
		t.Errorf("expected enriched place tag, got %v", analysis.Tags)
	}

	a.Enrich(nil, nil)
	analysis = a.Analyze("blue bottle", nil, nil)
	if analysis.Tags["blue"].Contains(TagPlace) {
		t.Error("expected enrichment to rebuild from the base model")
	}
}

func TestParameters_Defaults(t *testing.T) {
	e := NewFilterExtractor(testTable(), true)
	p := e.Parameters("karaoke", nil, nil, Defaults{})

	if p.Radius != DefaultRadius {
		t.Errorf("expected radius %d, got %v", DefaultRadius, p.Radius)
	}
	if p.Limit != DefaultLimit {
		t.Errorf("expected limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Sort != "distance" {
		t.Errorf("expected sort distance, got %s", p.Sort)
	}
	if p.Tags != nil || p.Categories != nil {
		t.Errorf("expected no tags or categories without tagging, got %v %v", p.Tags, p.Categories)
	}
	if p.Query != "karaoke" {
		t.Errorf("expected query 'karaoke', got %q", p.Query)
	}
	if p.Section != models.SectionTopPicks {
		t.Errorf("expected top picks, got %q", p.Section)
	}
}

func TestParameters_FiltersWin(t *testing.T) {
	e := NewFilterExtractor(testTable(), true)
	filters := map[string]string{
		"distance":  "5",
		"open_now":  "false",
		"max_price": "4",
	}
	p := e.Parameters("cheap pizza open now nearby", TaggedWords{"pizza": {TagNoun}}, filters, Defaults{Radius: 20000, Limit: 10})

	if p.Radius != 5000 {
		t.Errorf("expected radius 5000 from distance filter, got %v", p.Radius)
	}
	if p.Limit != 10 {
		t.Errorf("expected limit 10, got %d", p.Limit)
	}
	if p.OpenNow == nil || *p.OpenNow {
		t.Errorf("expected open_now false from filter, got %v", p.OpenNow)
	}
	if p.MaxPrice == nil || *p.MaxPrice != 4 {
		t.Errorf("expected max price 4 from filter, got %v", p.MaxPrice)
	}
	if len(p.Tags) != 1 || p.Tags[0] != "pizza" {
		t.Errorf("expected tags [pizza], got %v", p.Tags)
	}
}

func TestParameters_NearbyRadius(t *testing.T) {
	e := NewFilterExtractor(nil, true)
	p := e.Parameters("coffee near me", nil, map[string]string{"distance": "bogus"}, Defaults{})
	if p.Radius != 1000 {
		t.Errorf("expected nearby radius 1000, got %v", p.Radius)
	}
	if p.Near != "me" {
		t.Errorf("expected near phrase 'me', got %q", p.Near)
	}
}

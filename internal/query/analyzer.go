package query

import (
	"sync"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
)

// Analysis is everything understood about one caption.
type Analysis struct {
	Caption    string
	Kind       models.IntentKind
	Tags       TaggedWords
	Parameters *Parameters
}

// NearLocation returns the "near X" phrase, if any.
func (a *Analysis) NearLocation() (string, bool) {
	if a.Parameters == nil || a.Parameters.Near == "" {
		return "", false
	}
	return a.Parameters.Near, true
}

// Analyzer runs tagging, classification and filter extraction for a caption.
type Analyzer struct {
	mu         sync.RWMutex
	tagger     *Tagger
	base       *DomainModel
	extractor  *FilterExtractor
	classifier *IntentClassifier
	defaults   Defaults
}

func NewAnalyzer(tagger *Tagger, extractor *FilterExtractor, classifier *IntentClassifier, defaults Defaults) *Analyzer {
	return &Analyzer{
		tagger:     tagger,
		base:       tagger.Domain(),
		extractor:  extractor,
		classifier: classifier,
		defaults:   defaults,
	}
}

func (a *Analyzer) Analyze(caption string, filters map[string]string, override *models.IntentKind) *Analysis {
	a.mu.RLock()
	tagger := a.tagger
	a.mu.RUnlock()

	tags := tagger.Tag(caption)
	return &Analysis{
		Caption:    caption,
		Kind:       a.classifier.Classify(caption, override),
		Tags:       tags,
		Parameters: a.extractor.Parameters(caption, tags, filters, a.defaults),
	}
}

// Enrich rebuilds the domain model from the base model plus the given cached
// taste titles and place names.
func (a *Analyzer) Enrich(tastes, places []string) {
	domain := a.base.WithTastes(tastes).WithPlaces(places)

	a.mu.Lock()
	a.tagger = a.tagger.WithDomain(domain)
	a.mu.Unlock()
}

func (a *Analyzer) Classifier() *IntentClassifier {
	return a.classifier
}

func (a *Analyzer) Extractor() *FilterExtractor {
	return a.extractor
}

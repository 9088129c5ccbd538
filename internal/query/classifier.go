package query

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/taxonomy"
)

// Dictionary answers whether a term has a definition.
type Dictionary interface {
	HasDefinition(term string) bool
}

// LexiconDictionary defines a term when every word in it is in the lexical model.
type LexiconDictionary struct {
	model *LexicalModel
}

func NewLexiconDictionary(model *LexicalModel) *LexiconDictionary {
	return &LexiconDictionary{model: model}
}

func (d *LexiconDictionary) HasDefinition(term string) bool {
	if d == nil || d.model == nil {
		return false
	}
	words := tokenize(term)
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !d.model.Knows(w) {
			return false
		}
	}
	return true
}

type IntentClassifier struct {
	table      *taxonomy.Table
	dictionary Dictionary
}

func NewIntentClassifier(table *taxonomy.Table, dictionary Dictionary) *IntentClassifier {
	return &IntentClassifier{table: table, dictionary: dictionary}
}

// Classify decides between Search and Autocomplete. An override is returned as is.
// A prefix naming a known category or a dictionary term is a Search; otherwise a
// caption ending in whitespace or punctuation is a finished thought and also a
// Search. Everything else is still being typed.
func (c *IntentClassifier) Classify(caption string, override *models.IntentKind) models.IntentKind {
	if override != nil {
		return *override
	}

	prefix := strings.TrimSpace(beforeNear(caption))
	if prefix != "" {
		if c.table.HasParent(prefix) || c.table.HasCategory(prefix) {
			return models.IntentSearch
		}
		if c.dictionary != nil && c.dictionary.HasDefinition(prefix) {
			return models.IntentSearch
		}
	}

	if endsInBoundary(caption) {
		return models.IntentSearch
	}
	return models.IntentAutocomplete
}

func endsInBoundary(caption string) bool {
	if caption == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(caption)
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

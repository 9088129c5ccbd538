// Package query turns a raw caption into tagged words, extracted filters,
// an intent kind and default search parameters.
package query

import (
	"sort"
	"strings"
	"unicode"

	"github.com/shubhsaxena/nearby-assistant/internal/apperrors"
)

type Tag string

const (
	TagNone             Tag = "NONE"
	TagTaste            Tag = "TASTE"
	TagCategory         Tag = "CATEGORY"
	TagPlace            Tag = "PLACE"
	TagNoun             Tag = "Noun"
	TagAdjective        Tag = "Adjective"
	TagPersonalName     Tag = "PersonalName"
	TagPlaceName        Tag = "PlaceName"
	TagOrganizationName Tag = "OrganizationName"
)

// TagSet is a sorted, de-duplicated list of tags.
type TagSet []Tag

func (s TagSet) Contains(tag Tag) bool {
	for _, t := range s {
		if t == tag {
			return true
		}
	}
	return false
}

func (s TagSet) with(tags ...Tag) TagSet {
	out := make(TagSet, 0, len(s)+len(tags))
	out = append(out, s...)
	for _, tag := range tags {
		if !out.Contains(tag) {
			out = append(out, tag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TaggedWords maps a query word, as written, to its tags.
type TaggedWords map[string]TagSet

// Words returns the tagged words in sorted order.
func (tw TaggedWords) Words() []string {
	words := make([]string, 0, len(tw))
	for w := range tw {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

// lexicalAllowList restricts the general lexical pass to name and word classes.
var lexicalAllowList = map[Tag]bool{
	TagPersonalName:     true,
	TagPlaceName:        true,
	TagOrganizationName: true,
	TagNoun:             true,
	TagAdjective:        true,
}

type Tagger struct {
	domain  *DomainModel
	lexical *LexicalModel
}

func NewTagger(domain *DomainModel, lexical *LexicalModel) (*Tagger, error) {
	if domain == nil {
		return nil, apperrors.ModelLoadFailure("domain tagging model not loaded", nil)
	}
	if lexical == nil {
		return nil, apperrors.ModelLoadFailure("lexical tagging model not loaded", nil)
	}
	return &Tagger{domain: domain, lexical: lexical}, nil
}

// Domain returns the domain model so callers can derive an enriched copy.
func (t *Tagger) Domain() *DomainModel {
	return t.domain
}

// WithDomain returns a tagger sharing the lexical model with a different domain model.
func (t *Tagger) WithDomain(domain *DomainModel) *Tagger {
	return &Tagger{domain: domain, lexical: t.lexical}
}

// Tag runs the domain pass then the lexical pass over every word of rawQuery.
// Tags accumulate per word. Returns nil when no word received a tag.
func (t *Tagger) Tag(rawQuery string) TaggedWords {
	tokens := tokenize(rawQuery)
	if len(tokens) == 0 {
		return nil
	}

	passes := []func([]string) [][]Tag{
		t.domain.label,
		t.lexicalPass,
	}

	out := TaggedWords{}
	for _, pass := range passes {
		labels := pass(tokens)
		for i, tags := range labels {
			if len(tags) == 0 {
				continue
			}
			out[tokens[i]] = out[tokens[i]].with(tags...)
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func (t *Tagger) lexicalPass(tokens []string) [][]Tag {
	labels := make([][]Tag, len(tokens))
	for i, tok := range tokens {
		for _, tag := range t.lexical.lookup(tok) {
			if lexicalAllowList[tag] {
				labels[i] = append(labels[i], tag)
			}
		}
	}
	return labels
}

// tokenize splits on anything that is not a letter, digit or apostrophe.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

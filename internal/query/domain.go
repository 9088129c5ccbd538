package query

import (
	_ "embed"
	"encoding/json"
	"os"
	"strings"

	snowballeng "github.com/kljensen/snowball/english"

	"github.com/shubhsaxena/nearby-assistant/internal/apperrors"
	"github.com/shubhsaxena/nearby-assistant/internal/taxonomy"
)

var domainTags = map[Tag]bool{
	TagNone:     true,
	TagTaste:    true,
	TagCategory: true,
	TagPlace:    true,
}

// DomainModel labels words and phrases with the closed set NONE, TASTE,
// CATEGORY and PLACE. Phrases are matched as contiguous stemmed tokens.
// A DomainModel is never mutated after construction.
type DomainModel struct {
	phrases map[string][]phraseLabel
}

type phraseLabel struct {
	stems []string
	tag   Tag
}

//go:embed lexicon/domain.json
var defaultDomain []byte

func NewDomainModel() *DomainModel {
	return &DomainModel{phrases: make(map[string][]phraseLabel)}
}

// DefaultDomainModel seeds the connective words and common tastes bundled with the binary.
func DefaultDomainModel() (*DomainModel, error) {
	return NewDomainModel().Merge(defaultDomain)
}

// FromTaxonomy labels every parent name and category label as CATEGORY.
func (m *DomainModel) FromTaxonomy(table *taxonomy.Table) *DomainModel {
	return m.with(table.Labels(), TagCategory)
}

func (m *DomainModel) WithTastes(titles []string) *DomainModel {
	return m.with(titles, TagTaste)
}

func (m *DomainModel) WithPlaces(names []string) *DomainModel {
	return m.with(names, TagPlace)
}

// LoadFile merges a JSON object of phrase to tag into a copy of the model.
func (m *DomainModel) LoadFile(path string) (*DomainModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.ModelLoadFailure("reading domain model "+path, err)
	}
	return m.Merge(data)
}

// Merge adds a JSON object of phrase to tag into a copy of the model.
func (m *DomainModel) Merge(data []byte) (*DomainModel, error) {
	var raw map[string]Tag
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.ModelLoadFailure("parsing domain model", err)
	}

	out := m.clone()
	for phrase, tag := range raw {
		if !domainTags[tag] {
			return nil, apperrors.ModelLoadFailure("domain model tag "+string(tag)+" outside the domain label set", nil)
		}
		out.add(phrase, tag)
	}
	return out, nil
}

func (m *DomainModel) with(phrases []string, tag Tag) *DomainModel {
	out := m.clone()
	for _, p := range phrases {
		out.add(p, tag)
	}
	return out
}

func (m *DomainModel) clone() *DomainModel {
	out := NewDomainModel()
	for k, v := range m.phrases {
		cp := make([]phraseLabel, len(v))
		copy(cp, v)
		out.phrases[k] = cp
	}
	return out
}

func (m *DomainModel) add(phrase string, tag Tag) {
	stems := stemAll(tokenize(phrase))
	if len(stems) == 0 {
		return
	}
	first := stems[0]
	for _, existing := range m.phrases[first] {
		if existing.tag == tag && equalStrings(existing.stems, stems) {
			return
		}
	}
	m.phrases[first] = append(m.phrases[first], phraseLabel{stems: stems, tag: tag})
}

// label returns, per token, the tags of every phrase covering that token.
func (m *DomainModel) label(tokens []string) [][]Tag {
	stems := stemAll(tokens)
	labels := make([][]Tag, len(tokens))
	for i := range stems {
		for _, p := range m.phrases[stems[i]] {
			if i+len(p.stems) > len(stems) || !equalStrings(stems[i:i+len(p.stems)], p.stems) {
				continue
			}
			for j := i; j < i+len(p.stems); j++ {
				labels[j] = append(labels[j], p.tag)
			}
		}
	}
	return labels
}

func stem(word string) string {
	return snowballeng.Stem(strings.ToLower(word), false)
}

func stemAll(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = stem(tok)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

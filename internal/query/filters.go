package query

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shubhsaxena/nearby-assistant/internal/taxonomy"
)

const (
	nearbyRadius   = 1000
	priceCheap     = 2
	priceModerate  = 3
	priceExpensive = 3
)

// FilterExtractor applies rule-based extraction to raw captions. None of its
// methods fail: a missing filter is reported as not found.
type FilterExtractor struct {
	table *taxonomy.Table

	// AbortOnUnmatchedParent keeps the all-or-nothing category gate: code
	// extraction yields nothing unless every parent name occurs in the raw query.
	AbortOnUnmatchedParent bool
}

func NewFilterExtractor(table *taxonomy.Table, abortOnUnmatchedParent bool) *FilterExtractor {
	return &FilterExtractor{table: table, AbortOnUnmatchedParent: abortOnUnmatchedParent}
}

func (e *FilterExtractor) Radius(rawQuery string) (float64, bool) {
	if strings.Contains(rawQuery, "nearby") || strings.Contains(rawQuery, "near me") {
		return nearbyRadius, true
	}
	return 0, false
}

func hasPriceNegation(rawQuery string) bool {
	return strings.Contains(rawQuery, "not expensive") || strings.Contains(rawQuery, "not that expensive")
}

func (e *FilterExtractor) MinPrice(rawQuery string) (int, bool) {
	if strings.Contains(rawQuery, "expensive") && !hasPriceNegation(rawQuery) {
		return priceExpensive, true
	}
	return 0, false
}

func (e *FilterExtractor) MaxPrice(rawQuery string) (int, bool) {
	if strings.Contains(rawQuery, "cheap") {
		return priceCheap, true
	}
	if hasPriceNegation(rawQuery) {
		return priceModerate, true
	}
	return 0, false
}

func (e *FilterExtractor) OpenNow(rawQuery string) (bool, bool) {
	if strings.Contains(rawQuery, "open now") {
		return true, true
	}
	return false, false
}

// OpenAt is not inferred from text.
func (e *FilterExtractor) OpenAt(rawQuery string) (string, bool) {
	return "", false
}

// NearLocation returns the lowercased phrase after the last "near". A dangling
// "near" or a phrase ending in a digit or symbol yields nothing.
func (e *FilterExtractor) NearLocation(rawQuery string) (string, bool) {
	if !strings.Contains(rawQuery, "near") {
		return "", false
	}
	segments := strings.Split(strings.ToLower(rawQuery), "near")
	last := segments[len(segments)-1]
	if last == "" {
		return "", false
	}
	r, _ := utf8.DecodeLastRuneInString(last)
	if !unicode.IsLetter(r) && !unicode.IsSpace(r) && !unicode.IsPunct(r) {
		return "", false
	}
	phrase := strings.TrimSpace(last)
	if phrase == "" {
		return "", false
	}
	return phrase, true
}

// CategoryCodes maps the caption onto taxonomy codes. Returns nil when nothing matched.
func (e *FilterExtractor) CategoryCodes(rawQuery string, tags TaggedWords) []string {
	if e.table == nil || e.table.Len() == 0 {
		return nil
	}
	prefix := strings.ToLower(strings.TrimSpace(beforeNear(rawQuery)))

	var codes []string
	if e.AbortOnUnmatchedParent {
		for _, parent := range e.table.Parents() {
			if !strings.Contains(rawQuery, parent.Name) {
				return nil
			}
			for _, entry := range parent.Entries {
				codes = append(codes, entry.Code)
			}
		}
		return dedupe(codes)
	}

	if prefix == "" {
		return nil
	}
	for _, parent := range e.table.Parents() {
		if strings.Contains(prefix, strings.ToLower(parent.Name)) {
			for _, entry := range parent.Entries {
				codes = append(codes, entry.Code)
			}
		}
	}
	codes = append(codes, e.table.CodesForLabel(prefix)...)
	for word, set := range tags {
		if set.Contains(TagCategory) {
			codes = append(codes, e.table.CodesForLabel(word)...)
		}
	}
	return dedupe(codes)
}

// ParsedQuery rebuilds the caption from the words worth searching for and
// returns the part before "near". Without tags the raw query is returned.
func (e *FilterExtractor) ParsedQuery(rawQuery string, tags TaggedWords) string {
	if tags == nil {
		return rawQuery
	}

	keep := make(map[string]bool, len(tags))
	for word, set := range tags {
		switch {
		case set.Contains(TagNone),
			set.Contains(TagTaste),
			set.Contains(TagCategory),
			set.Contains(TagPlace) && !set.Contains(TagPlaceName),
			set.Contains(TagNoun),
			set.Contains(TagAdjective):
			keep[word] = true
		}
	}

	var parts []string
	for _, component := range strings.Fields(rawQuery) {
		if keep[component] || strings.IndexFunc(component, unicode.IsPunct) >= 0 {
			parts = append(parts, component)
		}
	}

	parsed := strings.TrimSpace(strings.Join(parts, " "))
	if parsed == "" {
		parsed = rawQuery
	}
	return strings.TrimSpace(beforeNear(parsed))
}

func beforeNear(s string) string {
	if i := strings.Index(s, "near"); i >= 0 {
		return s[:i]
	}
	return s
}

func dedupe(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

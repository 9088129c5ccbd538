package taxonomy

import (
	"strings"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
)

var sectionKeywords = []struct {
	section  models.Section
	keywords []string
}{
	{models.SectionCoffee, []string{"coffee", "cafe", "café", "espresso", "tea room", "bakery"}},
	{models.SectionDrinks, []string{"bar", "pub", "brewery", "winery", "cocktail", "nightlife", "lounge", "wine"}},
	{models.SectionFood, []string{"restaurant", "food", "dining", "pizza", "burger", "sushi", "taco", "diner", "bistro", "steakhouse", "eat"}},
	{models.SectionShopping, []string{"shop", "store", "retail", "market", "boutique", "mall"}},
	{models.SectionArts, []string{"art", "museum", "gallery", "theater", "theatre", "music", "entertainment", "cinema"}},
	{models.SectionOutdoors, []string{"park", "trail", "outdoor", "beach", "garden", "landmark", "hiking", "sports", "recreation"}},
	{models.SectionSightseeing, []string{"sightseeing", "monument", "historic", "tour", "attraction", "travel"}},
	{models.SectionTrending, []string{"trending", "popular now"}},
}

// SectionFor maps a title to a browse section: exact section name first, then
// keyword lookup, then top picks.
func SectionFor(title string) models.Section {
	if s, ok := models.ParseSection(title); ok {
		return s
	}
	lower := strings.ToLower(strings.TrimSpace(title))
	if lower == "" {
		return models.SectionTopPicks
	}
	for _, sk := range sectionKeywords {
		for _, kw := range sk.keywords {
			if containsWord(lower, kw) {
				return sk.section
			}
		}
	}
	return models.SectionTopPicks
}

// containsWord matches kw at a word start so "art" does not match "party".
func containsWord(text, kw string) bool {
	for i := 0; ; {
		j := strings.Index(text[i:], kw)
		if j < 0 {
			return false
		}
		pos := i + j
		if pos == 0 || !isLetter(text[pos-1]) {
			return true
		}
		i = pos + 1
		if i >= len(text) {
			return false
		}
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

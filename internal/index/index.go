// Package index provides constant-time lookups over the latest set of results
// shown to the user. Every Update rebuilds the whole index; nothing from a
// previous snapshot survives it.
package index

import (
	"strings"
	"sync/atomic"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/observability"
)

// Snapshot is the full set of results to index.
type Snapshot struct {
	PlaceResults          []models.ChatResult
	RecommendedResults    []models.ChatResult
	RelatedResults        []models.ChatResult
	IndustryResults       []models.CategoryResult
	TasteResults          []models.CategoryResult
	CachedCategoryResults []models.CategoryResult
	CachedPlaceResults    []models.CategoryResult
	CachedTasteResults    []models.CategoryResult
	RecommendationData    []models.RecommendationData
	Locations             []models.LocationResult
}

type built struct {
	snapshot Snapshot

	places      map[string]models.ChatResult
	recommended map[string]models.ChatResult
	related     map[string]models.ChatResult
	byFsqID     map[string]models.ChatResult

	industryChat      map[string]models.ChatResult
	industryChatTitle map[string]models.ChatResult
	industryCategory  map[string]models.CategoryResult
	tasteCategory     map[string]models.CategoryResult

	cachedCategory   map[string]models.CategoryResult
	cachedPlace      map[string]models.CategoryResult
	cachedTaste      map[string]models.CategoryResult
	cachedTasteTitle map[string]models.CategoryResult
	cachedChat       map[string]models.ChatResult
	recommendation   map[string]models.RecommendationData
	locations        map[string]models.LocationResult
	locationsByID    map[string]models.LocationResult
}

// ResultIndex is safe for concurrent use. Readers see either the previous or
// the next snapshot, never a mix.
type ResultIndex struct {
	current atomic.Pointer[built]
}

func New() *ResultIndex {
	return &ResultIndex{}
}

func (x *ResultIndex) Update(s Snapshot) {
	b := &built{snapshot: s}

	b.places = chatByID(s.PlaceResults)
	b.recommended = chatByID(s.RecommendedResults)
	b.related = chatByID(s.RelatedResults)

	b.byFsqID = make(map[string]models.ChatResult)
	for _, r := range s.RecommendedResults {
		putChat(b.byFsqID, r.FsqID(), r)
	}
	for _, r := range s.PlaceResults {
		putChat(b.byFsqID, r.FsqID(), r)
	}

	b.industryChat = make(map[string]models.ChatResult)
	b.industryChatTitle = make(map[string]models.ChatResult)
	b.industryCategory = make(map[string]models.CategoryResult)
	for _, parent := range s.IndustryResults {
		for _, c := range append([]models.CategoryResult{parent}, parent.Children...) {
			putCategory(b.industryCategory, c.ID, c)
			for _, r := range c.ChatResults {
				putChat(b.industryChat, r.ID, r)
				putChat(b.industryChat, r.ParentID, r)
				putChat(b.industryChatTitle, fold(r.Title), r)
			}
		}
	}

	b.tasteCategory = categoryByID(s.TasteResults)
	b.cachedCategory = categoryByID(s.CachedCategoryResults)
	b.cachedPlace = categoryByID(s.CachedPlaceResults)
	b.cachedTaste = categoryByID(s.CachedTasteResults)

	b.cachedTasteTitle = make(map[string]models.CategoryResult, len(s.CachedTasteResults))
	for _, c := range s.CachedTasteResults {
		putCategory(b.cachedTasteTitle, fold(c.ParentCategory), c)
	}

	b.cachedChat = make(map[string]models.ChatResult)
	for _, group := range [][]models.CategoryResult{s.CachedCategoryResults, s.CachedPlaceResults, s.CachedTasteResults} {
		for _, c := range group {
			putChat(b.cachedChat, c.ID, cachedChatResult(c))
		}
	}

	b.recommendation = make(map[string]models.RecommendationData, len(s.RecommendationData))
	for _, d := range s.RecommendationData {
		if _, ok := b.recommendation[d.Identity]; !ok && d.Identity != "" {
			b.recommendation[d.Identity] = d
		}
	}

	b.locations = make(map[string]models.LocationResult, len(s.Locations))
	b.locationsByID = make(map[string]models.LocationResult, len(s.Locations))
	for _, l := range s.Locations {
		if key := fold(l.Name); key != "" {
			if _, ok := b.locations[key]; !ok {
				b.locations[key] = l
			}
		}
		if _, ok := b.locationsByID[l.ID]; !ok && l.ID != "" {
			b.locationsByID[l.ID] = l
		}
	}

	x.current.Store(b)

	observability.ResultIndexSize.WithLabelValues("place").Set(float64(len(b.places)))
	observability.ResultIndexSize.WithLabelValues("recommended").Set(float64(len(b.recommended)))
	observability.ResultIndexSize.WithLabelValues("related").Set(float64(len(b.related)))
	observability.ResultIndexSize.WithLabelValues("industry").Set(float64(len(b.industryCategory)))
	observability.ResultIndexSize.WithLabelValues("cached").Set(float64(len(b.cachedChat)))
}

// Snapshot returns the indexed results. An unbuilt index returns the zero value.
func (x *ResultIndex) Snapshot() Snapshot {
	if b := x.current.Load(); b != nil {
		return b.snapshot
	}
	return Snapshot{}
}

// ChatResult looks an id up among recommended, then plain, then related results.
func (x *ResultIndex) ChatResult(id string) (models.ChatResult, bool) {
	b := x.current.Load()
	if b == nil {
		return models.ChatResult{}, false
	}
	for _, m := range []map[string]models.ChatResult{b.recommended, b.places, b.related} {
		if r, ok := m[id]; ok {
			return r, true
		}
	}
	return models.ChatResult{}, false
}

func (x *ResultIndex) PlaceChatResult(fsqID string) (models.ChatResult, bool) {
	return lookupChat(x.current.Load(), func(b *built) map[string]models.ChatResult { return b.byFsqID }, fsqID)
}

// IndustryChatResult matches a title case-insensitively.
func (x *ResultIndex) IndustryChatResult(title string) (models.ChatResult, bool) {
	return lookupChat(x.current.Load(), func(b *built) map[string]models.ChatResult { return b.industryChatTitle }, fold(title))
}

// IndustryChatResultByID accepts a chat result id or its parent category id.
func (x *ResultIndex) IndustryChatResultByID(id string) (models.ChatResult, bool) {
	return lookupChat(x.current.Load(), func(b *built) map[string]models.ChatResult { return b.industryChat }, id)
}

// CategoryResult finds an industry category, children included.
func (x *ResultIndex) CategoryResult(id string) (models.CategoryResult, bool) {
	return lookupCategory(x.current.Load(), func(b *built) map[string]models.CategoryResult { return b.industryCategory }, id)
}

func (x *ResultIndex) TasteCategoryResult(id string) (models.CategoryResult, bool) {
	return lookupCategory(x.current.Load(), func(b *built) map[string]models.CategoryResult { return b.tasteCategory }, id)
}

func (x *ResultIndex) TasteChatResult(id string) (models.ChatResult, bool) {
	c, ok := x.TasteCategoryResult(id)
	if !ok || len(c.ChatResults) == 0 {
		return models.ChatResult{}, false
	}
	return c.ChatResults[0], true
}

func (x *ResultIndex) CachedCategoryResult(id string) (models.CategoryResult, bool) {
	return lookupCategory(x.current.Load(), func(b *built) map[string]models.CategoryResult { return b.cachedCategory }, id)
}

func (x *ResultIndex) CachedPlaceResult(id string) (models.CategoryResult, bool) {
	return lookupCategory(x.current.Load(), func(b *built) map[string]models.CategoryResult { return b.cachedPlace }, id)
}

func (x *ResultIndex) CachedTasteResult(id string) (models.CategoryResult, bool) {
	return lookupCategory(x.current.Load(), func(b *built) map[string]models.CategoryResult { return b.cachedTaste }, id)
}

func (x *ResultIndex) CachedTasteResultByTitle(title string) (models.CategoryResult, bool) {
	return lookupCategory(x.current.Load(), func(b *built) map[string]models.CategoryResult { return b.cachedTasteTitle }, fold(title))
}

// CachedChatResult returns the first chat result of a cached category, or a
// synthetic one built from the category when it has none.
func (x *ResultIndex) CachedChatResult(id string) (models.ChatResult, bool) {
	return lookupChat(x.current.Load(), func(b *built) map[string]models.ChatResult { return b.cachedChat }, id)
}

func (x *ResultIndex) RecommendationData(identity string) (models.RecommendationData, bool) {
	b := x.current.Load()
	if b == nil {
		return models.RecommendationData{}, false
	}
	d, ok := b.recommendation[identity]
	return d, ok
}

// LocationResult matches a location name case-insensitively.
func (x *ResultIndex) LocationResult(title string) (models.LocationResult, bool) {
	b := x.current.Load()
	if b == nil {
		return models.LocationResult{}, false
	}
	l, ok := b.locations[fold(title)]
	return l, ok
}

func (x *ResultIndex) LocationResultByID(id string) (models.LocationResult, bool) {
	b := x.current.Load()
	if b == nil {
		return models.LocationResult{}, false
	}
	l, ok := b.locationsByID[id]
	return l, ok
}

func lookupChat(b *built, pick func(*built) map[string]models.ChatResult, key string) (models.ChatResult, bool) {
	if b == nil {
		return models.ChatResult{}, false
	}
	r, ok := pick(b)[key]
	return r, ok
}

func lookupCategory(b *built, pick func(*built) map[string]models.CategoryResult, key string) (models.CategoryResult, bool) {
	if b == nil {
		return models.CategoryResult{}, false
	}
	c, ok := pick(b)[key]
	return c, ok
}

func cachedChatResult(c models.CategoryResult) models.ChatResult {
	if len(c.ChatResults) > 0 {
		return c.ChatResults[0]
	}
	return models.ChatResult{
		ID:       c.ID,
		ParentID: c.ID,
		Identity: c.ParentCategory,
		Title:    c.ParentCategory,
		List:     c.List,
		Icon:     c.Icon,
		Rating:   c.Rating,
		Section:  c.Section,
	}
}

func chatByID(results []models.ChatResult) map[string]models.ChatResult {
	m := make(map[string]models.ChatResult, len(results))
	for _, r := range results {
		putChat(m, r.ID, r)
	}
	return m
}

func categoryByID(results []models.CategoryResult) map[string]models.CategoryResult {
	m := make(map[string]models.CategoryResult, len(results))
	for _, c := range results {
		putCategory(m, c.ID, c)
	}
	return m
}

// First entry for a key wins; empty keys are never indexed.
func putChat(m map[string]models.ChatResult, key string, r models.ChatResult) {
	if key == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = r
	}
}

func putCategory(m map[string]models.CategoryResult, key string, c models.CategoryResult) {
	if key == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = c
	}
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

package models

import "strings"

type Section string

const (
	SectionFood        Section = "Food"
	SectionDrinks      Section = "Drinks"
	SectionCoffee      Section = "Coffee"
	SectionShopping    Section = "Shopping"
	SectionArts        Section = "Arts"
	SectionOutdoors    Section = "Outdoors"
	SectionSightseeing Section = "Sightseeing"
	SectionTrending    Section = "Trending places"
	SectionTopPicks    Section = "Popular places"
)

func Sections() []Section {
	return []Section{
		SectionFood,
		SectionDrinks,
		SectionCoffee,
		SectionShopping,
		SectionArts,
		SectionOutdoors,
		SectionSightseeing,
		SectionTrending,
		SectionTopPicks,
	}
}

// ParseSection matches a section name case-insensitively. Unknown names map to top picks.
func ParseSection(s string) (Section, bool) {
	for _, section := range Sections() {
		if strings.EqualFold(string(section), strings.TrimSpace(s)) {
			return section, true
		}
	}
	return SectionTopPicks, false
}

type ChatResult struct {
	ID          string         `json:"id"`
	ParentID    string         `json:"parent_id,omitempty"`
	Index       int            `json:"index"`
	Identity    string         `json:"identity"`
	Title       string         `json:"title"`
	List        string         `json:"list,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	Rating      float64        `json:"rating"`
	Section     Section        `json:"section"`
	Place       *PlaceResponse `json:"place,omitempty"`
	Recommended *PlaceResponse `json:"recommended,omitempty"`
	Details     *PlaceDetails  `json:"details,omitempty"`
}

// FsqID returns the provider identifier, preferring the plain place response.
func (c ChatResult) FsqID() string {
	if c.Place != nil && c.Place.FsqID != "" {
		return c.Place.FsqID
	}
	if c.Recommended != nil {
		return c.Recommended.FsqID
	}
	return ""
}

type CategoryResult struct {
	ID             string           `json:"id"`
	ParentCategory string           `json:"parent_category"`
	List           string           `json:"list,omitempty"`
	Icon           string           `json:"icon,omitempty"`
	Rating         float64          `json:"rating"`
	Section        Section          `json:"section"`
	ChatResults    []ChatResult     `json:"chat_results,omitempty"`
	Children       []CategoryResult `json:"children,omitempty"`
}

type RecommendationData struct {
	Identity  string  `json:"identity"`
	Attribute string  `json:"attribute"`
	Rating    float64 `json:"rating"`
}

type CacheGroup string

const (
	GroupCategory CacheGroup = "Category"
	GroupTaste    CacheGroup = "Taste"
	GroupPlace    CacheGroup = "Place"
	GroupLocation CacheGroup = "Location"
)

func CacheGroups() []CacheGroup {
	return []CacheGroup{GroupCategory, GroupTaste, GroupPlace, GroupLocation}
}

func ParseCacheGroup(s string) (CacheGroup, bool) {
	for _, g := range CacheGroups() {
		if strings.EqualFold(string(g), s) {
			return g, true
		}
	}
	return "", false
}

type CachedRecord struct {
	RecordID string     `json:"record_id" firestore:"record_id"`
	Group    CacheGroup `json:"group" firestore:"group"`
	Identity string     `json:"identity" firestore:"identity"`
	Title    string     `json:"title" firestore:"title"`
	Icons    string     `json:"icons,omitempty" firestore:"icons"`
	List     string     `json:"list,omitempty" firestore:"list"`
	Section  string     `json:"section,omitempty" firestore:"section"`
	Rating   float64    `json:"rating" firestore:"rating"`
}

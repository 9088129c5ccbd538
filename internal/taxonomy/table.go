// Package taxonomy holds the immutable category code table built from the
// integrated category taxonomy. A Table is built once and shared by reference;
// changing it means building a new one.
package taxonomy

import (
	"sort"
	"strings"
)

// skippedParent is the provider's umbrella label; it carries no searchable category.
const skippedParent = "Foursquare Places"

type RawEntry struct {
	FullLabel []string `json:"full_label"`
}

type Entry struct {
	Category string `json:"category"`
	Code     string `json:"code"`
}

type Parent struct {
	Name    string  `json:"name"`
	Entries []Entry `json:"entries"`
}

type Table struct {
	parents  []Parent
	byParent map[string]int
	byLabel  map[string][]string
}

// Build merges raw taxonomy entries by parent label. The first label of the
// path is the parent, the last is the category, the key is the code.
// Entries within a parent are sorted by category label, parents by name.
func Build(raw map[string]RawEntry) *Table {
	merged := make(map[string][]Entry)
	for code, entry := range raw {
		if len(entry.FullLabel) == 0 {
			continue
		}
		parent := entry.FullLabel[0]
		category := entry.FullLabel[len(entry.FullLabel)-1]
		if parent == skippedParent {
			continue
		}
		merged[parent] = append(merged[parent], Entry{Category: category, Code: code})
	}

	parents := make([]Parent, 0, len(merged))
	for name, entries := range merged {
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Category == entries[j].Category {
				return entries[i].Code < entries[j].Code
			}
			return entries[i].Category < entries[j].Category
		})
		parents = append(parents, Parent{Name: name, Entries: entries})
	}
	sort.Slice(parents, func(i, j int) bool { return parents[i].Name < parents[j].Name })

	return newTable(parents)
}

func newTable(parents []Parent) *Table {
	t := &Table{
		parents:  parents,
		byParent: make(map[string]int, len(parents)),
		byLabel:  make(map[string][]string),
	}
	for i, p := range parents {
		t.byParent[normalize(p.Name)] = i
		for _, e := range p.Entries {
			key := normalize(e.Category)
			t.byLabel[key] = append(t.byLabel[key], e.Code)
		}
	}
	return t
}

// Parents returns a copy of the sorted parent list.
func (t *Table) Parents() []Parent {
	if t == nil {
		return nil
	}
	out := make([]Parent, len(t.parents))
	for i, p := range t.parents {
		entries := make([]Entry, len(p.Entries))
		copy(entries, p.Entries)
		out[i] = Parent{Name: p.Name, Entries: entries}
	}
	return out
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.parents)
}

// HasParent matches a parent name case-insensitively after trimming.
func (t *Table) HasParent(name string) bool {
	if t == nil {
		return false
	}
	_, ok := t.byParent[normalize(name)]
	return ok
}

// HasCategory matches a category label case-insensitively after trimming.
func (t *Table) HasCategory(label string) bool {
	if t == nil {
		return false
	}
	_, ok := t.byLabel[normalize(label)]
	return ok
}

// Codes returns every code under the named parent, in table order.
func (t *Table) Codes(parent string) []string {
	if t == nil {
		return nil
	}
	i, ok := t.byParent[normalize(parent)]
	if !ok {
		return nil
	}
	codes := make([]string, 0, len(t.parents[i].Entries))
	for _, e := range t.parents[i].Entries {
		codes = append(codes, e.Code)
	}
	return codes
}

// CodesForLabel returns the codes of every entry whose category label equals label.
func (t *Table) CodesForLabel(label string) []string {
	if t == nil {
		return nil
	}
	codes := t.byLabel[normalize(label)]
	out := make([]string, len(codes))
	copy(out, codes)
	return out
}

// Labels returns every category label in the table, parents first.
func (t *Table) Labels() []string {
	if t == nil {
		return nil
	}
	var labels []string
	for _, p := range t.parents {
		labels = append(labels, p.Name)
		for _, e := range p.Entries {
			labels = append(labels, e.Category)
		}
	}
	return labels
}

// Equal reports whether two tables hold the same parents and entries in the
// same order. A nil table equals any empty one.
func (t *Table) Equal(other *Table) bool {
	if t.Len() != other.Len() {
		return false
	}
	if t.Len() == 0 {
		return true
	}
	for i := range t.parents {
		a, b := t.parents[i], other.parents[i]
		if a.Name != b.Name || len(a.Entries) != len(b.Entries) {
			return false
		}
		for j := range a.Entries {
			if a.Entries[j] != b.Entries[j] {
				return false
			}
		}
	}
	return true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

package taxonomy

import (
	"github.com/google/uuid"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
)

var categoryNamespace = uuid.MustParse("6f1c2d3e-8a4b-4c5d-9e6f-7a8b9c0d1e2f")

// ResultID derives a stable result id so the same label keeps its id across rebuilds.
func ResultID(kind, label string) string {
	return uuid.NewSHA1(categoryNamespace, []byte(kind+":"+label)).String()
}

// CategoryResults builds the industry tree: one result per parent with one
// child per entry. Each child carries a single chat result for its label.
func (t *Table) CategoryResults() []models.CategoryResult {
	if t == nil {
		return nil
	}
	results := make([]models.CategoryResult, 0, len(t.parents))
	for _, p := range t.parents {
		parentID := ResultID("industry", p.Name)
		section := SectionFor(p.Name)

		children := make([]models.CategoryResult, 0, len(p.Entries))
		for _, e := range p.Entries {
			childID := ResultID("industry", p.Name+"/"+e.Category+"/"+e.Code)
			childSection := SectionFor(e.Category)
			if childSection == models.SectionTopPicks {
				childSection = section
			}
			children = append(children, models.CategoryResult{
				ID:             childID,
				ParentCategory: e.Category,
				List:           p.Name,
				Section:        childSection,
				ChatResults: []models.ChatResult{{
					ID:       ResultID("industry-chat", p.Name+"/"+e.Category+"/"+e.Code),
					ParentID: childID,
					Identity: e.Category,
					Title:    e.Category,
					List:     p.Name,
					Section:  childSection,
				}},
			})
		}

		results = append(results, models.CategoryResult{
			ID:             parentID,
			ParentCategory: p.Name,
			List:           p.Name,
			Section:        section,
			ChatResults: []models.ChatResult{{
				ID:       ResultID("industry-chat", p.Name),
				ParentID: parentID,
				Identity: p.Name,
				Title:    p.Name,
				List:     p.Name,
				Section:  section,
			}},
			Children: children,
		})
	}
	return results
}

package resume

import (
	"github.com/spigell/cv-matcher/internal/config"
	"github.com/spigell/cv-matcher/internal/utils"
)

// SearchTerms picks the job board query terms from an analysis: the first
// PerCategory skills of every category, then the first Roles roles. Repeats
// are dropped and the result is capped at Max.
func SearchTerms(a *Analysis, limits config.TermLimits) []string {
	if a == nil {
		return nil
	}

	var terms []string
	for _, category := range a.Categories() {
		terms = append(terms, head(a.TechnicalSkills[category], limits.PerCategory)...)
	}
	terms = append(terms, head(a.Experience.Roles, limits.Roles)...)

	terms = utils.Unique(terms)
	if limits.Max > 0 && len(terms) > limits.Max {
		terms = terms[:limits.Max]
	}

	return terms
}

func head(items []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if len(items) < n {
		return items
	}
	return items[:n]
}

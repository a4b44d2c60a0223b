package resume

import (
	"slices"
	"sort"
	"strings"

	"github.com/spigell/cv-matcher/internal/utils"
)

// Well-known technical skill categories requested from the model.
const (
	CategoryLanguages  = "programming_languages"
	CategoryFrameworks = "frameworks"
	CategoryDatabases  = "databases"
	CategoryTools      = "tools"
)

var knownCategories = []string{CategoryLanguages, CategoryFrameworks, CategoryDatabases, CategoryTools}

// Analysis is the structured profile derived from a résumé.
type Analysis struct {
	TechnicalSkills map[string][]string `json:"technical_skills"`
	SoftSkills      []string            `json:"soft_skills"`
	Experience      Experience          `json:"experience"`
	Education       Education           `json:"education"`
	Achievements    []string            `json:"achievements"`
	Certifications  []string            `json:"certifications"`
}

type Experience struct {
	Years      string   `json:"years"`
	Roles      []string `json:"roles"`
	Industries []string `json:"industries"`
}

type Education struct {
	Level        string   `json:"level"`
	Field        string   `json:"field"`
	Institutions []string `json:"institutions"`
}

// Normalize replaces missing collections with empty ones and trims every value.
// Empty entries are dropped. It returns the receiver for chaining.
func (a *Analysis) Normalize() *Analysis {
	skills := make(map[string][]string, len(a.TechnicalSkills))
	for category, items := range a.TechnicalSkills {
		category = strings.TrimSpace(category)
		if category == "" {
			continue
		}
		skills[category] = clean(items)
	}
	for _, category := range knownCategories {
		if _, ok := skills[category]; !ok {
			skills[category] = []string{}
		}
	}
	a.TechnicalSkills = skills

	a.SoftSkills = clean(a.SoftSkills)
	a.Achievements = clean(a.Achievements)
	a.Certifications = clean(a.Certifications)

	a.Experience.Years = strings.TrimSpace(a.Experience.Years)
	a.Experience.Roles = clean(a.Experience.Roles)
	a.Experience.Industries = clean(a.Experience.Industries)

	a.Education.Level = strings.TrimSpace(a.Education.Level)
	a.Education.Field = strings.TrimSpace(a.Education.Field)
	a.Education.Institutions = clean(a.Education.Institutions)

	return a
}

// Categories returns the technical skill categories: the well-known ones first
// in their canonical order, then any extra categories alphabetically.
func (a *Analysis) Categories() []string {
	result := make([]string, 0, len(a.TechnicalSkills))
	for _, category := range knownCategories {
		if _, ok := a.TechnicalSkills[category]; ok {
			result = append(result, category)
		}
	}

	extra := make([]string, 0)
	for category := range a.TechnicalSkills {
		if !slices.Contains(knownCategories, category) {
			extra = append(extra, category)
		}
	}
	sort.Strings(extra)

	return append(result, extra...)
}

// Skills returns every technical skill, ordered by category, without repeats.
func (a *Analysis) Skills() []string {
	var all []string
	for _, category := range a.Categories() {
		all = append(all, a.TechnicalSkills[category]...)
	}
	return utils.Unique(all)
}

// IsEmpty reports whether the model found nothing at all.
func (a *Analysis) IsEmpty() bool {
	for _, items := range a.TechnicalSkills {
		if len(items) > 0 {
			return false
		}
	}

	return len(a.SoftSkills) == 0 &&
		len(a.Experience.Roles) == 0 &&
		len(a.Experience.Industries) == 0 &&
		a.Experience.Years == "" &&
		a.Education.Level == "" &&
		a.Education.Field == "" &&
		len(a.Education.Institutions) == 0 &&
		len(a.Achievements) == 0 &&
		len(a.Certifications) == 0
}

// CategoryTitle turns "programming_languages" into "Programming Languages".
func CategoryTitle(category string) string {
	words := strings.FieldsFunc(category, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func clean(items []string) []string {
	result := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		result = append(result, item)
	}
	return result
}

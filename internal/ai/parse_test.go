package ai

import (
	"errors"
	"reflect"
	"testing"

	"github.com/spigell/cv-matcher/internal/resume"
)

func TestParseAnalysisFromProse(t *testing.T) {
	raw := "Sure! Here is the analysis {of your CV}:\n```json\n" + `{
  "technical_skills": {"programming_languages": ["Go", "Python"], "tools": ["Docker"]},
  "soft_skills": ["Mentoring"],
  "experience": {"years": 7, "roles": "Backend Engineer", "industries": ["Fintech"]},
  "education": {"level": "MSc", "field": "Computer Science", "institutions": ["TU Berlin"]}
}` + "\n```\nLet me know if you need more."

	analysis, err := ParseAnalysis(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(analysis.TechnicalSkills[resume.CategoryLanguages], []string{"Go", "Python"}) {
		t.Fatalf("unexpected languages: %q", analysis.TechnicalSkills[resume.CategoryLanguages])
	}
	if analysis.Experience.Years != "7" {
		t.Fatalf("expected years to be coerced to string, got %q", analysis.Experience.Years)
	}
	if !reflect.DeepEqual(analysis.Experience.Roles, []string{"Backend Engineer"}) {
		t.Fatalf("expected single role to become a list, got %q", analysis.Experience.Roles)
	}
	if analysis.Education.Field != "Computer Science" {
		t.Fatalf("unexpected education: %+v", analysis.Education)
	}

	// Keys the model omitted are present and empty.
	if analysis.Achievements == nil || analysis.Certifications == nil {
		t.Fatalf("expected empty achievements and certifications, got %+v", analysis)
	}
	if items, ok := analysis.TechnicalSkills[resume.CategoryDatabases]; !ok || len(items) != 0 {
		t.Fatalf("expected empty databases category, got %v", items)
	}
}

func TestParseAnalysisLooseShapes(t *testing.T) {
	raw := `{"technical_skills": ["Go", "Kafka"], "certifications": [{"name": "CKA", "year": 2022}], "experience": null}`

	analysis, err := ParseAnalysis(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(analysis.TechnicalSkills[otherCategory], []string{"Go", "Kafka"}) {
		t.Fatalf("expected flat skills under %q, got %v", otherCategory, analysis.TechnicalSkills)
	}
	if !reflect.DeepEqual(analysis.Certifications, []string{"CKA"}) {
		t.Fatalf("unexpected certifications: %q", analysis.Certifications)
	}
	if analysis.Experience.Roles == nil {
		t.Fatalf("expected roles to default to empty list")
	}
}

func TestParseAnalysisEmptyObject(t *testing.T) {
	analysis, err := ParseAnalysis("{}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !analysis.IsEmpty() {
		t.Fatalf("expected empty analysis, got %+v", analysis)
	}
}

func TestParseAnalysisWithoutJSON(t *testing.T) {
	for _, raw := range []string{"", "I could not read the CV.", "{broken", `["Go"]`} {
		if _, err := ParseAnalysis(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParseScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		expect int
		err    error
	}{
		{name: "fit percentage", input: "Fit: 82%", expect: 82},
		{name: "percentage after other numbers", input: "With 5 years of Go the fit is 64 %.", expect: 64},
		{name: "decimal percentage", input: "Match: 77.5%", expect: 77},
		{name: "plain integer", input: "I would rate this 90 out of 100", expect: 90},
		{name: "scale before the score", input: "On a 0-100 scale the fit is 72", expect: 72},
		{name: "scale written with to", input: "Rated from 1 to 100: 55", expect: 55},
		{name: "range only", input: "Somewhere around 60-70", expect: 60},
		{name: "clamped above", input: "Fit: 140%", expect: 100},
		{name: "overflow", input: "Fit: 99999999999999999999999%", expect: 100},
		{name: "zero is a valid score", input: "Fit: 0%", expect: 0},
		{name: "no digits", input: "Great fit!", err: ErrScoreUnparseable},
		{name: "empty", input: "", err: ErrScoreUnparseable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseScore(tt.input)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected error %v, got %v", tt.err, err)
			}
			if err == nil && got != tt.expect {
				t.Fatalf("expected %d, got %d", tt.expect, got)
			}
		})
	}
}

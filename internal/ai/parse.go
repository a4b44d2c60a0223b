package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spigell/cv-matcher/internal/resume"
)

const otherCategory = "other"

var (
	percentPattern = regexp.MustCompile(`(\d+)(?:\.\d+)?\s*%`)
	integerPattern = regexp.MustCompile(`\d+`)
	rangePattern   = regexp.MustCompile(`\d+\s*(?:-|–|\bto\b)\s*\d+`)

	skillMapType = reflect.TypeOf(map[string][]string{})
)

// ParseAnalysis decodes the first JSON object found in raw into an analysis.
// Values of a loose type are coerced where possible and missing keys become
// empty collections.
func ParseAnalysis(raw string) (*resume.Analysis, error) {
	obj, err := firstJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var analysis resume.Analysis
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       flexibleHook,
		Result:           &analysis,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}

	if err := decoder.Decode(obj); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}

	return analysis.Normalize(), nil
}

// ParseScore returns the first percentage in raw, or the first integer when
// there is no percentage, clamped to [0, 100]. Integers of a range such as
// "0-100" describe the scale and are skipped unless nothing else is left.
func ParseScore(raw string) (int, error) {
	digits := ""
	if m := percentPattern.FindStringSubmatch(raw); m != nil {
		digits = m[1]
	} else if m := integerPattern.FindString(rangePattern.ReplaceAllString(raw, " ")); m != "" {
		digits = m
	} else if m := integerPattern.FindString(raw); m != "" {
		digits = m
	}

	if digits == "" {
		return 0, fmt.Errorf("%w: no number in %q", ErrScoreUnparseable, raw)
	}

	score, err := strconv.Atoi(digits)
	if err != nil {
		// Only overflow is possible here.
		score = 100
	}

	return min(max(score, 0), 100), nil
}

func firstJSONObject(raw string) (map[string]any, error) {
	raw = stripFences(raw)

	for offset := 0; offset < len(raw); {
		idx := strings.IndexByte(raw[offset:], '{')
		if idx == -1 {
			break
		}
		start := offset + idx

		var obj map[string]any
		if err := json.NewDecoder(strings.NewReader(raw[start:])).Decode(&obj); err == nil {
			return obj, nil
		}
		offset = start + 1
	}

	return nil, errors.New("no JSON object in response")
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, "```json", "")
	raw = strings.ReplaceAll(raw, "```", "")
	return strings.TrimSpace(raw)
}

// flexibleHook accepts the shapes models tend to return instead of the schema:
// a flat skill list instead of categories and objects instead of strings.
func flexibleHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to == skillMapType && from.Kind() == reflect.Slice {
		return map[string]any{otherCategory: data}, nil
	}

	if to.Kind() == reflect.String && from.Kind() == reflect.Map {
		if m, ok := data.(map[string]any); ok {
			for _, key := range []string{"name", "title", "value"} {
				if s, ok := m[key].(string); ok {
					return s, nil
				}
			}
		}

		encoded, err := json.Marshal(data)
		if err != nil {
			return fmt.Sprintf("%v", data), nil
		}
		return string(encoded), nil
	}

	return data, nil
}

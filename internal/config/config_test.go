package config

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestRegistryUpdate(t *testing.T) {
	tests := []struct {
		name    string
		param   string
		value   string
		expect  string
		err     error
		version uint64
	}{
		{name: "model", param: "model", value: "claude", expect: "model updated to claude", version: 2},
		{name: "keywords", param: "keywords", value: "Go Developer, SRE", expect: "keywords updated to Go Developer, SRE", version: 2},
		{name: "case insensitive parameter", param: " Skills ", value: "Go", expect: "skills updated to Go", version: 2},
		{name: "unknown parameter", param: "threshold", value: "80", expect: InvalidParameter, err: ErrInvalidParameter, version: 1},
		{name: "empty list", param: "locations", value: " , ", expect: "locations must not be empty", err: ErrInvalidValue, version: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry(Builtin(), nil)

			got, err := registry.Update(tt.param, tt.value)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected error %v, got %v", tt.err, err)
			}
			if got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
			if v := registry.Current().Version(); v != tt.version {
				t.Fatalf("expected version %d, got %d", tt.version, v)
			}
		})
	}
}

func TestRegistryUpdateDoesNotMutateCapturedSnapshot(t *testing.T) {
	registry := NewRegistry(Builtin(), nil)
	captured := registry.Current()

	if _, err := registry.Update(ParamLocations, "Berlin, Remote"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := captured.Locations(); !reflect.DeepEqual(got, Builtin().Locations) {
		t.Fatalf("captured snapshot changed: %q", got)
	}

	if got := registry.Current().Locations(); !reflect.DeepEqual(got, []string{"Berlin", "Remote"}) {
		t.Fatalf("unexpected current locations: %q", got)
	}

	// Copies returned by a snapshot are detached from it.
	skills := captured.Skills()
	skills[0] = "changed"
	if captured.Skills()[0] == "changed" {
		t.Fatalf("snapshot skills must not be shared with callers")
	}
}

func TestRegistryModelValidator(t *testing.T) {
	registry := NewRegistry(Builtin(), nil, WithModelValidator(func(model string) error {
		if model != "gemini" {
			return fmt.Errorf("unsupported model %s", model)
		}
		return nil
	}))

	if _, err := registry.Update(ParamModel, "llama"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected invalid value, got %v", err)
	}

	if _, err := registry.Update(ParamModel, "Gemini"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := registry.Current().Model(); got != "gemini" {
		t.Fatalf("expected gemini, got %q", got)
	}
}

func TestDefaultsWithBuiltin(t *testing.T) {
	d := Defaults{Threshold: 80, Terms: TermLimits{Max: 3}}.WithBuiltin()

	if d.Threshold != 80 || d.Terms.Max != 3 {
		t.Fatalf("configured values must be kept: %+v", d)
	}
	if d.Terms.PerCategory != DefaultPerCategory || d.Terms.Roles != DefaultRoles {
		t.Fatalf("expected builtin term limits, got %+v", d.Terms)
	}
	if d.Model != "gpt4" || len(d.Skills) == 0 {
		t.Fatalf("expected builtin model and skills, got %+v", d)
	}

	if d := (Defaults{}).WithBuiltin(); d.Threshold != 0 {
		t.Fatalf("zero threshold must be kept, got %d", d.Threshold)
	}

	if err := (Defaults{Threshold: 101, Terms: TermLimits{Max: 1}}).Validate(); err == nil {
		t.Fatalf("expected threshold validation error")
	}
}

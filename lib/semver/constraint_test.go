// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package semver

import (
	"errors"
	"testing"

	"github.com/agenthub-foundation/agenthub/lib/registry"
)

func TestConstraintForms(t *testing.T) {
	cases := []struct {
		constraint string
		version    string
		want       bool
	}{
		// Exact.
		{"=1.2.3", "1.2.3", true},
		{"=1.2.3", "1.2.4", false},
		{"1.2.3", "1.2.3", true},
		{"1.2.3", "1.3.0", false},
		{"=1.0.0-rc.1", "1.0.0-rc.1", true},

		// Caret: compatible within the leading non-zero component.
		{"^1.2.3", "1.2.3", true},
		{"^1.2.3", "1.9.0", true},
		{"^1.2.3", "2.0.0", false},
		{"^1.2.3", "1.2.2", false},
		{"^0.2.3", "0.2.9", true},
		{"^0.2.3", "0.3.0", false},

		// Tilde: compatible within the same minor.
		{"~1.2.3", "1.2.9", true},
		{"~1.2.3", "1.3.0", false},
		{"~1.2.3", "1.2.2", false},

		// Explicit ranges.
		{">=1.2.0 <2.0.0", "1.5.0", true},
		{">=1.2.0 <2.0.0", "2.0.0", false},
		{">=1.2.0, <2.0.0", "1.2.0", true},
		{"1.2.0 - 1.4.5", "1.4.5", true},
		{"1.2.0 - 1.4.5", "1.5.0", false},

		// Pre-releases do not satisfy stable constraints.
		{"^1.0.0", "1.1.0-rc.1", false},
	}

	for _, tc := range cases {
		got, err := Satisfies(tc.version, tc.constraint)
		if err != nil {
			t.Errorf("Satisfies(%q, %q) failed: %v", tc.version, tc.constraint, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Satisfies(%q, %q) = %v, want %v", tc.version, tc.constraint, got, tc.want)
		}
	}
}

func TestParseConstraintInvalid(t *testing.T) {
	for _, text := range []string{"", "   ", "banana", ">=", "^x.y.z", "1.2.3 &&"} {
		_, err := ParseConstraint(text)
		if err == nil {
			t.Errorf("ParseConstraint(%q) succeeded, want error", text)
			continue
		}
		var validationErr *registry.ValidationError
		if !errors.As(err, &validationErr) {
			t.Errorf("ParseConstraint(%q) returned %T, want *registry.ValidationError", text, err)
		}
	}
}

func TestMaxSatisfying(t *testing.T) {
	candidates := []*Version{
		MustParse("0.9.0"),
		MustParse("1.2.0"),
		MustParse("1.4.2"),
		MustParse("2.0.0"),
	}

	c, err := ParseConstraint("^1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	best := MaxSatisfying(candidates, c)
	if best == nil || best.String() != "1.4.2" {
		t.Errorf("MaxSatisfying(^1.0.0) = %v, want 1.4.2", best)
	}

	none, err := ParseConstraint("^3.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if got := MaxSatisfying(candidates, none); got != nil {
		t.Errorf("MaxSatisfying(^3.0.0) = %v, want nil", got)
	}
}

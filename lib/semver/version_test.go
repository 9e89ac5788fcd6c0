// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package semver

import (
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/agenthub-foundation/agenthub/lib/registry"
)

func TestParseValid(t *testing.T) {
	cases := []struct {
		text       string
		major      uint64
		minor      uint64
		patch      uint64
		prerelease string
	}{
		{"0.0.1", 0, 0, 1, ""},
		{"1.2.3", 1, 2, 3, ""},
		{"10.20.30", 10, 20, 30, ""},
		{"1.0.0-alpha", 1, 0, 0, "alpha"},
		{"1.0.0-alpha.1", 1, 0, 0, "alpha.1"},
		{"1.0.0-rc.1+build.5", 1, 0, 0, "rc.1"},
		{"2.0.0+20130313144700", 2, 0, 0, ""},
	}

	for _, tc := range cases {
		v, err := Parse(tc.text)
		if err != nil {
			t.Errorf("Parse(%q) failed: %v", tc.text, err)
			continue
		}
		if v.Major() != tc.major || v.Minor() != tc.minor || v.Patch() != tc.patch {
			t.Errorf("Parse(%q) = %d.%d.%d, want %d.%d.%d",
				tc.text, v.Major(), v.Minor(), v.Patch(), tc.major, tc.minor, tc.patch)
		}
		if v.Prerelease() != tc.prerelease {
			t.Errorf("Parse(%q).Prerelease() = %q, want %q", tc.text, v.Prerelease(), tc.prerelease)
		}
		if v.String() != tc.text {
			t.Errorf("Parse(%q).String() = %q, want the input back", tc.text, v.String())
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, text := range []string{
		"", "1", "1.2", "v1.2.3", "1.2.3.4", "1.2.x",
		"one.two.three", "1.2.3-", "1.2.-3", " 1.2.3",
	} {
		_, err := Parse(text)
		if err == nil {
			t.Errorf("Parse(%q) succeeded, want error", text)
			continue
		}
		var validationErr *registry.ValidationError
		if !errors.As(err, &validationErr) {
			t.Errorf("Parse(%q) returned %T, want *registry.ValidationError", text, err)
		}
	}
}

func TestCompareOrdering(t *testing.T) {
	// Ascending per semantic-version precedence, including the
	// pre-release rules: 1.0.0-alpha < 1.0.0-alpha.1 < 1.0.0-alpha.beta
	// < 1.0.0-beta < 1.0.0-beta.2 < 1.0.0-beta.11 < 1.0.0-rc.1 < 1.0.0.
	ascending := []string{
		"0.0.9",
		"0.1.0",
		"0.5.0",
		"1.0.0-alpha",
		"1.0.0-alpha.1",
		"1.0.0-alpha.beta",
		"1.0.0-beta",
		"1.0.0-beta.2",
		"1.0.0-beta.11",
		"1.0.0-rc.1",
		"1.0.0",
		"1.0.1",
		"1.1.0",
		"2.0.0",
	}

	for i := range ascending {
		for j := range ascending {
			got, err := Compare(ascending[i], ascending[j])
			if err != nil {
				t.Fatalf("Compare(%q, %q) failed: %v", ascending[i], ascending[j], err)
			}
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			if got != want {
				t.Errorf("Compare(%q, %q) = %d, want %d", ascending[i], ascending[j], got, want)
			}
		}
	}
}

func TestBuildMetadataIgnoredForOrdering(t *testing.T) {
	got, err := Compare("1.0.0+build.1", "1.0.0+build.2")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("Compare across build metadata = %d, want 0", got)
	}
}

// drawVersion generates an arbitrary valid version string.
func drawVersion(rt *rapid.T, label string) string {
	major := rapid.Uint64Range(0, 50).Draw(rt, label+"_major")
	minor := rapid.Uint64Range(0, 50).Draw(rt, label+"_minor")
	patch := rapid.Uint64Range(0, 50).Draw(rt, label+"_patch")
	text := fmt.Sprintf("%d.%d.%d", major, minor, patch)
	if rapid.Bool().Draw(rt, label+"_hasPre") {
		tag := rapid.SampledFrom([]string{"alpha", "alpha.1", "beta", "beta.11", "rc.1", "rc.2"}).Draw(rt, label+"_pre")
		text += "-" + tag
	}
	return text
}

func TestCompareIsTotalOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := MustParse(drawVersion(rt, "a"))
		b := MustParse(drawVersion(rt, "b"))
		c := MustParse(drawVersion(rt, "c"))

		// Antisymmetry.
		if a.Compare(b) != -b.Compare(a) {
			rt.Fatalf("Compare(%s, %s) = %d but Compare(%s, %s) = %d",
				a, b, a.Compare(b), b, a, b.Compare(a))
		}

		// Reflexivity.
		if a.Compare(a) != 0 {
			rt.Fatalf("Compare(%s, %s) != 0", a, a)
		}

		// Transitivity of <=.
		if a.Compare(b) <= 0 && b.Compare(c) <= 0 && a.Compare(c) > 0 {
			rt.Fatalf("transitivity violated: %s <= %s <= %s but %s > %s", a, b, c, a, c)
		}

		// Consistency with exact-match constraints: every version
		// satisfies its own exact constraint.
		ok, err := Satisfies(a.String(), "="+a.String())
		if err != nil {
			rt.Fatalf("Satisfies(%s, =%s) failed: %v", a, a, err)
		}
		if !ok {
			rt.Fatalf("Satisfies(%s, =%s) = false", a, a)
		}
	})
}

func TestMax(t *testing.T) {
	a := MustParse("1.2.3")
	b := MustParse("1.10.0")
	if Max(a, b) != b {
		t.Errorf("Max(1.2.3, 1.10.0) = %s, want 1.10.0", Max(a, b))
	}
	if Max(b, a) != b {
		t.Errorf("Max(1.10.0, 1.2.3) = %s, want 1.10.0", Max(b, a))
	}
}

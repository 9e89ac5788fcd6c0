// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package principal

import "testing"

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		pkg     string
		want    bool
	}{
		// Exact matches.
		{"exact match", "web-scraper", "web-scraper", true},
		{"exact mismatch", "web-scraper", "web-crawler", false},

		// Universal match.
		{"star matches anything", "*", "web-scraper", true},
		{"star matches single char", "*", "x", true},

		// Prefix wildcard.
		{"prefix matches", "acme-*", "acme-tools", true},
		{"prefix matches short tail", "acme-*", "acme-x", true},
		{"prefix no match", "acme-*", "web-scraper", false},
		{"prefix no match bare", "acme-*", "acme", false},

		// Question mark wildcard.
		{"question mark matches one char", "tool-?", "tool-a", true},
		{"question mark rejects two chars", "tool-?", "tool-ab", false},

		// Malformed patterns deny.
		{"unmatched bracket denies", "[acme", "acme", false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := MatchPattern(test.pattern, test.pkg)
			if got != test.want {
				t.Errorf("MatchPattern(%q, %q) = %v, want %v",
					test.pattern, test.pkg, got, test.want)
			}
		})
	}
}

func TestCanPublish(t *testing.T) {
	p, err := New("publisher:alice", "web-scraper", "acme-*")
	if err != nil {
		t.Fatal(err)
	}

	if p.ID() != "publisher:alice" {
		t.Errorf("ID() = %q", p.ID())
	}
	if !p.CanPublish("web-scraper") {
		t.Error("exact grant should allow publish")
	}
	if !p.CanPublish("acme-tools") {
		t.Error("prefix grant should allow publish")
	}
	if p.CanPublish("summarizer") {
		t.Error("ungranted name should be denied")
	}
}

func TestAnonymousCannotPublish(t *testing.T) {
	p := Anonymous()
	if p.CanPublish("web-scraper") {
		t.Error("anonymous principal must not publish")
	}
	if p.ID() != "anonymous" {
		t.Errorf("ID() = %q", p.ID())
	}
}

func TestNewRequiresID(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("New with empty id should fail")
	}
}

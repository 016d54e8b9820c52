package blacklist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `deny:
  - "https://mail.google.com/*"
  - "*://*.bank.example/*"
allow:
  - "https://mail.google.com/about*"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if got, want := len(rules.Deny), 2; got != want {
		t.Fatalf("deny patterns = %d, want %d", got, want)
	}
	if got, want := len(rules.Allow), 1; got != want {
		t.Fatalf("allow patterns = %d, want %d", got, want)
	}
}

func TestLoadRulesRejectsEmptyPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("deny:\n  - \"\"\n"), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	if _, err := LoadRules(path); err == nil {
		t.Fatal("LoadRules accepted an empty deny pattern")
	}
}

func TestMatcherBlacklisted(t *testing.T) {
	m, err := NewMatcher(RulesFile{
		Deny:  []string{"https://mail.google.com/*", "*://*.bank.example/*"},
		Allow: []string{"https://mail.google.com/about*"},
	})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	tests := []struct {
		url  string
		want bool
	}{
		{"https://mail.google.com/mail/u/0", true},
		{"https://mail.google.com/about/team", false},
		{"https://www.bank.example/login", true},
		{"https://example.com/", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := m.Blacklisted(tt.url); got != tt.want {
			t.Errorf("Blacklisted(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestMatcherEmptyRules(t *testing.T) {
	m, err := NewMatcher(RulesFile{})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	if m.Blacklisted("https://anything.example/") {
		t.Fatal("empty rule set blacklisted a URL")
	}
}

func TestMatcherReplaceKeepsOldRulesOnError(t *testing.T) {
	m, err := NewMatcher(RulesFile{Deny: []string{"https://deny.example/*"}})
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}

	if err := m.Replace(RulesFile{Deny: []string{"["}}); err == nil {
		t.Fatal("Replace accepted an invalid pattern")
	}
	if !m.Blacklisted("https://deny.example/path") {
		t.Fatal("failed Replace dropped the previous rules")
	}
}

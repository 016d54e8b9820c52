// Package blacklist decides which URLs the coordinator must leave alone.
// Rules come from a YAML file of glob patterns; a URL matching any deny
// pattern (and no carve-out) is blacklisted, which disables content
// behavior there and flips the tab's icon.
package blacklist

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// RulesFile is the top-level YAML configuration.
type RulesFile struct {
	// Deny lists URL glob patterns to blacklist, e.g. "https://mail.google.com/*".
	Deny []string `yaml:"deny"`
	// Allow lists carve-outs that win over Deny.
	Allow []string `yaml:"allow,omitempty"`
}

// LoadRules reads and validates a blacklist YAML rules file.
func LoadRules(path string) (*RulesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("blacklist rules: %w", err)
	}
	var rules RulesFile
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("blacklist rules: %w", err)
	}
	for i, p := range rules.Deny {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("blacklist rules: deny[%d] is empty", i)
		}
	}
	for i, p := range rules.Allow {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("blacklist rules: allow[%d] is empty", i)
		}
	}
	return &rules, nil
}

// Matcher evaluates URLs against compiled rules. Safe for concurrent use;
// Replace swaps the rule set atomically for settings-driven updates.
type Matcher struct {
	mu      sync.RWMutex
	deny    []glob.Glob
	allow   []glob.Glob
	sources RulesFile
}

// NewMatcher compiles a rule set.
func NewMatcher(rules RulesFile) (*Matcher, error) {
	m := &Matcher{}
	if err := m.Replace(rules); err != nil {
		return nil, err
	}
	return m, nil
}

// Replace compiles and swaps in a new rule set. On error the old rules
// stay in effect.
func (m *Matcher) Replace(rules RulesFile) error {
	deny, err := compile(rules.Deny, "deny")
	if err != nil {
		return err
	}
	allow, err := compile(rules.Allow, "allow")
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.deny = deny
	m.allow = allow
	m.sources = rules
	m.mu.Unlock()
	return nil
}

func compile(patterns []string, kind string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern %q: %w", kind, pattern, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Blacklisted reports whether a URL is blacklisted. Allow carve-outs win
// over deny patterns; with no deny patterns nothing is blacklisted.
func (m *Matcher) Blacklisted(url string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, g := range m.allow {
		if g.Match(url) {
			return false
		}
	}
	for _, g := range m.deny {
		if g.Match(url) {
			return true
		}
	}
	return false
}

// Rules returns the rule set currently in effect.
func (m *Matcher) Rules() RulesFile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := RulesFile{
		Deny:  append([]string(nil), m.sources.Deny...),
		Allow: append([]string(nil), m.sources.Allow...),
	}
	return out
}

package packages

import (
	"strings"

	"github.com/gobwas/glob"

	"git.home.luguber.info/inful/assetcompiler/internal/config"
	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
)

// Rule is a compiled package rule.
type Rule struct {
	config.PackageRule
	matcher glob.Glob
}

// IsExact reports whether the pattern names a single package.
func (r Rule) IsExact() bool {
	return !strings.ContainsAny(r.Pattern, "*?[{")
}

// Matcher evaluates package rules in declaration order; the first match wins.
type Matcher struct {
	rules []Rule
}

// NewMatcher compiles the rules. "*" matches any run of characters, "/" included.
func NewMatcher(rules []config.PackageRule) (*Matcher, error) {
	m := &Matcher{rules: make([]Rule, 0, len(rules))}
	for _, r := range rules {
		g, err := glob.Compile(r.Pattern)
		if err != nil {
			return nil, errors.ConfigError("invalid package pattern").
				WithCause(err).
				WithContext("pattern", r.Pattern).
				Build()
		}
		m.rules = append(m.rules, Rule{PackageRule: r, matcher: g})
	}
	return m, nil
}

// Match returns the first rule matching name.
func (m *Matcher) Match(name string) (Rule, bool) {
	for _, r := range m.rules {
		if r.matcher.Match(name) {
			return r, true
		}
	}
	return Rule{}, false
}

// Unsatisfied returns the exact include and force-defaults rules that name none of the
// given packages.
func (m *Matcher) Unsatisfied(names []string) []Rule {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	var out []Rule
	for _, r := range m.rules {
		if r.Directive == config.DirectiveExclude || !r.IsExact() {
			continue
		}
		if !known[r.Pattern] {
			out = append(out, r)
		}
	}
	return out
}

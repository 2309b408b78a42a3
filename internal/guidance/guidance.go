// Package guidance appends remediation hints to Snowflake error messages
// before they are returned to the model. A hint tells the caller what to try
// next instead of leaving it to re-guess against an opaque warehouse error.
package guidance

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule pairs an error-message pattern with the hint to append when it
// matches.
type Rule struct {
	Pattern string
	Hint    string
}

type compiledRule struct {
	pattern *regexp.Regexp
	hint    string
}

// Matcher evaluates Snowflake error messages against an ordered rule list.
type Matcher struct {
	rules []compiledRule
}

// DefaultRules covers the Snowflake errors a model most often runs into.
// Configured rules are evaluated before these.
func DefaultRules() []Rule {
	return []Rule{
		{
			Pattern: `(?i)does not exist or not authorized`,
			Hint:    "The object does not exist or the current role cannot see it. List objects first, or ask the user to switch roles.",
		},
		{
			Pattern: `(?i)no active warehouse`,
			Hint:    "No warehouse is active for this session. Ask the user which warehouse to use.",
		},
		{
			Pattern: `(?i)insufficient privileges`,
			Hint:    "The current role lacks privileges for this operation. Ask the user to grant access or switch roles.",
		},
		{
			Pattern: `(?i)syntax error`,
			Hint:    "The statement was rejected by the Snowflake SQL parser. Check quoting and Snowflake-specific syntax before retrying.",
		},
	}
}

// NewMatcher compiles the configured rules followed by the defaults. An
// invalid pattern fails the whole matcher so a bad rule is caught at startup
// rather than silently skipped.
func NewMatcher(rules []Rule) (*Matcher, error) {
	all := append(append([]Rule{}, rules...), DefaultRules()...)
	compiled := make([]compiledRule, len(all))
	for i, r := range all {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("guidance: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, hint: r.Hint}
	}
	return &Matcher{rules: compiled}, nil
}

// Hints returns all hints whose patterns match the error message, in rule
// order, deduplicated. Empty slice means no rule matched.
func (m *Matcher) Hints(errMsg string) []string {
	var hints []string
	seen := map[string]struct{}{}
	for _, rule := range m.rules {
		if !rule.pattern.MatchString(errMsg) {
			continue
		}
		if _, dup := seen[rule.hint]; dup {
			continue
		}
		seen[rule.hint] = struct{}{}
		hints = append(hints, rule.hint)
	}
	return hints
}

// Annotate returns the error message with matching hints appended, or the
// message unchanged when nothing matches.
func (m *Matcher) Annotate(errMsg string) string {
	hints := m.Hints(errMsg)
	if len(hints) == 0 {
		return errMsg
	}
	return errMsg + "\n" + strings.Join(hints, "\n")
}

// Package sanitize applies regex replacements to result field values before
// they leave the server, so secrets stored in table data never reach the
// model.
package sanitize

import (
	"fmt"
	"regexp"
)

// Rule is a single pattern/replacement pair.
type Rule struct {
	Pattern     string
	Replacement string
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Sanitizer applies every rule, in order, to each string field in a result
// set.
type Sanitizer struct {
	rules []compiledRule
}

// NewSanitizer compiles the rules. An invalid pattern is reported at startup
// rather than skipped.
func NewSanitizer(rules []Rule) (*Sanitizer, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("sanitize: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, replacement: r.Replacement}
	}
	return &Sanitizer{rules: compiled}, nil
}

// HasRules reports whether any rule is configured.
func (s *Sanitizer) HasRules() bool {
	return len(s.rules) > 0
}

// Rows sanitizes every field of every row in place and returns the slice.
// VARIANT, OBJECT, and ARRAY columns decode to nested maps and slices; the
// sanitizer recurses into them so a secret inside semi-structured data is
// caught too.
func (s *Sanitizer) Rows(rows []map[string]interface{}) []map[string]interface{} {
	if !s.HasRules() {
		return rows
	}
	for _, row := range rows {
		for k, v := range row {
			row[k] = s.value(v)
		}
	}
	return rows
}

func (s *Sanitizer) value(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		for _, rule := range s.rules {
			val = rule.pattern.ReplaceAllString(val, rule.replacement)
		}
		return val
	case map[string]interface{}:
		for k, item := range val {
			val[k] = s.value(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = s.value(item)
		}
		return val
	default:
		// Numbers, bools, times, nil pass through untouched.
		return v
	}
}

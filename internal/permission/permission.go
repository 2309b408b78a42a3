// Package permission evaluates classified statement-type tags against a
// configured allow/disallow policy. Authorization is pure and total: it never
// errors, it always produces a verdict, and an unconfigured policy denies
// everything.
package permission

import "strings"

// Entry is a single declarative permission: a statement-type tag mapped to
// allowed (true) or disallowed (false).
type Entry struct {
	StatementType string
	Allowed       bool
}

// Policy holds the allowed and disallowed statement-type sets. Construct once
// at startup; a Policy is immutable and safe to share across goroutines.
type Policy struct {
	allowed    map[string]struct{}
	disallowed map[string]struct{}
}

// NewPolicy builds a Policy from declarative entries. Tags are lowercased.
// The two sets are not required to be disjoint: a tag configured both ways
// lands in both sets and Authorize's precedence resolves it. Duplicate
// entries within one set are idempotent, so last write wins.
func NewPolicy(entries []Entry) *Policy {
	p := &Policy{
		allowed:    make(map[string]struct{}),
		disallowed: make(map[string]struct{}),
	}
	for _, e := range entries {
		tag := strings.ToLower(e.StatementType)
		if e.Allowed {
			p.allowed[tag] = struct{}{}
		} else {
			p.disallowed[tag] = struct{}{}
		}
	}
	return p
}

// Authorize evaluates statementType against the policy and returns the tag
// alongside the verdict, so callers can report why a statement was rejected.
// Precedence, first match wins:
//  1. "all" in allowed → allow (explicit escape hatch)
//  2. tag in disallowed → deny
//  3. tag in allowed → allow
//  4. tag is "unknown" and "unknown" in allowed → allow
//  5. both sets empty → deny (no policy configured means no SQL executes)
//  6. otherwise → deny
func (p *Policy) Authorize(statementType string) (string, bool) {
	tag := strings.ToLower(statementType)

	if _, ok := p.allowed["all"]; ok {
		return tag, true
	}
	if _, ok := p.disallowed[tag]; ok {
		return tag, false
	}
	if _, ok := p.allowed[tag]; ok {
		return tag, true
	}
	if tag == "unknown" {
		if _, ok := p.allowed["unknown"]; ok {
			return tag, true
		}
	}
	return tag, false
}

// Empty reports whether no permissions are configured at all.
func (p *Policy) Empty() bool {
	return len(p.allowed) == 0 && len(p.disallowed) == 0
}

// AllowedCount and DisallowedCount expose set sizes for startup logging.
func (p *Policy) AllowedCount() int    { return len(p.allowed) }
func (p *Policy) DisallowedCount() int { return len(p.disallowed) }

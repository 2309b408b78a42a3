// Package classify maps raw SQL text to a canonical lowercase statement-type
// tag. Classification is purely syntactic: it never touches a connection and
// never fails — anything the parser and the keyword scan both miss is tagged
// "unknown".
package classify

import (
	"strings"

	"github.com/xwb1989/sqlparser"
)

// Unknown is the sentinel tag for statements that map to no known command.
const Unknown = "unknown"

// commandKeywords is the ordered prefix-scan fallback for statements the
// parser either rejects or lumps into a generic admin/read node. First match
// wins. DESC must come after DESCRIBE so both spellings map to "describe".
var commandKeywords = []struct {
	keyword string
	tag     string
}{
	{"SHOW", "show"},
	{"DESCRIBE", "describe"},
	{"DESC", "describe"},
	{"USE", "use"},
	{"EXPLAIN", "explain"},
	{"GRANT", "grant"},
	{"REVOKE", "revoke"},
	{"SET", "set"},
	{"CALL", "call"},
}

// Statement classifies sql into a statement-type tag. Multi-statement input
// is classified by its first statement only; callers that must not execute
// trailing statements should use Split to detect them.
func Statement(sql string) string {
	pieces, err := sqlparser.SplitStatementToPieces(sql)
	if err == nil && len(pieces) > 0 {
		sql = pieces[0]
	}

	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return scanKeyword(sql)
	}

	switch s := stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union, *sqlparser.ParenSelect:
		return "select"
	case *sqlparser.Insert:
		// The parser reports REPLACE INTO through the same node.
		return strings.ToLower(s.Action)
	case *sqlparser.Update:
		return "update"
	case *sqlparser.Delete:
		return "delete"
	case *sqlparser.DDL:
		return strings.ToLower(s.Action)
	case *sqlparser.DBDDL:
		return strings.ToLower(s.Action)
	case *sqlparser.Show:
		return "show"
	case *sqlparser.Use:
		return "use"
	case *sqlparser.Set:
		return "set"
	case *sqlparser.Begin:
		return "begin"
	case *sqlparser.Commit:
		return "commit"
	case *sqlparser.Rollback:
		return "rollback"
	case *sqlparser.OtherRead, *sqlparser.OtherAdmin:
		// Generic command nodes (DESCRIBE, EXPLAIN, REPAIR, ...) carry no
		// action detail; recover the tag from the leading keyword.
		return scanKeyword(sql)
	default:
		return scanKeyword(sql)
	}
}

// Split breaks sql into individual statements, handling semicolons inside
// string literals. Returns the pieces with empty trailing segments removed.
func Split(sql string) ([]string, error) {
	pieces, err := sqlparser.SplitStatementToPieces(sql)
	if err != nil {
		return nil, err
	}
	out := pieces[:0]
	for _, p := range pieces {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// scanKeyword matches the trimmed, upper-cased SQL against the ordered
// command keyword list. No match → Unknown.
func scanKeyword(sql string) string {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	for _, kw := range commandKeywords {
		if strings.HasPrefix(upper, kw.keyword) {
			rest := upper[len(kw.keyword):]
			// Must be a full word: end of input or a non-identifier rune.
			if rest == "" || !isIdentRune(rest[0]) {
				return kw.tag
			}
		}
	}
	return Unknown
}

func isIdentRune(b byte) bool {
	return b == '_' || b == '$' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

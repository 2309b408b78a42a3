package classify

import "testing"

func assertTag(t *testing.T, sql, want string) {
	t.Helper()
	got := Statement(sql)
	if got != want {
		t.Fatalf("Statement(%q) = %q, want %q", sql, got, want)
	}
}

func TestSelect(t *testing.T) {
	t.Parallel()
	assertTag(t, "SELECT 1", "select")
	assertTag(t, "select * from users where id = 3", "select")
	assertTag(t, "SELECT a FROM t1 UNION SELECT b FROM t2", "select")
}

func TestDML(t *testing.T) {
	t.Parallel()
	assertTag(t, "INSERT INTO t (a) VALUES (1)", "insert")
	assertTag(t, "UPDATE t SET a = 1 WHERE id = 2", "update")
	assertTag(t, "DELETE FROM t WHERE id = 2", "delete")
}

func TestDDL(t *testing.T) {
	t.Parallel()
	assertTag(t, "CREATE TABLE t (id INT)", "create")
	assertTag(t, "DROP TABLE t", "drop")
	assertTag(t, "ALTER TABLE t ADD COLUMN b INT", "alter")
	assertTag(t, "TRUNCATE TABLE t", "truncate")
}

func TestShow(t *testing.T) {
	t.Parallel()
	assertTag(t, "SHOW DATABASES", "show")
	assertTag(t, "SHOW WAREHOUSES", "show")
	assertTag(t, "show tables in schema analytics.public", "show")
}

func TestDescribe(t *testing.T) {
	t.Parallel()
	assertTag(t, "DESCRIBE TABLE foo", "describe")
	assertTag(t, "DESC TABLE foo", "describe")
	assertTag(t, "describe warehouse compute_wh", "describe")
}

func TestUse(t *testing.T) {
	t.Parallel()
	assertTag(t, "USE DATABASE analytics", "use")
	assertTag(t, "USE WAREHOUSE compute_wh", "use")
	assertTag(t, "use role sysadmin", "use")
}

func TestCommands(t *testing.T) {
	t.Parallel()
	assertTag(t, "EXPLAIN SELECT * FROM t", "explain")
	assertTag(t, "GRANT SELECT ON TABLE t TO ROLE analyst", "grant")
	assertTag(t, "REVOKE SELECT ON TABLE t FROM ROLE analyst", "revoke")
	assertTag(t, "SET my_var = 42", "set")
	assertTag(t, "CALL my_procedure(1, 2)", "call")
}

func TestUnknown(t *testing.T) {
	t.Parallel()
	assertTag(t, "not valid sql {{{", Unknown)
	assertTag(t, "", Unknown)
	assertTag(t, "   ", Unknown)
	assertTag(t, "FROBNICATE EVERYTHING", Unknown)
}

// Keyword matches must be whole words: SELECTION is not SELECT, SETTLE is not SET.
func TestKeywordPrefixIsWholeWord(t *testing.T) {
	t.Parallel()
	assertTag(t, "SETTLE the matter", Unknown)
	assertTag(t, "SHOWCASE", Unknown)
	assertTag(t, "USEFUL gibberish", Unknown)
}

func TestDeterministic(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"SELECT 1",
		"SHOW DATABASES",
		"DESCRIBE TABLE foo",
		"not valid sql {{{",
		"GRANT ALL ON t TO ROLE r",
	}
	for _, sql := range inputs {
		first := Statement(sql)
		for i := 0; i < 10; i++ {
			if got := Statement(sql); got != first {
				t.Fatalf("Statement(%q) not deterministic: %q then %q", sql, first, got)
			}
		}
	}
}

func TestMultiStatementClassifiesFirst(t *testing.T) {
	t.Parallel()
	assertTag(t, "SELECT 1; DROP TABLE t", "select")
	assertTag(t, "DROP TABLE t; SELECT 1", "drop")
}

func TestSplit(t *testing.T) {
	t.Parallel()
	pieces, err := Split("SELECT 1; DROP TABLE t")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pieces) != 2 {
		t.Fatalf("expected 2 pieces, got %d: %v", len(pieces), pieces)
	}
}

func TestSplitSemicolonInsideStringLiteral(t *testing.T) {
	t.Parallel()
	pieces, err := Split("SELECT * FROM t WHERE name = 'a;b'")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pieces) != 1 {
		t.Fatalf("expected 1 piece, got %d: %v", len(pieces), pieces)
	}
}

func TestSplitTrailingSemicolon(t *testing.T) {
	t.Parallel()
	pieces, err := Split("SELECT 1;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pieces) != 1 {
		t.Fatalf("expected 1 piece for trailing semicolon, got %d: %v", len(pieces), pieces)
	}
}

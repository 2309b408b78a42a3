package guidance

import (
	"strings"
	"testing"
)

func TestDefaultObjectNotFoundHint(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := m.Annotate("SQL compilation error:\nObject 'ORDERS' does not exist or not authorized.")
	if !strings.Contains(got, "List objects first") {
		t.Fatalf("missing object-not-found hint in: %s", got)
	}
}

func TestDefaultWarehouseHint(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := m.Annotate("No active warehouse selected in the current session.")
	if !strings.Contains(got, "which warehouse") {
		t.Fatalf("missing warehouse hint in: %s", got)
	}
}

func TestConfiguredRulesEvaluateBeforeDefaults(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher([]Rule{
		{Pattern: `(?i)insufficient privileges`, Hint: "Site-specific: file an access request in #data-access."},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hints := m.Hints("Insufficient privileges to operate on table 'ORDERS'")
	if len(hints) != 2 {
		t.Fatalf("hints = %v, want configured rule plus default", hints)
	}
	if !strings.HasPrefix(hints[0], "Site-specific") {
		t.Errorf("configured hint not first: %v", hints)
	}
}

func TestNoMatchLeavesMessageUntouched(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg := "network timeout after 30s"
	if got := m.Annotate(msg); got != msg {
		t.Fatalf("Annotate(%q) = %q, want unchanged", msg, got)
	}
}

func TestDuplicateHintsCollapse(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher([]Rule{
		{Pattern: `timeout`, Hint: "Retry the statement."},
		{Pattern: `after 30s`, Hint: "Retry the statement."},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hints := m.Hints("network timeout after 30s")
	if len(hints) != 1 {
		t.Fatalf("hints = %v, want a single deduplicated hint", hints)
	}
}

func TestInvalidPatternFailsConstruction(t *testing.T) {
	t.Parallel()
	if _, err := NewMatcher([]Rule{{Pattern: `([`, Hint: "broken"}}); err == nil {
		t.Fatal("expected error for invalid regex")
	}
}

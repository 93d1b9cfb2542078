package tools

import (
	"strings"
	"testing"
)

func TestNormalizeIdempotent(t *testing.T) {
	cases := []string{"bash", "BASH", "Bash", "bAsH", "read"}
	for _, c := range cases {
		got := Normalize(c)
		if got != "Bash" && got != "Read" {
			t.Fatalf("unexpected normalization for %q: %q", c, got)
		}
		if Normalize(got) != got {
			t.Errorf("Normalize not idempotent for %q: f(x)=%q f(f(x))=%q", c, got, Normalize(got))
		}
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if Normalize("") != "" {
		t.Fatalf("expected empty string to normalize to empty")
	}
}

func TestLookupUnknownToolIsNonDestructive(t *testing.T) {
	tool, known := Lookup("my_custom_tool")
	if known {
		t.Fatalf("expected unknown tool to report known=false")
	}
	if tool.IsDestructive {
		t.Fatalf("expected unknown tool to default to non-destructive")
	}
}

func TestDestructiveClassification(t *testing.T) {
	destructive := []string{"Bash", "Edit", "Write", "Task", "WebFetch", "WebSearch", "NotebookEdit"}
	for _, name := range destructive {
		if !IsDestructive(name) {
			t.Errorf("expected %s to be destructive", name)
		}
	}
	safe := []string{"Read", "Glob", "Grep", "TaskList"}
	for _, name := range safe {
		if IsDestructive(name) {
			t.Errorf("expected %s to be non-destructive", name)
		}
	}
}

func TestNeverEnabledPolicy(t *testing.T) {
	for _, name := range []string{"AskUserQuestion", "EnterPlanMode", "ExitPlanMode"} {
		if !NeverEnabled(name) {
			t.Errorf("expected %s to never be enabled", name)
		}
	}
	if NeverEnabled("Bash") {
		t.Errorf("Bash should not be in the never-enabled policy")
	}
}

func TestDisabledNoticeMentionsMissingTools(t *testing.T) {
	allowed := make([]string, 0)
	for _, name := range DefaultAllowedTools() {
		if name != "Bash" {
			allowed = append(allowed, name)
		}
	}

	notice := DisabledNotice(allowed)
	if notice == "" {
		t.Fatalf("expected a non-empty disabled-tools notice")
	}
	if !strings.Contains(notice, "DISABLED TOOLS:") {
		t.Errorf("notice missing required substring: %q", notice)
	}
	if !strings.Contains(notice, "Bash") {
		t.Errorf("notice should mention Bash: %q", notice)
	}
}

func TestDisabledNoticeEmptyWhenEverythingAllowed(t *testing.T) {
	if got := DisabledNotice(DefaultAllowedTools()); got != "" {
		t.Fatalf("expected empty notice, got %q", got)
	}
}

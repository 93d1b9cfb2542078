package presenter

import (
	"encoding/json"
	"strings"
	"testing"
)

func rawInput(t *testing.T, v map[string]any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestSummarizeBashWithDescription(t *testing.T) {
	got := SummarizeToolInput("Bash", rawInput(t, map[string]any{"command": "ls -la", "description": "list files"}))
	if got != "list files: `ls -la`" {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestSummarizeBashTruncatesLongCommand(t *testing.T) {
	long := strings.Repeat("x", 300)
	got := SummarizeToolInput("Bash", rawInput(t, map[string]any{"command": long}))
	if !strings.HasPrefix(got, "`") || len(got) > bashCommandMaxLen+10 {
		t.Fatalf("expected truncated command summary, got length %d", len(got))
	}
}

func TestSummarizeWriteReportsLineCount(t *testing.T) {
	got := SummarizeToolInput("Write", rawInput(t, map[string]any{"file_path": "a.go", "content": "line1\nline2\nline3"}))
	if got != "a.go (3 lines)" {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestSummarizeReadReturnsPath(t *testing.T) {
	got := SummarizeToolInput("Read", rawInput(t, map[string]any{"file_path": "b.go"}))
	if got != "b.go" {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestSummarizeGlobWithAndWithoutPath(t *testing.T) {
	withPath := SummarizeToolInput("Glob", rawInput(t, map[string]any{"pattern": "*.go", "path": "/tmp"}))
	if withPath != "Glob *.go in /tmp" {
		t.Fatalf("unexpected summary: %q", withPath)
	}
	withoutPath := SummarizeToolInput("Glob", rawInput(t, map[string]any{"pattern": "*.go"}))
	if withoutPath != "Glob *.go" {
		t.Fatalf("unexpected summary: %q", withoutPath)
	}
}

func TestSummarizeGrep(t *testing.T) {
	got := SummarizeToolInput("Grep", rawInput(t, map[string]any{"pattern": "TODO", "output_mode": "content"}))
	if got != `Grep "TODO" (content)` {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestSummarizeTaskAndSkill(t *testing.T) {
	task := SummarizeToolInput("Task", rawInput(t, map[string]any{"subagent_type": "general", "description": "investigate"}))
	if task != "Task [general]: investigate" {
		t.Fatalf("unexpected summary: %q", task)
	}
	skill := SummarizeToolInput("Skill", rawInput(t, map[string]any{"name": "deploy"}))
	if skill != "Skill: deploy" {
		t.Fatalf("unexpected summary: %q", skill)
	}
}

func TestSummarizeUnknownToolFallsBackToRawInput(t *testing.T) {
	got := SummarizeToolInput("CustomTool", rawInput(t, map[string]any{"foo": "bar"}))
	if !strings.HasPrefix(got, "CustomTool ") {
		t.Fatalf("unexpected summary: %q", got)
	}
}

package skills

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCommand(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".md"), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestListIncludesBuiltinsForWorkDirWithoutCommands(t *testing.T) {
	s := NewScanner()
	s.SetWorkDir(t.TempDir())
	list := s.List()

	found := false
	for _, sk := range list {
		if sk.Name == "help" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected built-in 'help' skill in list: %+v", list)
	}
}

func TestListIsSortedLexicographically(t *testing.T) {
	s := NewScanner()
	s.SetWorkDir(t.TempDir())
	list := s.List()
	for i := 1; i < len(list); i++ {
		if list[i-1].Name > list[i].Name {
			t.Fatalf("list not sorted: %q before %q", list[i-1].Name, list[i].Name)
		}
	}
}

func TestFrontmatterDescriptionWins(t *testing.T) {
	dir := t.TempDir()
	cmdDir := filepath.Join(dir, ".claude", "commands")
	writeCommand(t, cmdDir, "deploy", "---\ndescription: Deploy the service\n---\n# Deploy\n\nBody text.\n")

	s := NewScanner()
	s.SetWorkDir(dir)
	list := s.List()

	var got *Skill
	for i := range list {
		if list[i].Name == "deploy" {
			got = &list[i]
		}
	}
	if got == nil {
		t.Fatalf("expected 'deploy' skill to be discovered")
	}
	if got.Description != "Deploy the service" {
		t.Fatalf("expected frontmatter description, got %q", got.Description)
	}
}

func TestFirstLineFallbackWhenNoFrontmatter(t *testing.T) {
	dir := t.TempDir()
	cmdDir := filepath.Join(dir, ".claude", "commands")
	writeCommand(t, cmdDir, "review", "# Review\n\nRun a thorough code review.\n")

	s := NewScanner()
	s.SetWorkDir(dir)
	list := s.List()

	var got *Skill
	for i := range list {
		if list[i].Name == "review" {
			got = &list[i]
		}
	}
	if got == nil {
		t.Fatalf("expected 'review' skill to be discovered")
	}
	if got.Description != "Run a thorough code review." {
		t.Fatalf("expected first non-heading line, got %q", got.Description)
	}
}

func TestHeadingFallbackWhenOnlyHeadingPresent(t *testing.T) {
	dir := t.TempDir()
	cmdDir := filepath.Join(dir, ".claude", "commands")
	writeCommand(t, cmdDir, "lonely", "# Lonely Heading\n")

	s := NewScanner()
	s.SetWorkDir(dir)
	list := s.List()

	var got *Skill
	for i := range list {
		if list[i].Name == "lonely" {
			got = &list[i]
		}
	}
	if got == nil {
		t.Fatalf("expected 'lonely' skill to be discovered")
	}
	if got.Description != "Lonely Heading" {
		t.Fatalf("expected heading fallback, got %q", got.Description)
	}
}

func TestCustomSkillFallbackWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	cmdDir := filepath.Join(dir, ".claude", "commands")
	writeCommand(t, cmdDir, "blank", "")

	s := NewScanner()
	s.SetWorkDir(dir)
	list := s.List()

	var got *Skill
	for i := range list {
		if list[i].Name == "blank" {
			got = &list[i]
		}
	}
	if got == nil {
		t.Fatalf("expected 'blank' skill to be discovered")
	}
	if got.Description != "Custom skill" {
		t.Fatalf("expected final fallback, got %q", got.Description)
	}
}

func TestBuiltinShadowsFilesystemSkillOfSameName(t *testing.T) {
	dir := t.TempDir()
	cmdDir := filepath.Join(dir, ".claude", "commands")
	writeCommand(t, cmdDir, "help", "---\ndescription: A different help\n---\n")

	s := NewScanner()
	s.SetWorkDir(dir)
	list := s.List()

	count := 0
	var desc string
	for _, sk := range list {
		if sk.Name == "help" {
			count++
			desc = sk.Description
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one 'help' entry, got %d", count)
	}
	if desc == "A different help" {
		t.Fatalf("expected built-in description to shadow filesystem one")
	}
}

func TestDescriptionTruncatedTo80Chars(t *testing.T) {
	dir := t.TempDir()
	cmdDir := filepath.Join(dir, ".claude", "commands")
	long := "This is a very long description that goes well beyond eighty characters in total length for sure."
	writeCommand(t, cmdDir, "longdesc", "---\ndescription: "+long+"\n---\n")

	s := NewScanner()
	s.SetWorkDir(dir)
	list := s.List()

	for _, sk := range list {
		if sk.Name == "longdesc" {
			if len(sk.Description) > descriptionMaxLen {
				t.Fatalf("expected description to be truncated to %d chars, got %d", descriptionMaxLen, len(sk.Description))
			}
			return
		}
	}
	t.Fatalf("expected 'longdesc' skill to be discovered")
}

func TestSetWorkDirNoOpWhenUnchanged(t *testing.T) {
	dir := t.TempDir()
	s := NewScanner()
	s.SetWorkDir(dir)
	first := s.List()
	s.SetWorkDir(dir)
	second := s.List()
	if len(first) != len(second) {
		t.Fatalf("expected stable list across repeated SetWorkDir calls with same dir")
	}
}

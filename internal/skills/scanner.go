// Package skills implements the skill scanner (C6): an ordered catalog of
// built-in slash-commands plus filesystem-defined ones discovered under
// ~/.claude/commands/ and <working_directory>/.claude/commands/.
package skills

import (
	"bufio"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Skill is one (name, description) catalog entry.
type Skill struct {
	Name        string
	Description string
}

// builtins is the built-in slash-command catalog, always present and
// always shadowing a filesystem skill of the same name.
var builtins = []Skill{
	{"help", "List available commands"},
	{"start", "Start or resume a working session in a directory"},
	{"pwd", "Show the current working directory"},
	{"clear", "Clear the conversation history"},
	{"stop", "Cancel the in-flight agent turn"},
	{"down", "Change the working directory"},
	{"shell", "Run a shell command in the working directory"},
	{"allowedtools", "List the currently allowed tools"},
	{"allowed", "Add or remove a tool from the allowlist"},
}

const descriptionMaxLen = 80

// Scanner holds the cached catalog for one working directory and refreshes
// it when the directory changes or the filesystem notifies of edits under
// the commands directories.
type Scanner struct {
	mu      sync.RWMutex
	workDir string
	cached  []Skill

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// NewScanner creates a scanner with no working directory yet bound; call
// SetWorkDir before List.
func NewScanner() *Scanner {
	return &Scanner{}
}

// SetWorkDir rescans for the given working directory if it differs from the
// currently cached one, per spec: "the cache is refreshed whenever the
// working directory changes."
func (s *Scanner) SetWorkDir(dir string) {
	s.mu.Lock()
	changed := dir != s.workDir
	s.workDir = dir
	s.mu.Unlock()

	if changed {
		s.refresh()
		s.rewatch(dir)
	}
}

// List returns the cached, lexicographically sorted skill catalog.
func (s *Scanner) List() []Skill {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Skill, len(s.cached))
	copy(out, s.cached)
	return out
}

func (s *Scanner) refresh() {
	s.mu.RLock()
	dir := s.workDir
	s.mu.RUnlock()

	seen := make(map[string]bool, len(builtins))
	out := make([]Skill, 0, len(builtins))
	for _, b := range builtins {
		seen[b.Name] = true
		out = append(out, b)
	}

	home, _ := os.UserHomeDir()
	dirs := []string{filepath.Join(home, ".claude", "commands")}
	if dir != "" {
		dirs = append(dirs, filepath.Join(dir, ".claude", "commands"))
	}

	for _, d := range dirs {
		for _, sk := range scanCommandDir(d) {
			if seen[sk.Name] {
				continue
			}
			seen[sk.Name] = true
			out = append(out, sk)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	s.mu.Lock()
	s.cached = out
	s.mu.Unlock()
}

func scanCommandDir(dir string) []Skill {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var out []Skill
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".md")
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		out = append(out, Skill{Name: name, Description: describeCommand(data)})
	}
	return out
}

type commandFrontmatter struct {
	Description string `yaml:"description"`
}

// describeCommand implements the four-step description fallback chain:
// frontmatter description, first non-heading non-empty line, first heading
// text, or the literal "Custom skill".
func describeCommand(data []byte) string {
	if fm, body, ok := splitFrontmatter(data); ok {
		var parsed commandFrontmatter
		if err := yaml.Unmarshal(fm, &parsed); err == nil && parsed.Description != "" {
			return truncate(parsed.Description)
		}
		data = body
	}

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	var firstHeading string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if firstHeading == "" {
				firstHeading = strings.TrimSpace(strings.TrimLeft(line, "#"))
			}
			continue
		}
		return truncate(line)
	}

	if firstHeading != "" {
		return truncate(firstHeading)
	}
	return "Custom skill"
}

func splitFrontmatter(data []byte) (yamlPart []byte, body []byte, ok bool) {
	content := string(data)
	if !strings.HasPrefix(content, "---") {
		return nil, data, false
	}
	rest := strings.TrimPrefix(content, "---")
	rest = strings.TrimPrefix(rest, "\r\n")
	rest = strings.TrimPrefix(rest, "\n")

	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return nil, data, false
	}
	yamlContent := rest[:idx]
	remainder := rest[idx+len("\n---"):]
	remainder = strings.TrimPrefix(remainder, "\r\n")
	remainder = strings.TrimPrefix(remainder, "\n")
	return []byte(yamlContent), []byte(remainder), true
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= descriptionMaxLen {
		return s
	}
	return s[:descriptionMaxLen]
}

// rewatch replaces the fsnotify watcher so it covers dir's commands
// directory and the global one, triggering a refresh on any write, create,
// remove, or rename event. This supplements the spec's workdir-change
// refresh rule with live invalidation, grounded on the teacher pack's
// fsnotify-based skill watcher.
func (s *Scanner) rewatch(dir string) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.watcher != nil {
		s.watcher.Close()
		close(s.stop)
		s.watcher = nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[SKILLS] watcher unavailable: %v", err)
		return
	}

	home, _ := os.UserHomeDir()
	candidates := []string{filepath.Join(home, ".claude", "commands")}
	if dir != "" {
		candidates = append(candidates, filepath.Join(dir, ".claude", "commands"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			_ = watcher.Add(c)
		}
	}

	s.watcher = watcher
	s.stop = make(chan struct{})
	go s.watchLoop(watcher, s.stop)
}

func (s *Scanner) watchLoop(watcher *fsnotify.Watcher, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.refresh()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[SKILLS] watcher error: %v", err)
		}
	}
}

// Close releases the filesystem watcher, if any.
func (s *Scanner) Close() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher != nil {
		s.watcher.Close()
		close(s.stop)
		s.watcher = nil
	}
}

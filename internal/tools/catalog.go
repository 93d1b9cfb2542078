// Package tools holds the canonical tool catalog the agent may be allowed
// or disallowed to invoke: names, descriptions, destructive classification,
// and the name-normalization rule the allowlist is keyed on.
package tools

import "strings"

// Tool describes one canonical agent capability.
type Tool struct {
	Name          string
	Description   string
	IsDestructive bool
}

// catalog is the single source of truth for tool classification, grounded
// on the teacher's toolCategoryRegistry (internal/tools/tool_categories.go)
// but keyed to this system's tool names from spec §6.
var catalog = []Tool{
	{"Bash", "Run a shell command", true},
	{"Read", "Read a file", false},
	{"Edit", "Edit a file in place", true},
	{"Write", "Write a file", true},
	{"Glob", "Find files by glob pattern", false},
	{"Grep", "Search file contents", false},
	{"Task", "Delegate work to a subagent", true},
	{"TaskOutput", "Read a subagent's output", false},
	{"TaskStop", "Stop a running subagent", false},
	{"WebFetch", "Fetch a URL", true},
	{"WebSearch", "Search the web", true},
	{"NotebookEdit", "Edit a Jupyter notebook cell", true},
	{"Skill", "Invoke a named skill", false},
	{"TaskCreate", "Create a tracked task", false},
	{"TaskGet", "Read a tracked task", false},
	{"TaskUpdate", "Update a tracked task", false},
	{"TaskList", "List tracked tasks", false},
	{"AskUserQuestion", "Ask the user a clarifying question", false},
	{"EnterPlanMode", "Enter plan mode", false},
	{"ExitPlanMode", "Exit plan mode", false},
}

var byName = func() map[string]Tool {
	m := make(map[string]Tool, len(catalog))
	for _, t := range catalog {
		m[t.Name] = t
	}
	return m
}()

// neverEnabled lists tools that are never permitted regardless of allowlist
// contents — the non-interactive-only policy from spec §6.
var neverEnabled = map[string]bool{
	"AskUserQuestion": true,
	"EnterPlanMode":   true,
	"ExitPlanMode":    true,
}

// DefaultAllowedTools is the canonical default allowlist (spec §6), in the
// order the spec enumerates it.
func DefaultAllowedTools() []string {
	return []string{
		"Bash", "Read", "Edit", "Write", "Glob", "Grep",
		"Task", "TaskOutput", "TaskStop", "WebFetch", "WebSearch",
		"NotebookEdit", "Skill", "TaskCreate", "TaskGet", "TaskUpdate", "TaskList",
	}
}

// Normalize canonicalizes a tool name. A name that matches a catalog tool
// case-insensitively maps to the catalog spelling ("bash" and "webfetch"
// give "Bash" and "WebFetch"); any other name is lowercased with its first
// character title-cased. This is the only form allowlist membership is
// checked against. Normalize is idempotent: Normalize(Normalize(s)) ==
// Normalize(s).
func Normalize(name string) string {
	for _, t := range catalog {
		if strings.EqualFold(t.Name, name) {
			return t.Name
		}
	}
	lower := strings.ToLower(name)
	if lower == "" {
		return lower
	}
	r := []rune(lower)
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}

// Lookup returns the catalog entry for name (after normalization) and
// whether it is a known tool. Unknown tool names are accepted (custom
// tools) and classified non-destructive by default.
func Lookup(name string) (Tool, bool) {
	norm := Normalize(name)
	t, ok := byName[norm]
	if !ok {
		return Tool{Name: norm, Description: "", IsDestructive: false}, false
	}
	return t, true
}

// IsDestructive reports whether a tool is destructive-marked, per spec §6.
func IsDestructive(name string) bool {
	t, _ := Lookup(name)
	return t.IsDestructive
}

// NeverEnabled reports whether a tool may never be enabled regardless of
// the user's allowlist (non-interactive-only policy).
func NeverEnabled(name string) bool {
	return neverEnabled[Normalize(name)]
}

// DisabledNotice builds the system-prompt notice instructing the agent not
// to invoke tools that are in the default set but absent from the current
// allowlist (spec §4.5, tested by S6).
func DisabledNotice(allowed []string) string {
	allowedSet := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allowedSet[Normalize(a)] = true
	}

	var disabled []string
	for _, name := range DefaultAllowedTools() {
		if !allowedSet[name] {
			disabled = append(disabled, name)
		}
	}
	if len(disabled) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("DISABLED TOOLS: ")
	b.WriteString(strings.Join(disabled, ", "))
	b.WriteString(". Do not invoke these tools. If the user's request requires one, tell them which tool is required and that it is currently disabled.")
	return b.String()
}

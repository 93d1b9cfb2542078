// Package filemanager implements surface C (C8): a local terminal file
// manager built on bubbletea/bubbles/glamour/lipgloss, grounded on the
// teacher's internal/tui package (Model/Update/View split, viewport +
// textarea + spinner composition, glamour rendering of agent replies).
// Unlike the teacher's single agent-chat pane, this surface adds a
// directory-listing pane the user navigates to choose the agent's working
// directory, per this system's file-manager framing of the same core.
package filemanager

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"

	"github.com/itismyfield/cokacdir/internal/agentproc"
	"github.com/itismyfield/cokacdir/internal/sessions"
	"github.com/itismyfield/cokacdir/internal/surfacecmd"
)

// Entry is one row in the directory-listing pane.
type Entry struct {
	Name  string
	IsDir bool
}

// Widgets is the narrow interface this surface consumes from the
// out-of-scope external collaborators (dialogs, image viewer); this
// package defines only the interface, not an implementation.
type Widgets interface {
	Confirm(prompt string) bool
	OpenImagePreview(path string) error
}

// noWidgets is used when no collaborator is wired; Confirm defaults to
// rejecting, and image preview reports unsupported.
type noWidgets struct{}

func (noWidgets) Confirm(string) bool           { return false }
func (noWidgets) OpenImagePreview(string) error { return errUnsupportedPreview }

var errUnsupportedPreview = &unsupportedError{"image preview is not wired into this build"}

type unsupportedError struct{ msg string }

func (e *unsupportedError) Error() string { return e.msg }

// SupportsTrueColor reports whether the attached terminal's color profile
// supports 24-bit color, consulted before rendering agent markdown with
// glamour's full style.
func SupportsTrueColor() bool {
	return termenv.NewOutput(os.Stdout).Profile == termenv.TrueColor
}

// streamMsg/doneMsg/errMsg bridge the agentproc event stream into
// bubbletea's message loop, mirroring the teacher's StreamMsg/ErrorMsg.
type streamMsg struct{ content string }
type toolMsg struct{ summary string }
type doneMsg struct {
	sessionID string
	final     string
}
type errMsg struct{ err error }
type dirEntriesMsg struct {
	dir     string
	entries []Entry
}

// Model is the bubbletea model for the file manager surface.
type Model struct {
	key       sessions.Key
	deps      surfacecmd.Deps
	bridge    *agentproc.Bridge
	widgets   Widgets
	streamCh  chan tea.Msg

	Cwd     string
	Entries []Entry
	Cursor  int

	Viewport  viewport.Model
	Input     textarea.Model
	Spinner   spinner.Model
	Renderer  *glamour.TermRenderer
	IsLoading bool

	FocusInput bool

	cancel *agentproc.CancelToken

	width, height int
}

// New constructs a file manager model rooted at cwd.
func New(key sessions.Key, deps surfacecmd.Deps, bridge *agentproc.Bridge, cwd string) Model {
	renderer, _ := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))

	in := textarea.New()
	in.Placeholder = "Ask the agent, or type /help..."
	in.Focus()
	in.ShowLineNumbers = false
	in.SetHeight(1)

	vp := viewport.New(80, 20)
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	m := Model{
		key:        key,
		deps:       deps,
		bridge:     bridge,
		widgets:    noWidgets{},
		streamCh:   make(chan tea.Msg, 64),
		Cwd:        cwd,
		Viewport:   vp,
		Input:      in,
		Spinner:    sp,
		Renderer:   renderer,
		FocusInput: true,
	}
	return m
}

// WithWidgets wires a real dialogs/image-viewer collaborator.
func (m Model) WithWidgets(w Widgets) Model {
	m.widgets = w
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.Spinner.Tick, listDir(m.Cwd), m.waitForStream())
}

func (m Model) waitForStream() tea.Cmd {
	return func() tea.Msg {
		return <-m.streamCh
	}
}

func listDir(dir string) tea.Cmd {
	return func() tea.Msg {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return errMsg{err}
		}
		return dirEntriesMsg{dir: dir, entries: toEntries(entries)}
	}
}

func toEntries(des []os.DirEntry) []Entry {
	out := make([]Entry, 0, len(des)+1)
	out = append(out, Entry{Name: "..", IsDir: true})
	for _, de := range des {
		out = append(out, Entry{Name: de.Name(), IsDir: de.IsDir()})
	}
	sort.SliceStable(out[1:], func(i, j int) bool {
		a, b := out[1:][i], out[1:][j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return a.Name < b.Name
	})
	return out
}

func selectedPath(m Model) string {
	if m.Cursor < 0 || m.Cursor >= len(m.Entries) {
		return m.Cwd
	}
	entry := m.Entries[m.Cursor]
	if entry.Name == ".." {
		return filepath.Dir(m.Cwd)
	}
	return filepath.Join(m.Cwd, entry.Name)
}

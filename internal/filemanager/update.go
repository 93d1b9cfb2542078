package filemanager

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/creack/pty"

	"github.com/itismyfield/cokacdir/internal/agentproc"
	"github.com/itismyfield/cokacdir/internal/format"
	"github.com/itismyfield/cokacdir/internal/presenter"
	"github.com/itismyfield/cokacdir/internal/sessions"
	"github.com/itismyfield/cokacdir/internal/surfacecmd"
	"github.com/itismyfield/cokacdir/internal/tools"
)

// Init/View live in model.go and view.go; Update is the bubbletea event
// loop, grounded on the teacher's tui.Update dispatch (key interception,
// then forward to child widgets).
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.Viewport.Width = msg.Width
		m.Viewport.Height = msg.Height - 4
		m.Input.SetWidth(msg.Width - 2)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case dirEntriesMsg:
		m.Cwd = msg.dir
		m.Entries = msg.entries
		m.Cursor = 0
		m.deps.Skills.SetWorkDir(msg.dir)
		return m, nil

	case streamMsg:
		m.Viewport.SetContent(m.Viewport.View() + msg.content)
		m.Viewport.GotoBottom()
		return m, m.waitForStream()

	case toolMsg:
		m.Viewport.SetContent(m.Viewport.View() + "\n" + msg.summary)
		m.Viewport.GotoBottom()
		return m, m.waitForStream()

	case doneMsg:
		m.IsLoading = false
		m.cancel = nil
		return m, m.waitForStream()

	case errMsg:
		m.IsLoading = false
		m.cancel = nil
		m.Viewport.SetContent(m.Viewport.View() + "\n[error] " + msg.err.Error())
		return m, m.waitForStream()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	if m.FocusInput {
		m.Input, cmd = m.Input.Update(msg)
	}
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if m.cancel != nil {
			m.cancel.Cancel()
		}
		return m, tea.Quit

	case "tab":
		m.FocusInput = !m.FocusInput
		if m.FocusInput {
			m.Input.Focus()
		} else {
			m.Input.Blur()
		}
		return m, nil
	}

	if !m.FocusInput {
		switch msg.String() {
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
			}
			return m, nil
		case "down", "j":
			if m.Cursor < len(m.Entries)-1 {
				m.Cursor++
			}
			return m, nil
		case "enter":
			target := selectedPath(m)
			if info, err := os.Stat(target); err == nil && info.IsDir() {
				return m, listDir(target)
			}
			return m, m.openFile(target)
		}
		return m, nil
	}

	if msg.String() == "enter" && !msg.Alt {
		text := strings.TrimSpace(m.Input.Value())
		m.Input.Reset()
		if text == "" {
			return m, nil
		}
		return m.submit(text)
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	return m, cmd
}

// submit dispatches text the same way the messenger surfaces do: commands
// resolve synchronously, free text (or /cc) starts the agent.
func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	if err := m.deps.Sessions.SetPath(m.key, m.Cwd); err != nil {
		m.Viewport.SetContent(m.Viewport.View() + "\n[error] " + err.Error())
	}

	if strings.HasPrefix(strings.TrimSpace(text), "!") {
		return m.runShell(strings.TrimSpace(text)[1:])
	}

	result := surfacecmd.Dispatch(m.deps, surfacecmd.Request{
		Key: m.key, UserID: "local", UserLabel: "local", Text: text, ConversationKey: m.Cwd,
	})

	if !result.StartAgent {
		if result.Reply != "" {
			m.Viewport.SetContent(m.Viewport.View() + "\n" + result.Reply)
			m.Viewport.GotoBottom()
		}
		return m, nil
	}

	return m.runAgent(result.Prompt)
}

// runAgent starts a bridge request and pumps its StreamMessage channel into
// the bubbletea message loop via m.streamCh, mirroring the teacher's
// channel-fed StreamMsg/ErrorMsg bridge pattern.
func (m Model) runAgent(prompt string) (tea.Model, tea.Cmd) {
	token := agentproc.NewCancelToken()
	if !m.deps.Sessions.AttachCancel(m.key, token) {
		m.Viewport.SetContent(m.Viewport.View() + "\na request is already in progress.")
		return m, nil
	}

	sess := m.deps.Sessions.GetOrCreate(m.key)
	allowed := m.deps.Settings.AllowedTools(m.deps.CredentialKey, m.deps.CredentialToken)

	req := agentproc.Request{
		Prompt:           prompt,
		PriorSessionID:   sess.AgentSessionID,
		WorkingDirectory: sess.WorkingDirectory,
		AllowedTools:     allowed,
		SystemPrompt:     tools.DisabledNotice(allowed),
		Cancel:           token,
	}

	m.cancel = token
	m.IsLoading = true
	m.deps.Sessions.ResetCleared(m.key)
	m.deps.Sessions.Append(m.key, sessions.HistoryItem{Kind: sessions.User, Content: prompt})
	m.Viewport.SetContent(m.Viewport.View() + "\n> " + prompt + "\n")

	stream := m.bridge.Run(context.Background(), req)
	streamCh := m.streamCh
	key := m.key
	deps := m.deps

	go func() {
		var final string
		var sessionID string
		for ev := range stream {
			switch ev.Kind {
			case agentproc.KindText:
				final += ev.Content
				streamCh <- streamMsg{content: ev.Content}
			case agentproc.KindToolUse:
				streamCh <- toolMsg{summary: "\n[" + presenter.SummarizeToolInput(ev.ToolName, ev.ToolInput) + "]"}
			case agentproc.KindInit:
				sessionID = ev.SessionID
			case agentproc.KindDone:
				final = ev.Result
				if ev.SessionID != "" {
					sessionID = ev.SessionID
				}
				if sessionID != "" {
					deps.Sessions.SetAgentSessionID(key, sessionID)
				}
				deps.Sessions.Append(key, sessions.HistoryItem{Kind: sessions.Assistant, Content: final})
				deps.Sessions.Persist(key)
				deps.Sessions.DetachCancel(key)
				streamCh <- doneMsg{sessionID: sessionID, final: final}
			case agentproc.KindError:
				deps.Sessions.DetachCancel(key)
				streamCh <- errMsg{err: fmt.Errorf("%s", ev.Message)}
			}
		}
	}()

	return m, m.waitForStream()
}

// openFile routes a non-directory selection to the image viewer for image
// extensions; for everything else it asks Confirm and, on approval, appends
// the file's path to the conversation viewport (the file itself is not
// opened). Both go through the narrow
// Widgets collaborator interface (dialogs/image viewer are out of scope;
// spec §1).
func (m Model) openFile(path string) tea.Cmd {
	return func() tea.Msg {
		lower := strings.ToLower(path)
		if strings.HasSuffix(lower, ".png") || strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg") || strings.HasSuffix(lower, ".gif") {
			if err := m.widgets.OpenImagePreview(path); err != nil {
				return errMsg{err: err}
			}
			return streamMsg{content: ""}
		}
		if !m.widgets.Confirm(fmt.Sprintf("open %s?", path)) {
			return streamMsg{content: ""}
		}
		return streamMsg{content: "\n" + path}
	}
}

// runShell executes cmd behind a pty so interactive output (progress bars,
// color) renders correctly, then relays the flattened transcript through
// the same viewport the agent's replies use. Grounded on the
// DOMAIN STACK's creack/pty binding for the inline "!<cmd>" command.
func (m Model) runShell(cmdline string) (tea.Model, tea.Cmd) {
	cmdline = strings.TrimSpace(cmdline)
	if cmdline == "" {
		return m, nil
	}

	cwd := m.Cwd
	viewportText := m.Viewport.View() + "\n$ " + cmdline + "\n"
	m.Viewport.SetContent(viewportText)

	return m, func() tea.Msg {
		c := exec.Command("sh", "-c", cmdline)
		c.Dir = cwd
		ptmx, err := pty.Start(c)
		if err != nil {
			return errMsg{err: fmt.Errorf("shell start: %w", err)}
		}
		defer ptmx.Close()

		buf := make([]byte, 32*1024)
		var out strings.Builder
		for {
			n, readErr := ptmx.Read(buf)
			if n > 0 {
				out.Write(buf[:n])
			}
			if readErr != nil {
				break
			}
		}
		c.Wait()
		return streamMsg{content: format.ProcessTerminalOutput(out.String())}
	}
}

package filemanager

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/itismyfield/cokacdir/internal/filemanager/style"
)

// View renders the three-pane layout: directory listing, conversation
// viewport, and input box, grounded on the teacher's tui.View composition
// (header/viewport/footer/input joined vertically) generalized to a
// two-column split for the directory pane.
func (m Model) View() string {
	if m.width <= 0 {
		return "initializing..."
	}

	header := style.HeaderStyle.Render(fmt.Sprintf("cokacdir — %s", m.Cwd))

	listWidth := m.width / 3
	if listWidth < 20 {
		listWidth = 20
	}
	list := m.renderEntries(listWidth)

	convo := m.Viewport.View()
	if m.IsLoading {
		convo += "\n" + style.SpinnerStyle.Render(m.Spinner.View()) + " working..."
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(listWidth).Render(list),
		lipgloss.NewStyle().Width(m.width-listWidth).Render(convo),
	)

	input := m.Input.View()
	focusNote := "file list"
	if m.FocusInput {
		focusNote = "prompt"
	}
	footer := style.MetaStyle.Render(fmt.Sprintf("tab: switch focus (%s) · ctrl+c: quit/cancel", focusNote))

	return lipgloss.JoinVertical(lipgloss.Left, header, body, input, footer)
}

func (m Model) renderEntries(width int) string {
	var b strings.Builder
	b.WriteString(style.PaneTitleStyle.Render("files") + "\n")
	for i, e := range m.Entries {
		line := e.Name
		if e.IsDir {
			line += "/"
		}
		rendered := style.FileStyle.Render(line)
		if e.IsDir {
			rendered = style.DirStyle.Render(line)
		}
		if i == m.Cursor && !m.FocusInput {
			rendered = style.SelectedStyle.Render("> " + line)
		}
		b.WriteString(rendered + "\n")
	}
	return lipgloss.NewStyle().Width(width).Render(b.String())
}

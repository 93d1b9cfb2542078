// Package style holds the lipgloss palette for the terminal file manager
// surface, grounded on the teacher's internal/tui/style package.
package style

import "github.com/charmbracelet/lipgloss"

var (
	BurntOrange = lipgloss.Color("#DA702C")
	MutedGray   = lipgloss.Color("245")
	White       = lipgloss.Color("#FFFFFF")
	Cyan        = lipgloss.Color("86")
	Red         = lipgloss.Color("196")
	Green       = lipgloss.Color("#2E8B57")
)

var (
	DirStyle       = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	FileStyle      = lipgloss.NewStyle().Foreground(White)
	SelectedStyle  = lipgloss.NewStyle().Foreground(BurntOrange).Bold(true)
	UserStyle      = lipgloss.NewStyle().Foreground(White)
	AgentStyle     = lipgloss.NewStyle().Foreground(BurntOrange)
	ErrorStyle     = lipgloss.NewStyle().Foreground(Red)
	MetaStyle      = lipgloss.NewStyle().Foreground(MutedGray)
	SpinnerStyle   = lipgloss.NewStyle().Foreground(BurntOrange)
	HeaderStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(BurntOrange).Padding(0, 1).Foreground(White)
	PaneTitleStyle = lipgloss.NewStyle().Foreground(BurntOrange).Bold(true)
)

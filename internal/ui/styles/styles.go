package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	// Colors
	Primary    = lipgloss.Color("#7C3AED")
	Secondary  = lipgloss.Color("#06B6D4")
	Success    = lipgloss.Color("#10B981")
	Warning    = lipgloss.Color("#F59E0B")
	Error      = lipgloss.Color("#EF4444")
	Muted      = lipgloss.Color("#6B7280")
	Background = lipgloss.Color("#1F2937")
	Foreground = lipgloss.Color("#F9FAFB")
	Border     = lipgloss.Color("#374151")

	// Title bar
	TitleBar = lipgloss.NewStyle().
			Foreground(Foreground).
			Background(Primary).
			Padding(0, 1).
			Bold(true)

	// Help text
	Help = lipgloss.NewStyle().
		Foreground(Muted)

	HelpKey = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	// Muted text style
	MutedText = lipgloss.NewStyle().
			Foreground(Muted)

	// Secondary text style
	SecondaryText = lipgloss.NewStyle().
			Foreground(Secondary)

	// Error message
	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true).
			Padding(0, 1)

	// List styles
	ListItem = lipgloss.NewStyle().
			Foreground(Foreground).
			Padding(0, 2)

	ListItemSelected = lipgloss.NewStyle().
				Foreground(Foreground).
				Background(Primary).
				Padding(0, 2).
				Bold(true)

	ListItemDimmed = lipgloss.NewStyle().
			Foreground(Muted).
			Padding(0, 2)

	// Reader styles
	ReaderHeader = lipgloss.NewStyle().
			Foreground(Foreground).
			Background(Primary).
			Padding(0, 1).
			Bold(true)

	ReaderProgress = lipgloss.NewStyle().
			Foreground(Secondary).
			Align(lipgloss.Right)

	FooterBar = lipgloss.NewStyle().
			Foreground(Muted).
			Padding(0, 1)

	// Search highlights
	SearchMatch = lipgloss.NewStyle().
			Background(lipgloss.Color("8")).
			Foreground(lipgloss.Color("15"))

	SearchCurrent = lipgloss.NewStyle().
			Background(lipgloss.Color("3")).
			Foreground(lipgloss.Color("0")).
			Bold(true)

	// Dialog/Modal styles
	Dialog = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Primary).
		Padding(1, 2)

	DialogTitle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true).
			MarginBottom(1)

	// Book info styles
	BookTitle = lipgloss.NewStyle().
			Foreground(Foreground).
			Bold(true)

	BookAuthor = lipgloss.NewStyle().
			Foreground(Secondary)
)

// TruncateText shortens text to a display width, appending an ellipsis.
// Width is measured in terminal cells, so CJK text truncates correctly.
func TruncateText(text string, maxWidth int) string {
	if maxWidth < 1 {
		return ""
	}
	if runewidth.StringWidth(text) <= maxWidth {
		return text
	}
	return runewidth.Truncate(text, maxWidth, "…")
}

package views

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tatami-reader/tatami/internal/document"
)

// ViewType represents different screens in the application
type ViewType int

const (
	ViewShelf ViewType = iota
	ViewReader
)

// String returns the name of the view
func (v ViewType) String() string {
	switch v {
	case ViewShelf:
		return "Shelf"
	case ViewReader:
		return "Reader"
	default:
		return "Unknown"
	}
}

// View is the interface that all views must implement
type View interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (View, tea.Cmd)
	View() string
	SetSize(width, height int)
}

// Message types for inter-view communication

// OpenBookMsg is sent when a book source is ready to read
type OpenBookMsg struct {
	Source document.Source
}

// ErrorMsg is sent when an error occurs
type ErrorMsg struct {
	Err error
}

// ClearErrorMsg clears the current error
type ClearErrorMsg struct{}

// SwitchViewMsg requests a view switch
type SwitchViewMsg struct {
	View ViewType
}

// SendError creates an error message command
func SendError(err error) tea.Cmd {
	return func() tea.Msg {
		return ErrorMsg{Err: err}
	}
}

// SwitchTo creates a command to switch views
func SwitchTo(view ViewType) tea.Cmd {
	return func() tea.Msg {
		return SwitchViewMsg{View: view}
	}
}

// Package ui is the bubbletea front end: a shelf of recent books and the
// reader itself, glued together by one root model.
package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tatami-reader/tatami/internal/config"
	"github.com/tatami-reader/tatami/internal/document"
	"github.com/tatami-reader/tatami/internal/lookup"
	"github.com/tatami-reader/tatami/internal/progress"
	"github.com/tatami-reader/tatami/internal/ui/styles"
	"github.com/tatami-reader/tatami/internal/ui/views"
)

// App is the main application model
type App struct {
	config *config.Config
	store  *progress.Store
	writer *progress.Writer
	keys   KeyMap

	// Current view state
	currentView views.ViewType

	// Window dimensions
	width  int
	height int

	// View models
	shelfView  views.View
	readerView views.View

	// Error/status message
	err      error
	showHelp bool
}

// Options carries the app's collaborators. Store and Writer may be nil when
// persistence is disabled.
type Options struct {
	Store  *progress.Store
	Writer *progress.Writer
	Dict   lookup.Backend
	// Source, when set, opens straight into the reader.
	Source document.Source
	// Fresh discards the stored position for the opened book.
	Fresh bool
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config, opts Options) *App {
	styles.SetCurrentTheme(cfg.Reader.Theme)

	app := &App{
		config:      cfg,
		store:       opts.Store,
		writer:      opts.Writer,
		keys:        DefaultKeyMap(),
		currentView: views.ViewShelf,
		width:       80,
		height:      24,
	}

	app.shelfView = views.NewShelfView(opts.Store)
	reader := views.NewReaderView(cfg, opts.Store, opts.Writer, opts.Dict)
	app.readerView = reader

	if opts.Source != nil {
		app.openBook(opts.Source, opts.Fresh)
		app.currentView = views.ViewReader
	}

	return app
}

// openBook hands a source to the reader, restoring the stored position
// unless fresh is set.
func (a *App) openBook(src document.Source, fresh bool) {
	reader := a.readerView.(*views.ReaderView)
	reader.SetBook(src)

	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = a.store.RememberBook(ctx, src.Book())
	if fresh {
		_ = a.store.Reset(ctx, src.Book().ID)
		return
	}
	if pos, ok, err := a.store.LoadPosition(ctx, src.Book().ID); err == nil && ok {
		reader.SetPosition(pos)
	}
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.getCurrentView().Init(),
		tea.SetWindowTitle("tatami"),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.shelfView.SetSize(msg.Width, msg.Height)
		a.readerView.SetSize(msg.Width, msg.Height)
		// The reader also recomputes pagination on resize; fall through
		// to the delegation below.

	case tea.KeyMsg:
		// Overlays and search own their keys, including q, ? and T.
		capturing := a.currentView == views.ViewReader &&
			a.readerView.(*views.ReaderView).ConsumesKeys()

		switch {
		case key.Matches(msg, a.keys.ForceQuit):
			return a, a.quit()

		case capturing:
			// fall through to delegation

		case key.Matches(msg, a.keys.Quit):
			if a.currentView == views.ViewReader {
				return a.switchView(views.ViewShelf)
			}
			return a, a.quit()

		case key.Matches(msg, a.keys.Help):
			a.showHelp = !a.showHelp
			return a, nil

		case key.Matches(msg, a.keys.Theme):
			name := styles.NextTheme()
			a.config.Reader.Theme = name
			_ = a.config.Save()
			return a, nil

		case key.Matches(msg, a.keys.Escape):
			if a.showHelp {
				a.showHelp = false
				return a, nil
			}
		}

	case views.OpenBookMsg:
		a.openBook(msg.Source, false)
		return a.switchView(views.ViewReader)

	case views.ErrorMsg:
		a.err = msg.Err
		return a, nil

	case views.ClearErrorMsg:
		a.err = nil
		return a, nil

	case views.SwitchViewMsg:
		return a.switchView(msg.View)
	}

	// Delegate to current view
	var cmd tea.Cmd
	switch a.currentView {
	case views.ViewShelf:
		a.shelfView, cmd = a.shelfView.Update(msg)
	case views.ViewReader:
		a.readerView, cmd = a.readerView.Update(msg)
	}
	cmds = append(cmds, cmd)

	return a, tea.Batch(cmds...)
}

// quit flushes pending state and exits.
func (a *App) quit() tea.Cmd {
	a.readerView.(*views.ReaderView).SavePositionOnExit()
	return tea.Quit
}

// View implements tea.Model
func (a *App) View() string {
	var content string
	switch a.currentView {
	case views.ViewShelf:
		content = a.shelfView.View()
	case views.ViewReader:
		content = a.readerView.View()
	default:
		content = "Unknown view"
	}

	if a.err != nil {
		errorBar := styles.ErrorStyle.Render("Error: " + a.err.Error())
		content = lipgloss.JoinVertical(lipgloss.Left, content, errorBar)
	}

	if a.showHelp {
		content = a.renderHelp()
	}

	return content
}

// switchView changes the current view and initializes it
func (a *App) switchView(view views.ViewType) (*App, tea.Cmd) {
	if a.currentView == views.ViewReader && view != views.ViewReader {
		a.readerView.(*views.ReaderView).SavePositionOnExit()
	}
	a.currentView = view
	a.err = nil
	return a, a.getCurrentView().Init()
}

// getCurrentView returns the current view model
func (a *App) getCurrentView() views.View {
	if a.currentView == views.ViewReader {
		return a.readerView
	}
	return a.shelfView
}

// renderHelp renders the help overlay
func (a *App) renderHelp() string {
	help := styles.Dialog.Width(56).Render(
		styles.DialogTitle.Render("Keyboard Shortcuts") + "\n\n" +
			styles.HelpKey.Render("Pages") + "\n" +
			"  h/l ←/→  Turn page (follows reading direction)\n" +
			"  j/k      Next/previous page, or scroll\n" +
			"  Space    Next page\n" +
			"  g/G      First/last page of chapter\n\n" +
			styles.HelpKey.Render("Chapters") + "\n" +
			"  n/p      Next/previous chapter\n" +
			"  t        Table of contents\n\n" +
			styles.HelpKey.Render("Reading") + "\n" +
			"  /        Search in chapter\n" +
			"  b/B      Bookmarks / add bookmark\n" +
			"  f        Toggle furigana\n" +
			"  c        Paged / continuous mode\n" +
			"  v        Cycle reading direction\n" +
			"  +/-/0    Text scale\n" +
			"  Tab      Hide header and footer\n\n" +
			styles.HelpKey.Render("General") + "\n" +
			"  T        Cycle theme\n" +
			"  q        Back / quit\n" +
			"  ?        Toggle help\n",
	)

	return lipgloss.Place(
		a.width,
		a.height,
		lipgloss.Center,
		lipgloss.Center,
		help,
	)
}

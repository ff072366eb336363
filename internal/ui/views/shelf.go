package views

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tatami-reader/tatami/internal/document"
	"github.com/tatami-reader/tatami/internal/progress"
	"github.com/tatami-reader/tatami/internal/ui/styles"
	"github.com/tatami-reader/tatami/pkg/models"
)

// ShelfView lists recently read books so a reader can resume one.
type ShelfView struct {
	store *progress.Store

	books  []models.RecentBook
	cursor int

	loading bool
	err     error
	width   int
	height  int
}

// NewShelfView creates the recent-books shelf. store may be nil.
func NewShelfView(store *progress.Store) *ShelfView {
	return &ShelfView{
		store:  store,
		width:  80,
		height: 24,
	}
}

type recentLoadedMsg struct {
	books []models.RecentBook
	err   error
}

type bookOpenedMsg struct {
	source document.Source
	err    error
}

// Init implements View
func (v *ShelfView) Init() tea.Cmd {
	if v.store == nil {
		return nil
	}
	v.loading = true
	store := v.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		books, err := store.Recent(ctx, 20)
		return recentLoadedMsg{books: books, err: err}
	}
}

// Update implements View
func (v *ShelfView) Update(msg tea.Msg) (View, tea.Cmd) {
	switch msg := msg.(type) {
	case recentLoadedMsg:
		v.loading = false
		v.err = msg.err
		v.books = msg.books
		if v.cursor >= len(v.books) {
			v.cursor = 0
		}
		return v, nil

	case bookOpenedMsg:
		v.loading = false
		if msg.err != nil {
			v.err = msg.err
			return v, nil
		}
		src := msg.source
		return v, func() tea.Msg { return OpenBookMsg{Source: src} }

	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			if v.cursor < len(v.books)-1 {
				v.cursor++
			}
		case "k", "up":
			if v.cursor > 0 {
				v.cursor--
			}
		case "g", "home":
			v.cursor = 0
		case "G", "end":
			if len(v.books) > 0 {
				v.cursor = len(v.books) - 1
			}
		case "r":
			return v, v.Init()
		case "enter":
			if v.cursor < len(v.books) {
				return v, v.openBook(v.books[v.cursor].Path)
			}
		}
	}
	return v, nil
}

// openBook reopens a shelved book from its path.
func (v *ShelfView) openBook(path string) tea.Cmd {
	v.loading = true
	return func() tea.Msg {
		src, err := document.OpenEPUB(path)
		return bookOpenedMsg{source: src, err: err}
	}
}

// View implements View
func (v *ShelfView) View() string {
	var b strings.Builder
	b.WriteString(styles.TitleBar.Render(" tatami ") + "\n\n")

	switch {
	case v.loading:
		b.WriteString(styles.MutedText.Render("  Loading..."))
	case v.err != nil:
		b.WriteString(styles.ErrorStyle.Render("Error: " + v.err.Error()))
	case len(v.books) == 0:
		b.WriteString(styles.MutedText.Render("  No books yet. Open one: tatami <book.epub>"))
	default:
		for i, rb := range v.books {
			title := styles.TruncateText(rb.Title, v.width-20)
			line := fmt.Sprintf("%s  %3.0f%%", title, rb.Progress)
			if i == v.cursor {
				b.WriteString(styles.ListItemSelected.Render("▸ "+line) + "\n")
			} else {
				b.WriteString(styles.ListItem.Render("  "+line) + "\n")
			}
		}
	}

	help := styles.HelpKey.Render("j/k") + styles.Help.Render(" move") + "  " +
		styles.HelpKey.Render("enter") + styles.Help.Render(" open") + "  " +
		styles.HelpKey.Render("r") + styles.Help.Render(" refresh") + "  " +
		styles.HelpKey.Render("q") + styles.Help.Render(" quit")

	content := b.String()
	fill := v.height - lipgloss.Height(content) - 2
	if fill > 0 {
		content += strings.Repeat("\n", fill)
	}
	return content + "\n" + help
}

// SetSize implements View
func (v *ShelfView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

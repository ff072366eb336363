package views

import (
	"context"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tatami-reader/tatami/internal/config"
	"github.com/tatami-reader/tatami/internal/document"
	"github.com/tatami-reader/tatami/pkg/models"
)

type fakeSource struct {
	book     models.Book
	chapters []document.Chapter
	toc      []models.TOCEntry
}

func (f *fakeSource) Book() models.Book    { return f.book }
func (f *fakeSource) ChapterCount() int    { return len(f.chapters) }
func (f *fakeSource) TOC() []models.TOCEntry { return f.toc }
func (f *fakeSource) Close() error         { return nil }

func (f *fakeSource) Chapter(_ context.Context, index int) (*document.Chapter, error) {
	if index < 0 || index >= len(f.chapters) {
		return nil, fmt.Errorf("chapter %d out of range", index)
	}
	return &f.chapters[index], nil
}

// multiPageChapter returns a chapter guaranteed to span several pages at a
// 40x14 viewport.
func multiPageChapter(index int) document.Chapter {
	var blocks []document.Block
	for i := 0; i < 13; i++ {
		blocks = append(blocks, document.Block{
			Kind: document.BlockText,
			Text: fmt.Sprintf("Paragraph %d of section %d.", i+1, index+1),
		})
	}
	return document.Chapter{Index: index, Title: fmt.Sprintf("Section %d", index+1), Blocks: blocks}
}

// drive pumps a command's messages back through Update until it settles.
func drive(t *testing.T, v View, cmd tea.Cmd) View {
	t.Helper()
	for cmd != nil {
		msg := cmd()
		if msg == nil {
			return v
		}
		v, cmd = v.Update(msg)
	}
	return v
}

func openTestReader(t *testing.T, src document.Source) *ReaderView {
	t.Helper()
	cfg := config.Defaults()
	v := NewReaderView(&cfg, nil, nil, nil)
	v.SetSize(40, 14)
	v.SetBook(src)
	out := drive(t, v, v.Init())
	r := out.(*ReaderView)
	if r.navc.MetricsPending() {
		t.Fatal("metrics still pending after init")
	}
	return r
}

func twoSectionSource() *fakeSource {
	return &fakeSource{
		book: models.Book{ID: "test", Title: "Test Book"},
		chapters: []document.Chapter{
			multiPageChapter(0),
			multiPageChapter(1),
		},
		toc: []models.TOCEntry{
			{Title: "Section 1", ChapterIndex: 0},
			{Title: "Section 2", ChapterIndex: 1},
		},
	}
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestPageTurnKeys(t *testing.T) {
	v := openTestReader(t, twoSectionSource())
	if v.navc.TotalPages() < 2 {
		t.Fatalf("test chapter paginated to %d pages, need several", v.navc.TotalPages())
	}

	out, cmd := v.Update(keyMsg("l"))
	v = drive(t, out, cmd).(*ReaderView)
	if v.navc.Page() != 1 {
		t.Errorf("after l: page %d, want 1", v.navc.Page())
	}

	out, cmd = v.Update(keyMsg("h"))
	v = drive(t, out, cmd).(*ReaderView)
	if v.navc.Page() != 0 {
		t.Errorf("after h: page %d, want 0", v.navc.Page())
	}
}

func TestPageTurnRollsIntoNextChapter(t *testing.T) {
	v := openTestReader(t, twoSectionSource())

	// Walk off the end of chapter 0.
	for i := 0; i < v.navc.TotalPages(); i++ {
		out, cmd := v.Update(keyMsg("l"))
		v = drive(t, out, cmd).(*ReaderView)
	}
	if v.navc.Chapter() != 1 {
		t.Fatalf("chapter %d, want 1", v.navc.Chapter())
	}
	if v.navc.Page() != 0 {
		t.Errorf("new chapter starts on page %d, want 0", v.navc.Page())
	}
	if v.navc.MetricsPending() {
		t.Error("metrics should have settled after the chapter load round trip")
	}
}

func TestBackwardsRollLandsOnLastPage(t *testing.T) {
	v := openTestReader(t, twoSectionSource())

	out, cmd := v.Update(keyMsg("n")) // next chapter
	v = drive(t, out, cmd).(*ReaderView)
	if v.navc.Chapter() != 1 || v.navc.Page() != 0 {
		t.Fatalf("setup: chapter %d page %d", v.navc.Chapter(), v.navc.Page())
	}

	out, cmd = v.Update(keyMsg("h")) // back across the boundary
	v = drive(t, out, cmd).(*ReaderView)
	if v.navc.Chapter() != 0 {
		t.Fatalf("chapter %d, want 0", v.navc.Chapter())
	}
	if want := v.navc.TotalPages() - 1; v.navc.Page() != want {
		t.Errorf("page %d, want last page %d", v.navc.Page(), want)
	}
}

func TestTapOpensLookupOverlay(t *testing.T) {
	src := &fakeSource{
		book: models.Book{ID: "jp", Title: "日本語"},
		chapters: []document.Chapter{{
			Index: 0,
			Blocks: []document.Block{
				{Kind: document.BlockText, Text: "彼は静かに頷いた。そして歩き出した。"},
			},
		}},
	}
	v := openTestReader(t, src)

	// Content starts at the page margin (2,2). Press and release in place.
	out, cmd := v.Update(tea.MouseMsg{X: 2, Y: 2, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	v = drive(t, out, cmd).(*ReaderView)
	out, cmd = v.Update(tea.MouseMsg{X: 2, Y: 2, Action: tea.MouseActionRelease, Button: tea.MouseButtonLeft})
	v = drive(t, out, cmd).(*ReaderView)

	if v.lookupRes == nil {
		t.Fatal("tap on text did not open the lookup overlay")
	}
	if !strings.Contains(v.lookupRes.Body, "彼は静かに頷いた。") {
		t.Errorf("lookup sentence = %q, want the tapped sentence", v.lookupRes.Body)
	}
	if v.navc.Page() != 0 {
		t.Errorf("tap must not navigate, page = %d", v.navc.Page())
	}

	// Any key dismisses the overlay.
	out, cmd = v.Update(keyMsg("x"))
	v = drive(t, out, cmd).(*ReaderView)
	if v.lookupRes != nil {
		t.Error("overlay should close on any key")
	}
}

func TestVerticalDragDoesNotNavigateOrLookup(t *testing.T) {
	v := openTestReader(t, twoSectionSource())

	out, cmd := v.Update(tea.MouseMsg{X: 5, Y: 3, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	v = drive(t, out, cmd).(*ReaderView)
	out, cmd = v.Update(tea.MouseMsg{X: 5, Y: 8, Action: tea.MouseActionMotion})
	v = drive(t, out, cmd).(*ReaderView)
	out, cmd = v.Update(tea.MouseMsg{X: 5, Y: 8, Action: tea.MouseActionRelease, Button: tea.MouseButtonLeft})
	v = drive(t, out, cmd).(*ReaderView)

	if v.navc.Page() != 0 {
		t.Errorf("drag navigated to page %d", v.navc.Page())
	}
	if v.lookupRes != nil {
		t.Error("drag produced a lookup")
	}
}

func TestHorizontalSwipeTurnsPage(t *testing.T) {
	v := openTestReader(t, twoSectionSource())

	out, cmd := v.Update(tea.MouseMsg{X: 5, Y: 5, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	v = drive(t, out, cmd).(*ReaderView)
	out, cmd = v.Update(tea.MouseMsg{X: 25, Y: 6, Action: tea.MouseActionRelease, Button: tea.MouseButtonLeft})
	v = drive(t, out, cmd).(*ReaderView)

	if v.navc.Page() != 1 {
		t.Errorf("rightward swipe in LTR should advance, page = %d", v.navc.Page())
	}
	if v.lookupRes != nil {
		t.Error("swipe must not also trigger a lookup")
	}
}

func TestTextScaleChangeKeepsReadingPosition(t *testing.T) {
	v := openTestReader(t, twoSectionSource())

	out, cmd := v.Update(keyMsg("l"))
	v = drive(t, out, cmd).(*ReaderView)
	anchorBefore := v.captureAnchor()
	if anchorBefore == nil {
		t.Fatal("no anchor on page 1")
	}

	out, cmd = v.Update(keyMsg("+"))
	v = drive(t, out, cmd).(*ReaderView)
	if v.navc.MetricsPending() {
		t.Fatal("metrics pending after scale recompute settled")
	}

	anchorAfter := v.captureAnchor()
	if anchorAfter == nil {
		t.Fatal("no anchor after re-layout")
	}
	if anchorAfter.SentenceText != anchorBefore.SentenceText {
		t.Errorf("anchor drifted across re-layout: %q -> %q",
			anchorBefore.SentenceText, anchorAfter.SentenceText)
	}
}

func TestZeroMarginLeavesRoomForChrome(t *testing.T) {
	cfg := config.Defaults()
	cfg.Reader.PageMargin = 0
	v := NewReaderView(&cfg, nil, nil, nil)
	v.SetSize(40, 14)
	v.SetBook(twoSectionSource())
	v = drive(t, v, v.Init()).(*ReaderView)

	if got := v.topRows(); got != 1 {
		t.Errorf("topRows = %d, want 1", got)
	}
	if got := v.contentRows(); got != 12 {
		t.Errorf("contentRows = %d, want 12 (header and footer rows)", got)
	}
	if got := v.metrics.PageExtent; got != 12 {
		t.Errorf("measured page extent %v disagrees with visible rows 12", got)
	}
	if h := lipgloss.Height(v.View()); h != 14 {
		t.Errorf("rendered frame is %d rows for a 14-row viewport", h)
	}
}

func TestTOCJump(t *testing.T) {
	v := openTestReader(t, twoSectionSource())

	out, cmd := v.Update(keyMsg("t"))
	v = drive(t, out, cmd).(*ReaderView)
	if !v.showTOC {
		t.Fatal("t did not open the TOC")
	}

	out, cmd = v.Update(keyMsg("j"))
	v = drive(t, out, cmd).(*ReaderView)
	out, cmd = v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	v = drive(t, out, cmd).(*ReaderView)

	if v.showTOC {
		t.Error("TOC still open after selection")
	}
	if v.navc.Chapter() != 1 {
		t.Errorf("chapter %d, want 1", v.navc.Chapter())
	}
}

func TestSearchFindsMatchesInChapter(t *testing.T) {
	v := openTestReader(t, twoSectionSource())

	out, cmd := v.Update(keyMsg("/"))
	v = drive(t, out, cmd).(*ReaderView)
	for _, r := range "Paragraph 9" {
		out, cmd = v.Update(keyMsg(string(r)))
		v = drive(t, out, cmd).(*ReaderView)
	}
	out, cmd = v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	v = drive(t, out, cmd).(*ReaderView)

	if !v.searchActive {
		t.Fatal("search did not activate")
	}
	if len(v.searchMatches) != 1 {
		t.Fatalf("got %d matches, want 1", len(v.searchMatches))
	}
	wantPage := v.navc.Page()
	line := v.searchMatches[0].lineIndex
	top := v.topLine()
	if line < top || line >= top+v.contentRows() {
		t.Errorf("match line %d not visible on page %d", line, wantPage)
	}
}

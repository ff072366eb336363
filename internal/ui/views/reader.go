package views

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"log/slog"

	"github.com/tatami-reader/tatami/internal/anchor"
	"github.com/tatami-reader/tatami/internal/config"
	"github.com/tatami-reader/tatami/internal/document"
	"github.com/tatami-reader/tatami/internal/gesture"
	"github.com/tatami-reader/tatami/internal/hittest"
	"github.com/tatami-reader/tatami/internal/layout"
	applog "github.com/tatami-reader/tatami/internal/log"
	"github.com/tatami-reader/tatami/internal/lookup"
	"github.com/tatami-reader/tatami/internal/nav"
	"github.com/tatami-reader/tatami/internal/progress"
	"github.com/tatami-reader/tatami/internal/ui/styles"
	"github.com/tatami-reader/tatami/pkg/models"
)

// ReaderView displays book content one page column at a time, or as a
// continuous scroll. It owns the pagination, navigation, gesture, and
// anchor state for the open book.
type ReaderView struct {
	cfg    *config.Config
	store  *progress.Store
	writer *progress.Writer
	dict   lookup.Backend
	log    *slog.Logger

	// Current book
	source document.Source
	book   models.Book
	toc    []models.TOCEntry

	navc *nav.Controller
	calc *layout.Calculator

	// Laid-out state for the current chapter
	chapter *document.Chapter
	flow    layout.Flow
	metrics models.PageMetrics

	// Anchor to resolve once the pending chapter's metrics land
	pendingPos *models.ReadingPosition

	// Input
	disamb      *gesture.Disambiguator
	wheel       *gesture.WheelAccumulator
	lastPointer gesture.Point
	outcome     pointerOutcome

	// Continuous scroll offset in flow lines
	lineOffset int

	// Overlays
	showTOC        bool
	tocCursor      int
	showBookmarks  bool
	bookmarks      []models.Bookmark
	bookmarkCursor int
	lookupRes      *lookup.Result
	statusMsg      string

	// Search
	searchMode    bool
	searchQuery   string
	searchMatches []searchMatch
	currentMatch  int
	searchActive  bool

	chromeHidden bool

	// State
	loading bool
	err     error
	width   int
	height  int
}

// pointerOutcome collects what the gesture callbacks decided during one
// PointerUp, so Update can turn it into commands afterwards.
type pointerOutcome struct {
	navigate int
	lookup   *lookup.Query
	toggle   bool
}

// searchMatch represents a single search match location in the flow
type searchMatch struct {
	lineIndex   int
	startOffset int
	endOffset   int
}

// NewReaderView creates a new reader view. store and writer may be nil when
// running without persistence.
func NewReaderView(cfg *config.Config, store *progress.Store, writer *progress.Writer, dict lookup.Backend) *ReaderView {
	if dict == nil {
		dict = lookup.Echo{}
	}
	return &ReaderView{
		cfg:          cfg,
		store:        store,
		writer:       writer,
		dict:         dict,
		log:          applog.WithComponent("reader"),
		calc:         layout.NewCalculator(layout.CellMeasurer{}),
		currentMatch: -1,
		width:        80,
		height:       24,
	}
}

// SetBook sets the book source to read from
func (v *ReaderView) SetBook(src document.Source) {
	v.source = src
	v.book = src.Book()
	v.toc = src.TOC()
	v.navc = nav.NewController(src.ChapterCount())
	v.chapter = nil
	v.flow = layout.Flow{}
	v.pendingPos = nil
	v.lineOffset = 0
	v.showTOC = false
	v.showBookmarks = false
	v.lookupRes = nil
	v.clearSearch()
	v.disamb = nil
}

// SetPosition queues a stored position for restoration once the chapter is
// laid out. Must be called after SetBook.
func (v *ReaderView) SetPosition(pos models.ReadingPosition) {
	if v.navc == nil {
		return
	}
	v.navc.GoToChapter(pos.ChapterIndex, pos.PageIndex == models.LastPage)
	p := pos
	v.pendingPos = &p
}

// ConsumesKeys reports whether the reader is capturing keystrokes itself:
// typing a search query, or an overlay that closes on its own keys.
func (v *ReaderView) ConsumesKeys() bool {
	return v.searchMode || v.showTOC || v.showBookmarks || v.lookupRes != nil
}

// SavePositionOnExit flushes the current position (called when leaving)
func (v *ReaderView) SavePositionOnExit() {
	v.savePosition()
	if v.writer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = v.writer.Flush(ctx)
	}
}

// Message types
type chapterLoadedMsg struct {
	index   int
	chapter *document.Chapter
	err     error
}

type metricsMsg struct {
	gen     layout.Generation
	index   int
	metrics models.PageMetrics
	err     error
}

type lookupDoneMsg struct {
	result lookup.Result
	err    error
}

type bookmarksLoadedMsg struct {
	items []models.Bookmark
	err   error
}

type bookmarkSavedMsg struct {
	err error
}

// Init implements View
func (v *ReaderView) Init() tea.Cmd {
	if v.source == nil {
		return nil
	}
	v.loading = true
	return v.loadChapter(v.navc.Chapter())
}

// Update implements View - dispatches messages to specialized handlers
func (v *ReaderView) Update(msg tea.Msg) (View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		return v, v.relayout()
	case tea.KeyMsg:
		v.statusMsg = ""
		return v.handleKeyMsg(msg)
	case tea.MouseMsg:
		return v.handleMouseMsg(msg)
	case chapterLoadedMsg:
		return v.handleChapterLoaded(msg)
	case metricsMsg:
		return v.handleMetrics(msg)
	case lookupDoneMsg:
		if msg.err == nil {
			v.lookupRes = &msg.result
		}
		return v, nil
	case bookmarksLoadedMsg:
		if msg.err == nil {
			v.bookmarks = msg.items
		}
		return v, nil
	case bookmarkSavedMsg:
		if msg.err != nil {
			v.statusMsg = "Failed to add bookmark"
		} else {
			v.statusMsg = "Bookmark added"
		}
		return v, nil
	}
	return v, nil
}

// handleKeyMsg dispatches key messages to mode-specific handlers
func (v *ReaderView) handleKeyMsg(msg tea.KeyMsg) (View, tea.Cmd) {
	if v.lookupRes != nil {
		// Any key dismisses the lookup overlay.
		v.lookupRes = nil
		return v, nil
	}
	if v.showTOC {
		return v.updateTOC(msg)
	}
	if v.showBookmarks {
		return v.updateBookmarks(msg)
	}
	if v.searchMode {
		return v.updateSearchInput(msg)
	}
	return v.handleReaderKeyMsg(msg)
}

// handleReaderKeyMsg handles key presses in the main reader view
func (v *ReaderView) handleReaderKeyMsg(msg tea.KeyMsg) (View, tea.Cmd) {
	switch msg.String() {
	case "right":
		return v, v.navigate(v.geometricDelta(1))
	case "left":
		return v, v.navigate(v.geometricDelta(-1))
	case "l":
		return v, v.navigate(v.geometricDelta(1))
	case "h":
		return v, v.navigate(v.geometricDelta(-1))
	case "j", "down", " ", "pgdown", "ctrl+d":
		if v.continuous() {
			v.scroll(v.contentRows() / 2)
			v.savePosition()
			return v, nil
		}
		return v, v.navigate(1)
	case "k", "up", "pgup", "ctrl+u":
		if v.continuous() {
			v.scroll(-v.contentRows() / 2)
			v.savePosition()
			return v, nil
		}
		return v, v.navigate(-1)
	case "g", "home":
		if v.continuous() {
			v.lineOffset = 0
		} else {
			v.navc.SetPage(0)
		}
		v.savePosition()
	case "G", "end":
		if v.continuous() {
			v.lineOffset = v.maxLineOffset()
		} else {
			v.navc.SetPage(v.navc.TotalPages() - 1)
		}
		v.savePosition()
	case "n":
		if v.searchActive && len(v.searchMatches) > 0 {
			v.nextMatch()
			return v, nil
		}
		return v, v.goToChapter(v.navc.Chapter()+1, false)
	case "N":
		if v.searchActive && len(v.searchMatches) > 0 {
			v.prevMatch()
		}
	case "p":
		return v, v.goToChapter(v.navc.Chapter()-1, false)
	case "t":
		v.showTOC = true
		v.tocCursor = v.tocCursorForChapter(v.navc.Chapter())
	case "b":
		v.showBookmarks = true
		v.bookmarkCursor = 0
		return v, v.loadBookmarks()
	case "B":
		return v, v.addBookmark()
	case "/":
		v.searchMode = true
		v.searchQuery = ""
	case "f":
		v.cfg.Reader.FuriganaShown = !v.cfg.Reader.FuriganaShown
		return v, v.relayout()
	case "c":
		return v, v.toggleMode()
	case "v":
		v.cycleDirection()
		return v, v.relayout()
	case "+", "=":
		return v, v.adjustTextScale(0.1)
	case "-", "_":
		return v, v.adjustTextScale(-0.1)
	case "0":
		return v, v.setTextScale(1.0)
	case "tab":
		v.chromeHidden = !v.chromeHidden
	case "esc":
		if v.searchActive {
			v.clearSearch()
		}
	}
	return v, nil
}

// handleMouseMsg feeds pointer and wheel events into gesture classification.
func (v *ReaderView) handleMouseMsg(msg tea.MouseMsg) (View, tea.Cmd) {
	if v.chapter == nil {
		return v, nil
	}
	if v.showTOC || v.showBookmarks || v.searchMode || v.lookupRes != nil {
		return v, nil
	}

	switch msg.Button {
	case tea.MouseButtonWheelDown:
		return v, v.handleWheel(1)
	case tea.MouseButtonWheelUp:
		return v, v.handleWheel(-1)
	}

	if msg.Button != tea.MouseButtonLeft && msg.Action != tea.MouseActionMotion {
		return v, nil
	}

	d := v.ensureInput()
	switch msg.Action {
	case tea.MouseActionPress:
		d.PointerDown(msg.X, msg.Y)
	case tea.MouseActionMotion:
		d.PointerMove(msg.X, msg.Y)
	case tea.MouseActionRelease:
		v.lastPointer = gesture.Point{X: msg.X, Y: msg.Y}
		v.outcome = pointerOutcome{}
		d.PointerUp(msg.X, msg.Y)
		return v, v.consumeOutcome()
	}
	return v, nil
}

// handleWheel runs a wheel tick through the accumulator. In continuous mode
// the wheel scrolls directly and the accumulator is bypassed.
func (v *ReaderView) handleWheel(delta int) tea.Cmd {
	if v.continuous() {
		v.scroll(delta * 3)
		v.savePosition()
		return nil
	}
	if v.wheel == nil {
		v.wheel = gesture.NewWheelAccumulator(
			v.cfg.Input.WheelThreshold,
			time.Duration(v.cfg.Input.WheelCooldownMs)*time.Millisecond,
		)
	}
	if step := v.wheel.Add(delta, time.Now()); step != 0 {
		return v.navigate(step)
	}
	return nil
}

// ensureInput builds the disambiguator lazily; it is dropped whenever the
// reading direction or input settings change.
func (v *ReaderView) ensureInput() *gesture.Disambiguator {
	if v.disamb != nil {
		return v.disamb
	}
	cfg := gesture.Config{
		DragThreshold: v.cfg.Input.DragThreshold,
		Swipe: gesture.SwipeConfig{
			MinDistance: v.cfg.Input.SwipeDistance,
			MinVelocity: v.cfg.Input.SwipeVelocity,
			Direction:   v.cfg.Reader.Direction,
		},
	}
	cb := gesture.Callbacks{
		Navigate: func(delta int) { v.outcome.navigate = delta },
		Lookup: func(block, byteOff int) {
			if v.chapter == nil || block >= len(v.chapter.Blocks) {
				return
			}
			sentence, off := anchor.SentenceAt(v.chapter.Blocks[block].Text, byteOff)
			v.outcome.lookup = &lookup.Query{Sentence: sentence, ByteOffset: off}
		},
		ToggleChrome:  func() { v.outcome.toggle = true },
		IsInteractive: v.isChrome,
	}
	v.disamb = gesture.NewDisambiguator(cfg, v, cb, nil)
	return v.disamb
}

// consumeOutcome turns the callbacks' verdict into state changes and
// commands.
func (v *ReaderView) consumeOutcome() tea.Cmd {
	out := v.outcome
	v.outcome = pointerOutcome{}

	switch {
	case out.navigate != 0:
		return v.navigate(out.navigate)
	case out.lookup != nil:
		q := *out.lookup
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			res, err := v.dict.Lookup(ctx, q)
			return lookupDoneMsg{result: res, err: err}
		}
	case out.toggle:
		// In continuous mode the outer thirds of the viewport are page
		// zones; only the center strip toggles chrome.
		if v.continuous() {
			switch gesture.ZoneFor(v.lastPointer.X, v.width, v.cfg.Reader.Direction) {
			case gesture.ZoneNext:
				v.scroll(v.contentRows())
				v.savePosition()
				return nil
			case gesture.ZonePrevious:
				v.scroll(-v.contentRows())
				v.savePosition()
				return nil
			}
		}
		v.chromeHidden = !v.chromeHidden
	}
	return nil
}

// HitText implements gesture.HitTester against the currently rendered page.
func (v *ReaderView) HitText(x, y int) (block, byteOff int, ok bool) {
	if v.chapter == nil {
		return 0, 0, false
	}
	pv := hittest.PageView{
		Flow:      v.flow,
		StartLine: v.topLine(),
		OriginX:   v.cfg.Reader.PageMargin,
		OriginY:   v.topRows(),
		Height:    v.contentRows(),
	}
	return pv.HitText(x, y)
}

// isChrome reports whether a coordinate lies in the header or footer strip.
func (v *ReaderView) isChrome(x, y int) bool {
	if v.chromeHidden {
		return false
	}
	return y < v.topRows() || y >= v.topRows()+v.contentRows()
}

// geometricDelta maps a rightward key or motion to a page delta under the
// current reading direction.
func (v *ReaderView) geometricDelta(d int) int {
	if v.cfg.Reader.Direction.RTL() {
		return -d
	}
	return d
}

// navigate moves pages, rolling into adjacent chapters when needed.
func (v *ReaderView) navigate(delta int) tea.Cmd {
	if v.navc == nil || delta == 0 {
		return nil
	}
	if v.continuous() {
		v.scroll(delta * v.contentRows())
		v.savePosition()
		return nil
	}

	var t nav.Transition
	if delta > 0 {
		t = v.navc.NextPage()
	} else {
		t = v.navc.PrevPage()
	}
	if !t.Moved {
		return nil
	}
	if t.ChapterChanged {
		v.pendingPos = nil
		return v.loadChapter(v.navc.Chapter())
	}
	v.savePosition()
	return nil
}

// handleChapterLoaded processes a loaded chapter
func (v *ReaderView) handleChapterLoaded(msg chapterLoadedMsg) (View, tea.Cmd) {
	if msg.err != nil {
		v.loading = false
		v.err = msg.err
		v.log.Warn("chapter load failed", slog.Int("chapter", msg.index), slog.Any("err", msg.err))
		return v, nil
	}
	if msg.index != v.navc.Chapter() {
		return v, nil // a later navigation superseded this load
	}
	v.err = nil
	v.chapter = msg.chapter
	v.clearSearch()
	v.flow = layout.BuildFlow(msg.chapter.Blocks, v.layoutParams())
	return v, v.recomputeMetrics()
}

// handleMetrics installs freshly computed page metrics, unless they were
// superseded by a newer layout change while in flight.
func (v *ReaderView) handleMetrics(msg metricsMsg) (View, tea.Cmd) {
	if !v.calc.IsCurrent(msg.gen) || msg.index != v.navc.Chapter() {
		return v, nil
	}
	v.loading = false
	if msg.err != nil {
		v.err = msg.err
		v.log.Warn("pagination failed", slog.Int("chapter", msg.index), slog.Any("err", msg.err))
		return v, nil
	}
	v.metrics = msg.metrics
	v.navc.SetMetrics(msg.metrics)

	if v.pendingPos != nil && v.chapter != nil {
		target := anchor.Restore(*v.pendingPos, v.chapter.Blocks, v.pageOf, msg.metrics.TotalPages)
		v.pendingPos = nil
		v.navc.SetPage(target.Page)
		if v.continuous() {
			if target.Exact {
				if ln, ok := v.flow.LineFor(target.Block, target.Offset); ok {
					v.lineOffset = ln
				}
			} else {
				v.lineOffset = layout.PageStart(target.Page, v.metrics)
			}
			v.clampScroll()
		}
	} else if v.continuous() {
		v.lineOffset = layout.PageStart(v.navc.Page(), v.metrics)
		v.clampScroll()
	}
	v.savePosition()
	return v, nil
}

// pageOf maps an exact anchor hit to its page under the current layout.
func (v *ReaderView) pageOf(block, byteOff int) int {
	ln, ok := v.flow.LineFor(block, byteOff)
	if !ok {
		return 0
	}
	return layout.PageForOffset(float64(ln), v.metrics)
}

// loadChapter loads a chapter's content
func (v *ReaderView) loadChapter(index int) tea.Cmd {
	v.loading = true
	src := v.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ch, err := src.Chapter(ctx, index)
		return chapterLoadedMsg{index: index, chapter: ch, err: err}
	}
}

// recomputeMetrics measures the current chapter asynchronously. The
// generation token discards results that a later change superseded.
func (v *ReaderView) recomputeMetrics() tea.Cmd {
	if v.chapter == nil {
		return nil
	}
	gen := v.calc.Supersede()
	index := v.chapter.Index
	blocks := v.chapter.Blocks
	lp := v.layoutParams()
	calc := v.calc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m, err := calc.Compute(ctx, blocks, lp)
		return metricsMsg{gen: gen, index: index, metrics: m, err: err}
	}
}

// relayout recomputes pagination after a layout parameter change, anchoring
// the current position so the same sentence stays on screen.
func (v *ReaderView) relayout() tea.Cmd {
	if v.chapter == nil {
		return nil
	}
	if pos := v.captureAnchor(); pos != nil {
		v.pendingPos = pos
	}
	v.navc.Invalidate()
	v.clearSearch()
	v.flow = layout.BuildFlow(v.chapter.Blocks, v.layoutParams())
	return v.recomputeMetrics()
}

// captureAnchor encodes the first addressable character of the current page
// (or scroll window) as a persistent position.
func (v *ReaderView) captureAnchor() *models.ReadingPosition {
	if v.chapter == nil || len(v.flow.Lines) == 0 {
		return nil
	}
	for i := v.topLine(); i < len(v.flow.Lines); i++ {
		ln := v.flow.Lines[i]
		if ln.Synthetic() {
			continue
		}
		pos := anchor.Encode(v.book.ID, v.navc.Chapter(), v.navc.Page(),
			v.chapter.Blocks, ln.Block, ln.Start, v.navc.Progress())
		return &pos
	}
	return nil
}

// savePosition hands the current anchor to the debounced writer.
func (v *ReaderView) savePosition() {
	if v.writer == nil {
		return
	}
	if pos := v.captureAnchor(); pos != nil {
		v.writer.Save(*pos)
	}
}

// goToChapter navigates to a chapter, clamped into range.
func (v *ReaderView) goToChapter(index int, atEnd bool) tea.Cmd {
	if v.navc == nil {
		return nil
	}
	t := v.navc.GoToChapter(index, atEnd)
	if !t.Moved {
		return nil
	}
	v.pendingPos = nil
	v.lineOffset = 0
	return v.loadChapter(v.navc.Chapter())
}

// toggleMode switches between paged and continuous scroll.
func (v *ReaderView) toggleMode() tea.Cmd {
	if v.cfg.Reader.PaginationMode == models.ModePaged {
		v.cfg.Reader.PaginationMode = models.ModeContinuous
	} else {
		v.cfg.Reader.PaginationMode = models.ModePaged
	}
	return v.relayout()
}

// cycleDirection rotates through the reading directions.
func (v *ReaderView) cycleDirection() {
	switch v.cfg.Reader.Direction {
	case models.DirectionHorizontalLTR:
		v.cfg.Reader.Direction = models.DirectionVerticalRTL
	case models.DirectionVerticalRTL:
		v.cfg.Reader.Direction = models.DirectionVerticalLTR
	default:
		v.cfg.Reader.Direction = models.DirectionHorizontalLTR
	}
	v.disamb = nil
	v.statusMsg = "Direction: " + string(v.cfg.Reader.Direction)
}

// adjustTextScale changes text scale by delta
func (v *ReaderView) adjustTextScale(delta float64) tea.Cmd {
	return v.setTextScale(v.cfg.Reader.TextScale + delta)
}

// setTextScale sets the text scale and recomputes pagination
func (v *ReaderView) setTextScale(scale float64) tea.Cmd {
	if scale < 0.5 {
		scale = 0.5
	}
	if scale > 3.0 {
		scale = 3.0
	}
	if scale == v.cfg.Reader.TextScale {
		return nil
	}
	v.cfg.Reader.TextScale = scale
	return v.relayout()
}

// layoutParams snapshots the inputs pagination depends on. Padding is
// floored at one row: the header and footer occupy a row even at margin
// zero, and the measured column extent must match the rows actually shown.
func (v *ReaderView) layoutParams() models.LayoutParameters {
	lp := v.cfg.Layout(v.width, v.height)
	if lp.Padding < 1 {
		lp.Padding = 1
	}
	return lp
}

func (v *ReaderView) continuous() bool {
	return v.cfg.Reader.PaginationMode == models.ModeContinuous
}

// topRows is the number of screen rows above the content area.
func (v *ReaderView) topRows() int {
	m := v.cfg.Reader.PageMargin
	if m < 1 {
		m = 1
	}
	return m
}

// contentRows is the number of flow lines shown at once. It subtracts
// topRows, not the raw margin, so a zero margin still leaves room for the
// header and footer rows.
func (v *ReaderView) contentRows() int {
	rows := v.height - 2*v.topRows()
	if rows < 1 {
		rows = 1
	}
	return rows
}

// topLine is the first flow line of the visible window.
func (v *ReaderView) topLine() int {
	if v.continuous() {
		return v.lineOffset
	}
	return layout.PageStart(v.navc.Page(), v.metrics)
}

// scroll moves the continuous window by delta lines, clamped.
func (v *ReaderView) scroll(delta int) {
	v.lineOffset += delta
	v.clampScroll()
	if v.metrics.PageStride > 0 {
		v.navc.SetPage(layout.PageForOffset(float64(v.lineOffset), v.metrics))
	}
}

func (v *ReaderView) clampScroll() {
	if v.lineOffset < 0 {
		v.lineOffset = 0
	}
	if max := v.maxLineOffset(); v.lineOffset > max {
		v.lineOffset = max
	}
}

func (v *ReaderView) maxLineOffset() int {
	max := len(v.flow.Lines) - v.contentRows()
	if max < 0 {
		max = 0
	}
	return max
}

// tocCursorForChapter selects the TOC row for a chapter index.
func (v *ReaderView) tocCursorForChapter(chapter int) int {
	for i, e := range v.toc {
		if e.ChapterIndex == chapter {
			return i
		}
	}
	return 0
}

// updateTOC handles TOC navigation
func (v *ReaderView) updateTOC(msg tea.KeyMsg) (View, tea.Cmd) {
	switch msg.String() {
	case "esc", "t", "q":
		v.showTOC = false
	case "j", "down":
		if v.tocCursor < len(v.toc)-1 {
			v.tocCursor++
		}
	case "k", "up":
		if v.tocCursor > 0 {
			v.tocCursor--
		}
	case "g", "home":
		v.tocCursor = 0
	case "G", "end":
		v.tocCursor = len(v.toc) - 1
	case "enter":
		v.showTOC = false
		if v.tocCursor >= 0 && v.tocCursor < len(v.toc) {
			return v, v.goToChapter(v.toc[v.tocCursor].ChapterIndex, false)
		}
	}
	return v, nil
}

// addBookmark stores the current anchor as a named bookmark.
func (v *ReaderView) addBookmark() tea.Cmd {
	if v.store == nil {
		v.statusMsg = "Bookmarks unavailable"
		return nil
	}
	pos := v.captureAnchor()
	if pos == nil {
		return nil
	}
	store := v.store
	bm := models.Bookmark{
		BookID:       pos.BookID,
		ChapterIndex: pos.ChapterIndex,
		PageIndex:    pos.PageIndex,
		SentenceText: pos.SentenceText,
		Label:        v.chapterTitle(pos.ChapterIndex),
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, err := store.AddBookmark(ctx, bm)
		return bookmarkSavedMsg{err: err}
	}
}

func (v *ReaderView) loadBookmarks() tea.Cmd {
	if v.store == nil {
		return nil
	}
	store := v.store
	bookID := v.book.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		items, err := store.Bookmarks(ctx, bookID)
		return bookmarksLoadedMsg{items: items, err: err}
	}
}

// updateBookmarks handles bookmarks list navigation
func (v *ReaderView) updateBookmarks(msg tea.KeyMsg) (View, tea.Cmd) {
	switch msg.String() {
	case "esc", "b", "q":
		v.showBookmarks = false
	case "j", "down":
		if v.bookmarkCursor < len(v.bookmarks)-1 {
			v.bookmarkCursor++
		}
	case "k", "up":
		if v.bookmarkCursor > 0 {
			v.bookmarkCursor--
		}
	case "enter":
		if v.bookmarkCursor < len(v.bookmarks) {
			bm := v.bookmarks[v.bookmarkCursor]
			v.showBookmarks = false
			return v, v.goToBookmark(bm)
		}
	case "d", "x":
		if v.bookmarkCursor < len(v.bookmarks) && v.store != nil {
			id := v.bookmarks[v.bookmarkCursor].ID
			store := v.store
			if v.bookmarkCursor >= len(v.bookmarks)-1 && v.bookmarkCursor > 0 {
				v.bookmarkCursor--
			}
			return v, tea.Sequence(
				func() tea.Msg {
					ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
					defer cancel()
					_ = store.DeleteBookmark(ctx, id)
					return nil
				},
				v.loadBookmarks(),
			)
		}
	}
	return v, nil
}

// goToBookmark restores a bookmark through the same anchor chain as a
// stored position.
func (v *ReaderView) goToBookmark(bm models.Bookmark) tea.Cmd {
	v.navc.GoToChapter(bm.ChapterIndex, false)
	v.pendingPos = &models.ReadingPosition{
		BookID:       bm.BookID,
		ChapterIndex: bm.ChapterIndex,
		PageIndex:    bm.PageIndex,
		SentenceText: bm.SentenceText,
	}
	v.lineOffset = 0
	return v.loadChapter(v.navc.Chapter())
}

func (v *ReaderView) chapterTitle(index int) string {
	for _, e := range v.toc {
		if e.ChapterIndex == index {
			return e.Title
		}
	}
	return fmt.Sprintf("Section %d", index+1)
}

// View implements View
func (v *ReaderView) View() string {
	if v.source == nil {
		return styles.ErrorStyle.Render("No book open")
	}
	if v.showTOC {
		return v.renderTOC()
	}
	if v.showBookmarks {
		return v.renderBookmarks()
	}

	var b strings.Builder

	if !v.chromeHidden {
		b.WriteString(v.renderHeader())
	}
	b.WriteString("\n")
	for i := 1; i < v.topRows(); i++ {
		b.WriteString("\n")
	}

	switch {
	case v.loading && v.chapter == nil:
		b.WriteString(lipgloss.Place(v.width, v.contentRows(),
			lipgloss.Center, lipgloss.Center,
			styles.MutedText.Render("Loading...")) + "\n")
	case v.err != nil:
		b.WriteString(lipgloss.Place(v.width, v.contentRows(),
			lipgloss.Center, lipgloss.Center,
			styles.ErrorStyle.Render("Error: "+v.err.Error())) + "\n")
	default:
		v.renderContent(&b)
	}

	for i := 1; i < v.topRows(); i++ {
		b.WriteString("\n")
	}
	if v.searchMode {
		b.WriteString(v.renderSearchInput())
	} else if !v.chromeHidden {
		b.WriteString(v.renderFooter())
	}

	out := b.String()
	if v.lookupRes != nil {
		out = v.renderLookupOverlay()
	}
	return out
}

// renderContent writes the visible slice of flow lines.
func (v *ReaderView) renderContent(b *strings.Builder) {
	margin := strings.Repeat(" ", v.cfg.Reader.PageMargin)
	top := v.topLine()
	rows := v.contentRows()
	for i := 0; i < rows; i++ {
		idx := top + i
		if idx >= len(v.flow.Lines) {
			b.WriteString("\n")
			continue
		}
		ln := v.flow.Lines[idx]
		text := ln.Text
		if v.searchActive && len(v.searchMatches) > 0 {
			text = v.highlightLine(idx, text)
		}
		switch ln.Kind {
		case layout.LineHeading:
			text = styles.BookTitle.Render(text)
		case layout.LineRuby:
			text = styles.MutedText.Render(text)
		case layout.LineImage:
			text = styles.MutedText.Render("[image: " + text + "]")
		}
		b.WriteString(margin + text + "\n")
	}
}

// SetSize implements View
func (v *ReaderView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

// renderHeader renders the reader header: title, chapter, progress.
func (v *ReaderView) renderHeader() string {
	maxTitleWidth := v.width / 3
	if maxTitleWidth < 10 {
		maxTitleWidth = 10
	}
	title := styles.TruncateText(v.book.Title, maxTitleWidth)
	titlePart := styles.ReaderHeader.Render(" " + title + " ")

	chapterPart := styles.Help.Render(fmt.Sprintf(" %d/%d %s ",
		v.navc.Chapter()+1, v.navc.ChapterCount(),
		styles.TruncateText(v.chapterTitle(v.navc.Chapter()), 24)))

	pagePart := ""
	if !v.navc.MetricsPending() {
		pagePart = styles.SecondaryText.Render(fmt.Sprintf(" p.%d/%d ",
			v.navc.Page()+1, v.navc.TotalPages()))
	}

	bar := renderProgressBar(10, v.navc.Progress()/100.0)
	progressPart := bar + styles.ReaderProgress.Render(fmt.Sprintf(" %.0f%%", v.navc.Progress()))

	left := titlePart + chapterPart + pagePart
	right := progressPart
	gap := v.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return left + strings.Repeat(" ", gap) + right
}

// renderProgressBar renders a progress bar using Unicode block characters.
func renderProgressBar(width int, progress float64) string {
	if width < 3 {
		width = 3
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	var bar strings.Builder
	for i := 0; i < width; i++ {
		if i < filled {
			bar.WriteString("█")
		} else {
			bar.WriteString("░")
		}
	}
	return bar.String()
}

// renderFooter renders the reader footer with consistent styling
func (v *ReaderView) renderFooter() string {
	if v.statusMsg != "" {
		return styles.FooterBar.Width(v.width).Render(styles.SecondaryText.Render(v.statusMsg))
	}

	if v.searchActive {
		matchInfo := styles.ErrorStyle.Render(" [No matches]")
		if len(v.searchMatches) > 0 {
			matchInfo = styles.SecondaryText.Render(fmt.Sprintf(" [%d/%d]", v.currentMatch+1, len(v.searchMatches)))
		}
		help := styles.HelpKey.Render("n/N") + styles.Help.Render(" next/prev") + "  " +
			styles.HelpKey.Render("esc") + styles.Help.Render(" clear")
		content := styles.BookAuthor.Render("/"+v.searchQuery) + matchInfo + "  " + help
		return styles.FooterBar.Width(v.width).Render(content)
	}

	modeStr := "paged"
	if v.continuous() {
		modeStr = "scroll"
	}
	scaleStr := fmt.Sprintf("%.0f%%", v.cfg.Reader.TextScale*100)

	help := []string{
		styles.HelpKey.Render("h/l") + styles.Help.Render(" page"),
		styles.HelpKey.Render("n/p") + styles.Help.Render(" chapter"),
		styles.HelpKey.Render("t") + styles.Help.Render(" toc"),
		styles.HelpKey.Render("/") + styles.Help.Render(" find"),
		styles.HelpKey.Render("b/B") + styles.Help.Render(" marks"),
		styles.HelpKey.Render("c") + styles.Help.Render(" "+modeStr),
		styles.HelpKey.Render("+/-") + styles.Help.Render(" "+scaleStr),
		styles.HelpKey.Render("q") + styles.Help.Render(" back"),
	}
	return styles.FooterBar.Width(v.width).Render(strings.Join(help, "  "))
}

// renderSearchInput renders the search input bar
func (v *ReaderView) renderSearchInput() string {
	return styles.HelpKey.Render("/") + styles.BookAuthor.Render(v.searchQuery+"_") +
		"  " + styles.Help.Render("enter search • esc cancel")
}

// renderLookupOverlay renders the dictionary result dialog.
func (v *ReaderView) renderLookupOverlay() string {
	w := min(48, v.width-4)
	body := wordwrap.String(v.lookupRes.Body, w-4)
	content := styles.DialogTitle.Render(v.lookupRes.Headword) + "\n" +
		styles.MutedText.Render(body) + "\n\n" +
		styles.Help.Render("any key to close")
	dialog := styles.Dialog.Width(w).Render(content)
	return lipgloss.Place(v.width, v.height, lipgloss.Center, lipgloss.Center, dialog)
}

// renderTOC renders the table of contents overlay
func (v *ReaderView) renderTOC() string {
	var b strings.Builder
	b.WriteString(styles.DialogTitle.Render("Table of Contents") + "\n\n")

	maxVisible := v.height - 8
	if maxVisible < 1 {
		maxVisible = 1
	}
	offset := 0
	if v.tocCursor >= maxVisible {
		offset = v.tocCursor - maxVisible + 1
	}

	current := v.navc.Chapter()
	for i := offset; i < min(offset+maxVisible, len(v.toc)); i++ {
		e := v.toc[i]
		line := strings.Repeat("  ", e.Level) + e.Title
		line = styles.TruncateText(line, v.width-12)

		switch {
		case i == v.tocCursor:
			b.WriteString(styles.ListItemSelected.Render("▸ "+line) + "\n")
		case e.ChapterIndex == current:
			b.WriteString(styles.BookAuthor.Render("  "+line+" (current)") + "\n")
		default:
			b.WriteString(styles.ListItem.Render("  "+line) + "\n")
		}
	}

	b.WriteString("\n" + styles.Help.Render("j/k navigate • enter select • esc close"))
	dialog := styles.Dialog.Width(min(60, v.width-4)).Render(b.String())
	return lipgloss.Place(v.width, v.height, lipgloss.Center, lipgloss.Center, dialog)
}

// renderBookmarks renders the bookmarks overlay
func (v *ReaderView) renderBookmarks() string {
	var b strings.Builder
	b.WriteString(styles.DialogTitle.Render("Bookmarks") + "\n\n")

	if len(v.bookmarks) == 0 {
		b.WriteString(styles.MutedText.Render("No bookmarks for this book.\n\nPress B to add a bookmark."))
	} else {
		maxVisible := v.height - 10
		if maxVisible < 1 {
			maxVisible = 1
		}
		offset := 0
		if v.bookmarkCursor >= maxVisible {
			offset = v.bookmarkCursor - maxVisible + 1
		}
		for i := offset; i < min(offset+maxVisible, len(v.bookmarks)); i++ {
			bm := v.bookmarks[i]
			line := fmt.Sprintf("Ch %d: %s", bm.ChapterIndex+1, styles.TruncateText(bm.Label, 20))
			if bm.SentenceText != "" {
				line += " " + styles.TruncateText(bm.SentenceText, 16)
			}
			if i == v.bookmarkCursor {
				b.WriteString(styles.ListItemSelected.Render("▸ "+line) + "\n")
			} else {
				b.WriteString(styles.ListItem.Render("  "+line) + "\n")
			}
		}
	}

	b.WriteString("\n" + styles.Help.Render("j/k navigate • enter go • d delete • esc close"))
	dialog := styles.Dialog.Width(min(50, v.width-4)).Render(b.String())
	return lipgloss.Place(v.width, v.height, lipgloss.Center, lipgloss.Center, dialog)
}

// highlightLine applies search highlighting to a flow line
func (v *ReaderView) highlightLine(lineIdx int, line string) string {
	var result strings.Builder
	lastEnd := 0
	for mi, m := range v.searchMatches {
		if m.lineIndex != lineIdx || m.startOffset < lastEnd {
			continue
		}
		if m.endOffset > len(line) {
			break
		}
		result.WriteString(line[lastEnd:m.startOffset])
		matchText := line[m.startOffset:m.endOffset]
		if mi == v.currentMatch {
			result.WriteString(styles.SearchCurrent.Render(matchText))
		} else {
			result.WriteString(styles.SearchMatch.Render(matchText))
		}
		lastEnd = m.endOffset
	}
	if lastEnd == 0 {
		return line
	}
	result.WriteString(line[lastEnd:])
	return result.String()
}

// updateSearchInput handles keyboard input during search mode
func (v *ReaderView) updateSearchInput(msg tea.KeyMsg) (View, tea.Cmd) {
	switch msg.String() {
	case "esc":
		v.searchMode = false
		v.searchQuery = ""
	case "enter":
		v.searchMode = false
		if v.searchQuery != "" {
			v.executeSearch()
		}
	case "backspace":
		if v.searchQuery != "" {
			r := []rune(v.searchQuery)
			v.searchQuery = string(r[:len(r)-1])
		}
	case "ctrl+u":
		v.searchQuery = ""
	default:
		if msg.Type == tea.KeyRunes {
			v.searchQuery += string(msg.Runes)
		} else if len(msg.String()) == 1 && msg.String()[0] >= 32 {
			v.searchQuery += msg.String()
		}
	}
	return v, nil
}

// executeSearch finds all matches in the current chapter's flow
func (v *ReaderView) executeSearch() {
	v.searchMatches = nil
	v.currentMatch = -1
	v.searchActive = false

	if v.searchQuery == "" || len(v.flow.Lines) == 0 {
		return
	}
	query := strings.ToLower(v.searchQuery)

	for lineIdx, ln := range v.flow.Lines {
		if ln.Synthetic() {
			continue
		}
		lineLower := strings.ToLower(ln.Text)
		offset := 0
		for {
			idx := strings.Index(lineLower[offset:], query)
			if idx == -1 {
				break
			}
			v.searchMatches = append(v.searchMatches, searchMatch{
				lineIndex:   lineIdx,
				startOffset: offset + idx,
				endOffset:   offset + idx + len(query),
			})
			offset += idx + len(query)
		}
	}

	if len(v.searchMatches) > 0 {
		v.searchActive = true
		v.currentMatch = 0
		v.jumpToMatch(0)
	} else {
		v.searchActive = true
	}
}

func (v *ReaderView) nextMatch() {
	if len(v.searchMatches) == 0 {
		return
	}
	v.currentMatch = (v.currentMatch + 1) % len(v.searchMatches)
	v.jumpToMatch(v.currentMatch)
}

func (v *ReaderView) prevMatch() {
	if len(v.searchMatches) == 0 {
		return
	}
	v.currentMatch--
	if v.currentMatch < 0 {
		v.currentMatch = len(v.searchMatches) - 1
	}
	v.jumpToMatch(v.currentMatch)
}

// jumpToMatch brings a match into view: the containing page in paged mode,
// the containing window in continuous mode.
func (v *ReaderView) jumpToMatch(idx int) {
	if idx < 0 || idx >= len(v.searchMatches) {
		return
	}
	line := v.searchMatches[idx].lineIndex
	if v.continuous() {
		if line < v.lineOffset || line >= v.lineOffset+v.contentRows() {
			v.lineOffset = line
			v.clampScroll()
		}
		return
	}
	v.navc.SetPage(layout.PageForOffset(float64(line), v.metrics))
}

// clearSearch clears search state
func (v *ReaderView) clearSearch() {
	v.searchActive = false
	v.searchMode = false
	v.searchQuery = ""
	v.searchMatches = nil
	v.currentMatch = -1
}

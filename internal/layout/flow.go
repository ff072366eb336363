// Package layout turns chapter content plus layout parameters into page
// metrics. The flow axis in the terminal host is vertical: logical units are
// rows, the cross axis is the viewport width in cells.
package layout

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/tatami-reader/tatami/internal/document"
	"github.com/tatami-reader/tatami/pkg/models"
)

// LineKind tells renderers and hit testing what a flow line is.
type LineKind int

const (
	LineText LineKind = iota
	LineHeading
	LineRuby
	LineImage
	LineBlank
)

// Line is one row of laid-out content. Start is the byte offset of the
// line's first rune within its source block; synthetic lines carry -1.
type Line struct {
	Text  string
	Kind  LineKind
	Block int
	Start int
}

// Synthetic reports whether the line has no addressable source text.
func (l Line) Synthetic() bool { return l.Start < 0 }

// Flow is a chapter laid out at one width. It is what measurement, page
// rendering, and hit testing all share, so the three can never disagree
// about where a given byte of text sits.
type Flow struct {
	Lines []Line
	Width int
}

// Extent returns the realized flow-axis extent in logical units.
func (f Flow) Extent() float64 { return float64(len(f.Lines)) }

// LineFor returns the index of the line containing the given byte offset of
// the given block, or the block's first addressable line when the offset
// falls between lines. It reports false when the block contributed no
// addressable text at this width.
func (f Flow) LineFor(block, byteOff int) (int, bool) {
	best := -1
	for i, ln := range f.Lines {
		if ln.Block != block || ln.Synthetic() {
			continue
		}
		if byteOff >= ln.Start && byteOff < ln.Start+len(ln.Text) {
			return i, true
		}
		if best < 0 || ln.Start <= byteOff {
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// contentWidth applies padding and text scale the way the reader view does:
// a larger scale narrows the column to simulate bigger glyphs.
func contentWidth(layout models.LayoutParameters) int {
	base := layout.ViewportWidth - 2*layout.Padding
	if base < 1 {
		base = 1
	}
	scale := layout.TextScale
	if scale <= 0 {
		scale = 1
	}
	w := int(float64(base) / scale)
	if w < minContentWidth {
		w = minContentWidth
	}
	if w > base {
		w = base
	}
	return w
}

const minContentWidth = 10

// imageRowScale converts intrinsic image pixels to placeholder rows.
const imageRowScale = 100

// maxImageRows caps how much of a column an image placeholder occupies.
const maxImageRows = 8

// BuildFlow lays the chapter's blocks out at the width the layout dictates.
// Blocks are separated by one blank line; ruby annotations contribute lines
// only while furigana is visible.
func BuildFlow(blocks []document.Block, layout models.LayoutParameters) Flow {
	width := contentWidth(layout)
	f := Flow{Width: width}

	for i, b := range blocks {
		if i > 0 {
			f.Lines = append(f.Lines, Line{Kind: LineBlank, Block: i, Start: -1})
		}
		switch b.Kind {
		case document.BlockImage:
			rows := imageRows(b)
			for r := 0; r < rows; r++ {
				f.Lines = append(f.Lines, Line{Kind: LineImage, Block: i, Start: -1, Text: b.Text})
			}
		default:
			if layout.FuriganaShown && b.Furigana != "" {
				for _, seg := range wrapCells(b.Furigana, width) {
					f.Lines = append(f.Lines, Line{Text: seg.text, Kind: LineRuby, Block: i, Start: -1})
				}
			}
			kind := LineText
			if b.Kind == document.BlockHeading {
				kind = LineHeading
			}
			for _, seg := range wrapCells(b.Text, width) {
				f.Lines = append(f.Lines, Line{Text: seg.text, Kind: kind, Block: i, Start: seg.start})
			}
		}
	}
	return f
}

func imageRows(b document.Block) int {
	if !b.Resolved() {
		return 1
	}
	rows := b.ImageHeight / imageRowScale
	if rows < 1 {
		rows = 1
	}
	if rows > maxImageRows {
		rows = maxImageRows
	}
	return rows
}

type segment struct {
	text  string
	start int
}

// wrapCells breaks text into display-width-bounded segments, keeping the
// byte offset each segment starts at. Breaks prefer the last space inside
// the window; CJK text without spaces breaks at the cell boundary, which is
// also why this cannot be delegated to a space-only word wrapper.
func wrapCells(text string, width int) []segment {
	if text == "" {
		return nil
	}
	var segs []segment

	start := 0      // byte offset of current segment
	cells := 0      // display cells used by current segment
	lastSpace := -1 // byte offset of last space in current segment

	for i, r := range text {
		w := runewidth.RuneWidth(r)
		if cells+w > width && i > start {
			brk := i
			resume := i
			if lastSpace > start {
				brk = lastSpace
				resume = lastSpace + 1 // drop the break space
			}
			segs = append(segs, segment{text: text[start:brk], start: start})
			start = resume
			cells = runewidth.StringWidth(text[start:i])
			lastSpace = -1
		}
		if r == ' ' {
			lastSpace = i
		}
		cells += w
	}
	if start < len(text) {
		seg := strings.TrimRight(text[start:], " ")
		if seg != "" {
			segs = append(segs, segment{text: seg, start: start})
		}
	}
	return segs
}

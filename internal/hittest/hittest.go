// Package hittest resolves viewport coordinates to characters inside the
// laid-out text flow. It is the leaf both lookup and tap classification
// stand on: the same flow lines the renderer draws are the ones hit here,
// so a tap can never resolve to text that is not on screen.
package hittest

import (
	"unicode"

	"github.com/mattn/go-runewidth"

	"github.com/tatami-reader/tatami/internal/layout"
)

// PageView describes where a window of flow lines is drawn on screen.
type PageView struct {
	Flow      layout.Flow
	StartLine int // first visible flow line
	OriginX   int // screen column of the content's left edge
	OriginY   int // screen row of the first visible line
	Height    int // visible rows
}

// HitText implements gesture.HitTester. It returns the source block and the
// UTF-8 byte offset of the character under (x, y). Whitespace, synthetic
// lines (blanks, image placeholders, ruby annotations), and empty space all
// miss.
func (v PageView) HitText(x, y int) (block, byteOff int, ok bool) {
	row := y - v.OriginY
	if row < 0 || row >= v.Height {
		return 0, 0, false
	}
	idx := v.StartLine + row
	if idx < 0 || idx >= len(v.Flow.Lines) {
		return 0, 0, false
	}
	ln := v.Flow.Lines[idx]
	if ln.Synthetic() {
		return 0, 0, false
	}

	col := x - v.OriginX
	if col < 0 {
		return 0, 0, false
	}

	cells := 0
	for i, r := range ln.Text {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			w = 1
		}
		if col < cells+w {
			if unicode.IsSpace(r) {
				return 0, 0, false
			}
			return ln.Block, ln.Start + i, true
		}
		cells += w
	}
	return 0, 0, false // past the end of the line
}

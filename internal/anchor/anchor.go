// Package anchor encodes reading positions as sentence anchors and locates
// them again after re-layout. A sentence's text is layout-invariant and
// near-unique within a chapter, which is what makes the anchor survive font,
// width, and theme changes that invalidate any pixel- or page-based offset.
package anchor

import (
	"log/slog"
	"strings"
	"time"

	applog "github.com/tatami-reader/tatami/internal/log"
	"github.com/tatami-reader/tatami/internal/document"
	"github.com/tatami-reader/tatami/pkg/models"
)

// sentenceDelimiters terminate a natural-language sentence. Both the
// ideographic and Latin sets are recognized so mixed-script text anchors
// cleanly.
const sentenceDelimiters = "。！？.!?"

func isDelimiter(r rune) bool {
	return strings.ContainsRune(sentenceDelimiters, r)
}

// SentenceAt returns the full sentence containing byte offset off within
// text, and off re-expressed as a UTF-8 byte offset into that sentence.
// Offsets out of range clamp to the nearest sentence.
func SentenceAt(text string, off int) (sentence string, offsetInSentence int) {
	if text == "" {
		return "", 0
	}
	if off < 0 {
		off = 0
	}
	if off >= len(text) {
		off = len(text) - 1
	}

	start := 0
	end := len(text)
	for i, r := range text {
		if !isDelimiter(r) {
			continue
		}
		boundary := i + len(string(r)) // byte just past the delimiter
		if boundary <= off {
			start = boundary
		} else {
			end = boundary
			break
		}
	}

	raw := text[start:end]
	trimmed := strings.TrimLeft(raw, " \t")
	start += len(raw) - len(trimmed)
	trimmed = strings.TrimRight(trimmed, " \t")

	offsetInSentence = off - start
	if offsetInSentence < 0 {
		offsetInSentence = 0
	}
	if offsetInSentence > len(trimmed) {
		offsetInSentence = len(trimmed)
	}
	return trimmed, offsetInSentence
}

// Encode builds the persisted position for a committed reading point. The
// point is (block, byte offset) within the chapter's blocks; offsets are
// UTF-8 byte counts end to end, so no encoding conversion happens later.
func Encode(bookID string, chapterIndex, pageIndex int, blocks []document.Block, block, byteOff int, progress float64) models.ReadingPosition {
	pos := models.ReadingPosition{
		BookID:       bookID,
		ChapterIndex: chapterIndex,
		PageIndex:    pageIndex,
		Progress:     progress,
		UpdatedAt:    time.Now(),
	}
	if block >= 0 && block < len(blocks) {
		pos.SentenceText, pos.ByteOffset = SentenceAt(blocks[block].Text, byteOff)
	}
	return pos
}

// Target is the resolved destination of a restore.
type Target struct {
	Chapter int
	Page    int
	// Block and Offset are valid only when Exact is true.
	Block  int
	Offset int
	// Exact: the stored sentence was found verbatim. FromPage: fell back
	// to the stored page index. Neither: chapter start.
	Exact    bool
	FromPage bool
}

// Locate searches fresh chapter blocks for the stored sentence text.
func Locate(sentence string, blocks []document.Block) (block, offset int, ok bool) {
	needle := strings.TrimSpace(sentence)
	if needle == "" {
		return 0, 0, false
	}
	for i, b := range blocks {
		if idx := strings.Index(b.Text, needle); idx >= 0 {
			return i, idx, true
		}
	}
	return 0, 0, false
}

// Restore resolves a stored position against freshly rendered content.
// pageOf maps an exact (block, byte offset) hit to its page under the current
// layout. Restoration never fails: missing anchors degrade to the stored page
// index, then to the chapter start.
func Restore(pos models.ReadingPosition, blocks []document.Block, pageOf func(block, byteOff int) int, totalPages int) Target {
	t := Target{Chapter: pos.ChapterIndex}

	if block, offset, ok := Locate(pos.SentenceText, blocks); ok {
		t.Block = block
		t.Offset = offset + pos.ByteOffset
		if t.Offset > offset+len(strings.TrimSpace(pos.SentenceText)) {
			t.Offset = offset
		}
		t.Exact = true
		if pageOf != nil {
			t.Page = clampPage(pageOf(block, t.Offset), totalPages)
		}
		return t
	}

	if pos.SentenceText != "" {
		applog.WithComponent("anchor").Debug("sentence anchor not found, falling back",
			slog.Int("chapter", pos.ChapterIndex), slog.Int("page", pos.PageIndex))
	}

	if pos.PageIndex == models.LastPage {
		t.Page = clampPage(totalPages-1, totalPages)
		t.FromPage = true
		return t
	}
	if pos.PageIndex > 0 {
		t.Page = clampPage(pos.PageIndex, totalPages)
		t.FromPage = true
		return t
	}
	return t // chapter start
}

func clampPage(p, total int) int {
	if total < 1 {
		total = 1
	}
	if p < 0 {
		return 0
	}
	if p > total-1 {
		return total - 1
	}
	return p
}

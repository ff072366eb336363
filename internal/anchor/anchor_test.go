package anchor

import (
	"strings"
	"testing"

	"github.com/tatami-reader/tatami/internal/document"
	"github.com/tatami-reader/tatami/pkg/models"
)

func TestSentenceAtJapaneseDelimiters(t *testing.T) {
	text := "雨が降っていた。彼は静かに頷いた。そして歩き出した。"
	// Offset inside the second sentence ("彼" starts at byte 24).
	sentence, off := SentenceAt(text, 24+6)
	if sentence != "彼は静かに頷いた。" {
		t.Errorf("sentence = %q", sentence)
	}
	if off != 6 {
		t.Errorf("offset in sentence = %d, want 6", off)
	}
}

func TestSentenceAtLatinDelimiters(t *testing.T) {
	text := "First one. Second one! Third?"
	sentence, off := SentenceAt(text, strings.Index(text, "Second")+2)
	if sentence != "Second one!" {
		t.Errorf("sentence = %q", sentence)
	}
	if off != 2 {
		t.Errorf("offset = %d, want 2", off)
	}
}

func TestSentenceAtNoDelimiter(t *testing.T) {
	text := "no terminator here"
	sentence, off := SentenceAt(text, 3)
	if sentence != text {
		t.Errorf("sentence = %q, want whole text", sentence)
	}
	if off != 3 {
		t.Errorf("offset = %d, want 3", off)
	}
}

func TestSentenceAtClampsOutOfRange(t *testing.T) {
	text := "短い。"
	if s, off := SentenceAt(text, 9999); s == "" || off > len(s) {
		t.Errorf("out-of-range offset not clamped: %q %d", s, off)
	}
	if s, _ := SentenceAt("", 0); s != "" {
		t.Errorf("empty text produced sentence %q", s)
	}
}

func blocks(texts ...string) []document.Block {
	out := make([]document.Block, len(texts))
	for i, s := range texts {
		out[i] = document.Block{Kind: document.BlockText, Text: s}
	}
	return out
}

func TestEncodeRestoreRoundTrip(t *testing.T) {
	content := blocks(
		"序章の文である。続きがある。",
		"雨が降っていた。彼は静かに頷いた。そして歩き出した。",
	)
	// Point inside "彼は静かに頷いた。" (block 1, starts at byte 24).
	pos := Encode("book", 3, 2, content, 1, 24+6, 42.0)
	if pos.SentenceText != "彼は静かに頷いた。" {
		t.Fatalf("encoded sentence = %q", pos.SentenceText)
	}
	if pos.ByteOffset != 6 {
		t.Fatalf("encoded byte offset = %d, want 6", pos.ByteOffset)
	}

	target := Restore(pos, content, func(block, off int) int { return 7 }, 10)
	if !target.Exact {
		t.Fatal("restore should find the sentence verbatim")
	}
	if target.Block != 1 {
		t.Errorf("target block = %d, want 1", target.Block)
	}
	// The sentence at the located offset must equal the stored sentence.
	got, _ := SentenceAt(content[target.Block].Text, target.Offset)
	if got != pos.SentenceText {
		t.Errorf("restored sentence = %q, want %q", got, pos.SentenceText)
	}
	if target.Page != 7 {
		t.Errorf("target page = %d, want the page the locator computed", target.Page)
	}
}

func TestRestoreSurvivesRelayout(t *testing.T) {
	// Same text re-extracted after a font-size change: different block
	// boundaries, same sentences.
	pos := models.ReadingPosition{
		ChapterIndex: 2,
		PageIndex:    5,
		SentenceText: "彼は静かに頷いた。",
		ByteOffset:   6,
	}
	fresh := blocks("前置き。雨が降っていた。彼は静かに頷いた。そして歩き出した。")
	target := Restore(pos, fresh, func(block, off int) int { return 1 }, 3)
	if !target.Exact {
		t.Fatal("sentence still present verbatim; restore must be exact")
	}
	if target.Chapter != 2 {
		t.Errorf("chapter = %d, want 2", target.Chapter)
	}
}

func TestRestoreFallsBackToPageIndex(t *testing.T) {
	pos := models.ReadingPosition{ChapterIndex: 1, PageIndex: 4, SentenceText: "edited away。"}
	target := Restore(pos, blocks("completely different content now."), nil, 3)
	if target.Exact {
		t.Fatal("should not claim exact match")
	}
	if !target.FromPage {
		t.Fatal("should fall back to stored page")
	}
	if target.Page != 2 {
		t.Errorf("page = %d, want 2 (clamped to totalPages-1)", target.Page)
	}
}

func TestRestoreLastPageSentinel(t *testing.T) {
	pos := models.ReadingPosition{ChapterIndex: 0, PageIndex: models.LastPage}
	target := Restore(pos, nil, nil, 6)
	if target.Page != 5 {
		t.Errorf("sentinel resolved to page %d, want 5", target.Page)
	}
}

func TestRestoreDefaultsToChapterStart(t *testing.T) {
	pos := models.ReadingPosition{ChapterIndex: 3}
	target := Restore(pos, blocks("anything"), nil, 4)
	if target.Page != 0 || target.Exact || target.FromPage {
		t.Errorf("expected chapter start, got %+v", target)
	}
}

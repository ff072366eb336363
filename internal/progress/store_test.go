package progress

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tatami-reader/tatami/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", DataFileName))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testBook() models.Book {
	return models.Book{ID: "abc123", Path: "/books/novel.epub", Title: "夜の本", Author: "作者"}
}

func TestPositionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.RememberBook(ctx, testBook()); err != nil {
		t.Fatalf("remember: %v", err)
	}

	pos := models.ReadingPosition{
		BookID:       "abc123",
		ChapterIndex: 2,
		PageIndex:    5,
		SentenceText: "彼は静かに頷いた。",
		ByteOffset:   6,
		Progress:     41.5,
	}
	if err := s.SavePosition(ctx, pos, 1); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := s.LoadPosition(ctx, "abc123")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatal("expected a stored position")
	}
	if got.ChapterIndex != 2 || got.PageIndex != 5 {
		t.Errorf("got chapter %d page %d, want 2/5", got.ChapterIndex, got.PageIndex)
	}
	if got.SentenceText != pos.SentenceText || got.ByteOffset != 6 {
		t.Errorf("anchor not preserved: %q off %d", got.SentenceText, got.ByteOffset)
	}
	if got.Progress != 41.5 {
		t.Errorf("progress = %v, want 41.5", got.Progress)
	}
}

func TestLoadMissingPosition(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.LoadPosition(context.Background(), "nope")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Error("expected no position for unknown book")
	}
}

func TestStaleWriteRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.RememberBook(ctx, testBook()); err != nil {
		t.Fatal(err)
	}

	newer := models.ReadingPosition{BookID: "abc123", ChapterIndex: 3, SentenceText: "b"}
	older := models.ReadingPosition{BookID: "abc123", ChapterIndex: 1, SentenceText: "a"}

	if err := s.SavePosition(ctx, newer, 7); err != nil {
		t.Fatalf("save newer: %v", err)
	}
	if err := s.SavePosition(ctx, older, 4); !errors.Is(err, ErrStaleWrite) {
		t.Fatalf("stale save err = %v, want ErrStaleWrite", err)
	}

	got, _, err := s.LoadPosition(ctx, "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if got.ChapterIndex != 3 {
		t.Errorf("stale write clobbered position: chapter %d, want 3", got.ChapterIndex)
	}
}

func TestBookmarks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.RememberBook(ctx, testBook()); err != nil {
		t.Fatal(err)
	}

	id, err := s.AddBookmark(ctx, models.Bookmark{
		BookID: "abc123", ChapterIndex: 1, PageIndex: 2,
		SentenceText: "ここから面白い。", Label: "climax",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	bms, err := s.Bookmarks(ctx, "abc123")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bms) != 1 || bms[0].ID != id || bms[0].Label != "climax" {
		t.Fatalf("unexpected bookmarks: %+v", bms)
	}

	if err := s.DeleteBookmark(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	bms, err = s.Bookmarks(ctx, "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if len(bms) != 0 {
		t.Errorf("bookmark not deleted: %+v", bms)
	}
}

func TestRecentOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RememberBook(ctx, models.Book{ID: "first", Title: "First"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := s.RememberBook(ctx, models.Book{ID: "second", Title: "Second"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SavePosition(ctx, models.ReadingPosition{BookID: "second", Progress: 12}, 1); err != nil {
		t.Fatal(err)
	}

	recent, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d recent books, want 2", len(recent))
	}
	if recent[0].BookID != "second" {
		t.Errorf("most recent = %q, want second", recent[0].BookID)
	}
	if recent[0].Progress != 12 {
		t.Errorf("progress = %v, want 12", recent[0].Progress)
	}
	if recent[1].Progress != 0 {
		t.Errorf("book without position should report 0 progress, got %v", recent[1].Progress)
	}
}

func TestWriterCoalescesAndFlushesOnClose(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.RememberBook(ctx, testBook()); err != nil {
		t.Fatal(err)
	}

	// Long debounce: nothing may reach disk until Close.
	w := NewWriter(s, time.Hour)
	for page := 0; page < 5; page++ {
		w.Save(models.ReadingPosition{BookID: "abc123", PageIndex: page, SentenceText: "x"})
	}

	if _, ok, _ := s.LoadPosition(ctx, "abc123"); ok {
		t.Fatal("write reached disk before debounce elapsed")
	}

	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, ok, err := s.LoadPosition(ctx, "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("close did not flush the pending position")
	}
	if got.PageIndex != 4 {
		t.Errorf("flushed page %d, want the latest (4)", got.PageIndex)
	}
}

func TestWriterDebouncedFlush(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.RememberBook(ctx, testBook()); err != nil {
		t.Fatal(err)
	}

	w := NewWriter(s, 20*time.Millisecond)
	defer w.Close()
	w.Save(models.ReadingPosition{BookID: "abc123", PageIndex: 9, SentenceText: "y"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok, _ := s.LoadPosition(ctx, "abc123"); ok && got.PageIndex == 9 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("debounced write never reached disk")
}

func TestResetDropsPosition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.RememberBook(ctx, testBook()); err != nil {
		t.Fatal(err)
	}
	if err := s.SavePosition(ctx, models.ReadingPosition{BookID: "abc123", ChapterIndex: 4, SentenceText: "z"}, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Reset(ctx, "abc123"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, ok, _ := s.LoadPosition(ctx, "abc123"); ok {
		t.Error("position survived reset")
	}
}

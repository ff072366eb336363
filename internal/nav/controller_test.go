package nav

import (
	"testing"

	"github.com/tatami-reader/tatami/pkg/models"
)

func metrics(pages int) models.PageMetrics {
	return models.PageMetrics{TotalPages: pages, PageStride: 20, Settled: true}
}

func ready(chapters, pages int) *Controller {
	c := NewController(chapters)
	c.SetMetrics(metrics(pages))
	return c
}

func TestNextPageWithinChapter(t *testing.T) {
	c := ready(3, 4)
	tr := c.NextPage()
	if !tr.Moved || tr.ChapterChanged {
		t.Fatalf("transition = %+v", tr)
	}
	if c.Page() != 1 {
		t.Errorf("page = %d, want 1", c.Page())
	}
}

func TestNextPageRollsIntoNextChapter(t *testing.T) {
	c := ready(3, 2)
	c.SetPage(1)
	tr := c.NextPage()
	if !tr.ChapterChanged {
		t.Fatalf("expected chapter change, got %+v", tr)
	}
	if c.Chapter() != 1 || c.Page() != 0 {
		t.Errorf("landed at chapter %d page %d", c.Chapter(), c.Page())
	}
	if !c.MetricsPending() {
		t.Error("chapter change must gate navigation until metrics arrive")
	}
}

func TestNextPageSaturatesAtBookEnd(t *testing.T) {
	c := ready(1, 3)
	c.SetPage(2)
	if tr := c.NextPage(); tr.Moved {
		t.Fatalf("moved past the last page of the last chapter: %+v", tr)
	}
	if c.Page() != 2 {
		t.Errorf("page = %d, want 2", c.Page())
	}
}

func TestPrevPageLandsOnLastPageOnlyAfterMetrics(t *testing.T) {
	// Reader at chapter 2 page 0; chapter 1 has 4 pages.
	c := ready(3, 5)
	c.GoToChapter(2, false)
	c.SetMetrics(metrics(5))

	tr := c.PrevPage()
	if !tr.ChapterChanged || !tr.AtChapterEnd {
		t.Fatalf("transition = %+v", tr)
	}
	if c.Chapter() != 1 {
		t.Fatalf("chapter = %d, want 1", c.Chapter())
	}
	if c.Page() != models.LastPage {
		t.Fatalf("page before metrics = %d, want LastPage sentinel", c.Page())
	}
	// Until chapter 1's metrics arrive, further movement is gated.
	if tr := c.NextPage(); tr.Moved {
		t.Fatal("navigation not gated while metrics pending")
	}
	c.SetMetrics(metrics(4))
	if c.Page() != 3 {
		t.Errorf("page after metrics = %d, want 3 (last)", c.Page())
	}
}

func TestPrevPageSaturatesAtBookStart(t *testing.T) {
	c := ready(3, 4)
	if tr := c.PrevPage(); tr.Moved {
		t.Fatalf("moved before the first page: %+v", tr)
	}
	if c.Chapter() != 0 || c.Page() != 0 {
		t.Errorf("at chapter %d page %d, want 0/0", c.Chapter(), c.Page())
	}
}

func TestGoToChapterClamps(t *testing.T) {
	c := ready(3, 4)
	c.GoToChapter(99, false)
	if c.Chapter() != 2 {
		t.Errorf("chapter = %d, want clamp to 2", c.Chapter())
	}
	c.SetMetrics(metrics(2))
	c.GoToChapter(-5, false)
	if c.Chapter() != 0 {
		t.Errorf("chapter = %d, want clamp to 0", c.Chapter())
	}
}

func TestGoToSameChapterIsNoOp(t *testing.T) {
	c := ready(3, 4)
	c.SetPage(2)
	if tr := c.GoToChapter(0, false); tr.Moved {
		t.Fatalf("same-chapter jump should no-op: %+v", tr)
	}
	if c.Page() != 2 {
		t.Errorf("page disturbed by no-op jump: %d", c.Page())
	}
}

func TestSetPageClampLaw(t *testing.T) {
	c := ready(2, 5)
	for _, p := range []int{-10, -1, 0, 3, 4, 5, 99} {
		c.SetPage(p)
		if c.Page() < 0 || c.Page() > c.TotalPages()-1 {
			t.Errorf("SetPage(%d) left page %d outside [0,%d]", p, c.Page(), c.TotalPages()-1)
		}
	}
}

func TestSetMetricsClampsCurrentPage(t *testing.T) {
	c := ready(1, 10)
	c.SetPage(9)
	c.Invalidate()
	c.SetMetrics(metrics(4)) // layout change shrank the chapter
	if c.Page() != 3 {
		t.Errorf("page = %d, want clamp to 3", c.Page())
	}
}

func TestRapidDoubleAdvanceCannotRaceRecompute(t *testing.T) {
	c := ready(2, 2)
	c.SetPage(1)
	first := c.NextPage() // rolls into chapter 1, gate drops
	if !first.ChapterChanged {
		t.Fatalf("setup: %+v", first)
	}
	second := c.NextPage() // arrives before SetMetrics
	if second.Moved {
		t.Fatal("second advance acted on a stale page count")
	}
	c.SetMetrics(metrics(7))
	if c.Chapter() != 1 || c.Page() != 0 {
		t.Errorf("at chapter %d page %d after recompute, want 1/0", c.Chapter(), c.Page())
	}
}

func TestProgressBounds(t *testing.T) {
	c := ready(4, 3)
	if p := c.Progress(); p < 0 || p > 100 {
		t.Fatalf("progress %v out of range", p)
	}
	c.GoToChapter(3, true)
	c.SetMetrics(metrics(3))
	if p := c.Progress(); p != 100 {
		t.Errorf("end of book progress = %v, want 100", p)
	}
}

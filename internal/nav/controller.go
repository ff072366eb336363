// Package nav owns the current reading location: which chapter, which page,
// how many pages the chapter has. All movement is saturating; out-of-range
// requests clamp silently instead of erroring.
package nav

import (
	"github.com/tatami-reader/tatami/pkg/models"
)

// Transition tells the caller what a move did and what it now owes the
// controller: a chapter change requires a pagination recompute before
// TotalPages can be trusted again.
type Transition struct {
	Moved          bool
	ChapterChanged bool
	AtChapterEnd   bool // the new chapter should land on its last page
}

// Controller is the per-open-book navigation state. While a chapter change
// is pending its metrics, all page movement is gated: a rapid double-advance
// must not race the recompute and act on a stale page count.
type Controller struct {
	chapterIndex int
	pageIndex    int
	totalPages   int
	chapterCount int
	pending      bool
}

// NewController starts at chapter 0, page 0, with metrics pending.
func NewController(chapterCount int) *Controller {
	if chapterCount < 1 {
		chapterCount = 1
	}
	return &Controller{
		chapterCount: chapterCount,
		totalPages:   1,
		pending:      true,
	}
}

func (c *Controller) Chapter() int      { return c.chapterIndex }
func (c *Controller) TotalPages() int   { return c.totalPages }
func (c *Controller) ChapterCount() int { return c.chapterCount }

// Page returns the current page index. While a backwards chapter transition
// is pending it is the LastPage sentinel; callers that persist state must
// store it as-is so a restore resolves it the same way.
func (c *Controller) Page() int { return c.pageIndex }

// MetricsPending reports whether page movement is currently gated.
func (c *Controller) MetricsPending() bool { return c.pending }

// SetMetrics delivers freshly computed metrics, resolves the last-page
// sentinel, clamps the page into range, and lifts the gate.
func (c *Controller) SetMetrics(m models.PageMetrics) {
	c.totalPages = m.TotalPages
	if c.totalPages < 1 {
		c.totalPages = 1
	}
	if c.pageIndex == models.LastPage {
		c.pageIndex = c.totalPages - 1
	}
	c.pageIndex = clamp(c.pageIndex, 0, c.totalPages-1)
	c.pending = false
}

// Invalidate gates navigation until new metrics arrive, keeping the current
// page as the restore hint. Used when layout parameters change in place.
func (c *Controller) Invalidate() { c.pending = true }

// NextPage advances one page, rolling into the next chapter at the boundary.
func (c *Controller) NextPage() Transition {
	if c.pending {
		return Transition{}
	}
	if c.pageIndex < c.totalPages-1 {
		c.pageIndex++
		return Transition{Moved: true}
	}
	if c.chapterIndex < c.chapterCount-1 {
		c.chapterIndex++
		c.pageIndex = 0
		c.pending = true
		return Transition{Moved: true, ChapterChanged: true}
	}
	return Transition{} // end of book; saturate
}

// PrevPage is symmetric: crossing a chapter boundary backwards requests the
// previous chapter's last page, which cannot be known until its metrics are
// computed.
func (c *Controller) PrevPage() Transition {
	if c.pending {
		return Transition{}
	}
	if c.pageIndex > 0 {
		c.pageIndex--
		return Transition{Moved: true}
	}
	if c.chapterIndex > 0 {
		c.chapterIndex--
		c.pageIndex = models.LastPage
		c.pending = true
		return Transition{Moved: true, ChapterChanged: true, AtChapterEnd: true}
	}
	return Transition{}
}

// GoToChapter jumps to a chapter, clamped into range. Jumping to the current
// chapter is a no-op.
func (c *Controller) GoToChapter(index int, atEnd bool) Transition {
	index = clamp(index, 0, c.chapterCount-1)
	if index == c.chapterIndex && !c.pending {
		return Transition{}
	}
	changed := index != c.chapterIndex
	c.chapterIndex = index
	if atEnd {
		c.pageIndex = models.LastPage
	} else {
		c.pageIndex = 0
	}
	c.pending = true
	return Transition{Moved: true, ChapterChanged: changed, AtChapterEnd: atEnd}
}

// SetPage moves within the current chapter, clamped. Gated while pending.
func (c *Controller) SetPage(p int) {
	if c.pending {
		return
	}
	c.pageIndex = clamp(p, 0, c.totalPages-1)
}

// Progress estimates total book progress in [0,100], weighting chapters
// equally and interpolating within the current chapter.
func (c *Controller) Progress() float64 {
	page := c.pageIndex
	if page == models.LastPage {
		page = c.totalPages - 1
	}
	chapterWeight := 100.0 / float64(c.chapterCount)
	within := 0.0
	if c.totalPages > 1 {
		within = float64(page) / float64(c.totalPages-1)
	} else if c.chapterIndex == c.chapterCount-1 {
		within = 1.0
	}
	p := float64(c.chapterIndex)*chapterWeight + within*chapterWeight
	if p > 100 {
		p = 100
	}
	return p
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

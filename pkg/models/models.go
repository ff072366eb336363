package models

import "time"

// ReadingDirection describes how the text flow maps to screen geometry.
type ReadingDirection string

const (
	DirectionHorizontalLTR ReadingDirection = "horizontal-ltr"
	DirectionVerticalRTL   ReadingDirection = "vertical-rtl"
	DirectionVerticalLTR   ReadingDirection = "vertical-ltr"
)

// RTL reports whether geometric left/right is logically reversed.
func (d ReadingDirection) RTL() bool {
	return d == DirectionVerticalRTL
}

// PaginationMode selects between discrete pages and continuous scroll.
type PaginationMode string

const (
	ModePaged      PaginationMode = "paged"
	ModeContinuous PaginationMode = "continuous"
)

// Book identifies an open book. The ID is a content hash so that progress
// records survive renames and moves of the underlying file.
type Book struct {
	ID     string
	Path   string
	Title  string
	Author string
}

// TOCEntry is one row of a table of contents.
type TOCEntry struct {
	Title        string
	ChapterIndex int
	Level        int
}

// LayoutParameters are the inputs that, together with chapter content,
// determine page metrics. Any field change invalidates cached metrics.
type LayoutParameters struct {
	ViewportWidth  int
	ViewportHeight int
	Padding        int
	ColumnGap      int
	TextScale      float64
	Direction      ReadingDirection
	Mode           PaginationMode
	FuriganaShown  bool
}

// PageMetrics are derived from one (chapter content, layout) pair.
// TotalPages is always at least 1. PageExtent is the content shown per page;
// PageStride adds the inter-column gap, which is dead space between columns,
// never content. The flow itself is dense, so page windows advance by
// PageExtent.
type PageMetrics struct {
	TotalPages int
	PageExtent float64
	PageStride float64
	FlowExtent float64
	// Settled is false when measurement proceeded before embedded images
	// resolved their intrinsic size; the page count is then best-effort.
	Settled bool
}

// LastPage is the sentinel page index meaning "resolve to the chapter's last
// page once its metrics are known". It appears only while a backwards chapter
// transition is in flight.
const LastPage = -1

// ReadingPosition is the sole persisted representation of where the reader
// stopped. The sentence anchor survives re-layout; the page index is the
// coarse fallback when the sentence text is no longer present.
type ReadingPosition struct {
	BookID       string
	ChapterIndex int
	PageIndex    int
	SentenceText string
	// ByteOffset is a UTF-8 byte count into SentenceText. Go strings are
	// UTF-8 already, so no conversion happens at the persistence boundary.
	ByteOffset int
	// Progress is total book progress in [0,100].
	Progress  float64
	UpdatedAt time.Time
}

// Bookmark is a manually placed, named reading position.
type Bookmark struct {
	ID           int64
	BookID       string
	ChapterIndex int
	PageIndex    int
	SentenceText string
	Label        string
	CreatedAt    time.Time
}

// RecentBook is one row of the recently-read shelf.
type RecentBook struct {
	BookID   string
	Path     string
	Title    string
	Progress float64
	OpenedAt time.Time
}

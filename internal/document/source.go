// Package document supplies chapter content and tables of contents to the
// reading engine. The engine only ever sees the Source interface; format
// parsing stays behind it.
package document

import (
	"context"

	"github.com/tatami-reader/tatami/pkg/models"
)

// BlockKind distinguishes the block-level runs a chapter is made of.
type BlockKind int

const (
	BlockText BlockKind = iota
	BlockHeading
	BlockImage
)

// Block is one block-level run of rendered chapter content. Blocks are
// immutable once loaded; the engine treats them as read-only.
type Block struct {
	Kind BlockKind
	Text string
	// Furigana carries ruby annotation text for this block. It contributes
	// to the flow extent only while furigana is visible, which is why the
	// visibility toggle invalidates page metrics.
	Furigana string
	// Image geometry, when known. Zero values mean the intrinsic size has
	// not resolved yet; measurement may proceed best-effort past a bounded
	// wait.
	ImageWidth  int
	ImageHeight int
}

// Resolved reports whether an image block knows its intrinsic size.
// Non-image blocks are always resolved.
func (b Block) Resolved() bool {
	return b.Kind != BlockImage || (b.ImageWidth > 0 && b.ImageHeight > 0)
}

// Chapter is an ordered, index-addressable sequence of blocks.
type Chapter struct {
	Index  int
	Title  string
	Blocks []Block
}

// Source is the document acquisition collaborator.
type Source interface {
	Book() models.Book
	ChapterCount() int
	Chapter(ctx context.Context, index int) (*Chapter, error)
	TOC() []models.TOCEntry
	Close() error
}

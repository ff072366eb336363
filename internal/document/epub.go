package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/taylorskalyo/goreader/epub"
	"golang.org/x/net/html"

	applog "github.com/tatami-reader/tatami/internal/log"
	"github.com/tatami-reader/tatami/pkg/models"
)

const hashBytes = 8192 // first 8KB identifies the book

// EPUBSource reads chapters from an EPUB archive. Chapters are extracted
// lazily and cached; the archive stays open until Close.
type EPUBSource struct {
	book models.Book
	rc   *epub.ReadCloser
	root *epub.Rootfile
	toc  []models.TOCEntry
	log  *slog.Logger

	mu    sync.Mutex
	cache map[int]*Chapter
}

// OpenEPUB opens the archive, computes the book identity, and resolves the
// table of contents.
func OpenEPUB(path string) (*EPUBSource, error) {
	rc, err := epub.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}
	if len(rc.Rootfiles) == 0 {
		rc.Close()
		return nil, fmt.Errorf("open epub: no rootfiles in %s", path)
	}
	root := rc.Rootfiles[0]

	id, err := contentHash(path)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("identify book: %w", err)
	}

	s := &EPUBSource{
		book: models.Book{
			ID:     id,
			Path:   path,
			Title:  strings.TrimSpace(root.Title),
			Author: strings.TrimSpace(root.Creator),
		},
		rc:    rc,
		root:  root,
		log:   applog.WithComponent("document"),
		cache: make(map[int]*Chapter),
	}
	if s.book.Title == "" {
		s.book.Title = path
	}
	s.toc = s.buildTOC(path)
	return s, nil
}

func (s *EPUBSource) Book() models.Book { return s.book }

func (s *EPUBSource) ChapterCount() int { return len(s.root.Spine.Itemrefs) }

func (s *EPUBSource) TOC() []models.TOCEntry { return s.toc }

func (s *EPUBSource) Close() error {
	s.rc.Close()
	return nil
}

// Chapter extracts the spine item at index into block-level runs.
func (s *EPUBSource) Chapter(ctx context.Context, index int) (*Chapter, error) {
	if index < 0 || index >= len(s.root.Spine.Itemrefs) {
		return nil, fmt.Errorf("chapter %d out of range [0,%d)", index, len(s.root.Spine.Itemrefs))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if ch, ok := s.cache[index]; ok {
		s.mu.Unlock()
		return ch, nil
	}
	s.mu.Unlock()

	ref := s.root.Spine.Itemrefs[index]
	if ref.Item == nil {
		return &Chapter{Index: index}, nil
	}
	r, err := ref.Item.Open()
	if err != nil {
		return nil, fmt.Errorf("open spine item %d: %w", index, err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, fmt.Errorf("read spine item %d: %w", index, err)
	}

	ch := &Chapter{
		Index:  index,
		Title:  s.titleFor(index),
		Blocks: extractBlocks(string(data)),
	}
	s.mu.Lock()
	s.cache[index] = ch
	s.mu.Unlock()
	s.log.Debug("chapter extracted", slog.Int("chapter", index), slog.Int("blocks", len(ch.Blocks)))
	return ch, nil
}

func (s *EPUBSource) titleFor(index int) string {
	for _, e := range s.toc {
		if e.ChapterIndex == index {
			return e.Title
		}
	}
	return fmt.Sprintf("Section %d", index+1)
}

// blockElements are the elements that terminate a text run.
var blockElements = map[string]BlockKind{
	"p": BlockText, "div": BlockText, "li": BlockText,
	"blockquote": BlockText, "td": BlockText, "pre": BlockText,
	"h1": BlockHeading, "h2": BlockHeading, "h3": BlockHeading,
	"h4": BlockHeading, "h5": BlockHeading, "h6": BlockHeading,
}

// extractBlocks walks chapter markup and flattens it into block-level runs.
// Ruby annotation text is collected separately from its base text so that the
// furigana toggle can change the measured flow extent without re-parsing.
func extractBlocks(markup string) []Block {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil
	}

	var blocks []Block
	var text, ruby strings.Builder

	flush := func(kind BlockKind) {
		t := strings.Join(strings.Fields(text.String()), " ")
		r := strings.Join(strings.Fields(ruby.String()), " ")
		text.Reset()
		ruby.Reset()
		if t == "" && r == "" {
			return
		}
		blocks = append(blocks, Block{Kind: kind, Text: t, Furigana: r})
	}

	var walk func(n *html.Node, kind BlockKind, inRT bool)
	walk = func(n *html.Node, kind BlockKind, inRT bool) {
		switch n.Type {
		case html.TextNode:
			if inRT {
				ruby.WriteString(n.Data)
			} else {
				text.WriteString(n.Data)
			}
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "head":
				return
			case "img", "image":
				flush(kind)
				blocks = append(blocks, imageBlock(n))
				return
			case "br":
				text.WriteString(" ")
				return
			case "rt", "rp":
				inRT = true
			}
			if k, ok := blockElements[n.Data]; ok {
				flush(kind)
				kind = k
				defer flush(k)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, kind, inRT)
		}
	}
	walk(doc, BlockText, false)
	flush(BlockText)
	return blocks
}

func imageBlock(n *html.Node) Block {
	b := Block{Kind: BlockImage}
	for _, a := range n.Attr {
		switch a.Key {
		case "width":
			b.ImageWidth = atoiSafe(a.Val)
		case "height":
			b.ImageHeight = atoiSafe(a.Val)
		case "alt":
			b.Text = strings.TrimSpace(a.Val)
		}
	}
	return b
}

func atoiSafe(s string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(s), "px"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// contentHash hashes the first 8KB of the file; enough to identify a book
// across renames without reading the whole archive.
func contentHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, hashBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	sum := sha256.Sum256(buf[:n])
	return hex.EncodeToString(sum[:16]), nil
}

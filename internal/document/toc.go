package document

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/tatami-reader/tatami/pkg/models"
)

// NCX structures for parsing toc.ncx.
type ncx struct {
	NavMap navMap `xml:"navMap"`
}

type navMap struct {
	NavPoints []navPoint `xml:"navPoint"`
}

type navPoint struct {
	Label    navLabel   `xml:"navLabel"`
	Content  navContent `xml:"content"`
	Children []navPoint `xml:"navPoint"`
}

type navLabel struct {
	Text string `xml:"text"`
}

type navContent struct {
	Src string `xml:"src,attr"`
}

// buildTOC maps NCX nav points onto spine (chapter) indices. A missing or
// unparseable NCX yields a synthesized one-entry-per-spine-item TOC; the
// reader never goes without a TOC.
func (s *EPUBSource) buildTOC(archivePath string) []models.TOCEntry {
	spineIndex := make(map[string]int)
	for i, ref := range s.root.Spine.Itemrefs {
		if ref.Item == nil || ref.Item.HREF == "" {
			continue
		}
		spineIndex[ref.Item.HREF] = i
		spineIndex[path.Base(ref.Item.HREF)] = i
	}

	data, err := readNCX(archivePath, s)
	if err != nil {
		s.log.Debug("no usable NCX, synthesizing TOC", slog.Any("err", err))
		return s.fallbackTOC()
	}
	var t ncx
	if err := xml.Unmarshal(data, &t); err != nil {
		s.log.Debug("NCX parse failed, synthesizing TOC", slog.Any("err", err))
		return s.fallbackTOC()
	}

	entries := flattenNavPoints(t.NavMap.NavPoints, spineIndex, 0)
	if len(entries) == 0 {
		return s.fallbackTOC()
	}
	return entries
}

func (s *EPUBSource) fallbackTOC() []models.TOCEntry {
	entries := make([]models.TOCEntry, 0, len(s.root.Spine.Itemrefs))
	for i := range s.root.Spine.Itemrefs {
		entries = append(entries, models.TOCEntry{
			Title:        fmt.Sprintf("Section %d", i+1),
			ChapterIndex: i,
		})
	}
	return entries
}

func flattenNavPoints(points []navPoint, spineIndex map[string]int, level int) []models.TOCEntry {
	var entries []models.TOCEntry
	for _, np := range points {
		href := np.Content.Src
		if idx := strings.Index(href, "#"); idx != -1 {
			href = href[:idx]
		}

		chapter, ok := spineIndex[href]
		if !ok {
			chapter, ok = spineIndex[path.Base(href)]
		}
		if ok {
			entries = append(entries, models.TOCEntry{
				Title:        strings.TrimSpace(np.Label.Text),
				ChapterIndex: chapter,
				Level:        level,
			})
		}
		entries = append(entries, flattenNavPoints(np.Children, spineIndex, level+1)...)
	}
	return entries
}

func readNCX(archivePath string, s *EPUBSource) ([]byte, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var ncxPath string
	for _, item := range s.root.Manifest.Items {
		if item.MediaType == "application/x-dtbncx+xml" {
			ncxPath = item.HREF
			break
		}
	}
	if ncxPath == "" {
		for _, f := range zr.File {
			if strings.HasSuffix(strings.ToLower(f.Name), ".ncx") {
				ncxPath = f.Name
				break
			}
		}
	}
	if ncxPath == "" {
		return nil, errNoNCX
	}

	for _, f := range zr.File {
		if f.Name == ncxPath || strings.HasSuffix(f.Name, "/"+ncxPath) || path.Base(f.Name) == path.Base(ncxPath) {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, errNoNCX
}

var errNoNCX = &ncxError{}

type ncxError struct{}

func (*ncxError) Error() string { return "no NCX file found in archive" }

package pagesource

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"image"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sahilchouksey/study-artifacts/model"
)

var slidePartPattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// slidesHandle reads an OOXML presentation (.pptx). Slide text is parsed
// eagerly; decks carry no raster form, so scanned slides cannot be recognised.
type slidesHandle struct {
	slides []string
}

// OpenSlides parses .pptx bytes into one page per slide, ordered by slide number
func OpenSlides(data []byte) (Handle, error) {
	if len(data) == 0 {
		return nil, corrupt("empty slide deck", nil)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, corrupt("slide deck is not a valid archive", err)
	}

	type slidePart struct {
		number int
		file   *zip.File
	}
	var parts []slidePart
	hasPresentation := false
	for _, f := range zr.File {
		if f.Name == "ppt/presentation.xml" {
			hasPresentation = true
			continue
		}
		m := slidePartPattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		parts = append(parts, slidePart{number: n, file: f})
	}
	if !hasPresentation {
		return nil, corrupt("slide deck has no presentation part", nil)
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].number < parts[j].number })

	slides := make([]string, 0, len(parts))
	for _, p := range parts {
		text, err := readSlideText(p.file)
		if err != nil {
			return nil, corrupt(fmt.Sprintf("slide %d", p.number), err)
		}
		slides = append(slides, text)
	}

	return &slidesHandle{slides: slides}, nil
}

// readSlideText collects <a:t> runs, one line per <a:p> paragraph
func readSlideText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var (
		sb     strings.Builder
		line   strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(line.String()); s != "" {
					sb.WriteString(s)
					sb.WriteString("\n")
				}
				line.Reset()
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	if s := strings.TrimSpace(line.String()); s != "" {
		sb.WriteString(s)
	}
	return strings.TrimSpace(sb.String()), nil
}

func (h *slidesHandle) PageCount() int {
	return len(h.slides)
}

func (h *slidesHandle) ReadPages(ctx context.Context, r model.PageRange) ([]Page, error) {
	if err := checkRange(r, len(h.slides)); err != nil {
		return nil, err
	}
	pages := make([]Page, 0, r.Len())
	for n := r.Start; n <= r.End; n++ {
		pages = append(pages, &slidePage{number: n, text: h.slides[n-1]})
	}
	return pages, ctx.Err()
}

func (h *slidesHandle) Close() error { return nil }

func (h *slidesHandle) TextOnly() bool { return true }

type slidePage struct {
	number int
	text   string
}

func (p *slidePage) Number() int { return p.number }

func (p *slidePage) Text() (string, error) { return p.text, nil }

func (p *slidePage) Render() (image.Image, error) {
	return nil, fmt.Errorf("slide %d: %w", p.number, ErrRenderUnsupported)
}

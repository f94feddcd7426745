package extraction

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sahilchouksey/study-artifacts/model"
	"github.com/sahilchouksey/study-artifacts/services/pagesource"
)

type fakePage struct {
	number    int
	text      string
	textErr   error
	renderErr error
}

func (p fakePage) Number() int { return p.number }

func (p fakePage) Text() (string, error) { return p.text, p.textErr }

func (p fakePage) Render() (image.Image, error) {
	if p.renderErr != nil {
		return nil, p.renderErr
	}
	// encode the page number in the image width so the recognizer can echo it
	return image.NewGray(image.Rect(0, 0, p.number, 1)), nil
}

type fakeHandle struct {
	pages    []fakePage
	readErr  error
	textOnly bool
}

func (h *fakeHandle) TextOnly() bool { return h.textOnly }

func (h *fakeHandle) PageCount() int { return len(h.pages) }

func (h *fakeHandle) ReadPages(_ context.Context, r model.PageRange) ([]pagesource.Page, error) {
	if h.readErr != nil {
		return nil, h.readErr
	}
	if r.Start < 1 || r.End > len(h.pages) {
		return nil, pagesource.ErrPageOutOfRange
	}
	out := make([]pagesource.Page, 0, r.Len())
	for _, p := range h.pages[r.Start-1 : r.End] {
		out = append(out, p)
	}
	return out, nil
}

func (h *fakeHandle) Close() error { return nil }

type fakeSource struct {
	handles map[string]*fakeHandle
	openErr map[string]error
}

func (s *fakeSource) Open(_ context.Context, doc *model.Document) (pagesource.Handle, error) {
	if err := s.openErr[doc.ID]; err != nil {
		return nil, err
	}
	h, ok := s.handles[doc.ID]
	if !ok {
		return nil, fmt.Errorf("no such document %s", doc.ID)
	}
	return h, nil
}

// textPages builds n pages whose text is "page N" padded to dense text
func textPages(n int) []fakePage {
	pages := make([]fakePage, n)
	for i := range pages {
		pages[i] = fakePage{number: i + 1, text: fmt.Sprintf("page %d %s", i+1, strings.Repeat("lorem ipsum ", 20))}
	}
	return pages
}

// slidePages builds a deck of short bullet slides, well under the density threshold
func slidePages(titles ...string) []fakePage {
	pages := make([]fakePage, len(titles))
	for i, title := range titles {
		pages[i] = fakePage{
			number:    i + 1,
			text:      title + "\n- key points",
			renderErr: pagesource.ErrRenderUnsupported,
		}
	}
	return pages
}

func blankPages(n int) []fakePage {
	pages := make([]fakePage, n)
	for i := range pages {
		pages[i] = fakePage{number: i + 1}
	}
	return pages
}

var errEngine = errors.New("recognition engine crashed")

// fakeRecognizer echoes the page number and fails for pages in failPages
type fakeRecognizer struct {
	failPages map[int]bool
	blank     bool

	mu       sync.Mutex
	inFlight int
	peak     int
	calls    atomic.Int32
}

func (r *fakeRecognizer) Recognize(_ context.Context, img image.Image) (string, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > r.peak {
		r.peak = r.inFlight
	}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
	}()

	page := img.Bounds().Dx()
	if r.failPages[page] {
		return "", errEngine
	}
	if r.blank {
		return "", nil
	}
	return fmt.Sprintf("recognised text of page %d", page), nil
}

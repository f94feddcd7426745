package pagesource

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/gofiber/fiber/v2/log"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/sahilchouksey/study-artifacts/model"
)

// renderDPI is the rasterisation resolution handed to the OCR backend
const renderDPI = 150.0

// pdfHandle reads text through ledongthuc/pdf and rasterises through MuPDF.
// Both readers are opened over the same sanitized bytes.
type pdfHandle struct {
	data      []byte
	reader    *pdf.Reader
	pageCount int

	// neither reader is safe for concurrent use
	textMu   sync.Mutex
	renderMu sync.Mutex
	fitzDoc  *fitz.Document
}

// OpenPDF parses PDF bytes. pdfcpu validates the structure and supplies the
// authoritative page count; files it rejects are corrupt.
func OpenPDF(data []byte) (Handle, error) {
	if len(data) == 0 {
		return nil, corrupt("empty PDF content", nil)
	}

	// Try to sanitize PDF if it has trailing garbage (common with web downloads)
	data = sanitizePDF(data)

	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed

	pageCount, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return nil, corrupt("failed to read PDF structure", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, corrupt("failed to parse PDF", err)
	}

	return &pdfHandle{
		data:      data,
		reader:    reader,
		pageCount: pageCount,
	}, nil
}

func (h *pdfHandle) PageCount() int {
	return h.pageCount
}

func (h *pdfHandle) ReadPages(ctx context.Context, r model.PageRange) ([]Page, error) {
	if err := checkRange(r, h.pageCount); err != nil {
		return nil, err
	}
	pages := make([]Page, 0, r.Len())
	for n := r.Start; n <= r.End; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages = append(pages, &pdfPage{handle: h, number: n})
	}
	return pages, nil
}

func (h *pdfHandle) Close() error {
	h.renderMu.Lock()
	defer h.renderMu.Unlock()
	if h.fitzDoc != nil {
		err := h.fitzDoc.Close()
		h.fitzDoc = nil
		return err
	}
	return nil
}

// pageText extracts the text of one page by row, falling back to plain text
func (h *pdfHandle) pageText(n int) (text string, err error) {
	h.textMu.Lock()
	defer h.textMu.Unlock()

	// ledongthuc/pdf panics on some malformed content streams
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("page %d: text extraction panicked: %v", n, r)
		}
	}()

	page := h.reader.Page(n)
	if page.V.IsNull() {
		return "", nil
	}

	// Try to extract text by row for better structure preservation
	rows, rowErr := page.GetTextByRow()
	if rowErr != nil {
		log.Debugf("PDFSource: Row extraction failed for page %d, trying plain text: %v", n, rowErr)
		plain, plainErr := page.GetPlainText(nil)
		if plainErr != nil {
			return "", fmt.Errorf("page %d: %w", n, plainErr)
		}
		return strings.TrimSpace(plain), nil
	}

	var sb strings.Builder
	for _, row := range rows {
		var rowText strings.Builder
		for _, word := range row.Content {
			rowText.WriteString(word.S)
		}
		line := strings.TrimSpace(rowText.String())
		if line != "" {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// renderPage rasterises one page, opening the MuPDF document on first use
func (h *pdfHandle) renderPage(n int) (image.Image, error) {
	h.renderMu.Lock()
	defer h.renderMu.Unlock()

	if h.fitzDoc == nil {
		doc, err := fitz.NewFromMemory(h.data)
		if err != nil {
			return nil, corrupt("failed to open PDF for rendering", err)
		}
		h.fitzDoc = doc
	}

	img, err := h.fitzDoc.ImageDPI(n-1, renderDPI)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", n, err)
	}
	return img, nil
}

type pdfPage struct {
	handle *pdfHandle
	number int
}

func (p *pdfPage) Number() int { return p.number }

func (p *pdfPage) Text() (string, error) { return p.handle.pageText(p.number) }

func (p *pdfPage) Render() (image.Image, error) { return p.handle.renderPage(p.number) }

// sanitizePDF fixes common PDF issues like trailing garbage data.
// Many PDFs downloaded from web have HTML or other data appended after %%EOF;
// the content is truncated at the last valid %%EOF marker.
func sanitizePDF(content []byte) []byte {
	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		return content
	}

	eofMarker := []byte("%%EOF")
	lastEOF := bytes.LastIndex(content, eofMarker)
	if lastEOF == -1 {
		// truncated, let the parser decide
		return content
	}

	pdfEnd := lastEOF + len(eofMarker)
	for pdfEnd < len(content) && (content[pdfEnd] == '\n' || content[pdfEnd] == '\r') {
		pdfEnd++
	}

	if extraBytes := len(content) - pdfEnd; extraBytes > 10 {
		log.Warnf("PDFSource: Removing %d bytes of trailing garbage after %%EOF", extraBytes)
		return content[:pdfEnd]
	}
	return content
}

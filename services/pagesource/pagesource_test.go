package pagesource

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilchouksey/study-artifacts/model"
	"github.com/sahilchouksey/study-artifacts/services/storage"
)

// buildPDF writes a minimal PDF with one Helvetica text line per page
func buildPDF(pageTexts []string) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	n := len(pageTexts)
	// 1 catalog, 2 pages, 3 font, then page/content pairs
	kids := make([]string, n)
	for i := range pageTexts {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	for i, text := range pageTexts {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// buildPPTX writes a minimal presentation archive, slides keyed by number
func buildPPTX(t *testing.T, slides map[int][]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("ppt/presentation.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?><p:presentation xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"/>`))
	require.NoError(t, err)

	for n, paras := range slides {
		w, err := zw.Create(fmt.Sprintf("ppt/slides/slide%d.xml", n))
		require.NoError(t, err)
		var body strings.Builder
		for _, p := range paras {
			fmt.Fprintf(&body, "<a:p><a:r><a:t>%s</a:t></a:r></a:p>", p)
		}
		_, err = fmt.Fprintf(w, `<?xml version="1.0"?><p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><p:cSld><p:spTree><p:sp><p:txBody>%s</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`, body.String())
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func buildPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	img.Set(2, 2, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestOpenPDF_PageCountAndText(t *testing.T) {
	h, err := OpenPDF(buildPDF([]string{"Hello World", "Second Page", "Third"}))
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, 3, h.PageCount())
	assert.True(t, CanRender(h))

	pages, err := h.ReadPages(context.Background(), model.PageRange{Start: 1, End: 2})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number())
	assert.Equal(t, 2, pages[1].Number())

	text, err := pages[0].Text()
	require.NoError(t, err)
	assert.Contains(t, text, "Hello")
}

func TestOpenPDF_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("this is definitely not a pdf file at all")},
		{"truncated header", []byte("%PDF-1.4\n1 0 obj\n<<")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenPDF(tt.data)
			assert.ErrorIs(t, err, ErrCorruptDocument)
		})
	}
}

func TestOpenPDF_RangeOutOfBounds(t *testing.T) {
	h, err := OpenPDF(buildPDF([]string{"only page"}))
	require.NoError(t, err)
	defer h.Close()

	_, err = h.ReadPages(context.Background(), model.PageRange{Start: 1, End: 2})
	assert.ErrorIs(t, err, ErrPageOutOfRange)
}

func TestSanitizePDF(t *testing.T) {
	clean := buildPDF([]string{"x"})
	dirty := append(append([]byte{}, clean...), []byte("<html><body>download page</body></html>")...)

	assert.Equal(t, clean, sanitizePDF(dirty))
	assert.Equal(t, clean, sanitizePDF(clean))

	notPDF := []byte("plain text")
	assert.Equal(t, notPDF, sanitizePDF(notPDF))
}

func TestOpenSlides(t *testing.T) {
	data := buildPPTX(t, map[int][]string{
		2:  {"Second slide"},
		1:  {"Title", "Subtitle"},
		10: {"Tenth"},
	})

	h, err := OpenSlides(data)
	require.NoError(t, err)
	require.Equal(t, 3, h.PageCount())

	pages, err := h.ReadPages(context.Background(), model.PageRange{Start: 1, End: 3})
	require.NoError(t, err)

	first, err := pages[0].Text()
	require.NoError(t, err)
	assert.Equal(t, "Title\nSubtitle", first)

	last, err := pages[2].Text()
	require.NoError(t, err)
	assert.Equal(t, "Tenth", last, "slide10 must sort after slide2")

	_, err = pages[0].Render()
	assert.ErrorIs(t, err, ErrRenderUnsupported)
	assert.False(t, CanRender(h))
}

func TestOpenSlides_Corrupt(t *testing.T) {
	_, err := OpenSlides([]byte("not a zip"))
	assert.ErrorIs(t, err, ErrCorruptDocument)

	// a zip without a presentation part is not a deck
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err = zw.Create("readme.txt")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = OpenSlides(buf.Bytes())
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestOpenSlides_NoSlides(t *testing.T) {
	h, err := OpenSlides(buildPPTX(t, nil))
	require.NoError(t, err)
	assert.Equal(t, 0, h.PageCount())
}

func TestOpenImage(t *testing.T) {
	h, err := OpenImage(buildPNG(t))
	require.NoError(t, err)
	assert.Equal(t, 1, h.PageCount())

	pages, err := h.ReadPages(context.Background(), model.PageRange{Start: 1, End: 1})
	require.NoError(t, err)
	require.Len(t, pages, 1)

	text, err := pages[0].Text()
	require.NoError(t, err)
	assert.Empty(t, text)

	img, err := pages[0].Render()
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.True(t, CanRender(h))

	_, err = OpenImage([]byte("GIF89a-broken"))
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestResolver_Open(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "s1/scan.png", buildPNG(t), "image/png"))

	r := NewResolver(store)

	h, err := r.Open(ctx, &model.Document{Kind: model.DocumentKindImage, Filename: "scan.png", SourceHandle: "s1/scan.png"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.PageCount())

	_, err = r.Open(ctx, &model.Document{Kind: model.DocumentKindPDF, Filename: "gone.pdf", SourceHandle: "s1/gone.pdf"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = r.Open(ctx, &model.Document{Kind: "docx", SourceHandle: "s1/scan.png"})
	assert.Error(t, err)
}

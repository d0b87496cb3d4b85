package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTextPDF writes a minimal PDF with one line of Helvetica text per page.
func writeTextPDF(t *testing.T, dir, name string, pages []string) string {
	t.Helper()
	var objs []string
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)

	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, b.Bytes(), 0o644))
	return p
}

func TestTextLayerConvert(t *testing.T) {
	path := writeTextPDF(t, t.TempDir(), "sample.pdf", []string{"first page", "second page", "third page"})
	tl := NewTextLayer(Config{}, slog.New(slog.DiscardHandler))
	assert.Equal(t, EngineTextLayer, tl.Name())
	require.NoError(t, tl.Check(context.Background()))

	out, err := tl.Convert(context.Background(), Job{Path: path, MaxPages: 20})
	require.NoError(t, err)
	assert.Equal(t, 3, out.PagesProcessed)
	assert.Equal(t, 3, out.TotalPages)
	assert.False(t, out.Truncated)
	assert.Equal(t, "pdf-text", out.Method)
	assert.Empty(t, out.Warnings)

	parts := strings.Split(out.Text, "\n\f\n")
	require.Len(t, parts, 3)
	assert.Contains(t, parts[0], "first page")
	assert.Contains(t, parts[2], "third page")
}

func TestTextLayerTruncates(t *testing.T) {
	pages := make([]string, 5)
	for i := range pages {
		pages[i] = fmt.Sprintf("page %d", i+1)
	}
	path := writeTextPDF(t, t.TempDir(), "big.pdf", pages)
	tl := NewTextLayer(Config{}, slog.New(slog.DiscardHandler))

	out, err := tl.Convert(context.Background(), Job{Path: path, MaxPages: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, out.PagesProcessed)
	assert.Equal(t, 5, out.TotalPages)
	assert.True(t, out.Truncated)
	assert.Contains(t, out.Text, "page 2")
	assert.NotContains(t, out.Text, "page 3")
}

func TestTextLayerRejectsBadInput(t *testing.T) {
	tl := NewTextLayer(Config{}, slog.New(slog.DiscardHandler))

	_, err := tl.Convert(context.Background(), Job{Path: "x.pdf", MaxPages: 0})
	assert.ErrorIs(t, err, ErrInvalidJob)

	junk := filepath.Join(t.TempDir(), "junk.pdf")
	require.NoError(t, os.WriteFile(junk, []byte("not a pdf"), 0o644))
	_, err = tl.Convert(context.Background(), Job{Path: junk, MaxPages: 1})
	assert.Error(t, err)
}

func TestPdfcpuCounter(t *testing.T) {
	dir := t.TempDir()
	path := writeTextPDF(t, dir, "sample.pdf", []string{"a", "b", "c", "d"})

	n, err := pdfcpuCounter{}.PageCount(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = pdfcpuCounter{}.PageCount(context.Background(), filepath.Join(dir, "missing.pdf"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pdfcpuCounter{}.PageCount(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

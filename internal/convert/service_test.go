package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/pdf2text/constants"
	"github.com/joseph-ayodele/pdf2text/internal/entity"
	"github.com/joseph-ayodele/pdf2text/internal/ocr"
	"github.com/joseph-ayodele/pdf2text/internal/staging"
)

// fakeBackend reports page counts by staged file name and returns one line
// per processed page.
type fakeBackend struct {
	mu    sync.Mutex
	pages map[string]int
	err   error
	jobs  []ocr.Job
	delay time.Duration
	echo  bool // return the staged bytes as text
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Check(context.Context) error { return nil }

func (f *fakeBackend) Convert(ctx context.Context, job ocr.Job) (ocr.Output, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ocr.Output{}, ctx.Err()
		}
	}
	if f.err != nil {
		return ocr.Output{}, f.err
	}
	if f.echo {
		b, err := os.ReadFile(job.Path)
		if err != nil {
			return ocr.Output{}, err
		}
		return ocr.Output{Text: string(b), PagesProcessed: 1, TotalPages: 1}, nil
	}
	total := f.pages[filepath.Base(job.Path)]
	n := min(total, job.MaxPages)
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("page %d of %s", i+1, filepath.Base(job.Path))
	}
	return ocr.Output{
		Text:           strings.Join(lines, "\n\f\n"),
		PagesProcessed: n,
		TotalPages:     total,
		Truncated:      total > job.MaxPages,
	}, nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

type memRecorder struct {
	mu   sync.Mutex
	rows []entity.Conversion
}

func (m *memRecorder) Insert(_ context.Context, c *entity.Conversion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *c)
	return nil
}

func (m *memRecorder) last() entity.Conversion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[len(m.rows)-1]
}

type fixture struct {
	svc      *Service
	backend  *fakeBackend
	recorder *memRecorder
	inDir    string
	outDir   string
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	root := t.TempDir()
	stager, err := staging.NewStager(filepath.Join(root, "temp"), logger)
	require.NoError(t, err)

	f := &fixture{
		backend:  &fakeBackend{pages: map[string]int{"sample.pdf": 5, "big.pdf": 35, "exact.pdf": 20}},
		recorder: &memRecorder{},
		inDir:    filepath.Join(root, "in"),
		outDir:   filepath.Join(root, "out"),
	}
	require.NoError(t, os.MkdirAll(f.inDir, 0o755))
	cfg.OutputDir = f.outDir
	f.svc = NewService(f.backend, stager, f.recorder, cfg, logger)
	return f
}

func (f *fixture) upload(t *testing.T, name string) staging.Upload {
	t.Helper()
	p := filepath.Join(f.inDir, name)
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.7 "+name), 0o644))
	return staging.FileUpload{Path: p}
}

func TestConvertSampleWithinCap(t *testing.T) {
	f := newFixture(t, Config{})

	out, err := f.svc.Convert(context.Background(), f.svc.NewRequest(f.upload(t, "sample.pdf")))
	require.NoError(t, err)
	require.NotNil(t, out.Result)

	assert.False(t, out.Result.Truncated)
	assert.Equal(t, 5, out.Result.PagesProcessed)
	assert.Equal(t, "RESULT_sample_OCR.txt", out.ArtifactName())
	assert.Equal(t, filepath.Join(f.outDir, "RESULT_sample_OCR.txt"), out.ArtifactPath)
	assert.NotContains(t, string(out.StatusHTML), "WARNING")
	assert.Contains(t, string(out.StatusHTML), "minutes on CPU for 5 pages")

	written, err := os.ReadFile(out.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, out.Text, string(written))

	rec := f.recorder.last()
	assert.Equal(t, constants.StatusOK, rec.Status)
	assert.Equal(t, "sample.pdf", rec.Filename)
	assert.NotEmpty(t, rec.ContentHash)
	require.NotNil(t, rec.ArtifactPath)
}

func TestConvertBigIsTruncated(t *testing.T) {
	f := newFixture(t, Config{})

	out, err := f.svc.Convert(context.Background(), Request{Upload: f.upload(t, "big.pdf"), MaxPages: 20})
	require.NoError(t, err)
	require.NotNil(t, out.Result)

	assert.True(t, out.Result.Truncated)
	assert.Equal(t, 20, out.Result.PagesProcessed)
	assert.Equal(t, 35, out.Result.TotalPages)
	assert.Contains(t, string(out.StatusHTML), "<p>WARNING - PDF was truncated to 20 pages</p>")
	assert.Contains(t, string(out.StatusHTML), "minutes on CPU for 20 pages</p>")
	assert.Equal(t, "RESULT_big_OCR.txt", out.ArtifactName())
	assert.Equal(t, constants.StatusTruncated, f.recorder.last().Status)

	job := f.backend.jobs[0]
	assert.Equal(t, 20, job.MaxPages)
	assert.Equal(t, "en", job.Language)
	assert.NoDirExists(t, job.WorkDir, "scratch dir removed after the call")
}

func TestConvertExactlyAtCapIsNotTruncated(t *testing.T) {
	f := newFixture(t, Config{})

	out, err := f.svc.Convert(context.Background(), Request{Upload: f.upload(t, "exact.pdf"), MaxPages: 20})
	require.NoError(t, err)
	assert.False(t, out.Result.Truncated)
	assert.Equal(t, 20, out.Result.PagesProcessed)
}

func TestConvertRejectsNonPDF(t *testing.T) {
	for _, name := range []string{"notes.docx", "scan.PDF", "archive.pdf.zip", "README"} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, Config{})

			out, err := f.svc.Convert(context.Background(), f.svc.NewRequest(f.upload(t, name)))
			require.NoError(t, err)
			assert.Equal(t, RejectedMessage, out.Text)
			assert.Contains(t, string(out.StatusHTML), "is not a PDF file")
			assert.Contains(t, string(out.StatusHTML), name)
			assert.Empty(t, out.ArtifactPath)
			assert.Nil(t, out.Result)
			assert.Zero(t, f.backend.calls())
			assert.NoDirExists(t, f.outDir)
			assert.Equal(t, constants.StatusRejected, f.recorder.last().Status)
		})
	}
}

func TestConvertRejectsNilUpload(t *testing.T) {
	f := newFixture(t, Config{})
	out, err := f.svc.Convert(context.Background(), Request{MaxPages: 20})
	require.NoError(t, err)
	assert.Equal(t, RejectedMessage, out.Text)
	assert.Zero(t, f.backend.calls())
}

func TestConvertRejectsBadMaxPages(t *testing.T) {
	f := newFixture(t, Config{})
	for _, n := range []int{0, -3} {
		out, err := f.svc.Convert(context.Background(), Request{Upload: f.upload(t, "sample.pdf"), MaxPages: n})
		require.NoError(t, err)
		assert.Contains(t, out.Text, "max pages must be at least 1")
		assert.Empty(t, out.ArtifactPath)
	}
	assert.Zero(t, f.backend.calls())
}

func TestConvertIsIdempotent(t *testing.T) {
	f := newFixture(t, Config{})
	u := f.upload(t, "big.pdf")

	first, err := f.svc.Convert(context.Background(), Request{Upload: u, MaxPages: 20})
	require.NoError(t, err)
	second, err := f.svc.Convert(context.Background(), Request{Upload: u, MaxPages: 20})
	require.NoError(t, err)

	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.Result.Truncated, second.Result.Truncated)
	assert.Equal(t, first.ArtifactPath, second.ArtifactPath)
	assert.NotEqual(t, f.backend.jobs[0].WorkDir, f.backend.jobs[1].WorkDir)
}

func TestConvertStagingFailureCannotProceed(t *testing.T) {
	f := newFixture(t, Config{})

	out, err := f.svc.Convert(context.Background(), f.svc.NewRequest(staging.FileUpload{Path: filepath.Join(f.inDir, "missing.pdf")}))
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Cannot proceed")
	assert.Contains(t, string(out.StatusHTML), "source unreadable")
	assert.Empty(t, out.ArtifactPath)
	assert.Zero(t, f.backend.calls())
	assert.Equal(t, constants.StatusFailed, f.recorder.last().Status)
}

func TestConvertBackendFailureIsReported(t *testing.T) {
	f := newFixture(t, Config{})
	f.backend.err = errors.New("tesseract: exit status 1")

	out, err := f.svc.Convert(context.Background(), f.svc.NewRequest(f.upload(t, "sample.pdf")))
	require.ErrorIs(t, err, ErrConversionFailed)
	assert.Contains(t, out.Text, "Conversion failed")
	assert.Contains(t, string(out.StatusHTML), "exit status 1")
	assert.Empty(t, out.ArtifactPath)
	assert.NoFileExists(t, filepath.Join(f.outDir, "RESULT_sample_OCR.txt"))

	rec := f.recorder.last()
	assert.Equal(t, constants.StatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
}

func TestConvertTimeout(t *testing.T) {
	f := newFixture(t, Config{Timeout: 20 * time.Millisecond})
	f.backend.delay = time.Second

	_, err := f.svc.Convert(context.Background(), f.svc.NewRequest(f.upload(t, "sample.pdf")))
	require.ErrorIs(t, err, ErrConversionFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConvertConcurrentRequests(t *testing.T) {
	f := newFixture(t, Config{MaxConcurrent: 2})
	names := []string{"sample.pdf", "big.pdf", "exact.pdf"}
	uploads := make([]staging.Upload, len(names))
	for i, n := range names {
		uploads[i] = f.upload(t, n)
	}

	var wg sync.WaitGroup
	outs := make([]Outcome, len(names))
	errs := make([]error, len(names))
	for i := range names {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], errs[i] = f.svc.Convert(context.Background(), Request{Upload: uploads[i], MaxPages: 20})
		}(i)
	}
	wg.Wait()

	for i, n := range names {
		require.NoError(t, errs[i], n)
		assert.Contains(t, outs[i].Text, "of "+n, "no cross-request leakage")
		assert.Equal(t, constants.ArtifactName(n), outs[i].ArtifactName())
	}
}

type bytesUpload struct {
	name string
	data string
}

func (u bytesUpload) Name() string { return u.name }

func (u bytesUpload) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(u.data)), nil
}

func TestConvertSameNameRequestsKeepTheirOwnText(t *testing.T) {
	f := newFixture(t, Config{MaxConcurrent: 2})
	f.backend.echo = true
	f.backend.delay = 50 * time.Millisecond

	contents := []string{"ALICE", "BOB", "CAROL"}
	var wg sync.WaitGroup
	outs := make([]Outcome, len(contents))
	errs := make([]error, len(contents))
	for i, c := range contents {
		wg.Add(1)
		go func(i int, c string) {
			defer wg.Done()
			outs[i], errs[i] = f.svc.Convert(context.Background(), Request{
				Upload:   bytesUpload{name: "report.pdf", data: c},
				MaxPages: 20,
			})
		}(i, c)
	}
	wg.Wait()

	for i, c := range contents {
		require.NoError(t, errs[i], c)
		assert.Equal(t, c, outs[i].Text)
	}
	assert.Equal(t, len(contents), f.backend.calls())
}

func TestConvertClientPathUsesBaseName(t *testing.T) {
	f := newFixture(t, Config{})
	out, err := f.svc.Convert(context.Background(), Request{
		Upload:   bytesUpload{name: `C:\Users\me\sample.pdf`, data: "%PDF-1.7"},
		MaxPages: 20,
	})
	require.NoError(t, err)

	assert.Equal(t, "RESULT_sample_OCR.txt", out.ArtifactName())
	assert.True(t, constants.IsArtifactName(out.ArtifactName()))
	assert.Equal(t, "sample.pdf", f.recorder.last().Filename)
	assert.Contains(t, out.Text, "page 5 of sample.pdf")
}

func TestConvertRejectsBareExtension(t *testing.T) {
	f := newFixture(t, Config{})
	out, err := f.svc.Convert(context.Background(), Request{
		Upload:   bytesUpload{name: ".pdf", data: "%PDF-1.7"},
		MaxPages: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, RejectedMessage, out.Text)
	assert.Empty(t, out.ArtifactPath)
	assert.Zero(t, f.backend.calls())
}

func TestStatusHTMLListsPageWarnings(t *testing.T) {
	r := &Result{PagesProcessed: 3, Warnings: []string{"page 2: tesseract <crashed>"}}
	html := string(statusHTML(r, 20, "WARNING - result file could not be saved"))

	assert.Contains(t, html, "<p>WARNING - page 2: tesseract &lt;crashed&gt;</p>")
	assert.Contains(t, html, "<p>WARNING - result file could not be saved</p>")
	assert.Less(t, strings.Index(html, "Runtime:"), strings.Index(html, "page 2"))
}

func TestSanitizeText(t *testing.T) {
	in := "ok\x00 text\xff\xfe with\tlayout\f\nand \x07bell é"
	assert.Equal(t, "ok text with\tlayout\f\nand bell é", sanitizeText(in))
}

func TestStatusHTMLEscapes(t *testing.T) {
	html := rejectedBanner("<script>.docx")
	assert.NotContains(t, string(html), "<script>")
	assert.Contains(t, string(html), "&lt;script&gt;.docx")
}

package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// TextLayer reads the embedded text layer instead of running OCR. Useful for
// born-digital PDFs and hosts without poppler or tesseract.
type TextLayer struct {
	cfg    Config
	logger *slog.Logger
}

func NewTextLayer(cfg Config, logger *slog.Logger) *TextLayer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = withDefaults(cfg)
	cfg.Engine = EngineTextLayer
	return &TextLayer{cfg: cfg, logger: logger}
}

func (t *TextLayer) Name() string { return EngineTextLayer }

func (t *TextLayer) Check(context.Context) error { return nil }

func (t *TextLayer) Convert(ctx context.Context, job Job) (Output, error) {
	if err := validateJob(job); err != nil {
		return Output{}, err
	}
	f, r, err := pdf.Open(job.Path)
	if err != nil {
		return Output{}, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	total := r.NumPage()
	if total < 1 {
		return Output{}, ErrNoPages
	}
	limit := min(total, job.MaxPages)

	var b strings.Builder
	var warns []string
	for i := 1; i <= limit; i++ {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		if i > 1 {
			b.WriteString("\n\f\n")
		}
		p := r.Page(i)
		if p.V.IsNull() {
			warns = append(warns, fmt.Sprintf("page %d: missing page object", i))
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			t.logger.Warn("text layer extraction failed", "page", i, "error", err)
			warns = append(warns, fmt.Sprintf("page %d: %v", i, err))
			continue
		}
		b.WriteString(Normalize(txt))
	}

	t.logger.Info("text layer extracted", "path", job.Path, "pages_processed", limit, "total_pages", total)
	return Output{
		Text:           b.String(),
		PagesProcessed: limit,
		TotalPages:     total,
		Truncated:      total > job.MaxPages,
		Method:         "pdf-text",
		Warnings:       warns,
	}, nil
}

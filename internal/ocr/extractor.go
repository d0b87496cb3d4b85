package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Extractor rasterizes PDF pages with pdftoppm and recognizes each page.
type Extractor struct {
	cfg        Config
	runner     Runner
	pages      PageCounter
	recognizer Recognizer
	logger     *slog.Logger
}

type ExtractorOption func(*Extractor)

// WithRunner replaces the command runner, mainly for tests.
func WithRunner(r Runner) ExtractorOption {
	return func(e *Extractor) { e.runner = r }
}

func WithPageCounter(p PageCounter) ExtractorOption {
	return func(e *Extractor) { e.pages = p }
}

func WithRecognizer(r Recognizer) ExtractorOption {
	return func(e *Extractor) { e.recognizer = r }
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...ExtractorOption) (*Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = withDefaults(cfg)
	e := &Extractor{cfg: cfg, runner: execRunner{}, pages: pdfcpuCounter{}, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	if e.recognizer == nil {
		switch cfg.Engine {
		case EngineTesseract:
			e.recognizer = tesseractCLI{cfg: cfg, runner: e.runner, logger: logger}
		case EngineGosseract:
			if gosseractFactory == nil {
				return nil, fmt.Errorf("%w: %s (rebuild with -tags gosseract)", ErrEngineUnavailable, cfg.Engine)
			}
			e.recognizer = gosseractFactory(cfg)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
		}
	}
	return e, nil
}

func (e *Extractor) Name() string { return e.cfg.Engine }

// Convert OCRs at most job.MaxPages leading pages of the PDF at job.Path.
func (e *Extractor) Convert(ctx context.Context, job Job) (Output, error) {
	if err := validateJob(job); err != nil {
		return Output{}, err
	}
	start := time.Now()

	hint := job.Language
	if hint == "" {
		hint = e.cfg.Language
	}
	lang, err := TesseractLanguage(hint)
	if err != nil {
		return Output{}, err
	}

	total, err := e.pages.PageCount(ctx, job.Path)
	if err != nil {
		return Output{}, err
	}
	if total < 1 {
		return Output{}, ErrNoPages
	}
	limit := min(total, job.MaxPages)
	e.logger.Info("starting ocr",
		"path", job.Path,
		"engine", e.cfg.Engine,
		"lang", lang,
		"total_pages", total,
		"max_pages", job.MaxPages,
	)

	workDir := job.WorkDir
	if workDir == "" {
		tmp, err := os.MkdirTemp("", "pdf2text-pp-*")
		if err != nil {
			return Output{}, err
		}
		defer func(path string) {
			if err := os.RemoveAll(path); err != nil {
				e.logger.Warn("failed to remove temp dir", "path", path, "error", err)
			}
		}(tmp)
		workDir = tmp
	}

	images, err := e.renderPages(ctx, job.Path, workDir, limit)
	if err != nil {
		return Output{}, err
	}

	var b strings.Builder
	var warns []string
	for i, img := range images {
		txt, err := e.recognizer.Recognize(ctx, img, lang)
		if err != nil {
			if ctx.Err() != nil {
				return Output{}, ctx.Err()
			}
			e.logger.Warn("page recognition failed", "page", i+1, "error", err)
			warns = append(warns, fmt.Sprintf("page %d: %v", i+1, err))
			txt = ""
		}
		if i > 0 {
			b.WriteString("\n\f\n") // keep a clear page break marker
		}
		b.WriteString(Normalize(txt))
	}
	if len(warns) == len(images) {
		return Output{}, fmt.Errorf("ocr failed on every page: %s", warns[0])
	}

	e.logger.Info("ocr finished",
		"path", job.Path,
		"pages_processed", len(images),
		"duration_ms", time.Since(start).Milliseconds(),
		"warnings", len(warns),
	)
	return Output{
		Text:           b.String(),
		PagesProcessed: len(images),
		TotalPages:     total,
		Truncated:      total > job.MaxPages,
		Method:         "pdf-ocr",
		Language:       lang,
		Warnings:       warns,
	}, nil
}

package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/pdf2text/internal/common"
)

const (
	EngineTesseract = "tesseract" // pdftoppm + tesseract CLI
	EngineGosseract = "gosseract" // pdftoppm + in-process libtesseract (build tag gosseract)
	EngineTextLayer = "textlayer" // embedded text layer, no OCR
)

var (
	ErrInvalidJob        = errors.New("invalid ocr job")
	ErrNoPages           = errors.New("document has no pages")
	ErrUnknownEngine     = errors.New("unknown ocr engine")
	ErrEngineUnavailable = errors.New("ocr engine not compiled in")
	ErrUnknownLanguage   = errors.New("unknown language")
)

type Config struct {
	Engine    string // tesseract | gosseract | textlayer; empty -> tesseract
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Language string // default language hint, ISO 639-1 or tesseract code; default "en"
	DPI      int    // rasterization DPI, default 300

	TessdataDir string

	PSM int // page segmentation mode; 0 -> tesseract default
	OEM int // 1 = LSTM; leave 0 to use default

	// AssumeStraightPages skips orientation detection. When false and PSM is
	// unset, pages are segmented with --psm 1 (automatic + OSD).
	AssumeStraightPages bool
}

// Job is one bounded conversion. WorkDir holds intermediate page images and
// belongs to the caller; when empty the backend uses its own temp dir.
type Job struct {
	Path     string
	MaxPages int
	Language string
	WorkDir  string
}

// Output is what a backend reports for one Job.
type Output struct {
	Text           string
	PagesProcessed int
	TotalPages     int
	Truncated      bool
	Method         string // "pdf-ocr" | "pdf-text"
	Language       string
	Warnings       []string
}

// Backend converts a document into text under a page cap.
type Backend interface {
	Name() string
	Convert(ctx context.Context, job Job) (Output, error)
	// Check verifies external dependencies (binaries, language data).
	Check(ctx context.Context) error
}

// NewBackend builds the backend selected by cfg.Engine.
func NewBackend(cfg Config, logger *slog.Logger) (Backend, error) {
	switch cfg.Engine {
	case "", EngineTesseract, EngineGosseract:
		e, err := NewExtractor(cfg, logger)
		if err != nil {
			return nil, err
		}
		return e, nil
	case EngineTextLayer:
		return NewTextLayer(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
	}
}

func withDefaults(cfg Config) Config {
	if cfg.Engine == "" {
		cfg.Engine = EngineTesseract
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return cfg
}

func validateJob(job Job) error {
	if job.Path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidJob)
	}
	if job.MaxPages < 1 {
		return fmt.Errorf("%w: max pages must be at least 1, got %d", ErrInvalidJob, job.MaxPages)
	}
	return nil
}

// FromConfig maps the application OCR settings onto a backend Config.
func FromConfig(c common.OCRConfig) Config {
	return Config{
		Engine:              c.Engine,
		Pdftoppm:            c.PdftoppmBin,
		Tesseract:           c.TesseractBin,
		Language:            c.Language,
		DPI:                 c.DPI,
		TessdataDir:         c.TessdataDir,
		PSM:                 c.PSM,
		OEM:                 c.OEM,
		AssumeStraightPages: c.AssumeStraightPages,
	}
}

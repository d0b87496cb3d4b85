package convert

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/joseph-ayodele/pdf2text/constants"
	"github.com/joseph-ayodele/pdf2text/internal/common"
	"github.com/joseph-ayodele/pdf2text/internal/entity"
	"github.com/joseph-ayodele/pdf2text/internal/ocr"
	"github.com/joseph-ayodele/pdf2text/internal/staging"
)

// ErrConversionFailed wraps backend failures. The accompanying Outcome is
// still renderable.
var ErrConversionFailed = errors.New("conversion failed")

type Config struct {
	OutputDir       string        // where RESULT_<stem>_OCR.txt is written; "" = working directory
	DefaultMaxPages int           // used by NewRequest; default 20
	DefaultLanguage string        // used by NewRequest and for empty Request.Language; default "en"
	Timeout         time.Duration // per backend call; 0 = none
	MaxConcurrent   int           // concurrent backend calls; default 2
}

// Recorder stores a ledger row per conversion. Optional.
type Recorder interface {
	Insert(ctx context.Context, c *entity.Conversion) error
}

type Request struct {
	Upload   staging.Upload
	Language string
	MaxPages int
}

type Result struct {
	Text           string
	PagesProcessed int
	TotalPages     int
	Truncated      bool
	Elapsed        time.Duration
	Warnings       []string
}

func (r Result) ElapsedSeconds() float64 { return r.Elapsed.Seconds() }

// Outcome is what the caller shows: text, an HTML status fragment and the
// artifact path (empty when nothing was written).
type Outcome struct {
	Text         string
	StatusHTML   template.HTML
	ArtifactPath string
	Result       *Result   // nil unless the backend ran successfully
	ConversionID uuid.UUID // ledger row id; uuid.Nil when nothing was recorded
}

// ArtifactName is the base name of the artifact, or "".
func (o Outcome) ArtifactName() string {
	if o.ArtifactPath == "" {
		return ""
	}
	return filepath.Base(o.ArtifactPath)
}

type Service struct {
	backend  ocr.Backend
	stager   *staging.Stager
	recorder Recorder
	cfg      Config
	sem      *semaphore.Weighted
	logger   *slog.Logger
}

func NewService(backend ocr.Backend, stager *staging.Stager, recorder Recorder, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultMaxPages <= 0 {
		cfg.DefaultMaxPages = 20
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	return &Service{
		backend:  backend,
		stager:   stager,
		recorder: recorder,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:   logger,
	}
}

// NewRequest returns a request for u with the configured defaults.
func (s *Service) NewRequest(u staging.Upload) Request {
	return Request{Upload: u, Language: s.cfg.DefaultLanguage, MaxPages: s.cfg.DefaultMaxPages}
}

func (s *Service) DefaultMaxPages() int { return s.cfg.DefaultMaxPages }

func (s *Service) DefaultLanguage() string { return s.cfg.DefaultLanguage }

func (s *Service) OutputDir() string { return s.cfg.OutputDir }

// Convert runs one upload through validation, staging, OCR and artifact
// writing. Validation and I/O problems are reported in the Outcome with a nil
// error; backend failures are reported too and also returned wrapped in
// ErrConversionFailed.
func (s *Service) Convert(ctx context.Context, req Request) (Outcome, error) {
	start := time.Now()
	log := s.logger
	if id := common.RequestIDFromContext(ctx); id != "" {
		log = log.With("request_id", id)
	}

	var source, name string
	if req.Upload != nil {
		source = req.Upload.Name()
		name, _ = staging.BaseName(source)
	}
	lang := req.Language
	if lang == "" {
		lang = s.cfg.DefaultLanguage
	}
	rec := &entity.Conversion{
		Filename: name,
		Language: lang,
		MaxPages: req.MaxPages,
		Engine:   s.backend.Name(),
	}

	if req.Upload == nil || !constants.IsDocument(name) {
		log.Error("file is not a PDF file", "file", source)
		s.record(ctx, log, rec, constants.StatusRejected, start, "not a PDF file")
		return Outcome{Text: RejectedMessage, StatusHTML: rejectedBanner(source), ConversionID: rec.ID}, nil
	}
	if req.MaxPages < 1 {
		msg := fmt.Sprintf("max pages must be at least 1, got %d", req.MaxPages)
		log.Warn("invalid request", "file", source, "error", msg)
		s.record(ctx, log, rec, constants.StatusRejected, start, msg)
		return Outcome{Text: msg, StatusHTML: banner(msg), ConversionID: rec.ID}, nil
	}

	// intermediate page images for this request only
	scratch, err := os.MkdirTemp("", "pdf2text-job-*")
	if err != nil {
		log.Error("scratch dir failed", "error", err)
		return s.cannotProceed(ctx, log, rec, start, err), nil
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Warn("failed to remove scratch dir", "path", scratch, "error", err)
		}
	}()

	staged, err := s.stager.Stage(ctx, req.Upload)
	if err != nil {
		return s.cannotProceed(ctx, log, rec, start, err), nil
	}
	defer func() {
		if err := staged.Release(); err != nil {
			log.Warn("failed to release staged file", "path", staged.Path, "error", err)
		}
	}()
	rec.ContentHash = staged.SHA256

	out, err := s.runBackend(ctx, ocr.Job{Path: staged.Path, MaxPages: req.MaxPages, Language: lang, WorkDir: scratch})
	if err != nil {
		log.Error("ocr backend failed", "file", name, "engine", s.backend.Name(), "error", err)
		s.record(ctx, log, rec, constants.StatusFailed, start, err.Error())
		msg := "Conversion failed: " + err.Error()
		return Outcome{Text: msg, StatusHTML: banner(msg), ConversionID: rec.ID}, fmt.Errorf("%w: %s: %w", ErrConversionFailed, name, err)
	}

	res := &Result{
		Text:           out.Text,
		PagesProcessed: out.PagesProcessed,
		TotalPages:     out.TotalPages,
		Truncated:      out.Truncated,
		Elapsed:        time.Since(start),
		Warnings:       out.Warnings,
	}
	rec.PagesProcessed = res.PagesProcessed
	rec.TotalPages = res.TotalPages
	rec.Truncated = res.Truncated

	var notes []string
	artifact, err := writeArtifact(ctx, s.cfg.OutputDir, name, res.Text)
	if err != nil {
		log.Error("writing artifact failed", "file", name, "error", err)
		notes = append(notes, "WARNING - result file could not be saved")
	} else {
		rec.ArtifactPath = &artifact
	}

	status := constants.StatusOK
	if res.Truncated {
		status = constants.StatusTruncated
	}
	var errMsg string
	if len(notes) > 0 {
		errMsg = notes[0]
	}
	s.record(ctx, log, rec, status, start, errMsg)

	log.Info("conversion finished",
		"file", name,
		"pages_processed", res.PagesProcessed,
		"total_pages", res.TotalPages,
		"truncated", res.Truncated,
		"runtime_minutes", Minutes(res.Elapsed),
		"artifact", artifact,
	)
	return Outcome{
		Text:         res.Text,
		StatusHTML:   statusHTML(res, req.MaxPages, notes...),
		ArtifactPath: artifact,
		Result:       res,
		ConversionID: rec.ID,
	}, nil
}

func (s *Service) runBackend(ctx context.Context, job ocr.Job) (ocr.Output, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return ocr.Output{}, err
	}
	defer s.sem.Release(1)

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	return s.backend.Convert(ctx, job)
}

func (s *Service) cannotProceed(ctx context.Context, log *slog.Logger, rec *entity.Conversion, start time.Time, err error) Outcome {
	reason := err.Error()
	var serr *staging.Error
	if errors.As(err, &serr) {
		reason = string(serr.Reason)
	}
	msg := "Cannot proceed: " + reason
	s.record(ctx, log, rec, constants.StatusFailed, start, err.Error())
	return Outcome{Text: msg, StatusHTML: banner(msg), ConversionID: rec.ID}
}

// record writes the ledger row; failures are logged and otherwise ignored.
func (s *Service) record(ctx context.Context, log *slog.Logger, rec *entity.Conversion, status constants.ConversionStatus, start time.Time, errMsg string) {
	if s.recorder == nil {
		return
	}
	rec.Status = status
	rec.ElapsedMS = time.Since(start).Milliseconds()
	if errMsg != "" {
		rec.ErrorMessage = &errMsg
	}
	if err := s.recorder.Insert(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn("recording conversion failed", "file", rec.Filename, "error", err)
	}
}
